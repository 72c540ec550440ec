package overlay

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	golibp2p "github.com/libp2p/go-libp2p"
	p2phttp "github.com/libp2p/go-libp2p-http"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

var log = logrus.WithField("component", "overlay")

// Config configures the libp2p-backed Transport.
type Config struct {
	ListenAddr   string
	DiscoveryTag string
	// Identity is the station's persistent keypair, loaded from
	// identity.pem. Nil generates an ephemeral identity.
	Identity crypto.PrivKey
}

// libp2pTransport is the production Transport, wrapping a libp2p host with
// mDNS discovery and an HTTP-over-stream client/server.
type libp2pTransport struct {
	host host.Host
	self ident.Identifier
	ps   *pubsub.PubSub

	mu      sync.RWMutex
	peers   map[ident.Identifier]peer.AddrInfo
	onFound func(NodeAddr)
	topics  map[string]*pubsub.Topic
}

// NewLibp2pTransport creates and bootstraps a libp2p-backed Transport.
func NewLibp2pTransport(cfg Config) (Transport, error) {
	opts := []golibp2p.Option{golibp2p.ListenAddrStrings(cfg.ListenAddr)}
	if cfg.Identity != nil {
		opts = append(opts, golibp2p.Identity(cfg.Identity))
	}
	h, err := golibp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("overlay: create libp2p host: %w", err)
	}

	self, err := nodeIDFromPeerID(h.ID())
	if err != nil {
		h.Close()
		return nil, err
	}

	ps, err := pubsub.NewGossipSub(context.Background(), h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("overlay: create gossipsub: %w", err)
	}

	t := &libp2pTransport{
		host:   h,
		self:   self,
		ps:     ps,
		peers:  make(map[ident.Identifier]peer.AddrInfo),
		topics: make(map[string]*pubsub.Topic),
	}

	svc := mdns.NewMdnsService(h, cfg.DiscoveryTag, t)
	if err := svc.Start(); err != nil {
		log.WithError(err).Warn("mDNS discovery failed to start")
	}

	return t, nil
}

// joinTopic returns the cached gossipsub topic handle for name, joining it
// on first use.
func (t *libp2pTransport) joinTopic(name string) (*pubsub.Topic, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if topic, ok := t.topics[name]; ok {
		return topic, nil
	}
	topic, err := t.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("overlay: join topic %s: %w", name, err)
	}
	t.topics[name] = topic
	return topic, nil
}

// Broadcast implements Transport by publishing to a gossipsub topic.
func (t *libp2pTransport) Broadcast(topicName string, data []byte) error {
	topic, err := t.joinTopic(topicName)
	if err != nil {
		return err
	}
	if err := topic.Publish(context.Background(), data); err != nil {
		return fmt.Errorf("overlay: publish to %s: %w", topicName, err)
	}
	return nil
}

// Subscribe implements Transport: join topicName and run a receive loop
// delivering every message (including our own re-broadcasts, which the
// registry layer is responsible for deduplicating) to cb.
func (t *libp2pTransport) Subscribe(topicName string, cb func(from ident.Identifier, data []byte)) error {
	topic, err := t.joinTopic(topicName)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("overlay: subscribe to %s: %w", topicName, err)
	}
	go func() {
		for {
			msg, err := sub.Next(context.Background())
			if err != nil {
				log.WithError(err).WithField("topic", topicName).Debug("gossip subscription ended")
				return
			}
			from, err := nodeIDFromPeerID(msg.GetFrom())
			if err != nil {
				continue
			}
			cb(from, msg.Data)
		}
	}()
	return nil
}

// nodeIDFromPeerID derives a station Identifier from a libp2p peer.ID by
// hashing its bytes, so the rest of the station core never depends on
// libp2p's own ID type.
func nodeIDFromPeerID(p peer.ID) (ident.Identifier, error) {
	return ident.Sum([]byte(p))
}

func (t *libp2pTransport) Self() ident.Identifier { return t.self }

// HandlePeerFound implements mdns.Notifee: connect to a discovered peer and
// record it for later resolution.
func (t *libp2pTransport) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == t.host.ID() {
		return
	}
	id, err := nodeIDFromPeerID(info.ID)
	if err != nil {
		return
	}

	t.mu.Lock()
	_, known := t.peers[id]
	t.peers[id] = info
	onFound := t.onFound
	t.mu.Unlock()

	if known {
		return
	}
	if err := t.host.Connect(context.Background(), info); err != nil {
		log.WithError(err).WithField("peer", info.ID.String()).Warn("failed to connect to discovered peer")
		return
	}
	log.WithField("peer", info.ID.String()).Info("connected to peer via mDNS")
	if onFound != nil {
		onFound(NodeAddr{ID: id, Endpoint: info.String()})
	}
}

// OnPeerFound registers a callback invoked whenever mDNS discovers a new
// peer, feeding StationRegistry.AddCandidates.
func (t *libp2pTransport) OnPeerFound(cb func(NodeAddr)) {
	t.mu.Lock()
	t.onFound = cb
	t.mu.Unlock()
}

func (t *libp2pTransport) FindNode(ctx context.Context, id ident.Identifier) (NodeAddr, error) {
	t.mu.RLock()
	info, ok := t.peers[id]
	t.mu.RUnlock()
	if !ok {
		return NodeAddr{}, vlferr.Wrap(vlferr.NotFound, "no route to node %s", id)
	}
	return NodeAddr{ID: id, Endpoint: info.String()}, nil
}

func (t *libp2pTransport) DialHTTP(ctx context.Context, peerAddr NodeAddr, appID string) (*http.Client, error) {
	t.mu.RLock()
	info, ok := t.peers[peerAddr.ID]
	t.mu.RUnlock()
	if !ok {
		return nil, vlferr.Wrap(vlferr.NotFound, "no route to node %s", peerAddr.ID)
	}
	if err := t.host.Connect(ctx, info); err != nil {
		return nil, fmt.Errorf("overlay: connect to %s: %w", peerAddr.ID, err)
	}
	tr := p2phttp.NewTransport(t.host, p2phttp.ProtocolOption(protocolFor(appID)))
	return &http.Client{Transport: tr}, nil
}

func (t *libp2pTransport) Handle(appID string, handler http.Handler) error {
	listener, err := p2phttp.Listen(t.host, p2phttp.ProtocolOption(protocolFor(appID)))
	if err != nil {
		return fmt.Errorf("overlay: listen for %s: %w", appID, err)
	}
	go func() {
		if err := http.Serve(listener, handler); err != nil {
			log.WithError(err).WithField("app_id", appID).Warn("http-over-stream listener stopped")
		}
	}()
	return nil
}

func (t *libp2pTransport) Connect(ctx context.Context, hostPort string) error {
	maddr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/dns4/%s/tcp/%s", splitHost(hostPort), splitPort(hostPort)))
	if err != nil {
		return fmt.Errorf("overlay: parse bootstrap addr %s: %w", hostPort, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("overlay: resolve bootstrap addr %s: %w", hostPort, err)
	}
	if err := t.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("overlay: dial bootstrap %s: %w", hostPort, err)
	}
	return nil
}

func (t *libp2pTransport) Close() error {
	return t.host.Close()
}

func protocolFor(appID string) (proto string) {
	return "/" + appID + "/1.0.0"
}

func splitHost(hostPort string) string {
	host, _, _ := ParseHostPort(hostPort)
	return host
}

func splitPort(hostPort string) string {
	_, port, _ := ParseHostPort(hostPort)
	return port
}
