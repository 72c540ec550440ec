// Package station is the composition root: it wires identity, location,
// DatasetStore, MergedSchedule, StationRegistry, and the overlay transport
// into one running process, and serves the vlf::station HTTP surface.
// Construction builds each subsystem, wires callbacks between them, and
// hands back a Station whose Run drives the event loop.
package station

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hmatuschek/vlfnet/internal/config"
	"github.com/hmatuschek/vlfnet/internal/dataset"
	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/overlay"
	"github.com/hmatuschek/vlfnet/internal/query"
	"github.com/hmatuschek/vlfnet/internal/receiver"
	"github.com/hmatuschek/vlfnet/internal/registry"
	"github.com/hmatuschek/vlfnet/internal/schedule"
)

var log = logrus.WithField("component", "station")

// defaultSampleRate is used for sealed recordings; there is no real audio
// capture device wired in, only NullSampleSource.
const defaultSampleRate = 8000

// defaultRingSeconds sizes the receiver's ring buffer to hold more than the
// recording window a schedule entry requests (schedule.DefaultRecordingDuration).
const defaultRingSeconds = 15 * 60

// Station bundles every subsystem a running vlfstationd process needs.
type Station struct {
	root string
	cfg  config.Config

	transport overlay.Transport
	registry  *registry.Registry
	local     *schedule.Local
	remote    *schedule.Remote
	merged    *schedule.Merged
	store     *dataset.Store
	receiver  *receiver.Receiver

	mu             sync.RWMutex
	location       geo.Location
	description    string
	controlAllowed map[ident.Identifier]struct{}
}

// New constructs a Station rooted at dataDir, reading or creating
// identity.pem and reading the rest of the domain files (location,
// schedule, receiver, allowlist). Failure to establish identity is fatal;
// every other domain file falls back to a sane default and merely logs.
func New(dataDir string, cfg config.Config) (*Station, error) {
	identity, err := loadOrCreateIdentity(filepath.Join(dataDir, "identity.pem"))
	if err != nil {
		return nil, err
	}

	transport, err := overlay.NewLibp2pTransport(overlay.Config{
		ListenAddr:   cfg.Network.ListenAddr,
		DiscoveryTag: cfg.Network.DiscoveryTag,
		Identity:     identity,
	})
	if err != nil {
		return nil, err
	}

	loc, err := loadLocation(filepath.Join(dataDir, "location.json"))
	if err != nil {
		log.WithError(err).Warn("location.json unreadable, station has no location")
	}

	store, err := dataset.Open(filepath.Join(dataDir, "data"))
	if err != nil {
		return nil, err
	}
	if err := store.Reload(); err != nil {
		log.WithError(err).Warn("dataset store reload failed")
	}

	local, err := schedule.LoadLocal(filepath.Join(dataDir, "schedule.json"))
	if err != nil {
		log.WithError(err).Warn("schedule.json unreadable, starting with an empty schedule")
		local = schedule.NewLocal()
	}
	remote := schedule.NewRemote()
	merged := schedule.NewMerged(local, remote, cfg.Schedule.MaxCost)

	reg := registry.New(transport.Self(), transport)
	if d, ok := transport.(interface{ OnPeerFound(func(overlay.NodeAddr)) }); ok {
		d.OnPeerFound(func(n overlay.NodeAddr) {
			reg.AddCandidates([]ident.Identifier{n.ID})
		})
	}

	rc, err := loadReceiverConfig(filepath.Join(dataDir, "receiver.json"))
	if err != nil {
		log.WithError(err).Warn("receiver.json unreadable, using null sample source")
	}
	var source receiver.SampleSource = receiver.NullSampleSource{}
	if rc.Device != "" {
		log.WithField("device", rc.Device).Info("no real capture backend wired, using null sample source")
	}
	recv := receiver.New(source, defaultSampleRate, defaultSampleRate*defaultRingSeconds, loc, store)

	allowlist, err := loadAllowlist(filepath.Join(dataDir, "sockswhitelist.json"))
	if err != nil {
		log.WithError(err).Warn("sockswhitelist.json unreadable, control allowlist is empty")
	}

	s := &Station{
		root:           dataDir,
		cfg:            cfg,
		transport:      transport,
		registry:       reg,
		local:          local,
		remote:         remote,
		merged:         merged,
		store:          store,
		receiver:       recv,
		location:       loc,
		controlAllowed: allowlist,
	}

	merged.OnRecord(func(d time.Duration) {
		if _, err := recv.StartRecording(d); err != nil {
			log.WithError(err).Warn("failed to seal scheduled recording")
		}
	})

	reg.Subscribe(func(item registry.StationItem) {
		log.WithField("peer", item.ID).Info("station updated")
		go s.refreshRemoteSchedule(item.ID)
	})

	if err := transport.Handle(overlay.AppID, s.httpHandler()); err != nil {
		return nil, err
	}

	return s, nil
}

// ID returns the station's own identifier.
func (s *Station) ID() ident.Identifier { return s.transport.Self() }

// refreshRemoteSchedule pulls a newly-updated peer's schedule and folds its
// events into the remote schedule, per the overview's dataflow: "registry
// fires 'station updated' -> Schedule/Catalog queries -> schedule
// aggregator ... grow."
func (s *Station) refreshRemoteSchedule(peer ident.Identifier) {
	events, err := query.Schedule(context.Background(), s.transport, peer)
	if err != nil {
		log.WithError(err).WithField("peer", peer).Debug("schedule query failed")
		return
	}
	for _, e := range events {
		s.remote.Add(peer, e)
	}
}

func (s *Station) statusJSON() ([]byte, error) {
	s.mu.RLock()
	loc, descr := s.location, s.description
	s.mu.RUnlock()

	return json.Marshal(struct {
		ID          ident.Identifier `json:"id"`
		Location    geo.Location     `json:"location"`
		Description string           `json:"description"`
	}{ID: s.ID(), Location: loc, Description: descr})
}

func (s *Station) scheduleJSON() ([]byte, error) {
	n := s.merged.NumEvents()
	events := make([]schedule.Event, n)
	for i := 0; i < n; i++ {
		events[i] = s.merged.EventAt(i)
	}
	return json.Marshal(events)
}

// bootstrapTick reads bootstrap.json and dials every listed peer. Failures
// are logged and otherwise silent; the periodic timer simply retries.
func (s *Station) bootstrapTick(ctx context.Context) {
	peers, err := loadBootstrapPeers(filepath.Join(s.root, "bootstrap.json"))
	if err != nil || len(peers) == 0 {
		return
	}
	for _, p := range peers {
		hostPort := p.Host + ":" + strconv.Itoa(int(p.Port))
		if err := s.transport.Connect(ctx, hostPort); err != nil {
			log.WithError(err).WithField("peer", hostPort).Debug("bootstrap dial failed")
		}
	}
}

// Run drives the station's cooperative event loop: schedule ticks, registry
// refreshes, and bootstrap dials, until ctx is cancelled.
func (s *Station) Run(ctx context.Context) error {
	go s.receiver.Run(ctx)

	scheduleTick := s.cfg.Intervals.ScheduleTick
	if scheduleTick <= 0 {
		scheduleTick = 750 * time.Millisecond
	}
	registryRefresh := s.cfg.Intervals.RegistryRefresh
	if registryRefresh <= 0 {
		registryRefresh = registry.TickInterval
	}
	bootstrapInterval := s.cfg.Intervals.Bootstrap
	if bootstrapInterval <= 0 {
		bootstrapInterval = 60 * time.Second
	}

	scheduleTicker := time.NewTicker(scheduleTick)
	registryTicker := time.NewTicker(registryRefresh)
	bootstrapTicker := time.NewTicker(bootstrapInterval)
	defer scheduleTicker.Stop()
	defer registryTicker.Stop()
	defer bootstrapTicker.Stop()

	s.bootstrapTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return s.transport.Close()
		case now := <-scheduleTicker.C:
			s.merged.Tick(now)
		case <-registryTicker.C:
			s.registry.Tick(ctx)
		case <-bootstrapTicker.C:
			s.bootstrapTick(ctx)
		}
	}
}
