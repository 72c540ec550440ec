// Package overlay defines the contract the station service consumes from
// the peer-to-peer overlay network (node identifiers, authenticated byte
// streams, search-by-identifier, HTTP-over-authenticated-stream). The
// concrete overlay implementation is swappable; this package is the thin,
// testable boundary between it and the station core.
package overlay

import (
	"context"
	"net"
	"net/http"

	"github.com/hmatuschek/vlfnet/internal/ident"
)

// NodeAddr pairs a peer's Identifier with its dialable endpoint string.
type NodeAddr struct {
	ID       ident.Identifier
	Endpoint string
}

// AppID is the application-level protocol tag stations register their
// HTTP handler under.
const AppID = "vlf::station"

// Transport is the overlay capability the station core depends on: find a
// peer by identifier, dial an authenticated HTTP client to it, and serve
// inbound HTTP requests under this station's own identity.
type Transport interface {
	// Self returns this station's own node identifier.
	Self() ident.Identifier

	// FindNode resolves id to a connectable NodeAddr, or returns a
	// NotFound-flavored error if the overlay's search yields no match.
	FindNode(ctx context.Context, id ident.Identifier) (NodeAddr, error)

	// DialHTTP opens an authenticated HTTP client connection to peer under
	// appID, ready to issue requests against the peer's registered handler.
	DialHTTP(ctx context.Context, peer NodeAddr, appID string) (*http.Client, error)

	// Handle registers the HTTP handler this station serves under appID.
	// Inbound connections authenticate as part of the overlay's stream
	// handshake before any request reaches handler.
	Handle(appID string, handler http.Handler) error

	// Connect dials a bootstrap peer given as a bare host:port, growing
	// the overlay's own peer connectivity (not the station-level registry).
	Connect(ctx context.Context, hostPort string) error

	// Broadcast publishes data on a gossip topic to every subscribed peer
	// this node is connected to. Used to fan candidate-station hints out
	// across the overlay without a central directory.
	Broadcast(topic string, data []byte) error

	// Subscribe delivers every message published on topic (including by
	// peers that joined after the call) to cb, tagged with the
	// publishing peer's Identifier.
	Subscribe(topic string, cb func(from ident.Identifier, data []byte)) error

	// Close shuts down the transport and all registered handlers.
	Close() error
}

// ParseHostPort is a small helper shared by bootstrap and query code to
// validate "host:port" pairs before handing them to a Transport.
func ParseHostPort(hostPort string) (host, port string, err error) {
	return net.SplitHostPort(hostPort)
}
