package query

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hmatuschek/vlfnet/internal/dataset"
	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/overlay"
	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

// rewriteTransport redirects every request onto a local httptest.Server,
// standing in for the overlay's authenticated HTTP-over-stream transport
// in tests.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

type fakeTransport struct {
	self   ident.Identifier
	peerID ident.Identifier
	srv    *httptest.Server
}

func (f *fakeTransport) Self() ident.Identifier { return f.self }

func (f *fakeTransport) FindNode(ctx context.Context, id ident.Identifier) (overlay.NodeAddr, error) {
	if id != f.peerID {
		return overlay.NodeAddr{}, errNotFound
	}
	return overlay.NodeAddr{ID: id, Endpoint: f.srv.URL}, nil
}

func (f *fakeTransport) DialHTTP(ctx context.Context, peer overlay.NodeAddr, appID string) (*http.Client, error) {
	u, _ := url.Parse(f.srv.URL)
	return &http.Client{Transport: rewriteTransport{target: u}}, nil
}

func (f *fakeTransport) Handle(appID string, handler http.Handler) error    { return nil }
func (f *fakeTransport) Connect(ctx context.Context, hostPort string) error { return nil }
func (f *fakeTransport) Broadcast(topic string, data []byte) error          { return nil }
func (f *fakeTransport) Subscribe(topic string, cb func(ident.Identifier, []byte)) error {
	return nil
}
func (f *fakeTransport) Close() error { return nil }

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

func idOf(b byte) ident.Identifier {
	var raw [ident.Size]byte
	raw[ident.Size-1] = b
	id, _ := ident.FromBytes(raw[:])
	return id
}

func TestStatusDecodesAndVerifiesID(t *testing.T) {
	peer := idOf(1)
	loc := geo.New(8.54, 47.37, 400)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		body, _ := json.Marshal(struct {
			ID          ident.Identifier `json:"id"`
			Location    geo.Location     `json:"location"`
			Description string           `json:"description"`
		}{ID: peer, Location: loc, Description: "zurich"})
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer srv.Close()

	tr := &fakeTransport{self: idOf(0), peerID: peer, srv: srv}
	res, err := Status(context.Background(), tr, peer)
	require.NoError(t, err)
	require.Equal(t, peer, res.ID)
	require.Equal(t, "zurich", res.Description)
	require.InDelta(t, 8.54, res.Location.Longitude(), 1e-6)
}

func TestStatusRejectsIDMismatch(t *testing.T) {
	peer := idOf(1)
	other := idOf(2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(struct {
			ID          ident.Identifier `json:"id"`
			Location    geo.Location     `json:"location"`
			Description string           `json:"description"`
		}{ID: other})
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer srv.Close()

	tr := &fakeTransport{self: idOf(0), peerID: peer, srv: srv}
	_, err := Status(context.Background(), tr, peer)
	require.Error(t, err)
}

func TestListDecodesIdentifierArray(t *testing.T) {
	peer := idOf(1)
	want := []ident.Identifier{idOf(2), idOf(3)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(want)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer srv.Close()

	tr := &fakeTransport{self: idOf(0), peerID: peer, srv: srv}
	got, err := List(context.Background(), tr, peer)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGetRejectsNonOKStatus(t *testing.T) {
	peer := idOf(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := &fakeTransport{self: idOf(0), peerID: peer, srv: srv}
	_, err := Status(context.Background(), tr, peer)
	require.Error(t, err)
}

func TestFindNodeFailureIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	tr := &fakeTransport{self: idOf(0), peerID: idOf(1), srv: srv}
	_, err := Status(context.Background(), tr, idOf(99))
	require.ErrorIs(t, err, vlferr.NotFound)
}

func TestFetchDatasetInsertsOnHashMatch(t *testing.T) {
	dir := t.TempDir()
	store, err := dataset.Open(dir)
	require.NoError(t, err)

	// The store only accepts well-formed dataset files, so serve one.
	var buf bytes.Buffer
	_, err = dataset.Write(&buf, time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC), 1000, 3,
		[]dataset.SeriesSpec{{Location: geo.New(1, 2, 3)}},
		func(i int) ([]int16, error) { return []int16{1, 2, 3}, nil })
	require.NoError(t, err)
	payload := buf.Bytes()
	id, err := ident.Sum(payload)
	require.NoError(t, err)

	peer := idOf(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/"+id.String(), r.URL.Path)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	tr := &fakeTransport{self: idOf(0), peerID: peer, srv: srv}
	err = FetchDataset(context.Background(), tr, peer, id, store)
	require.NoError(t, err)
	require.True(t, store.Contains(id))
}

func TestFetchDatasetRejectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := dataset.Open(dir)
	require.NoError(t, err)

	payload := []byte("mismatched body")
	claimed := idOf(42)

	peer := idOf(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	tr := &fakeTransport{self: idOf(0), peerID: peer, srv: srv}
	err = FetchDataset(context.Background(), tr, peer, claimed, store)
	require.Error(t, err)
	require.False(t, store.Contains(claimed))
}
