// Package query implements the one-shot request/response exchanges a
// station issues against a peer's "vlf::station" HTTP service: resolve the
// peer through the overlay, dial an authenticated HTTP client, issue a
// single GET, and decode a typed result. Nothing here retries; a query
// either yields a result or a classified failure and is then forgotten.
package query

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hmatuschek/vlfnet/internal/dataset"
	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/overlay"
	"github.com/hmatuschek/vlfnet/internal/schedule"
	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

var log = logrus.WithField("component", "query")

// StatusResult is the decoded body of a peer's /status response.
type StatusResult struct {
	ID          ident.Identifier
	Location    geo.Location
	Description string
}

type statusWire struct {
	ID          ident.Identifier `json:"id"`
	Location    geo.Location     `json:"location"`
	Description string           `json:"description"`
}

// resolveAndDial runs the Resolve and Connect phases shared by every query:
// find the peer through the overlay, then open an authenticated HTTP
// client to its vlf::station service.
func resolveAndDial(ctx context.Context, t overlay.Transport, id ident.Identifier) (*http.Client, overlay.NodeAddr, error) {
	peer, err := t.FindNode(ctx, id)
	if err != nil {
		return nil, overlay.NodeAddr{}, vlferr.Wrap(vlferr.NotFound, "resolve %s: %v", id, err)
	}
	client, err := t.DialHTTP(ctx, peer, overlay.AppID)
	if err != nil {
		return nil, peer, fmt.Errorf("query: dial %s: %w", id, err)
	}
	return client, peer, nil
}

// get issues path against client and returns the body, requiring a
// Content-Length header on the response (no chunked transfer).
func get(ctx context.Context, client *http.Client, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://peer"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("query: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, vlferr.NewHttpNonOk(resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return nil, vlferr.Wrap(vlferr.InvalidFormat, "%s: missing Content-Length", path)
	}
	body := make([]byte, resp.ContentLength)
	if _, err := io.ReadFull(resp.Body, body); err != nil {
		return nil, vlferr.Wrap(vlferr.IoError, "%s: short read: %v", path, err)
	}
	return body, nil
}

// Status issues /status against id and verifies the peer answers as itself.
func Status(ctx context.Context, t overlay.Transport, id ident.Identifier) (StatusResult, error) {
	client, peer, err := resolveAndDial(ctx, t, id)
	if err != nil {
		return StatusResult{}, err
	}
	body, err := get(ctx, client, "/status")
	if err != nil {
		return StatusResult{}, err
	}
	var w statusWire
	if err := json.Unmarshal(body, &w); err != nil {
		return StatusResult{}, vlferr.Wrap(vlferr.InvalidFormat, "/status: decode: %v", err)
	}
	if w.ID != peer.ID {
		return StatusResult{}, vlferr.Wrap(vlferr.InvalidFormat, "/status: id mismatch, got %s want %s", w.ID, peer.ID)
	}
	return StatusResult{ID: w.ID, Location: w.Location, Description: w.Description}, nil
}

// List issues /list against id and decodes the known-station identifier
// array.
func List(ctx context.Context, t overlay.Transport, id ident.Identifier) ([]ident.Identifier, error) {
	client, _, err := resolveAndDial(ctx, t, id)
	if err != nil {
		return nil, err
	}
	body, err := get(ctx, client, "/list")
	if err != nil {
		return nil, err
	}
	var ids []ident.Identifier
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, vlferr.Wrap(vlferr.InvalidFormat, "/list: decode: %v", err)
	}
	return ids, nil
}

// Schedule issues /schedule against id and decodes the merged-schedule
// event array.
func Schedule(ctx context.Context, t overlay.Transport, id ident.Identifier) ([]schedule.Event, error) {
	client, _, err := resolveAndDial(ctx, t, id)
	if err != nil {
		return nil, err
	}
	body, err := get(ctx, client, "/schedule")
	if err != nil {
		return nil, err
	}
	var events []schedule.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, vlferr.Wrap(vlferr.InvalidFormat, "/schedule: decode: %v", err)
	}
	return events, nil
}

// Catalog issues /data against id and decodes the id -> metadata map.
func Catalog(ctx context.Context, t overlay.Transport, id ident.Identifier) (map[string]json.RawMessage, error) {
	client, _, err := resolveAndDial(ctx, t, id)
	if err != nil {
		return nil, err
	}
	body, err := get(ctx, client, "/data")
	if err != nil {
		return nil, err
	}
	var catalog map[string]json.RawMessage
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, vlferr.Wrap(vlferr.InvalidFormat, "/data: decode: %v", err)
	}
	return catalog, nil
}

// FetchDataset issues /data/<id> against peer, streams the response into a
// temp file in store's directory while hashing it, and on a hash match
// inserts the file into store. Any hash mismatch discards the temp file
// and leaves store unchanged.
func FetchDataset(ctx context.Context, t overlay.Transport, peer ident.Identifier, want ident.Identifier, store *dataset.Store) error {
	client, _, err := resolveAndDial(ctx, t, peer)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://peer/data/"+want.String(), nil)
	if err != nil {
		return fmt.Errorf("query: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("query: /data/%s: %w", want, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return vlferr.NewHttpNonOk(resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return vlferr.Wrap(vlferr.InvalidFormat, "/data/%s: missing Content-Length", want)
	}

	tmp, err := os.CreateTemp(store.Dir(), "download-*.tmp")
	if err != nil {
		return vlferr.Wrap(vlferr.IoError, "create temp file: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := sha1.New()
	hashed := io.TeeReader(io.LimitReader(resp.Body, resp.ContentLength), h)
	written, err := io.Copy(tmp, hashed)
	closeErr := tmp.Close()
	if err != nil {
		return vlferr.Wrap(vlferr.IoError, "/data/%s: short read: %v", want, err)
	}
	if closeErr != nil {
		return vlferr.Wrap(vlferr.IoError, "/data/%s: close temp file: %v", want, closeErr)
	}
	if written != resp.ContentLength {
		return vlferr.Wrap(vlferr.InvalidFormat, "/data/%s: truncated body", want)
	}

	got, err := ident.FromBytes(h.Sum(nil))
	if err != nil {
		return vlferr.Wrap(vlferr.InvalidFormat, "/data/%s: %v", want, err)
	}
	if !got.Equal(want) {
		log.WithFields(logrus.Fields{"want": want, "got": got}).Warn("dataset hash mismatch, discarding download")
		return vlferr.Wrap(vlferr.InvalidFormat, "/data/%s: hash mismatch", want)
	}

	if err := store.Insert(tmpPath, want); err != nil {
		return err
	}
	return nil
}
