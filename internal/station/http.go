package station

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/hmatuschek/vlfnet/internal/ident"
)

// writeJSON writes a JSON body with an explicit Content-Length so the
// overlay-stream transport never needs chunked encoding.
func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

// writeString writes a plain-text body with an explicit Content-Length.
func writeString(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// writeFile writes a 200 response with the raw bytes of a dataset file.
func writeFile(w http.ResponseWriter, raw []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// httpHandler builds the vlf::station HTTP surface: a fixed set of
// exact-match and prefix routes, each restricted to one HTTP method.
// Everything unmatched is 404.
func (s *Station) httpHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		body, err := s.statusJSON()
		if err != nil {
			writeString(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		ids := make([]ident.Identifier, 0, s.registry.NumKnown())
		for _, item := range s.registry.Known() {
			ids = append(ids, item.ID)
		}
		body, err := json.Marshal(ids)
		if err != nil {
			writeString(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("/schedule", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		body, err := s.scheduleJSON()
		if err != nil {
			writeString(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		body, err := s.store.CatalogJSON()
		if err != nil {
			writeString(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("/data/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		idStr := strings.TrimPrefix(r.URL.Path, "/data/")
		id, err := ident.Parse(idStr)
		if err != nil || !s.store.Contains(id) {
			http.NotFound(w, r)
			return
		}
		raw, err := os.ReadFile(s.store.Path(id))
		if err != nil {
			// File open failure (e.g. externally deleted after indexing) is
			// a 404, not a 500.
			http.NotFound(w, r)
			return
		}
		writeFile(w, raw)
	})

	mux.HandleFunc("/ctrl/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		// The control RPC itself is unimplemented: buffer the bounded body,
		// then always 404. Accepting only allowlisted peers requires the
		// overlay to surface the authenticated caller identity per request,
		// which this Transport/http.Handler boundary does not yet expose;
		// the allowlist is still loaded and sized here so wiring that check
		// in later is a one-line change, not a new subsystem.
		if r.ContentLength > 0 {
			io.CopyN(io.Discard, r.Body, r.ContentLength)
		}
		log.WithField("allowlist_size", len(s.controlAllowed)).Debug("rejecting unimplemented control request")
		http.NotFound(w, r)
	})

	return mux
}
