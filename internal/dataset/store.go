package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"

	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

var log = logrus.WithField("component", "dataset")

// Store is an on-disk, content-addressed directory of dataset files keyed
// by their Identifier: filename == id.String(). The full parsed-header
// index lives in memory, rebuilt by Reload and kept current by Insert.
type Store struct {
	dir string

	mu    sync.RWMutex
	index map[ident.Identifier]*File
}

// Dir returns the filesystem directory backing the store, so callers (e.g.
// the query layer's dataset downloads) can stage temp files alongside it
// for an atomic same-filesystem rename on insert.
func (s *Store) Dir() string { return s.dir }

// Open creates dir if needed and returns a Store backed by it. It does not
// scan the directory; call Reload for that.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vlferr.Wrap(vlferr.IoError, "create store dir %s: %v", dir, err)
	}
	return &Store{dir: dir, index: make(map[ident.Identifier]*File)}, nil
}

// Reload enumerates the directory and parses each file's header. Files that
// fail validation are skipped with a warning; the on-disk listing is the
// source of truth.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return vlferr.Wrap(vlferr.IoError, "read dir %s: %v", s.dir, err)
	}

	newIndex := make(map[ident.Identifier]*File, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := ident.Parse(e.Name())
		if err != nil {
			log.WithField("file", e.Name()).Warn("skipping non-identifier filename")
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		f, err := Load(path)
		if err != nil {
			log.WithError(err).WithField("file", e.Name()).Warn("skipping invalid dataset file")
			continue
		}
		newIndex[id] = f
	}

	s.mu.Lock()
	s.index = newIndex
	s.mu.Unlock()
	return nil
}

// Contains reports whether id is present in the in-memory index.
func (s *Store) Contains(id ident.Identifier) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Get returns the indexed File for id, if any.
func (s *Store) Get(id ident.Identifier) (*File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.index[id]
	return f, ok
}

// Path returns the on-disk path a dataset with id would have, whether or
// not it currently exists.
func (s *Store) Path(id ident.Identifier) string {
	return filepath.Join(s.dir, id.String())
}

// Insert atomically moves srcPath into the store under its content-derived
// name. It recomputes the hash over the final bytes and rejects the insert
// if it doesn't match claimedID. A duplicate insert (same id, so by
// construction the same bytes) is idempotent.
func (s *Store) Insert(srcPath string, claimedID ident.Identifier) error {
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return vlferr.Wrap(vlferr.IoError, "read %s: %v", srcPath, err)
	}
	actual, err := ident.Sum(raw)
	if err != nil {
		return err
	}
	if actual != claimedID {
		return vlferr.Wrap(vlferr.InvalidFormat, "hash mismatch: claimed %s, computed %s", claimedID, actual)
	}

	dest := s.Path(claimedID)
	if _, err := os.Stat(dest); err == nil {
		// Already present; same id implies same bytes.
		return os.Remove(srcPath)
	}

	if err := os.Rename(srcPath, dest); err != nil {
		return vlferr.Wrap(vlferr.IoError, "rename into store: %v", err)
	}

	f, err := Load(dest)
	if err != nil {
		// Shouldn't happen since Write/verification already validated the
		// bytes, but never publish an unreadable file into the index.
		_ = os.Remove(dest)
		return err
	}

	s.mu.Lock()
	s.index[claimedID] = f
	s.mu.Unlock()
	log.WithField("cid", logCID(claimedID)).Info("inserted dataset")
	return nil
}

// Catalog renders every indexed file's metadata keyed by base32(id).
func (s *Store) Catalog() (map[string]json.RawMessage, error) {
	s.mu.RLock()
	ids := make([]ident.Identifier, 0, len(s.index))
	files := make([]*File, 0, len(s.index))
	for id, f := range s.index {
		ids = append(ids, id)
		files = append(files, f)
	}
	s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(ids))
	for i, id := range ids {
		meta, err := files[i].MetadataJSON()
		if err != nil {
			return nil, fmt.Errorf("dataset: marshal metadata for %s: %w", id, err)
		}
		out[id.String()] = meta
	}
	return out, nil
}

// CatalogJSON renders Catalog as a single JSON object, as served by /data.
func (s *Store) CatalogJSON() ([]byte, error) {
	c, err := s.Catalog()
	if err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// logCID renders id as a self-describing CIDv1 string, purely for
// operator-facing log correlation with other content-addressed subsystems.
func logCID(id ident.Identifier) string {
	mh, err := multihash.Encode(id[:], multihash.SHA1)
	if err != nil {
		return id.String()
	}
	return cid.NewCidV1(cid.Raw, mh).String()
}
