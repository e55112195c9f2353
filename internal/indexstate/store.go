// Package indexstate persists per-file content hashes and the chunk ids
// they produced, the bookkeeping that makes reindexing incremental: a file
// whose hash hasn't changed since the last build is never reparsed, and a
// file that vanished from disk is swept along with its chunks.
package indexstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/codewright/codewright/internal/codechunk"
)

// errLockHeld means another live process holds the state-store lock.
var errLockHeld = errors.New("indexstate: store is locked by another process")

// FileRecord is the persisted bookkeeping row for one file.
type FileRecord struct {
	RelPath     string        `json:"rel_path"`
	ContentHash string        `json:"content_hash"`
	ChunkIDs    []codechunk.ID `json:"chunk_ids"`
}

// Store owns the FileRecord set and its on-disk form at <dir>/index_state.json.
// Writes are temp-then-rename; a .lock file (via gofrs/flock) detects and
// clears stale locks left by a crashed writer on startup.
type Store struct {
	mu      sync.RWMutex
	path    string
	lock    *flock.Flock
	records map[string]FileRecord
}

// Open loads (or initializes) the store rooted at stateDir, clearing any
// stale lock left by a process that crashed mid-write.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(stateDir, "index_state.json")
	lockPath := path + ".lock"

	lk := flock.New(lockPath)
	locked, err := lk.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		// Stale lock from a crashed writer: remove and retry once.
		_ = os.Remove(lockPath)
		if locked, err = lk.TryLock(); err != nil {
			return nil, err
		}
		if !locked {
			return nil, errLockHeld
		}
	}

	s := &Store{path: path, lock: lk, records: make(map[string]FileRecord)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the store's file lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var rows []FileRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		// Corruption: treat as empty, preserve the bad file for recovery.
		_ = os.Rename(s.path, s.path+".bak")
		return nil
	}
	for _, r := range rows {
		s.records[r.RelPath] = r
	}
	return nil
}

// flushLocked writes the current record set atomically (temp-then-rename).
// Caller must hold s.mu.
func (s *Store) flushLocked() error {
	rows := make([]FileRecord, 0, len(s.records))
	for _, r := range s.records {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RelPath < rows[j].RelPath })

	data, err := json.MarshalIndent(rows, "", "    ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// ContentHash returns the stable hash used to detect content changes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ChangedFiles returns paths among currentPaths whose stored hash differs
// from hashes (or that aren't stored at all).
func (s *Store) ChangedFiles(currentPaths []string, hashes map[string]string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var changed []string
	for _, p := range currentPaths {
		rec, ok := s.records[p]
		if !ok || rec.ContentHash != hashes[p] {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}

// StaleFiles returns stored paths absent from currentPaths.
func (s *Store) StaleFiles(currentPaths []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	present := make(map[string]bool, len(currentPaths))
	for _, p := range currentPaths {
		present[p] = true
	}
	var stale []string
	for p := range s.records {
		if !present[p] {
			stale = append(stale, p)
		}
	}
	sort.Strings(stale)
	return stale
}

// Record upserts a FileRecord and flushes the full set atomically.
func (s *Store) Record(path, contentHash string, chunkIDs []codechunk.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[path] = FileRecord{RelPath: path, ContentHash: contentHash, ChunkIDs: append([]codechunk.ID(nil), chunkIDs...)}
	return s.flushLocked()
}

// Forget removes path's record and returns the chunk ids it had, flushing
// the update atomically.
func (s *Store) Forget(path string) ([]codechunk.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[path]
	if !ok {
		return nil, nil
	}
	delete(s.records, path)
	if err := s.flushLocked(); err != nil {
		s.records[path] = rec
		return nil, err
	}
	return rec.ChunkIDs, nil
}

// Get returns the current record for path, if any.
func (s *Store) Get(path string) (FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[path]
	return r, ok
}

// Reset clears every record (used by build_index(force=true)).
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]FileRecord)
	return s.flushLocked()
}

// Len returns the number of currently tracked files.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// AllChunkIDs returns every chunk id across every tracked file, useful for
// sanity checks between the store and the vector store.
func (s *Store) AllChunkIDs() []codechunk.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []codechunk.ID
	for _, r := range s.records {
		out = append(out, r.ChunkIDs...)
	}
	return out
}
