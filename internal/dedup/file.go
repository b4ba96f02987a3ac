package dedup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/firstissue/scout/internal/log"
)

// deliveredEntry records when an issue was pushed.
type deliveredEntry struct {
	DeliveredAt time.Time `json:"deliveredAt"`
}

// FileStore persists the seen-set as a JSON map on disk. Writes are
// serialized by the mutex; every MarkSeen is written through so a crash
// loses at most the delivery in flight.
type FileStore struct {
	path    string
	entries map[string]deliveredEntry
	mu      sync.RWMutex
}

// NewFileStore opens (or creates) the store under the user cache dir.
func NewFileStore() (*FileStore, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(cacheDir, "scout")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return NewFileStoreAt(filepath.Join(dir, "delivered.json"))
}

// NewFileStoreAt opens a store at an explicit path (used by tests and the
// --state-file flag).
func NewFileStoreAt(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		entries: make(map[string]deliveredEntry),
	}

	if err := s.load(); err != nil {
		log.Debug("could not load dedup store, starting fresh", "path", path, "error", err)
	}

	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, &s.entries)
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// HasSeen reports whether the key was already delivered.
func (s *FileStore) HasSeen(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.entries[key]
	return exists, nil
}

// MarkSeen records a delivery and writes through to disk.
func (s *FileStore) MarkSeen(_ context.Context, key string, deliveredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = deliveredEntry{DeliveredAt: deliveredAt}
	return s.save()
}

// Count returns the number of delivered issues on record.
func (s *FileStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries), nil
}

// Close flushes the store. The file is already written through on every
// MarkSeen, so this is a final safety save.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save()
}
