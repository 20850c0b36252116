package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Registry owns one Store per user, per spec.md §4.A "Per-user storage
// registry": STORAGE_PATH/user_<user_id>.db (STORAGE_PATH/shared.db for an
// empty user id) is created on first access and kept open for the life of
// the process.
type Registry struct {
	basePath string
	log      zerolog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry builds a registry rooted at basePath (STORAGE_PATH).
func NewRegistry(basePath string, log zerolog.Logger) *Registry {
	return &Registry{
		basePath: basePath,
		log:      log.With().Str("component", "store_registry").Logger(),
		stores:   make(map[string]*Store),
	}
}

// pathFor maps a user id to its database file, per spec.md §4.A:
// "<base>/user_<user_id>.db"; legacy single-user path is "<base>/shared.db".
func (r *Registry) pathFor(userID string) string {
	if userID == "" {
		return filepath.Join(r.basePath, "shared.db")
	}
	return filepath.Join(r.basePath, "user_"+userID+".db")
}

// Get opens (or returns the already-open) store for userID.
func (r *Registry) Get(userID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[userID]; ok {
		return s, nil
	}

	s, err := Open(r.pathFor(userID), userID, r.log)
	if err != nil {
		return nil, fmt.Errorf("open store for user %s: %w", userID, err)
	}
	r.stores[userID] = s
	r.log.Info().Str("user_id", userID).Msg("opened user store")
	return s, nil
}

// Exists reports whether a database file for userID is already on disk,
// without opening it.
func (r *Registry) Exists(userID string) bool {
	_, err := os.Stat(r.pathFor(userID))
	return err == nil
}

// Delete closes (if open) and removes a user's database file and its WAL
// sidecar files. This is destructive and is only reached from an explicit
// user-initiated account deletion, per spec.md §4.A.
func (r *Registry) Delete(userID string) error {
	r.mu.Lock()
	s, open := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()

	if open {
		if err := s.Close(); err != nil {
			return fmt.Errorf("close store before delete: %w", err)
		}
	}

	path := r.pathFor(userID)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path+suffix, err)
		}
	}
	return nil
}

// List returns the user IDs with a database file on disk.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read storage path: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".db" || name == "shared.db" {
			continue
		}
		stem := name[:len(name)-len(".db")]
		if strings.HasPrefix(stem, "user_") {
			ids = append(ids, strings.TrimPrefix(stem, "user_"))
		}
	}
	return ids, nil
}

// CloseAll closes every currently open store, used on graceful shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for userID, s := range r.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store for user %s: %w", userID, err)
		}
	}
	r.stores = make(map[string]*Store)
	return firstErr
}

// WaitForIdleAll blocks until every open store is idle, used by tests and by
// graceful shutdown before CloseAll.
func (r *Registry) WaitForIdleAll(ctx context.Context) {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.WaitForIdle()
	}
}
