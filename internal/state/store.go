package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fiftythirty/internal/log"
)

// Store loads and saves whole snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// LoadOrDefault loads the snapshot and runs the legacy upgrade. Any failure,
// including a missing or corrupt file, is logged and yields Default().
func LoadOrDefault(ctx context.Context, store Store, logger *log.Logger) Snapshot {
	logger = log.OrDiscard(logger)
	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.InfoContext(ctx, "No saved state, starting empty", log.FieldOperation, log.OpLoad)
		return Default()
	case err != nil:
		logger.WarnContext(ctx, "Failed to load state, starting empty", log.FieldOperation, log.OpLoad, log.FieldError, err)
		return Default()
	}
	if snap.Upgrade() {
		logger.InfoContext(ctx, "Migrated legacy monthly income", log.FieldMonth, snap.LegacyIncomeMonth.Format("2006-01"))
	}
	if err := snap.Ratios.Validate(); err != nil {
		logger.WarnContext(ctx, "Stored ratios are invalid, using defaults", log.FieldError, err)
		snap.Ratios = Default().Ratios
	}
	logger.DebugContext(ctx, "State loaded", log.FieldCount, len(snap.Expenses))
	return snap
}

// SaveBestEffort saves s and only logs a failure.
func SaveBestEffort(ctx context.Context, store Store, s Snapshot, logger *log.Logger) {
	if err := store.Save(ctx, s); err != nil {
		log.OrDiscard(logger).ErrorContext(ctx, "Failed to save state", log.FieldOperation, log.OpSave, log.FieldError, err)
	}
}

// FileStore keeps the snapshot as an indented JSON document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

// Load reads and decodes the file. A missing file returns an error wrapping
// os.ErrNotExist.
func (f *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read state file: %w", err)
	}
	return Decode(data)
}

// Save writes to a temp file next to the target and renames it into place.
func (f *FileStore) Save(ctx context.Context, s Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// MemoryStore keeps a copy of the last saved snapshot.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return Snapshot{}, os.ErrNotExist
	}
	return m.snap.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	m.snap = &c
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
