package backend

import (
	"context"

	"fiftythirty/internal/sheets"
	"fiftythirty/internal/state"
	"fiftythirty/internal/tracker"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult holds the snapshot store and the optional integrations.
// Notifier and Exporter are nil when not configured.
type BackendResult struct {
	Store    state.Store
	Notifier tracker.Notifier
	Exporter sheets.MonthExporter
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type BackendType

	StateFile    string
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// BackendType selects where the snapshot lives.
type BackendType string

const (
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (t BackendType) IsValid() bool {
	switch t {
	case FileBackend, SQLiteBackend, MemoryBackend:
		return true
	}
	return false
}

func (t BackendType) String() string { return string(t) }
