package backend

import (
	"context"
	"errors"
	"fmt"

	"fiftythirty/internal/amqp"
	"fiftythirty/internal/log"
	gsheet "fiftythirty/internal/sheets/google"
	"fiftythirty/internal/state"
	"fiftythirty/internal/storage"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{logger: log.OrDiscard(logger).WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the store and the optional integrations. An AMQP
// broker that cannot be reached is logged and skipped; other failures
// release whatever was already opened.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &BackendResult{}
	var closers []CleanupFunc
	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	switch config.Type {
	case FileBackend:
		res.Store = state.NewFileStore(config.StateFile)
		f.logger.InfoContext(ctx, "Initialized file backend", log.FieldFile, config.StateFile)
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		res.Store = store
		closers = append(closers, store.Close)
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		res.Store = state.NewMemoryStore()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without overage publishing", log.FieldError, err)
		} else {
			res.Notifier = client
			closers = append(closers, client.Close)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	if config.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			SheetName:          config.GoogleSheetName,
			ServiceAccountFile: config.GoogleServiceAccountFile,
			ServiceAccountJSON: config.GoogleServiceAccountJSON,
		}, f.logger)
		if err != nil {
			_ = res.Cleanup()
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		res.Exporter = client
	}

	return res, nil
}
