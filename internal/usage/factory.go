package usage

import (
	"context"
	"errors"
	"fmt"

	"chatgate/internal/storage"
)

// Result holds the ledger recorder, its reader and the connection they
// share. The caller must call Close during shutdown.
type Result struct {
	Logger  Recorder
	Reader  UsageReader
	Storage *storage.Conn
}

// Close flushes the logger and closes the connection it owns. Safe to call
// multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	return errors.Join(errs...)
}

// New opens storage and builds the ledger logger and reader. When cfg is
// disabled it returns a NoopLogger, a nil Reader and no connection.
func New(ctx context.Context, cfg Config, storageCfg storage.Config) (*Result, error) {
	if !cfg.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}

	conn, err := storage.Open(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	result, err := NewWithStorage(ctx, cfg, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	result.Storage = conn
	return result, nil
}

// ledgerStore is a backend that both records and summarizes.
type ledgerStore interface {
	UsageStore
	UsageReader
}

// NewWithStorage builds the logger and reader on an open connection.
// The returned Result does not own conn.
func NewWithStorage(ctx context.Context, cfg Config, conn *storage.Conn) (*Result, error) {
	if conn == nil {
		return nil, fmt.Errorf("storage is required when usage tracking is enabled")
	}

	store, err := openLedger(ctx, conn, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	return &Result{
		Logger: NewLogger(store, cfg),
		Reader: store,
	}, nil
}

func openLedger(ctx context.Context, conn *storage.Conn, retentionDays int) (ledgerStore, error) {
	switch conn.Type {
	case storage.TypeSQLite:
		return NewSQLiteStore(conn.SQL, retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, conn.Pool, retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, conn.Mongo, retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", conn.Type)
	}
}
