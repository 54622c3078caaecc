package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ledgerColumns is the insert column order of dispatch_usage.
var ledgerColumns = []string{
	"id", "request_id", "timestamp", "provider", "model", "result_model",
	"outcome", "latency_ms", "input_tokens", "output_tokens", "total_tokens",
}

// maxEntriesPerBatch keeps one INSERT under SQLite's 999 bound parameters.
const maxEntriesPerBatch = 999 / 11

// sqliteTimeFormat is fixed width so TEXT timestamps compare in time order.
const sqliteTimeFormat = "2006-01-02 15:04:05.000000000"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// rowScanner is satisfied by *sql.Rows and pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// sqlDialect is what differs between the SQLite and PostgreSQL ledgers.
type sqlDialect struct {
	name     string
	builder  sq.StatementBuilderType
	timeType string
	bindTime func(time.Time) any
	// insert adds the dialect's skip-on-duplicate clause.
	insert func(sq.InsertBuilder) sq.InsertBuilder
	exec   func(ctx context.Context, query string, args ...any) (int64, error)
	query  func(ctx context.Context, query string, args ...any) (rowScanner, func(), error)
}

// SQLStore is the dispatch ledger on SQLite or PostgreSQL. It implements
// both UsageStore and UsageReader.
type SQLStore struct {
	dialect   sqlDialect
	retention *retention
}

// NewSQLiteStore creates the ledger table in db and starts retention cleanup.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return newSQLStore(context.Background(), sqlDialect{
		name:     "sqlite",
		builder:  sq.StatementBuilder,
		timeType: "TEXT",
		bindTime: func(t time.Time) any { return t.UTC().Format(sqliteTimeFormat) },
		insert:   func(b sq.InsertBuilder) sq.InsertBuilder { return b.Options("OR IGNORE") },
		exec: func(ctx context.Context, query string, args ...any) (int64, error) {
			res, err := db.ExecContext(ctx, query, args...)
			if err != nil {
				return 0, err
			}
			return res.RowsAffected()
		},
		query: func(ctx context.Context, query string, args ...any) (rowScanner, func(), error) {
			rows, err := db.QueryContext(ctx, query, args...)
			if err != nil {
				return nil, nil, err
			}
			return rows, func() { _ = rows.Close() }, nil
		},
	}, retentionDays)
}

// NewPostgreSQLStore creates the ledger table through pool and starts
// retention cleanup.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (*SQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return newSQLStore(ctx, sqlDialect{
		name:     "postgresql",
		builder:  psql,
		timeType: "TIMESTAMPTZ",
		bindTime: func(t time.Time) any { return t.UTC() },
		insert:   func(b sq.InsertBuilder) sq.InsertBuilder { return b.Suffix("ON CONFLICT (id) DO NOTHING") },
		exec: func(ctx context.Context, query string, args ...any) (int64, error) {
			tag, err := pool.Exec(ctx, query, args...)
			if err != nil {
				return 0, err
			}
			return tag.RowsAffected(), nil
		},
		query: func(ctx context.Context, query string, args ...any) (rowScanner, func(), error) {
			rows, err := pool.Query(ctx, query, args...)
			if err != nil {
				return nil, nil, err
			}
			return rows, rows.Close, nil
		},
	}, retentionDays)
}

func newSQLStore(ctx context.Context, d sqlDialect, retentionDays int) (*SQLStore, error) {
	for _, stmt := range ledgerSchema(d.timeType) {
		if _, err := d.exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s ledger schema: %w", d.name, err)
		}
	}
	s := &SQLStore{dialect: d}
	s.retention = newRetention(retentionDays, s.purge)
	return s, nil
}

func ledgerSchema(timeType string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			timestamp ` + timeType + ` NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			result_model TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_usage_provider_ts ON ` + tableName + `(provider, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_usage_request_id ON ` + tableName + `(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatch_usage_outcome ON ` + tableName + `(outcome)`,
	}
}

// WriteBatch inserts entries in chunks of maxEntriesPerBatch. Entries whose
// ID already exists are skipped.
func (s *SQLStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	for start := 0; start < len(entries); start += maxEntriesPerBatch {
		end := min(start+maxEntriesPerBatch, len(entries))
		if err := s.insertChunk(ctx, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) insertChunk(ctx context.Context, chunk []*UsageEntry) error {
	b := s.dialect.builder.Insert(tableName).Columns(ledgerColumns...)
	for _, e := range chunk {
		b = b.Values(
			e.ID, e.RequestID, s.dialect.bindTime(e.Timestamp), e.Provider, e.Model, e.ResultModel,
			e.Outcome, e.LatencyMs, e.InputTokens, e.OutputTokens, e.TotalTokens,
		)
	}
	query, args, err := s.dialect.insert(b).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build ledger insert: %w", err)
	}
	if _, err := s.dialect.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %d ledger entries: %w", len(chunk), err)
	}
	return nil
}

// GetSummary aggregates the ledger per provider.
func (s *SQLStore) GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error) {
	query, args, err := summaryQuery(s.dialect.builder, params, s.dialect.bindTime)
	if err != nil {
		return nil, fmt.Errorf("failed to build summary query: %w", err)
	}

	rows, closeRows, err := s.dialect.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer closeRows()

	var providers []ProviderUsage
	for rows.Next() {
		var p ProviderUsage
		if err := rows.Scan(&p.Provider, &p.Requests, &p.Failures, &p.InputTokens, &p.OutputTokens, &p.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage summary: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage summary: %w", err)
	}
	return newSummary(providers), nil
}

func summaryQuery(builder sq.StatementBuilderType, params UsageQueryParams, bindTime func(time.Time) any) (string, []any, error) {
	q := builder.Select(
		"provider",
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN outcome = '"+OutcomeSuccess+"' THEN 0 ELSE 1 END), 0)",
		"COALESCE(SUM(input_tokens), 0)",
		"COALESCE(SUM(output_tokens), 0)",
		"COALESCE(SUM(total_tokens), 0)",
	).From(tableName)

	start, end := dayBounds(params)
	if !start.IsZero() {
		q = q.Where(sq.GtOrEq{"timestamp": bindTime(start)})
	}
	if !end.IsZero() {
		q = q.Where(sq.Lt{"timestamp": bindTime(end)})
	}
	if params.Provider != "" {
		q = q.Where(sq.Eq{"provider": params.Provider})
	}
	return q.GroupBy("provider").OrderBy("provider").ToSql()
}

// purge deletes entries older than cutoff.
func (s *SQLStore) purge(cutoff time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query, args, err := s.dialect.builder.Delete(tableName).
		Where(sq.Lt{"timestamp": s.dialect.bindTime(cutoff)}).ToSql()
	if err != nil {
		slog.Error("failed to build ledger cleanup", "error", err)
		return
	}
	deleted, err := s.dialect.exec(ctx, query, args...)
	if err != nil {
		slog.Error("failed to clean up old ledger entries", "backend", s.dialect.name, "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("cleaned up old ledger entries", "backend", s.dialect.name, "deleted", deleted)
	}
}

// Close stops retention cleanup. The connection belongs to storage.Conn.
func (s *SQLStore) Close() error {
	s.retention.stop()
	return nil
}
