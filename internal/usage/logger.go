package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder accepts usage entries. Both Logger and NoopLogger implement it.
type Recorder interface {
	Write(entry *UsageEntry)
	Config() Config
	Close() error
}

// Logger writes usage entries asynchronously in batches. Entries queue in a
// bounded channel and a background goroutine flushes them to the store when
// BatchFlushThreshold is reached or FlushInterval elapses.
type Logger struct {
	store   UsageStore
	config  Config
	buffer  chan *UsageEntry
	done    chan struct{}
	wg      sync.WaitGroup
	writes  sync.WaitGroup // in-flight Write calls
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewLogger starts a Logger flushing to store.
func NewLogger(store UsageStore, cfg Config) *Logger {
	defaults := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	l := &Logger{
		store:  store,
		config: cfg,
		buffer: make(chan *UsageEntry, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues an entry without blocking. When the queue is full or the
// logger is closed the entry is dropped.
func (l *Logger) Write(entry *UsageEntry) {
	if entry == nil || l.closed.Load() {
		return
	}

	l.writes.Add(1)
	defer l.writes.Done()

	// Close may have started between the first check and Add.
	if l.closed.Load() {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		l.dropped.Add(1)
		slog.Warn("usage buffer full, dropping entry",
			"request_id", entry.RequestID,
			"provider", entry.Provider,
		)
	}
}

// Dropped returns the number of entries discarded because the queue was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close flushes queued entries and closes the store. It is idempotent.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	l.writes.Wait()
	close(l.done)
	l.wg.Wait()

	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*UsageEntry, 0, BatchFlushThreshold)
	flush := func() {
		if len(batch) > 0 {
			l.flushBatch(batch)
			batch = make([]*UsageEntry, 0, BatchFlushThreshold)
		}
	}

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-l.done:
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			flush()
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*UsageEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards entries; used when usage tracking is disabled.
type NoopLogger struct{}

func (NoopLogger) Write(*UsageEntry) {}

func (NoopLogger) Config() Config {
	return Config{Enabled: false}
}

func (NoopLogger) Close() error {
	return nil
}
