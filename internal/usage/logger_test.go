package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockStore implements UsageStore for testing
type mockStore struct {
	entries  []*UsageEntry
	mu       sync.Mutex
	closed   bool
	writeErr error
}

func (m *mockStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockStore) getEntries() []*UsageEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*UsageEntry, len(m.entries))
	copy(result, m.entries)
	return result
}

func TestLogger(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    100,
		FlushInterval: 50 * time.Millisecond,
	})

	for i := 0; i < 5; i++ {
		logger.Write(&UsageEntry{
			ID:           fmt.Sprintf("test-%d", i),
			RequestID:    fmt.Sprintf("req-%d", i),
			Model:        "gpt-4",
			Provider:     "openai",
			InputTokens:  100,
			OutputTokens: 50,
			TotalTokens:  150,
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(store.getEntries()) < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if entries := store.getEntries(); len(entries) != 5 {
		t.Errorf("expected 5 entries, got %d", len(entries))
	}

	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}
	if !store.closed {
		t.Error("store should be closed")
	}
}

func TestLoggerClose(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 1 * time.Hour, // flush is triggered by close
	})

	for i := 0; i < 10; i++ {
		logger.Write(&UsageEntry{ID: fmt.Sprintf("test-%d", i)})
	}

	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}
	if entries := store.getEntries(); len(entries) != 10 {
		t.Errorf("expected 10 entries after close, got %d", len(entries))
	}

	// Idempotent, and writes after close are ignored.
	if err := logger.Close(); err != nil {
		t.Errorf("second close error: %v", err)
	}
	logger.Write(&UsageEntry{ID: "late"})
	if entries := store.getEntries(); len(entries) != 10 {
		t.Errorf("expected 10 entries, got %d", len(entries))
	}
}

func TestLoggerBatchThreshold(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    BatchFlushThreshold * 2,
		FlushInterval: 1 * time.Hour,
	})
	defer logger.Close()

	for i := 0; i < BatchFlushThreshold; i++ {
		logger.Write(&UsageEntry{ID: fmt.Sprintf("test-%d", i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(store.getEntries()) < BatchFlushThreshold && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if entries := store.getEntries(); len(entries) != BatchFlushThreshold {
		t.Errorf("expected %d entries flushed by threshold, got %d", BatchFlushThreshold, len(entries))
	}
}

func TestLoggerWriteErrorDoesNotStop(t *testing.T) {
	store := &mockStore{writeErr: errors.New("disk full")}
	logger := NewLogger(store, Config{Enabled: true, BufferSize: 10, FlushInterval: time.Hour})

	logger.Write(&UsageEntry{ID: "a"})
	if err := logger.Close(); err != nil {
		t.Errorf("logger close error: %v", err)
	}
}

func TestLoggerBufferFull(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    2,
		FlushInterval: 1 * time.Hour,
	})
	defer logger.Close()

	// Must not block or panic; some entries may be dropped.
	for i := 0; i < 1000; i++ {
		logger.Write(&UsageEntry{ID: fmt.Sprintf("test-%d", i)})
	}
	if logger.Dropped() < 0 || logger.Dropped() > 1000 {
		t.Errorf("unexpected dropped count %d", logger.Dropped())
	}
}

func TestNoopLogger(t *testing.T) {
	var logger Recorder = NoopLogger{}

	logger.Write(&UsageEntry{ID: "test"})
	if logger.Config().Enabled {
		t.Error("NoopLogger should report disabled")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NoopLogger close error: %v", err)
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	logger := NewLogger(&mockStore{}, Config{Enabled: true})
	defer logger.Close()

	cfg := logger.Config()
	if cfg.BufferSize != DefaultConfig().BufferSize {
		t.Errorf("BufferSize = %d, want default", cfg.BufferSize)
	}
	if cfg.FlushInterval != DefaultConfig().FlushInterval {
		t.Errorf("FlushInterval = %v, want default", cfg.FlushInterval)
	}
}
