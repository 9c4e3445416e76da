package audit

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
)

// mockStorage копирует пачки: воркер переиспользует срез batch между flush.
type mockStorage struct {
	mu      sync.Mutex
	batches [][]JournalRecord
}

func (m *mockStorage) WriteBatch(_ context.Context, records []JournalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]JournalRecord, len(records))
	copy(cp, records)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func testJournalConfig() infra.JournalConfig {
	return infra.JournalConfig{
		BufferSize:    100,
		BatchSize:     10,
		FlushInterval: 20 * time.Millisecond,
	}
}

func TestJournalStopDrainsBuffer(t *testing.T) {
	storage := &mockStorage{}
	j := NewJournal(storage, testJournalConfig(), zap.NewNop())
	j.Start()

	for i := 0; i < 25; i++ {
		j.Record(JournalRecord{
			ID:          strconv.Itoa(i),
			AgreementID: "ag-1",
			Kind:        KindWarning,
		})
	}
	j.Stop()

	// Ни одна запись не потеряна при остановке.
	assert.Equal(t, 25, storage.total())
}

func TestJournalBatchesBySize(t *testing.T) {
	storage := &mockStorage{}
	cfg := testJournalConfig()
	cfg.FlushInterval = time.Hour // Исключаем flush по таймеру
	j := NewJournal(storage, cfg, zap.NewNop())
	j.Start()

	for i := 0; i < 10; i++ {
		j.Record(JournalRecord{ID: strconv.Itoa(i), Kind: KindCreated})
	}

	// Полная пачка уходит, не дожидаясь таймера.
	require.Eventually(t, func() bool { return storage.total() == 10 },
		time.Second, 5*time.Millisecond)

	j.Stop()
	storage.mu.Lock()
	defer storage.mu.Unlock()
	require.Len(t, storage.batches, 1)
	assert.Len(t, storage.batches[0], 10)
}

func TestJournalFlushesByTimer(t *testing.T) {
	storage := &mockStorage{}
	j := NewJournal(storage, testJournalConfig(), zap.NewNop())
	j.Start()
	defer j.Stop()

	j.Record(JournalRecord{ID: "1", Kind: KindExpired})

	// Одна запись меньше batch_size, но таймер ее дожимает.
	require.Eventually(t, func() bool { return storage.total() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestJournalRecordAfterStopDropped(t *testing.T) {
	storage := &mockStorage{}
	j := NewJournal(storage, testJournalConfig(), zap.NewNop())
	j.Start()
	j.Stop()

	assert.NotPanics(t, func() {
		j.Record(JournalRecord{ID: "late", Kind: KindRevoked})
	})
	assert.Equal(t, 0, storage.total())
}

func TestJournalStampsTimestamp(t *testing.T) {
	storage := &mockStorage{}
	j := NewJournal(storage, testJournalConfig(), zap.NewNop())
	j.Start()

	j.Record(JournalRecord{ID: "1", Kind: KindViolated})
	j.Stop()

	require.Equal(t, 1, storage.total())
	assert.False(t, storage.batches[0][0].Timestamp.IsZero())
}

func TestJournalLen(t *testing.T) {
	storage := &mockStorage{}
	cfg := testJournalConfig()
	cfg.FlushInterval = time.Hour
	j := NewJournal(storage, cfg, zap.NewNop())
	// Воркер не запущен: записи копятся в буфере.
	for i := 0; i < 5; i++ {
		j.Record(JournalRecord{ID: strconv.Itoa(i), Kind: KindCreated})
	}
	assert.Equal(t, 5, j.Len())
}
