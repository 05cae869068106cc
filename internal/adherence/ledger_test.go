package adherence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	records map[int]models.AdherenceRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int]models.AdherenceRecord)}
}

func (s *memStore) Get(ctx context.Context, medicationID int) (*models.AdherenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[medicationID]
	if !ok {
		return &models.AdherenceRecord{MedicationID: medicationID}, nil
	}
	cp := rec
	return &cp, nil
}

func (s *memStore) Put(ctx context.Context, rec *models.AdherenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.MedicationID] = *rec
	return nil
}

func (s *memStore) Delete(ctx context.Context, medicationID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, medicationID)
	return nil
}

func newTestLedger() (*Ledger, *memStore) {
	store := newMemStore()
	return NewLedger(store, zap.NewNop()), store
}

func TestLedger_DefaultRecord(t *testing.T) {
	ledger, _ := newTestLedger()

	rec, err := ledger.Get(context.Background(), 123)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Taken)
	assert.Equal(t, 0, rec.Missed)
	assert.Equal(t, 0, rec.ConsecutiveMisses)
	assert.False(t, rec.PrevMiss)
}

func TestLedger_RecordTaken(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	require.NoError(t, ledger.RecordTaken(ctx, 1))
	require.NoError(t, ledger.RecordTaken(ctx, 1))

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Taken)
	assert.Equal(t, 0, rec.Missed)
	assert.Equal(t, 0, rec.ConsecutiveMisses)
	assert.False(t, rec.PrevMiss)
}

func TestLedger_MissStreak(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.RecordMissed(ctx, 1))
	}

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Taken)
	assert.Equal(t, 3, rec.Missed)
	assert.Equal(t, 3, rec.ConsecutiveMisses)
	assert.True(t, rec.PrevMiss)

	// A taken dose breaks the streak but keeps the miss total.
	require.NoError(t, ledger.RecordTaken(ctx, 1))

	rec, err = ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Taken)
	assert.Equal(t, 3, rec.Missed)
	assert.Equal(t, 0, rec.ConsecutiveMisses)
	assert.False(t, rec.PrevMiss)

	// The next miss starts a fresh streak of one.
	require.NoError(t, ledger.RecordMissed(ctx, 1))

	rec, err = ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Missed)
	assert.Equal(t, 1, rec.ConsecutiveMisses)
}

func TestLedger_CountersNeverDecrease(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	prevTaken, prevMissed := 0, 0
	events := []bool{true, false, false, true, false, true, true}
	for _, taken := range events {
		if taken {
			require.NoError(t, ledger.RecordTaken(ctx, 1))
		} else {
			require.NoError(t, ledger.RecordMissed(ctx, 1))
		}
		rec, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.Taken, prevTaken)
		assert.GreaterOrEqual(t, rec.Missed, prevMissed)
		prevTaken, prevMissed = rec.Taken, rec.Missed
	}

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Taken)
	assert.Equal(t, 3, rec.Missed)
	assert.Equal(t, len(events), rec.Total())
}

func TestLedger_ConcurrentRecording(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = ledger.RecordTaken(ctx, 1)
		}()
		go func() {
			defer wg.Done()
			_ = ledger.RecordMissed(ctx, 1)
		}()
	}
	wg.Wait()

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, n, rec.Taken)
	assert.Equal(t, n, rec.Missed)
	assert.Equal(t, 2*n, rec.Total())
}

func TestLedger_GetAdherence(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	require.NoError(t, ledger.RecordTaken(ctx, 1))
	require.NoError(t, ledger.RecordTaken(ctx, 1))
	require.NoError(t, ledger.RecordMissed(ctx, 2))

	records, err := ledger.GetAdherence(ctx, []int{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, 2, records[1].Taken)
	assert.Equal(t, 1, records[2].Missed)
	// Unknown id yields default counters, not an error.
	assert.Equal(t, 0, records[3].Total())
}

func TestLedger_Forget(t *testing.T) {
	ctx := context.Background()
	ledger, store := newTestLedger()

	require.NoError(t, ledger.RecordTaken(ctx, 1))
	require.NoError(t, ledger.Forget(ctx, 1))

	assert.Empty(t, store.records)

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Total())
}
