package adherence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
)

type memPendingStore struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]*models.PendingResponse
}

func newMemPendingStore() *memPendingStore {
	return &memPendingStore{pending: make(map[int]*models.PendingResponse)}
}

func (s *memPendingStore) add(userID int64, medicationID int, scheduledAt time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.pending[s.nextID] = &models.PendingResponse{
		PendingID:    s.nextID,
		MedicationID: medicationID,
		UserID:       userID,
		ScheduledAt:  scheduledAt,
	}
	return s.nextID
}

func (s *memPendingStore) Create(ctx context.Context, p *models.PendingResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pending {
		if existing.MedicationID == p.MedicationID && existing.ScheduledAt.Equal(p.ScheduledAt) {
			p.PendingID = existing.PendingID
			return nil
		}
	}
	s.nextID++
	p.PendingID = s.nextID
	cp := *p
	s.pending[p.PendingID] = &cp
	return nil
}

func (s *memPendingStore) ListOverdue(ctx context.Context, userID int64, cutoff time.Time) ([]*models.PendingResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PendingResponse
	for _, p := range s.pending {
		if p.UserID == userID && p.ScheduledAt.Before(cutoff) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memPendingStore) Claim(ctx context.Context, pendingID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[pendingID]; !ok {
		return false, nil
	}
	delete(s.pending, pendingID)
	return true, nil
}

func (s *memPendingStore) Count(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.pending {
		if p.UserID == userID {
			count++
		}
	}
	return count, nil
}

func newTestDetector(grace time.Duration) (*Detector, *memPendingStore, *Ledger) {
	pending := newMemPendingStore()
	ledger := NewLedger(newMemStore(), zap.NewNop())
	return NewDetector(pending, ledger, grace, zap.NewNop()), pending, ledger
}

func TestDetector_SweepRecordsOverdue(t *testing.T) {
	ctx := context.Background()
	detector, pending, ledger := newTestDetector(time.Hour)

	now := time.Now()
	pending.add(42, 1, now.Add(-2*time.Hour))     // overdue
	pending.add(42, 2, now.Add(-90*time.Minute))  // overdue
	pending.add(42, 3, now.Add(-30*time.Minute))  // inside the grace window
	pending.add(99, 4, now.Add(-2*time.Hour))     // another user

	result, err := detector.Sweep(ctx, 42, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, result.AutoMissed)
	assert.Equal(t, 1, result.StillPending)

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Missed)

	// The other user's dose was not touched.
	rec, err = ledger.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Missed)
}

func TestDetector_SweepTwiceCountsOnce(t *testing.T) {
	ctx := context.Background()
	detector, pending, ledger := newTestDetector(time.Hour)

	now := time.Now()
	pending.add(42, 1, now.Add(-2*time.Hour))

	result, err := detector.Sweep(ctx, 42, now)
	require.NoError(t, err)
	assert.Len(t, result.AutoMissed, 1)

	result, err = detector.Sweep(ctx, 42, now)
	require.NoError(t, err)
	assert.Empty(t, result.AutoMissed)

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Missed)
}

func TestDetector_ClaimedByUserFirst(t *testing.T) {
	ctx := context.Background()
	detector, pending, ledger := newTestDetector(time.Hour)

	now := time.Now()
	id := pending.add(42, 1, now.Add(-2*time.Hour))

	// The user answered the reminder right before the sweep ran.
	claimed, err := pending.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	result, err := detector.Sweep(ctx, 42, now)
	require.NoError(t, err)
	assert.Empty(t, result.AutoMissed)

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Missed)
}

func TestDetector_GraceWindowBoundary(t *testing.T) {
	ctx := context.Background()
	detector, pending, _ := newTestDetector(time.Hour)

	now := time.Now()
	pending.add(42, 1, now.Add(-time.Hour)) // exactly at the cutoff, not yet overdue

	result, err := detector.Sweep(ctx, 42, now)
	require.NoError(t, err)
	assert.Empty(t, result.AutoMissed)
	assert.Equal(t, 1, result.StillPending)
}

// failPutStore fails writes on demand so the sweep's ledger-failure path
// can be exercised.
type failPutStore struct {
	*memStore
	fail bool
}

func (s *failPutStore) Put(ctx context.Context, rec *models.AdherenceRecord) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	return s.memStore.Put(ctx, rec)
}

func TestDetector_LedgerFailureKeepsDoseRecordable(t *testing.T) {
	ctx := context.Background()
	pending := newMemPendingStore()
	store := &failPutStore{memStore: newMemStore(), fail: true}
	ledger := NewLedger(store, zap.NewNop())
	detector := NewDetector(pending, ledger, time.Hour, zap.NewNop())

	now := time.Now()
	pending.add(42, 1, now.Add(-2*time.Hour))

	result, err := detector.Sweep(ctx, 42, now)
	require.Error(t, err)
	assert.Empty(t, result.AutoMissed)

	// The marker was put back, so the dose is still eligible.
	count, err := pending.Count(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Once the store recovers, the next sweep records the miss.
	store.fail = false
	result, err = detector.Sweep(ctx, 42, now)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, result.AutoMissed)

	rec, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Missed)
}

func TestDetector_DefaultGrace(t *testing.T) {
	detector, _, _ := newTestDetector(0)
	assert.Equal(t, DefaultGraceWindow, detector.grace)
}
