package adherence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
)

// Store persists adherence records. Get returns a zero-valued record (all
// counters zero, PrevMiss false) for a medication with no record yet;
// absence is the default case, not an error.
type Store interface {
	Get(ctx context.Context, medicationID int) (*models.AdherenceRecord, error)
	Put(ctx context.Context, rec *models.AdherenceRecord) error
	Delete(ctx context.Context, medicationID int) error
}

// Ledger maintains the per-medication taken/missed counters and the
// consecutive-miss streak. Every mutation is a read-modify-write serialized
// per medication id, so a detector sweep and a user tap racing on the same
// medication cannot lose updates.
type Ledger struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		locks:  make(map[int]*sync.Mutex),
	}
}

func (l *Ledger) lockFor(medicationID int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[medicationID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[medicationID] = m
	}
	return m
}

// RecordTaken creates the record if absent, increments taken, and resets the
// miss streak. A store failure is returned as-is: adherence counts are
// medically meaningful, so a lost write must be visible to the caller.
func (l *Ledger) RecordTaken(ctx context.Context, medicationID int) error {
	m := l.lockFor(medicationID)
	m.Lock()
	defer m.Unlock()

	rec, err := l.store.Get(ctx, medicationID)
	if err != nil {
		return fmt.Errorf("failed to load adherence record for medication %d: %w", medicationID, err)
	}
	rec.MedicationID = medicationID
	rec.Taken++
	rec.PrevMiss = false
	rec.ConsecutiveMisses = 0
	rec.UpdatedAt = time.Now()

	if err := l.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save adherence record for medication %d: %w", medicationID, err)
	}
	return nil
}

// RecordMissed creates the record if absent and increments missed. The
// streak grows by one only when the previous event was also a miss;
// otherwise this is the first miss of a new streak.
func (l *Ledger) RecordMissed(ctx context.Context, medicationID int) error {
	m := l.lockFor(medicationID)
	m.Lock()
	defer m.Unlock()

	rec, err := l.store.Get(ctx, medicationID)
	if err != nil {
		return fmt.Errorf("failed to load adherence record for medication %d: %w", medicationID, err)
	}
	rec.MedicationID = medicationID
	rec.Missed++
	if rec.PrevMiss {
		rec.ConsecutiveMisses++
	} else {
		rec.ConsecutiveMisses = 1
	}
	rec.PrevMiss = true
	rec.UpdatedAt = time.Now()

	if err := l.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save adherence record for medication %d: %w", medicationID, err)
	}
	return nil
}

// Get returns the current record for one medication.
func (l *Ledger) Get(ctx context.Context, medicationID int) (*models.AdherenceRecord, error) {
	return l.store.Get(ctx, medicationID)
}

// GetAdherence returns a record per requested id, one lookup each. Ids with
// no record come back with default-zero counters rather than failing the
// whole call.
func (l *Ledger) GetAdherence(ctx context.Context, medicationIDs []int) (map[int]*models.AdherenceRecord, error) {
	records := make(map[int]*models.AdherenceRecord, len(medicationIDs))
	for _, id := range medicationIDs {
		rec, err := l.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load adherence record for medication %d: %w", id, err)
		}
		records[id] = rec
	}
	return records, nil
}

// Forget deletes the record for a medication. Called on medication delete
// only when the retention policy is set to cascade.
func (l *Ledger) Forget(ctx context.Context, medicationID int) error {
	m := l.lockFor(medicationID)
	m.Lock()
	defer m.Unlock()
	return l.store.Delete(ctx, medicationID)
}
