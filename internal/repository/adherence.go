package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rxline/rxline/internal/database"
	"github.com/rxline/rxline/internal/models"
)

// AdherenceRepository implements adherence.Store on Postgres. The full-row
// upsert in Put keeps each write atomic; ordering of racing writers is the
// ledger's job.
type AdherenceRepository struct {
	db *database.DB
}

func NewAdherenceRepository(db *database.DB) *AdherenceRepository {
	return &AdherenceRepository{db: db}
}

// Get returns the record for a medication, or a zero-valued record when none
// has been written yet.
func (r *AdherenceRepository) Get(ctx context.Context, medicationID int) (*models.AdherenceRecord, error) {
	rec := &models.AdherenceRecord{MedicationID: medicationID}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT taken, missed, prev_miss, consecutive_misses, updated_at
		 FROM adherence_records WHERE medication_id = $1`,
		medicationID,
	).Scan(&rec.Taken, &rec.Missed, &rec.PrevMiss, &rec.ConsecutiveMisses, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *AdherenceRepository) Put(ctx context.Context, rec *models.AdherenceRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO adherence_records (medication_id, taken, missed, prev_miss, consecutive_misses, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (medication_id) DO UPDATE SET
			taken = EXCLUDED.taken,
			missed = EXCLUDED.missed,
			prev_miss = EXCLUDED.prev_miss,
			consecutive_misses = EXCLUDED.consecutive_misses,
			updated_at = EXCLUDED.updated_at`,
		rec.MedicationID, rec.Taken, rec.Missed, rec.PrevMiss, rec.ConsecutiveMisses, rec.UpdatedAt,
	)
	return err
}

func (r *AdherenceRepository) Delete(ctx context.Context, medicationID int) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM adherence_records WHERE medication_id = $1`,
		medicationID,
	)
	return err
}
