package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rxline/rxline/internal/database"
	"github.com/rxline/rxline/internal/notify"
	"github.com/rxline/rxline/internal/recurrence"
)

// HandleRepository implements notify.HandleStore on Postgres. The primary
// key on (medication, weekday, hour, minute) backs the registry's
// one-live-notification-per-tuple invariant.
type HandleRepository struct {
	db *database.DB
}

func NewHandleRepository(db *database.DB) *HandleRepository {
	return &HandleRepository{db: db}
}

func (r *HandleRepository) Get(ctx context.Context, medicationID int, occ recurrence.Occurrence) (string, error) {
	var handle string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT handle FROM notification_handles
		 WHERE medication_id = $1 AND weekday = $2 AND hour = $3 AND minute = $4`,
		medicationID, int(occ.Weekday), occ.Hour, occ.Minute,
	).Scan(&handle)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return handle, nil
}

func (r *HandleRepository) Put(ctx context.Context, medicationID int, occ recurrence.Occurrence, handle string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO notification_handles (medication_id, weekday, hour, minute, handle, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (medication_id, weekday, hour, minute) DO UPDATE SET
			handle = EXCLUDED.handle,
			created_at = EXCLUDED.created_at`,
		medicationID, int(occ.Weekday), occ.Hour, occ.Minute, handle, time.Now(),
	)
	return err
}

func (r *HandleRepository) ListByMedication(ctx context.Context, medicationID int) ([]notify.Registration, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT medication_id, weekday, hour, minute, handle FROM notification_handles
		 WHERE medication_id = $1 ORDER BY weekday, hour, minute`,
		medicationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []notify.Registration
	for rows.Next() {
		var reg notify.Registration
		var weekday int
		if err := rows.Scan(&reg.MedicationID, &weekday, &reg.Occurrence.Hour, &reg.Occurrence.Minute, &reg.Handle); err != nil {
			return nil, err
		}
		reg.Occurrence.Weekday = time.Weekday(weekday)
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *HandleRepository) Delete(ctx context.Context, handle string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM notification_handles WHERE handle = $1`,
		handle,
	)
	return err
}
