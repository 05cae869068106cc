package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rxline/rxline/internal/database"
	"github.com/rxline/rxline/internal/models"
)

// PendingResponseRepository implements adherence.PendingStore on Postgres.
type PendingResponseRepository struct {
	db *database.DB
}

func NewPendingResponseRepository(db *database.DB) *PendingResponseRepository {
	return &PendingResponseRepository{db: db}
}

// Create inserts the marker for a fired occurrence. Firing the same
// (medication, scheduled time) twice keeps the original marker and returns
// its id, so a retried delivery cannot double-book one occurrence.
func (r *PendingResponseRepository) Create(ctx context.Context, p *models.PendingResponse) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO pending_responses (medication_id, user_id, scheduled_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (medication_id, scheduled_at) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING pending_id, created_at`,
		p.MedicationID, p.UserID, p.ScheduledAt,
	).Scan(&p.PendingID, &p.CreatedAt)
}

func (r *PendingResponseRepository) GetByID(ctx context.Context, pendingID int) (*models.PendingResponse, error) {
	p := &models.PendingResponse{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT pending_id, medication_id, user_id, scheduled_at, created_at
		 FROM pending_responses WHERE pending_id = $1`,
		pendingID,
	).Scan(&p.PendingID, &p.MedicationID, &p.UserID, &p.ScheduledAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already claimed by a response or a sweep.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PendingResponseRepository) ListOverdue(ctx context.Context, userID int64, cutoff time.Time) ([]*models.PendingResponse, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT pending_id, medication_id, user_id, scheduled_at, created_at
		 FROM pending_responses WHERE user_id = $1 AND scheduled_at < $2
		 ORDER BY scheduled_at ASC`,
		userID, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*models.PendingResponse
	for rows.Next() {
		p := &models.PendingResponse{}
		if err := rows.Scan(&p.PendingID, &p.MedicationID, &p.UserID, &p.ScheduledAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// Claim deletes the marker and reports whether this caller removed it. The
// delete doubles as the dedupe step: of a user response and an auto-miss
// sweep racing, exactly one observes the row.
func (r *PendingResponseRepository) Claim(ctx context.Context, pendingID int) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM pending_responses WHERE pending_id = $1`,
		pendingID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PendingResponseRepository) Count(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_responses WHERE user_id = $1`,
		userID,
	).Scan(&count)
	return count, err
}

// ListUserIDs returns the distinct users that currently have pending
// responses, for the periodic sweep.
func (r *PendingResponseRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT user_id FROM pending_responses`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// DeleteByMedication clears markers when a medication is removed.
func (r *PendingResponseRepository) DeleteByMedication(ctx context.Context, medicationID int) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM pending_responses WHERE medication_id = $1`,
		medicationID,
	)
	return err
}
