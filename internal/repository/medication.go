package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rxline/rxline/internal/database"
	"github.com/rxline/rxline/internal/models"
)

const medicationColumns = `medication_id, user_id, name, dosage_amount, dosage_unit,
	purpose, directions, warnings, side_effects, start_date, end_date, frequency,
	reminder_enabled, reminder_times, reminder_days, deleted_at, created_at`

type MedicationRepository struct {
	db *database.DB
}

func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

func (r *MedicationRepository) Create(ctx context.Context, med *models.Medication) error {
	sideEffects, err := json.Marshal(med.SideEffects)
	if err != nil {
		return fmt.Errorf("failed to encode side effects: %w", err)
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO medications (user_id, name, dosage_amount, dosage_unit, purpose, directions,
			warnings, side_effects, start_date, end_date, frequency, reminder_enabled,
			reminder_times, reminder_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING medication_id, created_at`,
		med.UserID, med.Name, med.Dosage.Amount, med.Dosage.Unit, med.Purpose, med.Directions,
		med.Warnings, sideEffects, med.StartDate, med.EndDate, med.Frequency,
		med.Reminders.Enabled, med.Reminders.TimesString(), med.Reminders.WeekdaysString(),
	).Scan(&med.MedicationID, &med.CreatedAt)
}

// GetByID returns nil without error when no live medication has the id;
// absence is an expected case for callers resolving user input.
func (r *MedicationRepository) GetByID(ctx context.Context, medicationID int) (*models.Medication, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+medicationColumns+` FROM medications WHERE medication_id = $1 AND deleted_at IS NULL`,
		medicationID,
	)
	med, err := scanMedication(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return med, err
}

// GetForUser is GetByID scoped to the owning user, so one user can never
// address another user's medication.
func (r *MedicationRepository) GetForUser(ctx context.Context, medicationID int, userID int64) (*models.Medication, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+medicationColumns+` FROM medications
		 WHERE medication_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		medicationID, userID,
	)
	med, err := scanMedication(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return med, err
}

func (r *MedicationRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Medication, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+medicationColumns+` FROM medications
		 WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*models.Medication
	for rows.Next() {
		med, err := scanMedication(rows.Scan)
		if err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, rows.Err()
}

func (r *MedicationRepository) Update(ctx context.Context, med *models.Medication) error {
	sideEffects, err := json.Marshal(med.SideEffects)
	if err != nil {
		return fmt.Errorf("failed to encode side effects: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`UPDATE medications SET name = $1, dosage_amount = $2, dosage_unit = $3, purpose = $4,
			directions = $5, warnings = $6, side_effects = $7, start_date = $8, end_date = $9,
			frequency = $10, reminder_enabled = $11, reminder_times = $12, reminder_days = $13
		 WHERE medication_id = $14 AND user_id = $15 AND deleted_at IS NULL`,
		med.Name, med.Dosage.Amount, med.Dosage.Unit, med.Purpose, med.Directions, med.Warnings,
		sideEffects, med.StartDate, med.EndDate, med.Frequency, med.Reminders.Enabled,
		med.Reminders.TimesString(), med.Reminders.WeekdaysString(),
		med.MedicationID, med.UserID,
	)
	return err
}

// SoftDelete marks the medication deleted instead of removing the row. With
// the keep retention policy its adherence record stays addressable.
func (r *MedicationRepository) SoftDelete(ctx context.Context, medicationID int, userID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE medications SET deleted_at = $1 WHERE medication_id = $2 AND user_id = $3 AND deleted_at IS NULL`,
		time.Now(), medicationID, userID,
	)
	return err
}

func scanMedication(scan func(dest ...any) error) (*models.Medication, error) {
	med := &models.Medication{}
	var sideEffects []byte
	var times, days string
	if err := scan(&med.MedicationID, &med.UserID, &med.Name, &med.Dosage.Amount, &med.Dosage.Unit,
		&med.Purpose, &med.Directions, &med.Warnings, &sideEffects, &med.StartDate, &med.EndDate,
		&med.Frequency, &med.Reminders.Enabled, &times, &days, &med.DeletedAt, &med.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(sideEffects) > 0 {
		if err := json.Unmarshal(sideEffects, &med.SideEffects); err != nil {
			return nil, fmt.Errorf("failed to decode side effects: %w", err)
		}
	}
	var err error
	if med.Reminders.Times, err = models.ParseTimes(times); err != nil {
		return nil, fmt.Errorf("failed to parse reminder times: %w", err)
	}
	if med.Reminders.Weekdays, err = models.ParseWeekdays(days); err != nil {
		return nil, fmt.Errorf("failed to parse reminder days: %w", err)
	}
	return med, nil
}
