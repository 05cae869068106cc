package repository

import (
	"context"
	"time"

	"github.com/rxline/rxline/internal/database"
	"github.com/rxline/rxline/internal/notify"
)

// DeviceNotificationRepository implements notify.DeviceStore on Postgres.
type DeviceNotificationRepository struct {
	db *database.DB
}

func NewDeviceNotificationRepository(db *database.DB) *DeviceNotificationRepository {
	return &DeviceNotificationRepository{db: db}
}

func (r *DeviceNotificationRepository) Create(ctx context.Context, n *notify.DeviceNotification) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO device_notifications (handle, medication_id, chat_id, weekday, hour, minute, message, timezone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		n.Handle, n.MedicationID, n.ChatID, int(n.Weekday), n.Hour, n.Minute, n.Message, n.Timezone,
	).Scan(&n.CreatedAt)
}

func (r *DeviceNotificationRepository) Delete(ctx context.Context, handle string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM device_notifications WHERE handle = $1`,
		handle,
	)
	return err
}

// ListCandidates returns all live triggers. "Already fired today" cannot be
// decided here: each trigger's calendar day depends on its own timezone, so
// that filter lives with the caller which loads the zone.
func (r *DeviceNotificationRepository) ListCandidates(ctx context.Context) ([]*notify.DeviceNotification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT handle, medication_id, chat_id, weekday, hour, minute, message, timezone, last_fired_on, created_at
		 FROM device_notifications`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*notify.DeviceNotification
	for rows.Next() {
		n := &notify.DeviceNotification{}
		var weekday int
		if err := rows.Scan(&n.Handle, &n.MedicationID, &n.ChatID, &weekday, &n.Hour, &n.Minute,
			&n.Message, &n.Timezone, &n.LastFiredOn, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Weekday = time.Weekday(weekday)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *DeviceNotificationRepository) MarkFired(ctx context.Context, handle string, firedOn time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE device_notifications SET last_fired_on = $1 WHERE handle = $2`,
		firedOn, handle,
	)
	return err
}
