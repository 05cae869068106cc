package notify

import (
	"context"
	"time"
)

// Trigger describes when a platform notification fires: weekly, on one
// weekday, at one time of day, in the owner's timezone.
type Trigger struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

// Payload is what the platform delivers and echoes back when the user
// responds to a fired notification. Timezone names the IANA zone the
// trigger's time-of-day is interpreted in.
type Payload struct {
	MedicationID int
	ChatID       int64
	Message      string
	Timezone     string
}

// Platform is the device notification service. Schedule returns an opaque
// handle used to cancel the notification later. Implementations own their
// own retry/timeout behavior; the registry only requires that a call either
// succeeds or reports failure.
type Platform interface {
	Schedule(ctx context.Context, trigger Trigger, payload Payload) (string, error)
	Cancel(ctx context.Context, handle string) error
}

// DeviceNotification is one live trigger held by the platform. LastFiredOn
// keeps a weekly trigger from firing twice on the same calendar day.
type DeviceNotification struct {
	Handle       string
	MedicationID int
	ChatID       int64
	Weekday      time.Weekday
	Hour         int
	Minute       int
	Message      string
	Timezone     string
	LastFiredOn  *time.Time
	CreatedAt    time.Time
}

// Due pairs a trigger that should fire now with the concrete local instant
// it was scheduled for.
type Due struct {
	Notification *DeviceNotification
	ScheduledAt  time.Time
}
