package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
)

type memDeviceStore struct {
	triggers map[string]*DeviceNotification
}

func newMemDeviceStore() *memDeviceStore {
	return &memDeviceStore{triggers: make(map[string]*DeviceNotification)}
}

func (s *memDeviceStore) Create(ctx context.Context, n *DeviceNotification) error {
	cp := *n
	s.triggers[n.Handle] = &cp
	return nil
}

func (s *memDeviceStore) Delete(ctx context.Context, handle string) error {
	delete(s.triggers, handle)
	return nil
}

func (s *memDeviceStore) ListCandidates(ctx context.Context) ([]*DeviceNotification, error) {
	out := make([]*DeviceNotification, 0, len(s.triggers))
	for _, n := range s.triggers {
		out = append(out, n)
	}
	return out, nil
}

func (s *memDeviceStore) MarkFired(ctx context.Context, handle string, firedOn time.Time) error {
	if n, ok := s.triggers[handle]; ok {
		d := firedOn
		n.LastFiredOn = &d
	}
	return nil
}

func TestTelegramPlatform_DueNow(t *testing.T) {
	ctx := context.Background()
	store := newMemDeviceStore()
	platform := NewTelegramPlatform(store, zap.NewNop())

	handle, err := platform.Schedule(ctx,
		Trigger{Weekday: time.Monday, Hour: 8, Minute: 0},
		Payload{MedicationID: 1, ChatID: 42, Message: "Aspirin", Timezone: "UTC"})
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	// 2026-08-31 is a Monday.
	monday := time.Date(2026, 8, 31, 7, 59, 0, 0, time.UTC)
	due, err := platform.DueNow(ctx, monday)
	require.NoError(t, err)
	assert.Empty(t, due, "before the scheduled time")

	due, err = platform.DueNow(ctx, monday.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, handle, due[0].Notification.Handle)
	assert.Equal(t, time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC), due[0].ScheduledAt)

	// Not marked fired yet, so the trigger stays due and a failed send
	// gets retried next tick.
	due, err = platform.DueNow(ctx, monday.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 1)

	require.NoError(t, platform.MarkFired(ctx, handle, monday.Add(2*time.Minute)))

	due, err = platform.DueNow(ctx, monday.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "fires at most once per day")

	// The following Monday it is due again.
	due, err = platform.DueNow(ctx, monday.AddDate(0, 0, 7).Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestTelegramPlatform_DueNowWrongWeekday(t *testing.T) {
	ctx := context.Background()
	store := newMemDeviceStore()
	platform := NewTelegramPlatform(store, zap.NewNop())

	_, err := platform.Schedule(ctx,
		Trigger{Weekday: time.Monday, Hour: 8},
		Payload{MedicationID: 1, Timezone: "UTC"})
	require.NoError(t, err)

	tuesday := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	due, err := platform.DueNow(ctx, tuesday)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTelegramPlatform_DueNowRespectsTimezone(t *testing.T) {
	ctx := context.Background()
	store := newMemDeviceStore()
	platform := NewTelegramPlatform(store, zap.NewNop())

	_, err := platform.Schedule(ctx,
		Trigger{Weekday: time.Monday, Hour: 8},
		Payload{MedicationID: 1, Timezone: "Asia/Taipei"})
	require.NoError(t, err)

	// 00:30 UTC Monday is 08:30 Monday in Taipei (UTC+8).
	now := time.Date(2026, 8, 31, 0, 30, 0, 0, time.UTC)
	due, err := platform.DueNow(ctx, now)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	// 23:30 UTC Sunday is 07:30 Monday in Taipei, not yet due.
	now = time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC)
	due, err = platform.DueNow(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTelegramPlatform_Cancel(t *testing.T) {
	ctx := context.Background()
	store := newMemDeviceStore()
	platform := NewTelegramPlatform(store, zap.NewNop())

	handle, err := platform.Schedule(ctx,
		Trigger{Weekday: time.Monday, Hour: 8},
		Payload{MedicationID: 1, Timezone: "UTC"})
	require.NoError(t, err)

	require.NoError(t, platform.Cancel(ctx, handle))
	assert.Empty(t, store.triggers)
}

func TestTelegramContactNotifier_NoLinkedChat(t *testing.T) {
	notifier := NewTelegramContactNotifier(nil, zap.NewNop())

	contact := models.EmergencyContact{Name: "Pat", Email: "pat@example.com"}
	err := notifier.Notify(context.Background(), contact, "Aspirin", 3)
	assert.ErrorIs(t, err, ErrContactUnreachable)
}
