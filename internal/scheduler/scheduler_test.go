package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
	"github.com/rxline/rxline/internal/notify"
)

type fakePlatform struct {
	due       []notify.Due
	fired     []string
	cancelled []string
}

func (f *fakePlatform) DueNow(ctx context.Context, now time.Time) ([]notify.Due, error) {
	return f.due, nil
}

func (f *fakePlatform) MarkFired(ctx context.Context, handle string, firedOn time.Time) error {
	f.fired = append(f.fired, handle)
	return nil
}

func (f *fakePlatform) Cancel(ctx context.Context, handle string) error {
	f.cancelled = append(f.cancelled, handle)
	return nil
}

type fakeMessenger struct {
	reminders []int
	failSend  bool
}

func (f *fakeMessenger) SendDoseReminder(chatID int64, message string, pendingID int) error {
	if f.failSend {
		return errors.New("telegram unavailable")
	}
	f.reminders = append(f.reminders, pendingID)
	return nil
}

func (f *fakeMessenger) SendText(chatID int64, text string) error { return nil }

type fakeMedStore struct {
	meds map[int]*models.Medication
}

func (f *fakeMedStore) GetByID(ctx context.Context, medicationID int) (*models.Medication, error) {
	return f.meds[medicationID], nil
}

type fakePendingStore struct {
	created []*models.PendingResponse
	nextID  int
}

func (f *fakePendingStore) Create(ctx context.Context, p *models.PendingResponse) error {
	f.nextID++
	p.PendingID = f.nextID
	f.created = append(f.created, p)
	return nil
}

func (f *fakePendingStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	return nil, nil
}

func dueAt(handle string, medicationID int, chatID int64, at time.Time) notify.Due {
	return notify.Due{
		Notification: &notify.DeviceNotification{
			Handle:       handle,
			MedicationID: medicationID,
			ChatID:       chatID,
			Message:      "Time to take your medication.",
		},
		ScheduledAt: at,
	}
}

func TestScheduler_FireDueCancelsEndedCourses(t *testing.T) {
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	ended := now.AddDate(0, 0, -3)
	meds := &fakeMedStore{meds: map[int]*models.Medication{
		1: {MedicationID: 1, UserID: 42, Name: "Aspirin", StartDate: now.AddDate(0, -1, 0)},
		2: {MedicationID: 2, UserID: 42, Name: "Amoxicillin", StartDate: now.AddDate(0, -1, 0), EndDate: &ended},
	}}
	platform := &fakePlatform{due: []notify.Due{
		dueAt("h-active", 1, 42, now),
		dueAt("h-ended", 2, 42, now),
		dueAt("h-gone", 3, 42, now),
	}}
	messenger := &fakeMessenger{}
	pendings := &fakePendingStore{}
	s := &Scheduler{
		platform:       platform,
		messenger:      messenger,
		medicationRepo: meds,
		pendingRepo:    pendings,
		logger:         zap.NewNop(),
	}

	s.fireDue(context.Background(), now)

	// Only the ongoing course is delivered. The ended course and the
	// deleted medication lose their triggers instead of firing.
	require.Len(t, messenger.reminders, 1)
	assert.Equal(t, []string{"h-active"}, platform.fired)
	assert.ElementsMatch(t, []string{"h-ended", "h-gone"}, platform.cancelled)
	require.Len(t, pendings.created, 1)
	assert.Equal(t, 1, pendings.created[0].MedicationID)
	assert.Equal(t, int64(42), pendings.created[0].UserID)
}

func TestScheduler_FireDueLeavesFailedSendsUnfired(t *testing.T) {
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	meds := &fakeMedStore{meds: map[int]*models.Medication{
		1: {MedicationID: 1, UserID: 42, Name: "Aspirin", StartDate: now.AddDate(0, -1, 0)},
	}}
	platform := &fakePlatform{due: []notify.Due{dueAt("h-active", 1, 42, now)}}
	messenger := &fakeMessenger{failSend: true}
	s := &Scheduler{
		platform:       platform,
		messenger:      messenger,
		medicationRepo: meds,
		pendingRepo:    &fakePendingStore{},
		logger:         zap.NewNop(),
	}

	s.fireDue(context.Background(), now)

	assert.Empty(t, platform.fired)
	assert.Empty(t, platform.cancelled)
}
