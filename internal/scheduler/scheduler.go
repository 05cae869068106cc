package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/adherence"
	"github.com/rxline/rxline/internal/models"
	"github.com/rxline/rxline/internal/notify"
)

// Platform is the slice of the notification platform the delivery loop
// needs: what is due now, marking delivery, and dropping stale triggers.
type Platform interface {
	DueNow(ctx context.Context, now time.Time) ([]notify.Due, error)
	MarkFired(ctx context.Context, handle string, firedOn time.Time) error
	Cancel(ctx context.Context, handle string) error
}

// The loop needs narrow slices of the repositories so it can be exercised
// without a database.
type MedicationStore interface {
	GetByID(ctx context.Context, medicationID int) (*models.Medication, error)
}

type PendingStore interface {
	Create(ctx context.Context, p *models.PendingResponse) error
	ListUserIDs(ctx context.Context) ([]int64, error)
}

type UserStore interface {
	GetByID(ctx context.Context, userID int64) (*models.User, error)
}

// Scheduler drives the periodic work. Each tick delivers due reminders and
// runs the missed-dose sweep, escalating to emergency contacts on threshold.
type Scheduler struct {
	platform  Platform
	messenger notify.Messenger
	contacts  notify.ContactNotifier

	medicationRepo MedicationStore
	pendingRepo    PendingStore
	userRepo       UserStore

	ledger   *adherence.Ledger
	detector *adherence.Detector

	checkInterval       time.Duration
	escalationThreshold int

	notifyCh chan struct{}
	logger   *zap.Logger
}

func New(
	platform Platform,
	messenger notify.Messenger,
	contacts notify.ContactNotifier,
	medicationRepo MedicationStore,
	pendingRepo PendingStore,
	userRepo UserStore,
	ledger *adherence.Ledger,
	detector *adherence.Detector,
	checkInterval time.Duration,
	escalationThreshold int,
	logger *zap.Logger,
) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	if escalationThreshold <= 0 {
		escalationThreshold = adherence.DefaultEscalationThreshold
	}
	return &Scheduler{
		platform:            platform,
		messenger:           messenger,
		contacts:            contacts,
		medicationRepo:      medicationRepo,
		pendingRepo:         pendingRepo,
		userRepo:            userRepo,
		ledger:              ledger,
		detector:            detector,
		checkInterval:       checkInterval,
		escalationThreshold: escalationThreshold,
		notifyCh:            make(chan struct{}, 1),
		logger:              logger,
	}
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("interval", s.checkInterval))
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Wait a bit for migrations to complete before first check
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	s.check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.check(ctx)
		case <-s.notifyCh:
			s.logger.Debug("scheduler triggered by notification")
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	now := time.Now()
	s.fireDue(ctx, now)
	s.sweepMissed(ctx, now)
}

// fireDue delivers every trigger whose time has come: create the pending
// response marker, send the reminder with taken/missed buttons, then mark
// the trigger fired. Triggers whose medication course has ended or been
// deleted are cancelled rather than delivered. A failed send leaves the
// trigger unmarked so the next tick retries it; the marker upsert keeps
// retries from double-booking.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	due, err := s.platform.DueNow(ctx, now)
	if err != nil {
		s.logger.Error("failed to load due notifications", zap.Error(err))
		return
	}

	for _, d := range due {
		n := d.Notification
		med, err := s.medicationRepo.GetByID(ctx, n.MedicationID)
		if err != nil {
			s.logger.Error("failed to load medication for due trigger",
				zap.Int("medication_id", n.MedicationID), zap.Error(err))
			continue
		}
		if med == nil || !med.Active(d.ScheduledAt) {
			// The course ended or the medication is gone; drop the
			// trigger instead of reminding forever.
			if err := s.platform.Cancel(ctx, n.Handle); err != nil {
				s.logger.Error("failed to cancel stale trigger",
					zap.String("handle", n.Handle), zap.Error(err))
				continue
			}
			s.logger.Info("cancelled stale trigger",
				zap.Int("medication_id", n.MedicationID), zap.String("handle", n.Handle))
			continue
		}

		pending := &models.PendingResponse{
			MedicationID: n.MedicationID,
			UserID:       n.ChatID,
			ScheduledAt:  d.ScheduledAt,
		}
		if err := s.pendingRepo.Create(ctx, pending); err != nil {
			s.logger.Error("failed to create pending response",
				zap.Int("medication_id", n.MedicationID), zap.Error(err))
			continue
		}

		if err := s.messenger.SendDoseReminder(n.ChatID, n.Message, pending.PendingID); err != nil {
			s.logger.Error("failed to deliver dose reminder",
				zap.String("handle", n.Handle), zap.Error(err))
			continue
		}

		if err := s.platform.MarkFired(ctx, n.Handle, d.ScheduledAt); err != nil {
			s.logger.Error("failed to mark notification fired",
				zap.String("handle", n.Handle), zap.Error(err))
			continue
		}
		s.logger.Info("dose reminder delivered",
			zap.Int("medication_id", n.MedicationID),
			zap.Int64("chat_id", n.ChatID),
			zap.Time("scheduled_at", d.ScheduledAt))
	}
}

// sweepMissed runs the missed-dose detector for every user with pending
// responses and evaluates escalation for each auto-recorded miss.
func (s *Scheduler) sweepMissed(ctx context.Context, now time.Time) {
	userIDs, err := s.pendingRepo.ListUserIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list users with pending responses", zap.Error(err))
		return
	}

	for _, userID := range userIDs {
		result, err := s.detector.Sweep(ctx, userID, now)
		if err != nil {
			s.logger.Error("missed-dose sweep reported failures",
				zap.Int64("user_id", userID), zap.Error(err))
		}
		if result == nil {
			continue
		}
		for _, medicationID := range result.AutoMissed {
			s.maybeEscalate(ctx, userID, medicationID)
		}
	}
}

func (s *Scheduler) maybeEscalate(ctx context.Context, userID int64, medicationID int) {
	rec, err := s.ledger.Get(ctx, medicationID)
	if err != nil {
		s.logger.Error("failed to load adherence record for escalation",
			zap.Int("medication_id", medicationID), zap.Error(err))
		return
	}
	if !adherence.ShouldEscalate(rec, s.escalationThreshold) {
		return
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user for escalation",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if user == nil || !user.HasContact() {
		s.logger.Debug("escalation threshold reached but no emergency contact set",
			zap.Int64("user_id", userID), zap.Int("medication_id", medicationID))
		return
	}

	medicationName := "a medication"
	if med, err := s.medicationRepo.GetByID(ctx, medicationID); err == nil && med != nil {
		medicationName = med.Name
	}

	if err := s.contacts.Notify(ctx, user.Contact(), medicationName, rec.ConsecutiveMisses); err != nil {
		if errors.Is(err, notify.ErrContactUnreachable) {
			s.logger.Warn("emergency contact unreachable",
				zap.Int64("user_id", userID), zap.Int("medication_id", medicationID))
			if serr := s.messenger.SendText(userID,
				"⚠️ You have missed several doses of "+medicationName+" in a row. Your emergency contact could not be reached, ask them to run /linkcontact with this bot."); serr != nil {
				s.logger.Warn("failed to tell user about escalation", zap.Error(serr))
			}
			return
		}
		s.logger.Error("failed to notify emergency contact",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	s.logger.Info("emergency contact notified",
		zap.Int64("user_id", userID),
		zap.Int("medication_id", medicationID),
		zap.Int("consecutive_misses", rec.ConsecutiveMisses))

	if err := s.messenger.SendText(userID,
		"⚠️ You have missed several doses of "+medicationName+" in a row, so your emergency contact has been notified."); err != nil {
		s.logger.Warn("failed to tell user about escalation", zap.Error(err))
	}
}
