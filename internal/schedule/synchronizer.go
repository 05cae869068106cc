package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
	"github.com/rxline/rxline/internal/notify"
	"github.com/rxline/rxline/internal/recurrence"
)

// Synchronizer keeps the set of live platform notifications for a medication
// consistent with its stored reminder config across create, edit, and delete.
// After any of the three operations succeeds, the live set for the medication
// is exactly what recurrence.Expand produces from the current config.
type Synchronizer struct {
	registry *notify.Registry
	logger   *zap.Logger
}

func NewSynchronizer(registry *notify.Registry, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{registry: registry, logger: logger}
}

// OnCreate registers a notification for every occurrence of a newly created
// medication. Registration failures for individual occurrences do not stop
// the rest; the successfully registered ones stay live and the failures are
// reported together.
func (s *Synchronizer) OnCreate(ctx context.Context, med *models.Medication, owner *models.User) error {
	return s.registerAll(ctx, med, owner)
}

// OnEdit cancels everything first, unconditionally, then re-registers from
// the new config. Cancel-then-recreate over incremental diffing: the config
// is small, and a full replace also refreshes message text after a rename.
// The cancel must fully complete before the first register, otherwise a
// straggling cancel could remove a notification that was just re-created.
func (s *Synchronizer) OnEdit(ctx context.Context, med *models.Medication, owner *models.User) error {
	if err := s.registry.CancelAll(ctx, med.MedicationID); err != nil {
		// Re-registering on top of an uncanceled notification would
		// duplicate reminders, so stop here.
		return fmt.Errorf("failed to cancel existing notifications for medication %d: %w", med.MedicationID, err)
	}
	return s.registerAll(ctx, med, owner)
}

// OnDelete cancels every live notification for the medication.
func (s *Synchronizer) OnDelete(ctx context.Context, medicationID int) error {
	return s.registry.CancelAll(ctx, medicationID)
}

func (s *Synchronizer) registerAll(ctx context.Context, med *models.Medication, owner *models.User) error {
	if !med.Reminders.Enabled || !med.Active(time.Now().In(owner.Location())) {
		return nil
	}

	occurrences := recurrence.Expand(med.Reminders)
	if len(occurrences) == 0 {
		return nil
	}

	payload := notify.Payload{
		MedicationID: med.MedicationID,
		ChatID:       owner.UserID,
		Message:      med.Label(),
		Timezone:     owner.Timezone,
	}

	var errs []error
	for _, occ := range occurrences {
		if _, err := s.registry.Register(ctx, med.MedicationID, occ, payload); err != nil {
			errs = append(errs, err)
			continue
		}
	}
	if len(errs) > 0 {
		s.logger.Error("some reminder occurrences failed to register",
			zap.Int("medication_id", med.MedicationID),
			zap.Int("failed", len(errs)),
			zap.Int("total", len(occurrences)))
		return fmt.Errorf("registered %d of %d occurrences for medication %d: %w",
			len(occurrences)-len(errs), len(occurrences), med.MedicationID, errors.Join(errs...))
	}
	return nil
}
