package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/recurrence"
)

// Registration is one persisted tuple → handle mapping entry.
type Registration struct {
	MedicationID int
	Occurrence   recurrence.Occurrence
	Handle       string
}

// HandleStore persists the registry's mapping so reconciliation stays correct
// across process restarts.
type HandleStore interface {
	// Get returns the handle registered for the tuple, or "" when none exists.
	Get(ctx context.Context, medicationID int, occ recurrence.Occurrence) (string, error)
	// Put records the handle for the tuple, replacing any previous one.
	Put(ctx context.Context, medicationID int, occ recurrence.Occurrence, handle string) error
	ListByMedication(ctx context.Context, medicationID int) ([]Registration, error)
	Delete(ctx context.Context, handle string) error
}

// RegistrationError reports a single platform call that failed. Partial
// failures are joined so the caller sees every occurrence that was affected
// instead of the first one only.
type RegistrationError struct {
	Op           string // "register" or "cancel"
	MedicationID int
	Occurrence   recurrence.Occurrence
	Handle       string
	Err          error
}

func (e *RegistrationError) Error() string {
	if e.Op == "cancel" {
		return fmt.Sprintf("cancel handle %s (medication %d): %v", e.Handle, e.MedicationID, e.Err)
	}
	return fmt.Sprintf("register %s (medication %d): %v", e.Occurrence, e.MedicationID, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Registry is the sole owner of the (medication, weekday, time-of-day) →
// platform handle mapping. It guarantees at most one live platform
// notification per tuple.
type Registry struct {
	store    HandleStore
	platform Platform
	logger   *zap.Logger
}

func NewRegistry(store HandleStore, platform Platform, logger *zap.Logger) *Registry {
	return &Registry{store: store, platform: platform, logger: logger}
}

// Register schedules a platform notification for the tuple. Idempotent with
// replace semantics: an existing notification for the same tuple is canceled
// first, so the message can change (e.g. a renamed medication) without ever
// leaving two live notifications behind.
func (r *Registry) Register(ctx context.Context, medicationID int, occ recurrence.Occurrence, payload Payload) (string, error) {
	existing, err := r.store.Get(ctx, medicationID, occ)
	if err != nil {
		return "", fmt.Errorf("failed to look up handle for %s: %w", occ, err)
	}
	if existing != "" {
		if err := r.platform.Cancel(ctx, existing); err != nil {
			// A stale notification we cannot cancel would duplicate
			// reminders; surface it instead of stacking a new one on top.
			return "", &RegistrationError{Op: "cancel", MedicationID: medicationID, Occurrence: occ, Handle: existing, Err: err}
		}
	}

	handle, err := r.platform.Schedule(ctx, Trigger{Weekday: occ.Weekday, Hour: occ.Hour, Minute: occ.Minute}, payload)
	if err != nil {
		return "", &RegistrationError{Op: "register", MedicationID: medicationID, Occurrence: occ, Err: err}
	}

	if err := r.store.Put(ctx, medicationID, occ, handle); err != nil {
		// Do not leave a live platform notification the mapping knows
		// nothing about.
		if cerr := r.platform.Cancel(ctx, handle); cerr != nil {
			r.logger.Error("failed to roll back unrecorded notification",
				zap.String("handle", handle), zap.Error(cerr))
		}
		return "", fmt.Errorf("failed to persist handle for %s: %w", occ, err)
	}
	return handle, nil
}

// CancelAll cancels every handle associated with the medication and removes
// them from the mapping. A no-op when zero handles exist. Failures on
// individual handles do not stop the remaining ones; they are reported
// together.
func (r *Registry) CancelAll(ctx context.Context, medicationID int) error {
	regs, err := r.store.ListByMedication(ctx, medicationID)
	if err != nil {
		return fmt.Errorf("failed to list handles for medication %d: %w", medicationID, err)
	}

	var errs []error
	for _, reg := range regs {
		if err := r.platform.Cancel(ctx, reg.Handle); err != nil {
			// Keep the mapping entry so a later pass can retry the cancel.
			errs = append(errs, &RegistrationError{Op: "cancel", MedicationID: reg.MedicationID, Occurrence: reg.Occurrence, Handle: reg.Handle, Err: err})
			continue
		}
		if err := r.store.Delete(ctx, reg.Handle); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove handle %s: %w", reg.Handle, err))
		}
	}
	return errors.Join(errs...)
}

// Cancel cancels a specific list of handles, used when individual reminder
// times are removed rather than the whole medication.
func (r *Registry) Cancel(ctx context.Context, handles []string) error {
	var errs []error
	for _, handle := range handles {
		if err := r.platform.Cancel(ctx, handle); err != nil {
			errs = append(errs, &RegistrationError{Op: "cancel", Handle: handle, Err: err})
			continue
		}
		if err := r.store.Delete(ctx, handle); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove handle %s: %w", handle, err))
		}
	}
	return errors.Join(errs...)
}

// Handles returns the live registrations for a medication.
func (r *Registry) Handles(ctx context.Context, medicationID int) ([]Registration, error) {
	return r.store.ListByMedication(ctx, medicationID)
}
