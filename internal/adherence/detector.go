package adherence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
)

// DefaultGraceWindow is how long past its scheduled time a dose may sit
// unanswered before the sweep records it as missed.
const DefaultGraceWindow = time.Hour

// PendingStore tracks reminders that fired and are awaiting a response.
type PendingStore interface {
	// Create inserts the marker for a fired occurrence, reusing the
	// existing marker for the same (medication, scheduled time).
	Create(ctx context.Context, p *models.PendingResponse) error
	// ListOverdue returns the user's pending responses scheduled before cutoff.
	ListOverdue(ctx context.Context, userID int64, cutoff time.Time) ([]*models.PendingResponse, error)
	// Claim removes the marker and reports whether this caller removed it.
	// A false result means a user response or another sweep got there first.
	Claim(ctx context.Context, pendingID int) (bool, error)
	Count(ctx context.Context, userID int64) (int, error)
}

// SweepResult is what one detector pass did for a user.
type SweepResult struct {
	// AutoMissed lists the medication ids a miss was recorded for, one
	// entry per auto-missed occurrence.
	AutoMissed []int
	// StillPending is the number of responses not yet overdue, for UI
	// badge display.
	StillPending int
}

// Detector auto-records misses for doses left unanswered past the grace
// window. It runs periodically and at app-foreground; running two sweeps
// concurrently is safe because the pending marker is claimed before the
// miss is recorded, so each occurrence is counted at most once.
type Detector struct {
	pending PendingStore
	ledger  *Ledger
	grace   time.Duration
	logger  *zap.Logger
}

func NewDetector(pending PendingStore, ledger *Ledger, grace time.Duration, logger *zap.Logger) *Detector {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Detector{pending: pending, ledger: ledger, grace: grace, logger: logger}
}

// Sweep records a miss for every overdue pending response of the user and
// returns the count of responses still awaiting an answer. Failures on
// individual occurrences are collected and reported together; the sweep
// keeps going.
func (d *Detector) Sweep(ctx context.Context, userID int64, now time.Time) (*SweepResult, error) {
	cutoff := now.Add(-d.grace)
	overdue, err := d.pending.ListOverdue(ctx, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue responses for user %d: %w", userID, err)
	}

	result := &SweepResult{}
	var errs []error
	for _, p := range overdue {
		claimed, err := d.pending.Claim(ctx, p.PendingID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to claim pending response %d: %w", p.PendingID, err))
			continue
		}
		if !claimed {
			continue
		}
		if err := d.ledger.RecordMissed(ctx, p.MedicationID); err != nil {
			// The marker is already claimed; put it back so the next
			// sweep retries instead of losing the event.
			restored := &models.PendingResponse{
				MedicationID: p.MedicationID,
				UserID:       p.UserID,
				ScheduledAt:  p.ScheduledAt,
			}
			if rerr := d.pending.Create(ctx, restored); rerr != nil {
				errs = append(errs, fmt.Errorf("failed to restore pending response for medication %d: %w", p.MedicationID, rerr))
			}
			errs = append(errs, err)
			continue
		}
		d.logger.Info("auto-recorded missed dose",
			zap.Int("medication_id", p.MedicationID),
			zap.Time("scheduled_at", p.ScheduledAt))
		result.AutoMissed = append(result.AutoMissed, p.MedicationID)
	}

	count, err := d.pending.Count(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to count pending responses for user %d: %w", userID, err))
	} else {
		result.StillPending = count
	}
	return result, errors.Join(errs...)
}
