package adherence

import "github.com/rxline/rxline/internal/models"

// DefaultEscalationThreshold is the consecutive-miss count at which the
// emergency contact gets alerted.
const DefaultEscalationThreshold = 3

// ShouldEscalate reports whether the miss streak has reached the threshold.
// Pure predicate: it mutates nothing and sends nothing; the caller decides
// whether to invoke the contact notifier.
func ShouldEscalate(rec *models.AdherenceRecord, threshold int) bool {
	if rec == nil {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	return rec.ConsecutiveMisses >= threshold
}
