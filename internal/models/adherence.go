package models

import "time"

// AdherenceRecord holds the durable per-medication adherence counters.
// The zero value (all counters zero, PrevMiss false) is the state of a
// medication with no recorded events yet.
type AdherenceRecord struct {
	MedicationID      int       `json:"medication_id"`
	Taken             int       `json:"taken"`
	Missed            int       `json:"missed"`
	PrevMiss          bool      `json:"prev_miss"`
	ConsecutiveMisses int       `json:"consecutive_misses"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Total is the number of recorded dose events.
func (r *AdherenceRecord) Total() int {
	return r.Taken + r.Missed
}

// TakenRate is the fraction of recorded doses that were taken, in [0, 1].
func (r *AdherenceRecord) TakenRate() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(r.Taken) / float64(total)
}

// PendingResponse marks a reminder that fired and has not yet received a
// taken/missed response. Its presence is what makes an occurrence eligible
// for the auto-miss sweep; recording any response removes it.
type PendingResponse struct {
	PendingID    int       `json:"pending_id"`
	MedicationID int       `json:"medication_id"`
	UserID       int64     `json:"user_id"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Overdue reports whether the scheduled time is more than grace in the past.
func (p *PendingResponse) Overdue(now time.Time, grace time.Duration) bool {
	return now.Sub(p.ScheduledAt) > grace
}
