package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEndBeforeStart   = errors.New("end date precedes start date")
	ErrNoReminderTimes  = errors.New("reminders enabled with no times of day")
	ErrInvalidDoseTime  = errors.New("dose time out of range")
	ErrUnknownWeekday   = errors.New("unknown weekday code")
)

// Dosage is a single-dose amount, e.g. 100 mg.
type Dosage struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

func (d Dosage) String() string {
	return fmt.Sprintf("%g %s", d.Amount, d.Unit)
}

// SideEffect is a reported side effect term and whether the user monitors it.
type SideEffect struct {
	Term      string `json:"term"`
	Monitored bool   `json:"monitored"`
}

// DoseTime is a time of day with minute precision.
type DoseTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t DoseTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t DoseTime) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// ParseDoseTime parses "HH:MM". The whole string must be the time; trailing
// garbage is rejected.
func ParseDoseTime(s string) (DoseTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return DoseTime{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return DoseTime{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return DoseTime{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	t := DoseTime{Hour: h, Minute: m}
	if !t.Valid() {
		return DoseTime{}, fmt.Errorf("%w: %q", ErrInvalidDoseTime, s)
	}
	return t, nil
}

var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// WeekdayCode returns the two-letter RFC 5545 code for a weekday.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[int(d)%7]
}

// ParseWeekday accepts a two-letter code ("MO") or a full English name.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, code := range weekdayCodes {
		if s == code {
			return time.Weekday(i), nil
		}
	}
	for i := time.Sunday; i <= time.Saturday; i++ {
		name := strings.ToUpper(i.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, s)
}

// AllWeekdays is the default active-day set: every day of the week.
func AllWeekdays() []time.Weekday {
	return []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
}

// ReminderConfig holds the reminder schedule for one medication.
type ReminderConfig struct {
	Enabled  bool           `json:"enabled"`
	Times    []DoseTime     `json:"times"`
	Weekdays []time.Weekday `json:"weekdays"`
}

// AddTime appends a dose time. Adding a duplicate (hour, minute) pair is a
// no-op, not an error. Returns whether the time was added.
func (c *ReminderConfig) AddTime(t DoseTime) bool {
	for _, existing := range c.Times {
		if existing == t {
			return false
		}
	}
	c.Times = append(c.Times, t)
	return true
}

// RemoveTime deletes a dose time if present. Returns whether it was present.
func (c *ReminderConfig) RemoveTime(t DoseTime) bool {
	for i, existing := range c.Times {
		if existing == t {
			c.Times = append(c.Times[:i], c.Times[i+1:]...)
			return true
		}
	}
	return false
}

// Validate rejects a malformed config before it reaches the scheduling core.
func (c *ReminderConfig) Validate() error {
	if c.Enabled && len(c.Times) == 0 {
		return ErrNoReminderTimes
	}
	seen := make(map[DoseTime]bool, len(c.Times))
	for _, t := range c.Times {
		if !t.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidDoseTime, t)
		}
		if seen[t] {
			return fmt.Errorf("duplicate dose time %s", t)
		}
		seen[t] = true
	}
	return nil
}

// TimesString renders the dose times as "08:00,20:00" for storage.
func (c *ReminderConfig) TimesString() string {
	parts := make([]string, len(c.Times))
	for i, t := range c.Times {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// WeekdaysString renders the active days as "MO,WE,FR" for storage.
func (c *ReminderConfig) WeekdaysString() string {
	parts := make([]string, len(c.Weekdays))
	for i, d := range c.Weekdays {
		parts[i] = WeekdayCode(d)
	}
	return strings.Join(parts, ",")
}

// ParseTimes parses a stored "08:00,20:00" list.
func ParseTimes(s string) ([]DoseTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var times []DoseTime
	for _, part := range strings.Split(s, ",") {
		t, err := ParseDoseTime(part)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, nil
}

// ParseWeekdays parses a stored "MO,WE,FR" list.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		d, err := ParseWeekday(part)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

// Medication is one medication a user records, together with its reminder
// schedule.
type Medication struct {
	MedicationID int            `json:"medication_id"`
	UserID       int64          `json:"user_id"`
	Name         string         `json:"name"`
	Dosage       Dosage         `json:"dosage"`
	Purpose      string         `json:"purpose"`
	Directions   string         `json:"directions"`
	Warnings     string         `json:"warnings"`
	SideEffects  []SideEffect   `json:"side_effects"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      *time.Time     `json:"end_date"`
	Frequency    string         `json:"frequency"`
	Reminders    ReminderConfig `json:"reminders"`
	DeletedAt    *time.Time     `json:"deleted_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Validate checks the cross-field invariants on create and edit.
func (m *Medication) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("medication name is required")
	}
	if m.EndDate != nil && m.EndDate.Before(m.StartDate) {
		return ErrEndBeforeStart
	}
	return m.Reminders.Validate()
}

// Active reports whether the medication course is ongoing at the given time.
func (m *Medication) Active(now time.Time) bool {
	if m.DeletedAt != nil {
		return false
	}
	if m.EndDate == nil {
		return true
	}
	y, mo, d := m.EndDate.Date()
	endOfDay := time.Date(y, mo, d, 23, 59, 59, 0, now.Location())
	return !now.After(endOfDay)
}

// Label is the reminder message body: name plus dosage.
func (m *Medication) Label() string {
	if m.Dosage.Unit == "" && m.Dosage.Amount == 0 {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.Dosage)
}
