package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/rxline/rxline/internal/models"
)

// Occurrence is one concrete (weekday, time-of-day) slot at which a reminder
// should fire, repeating weekly.
type Occurrence struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

func (o Occurrence) String() string {
	return fmt.Sprintf("%s %02d:%02d", models.WeekdayCode(o.Weekday), o.Hour, o.Minute)
}

// Time returns the occurrence's time-of-day component.
func (o Occurrence) Time() models.DoseTime {
	return models.DoseTime{Hour: o.Hour, Minute: o.Minute}
}

// Expand enumerates the full active-days × times-of-day cross product of a
// reminder config. Pure function: no I/O, deterministic order (weekday, then
// time). An empty time set or empty weekday set yields an empty slice, never
// an error; callers read an empty result as "no notifications needed".
// Times are assumed validated before they get here.
func Expand(cfg models.ReminderConfig) []Occurrence {
	if len(cfg.Times) == 0 || len(cfg.Weekdays) == 0 {
		return nil
	}

	days := append([]time.Weekday(nil), cfg.Weekdays...)
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	times := append([]models.DoseTime(nil), cfg.Times...)
	sort.Slice(times, func(i, j int) bool {
		if times[i].Hour != times[j].Hour {
			return times[i].Hour < times[j].Hour
		}
		return times[i].Minute < times[j].Minute
	})

	occurrences := make([]Occurrence, 0, len(days)*len(times))
	for _, d := range days {
		for _, t := range times {
			occurrences = append(occurrences, Occurrence{Weekday: d, Hour: t.Hour, Minute: t.Minute})
		}
	}
	return occurrences
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// weeklyRule builds the RFC 5545 weekly rule for one dose time across the
// config's active days, anchored so that After() can find any occurrence
// following `dtstart`.
func weeklyRule(days []time.Weekday, t models.DoseTime, dtstart time.Time) (*rrule.RRule, error) {
	byDays := make([]rrule.Weekday, len(days))
	for i, d := range days {
		byDays[i] = rruleWeekdays[d]
	}
	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: byDays,
		Byhour:    []int{t.Hour},
		Byminute:  []int{t.Minute},
		Bysecond:  []int{0},
		Dtstart:   dtstart,
	})
}

// NextAfter returns the next instant strictly after `after` (in loc) at which
// any of the config's occurrences fires, or nil when the config produces no
// occurrences.
func NextAfter(cfg models.ReminderConfig, after time.Time, loc *time.Location) (*time.Time, error) {
	if !cfg.Enabled || len(cfg.Times) == 0 || len(cfg.Weekdays) == 0 {
		return nil, nil
	}

	afterLocal := after.In(loc)
	dtstart := afterLocal.AddDate(0, 0, -8)

	var best *time.Time
	for _, t := range cfg.Times {
		rule, err := weeklyRule(cfg.Weekdays, t, dtstart)
		if err != nil {
			return nil, fmt.Errorf("failed to build recurrence rule for %s: %w", t, err)
		}
		next := rule.After(afterLocal, false)
		if next.IsZero() {
			continue
		}
		if best == nil || next.Before(*best) {
			n := next
			best = &n
		}
	}
	return best, nil
}

// Summary renders a short human-readable description of the schedule,
// e.g. "every day at 08:00, 20:00" or "MO, WE, FR at 12:30".
func Summary(cfg models.ReminderConfig) string {
	if !cfg.Enabled {
		return "reminders off"
	}
	if len(cfg.Times) == 0 {
		return "no times set"
	}

	times := make([]string, len(cfg.Times))
	for i, t := range cfg.Times {
		times[i] = t.String()
	}

	days := "every day"
	if len(cfg.Weekdays) > 0 && len(cfg.Weekdays) < 7 {
		codes := make([]string, len(cfg.Weekdays))
		for i, d := range cfg.Weekdays {
			codes[i] = models.WeekdayCode(d)
		}
		days = strings.Join(codes, ", ")
	}
	return fmt.Sprintf("%s at %s", days, strings.Join(times, ", "))
}
