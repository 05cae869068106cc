package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDoseTime(t *testing.T) {
	dt, err := ParseDoseTime("08:30")
	require.NoError(t, err)
	assert.Equal(t, DoseTime{Hour: 8, Minute: 30}, dt)

	_, err = ParseDoseTime("25:00")
	assert.ErrorIs(t, err, ErrInvalidDoseTime)

	_, err = ParseDoseTime("8:61")
	assert.ErrorIs(t, err, ErrInvalidDoseTime)

	_, err = ParseDoseTime("morning")
	assert.Error(t, err)

	// Trailing garbage must not parse as a valid time.
	_, err = ParseDoseTime("08:00junk")
	assert.Error(t, err)

	_, err = ParseDoseTime("08:00:00")
	assert.Error(t, err)

	dt, err = ParseDoseTime(" 8:5 ")
	require.NoError(t, err)
	assert.Equal(t, DoseTime{Hour: 8, Minute: 5}, dt)
}

func TestParseWeekday(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Weekday
	}{
		{"MO", time.Monday},
		{"mo", time.Monday},
		{"Mon", time.Monday},
		{"monday", time.Monday},
		{"SU", time.Sunday},
		{"Saturday", time.Saturday},
	} {
		got, err := ParseWeekday(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseWeekday("XX")
	assert.ErrorIs(t, err, ErrUnknownWeekday)
}

func TestReminderConfig_AddTime(t *testing.T) {
	var cfg ReminderConfig

	assert.True(t, cfg.AddTime(DoseTime{Hour: 8}))
	assert.True(t, cfg.AddTime(DoseTime{Hour: 20}))

	// Duplicate is a no-op, not an error.
	assert.False(t, cfg.AddTime(DoseTime{Hour: 8}))
	assert.Len(t, cfg.Times, 2)

	assert.True(t, cfg.RemoveTime(DoseTime{Hour: 8}))
	assert.False(t, cfg.RemoveTime(DoseTime{Hour: 8}))
	assert.Len(t, cfg.Times, 1)
}

func TestReminderConfig_Validate(t *testing.T) {
	cfg := ReminderConfig{Enabled: true}
	assert.ErrorIs(t, cfg.Validate(), ErrNoReminderTimes)

	cfg.Times = []DoseTime{{Hour: 8}}
	assert.NoError(t, cfg.Validate())

	// Disabled with no times is fine.
	assert.NoError(t, (&ReminderConfig{}).Validate())

	cfg.Times = []DoseTime{{Hour: 8}, {Hour: 8}}
	assert.Error(t, cfg.Validate())
}

func TestReminderConfig_RoundTrip(t *testing.T) {
	cfg := ReminderConfig{
		Times:    []DoseTime{{Hour: 8}, {Hour: 20, Minute: 30}},
		Weekdays: []time.Weekday{time.Monday, time.Friday},
	}

	assert.Equal(t, "08:00,20:30", cfg.TimesString())
	assert.Equal(t, "MO,FR", cfg.WeekdaysString())

	times, err := ParseTimes(cfg.TimesString())
	require.NoError(t, err)
	assert.Equal(t, cfg.Times, times)

	days, err := ParseWeekdays(cfg.WeekdaysString())
	require.NoError(t, err)
	assert.Equal(t, cfg.Weekdays, days)
}

func TestMedication_Validate(t *testing.T) {
	med := Medication{Name: "Aspirin", StartDate: time.Now()}
	assert.NoError(t, med.Validate())

	med.Name = "  "
	assert.Error(t, med.Validate())

	med.Name = "Aspirin"
	end := med.StartDate.AddDate(0, 0, -1)
	med.EndDate = &end
	assert.ErrorIs(t, med.Validate(), ErrEndBeforeStart)
}

func TestMedication_Active(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	med := Medication{Name: "Aspirin", StartDate: now.AddDate(0, 0, -7)}
	assert.True(t, med.Active(now))

	// Active through the whole end date, inactive after.
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	med.EndDate = &end
	assert.True(t, med.Active(now))
	assert.False(t, med.Active(now.AddDate(0, 0, 1)))

	deleted := now
	med.EndDate = nil
	med.DeletedAt = &deleted
	assert.False(t, med.Active(now))
}

func TestMedication_Label(t *testing.T) {
	med := Medication{Name: "Aspirin"}
	assert.Equal(t, "Aspirin", med.Label())

	med.Dosage = Dosage{Amount: 100, Unit: "mg"}
	assert.Equal(t, "Aspirin (100 mg)", med.Label())
}
