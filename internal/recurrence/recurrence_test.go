package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxline/rxline/internal/models"
)

func TestExpand_EmptyConfig(t *testing.T) {
	assert.Nil(t, Expand(models.ReminderConfig{}))

	assert.Nil(t, Expand(models.ReminderConfig{
		Weekdays: models.AllWeekdays(),
	}))

	assert.Nil(t, Expand(models.ReminderConfig{
		Times: []models.DoseTime{{Hour: 8}},
	}))
}

func TestExpand_CrossProduct(t *testing.T) {
	cfg := models.ReminderConfig{
		Enabled:  true,
		Times:    []models.DoseTime{{Hour: 20}, {Hour: 8}},
		Weekdays: models.AllWeekdays(),
	}

	occs := Expand(cfg)
	require.Len(t, occs, 14)

	// Sorted by weekday then time, regardless of input order.
	assert.Equal(t, Occurrence{Weekday: time.Sunday, Hour: 8}, occs[0])
	assert.Equal(t, Occurrence{Weekday: time.Sunday, Hour: 20}, occs[1])
	assert.Equal(t, Occurrence{Weekday: time.Saturday, Hour: 20}, occs[13])

	seen := make(map[Occurrence]bool)
	for _, occ := range occs {
		assert.False(t, seen[occ], "duplicate occurrence %s", occ)
		seen[occ] = true
	}
}

func TestExpand_Deterministic(t *testing.T) {
	cfg := models.ReminderConfig{
		Enabled:  true,
		Times:    []models.DoseTime{{Hour: 12, Minute: 30}, {Hour: 8}},
		Weekdays: []time.Weekday{time.Friday, time.Monday},
	}

	first := Expand(cfg)
	second := Expand(cfg)
	assert.Equal(t, first, second)

	require.Len(t, first, 4)
	assert.Equal(t, Occurrence{Weekday: time.Monday, Hour: 8}, first[0])
	assert.Equal(t, Occurrence{Weekday: time.Monday, Hour: 12, Minute: 30}, first[1])
	assert.Equal(t, Occurrence{Weekday: time.Friday, Hour: 8}, first[2])
	assert.Equal(t, Occurrence{Weekday: time.Friday, Hour: 12, Minute: 30}, first[3])
}

func TestNextAfter(t *testing.T) {
	loc := time.UTC
	cfg := models.ReminderConfig{
		Enabled:  true,
		Times:    []models.DoseTime{{Hour: 8}, {Hour: 20}},
		Weekdays: []time.Weekday{time.Monday, time.Wednesday},
	}

	// 2026-08-31 is a Monday.
	after := time.Date(2026, 8, 31, 9, 0, 0, 0, loc)

	next, err := NextAfter(cfg, after, loc)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 31, 20, 0, 0, 0, loc), *next)

	// Past Monday's last dose, the next one is Wednesday morning.
	after = time.Date(2026, 8, 31, 21, 0, 0, 0, loc)
	next, err = NextAfter(cfg, after, loc)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 9, 2, 8, 0, 0, 0, loc), *next)
}

func TestNextAfter_Disabled(t *testing.T) {
	cfg := models.ReminderConfig{
		Times:    []models.DoseTime{{Hour: 8}},
		Weekdays: models.AllWeekdays(),
	}

	next, err := NextAfter(cfg, time.Now(), time.UTC)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "reminders off", Summary(models.ReminderConfig{}))

	cfg := models.ReminderConfig{
		Enabled:  true,
		Times:    []models.DoseTime{{Hour: 8}, {Hour: 20}},
		Weekdays: models.AllWeekdays(),
	}
	assert.Equal(t, "every day at 08:00, 20:00", Summary(cfg))

	cfg.Weekdays = []time.Weekday{time.Monday, time.Wednesday}
	assert.Equal(t, "MO, WE at 08:00, 20:00", Summary(cfg))
}
