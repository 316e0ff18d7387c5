package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusinessDateSkipsWeekends(t *testing.T) {
	cal, err := GetCalendar("XNYS")
	require.NoError(t, err)

	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	assert.True(t, cal.IsBusinessDate(friday))
	assert.False(t, cal.IsBusinessDate(saturday))
	assert.False(t, cal.IsBusinessDate(sunday))
	assert.True(t, cal.IsBusinessDate(monday))
}

func TestGetCalendarIsCached(t *testing.T) {
	a, err := GetCalendar("xnys")
	require.NoError(t, err)
	b, err := GetCalendar("xnys")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGetCalendarUnknown(t *testing.T) {
	_, err := GetCalendar("nowhere")
	assert.Error(t, err)
}
