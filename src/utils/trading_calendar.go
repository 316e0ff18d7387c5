package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers business-day questions for one exchange.
type TradingCalendar struct {
	MIC      string
	Calendar *calendar.Calendar
	Timezone *time.Location
}

var (
	calendarsMu sync.Mutex
	calendars   = make(map[string]*TradingCalendar)
)

// -----------------------------------------------------------------------------

// GetCalendar returns the calendar for an ISO 10383 market identifier code
// such as "xnys" or "xlon". Calendars are built once and shared.
func GetCalendar(mic string) (*TradingCalendar, error) {
	mic = strings.ToLower(strings.TrimSpace(mic))

	calendarsMu.Lock()
	defer calendarsMu.Unlock()

	if tc, ok := calendars[mic]; ok {
		return tc, nil
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		return nil, fmt.Errorf("unknown market calendar %q", mic)
	}

	loc := cal.Loc
	if loc == nil {
		loc = time.UTC
	}
	tc := &TradingCalendar{MIC: mic, Calendar: cal, Timezone: loc}
	calendars[mic] = tc
	return tc, nil
}

// -----------------------------------------------------------------------------

// IsBusinessDate reports whether the calendar date of t (as written, without
// converting time zones) is a business day on this exchange.
func (tc *TradingCalendar) IsBusinessDate(t time.Time) bool {
	y, m, d := t.Date()
	local := time.Date(y, m, d, 12, 0, 0, 0, tc.Timezone)
	return tc.Calendar.IsBusinessDay(local)
}

