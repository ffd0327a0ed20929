// Package calendar provides the business-day calendars used to adjust
// observation dates: weekends plus an explicit holiday list per market,
// combined into joint calendars for multi-asset products.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
)

// ErrInvalidCalendar is returned for unparseable holidays and for calendars
// with no business day in reach.
var ErrInvalidCalendar = errors.New("invalid calendar")

// maxAdjustDays bounds the search for the next business day.
const maxAdjustDays = 366

// Calendar reports whether a date is a business day.
type Calendar interface {
	IsBusinessDay(t time.Time) bool
}

// Weekends treats Saturday and Sunday as holidays.
type Weekends struct{}

// IsBusinessDay implements Calendar.
func (Weekends) IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AllDays treats every calendar day as a business day.
type AllDays struct{}

// IsBusinessDay implements Calendar.
func (AllDays) IsBusinessDay(time.Time) bool { return true }

// Holidays is a market calendar built from a list of holiday dates, optionally
// also closed on weekends.
type Holidays struct {
	Name     string
	weekends bool
	dates    map[string]struct{}
}

// NewHolidays builds a Holidays calendar from DateLayout-formatted dates.
func NewHolidays(name string, weekends bool, dates []string) (*Holidays, error) {
	h := &Holidays{Name: name, weekends: weekends, dates: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		t, err := datetime.ParseDate(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCalendar, name, err)
		}
		h.dates[datetime.Format(t)] = struct{}{}
	}
	return h, nil
}

// IsBusinessDay implements Calendar.
func (h *Holidays) IsBusinessDay(t time.Time) bool {
	if h.weekends && !(Weekends{}).IsBusinessDay(t) {
		return false
	}
	_, closed := h.dates[datetime.Format(t)]
	return !closed
}

// Joint is open only when every member calendar is open.
type Joint []Calendar

// IsBusinessDay implements Calendar.
func (j Joint) IsBusinessDay(t time.Time) bool {
	for _, c := range j {
		if c != nil && !c.IsBusinessDay(t) {
			return false
		}
	}
	return true
}

// JointFor builds the joint calendar of the given markets. Markets without a
// registered calendar fall back to fallback, which may be nil.
func JointFor(markets []string, registry map[string]Calendar, fallback Calendar) Joint {
	joint := Joint{}
	if fallback != nil {
		joint = append(joint, fallback)
	}
	for _, m := range markets {
		if c, ok := registry[m]; ok {
			joint = append(joint, c)
		}
	}
	return joint
}

// AdjustFollowing moves t forward to the first business day on or after t.
func AdjustFollowing(c Calendar, t time.Time) (time.Time, error) {
	if c == nil {
		return t, nil
	}
	for i := 0; i < maxAdjustDays; i++ {
		candidate := t.AddDate(0, 0, i)
		if c.IsBusinessDay(candidate) {
			return candidate, nil
		}
	}
	return t, fmt.Errorf("%w: no business day within %d days of %s", ErrInvalidCalendar, maxAdjustDays, datetime.Format(t))
}
