// Package schedule generates the observation dates of an autocallable
// product from its maturity, observation period and start date.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/calendar"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/datetime"
)

// ErrInvalidSchedule is returned when maturity and period cannot produce a
// consistent schedule.
var ErrInvalidSchedule = errors.New("invalid observation schedule")

// Provider maps a product's tenor to its ordered observation dates.
type Provider interface {
	Generate(maturityYears, periodMonths int, start time.Time, cal calendar.Calendar, holidayAware bool) ([]time.Time, error)
}

// Count returns the number of observations for the given tenor.
func Count(maturityYears, periodMonths int) (int, error) {
	if maturityYears <= 0 {
		return 0, fmt.Errorf("%w: maturity must be positive, got %d", ErrInvalidSchedule, maturityYears)
	}
	if periodMonths <= 0 {
		return 0, fmt.Errorf("%w: period must be positive, got %d", ErrInvalidSchedule, periodMonths)
	}
	months := maturityYears * constants.MonthsPerYear
	if months%periodMonths != 0 {
		return 0, fmt.Errorf("%w: %d months is not a multiple of the %d month period", ErrInvalidSchedule, months, periodMonths)
	}
	return months / periodMonths, nil
}

// Generator is the default Provider. Unadjusted dates are start + k*period
// months; with holidayAware set each date rolls to the following business day
// of the supplied calendar.
type Generator struct{}

// NewGenerator returns the default schedule generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate implements Provider.
func (g *Generator) Generate(maturityYears, periodMonths int, start time.Time, cal calendar.Calendar, holidayAware bool) ([]time.Time, error) {
	n, err := Count(maturityYears, periodMonths)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, n)
	for i := 0; i < n; i++ {
		// Offsets are taken from the start date so month-end clipping does not accumulate.
		d := datetime.OffsetMonths(start, periodMonths*(i+1))
		if holidayAware {
			d, err = calendar.AdjustFollowing(cal, d)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
			}
		}
		dates[i] = d
	}

	if !dates[0].After(start) || !datetime.StrictlyIncreasing(dates) {
		return nil, fmt.Errorf("%w: dates are not strictly increasing after %s", ErrInvalidSchedule, datetime.Format(start))
	}
	return dates, nil
}
