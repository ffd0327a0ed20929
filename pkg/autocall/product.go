// Package autocall evaluates autocallable worst-of notes against a price
// history. Every product variant shares one observation loop; variants differ
// only in the Policy they carry.
package autocall

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/schedule"
)

var (
	// ErrEmptyBarrierSchedule is returned when a product has no observations.
	ErrEmptyBarrierSchedule = errors.New("empty barrier schedule")

	// ErrInvalidProduct is returned when a product definition is inconsistent.
	ErrInvalidProduct = errors.New("invalid product")

	// ErrNoTerminationFound is returned when no branch resolves the product by
	// the final observation. Well-formed inputs never produce it.
	ErrNoTerminationFound = errors.New("no termination found")
)

// Product is an autocallable note definition.
type Product struct {
	Name          string
	Underlyings   []string
	StartDate     time.Time
	MaturityYears int
	PeriodMonths  int
	Coupon        float64 // annualised
	Barriers      []float64
	Policy        Policy // nil means Plain
	HolidayAware  bool
}

// Policy is the variant-specific part of a product. The concrete types are
// Plain, Lock, KnockIn, Lizard, LizardKnockIn and MonthlyPay.
type Policy interface {
	Variant() string
	validate(observations int) error
}

// Plain redeems early above the barrier and takes the worst-of loss at maturity.
type Plain struct{}

// Lock freezes every asset onto the worst performer from Observation onward.
type Lock struct {
	Observation int // 1-based
}

// KnockIn replaces the maturity loss with the full coupon unless the
// continuous worst ratio fell below Barrier.
type KnockIn struct {
	Barrier float64
}

// Lizard pays a multiplied coupon at listed observations where the worst
// ratio misses the redemption barrier but clears the lizard threshold.
type Lizard struct {
	Schedule         map[int]float64 // 1-based observation -> threshold
	CouponMultiplier float64
}

// LizardKnockIn combines Lizard bonus checks with a KnockIn maturity.
type LizardKnockIn struct {
	Lizard         Lizard
	KnockInBarrier float64
}

// MonthlyPay accrues a monthly coupon whenever the worst ratio is above
// Barrier and only allows redemption on period boundaries.
type MonthlyPay struct {
	Barrier float64
}

// Variant implements Policy.
func (Plain) Variant() string { return constants.VariantPlain }

// Variant implements Policy.
func (Lock) Variant() string { return constants.VariantLock }

// Variant implements Policy.
func (KnockIn) Variant() string { return constants.VariantKnockIn }

// Variant implements Policy.
func (Lizard) Variant() string { return constants.VariantLizard }

// Variant implements Policy.
func (LizardKnockIn) Variant() string { return constants.VariantLizardKnockIn }

// Variant implements Policy.
func (MonthlyPay) Variant() string { return constants.VariantMonthlyPay }

func (Plain) validate(int) error { return nil }

func (l Lock) validate(observations int) error {
	if l.Observation < 1 || l.Observation > observations {
		return fmt.Errorf("%w: lock observation %d outside 1..%d", ErrInvalidProduct, l.Observation, observations)
	}
	return nil
}

func (k KnockIn) validate(int) error {
	return validateFraction("knock-in barrier", k.Barrier)
}

func (l Lizard) validate(observations int) error {
	if len(l.Schedule) == 0 {
		return fmt.Errorf("%w: lizard schedule is empty", ErrInvalidProduct)
	}
	for obs, threshold := range l.Schedule {
		if obs < 1 || obs > observations {
			return fmt.Errorf("%w: lizard observation %d outside 1..%d", ErrInvalidProduct, obs, observations)
		}
		if err := validateFraction(fmt.Sprintf("lizard threshold at observation %d", obs), threshold); err != nil {
			return err
		}
	}
	if l.CouponMultiplier <= 0 {
		return fmt.Errorf("%w: lizard coupon multiplier must be positive, got %v", ErrInvalidProduct, l.CouponMultiplier)
	}
	return nil
}

func (l LizardKnockIn) validate(observations int) error {
	if err := l.Lizard.validate(observations); err != nil {
		return err
	}
	return KnockIn{Barrier: l.KnockInBarrier}.validate(observations)
}

func (m MonthlyPay) validate(int) error {
	return validateFraction("monthly-pay barrier", m.Barrier)
}

func validateFraction(name string, v float64) error {
	if !(v > 0 && v <= 1) {
		return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidProduct, name, v)
	}
	return nil
}

// policy returns the product's policy with nil resolved to Plain.
func (p Product) policy() Policy {
	if p.Policy == nil {
		return Plain{}
	}
	return p.Policy
}

// Variant returns the configuration name of the product's policy.
func (p Product) Variant() string {
	return p.policy().Variant()
}

// Observations returns the number of barrier observations.
func (p Product) Observations() int {
	return len(p.Barriers)
}

// Validate checks the product's structural invariants.
func (p Product) Validate() error {
	if len(p.Barriers) == 0 {
		return ErrEmptyBarrierSchedule
	}
	if len(p.Underlyings) == 0 {
		return fmt.Errorf("%w: at least one underlying is required", ErrInvalidProduct)
	}
	seen := make(map[string]bool, len(p.Underlyings))
	for _, u := range p.Underlyings {
		if seen[u] {
			return fmt.Errorf("%w: duplicate underlying %s", ErrInvalidProduct, u)
		}
		seen[u] = true
	}

	n, err := schedule.Count(p.MaturityYears, p.PeriodMonths)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	if n != len(p.Barriers) {
		return fmt.Errorf("%w: %d barriers configured for %d observations", ErrInvalidProduct, len(p.Barriers), n)
	}
	for i, b := range p.Barriers {
		if err := validateFraction(fmt.Sprintf("barrier %d", i+1), b); err != nil {
			return err
		}
	}
	if p.Coupon < 0 {
		return fmt.Errorf("%w: coupon must not be negative, got %v", ErrInvalidProduct, p.Coupon)
	}

	return p.policy().validate(n)
}

// Info is a flat summary of a product for display.
type Info struct {
	Name          string
	Variant       string
	Underlyings   []string
	StartDate     string
	MaturityYears int
	PeriodMonths  int
	Coupon        float64
	Barriers      []float64
	Extras        map[string]string
}

// Info summarises the product and its variant parameters.
func (p Product) Info() Info {
	info := Info{
		Name:          p.Name,
		Variant:       p.Variant(),
		Underlyings:   append([]string(nil), p.Underlyings...),
		StartDate:     datetime.Format(p.StartDate),
		MaturityYears: p.MaturityYears,
		PeriodMonths:  p.PeriodMonths,
		Coupon:        p.Coupon,
		Barriers:      append([]float64(nil), p.Barriers...),
		Extras:        map[string]string{},
	}

	switch pol := p.policy().(type) {
	case Lock:
		info.Extras["lockObservation"] = fmt.Sprintf("%d", pol.Observation)
	case KnockIn:
		info.Extras["knockInBarrier"] = fmt.Sprintf("%g", pol.Barrier)
	case Lizard:
		addLizardInfo(info.Extras, pol)
	case LizardKnockIn:
		addLizardInfo(info.Extras, pol.Lizard)
		info.Extras["knockInBarrier"] = fmt.Sprintf("%g", pol.KnockInBarrier)
	case MonthlyPay:
		info.Extras["monthlyPayBarrier"] = fmt.Sprintf("%g", pol.Barrier)
	}
	return info
}

func addLizardInfo(extras map[string]string, l Lizard) {
	obs := make([]int, 0, len(l.Schedule))
	for o := range l.Schedule {
		obs = append(obs, o)
	}
	sort.Ints(obs)
	s := ""
	for i, o := range obs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d:%g", o, l.Schedule[o])
	}
	extras["lizard"] = s
	extras["lizardCoupon"] = fmt.Sprintf("%g", l.CouponMultiplier)
}
