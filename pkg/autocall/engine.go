package autocall

import (
	"fmt"
	"math"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/mathutil"
	"github.com/iwvelando/autocall-forecast/pkg/ratio"
)

// hooks are the variant-specific steps of the observation loop.
type hooks struct {
	// midLoop runs after a failed early-redemption check.
	midLoop func(i int, worst float64) (Result, bool)
	// final resolves the last observation when it did not redeem early.
	final func(i int, worst float64) (Result, bool)
}

// EvaluateMatrix evaluates product against a prebuilt ratio matrix. For
// MonthlyPay products the matrix must have one row per month; otherwise one
// row per barrier. kiWorst is the continuous worst ratio from the start date
// to the final observation and is read only by knock-in variants.
func EvaluateMatrix(product Product, m *ratio.Matrix, kiWorst float64) (Result, error) {
	if err := product.Validate(); err != nil {
		return Result{}, err
	}

	switch pol := product.policy().(type) {
	case Plain:
		return product.run(m, hooks{final: product.maturityLoss})
	case Lock:
		locked, _, err := m.LockWorst(pol.Observation)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
		}
		return product.run(locked, hooks{final: product.maturityLoss})
	case KnockIn:
		return product.run(m, hooks{final: product.knockInFinal(pol.Barrier, kiWorst)})
	case Lizard:
		return product.run(m, hooks{midLoop: product.lizardCheck(pol), final: product.maturityLoss})
	case LizardKnockIn:
		return product.run(m, hooks{
			midLoop: product.lizardCheck(pol.Lizard),
			final:   product.knockInFinal(pol.KnockInBarrier, kiWorst),
		})
	case MonthlyPay:
		return product.runMonthly(m, pol)
	default:
		return Result{}, fmt.Errorf("%w: unsupported policy %T", ErrInvalidProduct, pol)
	}
}

// run is the observation loop shared by every periodic variant.
func (p Product) run(m *ratio.Matrix, h hooks) (Result, error) {
	n := len(p.Barriers)
	if m.Len() != n {
		return Result{}, fmt.Errorf("%w: ratio matrix has %d observations, product has %d", ErrInvalidProduct, m.Len(), n)
	}

	for i := 0; i < n; i++ {
		worst := m.Worst(i)
		if worst > p.Barriers[i] {
			return p.coupon(i, 1, EarlyRedeemed), nil
		}
		if h.midLoop != nil {
			if r, ok := h.midLoop(i, worst); ok {
				return r, nil
			}
		}
		if i == n-1 && worst <= p.Barriers[i] {
			if r, ok := h.final(i, worst); ok {
				return r, nil
			}
		}
	}
	return Result{}, ErrNoTerminationFound
}

// coupon is the periodic coupon earned up to observation index i.
func (p Product) coupon(i int, multiplier float64, outcome Outcome) Result {
	months := (i + 1) * p.PeriodMonths
	return Result{
		Months:      months,
		Payoff:      mathutil.MonthlyCoupon(months, p.Coupon) * multiplier,
		Outcome:     outcome,
		Observation: i + 1,
	}
}

func (p Product) maturityLoss(i int, worst float64) (Result, bool) {
	return Result{
		Months:      (i + 1) * p.PeriodMonths,
		Payoff:      worst - 1,
		Outcome:     MaturityRedeemed,
		Observation: i + 1,
	}, true
}

func (p Product) knockInFinal(barrier, kiWorst float64) func(int, float64) (Result, bool) {
	return func(i int, worst float64) (Result, bool) {
		switch {
		case math.IsNaN(kiWorst):
			return Result{}, false
		case kiWorst < barrier:
			r, _ := p.maturityLoss(i, worst)
			r.Outcome = KnockInLoss
			r.KnockedIn = true
			return r, true
		default:
			return p.coupon(i, 1, NoKnockInRedeemed), true
		}
	}
}

// lizardCheck pays the bonus only at observations listed in the schedule.
func (p Product) lizardCheck(l Lizard) func(int, float64) (Result, bool) {
	return func(i int, worst float64) (Result, bool) {
		threshold, ok := l.Schedule[i+1]
		if !ok || !(worst > threshold) {
			return Result{}, false
		}
		return p.coupon(i, l.CouponMultiplier, LizardBonus), true
	}
}

// MonthlyBarriers returns the per-month barrier list of a monthly-pay
// product: the monthly-pay barrier everywhere except period-boundary months,
// which take the product barrier of that boundary.
func (p Product) MonthlyBarriers(mp MonthlyPay) []float64 {
	months := p.MaturityYears * constants.MonthsPerYear
	out := make([]float64, months)
	for k := range out {
		out[k] = mp.Barrier
	}
	for i, b := range p.Barriers {
		out[(i+1)*p.PeriodMonths-1] = b
	}
	return out
}

func (p Product) runMonthly(m *ratio.Matrix, mp MonthlyPay) (Result, error) {
	barriers := p.MonthlyBarriers(mp)
	n := len(barriers)
	if m.Len() != n {
		return Result{}, fmt.Errorf("%w: monthly ratio matrix has %d observations, product has %d months", ErrInvalidProduct, m.Len(), n)
	}

	accrued := 0.0
	count := 0
	for k := 0; k < n; k++ {
		worst := m.Worst(k)
		if worst > mp.Barrier {
			count++
			accrued += mathutil.MonthlyCoupon(constants.MonthlyPeriod, p.Coupon)
		}
		if k%p.PeriodMonths != p.PeriodMonths-1 {
			continue
		}

		r := Result{Months: k + 1, Observation: k + 1, AccrualCount: count}
		switch {
		case worst > barriers[k]:
			r.Payoff = accrued
			r.Outcome = MonthlyAccrualRedeemed
			return r, nil
		case k == n-1 && worst <= barriers[k]:
			r.Payoff = worst - 1 + accrued
			r.Outcome = MonthlyAccrualLoss
			return r, nil
		}
	}
	return Result{}, ErrNoTerminationFound
}
