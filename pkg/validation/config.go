// Package validation provides configuration validation utilities.
package validation

import (
	"fmt"
	"sort"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/mathutil"
)

// ProductInfo is the subset of a configured product inspected for warnings.
type ProductInfo struct {
	Name              string
	Active            bool
	Variant           string
	Barriers          []float64
	LockObservation   int
	KnockInBarrier    float64
	Lizard            map[int]float64
	LizardCoupon      float64
	MonthlyPayBarrier float64
}

// ConfigValidator collects non-fatal configuration warnings.
type ConfigValidator struct {
	Products []ProductInfo
}

// ValidateAll validates the entire configuration and returns warnings
func (cv *ConfigValidator) ValidateAll() []string {
	var warnings []string

	active := 0
	for _, p := range cv.Products {
		if !p.Active {
			warnings = append(warnings, fmt.Sprintf("Product '%s' is inactive and will be skipped", p.Name))
			continue
		}
		active++
		warnings = append(warnings, ValidateBarrierSchedule(p.Name, p.Barriers)...)
		warnings = append(warnings, ValidateVariantFields(p)...)
	}

	if len(cv.Products) > 0 && active == 0 {
		warnings = append(warnings, "No active products configured")
	}
	return warnings
}

// ValidateBarrierSchedule warns when a barrier rises above its predecessor.
// Autocallable schedules normally step down.
func ValidateBarrierSchedule(name string, barriers []float64) []string {
	var warnings []string
	for i := 1; i < len(barriers); i++ {
		if barriers[i] > barriers[i-1] && !mathutil.RatioEqual(barriers[i], barriers[i-1]) {
			warnings = append(warnings, fmt.Sprintf("Product '%s' barrier %d (%.2f) is above barrier %d (%.2f)",
				name, i+1, barriers[i], i, barriers[i-1]))
		}
	}
	return warnings
}

// ValidateVariantFields warns about parameters that the configured variant
// ignores and about thresholds that can never trigger.
func ValidateVariantFields(p ProductInfo) []string {
	var warnings []string
	variant := p.Variant
	if variant == "" {
		variant = constants.VariantPlain
	}

	unused := func(field string) {
		warnings = append(warnings, fmt.Sprintf("Product '%s' sets %s which the %s variant ignores", p.Name, field, variant))
	}

	usesLizard := variant == constants.VariantLizard || variant == constants.VariantLizardKnockIn
	usesKnockIn := variant == constants.VariantKnockIn || variant == constants.VariantLizardKnockIn

	if p.LockObservation != 0 && variant != constants.VariantLock {
		unused("lockObservation")
	}
	if p.KnockInBarrier != 0 && !usesKnockIn {
		unused("knockInBarrier")
	}
	if len(p.Lizard) > 0 && !usesLizard {
		unused("lizard")
	}
	if p.LizardCoupon != 0 && !usesLizard {
		unused("lizardCoupon")
	}
	if p.MonthlyPayBarrier != 0 && variant != constants.VariantMonthlyPay {
		unused("monthlyPayBarrier")
	}

	if usesKnockIn && len(p.Barriers) > 0 && p.KnockInBarrier >= p.Barriers[len(p.Barriers)-1] {
		warnings = append(warnings, fmt.Sprintf("Product '%s' knock-in barrier %.2f is not below the final barrier %.2f",
			p.Name, p.KnockInBarrier, p.Barriers[len(p.Barriers)-1]))
	}
	if usesLizard {
		observations := make([]int, 0, len(p.Lizard))
		for obs := range p.Lizard {
			observations = append(observations, obs)
		}
		sort.Ints(observations)
		for _, obs := range observations {
			threshold := p.Lizard[obs]
			if obs >= 1 && obs <= len(p.Barriers) && threshold >= p.Barriers[obs-1] {
				warnings = append(warnings, fmt.Sprintf("Product '%s' lizard threshold %.2f at observation %d can never pay a bonus (barrier %.2f)",
					p.Name, threshold, obs, p.Barriers[obs-1]))
			}
		}
	}
	if variant == constants.VariantMonthlyPay {
		for i, b := range p.Barriers {
			if p.MonthlyPayBarrier > b {
				warnings = append(warnings, fmt.Sprintf("Product '%s' monthly-pay barrier %.2f is above barrier %d (%.2f)",
					p.Name, p.MonthlyPayBarrier, i+1, b))
				break
			}
		}
	}

	return warnings
}
