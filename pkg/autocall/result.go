package autocall

// Outcome classifies how a product terminated.
type Outcome int

const (
	EarlyRedeemed Outcome = iota
	MaturityRedeemed
	KnockInLoss
	NoKnockInRedeemed
	LizardBonus
	MonthlyAccrualRedeemed
	MonthlyAccrualLoss
)

var outcomeNames = [...]string{
	EarlyRedeemed:          "early_redeemed",
	MaturityRedeemed:       "maturity_redeemed",
	KnockInLoss:            "knock_in_loss",
	NoKnockInRedeemed:      "no_knock_in_redeemed",
	LizardBonus:            "lizard_bonus",
	MonthlyAccrualRedeemed: "monthly_accrual_redeemed",
	MonthlyAccrualLoss:     "monthly_accrual_loss",
}

// String returns the stable snake-case name of the outcome.
func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Outcomes lists every outcome in declaration order.
func Outcomes() []Outcome {
	out := make([]Outcome, len(outcomeNames))
	for i := range outcomeNames {
		out[i] = Outcome(i)
	}
	return out
}

// Result is the evaluation of one product against one price history.
type Result struct {
	Months       int     // months elapsed at termination
	Payoff       float64 // coupon fraction, or ratio-1 on a loss
	Outcome      Outcome
	Observation  int  // 1-based row of the matrix that resolved the product
	AccrualCount int  // monthly coupons accrued, monthly-pay only
	KnockedIn    bool // knock-in variants only
}

// Loss reports whether the payoff is negative.
func (r Result) Loss() bool {
	return r.Payoff < 0
}
