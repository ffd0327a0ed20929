// Package output provides utilities for formatting and displaying forecast results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/iwvelando/autocall-forecast/internal/forecast"
	"github.com/iwvelando/autocall-forecast/internal/montecarlo"
	"github.com/iwvelando/autocall-forecast/pkg/autocall"
	"github.com/iwvelando/autocall-forecast/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrettyFormat outputs a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, results []forecast.Forecast, notional float64) error {
	p := message.NewPrinter(language.English)
	for i, result := range results {
		r := result.Result
		lines := [][2]string{
			{"Underlyings", strings.Join(result.Info.Underlyings, ", ")},
			{"Start date", result.Info.StartDate},
			{"Terms", p.Sprintf("%d years, every %d months, coupon %s", result.Info.MaturityYears, result.Info.PeriodMonths, format.Percent(result.Info.Coupon))},
			{"Barriers", barriers(result.Info.Barriers)},
		}
		for _, k := range sortedKeys(result.Info.Extras) {
			lines = append(lines, [2]string{k, result.Info.Extras[k]})
		}
		lines = append(lines,
			[2]string{"Source", result.Source},
			[2]string{"Outcome", r.Outcome.String()},
			[2]string{"Months", strconv.Itoa(r.Months)},
			[2]string{"Payoff", format.Percent(r.Payoff)},
			[2]string{"Redemption", format.Currency(format.Redemption(notional, r.Payoff))},
		)
		if len(result.Notes) > 0 {
			lines = append(lines, [2]string{"Notes", strings.Join(result.Notes, "; ")})
		}

		if _, err := p.Fprintf(w, "--- Results for product %s (%s) ---\n", result.Name, result.Info.Variant); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := p.Fprintf(w, "%-12s | %s\n", l[0], l[1]); err != nil {
				return err
			}
		}
		if result.Distribution != nil {
			if err := prettyDistribution(w, p, result.Distribution, notional); err != nil {
				return err
			}
		}
		if i < len(results)-1 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
	}
	return nil
}

func prettyDistribution(w io.Writer, p *message.Printer, s *montecarlo.Summary, notional float64) error {
	if _, err := p.Fprintf(w, "Distribution over %d simulated paths (base seed %d)\n", s.Paths, s.BaseSeed); err != nil {
		return err
	}
	for _, o := range autocall.Outcomes() {
		if s.Counts[o] == 0 {
			continue
		}
		if _, err := p.Fprintf(w, "  %-24s | %d (%s)\n", o, s.Counts[o], format.Percent(s.Probability(o))); err != nil {
			return err
		}
	}
	if _, err := p.Fprintf(w, "  %-24s | %s (%s)\n", "mean payoff", format.Percent(s.MeanPayoff), format.Currency(format.Redemption(notional, s.MeanPayoff))); err != nil {
		return err
	}
	if _, err := p.Fprintf(w, "  %-24s | %.1f\n", "mean months", s.MeanMonths); err != nil {
		return err
	}
	if _, err := p.Fprintf(w, "  %-24s | %s\n", "loss probability", format.Percent(s.LossProbability)); err != nil {
		return err
	}
	for _, q := range montecarlo.SummaryQuantiles {
		v, ok := s.Percentiles[q]
		if !ok {
			continue
		}
		label := fmt.Sprintf("payoff p%g", q*100)
		if _, err := p.Fprintf(w, "  %-24s | %s\n", label, format.Percent(v)); err != nil {
			return err
		}
	}
	return nil
}

// CsvHeader is the column layout written by CsvFormat.
var CsvHeader = []string{
	"name", "variant", "underlyings", "start date", "source", "outcome", "observation",
	"months", "payoff", "redemption", "knocked in", "accrual count", "notes",
	"paths", "mean payoff", "loss probability",
}

// CsvFormat outputs one comma-separated row per product.
func CsvFormat(w io.Writer, results []forecast.Forecast, notional float64) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CsvHeader); err != nil {
		return err
	}
	for _, result := range results {
		r := result.Result
		row := []string{
			result.Name,
			result.Info.Variant,
			strings.Join(result.Info.Underlyings, ";"),
			result.Info.StartDate,
			result.Source,
			r.Outcome.String(),
			strconv.Itoa(r.Observation),
			strconv.Itoa(r.Months),
			strconv.FormatFloat(r.Payoff, 'f', 6, 64),
			format.Redemption(notional, r.Payoff).StringFixed(2),
			strconv.FormatBool(r.KnockedIn),
			strconv.Itoa(r.AccrualCount),
			strings.Join(result.Notes, "; "),
			"", "", "",
		}
		if s := result.Distribution; s != nil {
			row[13] = strconv.Itoa(s.Paths)
			row[14] = strconv.FormatFloat(s.MeanPayoff, 'f', 6, 64)
			row[15] = strconv.FormatFloat(s.LossProbability, 'f', 6, 64)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// CsvString returns the CsvFormat output as a string.
func CsvString(results []forecast.Forecast, notional float64) (string, error) {
	var b strings.Builder
	if err := CsvFormat(&b, results, notional); err != nil {
		return "", err
	}
	return b.String(), nil
}

func barriers(bs []float64) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = format.Percent(b)
	}
	return strings.Join(parts, " / ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
