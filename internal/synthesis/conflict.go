package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ConflictRecord describes numeric sources that disagree beyond the
// threshold.
type ConflictRecord struct {
	VariancePct    float64                    `json:"variance_pct"`
	Spread         decimal.Decimal            `json:"spread"`
	Threshold      float64                    `json:"threshold"`
	Min            decimal.Decimal            `json:"min"`
	Max            decimal.Decimal            `json:"max"`
	ValuesBySource map[string]decimal.Decimal `json:"values_by_source"`
	Summary        string                     `json:"summary"`
}

type numericReading struct {
	label string
	value decimal.Decimal
}

func numericReadings(sources []EnrichedSource) []numericReading {
	var out []numericReading
	for _, s := range sources {
		if s.Value.IsNumeric() {
			out = append(out, numericReading{label: s.Label(), value: *s.Value.Number})
		}
	}
	return out
}

func readingValues(readings []numericReading) []decimal.Decimal {
	vals := make([]decimal.Decimal, len(readings))
	for i, r := range readings {
		vals[i] = r.value
	}
	return vals
}

// RelativeSpread returns (max - min) divided by the smallest non-zero
// magnitude among values. Fewer than two values, or all zeros, give zero.
// Arithmetic is exact so a spread sitting on the threshold compares equal.
func RelativeSpread(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	lo, hi := values[0], values[0]
	var denom decimal.Decimal
	for _, v := range values {
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
		if a := v.Abs(); !a.IsZero() && (denom.IsZero() || a.LessThan(denom)) {
			denom = a
		}
	}
	if denom.IsZero() {
		return decimal.Zero
	}
	return hi.Sub(lo).Div(denom)
}

// DetectConflicts compares the numeric readings among enriched. Text and
// missing values are left out. It returns nil for fewer than two numbers or
// a spread at or below the threshold.
func (e *Engine) DetectConflicts(enriched []EnrichedSource) *ConflictRecord {
	readings := numericReadings(enriched)
	if len(readings) < 2 {
		return nil
	}
	values := readingValues(readings)
	spread := RelativeSpread(values)
	if !spread.GreaterThan(e.threshold()) {
		return nil
	}

	bySource := make(map[string]decimal.Decimal, len(readings))
	lo, hi := values[0], values[0]
	for _, r := range readings {
		bySource[uniqueValueKey(bySource, r.label)] = r.value
		lo = decimal.Min(lo, r.value)
		hi = decimal.Max(hi, r.value)
	}

	names := make([]string, 0, len(bySource))
	for k := range bySource {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", k, bySource[k].String()))
	}

	return &ConflictRecord{
		VariancePct:    spread.Mul(decimal.NewFromInt(100)).InexactFloat64(),
		Spread:         spread,
		Threshold:      e.policy.ConflictVarianceThreshold,
		Min:            lo,
		Max:            hi,
		ValuesBySource: bySource,
		Summary: fmt.Sprintf("%d sources disagree by %s%% (threshold %s%%): %s",
			len(readings), percent(spread), percent(e.threshold()), strings.Join(parts, ", ")),
	}
}

func uniqueValueKey(m map[string]decimal.Decimal, key string) string {
	if _, ok := m[key]; !ok {
		return key
	}
	for i := 2; ; i++ {
		k := fmt.Sprintf("%s#%d", key, i)
		if _, ok := m[k]; !ok {
			return k
		}
	}
}
