// Package temporal annotates graph entities and edges with freshness and
// reporting-period metadata and links the same metric across periods.
//
// Every value it produces is a function of (source date, evaluation instant,
// half-life). Nothing here performs I/O or keeps state between calls.
package temporal

import (
	"math"
	"strings"
	"time"

	"github.com/sells-group/evidence-cli/internal/model"
)

// DefaultHalfLifeDays is the age at which freshness drops to 0.5.
const DefaultHalfLifeDays = 30.0

// AgeThresholds are the exclusive upper bounds, in days, of each age bucket.
type AgeThresholds struct {
	VeryFresh float64 `yaml:"very_fresh"`
	Fresh     float64 `yaml:"fresh"`
	Moderate  float64 `yaml:"moderate"`
}

// DefaultAgeThresholds returns the 7/30/90 day buckets.
func DefaultAgeThresholds() AgeThresholds {
	return AgeThresholds{VeryFresh: 7, Fresh: 30, Moderate: 90}
}

// Config holds decay parameters.
type Config struct {
	HalfLifeDays  float64       `yaml:"half_life_days"`
	AgeThresholds AgeThresholds `yaml:"age_thresholds"`
}

// DefaultConfig returns the standard 30-day half-life configuration.
func DefaultConfig() Config {
	return Config{HalfLifeDays: DefaultHalfLifeDays, AgeThresholds: DefaultAgeThresholds()}
}

// ConfigFromDays builds a Config from a half-life and the three bucket bounds.
// Missing or non-positive values fall back to the defaults.
func ConfigFromDays(halfLife float64, thresholds []int) Config {
	cfg := DefaultConfig()
	if halfLife > 0 {
		cfg.HalfLifeDays = halfLife
	}
	if len(thresholds) == 3 && thresholds[0] > 0 {
		cfg.AgeThresholds = AgeThresholds{
			VeryFresh: float64(thresholds[0]),
			Fresh:     float64(thresholds[1]),
			Moderate:  float64(thresholds[2]),
		}
	}
	return cfg
}

// Freshness computes exp(-ln2 * ageDays / halfLifeDays).
// Result is 1.0 at age 0, 0.5 at one half-life and approaches 0 without
// going negative. Future-dated sources count as current.
func Freshness(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	if ageDays <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// AgeDays returns the fractional number of days between sourceDate and now,
// clamped at 0.
func AgeDays(sourceDate, now time.Time) float64 {
	age := now.Sub(sourceDate).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

// Categorize buckets an age. Bounds are exclusive: an age equal to a
// threshold falls in the next, older bucket.
func (t AgeThresholds) Categorize(ageDays float64) model.AgeCategory {
	switch {
	case ageDays < t.VeryFresh:
		return model.AgeVeryFresh
	case ageDays < t.Fresh:
		return model.AgeFresh
	case ageDays < t.Moderate:
		return model.AgeModerate
	default:
		return model.AgeStale
	}
}

// Categorize buckets an age using the default thresholds.
func Categorize(ageDays float64) model.AgeCategory {
	return DefaultAgeThresholds().Categorize(ageDays)
}

// DateLayouts are tried in order by ParseSourceDate.
var DateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700", // email Date: header with single-digit day
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
}

// ParseSourceDate parses the date formats seen in emails, filings and reports.
// The second return value is false when nothing matched.
func ParseSourceDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
