package temporal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/model"
)

func TestFreshness_Current(t *testing.T) {
	assert.Equal(t, 1.0, Freshness(0, 30))
}

func TestFreshness_HalfLife(t *testing.T) {
	assert.InDelta(t, 0.5, Freshness(30, 30), 1e-12)
}

func TestFreshness_TwoHalfLives(t *testing.T) {
	assert.InDelta(t, 0.25, Freshness(60, 30), 1e-12)
}

func TestFreshness_FutureClampsToOne(t *testing.T) {
	assert.Equal(t, 1.0, Freshness(-5, 30))
}

func TestFreshness_ZeroHalfLifeUsesDefault(t *testing.T) {
	assert.InDelta(t, 0.5, Freshness(DefaultHalfLifeDays, 0), 1e-12)
}

func TestFreshness_MonotoneAndNonNegative(t *testing.T) {
	prev := Freshness(0, 30)
	for day := 1; day <= 3650; day++ {
		got := Freshness(float64(day), 30)
		require.Less(t, got, prev, "day %d", day)
		require.GreaterOrEqual(t, got, 0.0, "day %d", day)
		prev = got
	}
}

func TestFreshness_DecayCurve(t *testing.T) {
	tests := []struct {
		name     string
		ageDays  float64
		halfLife float64
	}{
		{"7d", 7, 30},
		{"45d", 45, 30},
		{"90d", 90, 30},
		{"custom half-life", 10, 14},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			want := math.Pow(2, -tc.ageDays/tc.halfLife)
			assert.InDelta(t, want, Freshness(tc.ageDays, tc.halfLife), 1e-12)
		})
	}
}

func TestCategorize_Boundaries(t *testing.T) {
	tests := []struct {
		age  float64
		want model.AgeCategory
	}{
		{0, model.AgeVeryFresh},
		{6.99, model.AgeVeryFresh},
		{7, model.AgeFresh},
		{29.9, model.AgeFresh},
		{30, model.AgeModerate},
		{89, model.AgeModerate},
		{90, model.AgeStale},
		{400, model.AgeStale},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Categorize(tc.age), "age %v", tc.age)
	}
}

func TestCategorize_CustomThresholds(t *testing.T) {
	th := AgeThresholds{VeryFresh: 1, Fresh: 3, Moderate: 10}
	assert.Equal(t, model.AgeFresh, th.Categorize(2))
	assert.Equal(t, model.AgeStale, th.Categorize(10))
}

func TestConfigFromDays(t *testing.T) {
	cfg := ConfigFromDays(45, []int{3, 14, 60})
	assert.Equal(t, 45.0, cfg.HalfLifeDays)
	assert.Equal(t, AgeThresholds{VeryFresh: 3, Fresh: 14, Moderate: 60}, cfg.AgeThresholds)

	def := ConfigFromDays(0, nil)
	assert.Equal(t, DefaultConfig(), def)
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	assert.InDelta(t, 1.5, AgeDays(now.Add(-36*time.Hour), now), 1e-9)
	assert.Equal(t, 0.0, AgeDays(now.Add(time.Hour), now))
}

func TestParseSourceDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2025-07-01", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-07-01T09:30:00Z", time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)},
		{"2025-07-01T09:30:00-04:00", time.Date(2025, 7, 1, 13, 30, 0, 0, time.UTC)},
		{"Tue, 01 Jul 2025 09:30:00 +0000", time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)},
		{"Tue, 1 Jul 2025 09:30:00 +0000", time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)},
		{"Jul 1, 2025", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"July 1, 2025", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"07/01/2025", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := ParseSourceDate(tc.raw)
			require.True(t, ok)
			assert.True(t, tc.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseSourceDate_Malformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "yesterday", "2025-13-45"} {
		_, ok := ParseSourceDate(raw)
		assert.False(t, ok, raw)
	}
}
