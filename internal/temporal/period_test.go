package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPeriod(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Revenue for Q2 2025 rose 12%", "2Q2025"},
		{"q3 2024 results", "3Q2024"},
		{"Q2'25 guidance", "2Q2025"},
		{"Q4 FY2025 margin", "4Q2025"},
		{"DBS 2Q25 earnings", "2Q2025"},
		{"2Q2025 NIM", "2Q2025"},
		{"second quarter of 2025 deliveries", "2Q2025"},
		{"Third Quarter 2024 update", "3Q2024"},
		{"FY2024 revenue", "FY2024"},
		{"fy24 outlook", "FY2024"},
		{"FY'24 guidance", "FY2024"},
		{"FY 2024 capex", "FY2024"},
		{"Q2 FY25 bookings", "2Q2025"},
		{"Q1-2025 update", "1Q2025"},
		{"fiscal year 2023 capex", "FY2023"},
		{"Fiscal 2022 report", "FY2022"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			p, ok := ExtractPeriod(tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.want, p.String())
		})
	}
}

func TestExtractPeriod_NoMatch(t *testing.T) {
	for _, text := range []string{
		"",
		"latest update on headwinds",
		"Q5 2025",
		"revenue in 12Q2025x",
		"We filed the Q4 10-K last week",
		"Q3 15 analysts raised targets",
		"2Q 25 stores opened",
		"the FY 10-K is due",
		"fy 24 outlook",
	} {
		_, ok := ExtractPeriod(text)
		assert.False(t, ok, text)
	}
}

func TestExtractPeriod_CaseInsensitive(t *testing.T) {
	lower, ok1 := ExtractPeriod("q2 2025")
	upper, ok2 := ExtractPeriod("Q2 2025")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, lower, upper)
}

func TestParsePeriod_Canonical(t *testing.T) {
	p, ok := ParsePeriod("2Q2025")
	require.True(t, ok)
	assert.Equal(t, Period{Year: 2025, Quarter: 2}, p)

	p, ok = ParsePeriod("FY2024")
	require.True(t, ok)
	assert.Equal(t, Period{Year: 2024}, p)
}

func TestPeriod_End(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), Period{Year: 2025, Quarter: 1}.End())
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), Period{Year: 2025, Quarter: 2}.End())
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), Period{Year: 2025, Quarter: 4}.End())
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), Period{Year: 2024}.End())
}

func TestPeriod_Before(t *testing.T) {
	q4 := Period{Year: 2024, Quarter: 4}
	fy := Period{Year: 2024}
	q1 := Period{Year: 2025, Quarter: 1}
	assert.True(t, q4.Before(fy))
	assert.True(t, fy.Before(q1))
	assert.False(t, q1.Before(q4))
	assert.True(t, Period{}.IsZero())
}
