package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/model"
)

func metricEntity(id, typ, ticker, period string, value float64) model.Entity {
	return model.Entity{
		ID:       id,
		Type:     typ,
		Ticker:   ticker,
		Value:    model.Float(value),
		Temporal: &model.TemporalMetadata{ReportingPeriod: period},
	}
}

func TestDetectEvolution_AdjacentPeriods(t *testing.T) {
	entities := []model.Entity{
		metricEntity("q3", "nim", "D05", "3Q2025", 2.05),
		metricEntity("q1", "nim", "D05", "1Q2025", 2.12),
		metricEntity("q2", "nim", "D05", "2Q2025", 2.10),
	}

	edges := DetectEvolution(entities)

	require.Len(t, edges, 2)
	assert.Equal(t, model.EdgeMetricEvolved, edges[0].Type)
	assert.Equal(t, "q1", edges[0].From)
	assert.Equal(t, "q2", edges[0].To)
	assert.Equal(t, "1Q2025", edges[0].FromPeriod)
	assert.Equal(t, "2Q2025", edges[0].ToPeriod)
	assert.Equal(t, 91, edges[0].TimeDeltaDays)
	require.NotNil(t, edges[0].Change)
	assert.InDelta(t, -0.02, *edges[0].Change, 1e-9)

	assert.Equal(t, "q2", edges[1].From)
	assert.Equal(t, "q3", edges[1].To)
	assert.Equal(t, 92, edges[1].TimeDeltaDays)
}

func TestDetectEvolution_SinglePeriodProducesNothing(t *testing.T) {
	edges := DetectEvolution([]model.Entity{metricEntity("a", "revenue", "NVDA", "2Q2025", 44)})
	assert.Empty(t, edges)
}

func TestDetectEvolution_SkipsEntitiesWithoutPeriod(t *testing.T) {
	entities := []model.Entity{
		metricEntity("a", "revenue", "NVDA", "1Q2025", 39),
		{ID: "b", Type: "revenue", Ticker: "NVDA", Value: model.Float(44)},
		metricEntity("c", "revenue", "NVDA", "", 41),
	}
	assert.Empty(t, DetectEvolution(entities))
}

func TestDetectEvolution_GroupsByTypeAndTicker(t *testing.T) {
	entities := []model.Entity{
		metricEntity("n1", "revenue", "NVDA", "1Q2025", 39),
		metricEntity("a1", "revenue", "AMD", "1Q2025", 7),
		metricEntity("n2", "Revenue", "nvda", "2Q2025", 44),
		metricEntity("m2", "margin", "NVDA", "2Q2025", 0.6),
	}

	edges := DetectEvolution(entities)

	require.Len(t, edges, 1)
	assert.Equal(t, "n1", edges[0].From)
	assert.Equal(t, "n2", edges[0].To)
	assert.Equal(t, "revenue", edges[0].MetricType)
	assert.Equal(t, "NVDA", edges[0].Ticker)
}

func TestDetectEvolution_DuplicatePeriodKeepsNewest(t *testing.T) {
	older := metricEntity("old", "revenue", "NVDA", "2Q2025", 43)
	newer := metricEntity("new", "revenue", "NVDA", "2Q2025", 44)
	d1 := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	older.Temporal.SourceDate = &d1
	newer.Temporal.SourceDate = &d2

	edges := DetectEvolution([]model.Entity{
		metricEntity("q1", "revenue", "NVDA", "1Q2025", 39),
		older,
		newer,
	})

	require.Len(t, edges, 1)
	assert.Equal(t, "new", edges[0].To)
	assert.InDelta(t, 5.0, *edges[0].Change, 1e-9)
}

func TestDetectEvolution_MissingValueLeavesChangeNil(t *testing.T) {
	a := metricEntity("a", "revenue", "NVDA", "FY2023", 0)
	a.Value = nil
	b := metricEntity("b", "revenue", "NVDA", "FY2024", 130)

	edges := DetectEvolution([]model.Entity{b, a})

	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].From)
	assert.Nil(t, edges[0].FromValue)
	assert.NotNil(t, edges[0].ToValue)
	assert.Nil(t, edges[0].Change)
	assert.Equal(t, 366, edges[0].TimeDeltaDays)
}

func TestDetectEvolution_QuartersAndYearsChainSeparately(t *testing.T) {
	entities := []model.Entity{
		metricEntity("q3", "revenue", "NVDA", "3Q2024", 28),
		metricEntity("q4", "revenue", "NVDA", "4Q2024", 30),
		metricEntity("fy", "revenue", "NVDA", "FY2024", 120),
	}

	edges := DetectEvolution(entities)

	require.Len(t, edges, 1)
	assert.Equal(t, "q3", edges[0].From)
	assert.Equal(t, "q4", edges[0].To)
	for _, e := range edges {
		assert.NotEqual(t, "fy", e.To, "a fiscal year must not follow a quarter")
	}

	entities = append(entities, metricEntity("fy23", "revenue", "NVDA", "FY2023", 100))
	edges = DetectEvolution(entities)

	require.Len(t, edges, 2)
	// Group keys sort "fy" before "q".
	assert.Equal(t, "fy23", edges[0].From)
	assert.Equal(t, "fy", edges[0].To)
	assert.InDelta(t, 20.0, *edges[0].Change, 1e-9)
	assert.Equal(t, "q4", edges[1].To)
}
