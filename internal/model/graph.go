package model

import "time"

// AgeCategory buckets the age of a piece of evidence.
type AgeCategory string

const (
	AgeVeryFresh AgeCategory = "very_fresh"
	AgeFresh     AgeCategory = "fresh"
	AgeModerate  AgeCategory = "moderate"
	AgeStale     AgeCategory = "stale"
)

// EdgeMetricEvolved links the same metric for one ticker across two periods.
const EdgeMetricEvolved = "METRIC_EVOLVED"

// TemporalMetadata is derived from a source date and an evaluation instant.
// It is never ground truth: recompute it instead of persisting it.
// FreshnessScore, AgeDays and AgeCategory are absent when the source date is
// unknown; callers must check for nil.
type TemporalMetadata struct {
	SourceDate      *time.Time  `json:"source_date,omitempty"`
	EvaluatedAt     time.Time   `json:"evaluated_at"`
	AgeDays         *float64    `json:"age_days,omitempty"`
	FreshnessScore  *float64    `json:"freshness_score,omitempty"`
	ReportingPeriod string      `json:"reporting_period,omitempty"`
	AgeCategory     AgeCategory `json:"age_category,omitempty"`
}

// Entity is a candidate graph node produced by the external extractor.
type Entity struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name,omitempty"`
	Ticker     string            `json:"ticker,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
	Temporal   *TemporalMetadata `json:"temporal,omitempty"`
}

// Edge is a candidate graph relationship produced by the external extractor.
type Edge struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Confidence *float64          `json:"confidence,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
	Temporal   *TemporalMetadata `json:"temporal,omitempty"`
}

// TemporalEdge is a synthesized METRIC_EVOLVED relationship.
type TemporalEdge struct {
	Type          string   `json:"type"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	MetricType    string   `json:"metric_type"`
	Ticker        string   `json:"ticker"`
	FromPeriod    string   `json:"from_period"`
	ToPeriod      string   `json:"to_period"`
	FromValue     *float64 `json:"from_value,omitempty"`
	ToValue       *float64 `json:"to_value,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	TimeDeltaDays int      `json:"time_delta_days"`
}

// Float returns a pointer to v. Handy for optional numeric fields.
func Float(v float64) *float64 { return &v }
