package synthesis

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Reading is the value a source reports. Exactly one of Number or Text is
// set. JSON numbers decode to Number, everything else to Text; text is never
// coerced into a number.
type Reading struct {
	Number *decimal.Decimal
	Text   string
}

// NumberReading wraps a decimal value.
func NumberReading(d decimal.Decimal) *Reading {
	return &Reading{Number: &d}
}

// TextReading wraps a non-numeric value.
func TextReading(s string) *Reading {
	return &Reading{Text: s}
}

// IsNumeric reports whether the reading carries a comparable number.
func (r *Reading) IsNumeric() bool {
	return r != nil && r.Number != nil
}

// String renders the reading for display.
func (r *Reading) String() string {
	switch {
	case r == nil:
		return ""
	case r.Number != nil:
		return r.Number.String()
	default:
		return r.Text
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reading) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "synthesis: decode text reading")
		}
		r.Number, r.Text = nil, s
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return eris.Wrap(err, "synthesis: decode numeric reading")
		}
		r.Number, r.Text = &d, ""
		return nil
	default:
		// Objects, arrays and booleans are kept verbatim and excluded from
		// numeric comparison.
		r.Number, r.Text = nil, string(data)
		return nil
	}
}

// MarshalJSON implements json.Marshaler. Numbers are emitted unquoted.
func (r Reading) MarshalJSON() ([]byte, error) {
	if r.Number != nil {
		return []byte(r.Number.String()), nil
	}
	return json.Marshal(r.Text)
}

// SourceReference is one piece of evidence gathered for a query.
type SourceReference struct {
	Source     string   `json:"source"`
	Title      string   `json:"title,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Value      *Reading `json:"value,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
	CIK        string   `json:"cik,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// Degradation reasons recorded on EnrichedSource.Degraded.
const (
	DegradedTimestampMissing   = "timestamp_missing"
	DegradedTimestampMalformed = "timestamp_malformed"
	DegradedConfidenceDefault  = "confidence_defaulted"
	DegradedConfidenceClamped  = "confidence_clamped"
)

// EnrichedSource is a SourceReference with derived quality and age fields.
// Age, AgeDays, Freshness and PublishedAt are omitted when the timestamp is
// missing or unparseable.
type EnrichedSource struct {
	SourceReference

	SourceType          SourceType        `json:"source_type"`
	Rank                int               `json:"rank"`
	QualityBadge        Badge             `json:"quality_badge"`
	Weight              float64           `json:"weight"`
	EffectiveConfidence float64           `json:"effective_confidence"`
	Link                string            `json:"link,omitempty"`
	PublishedAt         *time.Time        `json:"published_at,omitempty"`
	Age                 string            `json:"age,omitempty"`
	AgeDays             *float64          `json:"age_days,omitempty"`
	Freshness           *float64          `json:"freshness,omitempty"`
	AgeCategory         model.AgeCategory `json:"age_category,omitempty"`
	Degraded            []string          `json:"degraded,omitempty"`
}

// Label names the source in breakdowns and cards.
func (s EnrichedSource) Label() string {
	if s.Source != "" {
		return s.Source
	}
	return string(s.SourceType)
}

// TemporalContext summarises the dated sources behind a current or trend
// answer.
type TemporalContext struct {
	Intent           Intent    `json:"intent"`
	MostRecent       time.Time `json:"most_recent"`
	MostRecentSource string    `json:"most_recent_source"`
	MostRecentAge    string    `json:"most_recent_age"`
	Oldest           time.Time `json:"oldest"`
	OldestSource     string    `json:"oldest_source"`
	OldestAge        string    `json:"oldest_age"`
	AgeRangeDays     float64   `json:"age_range_days"`
	DatedSources     int       `json:"dated_sources"`
}

// PathEdge is one hop of a causal path.
type PathEdge struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Relation   string   `json:"relation,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// CausalPath is a multi-hop chain through the knowledge graph.
type CausalPath struct {
	Nodes []string   `json:"nodes,omitempty"`
	Edges []PathEdge `json:"edges"`
	Score *float64   `json:"score,omitempty"`
}

// GraphContext carries graph evidence for a query.
type GraphContext struct {
	CausalPaths []CausalPath `json:"causal_paths,omitempty"`
}

// topPath returns the usable path with the highest score. Paths without
// edges are skipped, a missing score counts as zero and ties keep the first.
func (g *GraphContext) topPath() (CausalPath, int, bool) {
	if g == nil {
		return CausalPath{}, -1, false
	}
	best, bestScore := -1, 0.0
	for i, p := range g.CausalPaths {
		if len(p.Edges) == 0 {
			continue
		}
		score := 0.0
		if p.Score != nil {
			score = *p.Score
		}
		if best == -1 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best == -1 {
		return CausalPath{}, -1, false
	}
	return g.CausalPaths[best], best, true
}

func (g *GraphContext) usablePaths() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, p := range g.CausalPaths {
		if len(p.Edges) > 0 {
			n++
		}
	}
	return n
}
