package synthesis

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/temporal"
)

const edgarBrowseURL = "https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&CIK="

// EnrichmentResult is the output of EnrichSources.
type EnrichmentResult struct {
	Enriched        []EnrichedSource `json:"enriched"`
	TemporalContext *TemporalContext `json:"temporal_context,omitempty"`
}

// EnrichSources resolves each source's class, badge, link and age. A bad
// timestamp or confidence degrades only that source. The temporal context is
// built for current and trend intents when at least one source is dated.
func (e *Engine) EnrichSources(sources []SourceReference, intent Intent) EnrichmentResult {
	now := e.now().UTC()
	enriched := make([]EnrichedSource, 0, len(sources))
	for _, src := range sources {
		enriched = append(enriched, e.enrich(src, now))
	}

	res := EnrichmentResult{Enriched: enriched}
	if intent.WantsTemporalContext() {
		res.TemporalContext = buildTemporalContext(enriched, intent, now)
	}
	return res
}

func (e *Engine) enrich(src SourceReference, now time.Time) EnrichedSource {
	st := e.policy.ResolveSourceType(src.Source)
	rule := e.policy.Rule(st)
	es := EnrichedSource{
		SourceReference: src,
		SourceType:      st,
		Rank:            rule.Rank,
		QualityBadge:    rule.Badge,
		Weight:          rule.Weight,
		Link:            sourceLink(src),
	}

	conf, note := e.effectiveConfidence(src.Confidence)
	es.EffectiveConfidence = conf
	if note != "" {
		es.Degraded = append(es.Degraded, note)
	}

	if strings.TrimSpace(src.Timestamp) == "" {
		es.Degraded = append(es.Degraded, DegradedTimestampMissing)
	} else if ts, ok := temporal.ParseSourceDate(src.Timestamp); !ok {
		es.Degraded = append(es.Degraded, DegradedTimestampMalformed)
	} else {
		age := temporal.AgeDays(ts, now)
		fresh := temporal.Freshness(age, e.temporal.HalfLifeDays)
		es.PublishedAt = &ts
		es.AgeDays = &age
		es.Freshness = &fresh
		es.AgeCategory = e.temporal.AgeThresholds.Categorize(age)
		es.Age = humanize.RelTime(ts, now, "ago", "from now")
	}

	for _, reason := range es.Degraded {
		zap.L().Warn("synthesis: source degraded",
			zap.String("source", src.Source),
			zap.String("reason", reason),
			zap.String("timestamp", src.Timestamp),
		)
		metrics.ObserveDegradedSource(reason)
	}
	return es
}

// effectiveConfidence applies the default for a missing value and clamps to
// [0,1]. The returned note is empty when the raw value was used as is.
func (e *Engine) effectiveConfidence(raw *float64) (float64, string) {
	if raw == nil || math.IsNaN(*raw) {
		return e.policy.DefaultSourceConfidence, DegradedConfidenceDefault
	}
	c := *raw
	switch {
	case c < 0:
		return 0, DegradedConfidenceClamped
	case c > 1:
		return 1, DegradedConfidenceClamped
	}
	return c, ""
}

func sourceLink(src SourceReference) string {
	if u := strings.TrimSpace(src.URL); u != "" {
		return u
	}
	cik := strings.TrimSpace(src.CIK)
	if cik == "" {
		return ""
	}
	return edgarBrowseURL + url.QueryEscape(cik)
}

func buildTemporalContext(sources []EnrichedSource, intent Intent, now time.Time) *TemporalContext {
	var newest, oldest *EnrichedSource
	dated := 0
	for i := range sources {
		s := &sources[i]
		if s.PublishedAt == nil {
			continue
		}
		dated++
		if newest == nil || s.PublishedAt.After(*newest.PublishedAt) {
			newest = s
		}
		if oldest == nil || s.PublishedAt.Before(*oldest.PublishedAt) {
			oldest = s
		}
	}
	if dated == 0 {
		return nil
	}
	return &TemporalContext{
		Intent:           intent,
		MostRecent:       *newest.PublishedAt,
		MostRecentSource: newest.Label(),
		MostRecentAge:    humanize.RelTime(*newest.PublishedAt, now, "ago", "from now"),
		Oldest:           *oldest.PublishedAt,
		OldestSource:     oldest.Label(),
		OldestAge:        humanize.RelTime(*oldest.PublishedAt, now, "ago", "from now"),
		AgeRangeDays:     newest.PublishedAt.Sub(*oldest.PublishedAt).Hours() / 24,
		DatedSources:     dated,
	}
}
