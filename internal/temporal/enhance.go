package temporal

import (
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Enhancer attaches TemporalMetadata to entities and edges.
type Enhancer struct {
	cfg Config
	now func() time.Time // injectable for testing
}

// NewEnhancer creates an Enhancer. Non-positive settings fall back to defaults.
func NewEnhancer(cfg Config) *Enhancer {
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = DefaultHalfLifeDays
	}
	if cfg.AgeThresholds.VeryFresh <= 0 {
		cfg.AgeThresholds = DefaultAgeThresholds()
	}
	return &Enhancer{cfg: cfg, now: time.Now}
}

// WithNow fixes the evaluation instant.
func (e *Enhancer) WithNow(t time.Time) *Enhancer {
	e.now = func() time.Time { return t }
	return e
}

// Config returns the effective configuration.
func (e *Enhancer) Config() Config { return e.cfg }

// Metadata computes temporal metadata for a source date and free-text context.
// A zero sourceDate means the date was missing or unparseable: age, freshness
// and category are left nil/empty so callers can see the degradation.
func (e *Enhancer) Metadata(sourceDate time.Time, context string) model.TemporalMetadata {
	now := e.now().UTC()
	md := model.TemporalMetadata{EvaluatedAt: now}

	if period, ok := ExtractPeriod(context); ok {
		md.ReportingPeriod = period.String()
	}

	if sourceDate.IsZero() {
		return md
	}

	sd := sourceDate.UTC()
	age := AgeDays(sd, now)
	fresh := Freshness(age, e.cfg.HalfLifeDays)
	md.SourceDate = &sd
	md.AgeDays = &age
	md.FreshnessScore = &fresh
	md.AgeCategory = e.cfg.AgeThresholds.Categorize(age)
	return md
}

// EnhanceEntity returns a copy of entity with temporal metadata attached.
// The input is not modified.
func (e *Enhancer) EnhanceEntity(entity model.Entity, sourceDate time.Time, context string) model.Entity {
	md := e.Metadata(sourceDate, context)
	if md.FreshnessScore == nil {
		zap.L().Warn("temporal: source date missing, freshness omitted",
			zap.String("entity", entity.ID),
			zap.String("type", entity.Type),
		)
	}

	out := entity
	out.Properties = maps.Clone(entity.Properties)
	if entity.Value != nil {
		v := *entity.Value
		out.Value = &v
	}
	out.Temporal = &md
	return out
}

// EnhanceEdge returns a copy of edge with temporal metadata attached.
// The input is not modified.
func (e *Enhancer) EnhanceEdge(edge model.Edge, sourceDate time.Time, context string) model.Edge {
	md := e.Metadata(sourceDate, context)
	if md.FreshnessScore == nil {
		zap.L().Warn("temporal: source date missing, freshness omitted",
			zap.String("edge", edge.ID),
			zap.String("type", edge.Type),
		)
	}

	out := edge
	out.Properties = maps.Clone(edge.Properties)
	if edge.Confidence != nil {
		c := *edge.Confidence
		out.Confidence = &c
	}
	out.Temporal = &md
	return out
}
