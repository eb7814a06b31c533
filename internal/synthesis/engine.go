package synthesis

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/temporal"
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Policy   *Policy
	Temporal temporal.Config
	Rules    []IntentRule
}

// Engine evaluates evidence for queries.
type Engine struct {
	policy     Policy
	temporal   temporal.Config
	classifier *Classifier
	now        func() time.Time // injectable for testing
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	p := DefaultPolicy()
	if opts.Policy != nil {
		p = *opts.Policy
	}
	tc := opts.Temporal
	if tc.HalfLifeDays <= 0 {
		tc.HalfLifeDays = temporal.DefaultHalfLifeDays
	}
	if tc.AgeThresholds.VeryFresh <= 0 {
		tc.AgeThresholds = temporal.DefaultAgeThresholds()
	}
	return &Engine{
		policy:     p,
		temporal:   tc,
		classifier: NewClassifier(opts.Rules),
		now:        time.Now,
	}
}

// NewEngineFromConfig creates an Engine from application config.
func NewEngineFromConfig(cfg *config.Config) (*Engine, error) {
	p, err := PolicyFromConfig(cfg.Confidence)
	if err != nil {
		return nil, eris.Wrap(err, "synthesis: build policy")
	}
	return NewEngine(Options{
		Policy:   &p,
		Temporal: temporal.ConfigFromDays(cfg.Temporal.HalfLifeDays, cfg.Temporal.AgeThresholdsDays),
	}), nil
}

// WithNow fixes the evaluation instant.
func (e *Engine) WithNow(t time.Time) *Engine {
	e.now = func() time.Time { return t }
	return e
}

// Policy returns the effective source policy.
func (e *Engine) Policy() Policy { return e.policy }

// ClassifyIntent classifies query with the engine's rule table.
func (e *Engine) ClassifyIntent(query string) Intent {
	return e.classifier.Classify(query)
}

// QueryRequest is the evidence bundle handed over by the query processor.
// Query is a pointer so a missing or null query can be told apart from an
// empty one.
type QueryRequest struct {
	Query        *string           `json:"query"`
	Answer       string            `json:"answer,omitempty"`
	Sources      []SourceReference `json:"sources,omitempty"`
	GraphContext *GraphContext     `json:"graph_context,omitempty"`
}

// QueryResult is everything the answer-rendering layer needs.
type QueryResult struct {
	Query           string           `json:"query"`
	Intent          Intent           `json:"intent"`
	Answer          string           `json:"answer,omitempty"`
	Sources         []EnrichedSource `json:"sources"`
	TemporalContext *TemporalContext `json:"temporal_context,omitempty"`
	Confidence      ConfidenceResult `json:"confidence"`
	Conflict        *ConflictRecord  `json:"conflict,omitempty"`
	GraphContext    *GraphContext    `json:"graph_context,omitempty"`
	EvaluatedAt     time.Time        `json:"evaluated_at"`
}

// Evaluate classifies the query, enriches the sources, computes confidence
// and checks for conflicts. A missing query is an InputError; thin evidence
// is not an error.
func (e *Engine) Evaluate(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if req.Query == nil {
		return QueryResult{}, model.NewInputError("query", "is required")
	}
	if err := ctx.Err(); err != nil {
		return QueryResult{}, eris.Wrap(err, "synthesis: evaluate")
	}

	start := time.Now()
	query := strings.TrimSpace(*req.Query)
	intent, rule := e.classifier.Match(query)
	if intent == IntentUnknown && query != "" {
		zap.L().Warn("synthesis: no intent rule matched", zap.String("query", query))
	}

	enrichment := e.EnrichSources(req.Sources, intent)
	conf := e.ComputeConfidence(enrichment.Enriched, req.GraphContext)
	conflict := e.DetectConflicts(enrichment.Enriched)

	result := QueryResult{
		Query:           query,
		Intent:          intent,
		Answer:          req.Answer,
		Sources:         enrichment.Enriched,
		TemporalContext: enrichment.TemporalContext,
		Confidence:      conf,
		Conflict:        conflict,
		GraphContext:    req.GraphContext,
		EvaluatedAt:     e.now().UTC(),
	}

	metrics.ObserveEvaluation(time.Since(start), string(intent), string(conf.Type), conflict != nil)
	zap.L().Debug("synthesis: evaluated",
		zap.String("intent", string(intent)),
		zap.String("rule", rule),
		zap.Int("sources", len(req.Sources)),
		zap.String("confidence_type", string(conf.Type)),
		zap.Float64("confidence", conf.Confidence),
		zap.Bool("conflict", conflict != nil),
	)
	return result, nil
}
