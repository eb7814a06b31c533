package synthesis

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// ConfidenceType names the method a confidence value was derived with.
type ConfidenceType string

const (
	ConfidenceNoSources         ConfidenceType = "no_sources"
	ConfidenceSingleSource      ConfidenceType = "single_source"
	ConfidenceWeightedAverage   ConfidenceType = "weighted_average"
	ConfidenceVariancePenalized ConfidenceType = "variance_penalized"
	ConfidencePathIntegrity     ConfidenceType = "path_integrity"
)

// Derivation is the per-method payload of a ConfidenceResult. The set of
// implementations is closed: NoEvidence, SingleSource, WeightedAverage,
// VariancePenalized and PathIntegrity.
type Derivation interface {
	Type() ConfidenceType
	derivation()
}

// NoEvidence is the derivation when nothing was supplied.
type NoEvidence struct{}

// SingleSource is the derivation for exactly one source.
type SingleSource struct {
	Source     string     `json:"source"`
	SourceType SourceType `json:"source_type"`
	Defaulted  bool       `json:"defaulted"`
}

// WeightedTerm is one source's share of a weighted average.
type WeightedTerm struct {
	Source     string     `json:"source"`
	SourceType SourceType `json:"source_type"`
	Confidence float64    `json:"confidence"`
	Weight     float64    `json:"weight"`
}

// WeightedAverage is the derivation when sources agree or carry no
// comparable values. Spread is nil in the latter case.
type WeightedAverage struct {
	Terms     []WeightedTerm   `json:"terms"`
	WeightSum float64          `json:"weight_sum"`
	Spread    *decimal.Decimal `json:"spread,omitempty"`
}

// VariancePenalized is the derivation when numeric values disagree beyond
// the threshold.
type VariancePenalized struct {
	Terms     []WeightedTerm  `json:"terms"`
	Weighted  float64         `json:"weighted"`
	Spread    decimal.Decimal `json:"spread"`
	Threshold float64         `json:"threshold"`
	Floor     float64         `json:"floor"`
	Floored   bool            `json:"floored"`
}

// PathIntegrity is the derivation from the top-ranked causal path.
type PathIntegrity struct {
	PathIndex      int        `json:"path_index"`
	Edges          []PathEdge `json:"edges"`
	Weakest        PathEdge   `json:"weakest"`
	Alternatives   int        `json:"alternatives"`
	DefaultedEdges int        `json:"defaulted_edges"`
}

func (NoEvidence) Type() ConfidenceType        { return ConfidenceNoSources }
func (SingleSource) Type() ConfidenceType      { return ConfidenceSingleSource }
func (WeightedAverage) Type() ConfidenceType   { return ConfidenceWeightedAverage }
func (VariancePenalized) Type() ConfidenceType { return ConfidenceVariancePenalized }
func (PathIntegrity) Type() ConfidenceType     { return ConfidencePathIntegrity }

func (NoEvidence) derivation()        {}
func (SingleSource) derivation()      {}
func (WeightedAverage) derivation()   {}
func (VariancePenalized) derivation() {}
func (PathIntegrity) derivation()     {}

// ConfidenceResult is the adaptive confidence for an answer.
type ConfidenceResult struct {
	Confidence  float64            `json:"confidence"`
	Type        ConfidenceType     `json:"confidence_type"`
	Explanation string             `json:"explanation"`
	Breakdown   map[string]float64 `json:"breakdown,omitempty"`
	Detail      Derivation         `json:"detail,omitempty"`
}

// ComputeConfidence selects the derivation method from the evidence shape:
// nothing, one source, comparable numeric values, a graph path, or several
// sources without comparable values, in that order.
func (e *Engine) ComputeConfidence(sources []EnrichedSource, graph *GraphContext) ConfidenceResult {
	path, idx, hasPath := graph.topPath()
	switch {
	case len(sources) == 0 && !hasPath:
		return ConfidenceResult{
			Confidence:  0,
			Type:        ConfidenceNoSources,
			Explanation: "No evidence: no sources or graph paths were supplied.",
			Detail:      NoEvidence{},
		}
	case len(sources) == 0:
		return e.pathIntegrity(path, idx, graph.usablePaths())
	case len(sources) == 1:
		return singleSource(sources[0])
	}

	if readings := numericReadings(sources); len(readings) >= 2 {
		spread := RelativeSpread(readingValues(readings))
		if spread.GreaterThan(e.threshold()) {
			return e.variancePenalized(sources, spread)
		}
		return e.weightedAverage(sources, &spread)
	}
	if hasPath {
		return e.pathIntegrity(path, idx, graph.usablePaths())
	}
	return e.weightedAverage(sources, nil)
}

func (e *Engine) threshold() decimal.Decimal {
	return decimal.NewFromFloat(e.policy.ConflictVarianceThreshold)
}

func singleSource(s EnrichedSource) ConfidenceResult {
	defaulted := hasNote(s.Degraded, DegradedConfidenceDefault)
	explanation := fmt.Sprintf("Single source %s (%s) reports confidence %.2f.", s.Label(), s.QualityBadge, s.EffectiveConfidence)
	if defaulted {
		explanation = fmt.Sprintf("Single source %s (%s) carried no confidence; default %.2f applied.", s.Label(), s.QualityBadge, s.EffectiveConfidence)
	}
	return ConfidenceResult{
		Confidence:  s.EffectiveConfidence,
		Type:        ConfidenceSingleSource,
		Explanation: explanation,
		Breakdown:   map[string]float64{s.Label(): s.EffectiveConfidence},
		Detail:      SingleSource{Source: s.Source, SourceType: s.SourceType, Defaulted: defaulted},
	}
}

// weighted returns Σ(c·w)/Σw and the per-source contributions. When every
// weight is zero the plain mean is used.
func weighted(sources []EnrichedSource) (float64, float64, []WeightedTerm, map[string]float64) {
	terms := make([]WeightedTerm, 0, len(sources))
	var sumW, sumCW float64
	for _, s := range sources {
		terms = append(terms, WeightedTerm{
			Source:     s.Label(),
			SourceType: s.SourceType,
			Confidence: s.EffectiveConfidence,
			Weight:     s.Weight,
		})
		sumW += s.Weight
		sumCW += s.EffectiveConfidence * s.Weight
	}

	breakdown := make(map[string]float64, len(terms))
	if sumW == 0 {
		var sum float64
		for _, t := range terms {
			sum += t.Confidence
		}
		n := float64(len(terms))
		for _, t := range terms {
			breakdown[uniqueKey(breakdown, t.Source)] = t.Confidence / n
		}
		return sum / n, 0, terms, breakdown
	}
	for _, t := range terms {
		breakdown[uniqueKey(breakdown, t.Source)] = t.Confidence * t.Weight / sumW
	}
	return sumCW / sumW, sumW, terms, breakdown
}

func (e *Engine) weightedAverage(sources []EnrichedSource, spread *decimal.Decimal) ConfidenceResult {
	conf, sumW, terms, breakdown := weighted(sources)
	explanation := fmt.Sprintf("Weighted average of %d sources; no comparable numeric values.", len(sources))
	if spread != nil {
		explanation = fmt.Sprintf("Weighted average of %d sources; values agree within %s%% (threshold %s%%).",
			len(sources), percent(*spread), percent(e.threshold()))
	}
	return ConfidenceResult{
		Confidence:  conf,
		Type:        ConfidenceWeightedAverage,
		Explanation: explanation,
		Breakdown:   breakdown,
		Detail:      WeightedAverage{Terms: terms, WeightSum: sumW, Spread: spread},
	}
}

// variancePenalized scales the weighted average by (1 - spread). The result
// is never below the penalty floor, so a weighted value that already sits
// under the floor comes back as the floor.
func (e *Engine) variancePenalized(sources []EnrichedSource, spread decimal.Decimal) ConfidenceResult {
	base, _, terms, breakdown := weighted(sources)
	s := spread.InexactFloat64()
	floor := e.policy.PenaltyFloor
	penalized := base * (1 - s)
	floored := penalized < floor
	conf := math.Max(penalized, floor)

	breakdown["spread"] = s
	breakdown["penalty"] = math.Max(base-conf, 0)

	explanation := fmt.Sprintf("Sources disagree by %s%% (threshold %s%%); weighted confidence %.3f penalized to %.3f.",
		percent(spread), percent(e.threshold()), base, conf)
	if floored {
		explanation = fmt.Sprintf("Sources disagree by %s%% (threshold %s%%); weighted confidence %.3f floored at %.2f.",
			percent(spread), percent(e.threshold()), base, conf)
	}
	return ConfidenceResult{
		Confidence:  conf,
		Type:        ConfidenceVariancePenalized,
		Explanation: explanation,
		Breakdown:   breakdown,
		Detail: VariancePenalized{
			Terms:     terms,
			Weighted:  base,
			Spread:    spread,
			Threshold: e.policy.ConflictVarianceThreshold,
			Floor:     floor,
			Floored:   floored,
		},
	}
}

// pathIntegrity takes the weakest edge of the top path. Edges without a
// confidence use the default source confidence.
func (e *Engine) pathIntegrity(path CausalPath, idx, usable int) ConfidenceResult {
	breakdown := make(map[string]float64, len(path.Edges))
	defaulted := 0
	weakest := -1
	weakestConf := 0.0
	for i, edge := range path.Edges {
		c := e.policy.DefaultSourceConfidence
		if edge.Confidence != nil && !math.IsNaN(*edge.Confidence) {
			c = math.Max(0, math.Min(1, *edge.Confidence))
		} else {
			defaulted++
		}
		breakdown[uniqueKey(breakdown, edge.From+"->"+edge.To)] = c
		if weakest == -1 || c < weakestConf {
			weakest, weakestConf = i, c
		}
	}

	alternatives := usable - 1
	w := path.Edges[weakest]
	explanation := fmt.Sprintf("Based on top path confidence: weakest link %s -> %s at %.2f across %d hops. Alternative paths are not considered (%d others).",
		w.From, w.To, weakestConf, len(path.Edges), alternatives)
	return ConfidenceResult{
		Confidence:  weakestConf,
		Type:        ConfidencePathIntegrity,
		Explanation: explanation,
		Breakdown:   breakdown,
		Detail: PathIntegrity{
			PathIndex:      idx,
			Edges:          path.Edges,
			Weakest:        w,
			Alternatives:   alternatives,
			DefaultedEdges: defaulted,
		},
	}
}

func hasNote(notes []string, note string) bool {
	for _, n := range notes {
		if n == note {
			return true
		}
	}
	return false
}

// uniqueKey suffixes repeated labels so every source keeps its own entry.
func uniqueKey(m map[string]float64, key string) string {
	if _, ok := m[key]; !ok {
		return key
	}
	for i := 2; ; i++ {
		k := key + "#" + strconv.Itoa(i)
		if _, ok := m[k]; !ok {
			return k
		}
	}
}

func percent(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).Round(1).String()
}
