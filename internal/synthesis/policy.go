package synthesis

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/evidence-cli/internal/config"
)

// SourceType is the canonical class a source identifier resolves to.
type SourceType string

const (
	SourceSEC     SourceType = "sec"
	SourceAPI     SourceType = "api"
	SourceNews    SourceType = "news"
	SourceEmail   SourceType = "email"
	SourceUnknown SourceType = "unknown"
)

// Badge is the quality label shown next to a source.
type Badge string

const (
	BadgePrimary   Badge = "Primary"
	BadgeSecondary Badge = "Secondary"
	BadgeTertiary  Badge = "Tertiary"
)

// SourceRule describes one source class.
type SourceRule struct {
	Type    SourceType `yaml:"type"`
	Aliases []string   `yaml:"aliases"`
	Weight  float64    `yaml:"weight"`
	Rank    int        `yaml:"rank"`
	Badge   Badge      `yaml:"badge"`
}

// Policy holds the source table and the confidence constants.
type Policy struct {
	Sources                   []SourceRule `yaml:"sources"`
	ConflictVarianceThreshold float64      `yaml:"conflict_variance_threshold"`
	DefaultSourceConfidence   float64      `yaml:"default_source_confidence"`
	PenaltyFloor              float64      `yaml:"penalty_floor"`
}

// Defaults for Policy.
const (
	DefaultConflictVarianceThreshold = 0.10
	DefaultSourceConfidence          = 0.7
	DefaultPenaltyFloor              = 0.5
)

// DefaultPolicy returns the built-in source table. The unknown rule must stay
// last; it is the fallback for identifiers no alias matches.
func DefaultPolicy() Policy {
	return Policy{
		Sources: []SourceRule{
			{
				Type:    SourceSEC,
				Aliases: []string{"sec", "sec_edgar", "edgar", "sec_filing", "10-k", "10-q", "8-k", "10k", "10q", "8k", "xbrl"},
				Weight:  1.0, Rank: 5, Badge: BadgePrimary,
			},
			{
				Type:    SourceAPI,
				Aliases: []string{"api", "fmp", "alpha_vantage", "alphavantage", "polygon", "yahoo", "yfinance", "exa", "finnhub", "iex"},
				Weight:  0.9, Rank: 4, Badge: BadgeSecondary,
			},
			{
				Type:    SourceNews,
				Aliases: []string{"news", "newsapi", "reuters", "bloomberg", "benzinga", "press_release", "press", "wire"},
				Weight:  0.7, Rank: 3, Badge: BadgeSecondary,
			},
			{
				Type:    SourceEmail,
				Aliases: []string{"email", "attachment", "outlook", "gmail", "mail", "url_pdf", "pdf"},
				Weight:  0.6, Rank: 2, Badge: BadgeTertiary,
			},
			{
				Type:   SourceUnknown,
				Weight: 0.1, Rank: 1, Badge: BadgeTertiary,
			},
		},
		ConflictVarianceThreshold: DefaultConflictVarianceThreshold,
		DefaultSourceConfidence:   DefaultSourceConfidence,
		PenaltyFloor:              DefaultPenaltyFloor,
	}
}

// PolicyFromConfig builds a Policy from application config. The policy file,
// when configured, is applied first; explicit weights then override it.
func PolicyFromConfig(cfg config.ConfidenceConfig) (Policy, error) {
	p := DefaultPolicy()
	if cfg.PolicyPath != "" {
		loaded, err := LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return Policy{}, err
		}
		p = loaded
	}
	if cfg.ConflictVarianceThreshold > 0 {
		p.ConflictVarianceThreshold = cfg.ConflictVarianceThreshold
	}
	if cfg.DefaultSourceConfidence > 0 {
		p.DefaultSourceConfidence = cfg.DefaultSourceConfidence
	}
	if cfg.PenaltyFloor > 0 {
		p.PenaltyFloor = cfg.PenaltyFloor
	}
	p = p.WithWeights(cfg.SourceWeights)
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a source policy from a YAML file with a top-level
// "confidence" key. Omitted settings keep their defaults; a non-empty
// sources list replaces the built-in table.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "synthesis: read policy %s", path)
	}

	var wrapper struct {
		Confidence Policy `yaml:"confidence"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, eris.Wrap(err, "synthesis: parse policy")
	}

	p := DefaultPolicy()
	loaded := wrapper.Confidence
	if len(loaded.Sources) > 0 {
		p.Sources = loaded.Sources
		if !p.hasUnknown() {
			p.Sources = append(p.Sources, DefaultPolicy().unknownRule())
		}
	}
	if loaded.ConflictVarianceThreshold > 0 {
		p.ConflictVarianceThreshold = loaded.ConflictVarianceThreshold
	}
	if loaded.DefaultSourceConfidence > 0 {
		p.DefaultSourceConfidence = loaded.DefaultSourceConfidence
	}
	if loaded.PenaltyFloor > 0 {
		p.PenaltyFloor = loaded.PenaltyFloor
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// WithWeights returns a copy of p with weights overridden. Keys are class
// names or any alias ("sec", "sec_edgar"). Unmatched keys are ignored.
func (p Policy) WithWeights(weights map[string]float64) Policy {
	if len(weights) == 0 {
		return p
	}
	out := p
	out.Sources = make([]SourceRule, len(p.Sources))
	copy(out.Sources, p.Sources)
	for key, w := range weights {
		t := out.ResolveSourceType(key)
		if t == SourceUnknown && !strings.EqualFold(strings.TrimSpace(key), string(SourceUnknown)) {
			continue
		}
		for i := range out.Sources {
			if out.Sources[i].Type == t {
				out.Sources[i].Weight = w
			}
		}
	}
	return out
}

// Validate checks the policy constants and source table.
func (p Policy) Validate() error {
	if p.ConflictVarianceThreshold <= 0 {
		return eris.New("synthesis: conflict_variance_threshold must be positive")
	}
	if p.DefaultSourceConfidence < 0 || p.DefaultSourceConfidence > 1 {
		return eris.Errorf("synthesis: default_source_confidence %v outside [0,1]", p.DefaultSourceConfidence)
	}
	if p.PenaltyFloor < 0 || p.PenaltyFloor > 1 {
		return eris.Errorf("synthesis: penalty_floor %v outside [0,1]", p.PenaltyFloor)
	}
	seen := make(map[SourceType]bool, len(p.Sources))
	for _, r := range p.Sources {
		if r.Type == "" {
			return eris.New("synthesis: source rule without type")
		}
		if seen[r.Type] {
			return eris.Errorf("synthesis: duplicate source rule %q", r.Type)
		}
		seen[r.Type] = true
		if r.Weight < 0 {
			return eris.Errorf("synthesis: negative weight for %q", r.Type)
		}
	}
	if !seen[SourceUnknown] {
		return eris.New("synthesis: source table needs an unknown rule")
	}
	return nil
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// ResolveSourceType maps a free-form source identifier to its class. The
// whole lower-cased identifier is matched against aliases first, then each
// alphanumeric token in order. Anything unmatched is SourceUnknown.
func (p Policy) ResolveSourceType(identifier string) SourceType {
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return SourceUnknown
	}
	if t, ok := p.lookupAlias(id); ok {
		return t
	}
	for _, tok := range tokenSplit.Split(id, -1) {
		if tok == "" {
			continue
		}
		if t, ok := p.lookupAlias(tok); ok {
			return t
		}
	}
	return SourceUnknown
}

// Rule returns the rule for t, falling back to the unknown rule.
func (p Policy) Rule(t SourceType) SourceRule {
	for _, r := range p.Sources {
		if r.Type == t {
			return r
		}
	}
	return p.unknownRule()
}

func (p Policy) lookupAlias(s string) (SourceType, bool) {
	for _, r := range p.Sources {
		if string(r.Type) == s {
			return r.Type, true
		}
		for _, a := range r.Aliases {
			if strings.ToLower(a) == s {
				return r.Type, true
			}
		}
	}
	return "", false
}

func (p Policy) hasUnknown() bool {
	for _, r := range p.Sources {
		if r.Type == SourceUnknown {
			return true
		}
	}
	return false
}

func (p Policy) unknownRule() SourceRule {
	for _, r := range p.Sources {
		if r.Type == SourceUnknown {
			return r
		}
	}
	return SourceRule{Type: SourceUnknown, Weight: 0.1, Rank: 1, Badge: BadgeTertiary}
}
