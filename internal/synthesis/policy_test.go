package synthesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/config"
)

func TestResolveSourceType(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		id   string
		want SourceType
	}{
		{"sec_edgar", SourceSEC},
		{"SEC", SourceSEC},
		{"10-K", SourceSEC},
		{"fmp", SourceAPI},
		{"alpha_vantage", SourceAPI},
		{"Reuters News", SourceNews},
		{"email", SourceEmail},
		{"outlook:inbox", SourceEmail},
		{"", SourceUnknown},
		{"blog", SourceUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			assert.Equal(t, tc.want, p.ResolveSourceType(tc.id))
		})
	}
}

func TestDefaultPolicy_Ranks(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())

	assert.Equal(t, SourceRule{Type: SourceSEC, Weight: 1.0, Rank: 5, Badge: BadgePrimary}, withoutAliases(p.Rule(SourceSEC)))
	assert.Equal(t, 0.9, p.Rule(SourceAPI).Weight)
	assert.Equal(t, 0.7, p.Rule(SourceNews).Weight)
	assert.Equal(t, 0.6, p.Rule(SourceEmail).Weight)
	assert.Equal(t, 1, p.Rule(SourceUnknown).Rank)
	assert.Equal(t, BadgeTertiary, p.Rule("nonsense").Badge)
}

func withoutAliases(r SourceRule) SourceRule {
	r.Aliases = nil
	return r
}

func TestPolicy_WithWeights(t *testing.T) {
	p := DefaultPolicy()
	out := p.WithWeights(map[string]float64{"sec_edgar": 0.8, "email": 0.3, "unknown": 0.05, "bogus": 9})

	assert.Equal(t, 0.8, out.Rule(SourceSEC).Weight)
	assert.Equal(t, 0.3, out.Rule(SourceEmail).Weight)
	assert.Equal(t, 0.05, out.Rule(SourceUnknown).Weight)
	assert.Equal(t, 0.9, out.Rule(SourceAPI).Weight)
	// original untouched
	assert.Equal(t, 1.0, p.Rule(SourceSEC).Weight)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero threshold", func(p *Policy) { p.ConflictVarianceThreshold = 0 }},
		{"default confidence above one", func(p *Policy) { p.DefaultSourceConfidence = 1.5 }},
		{"negative floor", func(p *Policy) { p.PenaltyFloor = -0.1 }},
		{"negative weight", func(p *Policy) { p.Sources[0].Weight = -1 }},
		{"duplicate rule", func(p *Policy) { p.Sources[1].Type = SourceSEC }},
		{"missing unknown", func(p *Policy) { p.Sources = p.Sources[:len(p.Sources)-1] }},
		{"empty type", func(p *Policy) { p.Sources[0].Type = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPolicy()
			tc.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `
confidence:
  conflict_variance_threshold: 0.2
  sources:
    - type: sec
      aliases: [sec_edgar]
      weight: 1.0
      rank: 5
      badge: Primary
    - type: api
      aliases: [fmp]
      weight: 0.5
      rank: 4
      badge: Secondary
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 0.2, p.ConflictVarianceThreshold)
	assert.Equal(t, DefaultSourceConfidence, p.DefaultSourceConfidence)
	assert.Equal(t, 0.5, p.Rule(SourceAPI).Weight)
	assert.Equal(t, SourceUnknown, p.ResolveSourceType("reuters"))
	assert.Len(t, p.Sources, 3)
}

func TestLoadPolicy_Errors(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPolicy(writePolicy(t, "confidence: [broken"))
	assert.Error(t, err)

	_, err = LoadPolicy(writePolicy(t, "confidence:\n  default_source_confidence: 3\n"))
	assert.Error(t, err)
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := PolicyFromConfig(config.ConfidenceConfig{
		ConflictVarianceThreshold: 0.15,
		DefaultSourceConfidence:   0.6,
		PenaltyFloor:              0.4,
		SourceWeights:             map[string]float64{"news": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.15, p.ConflictVarianceThreshold)
	assert.Equal(t, 0.6, p.DefaultSourceConfidence)
	assert.Equal(t, 0.4, p.PenaltyFloor)
	assert.Equal(t, 0.5, p.Rule(SourceNews).Weight)
}

func TestPolicyFromConfig_PolicyFileThenWeights(t *testing.T) {
	path := writePolicy(t, "confidence:\n  penalty_floor: 0.3\n")
	p, err := PolicyFromConfig(config.ConfidenceConfig{
		PolicyPath:    path,
		SourceWeights: map[string]float64{"sec": 0.95},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.3, p.PenaltyFloor)
	assert.Equal(t, 0.95, p.Rule(SourceSEC).Weight)
}
