// Package synthesis turns the evidence gathered for a query into a single
// adaptive confidence value, conflict records and renderable display cards.
//
// All computation is a pure function of its inputs plus the engine clock, so
// an Engine is safe for concurrent use.
package synthesis

import (
	"regexp"
	"strings"
)

// Intent classifies the time orientation of a question.
type Intent string

const (
	IntentHistorical Intent = "historical"
	IntentCurrent    Intent = "current"
	IntentTrend      Intent = "trend"
	IntentForward    Intent = "forward"
	IntentUnknown    Intent = "unknown"
)

// Intents lists every intent in rule precedence order, catch-all last.
var Intents = []Intent{IntentTrend, IntentForward, IntentHistorical, IntentCurrent, IntentUnknown}

// WantsTemporalContext reports whether answers for this intent should carry
// the most-recent/oldest summary.
func (i Intent) WantsTemporalContext() bool {
	return i == IntentCurrent || i == IntentTrend
}

// IntentRule maps a pattern to an intent.
type IntentRule struct {
	Name    string
	Intent  Intent
	Pattern *regexp.Regexp
}

// DefaultIntentRules are evaluated first match wins. Trend and forward
// phrasing outrank quarter literals so "revenue trend since Q1 2023" is a
// trend question, not a historical one.
var DefaultIntentRules = []IntentRule{
	{
		Name:    "trend_phrasing",
		Intent:  IntentTrend,
		Pattern: regexp.MustCompile(`(?i)\b(trends?|trending|over time|over the (last|past)|trajectory|evolv(e|ed|ing)|quarter[- ]over[- ]quarter|year[- ]over[- ]year|qoq|yoy|how has|history of|since (q[1-4]\s*)?(19|20)\d{2})\b`),
	},
	{
		Name:    "forward_phrasing",
		Intent:  IntentForward,
		Pattern: regexp.MustCompile(`(?i)\b(forecasts?|guidance|outlook|targets?|estimates?|projections?|projected|expect(ed|s)?|consensus|will|next (quarter|year|fiscal year)|going forward|price target)\b`),
	},
	{
		Name:    "quarter_literal",
		Intent:  IntentHistorical,
		Pattern: regexp.MustCompile(`(?i)(\bq[1-4]\s*'?\s*(fy)?\s*\d{2,4}\b|\b[1-4]q\s*\d{2,4}\b|\bfy\s*'?\d{2,4}\b|\b(first|second|third|fourth) quarter\b|\bin (19|20)\d{2}\b|\blast (quarter|year)\b|\bprevious (quarter|year)\b|\bprior (quarter|year)\b)`),
	},
	{
		Name:    "recency_superlative",
		Intent:  IntentCurrent,
		Pattern: regexp.MustCompile(`(?i)\b(latest|current(ly)?|now|today|recent(ly)?|most recent|newest|as of|up[- ]to[- ]date|this (quarter|year|week|month)|right now|present)\b`),
	},
}

// Classifier applies an ordered rule table with an unknown catch-all.
type Classifier struct {
	rules []IntentRule
}

// NewClassifier creates a Classifier over rules. A nil table uses
// DefaultIntentRules.
func NewClassifier(rules []IntentRule) *Classifier {
	if rules == nil {
		rules = DefaultIntentRules
	}
	return &Classifier{rules: rules}
}

// Rules returns the rule table in evaluation order.
func (c *Classifier) Rules() []IntentRule { return c.rules }

// Match returns the intent for query and the name of the rule that matched.
// The rule name is empty when the catch-all applied.
func (c *Classifier) Match(query string) (Intent, string) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return IntentUnknown, ""
	}
	for _, r := range c.rules {
		if r.Pattern != nil && r.Pattern.MatchString(q) {
			return r.Intent, r.Name
		}
	}
	return IntentUnknown, ""
}

// Classify returns the intent for query.
func (c *Classifier) Classify(query string) Intent {
	intent, _ := c.Match(query)
	return intent
}

var defaultClassifier = NewClassifier(nil)

// ClassifyIntent classifies query with DefaultIntentRules.
func ClassifyIntent(query string) Intent {
	return defaultClassifier.Classify(query)
}
