package synthesis

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CardKind identifies a display card.
type CardKind string

const (
	CardAnswer          CardKind = "answer"
	CardReliability     CardKind = "reliability"
	CardSources         CardKind = "sources"
	CardTemporalContext CardKind = "temporal_context"
	CardConflicts       CardKind = "conflicts"
	CardReasoningPath   CardKind = "reasoning_path"
)

// Card is one rendered block of an answer.
type Card struct {
	Kind  CardKind `json:"kind"`
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// DisplayCards is the ordered set of cards for a query result.
type DisplayCards struct {
	Cards []Card `json:"cards"`
}

// Has reports whether a card of kind is present.
func (d DisplayCards) Has(kind CardKind) bool {
	for _, c := range d.Cards {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// Markdown renders the cards as markdown sections.
func (d DisplayCards) Markdown() string {
	var b strings.Builder
	for i, c := range d.Cards {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n", c.Title)
		for _, line := range c.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatDisplay renders a result. Answer, Reliability and Sources are always
// present; Temporal Context, Conflicts and Reasoning Path appear only when
// the result carries them.
func FormatDisplay(r QueryResult) DisplayCards {
	cards := []Card{answerCard(r), reliabilityCard(r.Confidence), sourcesCard(r.Sources)}
	if r.TemporalContext != nil {
		cards = append(cards, temporalCard(*r.TemporalContext))
	}
	if r.Conflict != nil {
		cards = append(cards, conflictCard(*r.Conflict))
	}
	if pi, ok := r.Confidence.Detail.(PathIntegrity); ok && len(pi.Edges) > 0 {
		cards = append(cards, reasoningCard(pi))
	}
	return DisplayCards{Cards: cards}
}

func answerCard(r QueryResult) Card {
	answer := strings.TrimSpace(r.Answer)
	if answer == "" {
		answer = "_No answer text supplied._"
	}
	lines := []string{answer}
	if r.Query != "" {
		lines = append(lines, fmt.Sprintf("_Question: %s (intent: %s)_", r.Query, r.Intent))
	}
	return Card{Kind: CardAnswer, Title: "Answer", Lines: lines}
}

func reliabilityCard(c ConfidenceResult) Card {
	typ := c.Type
	if typ == "" {
		typ = ConfidenceNoSources
	}
	lines := []string{
		fmt.Sprintf("**Confidence:** %.0f%% (%s)", c.Confidence*100, typ),
	}
	if c.Explanation != "" {
		lines = append(lines, c.Explanation)
	}
	keys := make([]string, 0, len(c.Breakdown))
	for k := range c.Breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %.3f", k, c.Breakdown[k]))
	}
	return Card{Kind: CardReliability, Title: "Reliability", Lines: lines}
}

func sourcesCard(sources []EnrichedSource) Card {
	if len(sources) == 0 {
		return Card{Kind: CardSources, Title: "Sources", Lines: []string{"_No sources._"}}
	}
	lines := make([]string, 0, len(sources))
	for i, s := range sources {
		name := s.Label()
		if s.Title != "" {
			name = s.Title
		}
		if s.Link != "" {
			name = fmt.Sprintf("[%s](%s)", name, s.Link)
		}
		badge := s.QualityBadge
		if badge == "" {
			badge = BadgeTertiary
		}
		line := fmt.Sprintf("%d. [%s] %s", i+1, badge, name)
		if s.Value != nil {
			line += " value " + s.Value.String()
		}
		if s.Age != "" {
			line += " · " + s.Age
		}
		if len(s.Degraded) > 0 {
			line += " · degraded: " + strings.Join(s.Degraded, ", ")
		}
		lines = append(lines, line)
	}
	return Card{Kind: CardSources, Title: "Sources", Lines: lines}
}

func temporalCard(tc TemporalContext) Card {
	lines := []string{
		fmt.Sprintf("Most recent: %s (%s, %s)", tc.MostRecentSource, tc.MostRecent.Format(time.DateOnly), tc.MostRecentAge),
		fmt.Sprintf("Oldest: %s (%s, %s)", tc.OldestSource, tc.Oldest.Format(time.DateOnly), tc.OldestAge),
		fmt.Sprintf("Age range: %.0f days across %d dated sources", tc.AgeRangeDays, tc.DatedSources),
	}
	return Card{Kind: CardTemporalContext, Title: "Temporal Context", Lines: lines}
}

func conflictCard(c ConflictRecord) Card {
	keys := make([]string, 0, len(c.ValuesBySource))
	for k := range c.ValuesBySource {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := []string{fmt.Sprintf("Values disagree by %.1f%% (threshold %.0f%%).", c.VariancePct, c.Threshold*100)}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, c.ValuesBySource[k].String()))
	}
	return Card{Kind: CardConflicts, Title: "Conflicts", Lines: lines}
}

func reasoningCard(pi PathIntegrity) Card {
	lines := make([]string, 0, len(pi.Edges)+1)
	for _, e := range pi.Edges {
		rel := e.Relation
		if rel == "" {
			rel = "->"
		}
		conf := "n/a"
		if e.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *e.Confidence)
		}
		lines = append(lines, fmt.Sprintf("- %s %s %s (%s)", e.From, rel, e.To, conf))
	}
	lines = append(lines, fmt.Sprintf("Weakest link: %s -> %s", pi.Weakest.From, pi.Weakest.To))
	return Card{Kind: CardReasoningPath, Title: "Reasoning Path", Lines: lines}
}
