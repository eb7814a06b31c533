// Package manifest implements the content-addressed ingestion ledger: the
// dedup gate for documents, the portfolio snapshot history and the per-ticker
// source coverage index.
package manifest

import (
	"context"
	"slices"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Ledger is the persisted state of the manifest.
type Ledger struct {
	Documents        map[string]model.ManifestRecord `json:"documents"`
	PortfolioHistory []model.PortfolioSnapshot       `json:"portfolio_history"`
	CoverageIndex    map[string][]model.SourceType   `json:"coverage_index"`
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Documents:        make(map[string]model.ManifestRecord),
		PortfolioHistory: []model.PortfolioSnapshot{},
		CoverageIndex:    make(map[string][]model.SourceType),
	}
}

// Backend persists a Ledger.
type Backend interface {
	// Name identifies the backend in logs, metrics and errors.
	Name() string
	// Load returns the stored ledger, or an empty one when nothing is stored.
	Load(ctx context.Context) (*Ledger, error)
	// Save durably stores l. It must be all-or-nothing.
	Save(ctx context.Context, l *Ledger) error
	Close() error
}

// ensure fills nil collections so callers never see a nil map.
func (l *Ledger) ensure() *Ledger {
	if l == nil {
		return NewLedger()
	}
	if l.Documents == nil {
		l.Documents = make(map[string]model.ManifestRecord)
	}
	if l.PortfolioHistory == nil {
		l.PortfolioHistory = []model.PortfolioSnapshot{}
	}
	if l.CoverageIndex == nil {
		l.CoverageIndex = make(map[string][]model.SourceType)
	}
	return l
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		Documents:        make(map[string]model.ManifestRecord, len(l.Documents)),
		PortfolioHistory: make([]model.PortfolioSnapshot, len(l.PortfolioHistory)),
		CoverageIndex:    cloneCoverage(l.CoverageIndex),
	}
	for k, r := range l.Documents {
		out.Documents[k] = r.Clone()
	}
	for i, s := range l.PortfolioHistory {
		out.PortfolioHistory[i] = cloneSnapshot(s)
	}
	return out
}

func cloneSnapshot(s model.PortfolioSnapshot) model.PortfolioSnapshot {
	s.Holdings = slices.Clone(s.Holdings)
	s.Added = slices.Clone(s.Added)
	s.Removed = slices.Clone(s.Removed)
	return s
}

func cloneCoverage(idx map[string][]model.SourceType) map[string][]model.SourceType {
	out := make(map[string][]model.SourceType, len(idx))
	for k, v := range idx {
		out[k] = slices.Clone(v)
	}
	return out
}

// addCoverage inserts st into the sorted set for ticker and reports whether
// it was new.
func addCoverage(idx map[string][]model.SourceType, ticker string, st model.SourceType) bool {
	set := idx[ticker]
	i, found := slices.BinarySearch(set, st)
	if found {
		return false
	}
	idx[ticker] = slices.Insert(set, i, st)
	return true
}
