package model

import "time"

// ManifestRecord is the ledger entry for one unique content hash. Records are
// append-only: only CoverageNotes may grow after creation.
type ManifestRecord struct {
	ContentHash   string     `json:"content_hash"`
	FirstSeen     time.Time  `json:"first_seen"`
	SourceType    SourceType `json:"source_type"`
	EntityCount   int        `json:"entity_count"`
	SnapshotID    string     `json:"snapshot_id,omitempty"`
	RawTextRef    string     `json:"raw_text_ref,omitempty"`
	CoverageNotes []string   `json:"coverage_notes,omitempty"`
}

// Clone returns a deep copy of the record.
func (r ManifestRecord) Clone() ManifestRecord {
	if r.CoverageNotes != nil {
		r.CoverageNotes = append([]string(nil), r.CoverageNotes...)
	}
	return r
}

// PortfolioSnapshot is one entry in the append-only holdings history.
type PortfolioSnapshot struct {
	ID       string    `json:"id"`
	TakenAt  time.Time `json:"taken_at"`
	Holdings []string  `json:"holdings"`
	Added    []string  `json:"added,omitempty"`
	Removed  []string  `json:"removed,omitempty"`
}

// PortfolioDelta is the set difference between two consecutive snapshots.
type PortfolioDelta struct {
	SnapshotID string   `json:"snapshot_id"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
}

// ManifestStats summarizes the ledger for status output.
type ManifestStats struct {
	Documents       int                `json:"documents"`
	Entities        int                `json:"entities"`
	BySourceType    map[SourceType]int `json:"by_source_type"`
	Snapshots       int                `json:"snapshots"`
	CurrentHoldings []string           `json:"current_holdings,omitempty"`
	CoveredTickers  int                `json:"covered_tickers"`
}
