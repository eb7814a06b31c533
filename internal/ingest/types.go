// Package ingest runs documents through the manifest dedup gate, the external
// extractor and the temporal enhancer, and hands the resulting graph batch to
// a writer.
package ingest

import (
	"context"
	"time"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Item is one document submitted for ingestion.
type Item struct {
	Text       string           `json:"text" yaml:"text"`
	SourceType model.SourceType `json:"source_type" yaml:"source_type"`
	// SourceDate is the raw publication date; unparseable values degrade to
	// an unknown date.
	SourceDate string   `json:"source_date,omitempty" yaml:"source_date,omitempty"`
	RawTextRef string   `json:"raw_text_ref,omitempty" yaml:"raw_text_ref,omitempty"`
	Tickers    []string `json:"tickers,omitempty" yaml:"tickers,omitempty"`

	// Pre-extracted candidates, consumed by FileExtractor.
	Entities []model.Entity `json:"entities,omitempty" yaml:"entities,omitempty"`
	Edges    []model.Edge   `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Extraction is the candidate graph produced for one document.
type Extraction struct {
	Entities []model.Entity `json:"entities"`
	Edges    []model.Edge   `json:"edges"`
}

// Extractor turns a document into candidate entities and edges. The LLM
// extraction service sits behind this interface.
type Extractor interface {
	Extract(ctx context.Context, doc model.Document) (Extraction, error)
}

// Batch is everything one run adds to the knowledge graph.
type Batch struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Documents   []model.ManifestRecord `json:"documents"`
	Entities    []model.Entity         `json:"entities"`
	Edges       []model.Edge           `json:"edges"`
	Evolution   []model.TemporalEdge   `json:"evolution"`
}

// GraphWriter persists a batch to the knowledge graph.
type GraphWriter interface {
	Write(ctx context.Context, batch Batch) error
}

// Failure describes an item that could not be ingested.
type Failure struct {
	Index      int    `json:"index"`
	RawTextRef string `json:"raw_text_ref,omitempty"`
	Error      string `json:"error"`
	ErrorType  string `json:"error_type"`
}

// Summary reports a pipeline run.
type Summary struct {
	Submitted      int       `json:"submitted"`
	New            int       `json:"new"`
	Duplicates     int       `json:"duplicates"`
	Failed         int       `json:"failed"`
	UndatedSources int       `json:"undated_sources"`
	Entities       int       `json:"entities"`
	Edges          int       `json:"edges"`
	EvolutionEdges int       `json:"evolution_edges"`
	Failures       []Failure `json:"failures,omitempty"`
	// DeadLettered counts failures handed to the dead letter sink.
	DeadLettered int `json:"dead_lettered,omitempty"`
	// Stranded lists content hashes registered in the manifest whose graph
	// batch was never written. A rerun treats them as duplicates, so they
	// need a manual replay.
	Stranded []string `json:"stranded,omitempty"`
}
