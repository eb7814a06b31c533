package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/manifest"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/resilience"
	"github.com/sells-group/evidence-cli/internal/temporal"
)

var runAt = time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)

type captureWriter struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (w *captureWriter) Write(_ context.Context, b Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, b)
	return nil
}

// countingExtractor wraps another extractor and fails documents whose raw
// text ref is listed in fail.
type countingExtractor struct {
	inner Extractor
	fail  map[string]bool
	calls atomic.Int32
}

func (c *countingExtractor) Extract(ctx context.Context, doc model.Document) (Extraction, error) {
	c.calls.Add(1)
	if c.fail[doc.RawTextRef] {
		return Extraction{}, errors.New("model timeout")
	}
	return c.inner.Extract(ctx, doc)
}

func newTestStore(t *testing.T) *manifest.Store {
	t.Helper()
	b := manifest.NewFileBackend(filepath.Join(t.TempDir(), "manifest.json"), 2)
	s := manifest.New(b, manifest.Options{Retry: resilience.RetryConfig{MaxAttempts: 1}}).WithNow(runAt)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func revenueItem(text, period, date string, value float64) Item {
	return Item{
		Text:       text,
		SourceType: model.SourceEmail,
		SourceDate: date,
		RawTextRef: "ref:" + period,
		Tickers:    []string{"acme"},
		Entities: []model.Entity{{
			ID:         "rev-" + period,
			Type:       "revenue",
			Ticker:     "ACME",
			Value:      model.Float(value),
			Properties: map[string]any{"context": "Revenue for " + period},
		}},
		Edges: []model.Edge{{ID: "e-" + period, Type: "REPORTS", From: "acme", To: "rev-" + period, Confidence: model.Float(0.9)}},
	}
}

func newTestPipeline(t *testing.T, items []Item, w GraphWriter) (*Pipeline, *manifest.Store, *countingExtractor) {
	t.Helper()
	store := newTestStore(t)
	ex := &countingExtractor{inner: NewFileExtractor(items), fail: map[string]bool{}}
	enh := temporal.NewEnhancer(temporal.DefaultConfig()).WithNow(runAt)
	return New(store, ex, w, enh, Options{Concurrency: 2}).WithNow(runAt), store, ex
}

func TestPipeline_Run(t *testing.T) {
	items := []Item{
		revenueItem("Q1 results", "Q1 2025", "2025-04-30", 100),
		revenueItem("Q2 results", "Q2 2025", "2025-07-31", 110),
	}
	w := &captureWriter{}
	p, store, _ := newTestPipeline(t, items, w)

	summary, err := p.Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 2, summary.New)
	assert.Equal(t, 0, summary.Duplicates)
	assert.Equal(t, 2, summary.Entities)
	assert.Equal(t, 2, summary.Edges)
	assert.Equal(t, 1, summary.EvolutionEdges)

	require.Len(t, w.batches, 1)
	batch := w.batches[0]
	assert.Equal(t, runAt, batch.GeneratedAt)
	require.Len(t, batch.Documents, 2)
	assert.Equal(t, 1, batch.Documents[0].EntityCount)

	q2 := batch.Entities[1]
	require.NotNil(t, q2.Temporal)
	assert.Equal(t, "2Q2025", q2.Temporal.ReportingPeriod)
	require.NotNil(t, q2.Temporal.FreshnessScore)
	assert.InDelta(t, 1.0, *q2.Temporal.FreshnessScore, 1e-9)
	require.NotNil(t, batch.Edges[0].Temporal)

	require.Len(t, batch.Evolution, 1)
	evo := batch.Evolution[0]
	assert.Equal(t, "rev-Q1 2025", evo.From)
	assert.Equal(t, "rev-Q2 2025", evo.To)
	require.NotNil(t, evo.Change)
	assert.InDelta(t, 10.0, *evo.Change, 1e-9)

	assert.Empty(t, store.CoverageGaps([]string{"ACME"}, []model.SourceType{model.SourceEmail}))
	rec, ok := store.Record(manifest.HashContent("Q1 results"))
	require.True(t, ok)
	assert.NotEmpty(t, rec.CoverageNotes)
}

func TestPipeline_RerunSkipsDuplicates(t *testing.T) {
	items := []Item{revenueItem("same body", "Q1 2025", "2025-04-30", 100)}
	p, _, ex := newTestPipeline(t, items, nil)
	ctx := context.Background()

	_, err := p.Run(ctx, items)
	require.NoError(t, err)

	summary, err := p.Run(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.New)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, int32(1), ex.calls.Load(), "duplicates skip extraction")
}

func TestPipeline_DuplicateWithinRun(t *testing.T) {
	a := revenueItem("Body\r\n", "Q1 2025", "2025-04-30", 100)
	b := revenueItem("Body", "Q1 2025", "2025-04-30", 100)
	w := &captureWriter{}
	p, _, _ := newTestPipeline(t, []Item{a, b}, w)

	summary, err := p.Run(context.Background(), []Item{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 1, summary.Duplicates)
	require.Len(t, w.batches, 1)
	assert.Len(t, w.batches[0].Documents, 1)
}

func TestPipeline_FailuresAreCounted(t *testing.T) {
	good := revenueItem("good", "Q1 2025", "2025-04-30", 100)
	bad := revenueItem("bad", "Q2 2025", "2025-07-31", 100)
	invalid := Item{Text: "fax body", SourceType: "fax"}
	p, store, ex := newTestPipeline(t, []Item{good, bad}, nil)
	ex.fail[bad.RawTextRef] = true

	summary, err := p.Run(context.Background(), []Item{good, bad, invalid})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Failures, 2)
	assert.Equal(t, 1, summary.Failures[0].Index)
	assert.Contains(t, summary.Failures[0].Error, "model timeout")
	assert.Equal(t, 2, summary.Failures[1].Index)
	assert.False(t, store.Contains(manifest.HashContent("bad")), "failed extractions are not registered")
}

func TestPipeline_UndatedSource(t *testing.T) {
	item := revenueItem("undated", "Q1 2025", "sometime last spring", 100)
	w := &captureWriter{}
	p, _, _ := newTestPipeline(t, []Item{item}, w)

	summary, err := p.Run(context.Background(), []Item{item})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UndatedSources)
	md := w.batches[0].Entities[0].Temporal
	require.NotNil(t, md)
	assert.Nil(t, md.FreshnessScore)
	assert.Equal(t, "1Q2025", md.ReportingPeriod)
}

func TestPipeline_PersistenceErrorAborts(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	// The ledger directory is a regular file, so every save fails.
	b := manifest.NewFileBackend(filepath.Join(blocker, "manifest.json"), 0)
	store := manifest.New(b, manifest.Options{Retry: resilience.RetryConfig{MaxAttempts: 1}})

	items := []Item{revenueItem("doc", "Q1 2025", "2025-04-30", 1)}
	w := &captureWriter{}
	p := New(store, NewFileExtractor(items), w, nil, Options{})

	_, err := p.Run(context.Background(), items)
	require.Error(t, err)
	assert.True(t, manifest.IsPersistenceError(err))
	assert.Empty(t, w.batches, "nothing is written after an abort")
}

func TestPipeline_WriterError(t *testing.T) {
	items := []Item{revenueItem("doc", "Q1 2025", "2025-04-30", 1)}
	w := &captureWriter{err: errors.New("graph unavailable")}
	p, _, _ := newTestPipeline(t, items, w)

	summary, err := p.Run(context.Background(), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph unavailable")
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, []string{manifest.HashContent("doc")}, summary.Stranded,
		"registered documents that never reached the graph are reported")
}

type recordingSink struct {
	failed   []DeadLetter
	resolved []string
	err      error
}

func (r *recordingSink) Record(_ context.Context, failed []DeadLetter, resolved []string) error {
	r.failed = append(r.failed, failed...)
	r.resolved = append(r.resolved, resolved...)
	return r.err
}

func TestPipeline_DeadLetters(t *testing.T) {
	good := revenueItem("good", "Q1 2025", "2025-04-30", 100)
	bad := revenueItem("bad", "Q2 2025", "2025-07-31", 100)
	invalid := Item{Text: "fax body", SourceType: "fax"}
	store := newTestStore(t)
	ex := &countingExtractor{inner: NewFileExtractor([]Item{good, bad}), fail: map[string]bool{bad.RawTextRef: true}}
	sink := &recordingSink{}
	p := New(store, ex, nil, nil, Options{DeadLetters: sink}).WithNow(runAt)

	summary, err := p.Run(context.Background(), []Item{good, bad, invalid})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DeadLettered)
	assert.Equal(t, []string{manifest.HashContent("good")}, sink.resolved)

	require.Len(t, sink.failed, 2)
	assert.Equal(t, manifest.HashContent("bad"), sink.failed[0].ContentHash)
	assert.Equal(t, resilience.ErrorTransient, sink.failed[0].ErrorType)
	assert.Equal(t, bad, sink.failed[0].Item)
	assert.Equal(t, runAt, sink.failed[0].FirstFailedAt)
	assert.Equal(t, resilience.ErrorPermanent, sink.failed[1].ErrorType, "bad input never heals")

	assert.Equal(t, resilience.ErrorTransient, summary.Failures[0].ErrorType)
	assert.Equal(t, resilience.ErrorPermanent, summary.Failures[1].ErrorType)
}

func TestPipeline_DeadLetterSinkError(t *testing.T) {
	items := []Item{revenueItem("doc", "Q1 2025", "2025-04-30", 1)}
	w := &captureWriter{}
	sink := &recordingSink{err: errors.New("disk full")}
	p := New(newTestStore(t), NewFileExtractor(items), w, nil, Options{DeadLetters: sink}).WithNow(runAt)

	summary, err := p.Run(context.Background(), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, summary.New)
	assert.Len(t, w.batches, 1, "the graph batch is still written")
}

func TestPipeline_Cancelled(t *testing.T) {
	items := []Item{revenueItem("doc", "Q1 2025", "2025-04-30", 1)}
	p, store, _ := newTestPipeline(t, items, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, items)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Len())
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	require.NoError(t, w.Write(context.Background(), Batch{GeneratedAt: runAt, Entities: []model.Entity{{ID: "e1", Type: "revenue"}}}))

	var got Batch
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "e1", got.Entities[0].ID)
	assert.Equal(t, runAt, got.GeneratedAt)
}
