package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/evidence-cli/internal/manifest"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/resilience"
	"github.com/sells-group/evidence-cli/internal/temporal"
)

// DefaultConcurrency is the number of documents processed at once.
const DefaultConcurrency = 4

// contextProperty is the entity property holding the sentence an entity was
// extracted from. Reporting periods are searched there first.
const contextProperty = "context"

// Options configures a Pipeline.
type Options struct {
	Concurrency int
	// DeadLetters, if set, receives failed items after every run.
	DeadLetters DeadLetterSink
}

// Pipeline ingests documents. It is safe to run repeatedly over overlapping
// inputs: the manifest drops anything already seen.
type Pipeline struct {
	store       *manifest.Store
	extractor   Extractor
	writer      GraphWriter
	enhancer    *temporal.Enhancer
	deadLetters DeadLetterSink
	concurrency int
	now         func() time.Time
}

// New creates a Pipeline. writer may be nil to skip graph output.
func New(store *manifest.Store, extractor Extractor, writer GraphWriter, enhancer *temporal.Enhancer, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if enhancer == nil {
		enhancer = temporal.NewEnhancer(temporal.DefaultConfig())
	}
	return &Pipeline{
		store:       store,
		extractor:   extractor,
		writer:      writer,
		enhancer:    enhancer,
		deadLetters: opts.DeadLetters,
		concurrency: opts.Concurrency,
		now:         time.Now,
	}
}

// WithNow fixes the batch timestamp.
func (p *Pipeline) WithNow(t time.Time) *Pipeline {
	p.now = func() time.Time { return t }
	return p
}

// itemResult holds what one worker produced. Results are kept per input
// index so batches come out in submission order.
type itemResult struct {
	outcome  string
	hash     string
	undated  bool
	record   model.ManifestRecord
	entities []model.Entity
	edges    []model.Edge
	failure  *Failure
	letter   *DeadLetter
}

// Run ingests items. Extractor and input failures are recorded in the
// summary and do not stop the run. A *manifest.PersistenceError aborts it:
// continuing without a durable ledger would re-ingest documents later.
func (p *Pipeline) Run(ctx context.Context, items []Item) (Summary, error) {
	start := time.Now()
	log := zap.L().With(zap.Int("items", len(items)), zap.Int("concurrency", p.concurrency))
	log.Info("ingest: starting run")

	results := make([]itemResult, len(items))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, item := range items {
		g.Go(func() error {
			res, err := p.process(gctx, i, item)
			if err != nil {
				return err
			}
			metrics.ObserveIngestDocument(res.outcome)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()
	summary := summarize(results)
	summary.Submitted = len(items)
	dlErr := p.recordDeadLetters(ctx, results, &summary)
	if waitErr != nil {
		log.Error("ingest: run aborted", zap.Error(waitErr), zap.Int("registered", summary.New))
		return summary, eris.Wrap(waitErr, "ingest: run")
	}

	batch := Batch{GeneratedAt: p.now().UTC()}
	for _, r := range results {
		if r.outcome != metrics.OutcomeNew {
			continue
		}
		batch.Documents = append(batch.Documents, r.record)
		batch.Entities = append(batch.Entities, r.entities...)
		batch.Edges = append(batch.Edges, r.edges...)
	}
	batch.Evolution = temporal.DetectEvolution(batch.Entities)
	summary.EvolutionEdges = len(batch.Evolution)

	if p.writer != nil {
		if err := p.writer.Write(ctx, batch); err != nil {
			summary.Stranded = make([]string, 0, len(batch.Documents))
			for _, d := range batch.Documents {
				summary.Stranded = append(summary.Stranded, d.ContentHash)
			}
			log.Error("ingest: graph write failed, registered documents are stranded",
				zap.Error(err),
				zap.Strings("stranded", summary.Stranded),
			)
			return summary, eris.Wrap(err, "ingest: write graph batch")
		}
	}
	if dlErr != nil {
		return summary, dlErr
	}

	log.Info("ingest: run complete",
		zap.Int("new", summary.New),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed),
		zap.Int("entities", summary.Entities),
		zap.Int("evolution_edges", summary.EvolutionEdges),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

// process handles one item. Only errors that must abort the run are returned.
func (p *Pipeline) process(ctx context.Context, index int, item Item) (itemResult, error) {
	fail := func(err error) (itemResult, error) {
		errType := resilience.ClassifyError(err)
		if model.IsInputError(err) {
			errType = resilience.ErrorPermanent
		}
		zap.L().Warn("ingest: document failed",
			zap.Int("index", index),
			zap.String("raw_text_ref", item.RawTextRef),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		letter := deadLetterFor(item, errType, err.Error(), p.now().UTC())
		return itemResult{
			outcome: metrics.OutcomeFailed,
			hash:    letter.ContentHash,
			failure: &Failure{Index: index, RawTextRef: item.RawTextRef, Error: err.Error(), ErrorType: errType},
			letter:  &letter,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return itemResult{}, err
	}

	sourceType, err := model.ParseSourceType(string(item.SourceType))
	if err != nil {
		return fail(err)
	}
	sourceDate, dated := time.Time{}, false
	if item.SourceDate != "" {
		sourceDate, dated = temporal.ParseSourceDate(item.SourceDate)
		if !dated {
			zap.L().Warn("ingest: unparseable source date, treating as unknown",
				zap.Int("index", index),
				zap.String("source_date", item.SourceDate),
			)
		}
	}

	doc, err := manifest.NewDocument(item.Text, sourceType, sourceDate, item.RawTextRef, item.Tickers)
	if err != nil {
		return fail(err)
	}
	if p.store.Contains(doc.ContentHash) {
		return itemResult{outcome: metrics.OutcomeDuplicate, hash: doc.ContentHash}, nil
	}

	extraction, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return itemResult{}, ctx.Err()
		}
		return fail(eris.Wrap(err, "ingest: extract"))
	}

	res := itemResult{undated: !dated, hash: doc.ContentHash}
	res.entities = make([]model.Entity, 0, len(extraction.Entities))
	for _, e := range extraction.Entities {
		res.entities = append(res.entities, p.enhancer.EnhanceEntity(e, sourceDate, contextFor(e.Properties, doc.Text)))
	}
	res.edges = make([]model.Edge, 0, len(extraction.Edges))
	for _, e := range extraction.Edges {
		res.edges = append(res.edges, p.enhancer.EnhanceEdge(e, sourceDate, contextFor(e.Properties, doc.Text)))
	}
	doc.EntityCount = len(res.entities)

	dup, rec, err := p.store.CheckAndRegister(ctx, doc)
	if err != nil {
		if manifest.IsPersistenceError(err) {
			return itemResult{}, err
		}
		return fail(err)
	}
	if dup {
		// Another worker claimed the hash after the pre-check.
		return itemResult{outcome: metrics.OutcomeDuplicate, hash: doc.ContentHash}, nil
	}
	res.outcome = metrics.OutcomeNew

	if len(doc.Tickers) > 0 {
		if err := p.store.RecordCoverage(ctx, doc.ContentHash, doc.Tickers, sourceType); err != nil {
			if manifest.IsPersistenceError(err) {
				return itemResult{}, err
			}
			return fail(err)
		}
		if updated, ok := p.store.Record(doc.ContentHash); ok {
			rec = updated
		}
	}
	res.record = rec
	return res, nil
}

// recordDeadLetters hands this run's failures to the sink and clears items
// that went through. Sink errors are logged; the caller decides whether they
// fail the run.
func (p *Pipeline) recordDeadLetters(ctx context.Context, results []itemResult, summary *Summary) error {
	if p.deadLetters == nil {
		return nil
	}
	var failed []DeadLetter
	var resolved []string
	for _, r := range results {
		switch {
		case r.letter != nil:
			failed = append(failed, *r.letter)
		case r.outcome == metrics.OutcomeNew || r.outcome == metrics.OutcomeDuplicate:
			resolved = append(resolved, r.hash)
		}
	}
	if err := p.deadLetters.Record(context.WithoutCancel(ctx), failed, resolved); err != nil {
		zap.L().Error("ingest: dead letter record failed", zap.Int("failed", len(failed)), zap.Error(err))
		return eris.Wrap(err, "ingest: record dead letters")
	}
	summary.DeadLettered = len(failed)
	return nil
}

func contextFor(props map[string]any, fallback string) string {
	if s, ok := props[contextProperty].(string); ok && s != "" {
		return s
	}
	return fallback
}

func summarize(results []itemResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.outcome {
		case metrics.OutcomeNew:
			s.New++
			s.Entities += len(r.entities)
			s.Edges += len(r.edges)
			if r.undated {
				s.UndatedSources++
			}
		case metrics.OutcomeDuplicate:
			s.Duplicates++
		case metrics.OutcomeFailed:
			s.Failed++
			if r.failure != nil {
				s.Failures = append(s.Failures, *r.failure)
			}
		}
	}
	return s
}
