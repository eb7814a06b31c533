package manifest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/resilience"
)

// Options configures a Store.
type Options struct {
	// Retry controls how backend saves are retried.
	Retry resilience.RetryConfig
	// Breaker, if set, wraps each retried save. While it is open writes fail
	// fast with a *PersistenceError instead of waiting on a dead backend.
	Breaker *resilience.CircuitBreaker
}

// Store is the manifest ledger. Writes, including the dedup check, are
// serialized by one mutex and persisted before they become visible;
// coverage reads use an immutable snapshot and never wait on a write.
type Store struct {
	mu      sync.Mutex
	ledger  *Ledger
	backend Backend
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	now     func() time.Time // injectable for testing

	coverage atomic.Pointer[map[string][]model.SourceType]
	records  atomic.Int64
}

// New creates a Store over backend. Call Load before use.
func New(backend Backend, opts Options) *Store {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("manifest", backend.Name()+" save")
	}
	s := &Store{
		ledger:  NewLedger(),
		backend: backend,
		retry:   retry,
		breaker: opts.Breaker,
		now:     time.Now,
	}
	s.publishCoverage()
	return s
}

// WithNow fixes the clock used for FirstSeen and snapshot timestamps.
func (s *Store) WithNow(t time.Time) *Store {
	s.now = func() time.Time { return t }
	return s
}

// Backend returns the persistence backend.
func (s *Store) Backend() Backend { return s.backend }

// Load replaces the in-memory ledger with the backend's contents.
func (s *Store) Load(ctx context.Context) error {
	l, err := s.backend.Load(ctx)
	if err != nil {
		return eris.Wrapf(err, "manifest: load from %s", s.backend.Name())
	}
	l = l.ensure()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = l
	s.records.Store(int64(len(l.Documents)))
	s.publishCoverage()

	zap.L().Info("manifest: loaded",
		zap.String("backend", s.backend.Name()),
		zap.Int("documents", len(l.Documents)),
		zap.Int("snapshots", len(l.PortfolioHistory)),
		zap.Int("tickers", len(l.CoverageIndex)),
	)
	return nil
}

// Flush persists the current ledger.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx, "flush")
}

// Close flushes and closes the backend.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	if err := s.backend.Close(); err != nil && flushErr == nil {
		return eris.Wrap(err, "manifest: close backend")
	}
	return flushErr
}

// persist saves the ledger with retries. Callers hold s.mu.
func (s *Store) persist(ctx context.Context, op string) error {
	start := time.Now()
	attempts := 0
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
			attempts++
			return s.backend.Save(ctx, s.ledger)
		})
	})
	metrics.ObserveManifestFlush(s.backend.Name(), time.Since(start), err)
	if err == nil {
		return nil
	}

	perr := &PersistenceError{Op: op, Backend: s.backend.Name(), Attempts: attempts, Err: err}
	zap.L().Error("manifest: persistence failed",
		zap.String("op", op),
		zap.String("backend", s.backend.Name()),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return perr
}

// CheckAndRegister is the dedup gate. For a known hash it returns true and
// the stored record unchanged. Otherwise it creates, persists and returns a
// new record. When persistence fails the insert is rolled back and a
// *PersistenceError is returned.
func (s *Store) CheckAndRegister(ctx context.Context, doc model.Document) (bool, model.ManifestRecord, error) {
	if doc.ContentHash == "" {
		return false, model.ManifestRecord{}, model.NewInputError("content_hash", "is required")
	}
	if !doc.SourceType.Valid() {
		return false, model.ManifestRecord{}, model.NewInputError("source_type", "unknown source type %q", doc.SourceType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.ledger.Documents[doc.ContentHash]; ok {
		metrics.ObserveManifestCheck(true)
		return true, existing.Clone(), nil
	}

	rec := model.ManifestRecord{
		ContentHash: doc.ContentHash,
		FirstSeen:   s.now().UTC(),
		SourceType:  doc.SourceType,
		EntityCount: doc.EntityCount,
		SnapshotID:  s.latestSnapshotID(),
		RawTextRef:  doc.RawTextRef,
	}
	s.ledger.Documents[rec.ContentHash] = rec
	if err := s.persist(ctx, "register "+shortHash(rec.ContentHash)); err != nil {
		delete(s.ledger.Documents, rec.ContentHash)
		return false, model.ManifestRecord{}, err
	}
	s.records.Add(1)
	metrics.ObserveManifestCheck(false)
	return false, rec.Clone(), nil
}

// Contains reports whether hash is already registered. It is a fast
// pre-check; only CheckAndRegister claims a hash.
func (s *Store) Contains(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger.Documents[hash]
	return ok
}

// Record returns a copy of the record for hash.
func (s *Store) Record(hash string) (model.ManifestRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ledger.Documents[hash]
	if !ok {
		return model.ManifestRecord{}, false
	}
	return r.Clone(), true
}

// Records returns copies of every record ordered by FirstSeen, then hash.
func (s *Store) Records() []model.ManifestRecord {
	s.mu.Lock()
	out := make([]model.ManifestRecord, 0, len(s.ledger.Documents))
	for _, r := range s.ledger.Documents {
		out = append(out, r.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].ContentHash < out[j].ContentHash
	})
	return out
}

// RecordPortfolioSnapshot appends a holdings snapshot taken at at and
// returns the delta against the previous one. A zero at uses the store
// clock. The first snapshot adds every holding.
func (s *Store) RecordPortfolioSnapshot(ctx context.Context, holdings []string, at time.Time) (model.PortfolioDelta, error) {
	current := NormalizeTickers(holdings)
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var previous []string
	if n := len(s.ledger.PortfolioHistory); n > 0 {
		previous = s.ledger.PortfolioHistory[n-1].Holdings
	}
	added, removed := diffTickers(previous, current)

	snap := model.PortfolioSnapshot{
		ID:       uuid.New().String(),
		TakenAt:  at.UTC(),
		Holdings: nilIfEmpty(current),
		Added:    added,
		Removed:  removed,
	}
	s.ledger.PortfolioHistory = append(s.ledger.PortfolioHistory, snap)
	if err := s.persist(ctx, "snapshot"); err != nil {
		s.ledger.PortfolioHistory = s.ledger.PortfolioHistory[:len(s.ledger.PortfolioHistory)-1]
		return model.PortfolioDelta{}, err
	}

	zap.L().Info("manifest: portfolio snapshot recorded",
		zap.String("snapshot", snap.ID),
		zap.Int("holdings", len(current)),
		zap.Strings("added", added),
		zap.Strings("removed", removed),
	)
	return model.PortfolioDelta{
		SnapshotID: snap.ID,
		Added:      emptyIfNil(slices.Clone(added)),
		Removed:    emptyIfNil(slices.Clone(removed)),
	}, nil
}

// diffTickers returns current minus previous and previous minus current,
// each in the order of the list it came from. Empty results are nil.
func diffTickers(previous, current []string) ([]string, []string) {
	prevSet := make(map[string]bool, len(previous))
	for _, t := range previous {
		prevSet[t] = true
	}
	curSet := make(map[string]bool, len(current))
	for _, t := range current {
		curSet[t] = true
	}

	var added, removed []string
	for _, t := range current {
		if !prevSet[t] {
			added = append(added, t)
		}
	}
	for _, t := range previous {
		if !curSet[t] {
			removed = append(removed, t)
		}
	}
	return added, removed
}

// PortfolioHistory returns copies of every snapshot, oldest first.
func (s *Store) PortfolioHistory() []model.PortfolioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PortfolioSnapshot, len(s.ledger.PortfolioHistory))
	for i, snap := range s.ledger.PortfolioHistory {
		out[i] = cloneSnapshot(snap)
	}
	return out
}

// CurrentHoldings returns the holdings of the latest snapshot.
func (s *Store) CurrentHoldings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.ledger.PortfolioHistory); n > 0 {
		return slices.Clone(s.ledger.PortfolioHistory[n-1].Holdings)
	}
	return nil
}

// RecordCoverage marks sourceType as covering each ticker and appends a
// coverage note to the record for hash. Updates are additive.
func (s *Store) RecordCoverage(ctx context.Context, hash string, tickers []string, sourceType model.SourceType) error {
	if !sourceType.Valid() {
		return model.NewInputError("source_type", "unknown source type %q", sourceType)
	}
	tickers = NormalizeTickers(tickers)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.ledger.Documents[hash]
	if !ok {
		return model.NewInputError("content_hash", "%s is not registered", shortHash(hash))
	}

	var newTickers []string
	for _, t := range tickers {
		if !slices.Contains(s.ledger.CoverageIndex[t], sourceType) {
			newTickers = append(newTickers, t)
		}
	}
	note := fmt.Sprintf("%s covers %v", sourceType, tickers)
	if len(tickers) == 0 {
		note = fmt.Sprintf("%s covers no tickers", sourceType)
	}
	if slices.Contains(rec.CoverageNotes, note) && len(newTickers) == 0 {
		return nil
	}

	prevCoverage := cloneCoverage(s.ledger.CoverageIndex)
	prevRecord := rec.Clone()
	for _, t := range newTickers {
		addCoverage(s.ledger.CoverageIndex, t, sourceType)
	}
	if !slices.Contains(rec.CoverageNotes, note) {
		rec.CoverageNotes = append(rec.CoverageNotes, note)
	}
	s.ledger.Documents[hash] = rec

	if err := s.persist(ctx, "coverage "+shortHash(hash)); err != nil {
		s.ledger.CoverageIndex = prevCoverage
		s.ledger.Documents[hash] = prevRecord
		return err
	}
	s.publishCoverage()
	return nil
}

// CoverageGaps returns, for each ticker, the required source types that have
// not contributed yet. Tickers without gaps are omitted. It reads a snapshot
// and never blocks on writers.
func (s *Store) CoverageGaps(tickers []string, requiredSources []model.SourceType) map[string][]model.SourceType {
	idx := *s.coverage.Load()
	gaps := make(map[string][]model.SourceType)
	for _, t := range NormalizeTickers(tickers) {
		have := idx[t]
		var missing []model.SourceType
		seen := make(map[model.SourceType]bool, len(requiredSources))
		for _, st := range requiredSources {
			if seen[st] {
				continue
			}
			seen[st] = true
			if !slices.Contains(have, st) {
				missing = append(missing, st)
			}
		}
		if len(missing) > 0 {
			gaps[t] = missing
		}
	}
	return gaps
}

// Coverage returns a copy of the coverage index.
func (s *Store) Coverage() map[string][]model.SourceType {
	return cloneCoverage(*s.coverage.Load())
}

// Len returns the number of registered documents without taking the lock.
func (s *Store) Len() int {
	return int(s.records.Load())
}

// Stats summarizes the ledger.
func (s *Store) Stats() model.ManifestStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := model.ManifestStats{
		Documents:      len(s.ledger.Documents),
		BySourceType:   make(map[model.SourceType]int),
		Snapshots:      len(s.ledger.PortfolioHistory),
		CoveredTickers: len(s.ledger.CoverageIndex),
	}
	for _, r := range s.ledger.Documents {
		stats.Entities += r.EntityCount
		stats.BySourceType[r.SourceType]++
	}
	if n := len(s.ledger.PortfolioHistory); n > 0 {
		stats.CurrentHoldings = slices.Clone(s.ledger.PortfolioHistory[n-1].Holdings)
	}
	return stats
}

// publishCoverage swaps in a fresh reader snapshot. Callers hold s.mu or
// own the store exclusively.
func (s *Store) publishCoverage() {
	snap := cloneCoverage(s.ledger.CoverageIndex)
	s.coverage.Store(&snap)
}

func (s *Store) latestSnapshotID() string {
	if n := len(s.ledger.PortfolioHistory); n > 0 {
		return s.ledger.PortfolioHistory[n-1].ID
	}
	return ""
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func sortedHashes(docs map[string]model.ManifestRecord) []string {
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTickers(idx map[string][]model.SourceType) []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
