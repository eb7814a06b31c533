package manifest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresBackend.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresBackend stores the ledger in PostgreSQL.
type PostgresBackend struct {
	pool Pool
}

// NewPostgres connects to connString and applies the schema.
func NewPostgres(ctx context.Context, connString string) (*PostgresBackend, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	b := &PostgresBackend{pool: pool}
	if err := b.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS manifest_documents (
	content_hash   TEXT PRIMARY KEY,
	first_seen     TIMESTAMPTZ NOT NULL,
	source_type    TEXT NOT NULL,
	entity_count   INTEGER NOT NULL DEFAULT 0,
	snapshot_id    TEXT NOT NULL DEFAULT '',
	raw_text_ref   TEXT NOT NULL DEFAULT '',
	coverage_notes TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id       TEXT PRIMARY KEY,
	seq      INTEGER NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL,
	holdings TEXT[] NOT NULL DEFAULT '{}',
	added    TEXT[] NOT NULL DEFAULT '{}',
	removed  TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS coverage_index (
	ticker      TEXT NOT NULL,
	source_type TEXT NOT NULL,
	PRIMARY KEY (ticker, source_type)
);

CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_seq ON portfolio_snapshots(seq);
`

// Migrate creates the manifest tables.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Name implements Backend.
func (b *PostgresBackend) Name() string { return "postgres" }

// Close implements Backend.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// Load implements Backend.
func (b *PostgresBackend) Load(ctx context.Context) (*Ledger, error) {
	l := NewLedger()

	rows, err := b.pool.Query(ctx,
		`SELECT content_hash, first_seen, source_type, entity_count, snapshot_id, raw_text_ref, coverage_notes FROM manifest_documents`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load documents")
	}
	for rows.Next() {
		var r model.ManifestRecord
		var st string
		var notes []string
		if err := rows.Scan(&r.ContentHash, &r.FirstSeen, &st, &r.EntityCount, &r.SnapshotID, &r.RawTextRef, &notes); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		r.SourceType = model.SourceType(st)
		r.FirstSeen = r.FirstSeen.UTC()
		if len(notes) > 0 {
			r.CoverageNotes = notes
		}
		l.Documents[r.ContentHash] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load documents iterate")
	}

	rows, err = b.pool.Query(ctx,
		`SELECT id, taken_at, holdings, added, removed FROM portfolio_snapshots ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshots")
	}
	for rows.Next() {
		var s model.PortfolioSnapshot
		var holdings, added, removed []string
		if err := rows.Scan(&s.ID, &s.TakenAt, &holdings, &added, &removed); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		s.TakenAt = s.TakenAt.UTC()
		s.Holdings = nilIfEmpty(holdings)
		s.Added = nilIfEmpty(added)
		s.Removed = nilIfEmpty(removed)
		l.PortfolioHistory = append(l.PortfolioHistory, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshots iterate")
	}

	rows, err = b.pool.Query(ctx, `SELECT ticker, source_type FROM coverage_index ORDER BY ticker, source_type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load coverage")
	}
	defer rows.Close()
	for rows.Next() {
		var ticker, st string
		if err := rows.Scan(&ticker, &st); err != nil {
			return nil, eris.Wrap(err, "postgres: scan coverage")
		}
		addCoverage(l.CoverageIndex, ticker, model.SourceType(st))
	}
	return l, eris.Wrap(rows.Err(), "postgres: load coverage iterate")
}

// Save implements Backend as one transaction of idempotent upserts.
func (b *PostgresBackend) Save(ctx context.Context, l *Ledger) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, hash := range sortedHashes(l.Documents) {
		r := l.Documents[hash]
		_, err := tx.Exec(ctx,
			`INSERT INTO manifest_documents (content_hash, first_seen, source_type, entity_count, snapshot_id, raw_text_ref, coverage_notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (content_hash) DO UPDATE SET coverage_notes = EXCLUDED.coverage_notes, entity_count = EXCLUDED.entity_count`,
			r.ContentHash, r.FirstSeen.UTC(), string(r.SourceType), r.EntityCount, r.SnapshotID, r.RawTextRef, emptyIfNil(r.CoverageNotes),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert document %s", r.ContentHash)
		}
	}

	for i, s := range l.PortfolioHistory {
		_, err := tx.Exec(ctx,
			`INSERT INTO portfolio_snapshots (id, seq, taken_at, holdings, added, removed)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			s.ID, i, s.TakenAt.UTC(), emptyIfNil(s.Holdings), emptyIfNil(s.Added), emptyIfNil(s.Removed),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert snapshot %s", s.ID)
		}
	}

	for _, ticker := range sortedTickers(l.CoverageIndex) {
		for _, st := range l.CoverageIndex[ticker] {
			_, err := tx.Exec(ctx,
				`INSERT INTO coverage_index (ticker, source_type) VALUES ($1, $2) ON CONFLICT (ticker, source_type) DO NOTHING`,
				ticker, string(st),
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert coverage %s", ticker)
			}
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func nilIfEmpty(v []string) []string {
	if len(v) == 0 {
		return nil
	}
	return v
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
