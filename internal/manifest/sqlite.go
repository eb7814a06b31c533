package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/evidence-cli/internal/model"
)

// SQLiteBackend stores the ledger in SQLite using modernc.org/sqlite.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode
// and applies the schema.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	b := &SQLiteBackend{db: db}
	if err := b.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS manifest_documents (
	content_hash   TEXT PRIMARY KEY,
	first_seen     TEXT NOT NULL,
	source_type    TEXT NOT NULL,
	entity_count   INTEGER NOT NULL DEFAULT 0,
	snapshot_id    TEXT NOT NULL DEFAULT '',
	raw_text_ref   TEXT NOT NULL DEFAULT '',
	coverage_notes TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id       TEXT PRIMARY KEY,
	seq      INTEGER NOT NULL,
	taken_at TEXT NOT NULL,
	holdings TEXT NOT NULL,
	added    TEXT NOT NULL DEFAULT '[]',
	removed  TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS coverage_index (
	ticker      TEXT NOT NULL,
	source_type TEXT NOT NULL,
	PRIMARY KEY (ticker, source_type)
);

CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_seq ON portfolio_snapshots(seq);
`

// Migrate creates the manifest tables.
func (b *SQLiteBackend) Migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Name implements Backend.
func (b *SQLiteBackend) Name() string { return "sqlite" }

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context) (*Ledger, error) {
	l := NewLedger()

	rows, err := b.db.QueryContext(ctx,
		`SELECT content_hash, first_seen, source_type, entity_count, snapshot_id, raw_text_ref, coverage_notes FROM manifest_documents`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load documents")
	}
	for rows.Next() {
		var r model.ManifestRecord
		var firstSeen, notes string
		if err := rows.Scan(&r.ContentHash, &firstSeen, &r.SourceType, &r.EntityCount, &r.SnapshotID, &r.RawTextRef, &notes); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		if r.FirstSeen, err = parseTime(firstSeen); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "sqlite: document %s first_seen", r.ContentHash)
		}
		if err := decodeStrings(notes, &r.CoverageNotes); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "sqlite: document %s coverage_notes", r.ContentHash)
		}
		l.Documents[r.ContentHash] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load documents iterate")
	}

	rows, err = b.db.QueryContext(ctx,
		`SELECT id, taken_at, holdings, added, removed FROM portfolio_snapshots ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshots")
	}
	for rows.Next() {
		var s model.PortfolioSnapshot
		var takenAt, holdings, added, removed string
		if err := rows.Scan(&s.ID, &takenAt, &holdings, &added, &removed); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		if s.TakenAt, err = parseTime(takenAt); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "sqlite: snapshot %s taken_at", s.ID)
		}
		for _, f := range []struct {
			raw string
			dst *[]string
		}{{holdings, &s.Holdings}, {added, &s.Added}, {removed, &s.Removed}} {
			if err := decodeStrings(f.raw, f.dst); err != nil {
				rows.Close()
				return nil, eris.Wrapf(err, "sqlite: snapshot %s", s.ID)
			}
		}
		l.PortfolioHistory = append(l.PortfolioHistory, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshots iterate")
	}

	rows, err = b.db.QueryContext(ctx, `SELECT ticker, source_type FROM coverage_index ORDER BY ticker, source_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load coverage")
	}
	defer rows.Close()
	for rows.Next() {
		var ticker string
		var st model.SourceType
		if err := rows.Scan(&ticker, &st); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan coverage")
		}
		addCoverage(l.CoverageIndex, ticker, st)
	}
	return l, eris.Wrap(rows.Err(), "sqlite: load coverage iterate")
}

// Save implements Backend. The ledger is append-only, so one transaction of
// upserts brings the tables in line with l.
func (b *SQLiteBackend) Save(ctx context.Context, l *Ledger) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, hash := range sortedHashes(l.Documents) {
		r := l.Documents[hash]
		notes, err := encodeStrings(r.CoverageNotes)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO manifest_documents (content_hash, first_seen, source_type, entity_count, snapshot_id, raw_text_ref, coverage_notes)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(content_hash) DO UPDATE SET coverage_notes = excluded.coverage_notes, entity_count = excluded.entity_count`,
			r.ContentHash, formatTime(r.FirstSeen), string(r.SourceType), r.EntityCount, r.SnapshotID, r.RawTextRef, notes,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert document %s", r.ContentHash)
		}
	}

	for i, s := range l.PortfolioHistory {
		holdings, added, removed, err := encodeSnapshot(s)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO portfolio_snapshots (id, seq, taken_at, holdings, added, removed)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			s.ID, i, formatTime(s.TakenAt), holdings, added, removed,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert snapshot %s", s.ID)
		}
	}

	for _, ticker := range sortedTickers(l.CoverageIndex) {
		for _, st := range l.CoverageIndex[ticker] {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO coverage_index (ticker, source_type) VALUES (?, ?) ON CONFLICT(ticker, source_type) DO NOTHING`,
				ticker, string(st),
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert coverage %s", ticker)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// encodeStrings stores a string list as a JSON array. Encoding failures are
// permanent.
func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", permanentEncode(err)
	}
	return string(b), nil
}

// decodeStrings leaves dst nil for an empty array so loaded records compare
// equal to freshly built ones.
func decodeStrings(raw string, dst *[]string) error {
	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return err
	}
	if len(v) > 0 {
		*dst = v
	}
	return nil
}

func encodeSnapshot(s model.PortfolioSnapshot) (string, string, string, error) {
	holdings, err := encodeStrings(s.Holdings)
	if err != nil {
		return "", "", "", err
	}
	added, err := encodeStrings(s.Added)
	if err != nil {
		return "", "", "", err
	}
	removed, err := encodeStrings(s.Removed)
	if err != nil {
		return "", "", "", err
	}
	return holdings, added, removed, nil
}
