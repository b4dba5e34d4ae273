package meta

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoRun is returned when no split has been recorded for a manifest.
var ErrNoRun = errors.New("meta: no recorded run")

// Kind classifies a split artifact.
type Kind string

const (
	KindGap       Kind = "gap"
	KindRaw       Kind = "raw"
	KindReference Kind = "reference"
	KindListing   Kind = "listing"
	KindHolding   Kind = "holding"
)

// Kinds lists every artifact kind in reporting order.
var Kinds = []Kind{KindGap, KindRaw, KindReference, KindListing, KindHolding}

// Run is one recorded split.
type Run struct {
	ID          string `json:"run_id"`
	Manifest    string `json:"manifest"`
	ImageDigest string `json:"image_digest"`
	ImageSize   int64  `json:"image_size"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
}

// Artifact is one file written by a split. Hash is the BLAKE3 hex digest
// of its content at split time.
type Artifact struct {
	Path    string `json:"path"`
	Kind    Kind   `json:"kind"`
	Segment string `json:"segment,omitempty"`
	Offset  uint64 `json:"offset"`
	Size    int64  `json:"size"`
	Hash    string `json:"hash"`
	RunID   string `json:"run_id,omitempty"`
}

// Store wraps the SQLite artifact ledger.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at the given path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("meta: db path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.applyPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Flush forces a WAL checkpoint to durably persist changes.
func (s *Store) Flush() error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (s *Store) applyPragmas(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous=FULL"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return err
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`); err != nil {
		return err
	}

	var version int
	if err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return err
	}
	if version < 1 {
		if err = applyV1(ctx, tx); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations(version, applied_at) VALUES(1, ?)", time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func applyV1(ctx context.Context, tx *sql.Tx) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			manifest TEXT NOT NULL,
			image_digest TEXT NOT NULL,
			image_size INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_manifest_idx ON runs(manifest, finished_at)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			path TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			segment TEXT,
			image_offset INTEGER NOT NULL,
			size INTEGER NOT NULL,
			hash TEXT NOT NULL,
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS artifacts_run_idx ON artifacts(run_id)`,
	}
	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordSplit stores a finished split and its artifacts in one transaction.
// Artifacts of earlier runs of the same manifest are replaced.
func (s *Store) RecordSplit(ctx context.Context, run Run, artifacts []Artifact) error {
	if run.ID == "" || run.Manifest == "" {
		return errors.New("meta: run id and manifest required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
DELETE FROM artifacts WHERE run_id IN (SELECT run_id FROM runs WHERE manifest=?)`, run.Manifest); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO runs(run_id, manifest, image_digest, image_size, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?)`,
		run.ID, run.Manifest, run.ImageDigest, run.ImageSize, run.StartedAt, run.FinishedAt); err != nil {
		return err
	}
	for _, a := range artifacts {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO artifacts(path, kind, segment, image_offset, size, hash, run_id)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	kind=excluded.kind,
	segment=excluded.segment,
	image_offset=excluded.image_offset,
	size=excluded.size,
	hash=excluded.hash,
	run_id=excluded.run_id`,
			a.Path, string(a.Kind), a.Segment, int64(a.Offset), a.Size, a.Hash, run.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LastRun returns the most recent split of a manifest.
func (s *Store) LastRun(ctx context.Context, manifest string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, manifest, image_digest, image_size, started_at, finished_at
FROM runs
WHERE manifest=?
ORDER BY run_id DESC
LIMIT 1`, manifest)
	var run Run
	if err := row.Scan(&run.ID, &run.Manifest, &run.ImageDigest, &run.ImageSize, &run.StartedAt, &run.FinishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRun
		}
		return nil, err
	}
	return &run, nil
}

// ListArtifacts returns the artifacts currently recorded for a manifest,
// ordered by image offset.
func (s *Store) ListArtifacts(ctx context.Context, manifest string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT a.path, a.kind, COALESCE(a.segment, ''), a.image_offset, a.size, a.hash, a.run_id
FROM artifacts a
JOIN runs r ON r.run_id = a.run_id
WHERE r.manifest=?
ORDER BY a.image_offset, a.kind, a.path`, manifest)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Artifact
	for rows.Next() {
		var a Artifact
		var kind string
		var offset int64
		if err := rows.Scan(&a.Path, &kind, &a.Segment, &offset, &a.Size, &a.Hash, &a.RunID); err != nil {
			return nil, err
		}
		a.Kind = Kind(kind)
		a.Offset = uint64(offset)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
