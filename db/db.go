// Package db keeps a log of transcript lookups in SQLite: which video and
// language were asked for, which track answered and how it ended. No
// transcript text is stored.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nijaru/yt-transcript/config"
	"github.com/nijaru/yt-transcript/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS lookups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL DEFAULT '',
    video_id TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT '',
    track_language TEXT NOT NULL DEFAULT '',
    track_kind TEXT NOT NULL DEFAULT '',
    match_rule TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    cue_count INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lookups_video ON lookups(video_id);
CREATE INDEX IF NOT EXISTS idx_lookups_created ON lookups(created_at);
`

// OutcomeOK marks a lookup that returned a transcript. Failed lookups use
// the error kind name as outcome.
const OutcomeOK = "ok"

type Lookup struct {
	ID            int64         `json:"id"`
	RequestID     string        `json:"request_id,omitempty"`
	VideoID       string        `json:"video_id"`
	Language      string        `json:"language"`
	TrackLanguage string        `json:"track_language,omitempty"`
	TrackKind     string        `json:"track_kind,omitempty"`
	Match         string        `json:"match,omitempty"`
	Source        string        `json:"source,omitempty"`
	CueCount      int           `json:"cue_count"`
	Outcome       string        `json:"outcome"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	CreatedAt     time.Time     `json:"created_at"`
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	const op = "db.Open"

	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.InvalidInput(op, nil, "database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.Internal(op, err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to open database")
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())
	}

	if err := configurePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := execSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func configurePragmas(ctx context.Context, db *sql.DB) error {
	const op = "db.configurePragmas"

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to set pragma: %s", pragma))
		}
	}
	return nil
}

func execSchema(ctx context.Context, db *sql.DB) error {
	const op = "db.execSchema"

	return withTransaction(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range strings.Split(schema, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Internal(op, err, "failed to execute schema statement")
			}
		}
		return nil
	})
}

func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Internal("db.withTransaction", err, "failed to begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Internal("db.withTransaction", err, "failed to commit transaction")
	}
	return nil
}

// Record appends a lookup and returns its ID. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, l Lookup) (int64, error) {
	const op = "db.Record"

	if l.VideoID == "" {
		return 0, errors.InvalidInput(op, nil, "video ID is required")
	}
	if l.Outcome == "" {
		return 0, errors.InvalidInput(op, nil, "outcome is required")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	var id int64
	err := withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO lookups
            (request_id, video_id, language, track_language, track_kind, match_rule, source,
             cue_count, outcome, error, duration_ms, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.Internal(op, err, "failed to prepare statement")
		}
		defer stmt.Close()

		res, err := stmt.ExecContext(ctx,
			l.RequestID, l.VideoID, l.Language, l.TrackLanguage, l.TrackKind, l.Match, l.Source,
			l.CueCount, l.Outcome, l.Error, l.Duration.Milliseconds(), l.CreatedAt.UTC())
		if err != nil {
			return errors.Internal(op, err, "failed to insert lookup")
		}
		id, err = res.LastInsertId()
		if err != nil {
			return errors.Internal(op, err, "failed to read lookup id")
		}
		return nil
	})
	return id, err
}

// Recent returns up to limit lookups, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Lookup, error) {
	const op = "db.Recent"

	if limit <= 0 {
		return nil, errors.InvalidInput(op, nil, "limit must be greater than 0")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, request_id, video_id, language, track_language,
            track_kind, match_rule, source, cue_count, outcome, error, duration_ms, created_at
        FROM lookups ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to query lookups")
	}
	defer rows.Close()

	lookups := []Lookup{}
	for rows.Next() {
		var l Lookup
		var durationMS int64
		if err := rows.Scan(&l.ID, &l.RequestID, &l.VideoID, &l.Language, &l.TrackLanguage,
			&l.TrackKind, &l.Match, &l.Source, &l.CueCount, &l.Outcome, &l.Error,
			&durationMS, &l.CreatedAt); err != nil {
			return nil, errors.Internal(op, err, "failed to scan lookup")
		}
		l.Duration = time.Duration(durationMS) * time.Millisecond
		lookups = append(lookups, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "failed to iterate lookups")
	}
	return lookups, nil
}

// Stats counts lookups per outcome, most frequent first.
func (s *Store) Stats(ctx context.Context) ([]OutcomeCount, error) {
	const op = "db.Stats"

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM lookups GROUP BY outcome ORDER BY COUNT(*) DESC, outcome`)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to query stats")
	}
	defer rows.Close()

	counts := []OutcomeCount{}
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Count); err != nil {
			return nil, errors.Internal(op, err, "failed to scan stats")
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "failed to iterate stats")
	}
	return counts, nil
}

// Prune deletes lookups older than the cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	const op = "db.Prune"

	res, err := s.db.ExecContext(ctx, "DELETE FROM lookups WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, errors.Internal(op, err, "failed to prune lookups")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Internal(op, err, "failed to count pruned lookups")
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
