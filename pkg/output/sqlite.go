package output

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"url-spider/pkg/utils"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	seeds TEXT,
	started_at DATETIME,
	finished_at DATETIME,
	duration TEXT,
	discovered INTEGER,
	pages_fetched INTEGER,
	failures INTEGER,
	robots_blocked INTEGER
);

CREATE TABLE IF NOT EXISTS urls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	scope TEXT NOT NULL,
	kind TEXT NOT NULL,
	context TEXT,
	depth INTEGER,
	source TEXT,
	UNIQUE(run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_urls_scope ON urls(scope);
CREATE INDEX IF NOT EXISTS idx_urls_kind ON urls(kind);

CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	final_url TEXT,
	depth INTEGER,
	status_code INTEGER,
	content_type TEXT,
	bytes INTEGER,
	content_hash TEXT,
	links_found INTEGER,
	attempts INTEGER
);

CREATE TABLE IF NOT EXISTS failures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	depth INTEGER,
	kind TEXT,
	status_code INTEGER,
	category TEXT,
	detail TEXT,
	attempts INTEGER
);
`

// writeSQLite stores rep in a fresh SQLite database at path, replacing any existing file
func writeSQLite(ctx context.Context, path string, rep *Report) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing old database %s: %w", utils.ErrFilesystem, path, err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", utils.ErrDatabase, path, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing %s: %w", utils.ErrDatabase, path, cerr)
		}
	}()
	db.SetMaxOpenConns(1) // SQLite only supports one writer

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("%w: creating tables: %w", utils.ErrDatabase, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", utils.ErrDatabase, err)
	}
	if err := insertReport(ctx, tx, rep); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", utils.ErrDatabase, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", utils.ErrDatabase, err)
	}
	return nil
}

func insertReport(ctx context.Context, tx *sql.Tx, rep *Report) error {
	var finished any
	if !rep.FinishedAt.IsZero() {
		finished = rep.FinishedAt.Format(time.RFC3339Nano)
	}
	seeds := ""
	for i, s := range rep.Seeds {
		if i > 0 {
			seeds += "\n"
		}
		seeds += s
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, state, seeds, started_at, finished_at, duration, discovered, pages_fetched, failures, robots_blocked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, string(rep.State), seeds, rep.StartedAt.Format(time.RFC3339Nano), finished, rep.Duration,
		rep.Stats.Discovered, rep.Stats.PagesFetched, rep.Stats.Failures, rep.Stats.RobotsBlocked); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	urlStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO urls (run_id, url, scope, kind, context, depth, source) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing url insert: %w", err)
	}
	defer urlStmt.Close()
	for _, u := range rep.URLs {
		if _, err := urlStmt.ExecContext(ctx, rep.RunID, u.URL, string(u.Scope), string(u.Kind), u.Context.String(), u.Depth, u.Source); err != nil {
			return fmt.Errorf("inserting url %s: %w", u.URL, err)
		}
	}

	pageStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pages (run_id, url, final_url, depth, status_code, content_type, bytes, content_hash, links_found, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing page insert: %w", err)
	}
	defer pageStmt.Close()
	for _, p := range rep.Pages {
		if _, err := pageStmt.ExecContext(ctx, rep.RunID, p.URL, p.FinalURL, p.Depth, p.StatusCode, p.ContentType,
			p.Bytes, p.ContentHash, p.LinksFound, p.Attempts); err != nil {
			return fmt.Errorf("inserting page %s: %w", p.URL, err)
		}
	}

	failStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO failures (run_id, url, depth, kind, status_code, category, detail, attempts) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing failure insert: %w", err)
	}
	defer failStmt.Close()
	for _, f := range rep.Failures {
		if _, err := failStmt.ExecContext(ctx, rep.RunID, f.URL, f.Depth, string(f.Kind), f.StatusCode, f.Category,
			f.Detail, f.Attempts); err != nil {
			return fmt.Errorf("inserting failure %s: %w", f.URL, err)
		}
	}
	return nil
}
