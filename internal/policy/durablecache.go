package policy

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// durableCache is the L2 policy cache (SPEC_FULL.md §3/§4.4): a
// SQLite-backed mirror of recently fetched PR records, opened and
// migrated exactly as apps/ReleaseParty/backend/internal/store.Open
// does for its own tables. It is consulted only to avoid a cold-start
// round trip to the repo host right after a restart; the in-memory LRU
// layer (L1) is what correctness actually depends on, and any row read
// from here is still checked against its own fetched_at before use.
type durableCache struct {
	db *sql.DB
}

func openDurableCache(path string) (*durableCache, error) {
	if path == "" {
		return nil, fmt.Errorf("policy cache db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	c := &durableCache{db: db}
	if err := c.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *durableCache) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS pr_cache (
			repo TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			author_login TEXT NOT NULL,
			state TEXT NOT NULL,
			head_branch TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (repo, pr_number)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *durableCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *durableCache) get(ctx context.Context, repo string, number int) (cachedPR, bool) {
	row := c.db.QueryRowContext(ctx,
		`SELECT author_login, state, head_branch, fetched_at FROM pr_cache WHERE repo = ? AND pr_number = ?`,
		repo, number)

	var entry cachedPR
	var fetchedAt string
	if err := row.Scan(&entry.AuthorLogin, &entry.State, &entry.HeadBranch, &fetchedAt); err != nil {
		return cachedPR{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return cachedPR{}, false
	}
	entry.Number = number
	entry.FetchedAt = ts
	return entry, true
}

func (c *durableCache) put(ctx context.Context, repo string, entry cachedPR) {
	_, _ = c.db.ExecContext(ctx,
		`INSERT INTO pr_cache (repo, pr_number, author_login, state, head_branch, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(repo, pr_number) DO UPDATE SET
		   author_login = excluded.author_login,
		   state = excluded.state,
		   head_branch = excluded.head_branch,
		   fetched_at = excluded.fetched_at`,
		repo, entry.Number, entry.AuthorLogin, entry.State, entry.HeadBranch, entry.FetchedAt.Format(time.RFC3339Nano))
}
