// Package store persists one machine's crawl state: the article backlog, the
// outgoing link set, and the processed bookkeeping that makes a crawl
// resumable. One store file is one shard; a process owns its shard
// exclusively while crawling.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// ErrNotFound signals that the requested article does not exist.
var ErrNotFound = errors.New("article not found")

// Article is one row of the articles table. Processed is monotonic: once a
// row is marked processed its link set is final and the crawler never
// revisits it.
type Article struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Processed   bool      `db:"processed"`
	LastUpdated time.Time `db:"last_updated"`
}

// Stats is a point-in-time snapshot of crawl progress.
type Stats struct {
	TotalArticles     int64 `json:"total_articles"`
	ProcessedArticles int64 `json:"processed_articles"`
	RemainingArticles int64 `json:"remaining_articles"`
	TotalLinks        int64 `json:"total_links"`
}

// Options configures Open.
type Options struct {
	// ReadOnly opens the store without applying schema and rejects writes.
	// Used by the merger for input shards and by the stats command.
	ReadOnly bool

	// Now supplies timestamps for last_updated. Defaults to time.Now.
	Now func() time.Time
}

// Store is a SQLite-backed crawl state store.
type Store struct {
	db   *sqlx.DB
	path string
	now  func() time.Time

	// linkHook is a test seam invoked after each link insert inside
	// RecordResult's transaction. Always nil in production.
	linkHook func(toTitle string) error
}

// uriPathEscaper escapes the characters that would corrupt the query string
// or fragment of a SQLite file URI. SQLite percent-decodes the path on open,
// so the escaped form still names the same file.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// Open connects to the store file at path, verifies the connection, and
// (unless opening read-only) applies the schema. The file is created if it
// does not exist.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	dsn := "file:" + uriPathEscaper.Replace(path) + "?_time_format=sqlite&_pragma=busy_timeout(5000)"
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// SQLite allows one writer at a time; a single shared connection keeps
	// transactions and reads on the same handle.
	db.SetMaxOpenConns(1)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{db: db, path: path, now: now}

	if !opts.ReadOnly {
		if err := s.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// InitSchema creates the articles, links, and progress tables if they do not
// exist. Safe to call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// UpsertArticle inserts the title if absent. An existing row is left
// untouched: neither processed nor last_updated change.
func (s *Store) UpsertArticle(ctx context.Context, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles (title, last_updated) VALUES (?, ?)`,
		title, s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert article %q: %w", title, err)
	}
	return nil
}

// SeedArticles bulk-inserts titles inside one transaction, skipping any that
// already exist. It returns the number of rows actually inserted.
func (s *Store) SeedArticles(ctx context.Context, titles []string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed articles: begin: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx,
		`INSERT OR IGNORE INTO articles (title, last_updated) VALUES (?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("seed articles: prepare: %w", err)
	}

	var inserted int64
	ts := s.now()
	for _, title := range titles {
		res, err := stmt.ExecContext(ctx, title, ts)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("seed article %q: %w", title, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("seed articles: rows affected: %w", err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed articles: commit: %w", err)
	}
	return inserted, nil
}

// NextUnprocessedBatch returns up to limit unprocessed titles in insertion
// order. The ordering is stable, so a title that keeps failing is returned at
// the head of every batch until it succeeds.
func (s *Store) NextUnprocessedBatch(ctx context.Context, limit int) ([]string, error) {
	var titles []string
	err := s.db.SelectContext(ctx, &titles,
		`SELECT title FROM articles WHERE processed = FALSE ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("next unprocessed batch: %w", err)
	}
	return titles, nil
}

// RecordResult stores the crawl outcome for title in a single transaction:
// the origin row is created if missing, each outgoing link is inserted
// (duplicates ignored), and the row is marked processed with a fresh
// last_updated. Any failure rolls the whole unit back, leaving the title
// unprocessed and retryable with zero new link rows.
func (s *Store) RecordResult(ctx context.Context, title string, links []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record result: begin: %w", err)
	}
	if err := s.recordResultTx(ctx, tx, title, links); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record result for %q: %w", title, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record result for %q: commit: %w", title, err)
	}
	return nil
}

func (s *Store) recordResultTx(ctx context.Context, tx *sqlx.Tx, title string, links []string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles (title, last_updated) VALUES (?, ?)`,
		title, s.now(),
	); err != nil {
		return fmt.Errorf("upsert origin: %w", err)
	}

	var id int64
	if err := tx.GetContext(ctx, &id,
		`SELECT id FROM articles WHERE title = ?`, title); err != nil {
		return fmt.Errorf("resolve origin id: %w", err)
	}

	for _, to := range links {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO links (from_article_id, to_article_title) VALUES (?, ?)`,
			id, to,
		); err != nil {
			return fmt.Errorf("insert link to %q: %w", to, err)
		}
		if s.linkHook != nil {
			if err := s.linkHook(to); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE articles SET processed = TRUE, last_updated = ? WHERE id = ?`,
		s.now(), id,
	); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// Stats reads progress counters. The reads are not a single snapshot, which
// is fine: one process owns one store, so there are no concurrent writers.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.GetContext(ctx, &st.TotalArticles,
		`SELECT COUNT(*) FROM articles`); err != nil {
		return Stats{}, fmt.Errorf("stats: count articles: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.ProcessedArticles,
		`SELECT COUNT(*) FROM articles WHERE processed = TRUE`); err != nil {
		return Stats{}, fmt.Errorf("stats: count processed: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.TotalLinks,
		`SELECT COUNT(*) FROM links`); err != nil {
		return Stats{}, fmt.Errorf("stats: count links: %w", err)
	}
	st.RemainingArticles = st.TotalArticles - st.ProcessedArticles
	return st, nil
}

// Articles returns every article row in insertion order. Used by the merger
// to scan input shards.
func (s *Store) Articles(ctx context.Context) ([]Article, error) {
	var articles []Article
	err := s.db.SelectContext(ctx, &articles,
		`SELECT id, title, processed, last_updated FROM articles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan articles: %w", err)
	}
	return articles, nil
}

// LinksFrom returns the target titles of every link originating at the given
// local article id.
func (s *Store) LinksFrom(ctx context.Context, articleID int64) ([]string, error) {
	var titles []string
	err := s.db.SelectContext(ctx, &titles,
		`SELECT to_article_title FROM links WHERE from_article_id = ?`, articleID)
	if err != nil {
		return nil, fmt.Errorf("links from %d: %w", articleID, err)
	}
	return titles, nil
}

// ArticleIDByTitle resolves a title to this store's local id. Returns
// ErrNotFound when no row exists.
func (s *Store) ArticleIDByTitle(ctx context.Context, title string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `SELECT id FROM articles WHERE title = ?`, title)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("article id for %q: %w", title, err)
	}
	return id, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store %s: %w", s.path, err)
	}
	return nil
}
