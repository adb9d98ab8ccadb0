package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Tx is an explicit write transaction. The merger uses it to batch many
// article merges into one durability checkpoint: everything written since the
// last Commit is lost together on a crash, never partially.
type Tx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

// Begin starts a write transaction against the store.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx, now: s.now}, nil
}

// UpsertArticle inserts the title if absent, leaving existing rows untouched.
func (t *Tx) UpsertArticle(ctx context.Context, title string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles (title, last_updated) VALUES (?, ?)`,
		title, t.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert article %q: %w", title, err)
	}
	return nil
}

// MarkProcessedByTitle flips processed to true for the titled row. The flag
// is monotonic: an already-processed row is left as is, so merging shards in
// any order yields the OR of their flags.
func (t *Tx) MarkProcessedByTitle(ctx context.Context, title string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE articles SET processed = TRUE, last_updated = ? WHERE title = ? AND processed = FALSE`,
		t.now(), title,
	)
	if err != nil {
		return fmt.Errorf("mark processed %q: %w", title, err)
	}
	return nil
}

// ArticleIDByTitle resolves a title to the transaction-local view of this
// store's id, including rows inserted earlier in the same transaction.
func (t *Tx) ArticleIDByTitle(ctx context.Context, title string) (int64, error) {
	var id int64
	err := t.tx.GetContext(ctx, &id, `SELECT id FROM articles WHERE title = ?`, title)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("article id for %q: %w", title, err)
	}
	return id, nil
}

// InsertLink adds a directed link, ignoring duplicates of the same ordered
// (from, to) pair.
func (t *Tx) InsertLink(ctx context.Context, fromID int64, toTitle string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO links (from_article_id, to_article_title) VALUES (?, ?)`,
		fromID, toTitle,
	)
	if err != nil {
		return fmt.Errorf("insert link %d -> %q: %w", fromID, toTitle, err)
	}
	return nil
}

// Commit makes the transaction's writes durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction's writes.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
