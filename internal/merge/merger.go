// Package merge reconciles independently-built shard stores into one
// consolidated graph store.
package merge

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikigraph/internal/store"
)

// defaultCheckpoint is the number of merged articles per durability commit.
const defaultCheckpoint = 1000

// Report summarizes a merge run.
type Report struct {
	// MergedOK and Failed count input stores, not rows.
	MergedOK int
	Failed   int
	// Articles and Links count rows copied into the output, including rows
	// that already existed there (matching the per-input scan size).
	Articles int64
	Links    int64
}

// Merger unions shard stores into an output store. Every underlying write
// dedups on a unique key and the processed flag only ever ratchets up, so
// merging is idempotent: re-running with the same inputs yields identical
// final counts.
type Merger struct {
	logger     *zap.Logger
	checkpoint int
}

// New builds a Merger with the standard checkpoint interval.
func New(logger *zap.Logger) *Merger {
	return &Merger{logger: logger, checkpoint: defaultCheckpoint}
}

// Merge unions each input store into out, in order. A missing or unreadable
// input is logged and skipped; the remaining inputs are still merged and out
// is always left valid and queryable. The final report and output stats are
// logged.
func (m *Merger) Merge(ctx context.Context, out *store.Store, inputPaths []string) Report {
	m.logger.Info("starting merge", zap.Int("inputs", len(inputPaths)))

	var report Report
	for _, path := range inputPaths {
		articles, links, err := m.mergeOne(ctx, out, path)
		if err != nil {
			m.logger.Error("failed to merge input store",
				zap.String("path", path), zap.Error(err))
			report.Failed++
			continue
		}
		m.logger.Info("merged input store",
			zap.String("path", path),
			zap.Int64("articles", articles),
			zap.Int64("links", links),
		)
		report.MergedOK++
		report.Articles += articles
		report.Links += links
	}

	m.logger.Info("merge complete",
		zap.Int("merged_ok", report.MergedOK),
		zap.Int("failed", report.Failed),
	)
	m.logStats(ctx, out)
	return report
}

// mergeOne copies one input shard into out. Identity crosses the store
// boundary by title only: the input's numeric ids mean nothing in the output,
// so every link is re-attached to the output-side id resolved by title.
func (m *Merger) mergeOne(ctx context.Context, out *store.Store, path string) (int64, int64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, 0, fmt.Errorf("input store: %w", err)
	}
	in, err := store.Open(ctx, path, store.Options{ReadOnly: true})
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			m.logger.Warn("failed to close input store", zap.Error(cerr))
		}
	}()

	articles, err := in.Articles(ctx)
	if err != nil {
		return 0, 0, err
	}

	tx, err := out.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	var (
		articleCount int64
		linkCount    int64
	)
	for _, article := range articles {
		if err := m.mergeArticle(ctx, tx, in, article, &linkCount); err != nil {
			_ = tx.Rollback()
			return 0, 0, err
		}
		articleCount++

		// Durability checkpoint: a crash from here on loses at most the
		// articles merged since the last commit.
		if articleCount%int64(m.checkpoint) == 0 {
			if err := tx.Commit(); err != nil {
				return 0, 0, err
			}
			m.logger.Info("merge checkpoint",
				zap.String("path", path),
				zap.Int64("articles", articleCount),
				zap.Int64("links", linkCount),
			)
			if tx, err = out.Begin(ctx); err != nil {
				return 0, 0, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return articleCount, linkCount, nil
}

func (m *Merger) mergeArticle(
	ctx context.Context,
	tx *store.Tx,
	in *store.Store,
	article store.Article,
	linkCount *int64,
) error {
	if err := tx.UpsertArticle(ctx, article.Title); err != nil {
		return err
	}
	if article.Processed {
		// OR-merge: true from any shard wins, and an already-true output row
		// is never downgraded.
		if err := tx.MarkProcessedByTitle(ctx, article.Title); err != nil {
			return err
		}
	}

	outID, err := tx.ArticleIDByTitle(ctx, article.Title)
	if err != nil {
		return err
	}
	links, err := in.LinksFrom(ctx, article.ID)
	if err != nil {
		return err
	}
	for _, to := range links {
		if err := tx.InsertLink(ctx, outID, to); err != nil {
			return err
		}
		*linkCount++
	}
	return nil
}

func (m *Merger) logStats(ctx context.Context, out *store.Store) {
	st, err := out.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read merged store stats", zap.Error(err))
		return
	}
	ratio := 0.0
	if st.TotalArticles > 0 {
		ratio = float64(st.ProcessedArticles) / float64(st.TotalArticles)
	}
	m.logger.Info("merged store statistics",
		zap.Int64("total_articles", st.TotalArticles),
		zap.Int64("processed_articles", st.ProcessedArticles),
		zap.Int64("remaining_articles", st.RemainingArticles),
		zap.Int64("total_links", st.TotalLinks),
		zap.Float64("processed_ratio", ratio),
	)
}
