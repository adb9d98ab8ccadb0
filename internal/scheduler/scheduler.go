// Package scheduler drives the resumable fetch/record crawl loop against one
// shard store.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/wikigraph/internal/partition"
	"github.com/JakeFAU/wikigraph/internal/store"
	"github.com/JakeFAU/wikigraph/internal/telemetry"
)

// seedChunkSize bounds memory while streaming the title dump into the store.
const seedChunkSize = 5000

// Store is the slice of the shard store the scheduler needs.
type Store interface {
	SeedArticles(ctx context.Context, titles []string) (int64, error)
	NextUnprocessedBatch(ctx context.Context, limit int) ([]string, error)
	RecordResult(ctx context.Context, title string, links []string) error
	Stats(ctx context.Context) (store.Stats, error)
}

// LinkFetcher retrieves the outgoing links of one article.
type LinkFetcher interface {
	FetchLinks(ctx context.Context, title string) ([]string, error)
}

// TitleSource streams the full title universe at population time.
type TitleSource interface {
	ListAllTitles(ctx context.Context, visit func(title string) error) error
}

// Config controls one crawl campaign member.
type Config struct {
	MachineID     int
	TotalMachines int
	BatchSize     int
	Delay         time.Duration
}

// Scheduler runs the crawl loop: take the next FIFO batch of unprocessed
// titles, fetch each one at a fixed pace, and record the outcome. It is
// strictly sequential; the shard store never sees a second writer.
type Scheduler struct {
	store    Store
	fetcher  LinkFetcher
	source   TitleSource
	assigner *partition.Assigner
	limiter  *rate.Limiter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Scheduler. BatchSize defaults to 100 and Delay to one
// second. Each run is tagged with a fresh run id in its log fields.
func New(
	st Store,
	fetcher LinkFetcher,
	source TitleSource,
	assigner *partition.Assigner,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	return &Scheduler{
		store:    st,
		fetcher:  fetcher,
		source:   source,
		assigner: assigner,
		// One fetch per Delay, no bursting: a deliberate uniform pace, not an
		// adaptive scheme.
		limiter: rate.NewLimiter(rate.Every(cfg.Delay), 1),
		cfg:     cfg,
		logger: logger.With(
			zap.String("run_id", uuid.NewString()),
			zap.Int("machine_id", cfg.MachineID),
			zap.Int("total_machines", cfg.TotalMachines),
		),
	}
}

// Run populates the store on first start, then loops over unprocessed batches
// until the backlog is empty or the context ends. A per-title fetch or record
// failure is logged and skipped; the title stays unprocessed and comes back
// at the head of a later batch.
func (s *Scheduler) Run(ctx context.Context) error {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read startup stats: %w", err)
	}
	if st.TotalArticles == 0 {
		s.logger.Info("empty store, populating from title source")
		if err := s.populate(ctx); err != nil {
			return fmt.Errorf("populate: %w", err)
		}
	} else {
		s.logger.Info("resuming existing store",
			zap.Int64("total", st.TotalArticles),
			zap.Int64("processed", st.ProcessedArticles),
			zap.Int64("remaining", st.RemainingArticles),
		)
	}

	for {
		batch, err := s.store.NextUnprocessedBatch(ctx, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("next batch: %w", err)
		}
		if len(batch) == 0 {
			s.logger.Info("no more articles to process, crawl complete")
			return nil
		}

		s.logger.Info("processing batch", zap.Int("size", len(batch)))
		progressed := 0
		for _, title := range batch {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
			if s.processOne(ctx, title) {
				progressed++
			}
		}

		if progressed == 0 {
			// Retry-forever semantics: the same failing titles will head
			// every subsequent batch. Surface the stall instead of spinning
			// silently.
			s.logger.Warn("batch made no progress, backlog head is stalling",
				zap.String("head", batch[0]),
				zap.Int("stalled", len(batch)),
			)
		}

		if st, err := s.store.Stats(ctx); err != nil {
			// The gauge is best-effort, but a failing store between batches
			// is worth seeing in the logs.
			s.logger.Debug("backlog stats read failed", zap.Error(err))
		} else {
			telemetry.SetBacklog(st.RemainingArticles)
		}
	}
}

// processOne fetches and records a single title, returning whether the title
// was marked processed.
func (s *Scheduler) processOne(ctx context.Context, title string) bool {
	links, err := s.fetcher.FetchLinks(ctx, title)
	if err != nil {
		telemetry.FetchFailure()
		s.logger.Error("fetch failed, leaving unprocessed",
			zap.String("title", title), zap.Error(err))
		return false
	}
	if err := s.store.RecordResult(ctx, title, links); err != nil {
		telemetry.RecordFailure()
		s.logger.Error("record failed, leaving unprocessed",
			zap.String("title", title), zap.Error(err))
		return false
	}
	telemetry.ArticleProcessed(len(links))
	s.logger.Info("saved article links",
		zap.String("title", title), zap.Int("links", len(links)))
	return true
}

// populate streams the title universe and seeds the rows this machine owns,
// in chunks to bound memory. Seeding is idempotent, so a crash mid-populate
// resumes cleanly: already-seeded chunks become no-ops.
func (s *Scheduler) populate(ctx context.Context) error {
	var (
		chunk    = make([]string, 0, seedChunkSize)
		total    int64
		owned    int64
		inserted int64
	)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := s.store.SeedArticles(ctx, chunk)
		if err != nil {
			return err
		}
		inserted += n
		chunk = chunk[:0]
		return nil
	}

	err := s.source.ListAllTitles(ctx, func(title string) error {
		total++
		ok, err := s.assigner.Owns(title, s.cfg.MachineID, s.cfg.TotalMachines)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		owned++
		chunk = append(chunk, title)
		if len(chunk) == seedChunkSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	s.logger.Info("populated shard",
		zap.Int64("universe", total),
		zap.Int64("owned", owned),
		zap.Int64("inserted", inserted),
	)
	return nil
}
