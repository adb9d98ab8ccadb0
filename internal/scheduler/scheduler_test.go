package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/wikigraph/internal/partition"
	"github.com/JakeFAU/wikigraph/internal/store"
)

// fakeFetcher serves canned links and scripted failures, recording calls.
type fakeFetcher struct {
	mu    sync.Mutex
	links map[string][]string
	// failFirst holds titles whose first fetch fails.
	failFirst map[string]bool
	// failAlways holds titles whose every fetch fails.
	failAlways map[string]bool
	calls      map[string]int
}

func newFakeFetcher(links map[string][]string) *fakeFetcher {
	return &fakeFetcher{
		links:      links,
		failFirst:  make(map[string]bool),
		failAlways: make(map[string]bool),
		calls:      make(map[string]int),
	}
}

func (f *fakeFetcher) FetchLinks(_ context.Context, title string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[title]++
	if f.failAlways[title] {
		return nil, errors.New("fetch exploded")
	}
	if f.failFirst[title] && f.calls[title] == 1 {
		return nil, errors.New("transient fetch error")
	}
	return f.links[title], nil
}

func (f *fakeFetcher) callCount(title string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[title]
}

// fakeSource replays a fixed title list.
type fakeSource struct {
	titles []string
	called bool
}

func (s *fakeSource) ListAllTitles(_ context.Context, visit func(string) error) error {
	s.called = true
	for _, t := range s.titles {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "shard.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestRun_EndToEndSingleMachine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)
	fetcher := newFakeFetcher(map[string][]string{
		"Apple": {"Banana", "Cherry"},
	})
	source := &fakeSource{titles: []string{"Apple", "Banana", "Cherry"}}

	sched := New(st, fetcher, source, partition.New(),
		Config{MachineID: 0, TotalMachines: 1, BatchSize: 10, Delay: time.Millisecond},
		zap.NewNop(),
	)
	require.NoError(t, sched.Run(ctx))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalArticles)
	require.Equal(t, int64(3), stats.ProcessedArticles)
	require.Equal(t, int64(2), stats.TotalLinks)

	appleID, err := st.ArticleIDByTitle(ctx, "Apple")
	require.NoError(t, err)
	links, err := st.LinksFrom(ctx, appleID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Banana", "Cherry"}, links)

	for _, title := range []string{"Banana", "Cherry"} {
		id, err := st.ArticleIDByTitle(ctx, title)
		require.NoError(t, err)
		links, err := st.LinksFrom(ctx, id)
		require.NoError(t, err)
		require.Empty(t, links)
	}
}

func TestRun_PopulateFiltersByPartition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)
	titles := []string{"Apple", "Banana", "Cherry", "Date", "Elderberry", "Fig", "Grape"}
	source := &fakeSource{titles: titles}
	assigner := partition.New()

	const machineID, totalMachines = 1, 3
	var want []string
	for _, title := range titles {
		idx, err := assigner.Assign(title, totalMachines)
		require.NoError(t, err)
		if idx == machineID {
			want = append(want, title)
		}
	}

	sched := New(st, newFakeFetcher(nil), source, assigner,
		Config{MachineID: machineID, TotalMachines: totalMachines, BatchSize: 10, Delay: time.Millisecond},
		zap.NewNop(),
	)
	require.NoError(t, sched.Run(ctx))

	articles, err := st.Articles(ctx)
	require.NoError(t, err)
	var got []string
	for _, a := range articles {
		got = append(got, a.Title)
		require.True(t, a.Processed)
	}
	require.Equal(t, want, got)
}

func TestRun_ResumesWithoutRepopulating(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)
	_, err := st.SeedArticles(ctx, []string{"Apple", "Banana"})
	require.NoError(t, err)
	require.NoError(t, st.RecordResult(ctx, "Apple", nil))

	source := &fakeSource{titles: []string{"Apple", "Banana", "Cherry"}}
	sched := New(st, newFakeFetcher(nil), source, partition.New(),
		Config{MachineID: 0, TotalMachines: 1, BatchSize: 10, Delay: time.Millisecond},
		zap.NewNop(),
	)
	require.NoError(t, sched.Run(ctx))

	// The store was non-empty, so the title source is never consulted and the
	// backlog is exactly the prior run's remainder.
	require.False(t, source.called)
	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalArticles)
	require.Equal(t, int64(2), stats.ProcessedArticles)
}

func TestRun_FailedTitleIsRetriedNextPass(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)
	fetcher := newFakeFetcher(nil)
	fetcher.failFirst["Banana"] = true
	source := &fakeSource{titles: []string{"Apple", "Banana", "Cherry"}}

	sched := New(st, fetcher, source, partition.New(),
		Config{MachineID: 0, TotalMachines: 1, BatchSize: 10, Delay: time.Millisecond},
		zap.NewNop(),
	)
	require.NoError(t, sched.Run(ctx))

	// The batch failure did not abort the pass: Apple and Cherry went through
	// on the first pass, Banana on the second.
	require.Equal(t, 1, fetcher.callCount("Apple"))
	require.Equal(t, 2, fetcher.callCount("Banana"))
	require.Equal(t, 1, fetcher.callCount("Cherry"))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.ProcessedArticles)
}

func TestRun_PermanentFailureStallsAtBacklogHead(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := openTestStore(t)
	// "X" is seeded first, so it sits at the head of every FIFO batch.
	_, err := st.SeedArticles(ctx, []string{"X", "Apple", "Banana"})
	require.NoError(t, err)

	fetcher := newFakeFetcher(nil)
	fetcher.failAlways["X"] = true

	sched := New(st, fetcher, &fakeSource{}, partition.New(),
		Config{MachineID: 0, TotalMachines: 1, BatchSize: 10, Delay: time.Millisecond},
		zap.NewNop(),
	)

	done := make(chan error, 1)
	go func() {
		done <- sched.Run(ctx)
	}()

	// Let the loop retry "X" across several passes, then stop it.
	require.Eventually(t, func() bool {
		return fetcher.callCount("X") >= 3
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Everything else completed in one attempt; "X" alone stalls, returned at
	// the head of every subsequent batch.
	require.Equal(t, 1, fetcher.callCount("Apple"))
	require.Equal(t, 1, fetcher.callCount("Banana"))

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.ProcessedArticles)

	batch, err := st.NextUnprocessedBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"X"}, batch)
}

func TestRun_ZeroLinkResultStillProcessed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)
	source := &fakeSource{titles: []string{"Apple"}}

	sched := New(st, newFakeFetcher(nil), source, partition.New(),
		Config{MachineID: 0, TotalMachines: 1, BatchSize: 10, Delay: time.Millisecond},
		zap.NewNop(),
	)
	require.NoError(t, sched.Run(ctx))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.ProcessedArticles)
	require.Equal(t, int64(0), stats.TotalLinks)
}

// flakyStatsStore delegates to a real shard store but fails Stats after the
// first call, mimicking a store that dies mid-run.
type flakyStatsStore struct {
	*store.Store
	calls int
}

func (f *flakyStatsStore) Stats(ctx context.Context) (store.Stats, error) {
	f.calls++
	if f.calls > 1 {
		return store.Stats{}, errors.New("database is locked")
	}
	return f.Store.Stats(ctx)
}

func TestRun_StatsFailureBetweenBatchesIsLogged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := openTestStore(t)
	_, err := st.SeedArticles(ctx, []string{"Apple"})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	sched := New(&flakyStatsStore{Store: st}, newFakeFetcher(nil), &fakeSource{}, partition.New(),
		Config{MachineID: 0, TotalMachines: 1, BatchSize: 10, Delay: time.Millisecond},
		zap.New(core),
	)
	require.NoError(t, sched.Run(ctx))

	// The backlog gauge refresh failed, but the crawl still finished and the
	// failure surfaced in the logs.
	require.GreaterOrEqual(t, logs.FilterMessage("backlog stats read failed").Len(), 1)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.ProcessedArticles)
}
