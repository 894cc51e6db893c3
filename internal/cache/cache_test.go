package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("disk full")

// failingStore accepts loads but fails every write.
type failingStore struct {
	*MemoryStore
}

func (f failingStore) SaveLearned(context.Context, *model.LearnedEntry) error {
	return errStoreDown
}

func externalVerdict(singlePhase bool) model.Verdict {
	return model.Verdict{
		SinglePhase:   model.TristateOf(singlePhase),
		SuggestedCode: "22029900",
		Rationale:     "energy drink",
		Source:        model.SourceExternal,
	}
}

func openTestCache(t *testing.T, store *MemoryStore) *Cache {
	t.Helper()
	c, err := Open(context.Background(), store)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 12, 30, 9, 15, 0, 0, time.UTC) }
	return c
}

func TestCache_OpenWarmsFromStore(t *testing.T) {
	seed := model.NewLearnedEntry("Heineken 600ml", externalVerdict(true), model.OriginExternal, time.Now())
	c := openTestCache(t, NewMemoryStore(seed))

	v, ok := c.Lookup("HEINEKEN   600ML")
	require.True(t, ok)
	assert.Equal(t, model.SourceCache, v.Source)
	assert.True(t, v.IsSinglePhase())
	assert.Equal(t, 1, c.Len())
}

func TestCache_RecordAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := openTestCache(t, store)

	_, ok := c.Lookup("OBSCURE ENERGY DRINK X")
	assert.False(t, ok)

	require.NoError(t, c.Record(ctx, "Obscure Energy Drink X", externalVerdict(true)))

	v, ok := c.Lookup("obscure energy-drink x")
	require.True(t, ok)
	assert.Equal(t, model.SourceCache, v.Source)
	assert.Equal(t, 1, store.Len())

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, c.Record(ctx, "OBSCURE ENERGY DRINK X", externalVerdict(true)))
		assert.Equal(t, 1, store.Len())
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, c.Record(ctx, "OBSCURE ENERGY DRINK X", externalVerdict(false)))
		v, ok := c.Lookup("OBSCURE ENERGY DRINK X")
		require.True(t, ok)
		assert.Equal(t, model.No, v.SinglePhase)
	})

	t.Run("indefinite verdict rejected", func(t *testing.T) {
		err := c.Record(ctx, "WEIRD ITEM", model.UnresolvedVerdict("timeout"))
		assert.ErrorIs(t, err, ErrIndefiniteVerdict)
		_, ok := c.Lookup("WEIRD ITEM")
		assert.False(t, ok)
	})

	t.Run("empty description rejected", func(t *testing.T) {
		err := c.Record(ctx, " .. ", externalVerdict(true))
		assert.ErrorIs(t, err, common.ErrMalformedRecord)
	})
}

func TestCache_ManualEntriesWin(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, NewMemoryStore())

	entry, err := c.Override(ctx, "VINHO TINTO SECO", model.Verdict{
		SinglePhase:   model.No,
		SuggestedCode: "22042100",
		Rationale:     "wine is not single-phase",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OriginManual, entry.Origin)

	require.NoError(t, c.Record(ctx, "VINHO TINTO SECO", externalVerdict(true)))

	got, ok := c.Entry("VINHO TINTO SECO")
	require.True(t, ok)
	assert.Equal(t, model.OriginManual, got.Origin)
	assert.False(t, got.SinglePhase)

	imported, err := c.Import(ctx, []model.LearnedEntry{
		model.NewLearnedEntry("VINHO TINTO SECO", externalVerdict(true), model.OriginExternal, time.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
}

func TestCache_Forget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := openTestCache(t, store)

	require.NoError(t, c.Record(ctx, "BATATA INGLESA KG", externalVerdict(false)))
	require.NoError(t, c.Forget(ctx, "batata inglesa kg"))

	_, ok := c.Lookup("BATATA INGLESA KG")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())

	assert.ErrorIs(t, c.Forget(ctx, "BATATA INGLESA KG"), common.ErrNotFound)
}

func TestCache_ResolveWritesBackOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := openTestCache(t, store)

	var calls atomic.Int32
	classify := func(context.Context) (model.Verdict, error) {
		calls.Add(1)
		return externalVerdict(true), nil
	}

	first, err := c.Resolve(ctx, "OBSCURE ENERGY DRINK X", classify)
	require.NoError(t, err)
	assert.True(t, first.Called)
	assert.NoError(t, first.WriteErr)
	assert.Equal(t, model.SourceExternal, first.Verdict.Source)

	second, err := c.Resolve(ctx, "Obscure Energy Drink X", classify)
	require.NoError(t, err)
	assert.False(t, second.Called)
	assert.Equal(t, model.SourceCache, second.Verdict.Source)

	assert.Equal(t, int32(1), calls.Load())

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.SinglePhase)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, int64(1), stats.SavedCalls)
}

func TestCache_ResolveFailureNotCached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := openTestCache(t, store)

	var calls atomic.Int32
	classify := func(context.Context) (model.Verdict, error) {
		calls.Add(1)
		return model.Verdict{}, context.DeadlineExceeded
	}

	_, err := c.Resolve(ctx, "WEIRD ITEM", classify)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, c.Len())

	_, err = c.Resolve(ctx, "WEIRD ITEM", classify)
	assert.ErrorIs(t, err, ErrPreviouslyFailed)
	assert.Equal(t, int32(1), calls.Load())

	t.Run("manual override clears the failure", func(t *testing.T) {
		_, err := c.Override(ctx, "WEIRD ITEM", externalVerdict(false))
		require.NoError(t, err)
		out, err := c.Resolve(ctx, "WEIRD ITEM", classify)
		require.NoError(t, err)
		assert.Equal(t, model.SourceCache, out.Verdict.Source)
	})
}

func TestCache_ResolveIndefiniteVerdictIsFailure(t *testing.T) {
	c := openTestCache(t, NewMemoryStore())
	_, err := c.Resolve(context.Background(), "ODD", func(context.Context) (model.Verdict, error) {
		return model.UnresolvedVerdict("shrug"), nil
	})
	assert.ErrorIs(t, err, common.ErrMalformedResponse)
	assert.Equal(t, 0, c.Len())
}

func TestCache_ResolveCancelledNotMemoized(t *testing.T) {
	c := openTestCache(t, NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Resolve(ctx, "ANYTHING", func(ctx context.Context) (model.Verdict, error) {
		return model.Verdict{}, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	out, err := c.Resolve(context.Background(), "ANYTHING", func(context.Context) (model.Verdict, error) {
		return externalVerdict(true), nil
	})
	require.NoError(t, err)
	assert.True(t, out.Called)
}

func TestCache_ResolveWriteFailureIsDegraded(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, failingStore{NewMemoryStore()})
	require.NoError(t, err)

	out, err := c.Resolve(ctx, "OBSCURE ENERGY DRINK X", func(context.Context) (model.Verdict, error) {
		return externalVerdict(true), nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, out.WriteErr, errStoreDown)
	assert.True(t, out.Verdict.IsSinglePhase())

	// The in-process view still prevents a second external call.
	v, ok := c.Lookup("OBSCURE ENERGY DRINK X")
	require.True(t, ok)
	assert.True(t, v.IsSinglePhase())
}

func TestCache_ConcurrentResolveCallsOnce(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, NewMemoryStore())

	var calls atomic.Int32
	release := make(chan struct{})
	classify := func(context.Context) (model.Verdict, error) {
		calls.Add(1)
		<-release
		return externalVerdict(true), nil
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sources = make(map[model.VerdictSource]int)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Resolve(ctx, "OBSCURE ENERGY DRINK X", classify)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			sources[out.Verdict.Source]++
			mu.Unlock()
		}()
	}

	// Give the goroutines time to pile up on the key lock.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, sources[model.SourceExternal])
	assert.Equal(t, workers-1, sources[model.SourceCache])
	assert.Equal(t, 0, c.locks.size())
}

func TestCache_DifferentKeysDoNotBlock(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, NewMemoryStore())

	blocked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = c.Resolve(ctx, "SLOW ITEM", func(context.Context) (model.Verdict, error) {
			<-blocked
			return externalVerdict(false), nil
		})
		close(done)
	}()

	out, err := c.Resolve(ctx, "FAST ITEM", func(context.Context) (model.Verdict, error) {
		return externalVerdict(true), nil
	})
	require.NoError(t, err)
	assert.True(t, out.Called)

	close(blocked)
	<-done
}

func TestCache_OpenFailureIsConfigError(t *testing.T) {
	_, err := Open(context.Background(), brokenLoadStore{NewMemoryStore()})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

type brokenLoadStore struct {
	*MemoryStore
}

func (brokenLoadStore) LoadLearned(context.Context) ([]model.LearnedEntry, error) {
	return nil, errStoreDown
}

func TestCache_ResolveOffline(t *testing.T) {
	seed := model.NewLearnedEntry("AGUA TONICA SCHWEPPES", externalVerdict(true), model.OriginExternal, time.Now())
	c := openTestCache(t, NewMemoryStore(seed))

	out, err := c.Resolve(context.Background(), "agua tonica schweppes", nil)
	require.NoError(t, err)
	assert.Equal(t, model.SourceCache, out.Verdict.Source)

	_, err = c.Resolve(context.Background(), "PRODUTO DESCONHECIDO", nil)
	require.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, 1, c.Len())
	assert.NoError(t, c.failure("PRODUTO DESCONHECIDO"), "offline misses are not remembered as failures")
}

func TestCache_ResolveCancelledAfterAnswerStillPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "learned.db")
	store, err := storage.Open(context.Background(), dbPath)
	require.NoError(t, err)

	c, err := Open(context.Background(), store)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out, err := c.Resolve(ctx, "OBSCURE ENERGY DRINK X", func(context.Context) (model.Verdict, error) {
		cancel()
		return externalVerdict(true), nil
	})
	require.NoError(t, err)
	assert.True(t, out.Called)
	assert.NoError(t, out.WriteErr)
	require.NoError(t, store.Close())

	reopened, err := storage.Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.LoadLearned(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "OBSCURE ENERGY DRINK X", entries[0].Key)
	assert.True(t, entries[0].SinglePhase)
}

func TestCache_ImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "learned.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	c, err := Open(ctx, store)
	require.NoError(t, err)

	good := model.NewLearnedEntry("GUARANA ANTARCTICA 2L", externalVerdict(true), model.OriginExternal, time.Now())
	bad := model.NewLearnedEntry("KOMBUCHA XYZ", externalVerdict(false), model.OriginExternal, time.Now())
	bad.Key = "kombucha xyz"

	written, err := c.Import(ctx, []model.LearnedEntry{good, bad})
	require.Error(t, err)
	assert.Equal(t, 0, written)
	assert.Equal(t, 0, c.Len())

	entries, err := store.LoadLearned(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	bad.Key = ""
	written, err = c.Import(ctx, []model.LearnedEntry{good, bad})
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, 2, c.Len())

	_, ok := c.Lookup("kombucha xyz")
	assert.True(t, ok)
}

func TestCache_ImportKeepsManualEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := openTestCache(t, store)

	_, err := c.Override(ctx, "VINHO TINTO SECO", externalVerdict(false))
	require.NoError(t, err)

	written, err := c.Import(ctx, []model.LearnedEntry{
		model.NewLearnedEntry("VINHO TINTO SECO", externalVerdict(true), model.OriginExternal, time.Now()),
		model.NewLearnedEntry("AGUA TONICA", externalVerdict(true), model.OriginExternal, time.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 2, store.Len())

	got, ok := c.Entry("VINHO TINTO SECO")
	require.True(t, ok)
	assert.Equal(t, model.OriginManual, got.Origin)
	assert.False(t, got.SinglePhase)
}
