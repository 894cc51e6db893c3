// Package cache implements the learned cache: verdicts from the external classifier,
// keyed by normalized description and reused on every later resolution.
//
// The cache owns the write-back contract. Resolve serializes work per key, so two
// concurrent resolutions of the same unseen description produce exactly one external
// call; the second caller waits and is then served from the cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/service"
)

var (
	// ErrIndefiniteVerdict is returned when asked to learn a verdict that does not answer the question.
	ErrIndefiniteVerdict = errors.New("refusing to learn an indefinite verdict")
	// ErrPreviouslyFailed is returned for descriptions whose external classification already failed in this process.
	ErrPreviouslyFailed = errors.New("external classification already failed for this description")
	// ErrOffline is returned by Resolve on a miss when no classifier is available.
	ErrOffline = errors.New("not learned and no external classifier configured")
)

// ClassifyFunc performs the external classification for one description.
type ClassifyFunc func(ctx context.Context) (model.Verdict, error)

// Outcome is the result of Resolve.
type Outcome struct {
	// WriteErr is set when the verdict could not be persisted. The verdict is still valid.
	WriteErr error
	Verdict  model.Verdict
	// Called reports whether the external classifier ran during this call.
	Called bool
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries        int
	SinglePhase    int
	NotSinglePhase int
	Manual         int
	Hits           int
	SavedCalls     int64
}

// Cache is the in-memory view of a LearnedStore. It is safe for concurrent use.
type Cache struct {
	store    service.LearnedStore
	entries  map[string]model.LearnedEntry
	failures map[string]error
	locks    *keyedMutex
	now      func() time.Time
	mu       sync.RWMutex
	failMu   sync.Mutex
}

// Open loads every entry of store. A load failure is a configuration error.
func Open(ctx context.Context, store service.LearnedStore) (*Cache, error) {
	entries, err := store.LoadLearned(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading learned cache: %w", common.ErrInvalidConfig, err)
	}

	c := &Cache{
		store:    store,
		entries:  make(map[string]model.LearnedEntry, len(entries)),
		failures: make(map[string]error),
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
	for _, e := range entries {
		c.entries[e.Key] = e
	}

	slog.Debug("Learned cache loaded", "entries", len(entries))
	return c, nil
}

// Lookup returns the learned verdict for a description. The source is always CACHE.
func (c *Cache) Lookup(description string) (model.Verdict, bool) {
	e, ok := c.Entry(description)
	if !ok {
		return model.Verdict{}, false
	}
	return e.Verdict(), true
}

// Entry returns the stored entry for a description.
func (c *Cache) Entry(description string) (model.LearnedEntry, bool) {
	key := model.NormalizeDescription(description)
	if key == "" {
		return model.LearnedEntry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Record learns an external verdict. Recording the same verdict twice is a no-op,
// a different external verdict replaces the old one, and manual entries are never replaced.
// The in-memory entry is kept even when persisting fails; the error is returned for reporting.
func (c *Cache) Record(ctx context.Context, description string, v model.Verdict) error {
	key := model.NormalizeDescription(description)
	if key == "" {
		return fmt.Errorf("%w: empty description", common.ErrMalformedRecord)
	}
	unlock := c.locks.Lock(key)
	defer unlock()
	return c.record(ctx, key, description, v)
}

func (c *Cache) record(ctx context.Context, key, description string, v model.Verdict) error {
	if !v.IsDefinite() {
		return ErrIndefiniteVerdict
	}

	entry := model.NewLearnedEntry(description, v, model.OriginExternal, c.now())

	c.mu.Lock()
	existing, ok := c.entries[key]
	if ok && existing.Origin == model.OriginManual {
		c.mu.Unlock()
		slog.Debug("Keeping manual learned entry", "key", key)
		return nil
	}
	if ok && existing.SameVerdict(entry) {
		c.mu.Unlock()
		return nil
	}
	if ok {
		entry.Hits = existing.Hits
	}
	c.entries[key] = entry
	c.mu.Unlock()

	if err := c.store.SaveLearned(ctx, &entry); err != nil {
		slog.Warn("Failed to persist learned entry", "key", key, "error", err)
		return fmt.Errorf("persisting learned entry %q: %w", key, err)
	}
	return nil
}

// Override writes a manual entry. Manual entries win over any later external verdict.
func (c *Cache) Override(ctx context.Context, description string, v model.Verdict) (model.LearnedEntry, error) {
	key := model.NormalizeDescription(description)
	if key == "" {
		return model.LearnedEntry{}, fmt.Errorf("%w: empty description", common.ErrMalformedRecord)
	}
	if !v.IsDefinite() {
		return model.LearnedEntry{}, ErrIndefiniteVerdict
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	entry := model.NewLearnedEntry(description, v, model.OriginManual, c.now())

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		entry.Hits = existing.Hits
	}
	c.mu.Unlock()

	if err := c.store.SaveLearned(ctx, &entry); err != nil {
		return model.LearnedEntry{}, fmt.Errorf("persisting manual entry %q: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	c.clearFailure(key)

	return entry, nil
}

// Import stores entries loaded from an export in one store transaction: either every entry is
// written or none is. Existing manual entries are only replaced by manual entries.
// It returns how many entries were written.
func (c *Cache) Import(ctx context.Context, entries []model.LearnedEntry) (int, error) {
	pending := make([]model.LearnedEntry, 0, len(entries))
	keys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Key == "" {
			e.Key = model.NormalizeDescription(e.Description)
		}
		if e.Key == "" {
			return 0, fmt.Errorf("%w: learned entry without description", common.ErrMalformedRecord)
		}
		if e.Origin == "" {
			e.Origin = model.OriginExternal
		}
		if e.LearnedAt.IsZero() {
			e.LearnedAt = c.now()
		}
		pending = append(pending, e)
		keys[e.Key] = struct{}{}
	}

	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)
	for _, k := range ordered {
		unlock := c.locks.Lock(k)
		defer unlock()
	}

	batch := pending[:0]
	c.mu.RLock()
	for _, e := range pending {
		if existing, ok := c.entries[e.Key]; ok && existing.Origin == model.OriginManual && e.Origin != model.OriginManual {
			continue
		}
		batch = append(batch, e)
	}
	c.mu.RUnlock()
	if len(batch) == 0 {
		return 0, nil
	}

	if err := c.store.ImportLearned(ctx, batch); err != nil {
		return 0, fmt.Errorf("importing learned entries: %w", err)
	}

	c.mu.Lock()
	for _, e := range batch {
		c.entries[e.Key] = e
	}
	c.mu.Unlock()
	for _, k := range ordered {
		c.clearFailure(k)
	}
	return len(batch), nil
}

// Forget deletes the entry for a description. This is the only deletion path.
func (c *Cache) Forget(ctx context.Context, description string) error {
	key := model.NormalizeDescription(description)
	if key == "" {
		return fmt.Errorf("%w: empty description", common.ErrMalformedRecord)
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	if err := c.store.DeleteLearned(ctx, key); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.clearFailure(key)
	return nil
}

// Resolve returns the learned verdict for description or, on a miss, calls classify once and learns its answer.
//
// A failed classification is remembered for the life of the process and never written to the store,
// so later resolutions of the same description fail fast with ErrPreviouslyFailed.
func (c *Cache) Resolve(ctx context.Context, description string, classify ClassifyFunc) (Outcome, error) {
	key := model.NormalizeDescription(description)
	if key == "" {
		return Outcome{}, fmt.Errorf("%w: empty description", common.ErrMalformedRecord)
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	c.mu.RLock()
	entry, hit := c.entries[key]
	c.mu.RUnlock()
	if hit {
		c.recordHit(ctx, key)
		return Outcome{Verdict: entry.Verdict()}, nil
	}

	if err := c.failure(key); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrPreviouslyFailed, err)
	}
	if classify == nil {
		return Outcome{}, ErrOffline
	}

	v, err := classify(ctx)
	if err == nil && !v.IsDefinite() {
		err = fmt.Errorf("%w: classifier returned an indefinite verdict", common.ErrMalformedResponse)
	}
	if err != nil {
		// A cancelled caller says nothing about the description itself.
		if ctx.Err() == nil {
			c.rememberFailure(key, err)
		}
		return Outcome{Called: true}, err
	}

	// Persist even when the caller was cancelled after the answer arrived.
	v.Source = model.SourceExternal
	writeErr := c.record(context.WithoutCancel(ctx), key, description, v)
	return Outcome{Verdict: v, Called: true, WriteErr: writeErr}, nil
}

func (c *Cache) recordHit(ctx context.Context, key string) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Hits++
		c.entries[key] = e
	}
	c.mu.Unlock()

	if err := c.store.RecordHit(ctx, key); err != nil {
		slog.Warn("Failed to record learned cache hit", "key", key, "error", err)
	}
}

func (c *Cache) failure(key string) error {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	return c.failures[key]
}

func (c *Cache) rememberFailure(key string, err error) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	c.failures[key] = err
}

func (c *Cache) clearFailure(key string) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	delete(c.failures, key)
}

// Entries returns a snapshot of all entries ordered by key.
func (c *Cache) Entries() []model.LearnedEntry {
	c.mu.RLock()
	out := make([]model.LearnedEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats summarizes the cache and reads the durable saved calls counter.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	c.mu.RLock()
	for _, e := range c.entries {
		s.Entries++
		s.Hits += e.Hits
		if e.SinglePhase {
			s.SinglePhase++
		} else {
			s.NotSinglePhase++
		}
		if e.Origin == model.OriginManual {
			s.Manual++
		}
	}
	c.mu.RUnlock()

	saved, err := c.store.SavedCalls(ctx)
	if err != nil {
		return s, fmt.Errorf("reading saved calls: %w", err)
	}
	s.SavedCalls = saved
	return s, nil
}
