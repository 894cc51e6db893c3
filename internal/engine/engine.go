// Package engine implements the tiered classification resolver.
//
// A product is checked against the rule store by tax code, then the keyword
// matcher by description, then the learned cache, and only then the external
// classifier. The first definite answer wins. External verdicts are written back
// into the learned cache before they are returned.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/revfinder/internal/cache"
	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/keyword"
	"github.com/Veraticus/revfinder/internal/model"
	"github.com/Veraticus/revfinder/internal/rules"
	"github.com/Veraticus/revfinder/internal/service"
)

// DefaultExternalTimeout bounds one external classification.
const DefaultExternalTimeout = 30 * time.Second

// Config holds configuration options for the resolver.
type Config struct {
	ExternalTimeout time.Duration
	Concurrency     int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ExternalTimeout: DefaultExternalTimeout,
		Concurrency:     4,
	}
}

// Deps are the knowledge sources consulted by the resolver.
type Deps struct {
	Rules    *rules.Store
	Keywords *keyword.Matcher
	Cache    *cache.Cache
	// External is optional. Without it the resolver runs offline and unlearned products stay unresolved.
	External service.Classifier
}

// Resolver orchestrates the classification tiers.
type Resolver struct {
	cache      *cache.Cache
	external   service.Classifier
	strategies []Strategy
	hints      []string
	config     Config
}

// New creates a resolver. Rules and Cache are required.
func New(cfg Config, deps Deps) (*Resolver, error) {
	if deps.Rules == nil {
		return nil, fmt.Errorf("%w: rule store is required", common.ErrMissingConfig)
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("%w: learned cache is required", common.ErrMissingConfig)
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = DefaultExternalTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	strategies := []Strategy{RuleStrategy{Store: deps.Rules}}
	hints := deps.Rules.Categories()
	if deps.Keywords != nil {
		strategies = append(strategies, KeywordStrategy{Matcher: deps.Keywords})
		hints = deps.Keywords.Categories()
	}

	return &Resolver{
		cache:      deps.Cache,
		external:   deps.External,
		strategies: strategies,
		hints:      hints,
		config:     cfg,
	}, nil
}

// Offline reports whether no external classifier is configured.
func (r *Resolver) Offline() bool {
	return r.external == nil
}

// Resolve runs the tier cascade for one record. Classifier failures produce an
// UNRESOLVED resolution, not an error. A malformed record is SKIPPED and its
// validation error is returned alongside the resolution.
func (r *Resolver) Resolve(ctx context.Context, rec model.ProductRecord) (Resolution, error) {
	res := Resolution{Record: rec, State: model.StateNotStarted}

	if err := rec.Validate(); err != nil {
		res.skip(err)
		return res, err
	}

	for _, s := range r.strategies {
		result := s.Evaluate(rec)
		res.advance(model.CheckedState(s.Source()))
		if v, ok := result.Verdict(); ok {
			res.resolve(v)
			return res, nil
		}
	}

	r.resolveLearned(ctx, &res)
	return res, nil
}

func (r *Resolver) resolveLearned(ctx context.Context, res *Resolution) {
	rec := res.Record

	var classify cache.ClassifyFunc
	if r.external != nil {
		classify = func(ctx context.Context) (model.Verdict, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.config.ExternalTimeout)
			defer cancel()
			return r.external.Classify(callCtx, model.ClassifyRequest{
				Description: rec.Description,
				Code:        rec.Code,
				TotalValue:  rec.TotalValue,
				Hints:       r.hints,
			})
		}
	}

	out, err := r.cache.Resolve(ctx, rec.Description, classify)
	res.advance(model.StateCacheChecked)
	if out.Called {
		res.advance(model.StateExternalCalled)
		res.External = true
	}

	if err != nil {
		res.unresolve(unresolvedReason(err))
		slog.Debug("Product unresolved",
			"description", rec.Description,
			"error", err)
		return
	}

	if out.WriteErr != nil {
		res.CacheWarning = out.WriteErr
		slog.Warn("Learned verdict not persisted; it will be classified again next run",
			"description", rec.Description,
			"error", out.WriteErr)
	}
	res.resolve(out.Verdict)
}

func unresolvedReason(err error) string {
	switch {
	case errors.Is(err, cache.ErrOffline):
		return "could not classify: not learned yet and no external classifier configured"
	case errors.Is(err, context.DeadlineExceeded):
		return "could not classify: external classifier timed out"
	case errors.Is(err, context.Canceled):
		return "could not classify: canceled"
	default:
		return fmt.Sprintf("could not classify: %v", err)
	}
}
