package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/model"
)

// Classifier implements service.Classifier on top of a provider Client.
type Classifier struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	calls       atomic.Int64
}

// NewClassifier creates a classifier for the provider named in cfg.
func NewClassifier(ctx context.Context, cfg Config, logger *slog.Logger) (*Classifier, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewClassifierWithClient(client, cfg.RateLimit, logger), nil
}

// NewClassifierWithClient wraps an existing client.
func NewClassifierWithClient(client Client, rateLimit int, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		client:      client,
		logger:      logger,
		rateLimiter: newRateLimiter(rateLimit),
	}
}

// Classify asks the provider for a single-phase verdict. Each call reaches the
// provider at most once; retry policy belongs to the caller.
func (c *Classifier) Classify(ctx context.Context, req model.ClassifyRequest) (model.Verdict, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return model.Verdict{}, fmt.Errorf("%w: %w", common.ErrClassifierUnavailable, err)
	}

	c.calls.Add(1)
	content, err := c.client.Complete(ctx, systemPrompt, buildPrompt(req))
	if err != nil {
		c.logger.Warn("external classifier request failed",
			"provider", c.client.Name(),
			"description", req.Description,
			"error", err)
		return model.Verdict{}, fmt.Errorf("%w: %s: %w", common.ErrClassifierUnavailable, c.client.Name(), err)
	}

	parsed, err := parseClassification(content)
	if err != nil {
		c.logger.Warn("unparseable classifier response",
			"provider", c.client.Name(),
			"description", req.Description,
			"response", truncate(content, 200))
		return model.Verdict{}, fmt.Errorf("%w: %s: %w", common.ErrClassificationFailed, c.client.Name(), err)
	}

	verdict := model.Verdict{
		SinglePhase:   model.TristateOf(parsed.singlePhase),
		SuggestedCode: parsed.code,
		Rationale:     parsed.reason,
		Source:        model.SourceExternal,
		Confidence:    model.ConfidenceMedium,
	}
	if verdict.Rationale == "" {
		verdict.Rationale = fmt.Sprintf("classified by %s", c.client.Name())
	}

	c.logger.Debug("product classified",
		"provider", c.client.Name(),
		"description", req.Description,
		"single_phase", verdict.SinglePhase,
		"code", verdict.SuggestedCode)

	return verdict, nil
}

// Provider returns the provider name.
func (c *Classifier) Provider() string {
	return c.client.Name()
}

// Calls returns how many requests reached the provider.
func (c *Classifier) Calls() int64 {
	return c.calls.Load()
}

// Close releases the provider client.
func (c *Classifier) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close %s client: %w", c.client.Name(), err)
	}
	return nil
}
