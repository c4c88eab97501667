package commitment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/logging"
)

// Chain runs a primary analyzer and falls back to a deterministic one.
//
// Any primary failure (network, auth, malformed reply) is absorbed: the
// caller sees only the fallback's result. Model outages therefore degrade
// recall, never availability.
type Chain struct {
	primary  Analyzer
	fallback Analyzer
	logger   *logging.Logger
}

// NewChain creates a chain over the given analyzers. The fallback must
// not be nil.
func NewChain(primary, fallback Analyzer, logger *logging.Logger) *Chain {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chain{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Analyze tries the primary analyzer first and falls back on any error.
func (c *Chain) Analyze(ctx context.Context, text string, reference time.Time) (Result, error) {
	if c.primary != nil && c.primary.Available() {
		result, err := c.primary.Analyze(ctx, text, reference)
		if err == nil {
			return result, nil
		}
		c.logger.Warn(ctx, "primary analyzer failed, falling back",
			zap.Error(err))
	}
	return c.fallback.Analyze(ctx, text, reference)
}

// Available returns true: the deterministic fallback is always ready.
func (c *Chain) Available() bool {
	return true
}

var _ Analyzer = (*Chain)(nil)
