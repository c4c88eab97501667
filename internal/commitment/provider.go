package commitment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/logging"
)

// NewAnalyzer creates a commitment analyzer based on configuration.
//
// Model-backed providers are always wrapped in a Chain over the keyword
// analyzer, so a misbehaving API never blocks message processing.
func NewAnalyzer(cfg config.AnalyzerConfig, logger *logging.Logger) (Analyzer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	switch cfg.Provider {
	case "", "keyword":
		return NewKeywordAnalyzer(), nil
	case "disabled":
		return &DisabledAnalyzer{}, nil
	case "anthropic", "openai":
		providerCfg, ok := cfg.Providers[cfg.Provider]
		if !ok {
			return nil, fmt.Errorf("provider %q not configured", cfg.Provider)
		}
		var primary Analyzer
		var err error
		if cfg.Provider == "anthropic" {
			primary, err = newAnthropicAnalyzer(providerCfg)
		} else {
			primary, err = newOpenAIAnalyzer(providerCfg)
		}
		if err != nil {
			return nil, err
		}
		return NewChain(primary, NewKeywordAnalyzer(), logger), nil
	default:
		logger.Warn(context.Background(), "unknown analyzer provider, using keyword analyzer",
			zap.String("provider", cfg.Provider))
		return NewKeywordAnalyzer(), nil
	}
}

// DisabledAnalyzer is a no-op implementation of Analyzer.
type DisabledAnalyzer struct{}

// Analyze reports no commitment for every message.
func (d *DisabledAnalyzer) Analyze(ctx context.Context, text string, reference time.Time) (Result, error) {
	return None(), nil
}

// Available returns false for DisabledAnalyzer.
func (d *DisabledAnalyzer) Available() bool {
	return false
}

var _ Analyzer = (*DisabledAnalyzer)(nil)
