package commitment

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/remindd/internal/config"
)

// TestNewAnalyzer tests analyzer selection from configuration.
func TestNewAnalyzer(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.AnalyzerConfig
		wantErr  bool
		wantType string
	}{
		{
			name:     "empty provider defaults to keyword",
			cfg:      config.AnalyzerConfig{},
			wantType: "keyword",
		},
		{
			name:     "keyword provider",
			cfg:      config.AnalyzerConfig{Provider: "keyword"},
			wantType: "keyword",
		},
		{
			name:     "disabled provider",
			cfg:      config.AnalyzerConfig{Provider: "disabled"},
			wantType: "disabled",
		},
		{
			name: "anthropic provider wraps in chain",
			cfg: config.AnalyzerConfig{
				Provider: "anthropic",
				Providers: map[string]config.ProviderConfig{
					"anthropic": {APIKey: config.Secret("sk-ant-test")},
				},
			},
			wantType: "chain",
		},
		{
			name: "openai provider wraps in chain",
			cfg: config.AnalyzerConfig{
				Provider: "openai",
				Providers: map[string]config.ProviderConfig{
					"openai": {APIKey: config.Secret("sk-test")},
				},
			},
			wantType: "chain",
		},
		{
			name:    "anthropic without provider config",
			cfg:     config.AnalyzerConfig{Provider: "anthropic"},
			wantErr: true,
		},
		{
			name: "anthropic without API key",
			cfg: config.AnalyzerConfig{
				Provider: "anthropic",
				Providers: map[string]config.ProviderConfig{
					"anthropic": {Model: "claude-3-5-sonnet-20241022"},
				},
			},
			wantErr: true,
		},
		{
			name:     "unknown provider falls back to keyword",
			cfg:      config.AnalyzerConfig{Provider: "markov-chains"},
			wantType: "keyword",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer, err := NewAnalyzer(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAnalyzer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			switch tt.wantType {
			case "keyword":
				if _, ok := analyzer.(*KeywordAnalyzer); !ok {
					t.Errorf("analyzer type = %T, want *KeywordAnalyzer", analyzer)
				}
			case "disabled":
				if _, ok := analyzer.(*DisabledAnalyzer); !ok {
					t.Errorf("analyzer type = %T, want *DisabledAnalyzer", analyzer)
				}
			case "chain":
				if _, ok := analyzer.(*Chain); !ok {
					t.Errorf("analyzer type = %T, want *Chain", analyzer)
				}
			}
		})
	}
}

// TestDisabledAnalyzer tests the no-op analyzer.
func TestDisabledAnalyzer(t *testing.T) {
	analyzer := &DisabledAnalyzer{}

	result, err := analyzer.Analyze(context.Background(), "I will go to the gym on 2025-08-15", analyzerReference)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.HasCommitment {
		t.Error("HasCommitment = true, want false")
	}
	if analyzer.Available() {
		t.Error("Available() = true, want false")
	}
}
