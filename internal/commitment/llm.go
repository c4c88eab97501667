package commitment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/dateparse"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 1024
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0 // ~0.83 requests per second
	defaultBurst     = 5           // Allow bursts of up to 5 requests
)

// defaultVerdictConfidence replaces out-of-range confidence values in
// free-text verdicts.
const defaultVerdictConfidence = 0.8

// analyzePrompt is the system prompt for commitment analysis.
const analyzePrompt = `You are an expert at detecting personal commitments in chat messages.

Decide whether the message contains BOTH an actionable commitment AND a specific future calendar date. Vague temporal references ("soon", "next week", "eventually") must be rejected: only a date that resolves to a single calendar day counts.

You may call the extract_date tool to verify a date you found; only dates the tool accepts are valid.

Respond with a JSON object containing:
- "hasCommitment": true or false
- "dateIso": the committed date as YYYY-MM-DD (required when hasCommitment is true)
- "confidence": your confidence in the verdict (0.0 to 1.0)

Respond ONLY with the JSON object, no additional text.`

// anthropicAnalyzer implements Analyzer using Anthropic's Claude API.
type anthropicAnalyzer struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newAnthropicAnalyzer creates a new Anthropic-backed analyzer.
func newAnthropicAnalyzer(cfg config.ProviderConfig) (*anthropicAnalyzer, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("anthropic API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	timeout := defaultTimeout
	if cfg.Timeout.Duration() > 0 {
		timeout = cfg.Timeout.Duration()
	}

	return &anthropicAnalyzer{
		model:     model,
		apiKey:    cfg.APIKey.Value(),
		baseURL:   baseURL,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

// anthropicRequest represents the request format for the Claude API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

// anthropicMessage represents a message in the Claude conversation.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicTool describes a callable tool in a Claude request.
type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// anthropicResponse represents the response from the Claude API.
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicContentBlock is one block of a Claude response: either text or
// a tool invocation.
type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// anthropicError represents an error response from the Claude API.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze judges the message with Claude, constrained by the date tool.
func (a *anthropicAnalyzer) Analyze(ctx context.Context, text string, reference time.Time) (Result, error) {
	// Wait for rate limiter
	if err := a.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter error: %w", err)
	}

	trimmed := strings.TrimSpace(text)
	currentDateISO := reference.UTC().Format("2006-01-02")

	// Scrub secrets from content before sending to API
	userContent := fmt.Sprintf("Current date: %s\n\nMessage:\n%s", currentDateISO, scrubSecrets(trimmed))

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: 0.3, // Low temperature for consistent judgments
		System:      analyzePrompt,
		Tools: []anthropicTool{
			{
				Name:        dateparse.ToolName,
				Description: dateparse.ToolDescription,
				InputSchema: dateparse.ToolInputSchema(),
			},
		},
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: userContent,
			},
		},
	}

	// Make request with retries
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		result, err := a.doRequest(ctx, req, trimmed, reference)
		if err == nil {
			return result, nil
		}

		lastErr = err
		// Check if error is retryable
		if !isRetryableError(err) {
			return Result{}, err
		}
	}

	return Result{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the actual HTTP request to the Claude API.
func (a *anthropicAnalyzer) doRequest(ctx context.Context, req anthropicRequest, original string, reference time.Time) (Result, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}

	// Handle server errors (retryable)
	if resp.StatusCode >= 500 {
		return Result{}, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil {
			return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var claudeResp anthropicResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(claudeResp.Content) == 0 {
		return Result{}, fmt.Errorf("empty response from API")
	}

	var freeText string
	var toolArgs json.RawMessage
	for _, block := range claudeResp.Content {
		switch block.Type {
		case "text":
			if freeText == "" {
				freeText = block.Text
			}
		case "tool_use":
			if toolArgs == nil && block.Name == dateparse.ToolName {
				toolArgs = block.Input
			}
		}
	}

	return deriveResult(freeText, toolArgs, original, reference)
}

// Available returns true if the analyzer is configured.
func (a *anthropicAnalyzer) Available() bool {
	return a.apiKey != ""
}

// openAIAnalyzer implements Analyzer using OpenAI's API.
type openAIAnalyzer struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newOpenAIAnalyzer creates a new OpenAI-backed analyzer.
func newOpenAIAnalyzer(cfg config.ProviderConfig) (*openAIAnalyzer, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	timeout := defaultTimeout
	if cfg.Timeout.Duration() > 0 {
		timeout = cfg.Timeout.Duration()
	}

	return &openAIAnalyzer{
		model:     model,
		apiKey:    cfg.APIKey.Value(),
		baseURL:   baseURL,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

// openAIRequest represents the request format for the OpenAI Chat API.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

// openAIMessage represents a message in the OpenAI conversation.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAITool describes a callable function in an OpenAI request.
type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

// openAIFunction is the function payload of an OpenAI tool.
type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// openAIResponse represents the response from the OpenAI Chat API.
type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIToolCall is a tool invocation in an OpenAI response. Arguments
// arrive as a JSON-encoded string, not an object.
type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// openAIError represents an error response from the OpenAI API.
type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Analyze judges the message with GPT, constrained by the date tool.
func (o *openAIAnalyzer) Analyze(ctx context.Context, text string, reference time.Time) (Result, error) {
	// Wait for rate limiter
	if err := o.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter error: %w", err)
	}

	trimmed := strings.TrimSpace(text)
	currentDateISO := reference.UTC().Format("2006-01-02")

	// Scrub secrets from content before sending to API
	userContent := fmt.Sprintf("Current date: %s\n\nMessage:\n%s", currentDateISO, scrubSecrets(trimmed))

	req := openAIRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: 0.3, // Low temperature for consistent judgments
		Tools: []openAITool{
			{
				Type: "function",
				Function: openAIFunction{
					Name:        dateparse.ToolName,
					Description: dateparse.ToolDescription,
					Parameters:  dateparse.ToolInputSchema(),
				},
			},
		},
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: analyzePrompt,
			},
			{
				Role:    "user",
				Content: userContent,
			},
		},
	}

	// Make request with retries
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		result, err := o.doRequest(ctx, req, trimmed, reference)
		if err == nil {
			return result, nil
		}

		lastErr = err
		// Check if error is retryable
		if !isRetryableError(err) {
			return Result{}, err
		}
	}

	return Result{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the actual HTTP request to the OpenAI API.
func (o *openAIAnalyzer) doRequest(ctx context.Context, req openAIRequest, original string, reference time.Time) (Result, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}

	// Handle server errors (retryable)
	if resp.StatusCode >= 500 {
		return Result{}, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIError
		if err := json.Unmarshal(body, &errResp); err == nil {
			return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openAIResp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty response from API")
	}

	msg := openAIResp.Choices[0].Message

	var toolArgs json.RawMessage
	for _, call := range msg.ToolCalls {
		if call.Function.Name == dateparse.ToolName {
			toolArgs = json.RawMessage(call.Function.Arguments)
			break
		}
	}

	return deriveResult(msg.Content, toolArgs, original, reference)
}

// Available returns true if the analyzer is configured.
func (o *openAIAnalyzer) Available() bool {
	return o.apiKey != ""
}

// verdictResponse is the expected free-text JSON verdict from models.
type verdictResponse struct {
	HasCommitment bool    `json:"hasCommitment"`
	DateISO       string  `json:"dateIso,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// deriveResult converts a model reply into an analysis result.
//
// Two paths are honored. When the model invoked the extraction tool, the
// tool runs server-side and its surviving date wins. Otherwise the
// free-text verdict is parsed and its date is revalidated against the
// reference day with the same strictness the extractor applies. A verdict
// the analyzer cannot interpret, or one carrying a date that does not
// survive validation, is an error so callers fall back.
func deriveResult(freeText string, toolArgs json.RawMessage, original string, reference time.Time) (Result, error) {
	if toolArgs != nil {
		extracted, err := dateparse.ExecuteTool(toolArgs)
		if err != nil {
			return Result{}, fmt.Errorf("model tool call rejected: %w", err)
		}
		if extracted.HasDate {
			return Result{
				HasCommitment: true,
				Commitment: &Commitment{
					Text:        commitmentText(original),
					DateISO:     extracted.DateISO,
					Confidence:  extracted.Confidence,
					MatchedSpan: extracted.MatchedSpan,
				},
			}, nil
		}
		// Tool found nothing; fall through to the free-text verdict.
	}

	verdict, err := parseVerdict(freeText)
	if err != nil {
		return Result{}, err
	}

	if !verdict.HasCommitment {
		return None(), nil
	}

	if err := validateVerdictDate(verdict.DateISO, reference); err != nil {
		return Result{}, err
	}

	confidence := verdict.Confidence
	if confidence <= 0 || confidence > 1.0 {
		confidence = defaultVerdictConfidence
	}

	return Result{
		HasCommitment: true,
		Commitment: &Commitment{
			Text:       commitmentText(original),
			DateISO:    verdict.DateISO,
			Confidence: confidence,
		},
	}, nil
}

// parseVerdict parses the model's free-text answer into a verdict.
func parseVerdict(content string) (verdictResponse, error) {
	// Clean up the response - sometimes models wrap JSON in markdown code blocks
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if content == "" {
		return verdictResponse{}, fmt.Errorf("model returned no verdict")
	}

	var verdict verdictResponse
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return verdictResponse{}, fmt.Errorf("unparseable model verdict: %w", err)
	}
	return verdict, nil
}

// validateVerdictDate enforces the extractor's date rules on a verdict:
// strict YYYY-MM-DD form and strictly later than the reference UTC day.
func validateVerdictDate(dateISO string, reference time.Time) error {
	parsed, err := time.Parse("2006-01-02", dateISO)
	if err != nil {
		return fmt.Errorf("verdict date %q is not a valid calendar date: %w", dateISO, err)
	}

	ref := reference.UTC()
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	if !parsed.After(refDay) {
		return fmt.Errorf("verdict date %q is not in the future", dateISO)
	}
	return nil
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	for e := err; e != nil; {
		if _, ok := e.(*retryableError); ok {
			return true
		}
		if unwrapper, ok := e.(interface{ Unwrap() error }); ok {
			e = unwrapper.Unwrap()
		} else {
			break
		}
	}
	return false
}

// scrubSecrets removes common secret patterns from content before sending to API.
// This prevents accidental leakage of API keys, tokens, passwords, etc.
func scrubSecrets(content string) string {
	result := content
	for _, p := range secretPatterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// secretPatterns are scrubbed in order; more specific patterns first.
var secretPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	// Environment variables with sensitive data
	{
		regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|GITLAB_TOKEN|AWS_SECRET_ACCESS_KEY)\s*=\s*([^\s]+)`),
		"$1=[REDACTED:ENV_SECRET]",
	},
	// OpenAI API keys
	{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		"[REDACTED:OPENAI_KEY]",
	},
	// Anthropic API keys
	{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
		"[REDACTED:ANTHROPIC_KEY]",
	},
	// Generic API keys in various formats
	{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`),
		"$1=[REDACTED:API_KEY]",
	},
	// Bearer tokens
	{
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`),
		"[REDACTED:BEARER_TOKEN]",
	},
	// Tokens
	{
		regexp.MustCompile(`(?i)(token|auth[_-]?token)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`),
		"$1=[REDACTED:TOKEN]",
	},
	// Passwords
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`),
		"$1=[REDACTED:PASSWORD]",
	},
	// Private keys
	{
		regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		"[REDACTED:PRIVATE_KEY]",
	},
}

// Ensure interfaces are implemented.
var _ Analyzer = (*anthropicAnalyzer)(nil)
var _ Analyzer = (*openAIAnalyzer)(nil)
