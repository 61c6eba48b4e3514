package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/c360studio/practiceflow/entity"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 1 * 1024 * 1024 // 1MB

// DefaultTimeout bounds a single classification call. Instancing must never
// block on the classifier.
const DefaultTimeout = 10 * time.Second

// RetryConfig holds retry configuration for classification requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per call.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults. Classification is a
// best-effort call, so the budget is small.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        2 * time.Second,
	}
}

// LLMClassifier calls an OpenAI-compatible chat completions endpoint to
// categorize tasks.
type LLMClassifier struct {
	endpoint    string
	model       string
	timeout     time.Duration
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

var _ Classifier = (*LLMClassifier)(nil)

// Option configures an LLMClassifier.
type Option func(*LLMClassifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *LLMClassifier) {
		l.httpClient = c
	}
}

// WithTimeout bounds each classification call.
func WithTimeout(d time.Duration) Option {
	return func(l *LLMClassifier) {
		l.timeout = d
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(l *LLMClassifier) {
		l.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *LLMClassifier) {
		l.logger = logger
	}
}

// NewLLMClassifier creates a classifier against the given OpenAI-compatible
// endpoint and model.
func NewLLMClassifier(endpoint, model string, opts ...Option) *LLMClassifier {
	l := &LLMClassifier{
		endpoint:    buildURL(endpoint),
		model:       model,
		timeout:     DefaultTimeout,
		httpClient:  &http.Client{},
		retryConfig: DefaultRetryConfig(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func buildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

const systemPrompt = `You are a task categorizer for an accounting practice-management system.
Given a task title and description, answer with exactly one of these categories and nothing else:
client_communication, document_collection, preparation, review, filing, billing, administrative.`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify calls the LLM endpoint with a bounded timeout and returns the
// normalized category. Timeouts surface as entity.ErrClassificationTimeout;
// callers degrade to "uncategorized".
func (l *LLMClassifier) Classify(ctx context.Context, title, description string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Title: %s\nDescription: %s", title, description)
	body, err := json.Marshal(chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0, // deterministic
		MaxTokens:   16,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	backoff := l.retryConfig.BackoffBase
	for attempt := 1; attempt <= l.retryConfig.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", classifyErr(ctx.Err())
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * l.retryConfig.BackoffMultiplier)
			if backoff > l.retryConfig.MaxBackoff {
				backoff = l.retryConfig.MaxBackoff
			}
		}

		category, err := l.call(ctx, body)
		if err == nil {
			return category, nil
		}
		lastErr = err
		if errors.Is(err, entity.ErrClassificationTimeout) {
			return "", err
		}
		l.logger.Debug("classification attempt failed",
			"attempt", attempt, "error", err)
	}
	return "", lastErr
}

func (l *LLMClassifier) call(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", classifyErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", classifyErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier endpoint returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response from classifier")
	}

	return Normalize(parsed.Choices[0].Message.Content), nil
}

// classifyErr maps deadline errors onto the engine's timeout sentinel.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", entity.ErrClassificationTimeout, err)
	}
	// http.Client wraps context errors in url.Error; string check covers it.
	if err != nil && strings.Contains(err.Error(), "context deadline exceeded") {
		return fmt.Errorf("%w: %v", entity.ErrClassificationTimeout, err)
	}
	return err
}
