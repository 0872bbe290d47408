// Package ai talks to the Gemini generateContent API to author challenges and
// grade free-form answers.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/sql-academy-api/pkg/config"
	"github.com/noah-isme/sql-academy-api/pkg/retry"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("gemini api key not configured")
	// ErrEmptyResponse is returned when the model answered without text.
	ErrEmptyResponse = errors.New("gemini returned no content")
	// ErrMalformedOutput wraps model output that is not the requested JSON document.
	ErrMalformedOutput = errors.New("gemini returned malformed output")
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini responded %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is a quota or server failure.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable classifies errors for retry.Do. Transport errors are retried;
// parse failures and 4xx responses other than 429 are not.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMalformedOutput) || errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// Client is a thin Gemini client with retry on quota errors.
type Client struct {
	http   *resty.Client
	apiKey string
	model  string
	policy retry.Policy
	logger *zap.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.GeminiConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	c := &Client{
		http:   httpClient,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		logger: logger,
	}
	c.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		IsRetryable: IsRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("gemini request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}
	return c
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	var b strings.Builder
	for _, cand := range r.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

// generateJSON sends prompt and decodes the model's JSON answer into out.
func (c *Client) generateJSON(ctx context.Context, prompt string, temperature float64, out interface{}) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json", Temperature: temperature},
	}

	text, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		var result generateResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("key", c.apiKey).
			SetBody(body).
			SetResult(&result).
			Post(fmt.Sprintf("/models/%s:generateContent", c.model))
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
		}
		text := result.text()
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// stripFences removes a ```json fence some model versions still emit.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
