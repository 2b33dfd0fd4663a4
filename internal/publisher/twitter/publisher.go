// Package twitter publishes posts through the X (Twitter) v2 API.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkurov/postqueue/internal/publisher"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.twitter.com"
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 1.0 // requests per second
)

// Config holds twitter publisher configuration.
type Config struct {
	BearerToken string
	BaseURL     string        // override for tests
	Timeout     time.Duration // request timeout
	RateLimit   float64       // client-side pacing of the external API
}

// Publisher implements publisher.Publisher against the v2 tweets endpoint.
type Publisher struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewPublisher creates a new twitter publisher.
func NewPublisher(config Config) (*Publisher, error) {
	if config.BearerToken == "" {
		return nil, errors.New("twitter publisher: bearer token is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}

	slog.Info("twitter publisher configured",
		"base_url", config.BaseURL,
		"rate_limit", config.RateLimit,
	)

	return &Publisher{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Publish creates a tweet and returns its identifier.
func (p *Publisher) Publish(ctx context.Context, content string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &publisher.Error{Message: fmt.Sprintf("rate limiter: %v", err), Retryable: true}
	}

	body, err := json.Marshal(tweetRequest{Text: content})
	if err != nil {
		return "", fmt.Errorf("marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.BearerToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &publisher.Error{Message: fmt.Sprintf("send request: %v", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	return p.handleResponse(resp)
}

func (p *Publisher) handleResponse(resp *http.Response) (string, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var tweet tweetResponse
		if err := json.Unmarshal(raw, &tweet); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		slog.Debug("tweet published", "tweet_id", tweet.Data.ID)
		return tweet.Data.ID, nil

	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity:
		return "", &publisher.Error{
			Code:    resp.StatusCode,
			Message: apiErrorDetail(raw, "rejected content"),
		}

	case http.StatusUnauthorized:
		return "", &publisher.Error{
			Code:    resp.StatusCode,
			Message: "invalid or expired credentials",
		}

	case http.StatusTooManyRequests:
		return "", &publisher.Error{
			Code:      resp.StatusCode,
			Message:   "rate limited",
			Retryable: true,
		}

	default:
		if resp.StatusCode >= 500 {
			return "", &publisher.Error{
				Code:      resp.StatusCode,
				Message:   fmt.Sprintf("server error: %s", string(raw)),
				Retryable: true,
			}
		}
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
}

// apiErrorDetail extracts the API's error detail, falling back when the body
// is not the documented error shape.
func apiErrorDetail(raw []byte, fallback string) string {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	if len(raw) > 0 {
		return string(raw)
	}
	return fallback
}
