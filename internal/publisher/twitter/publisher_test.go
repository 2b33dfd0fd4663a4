package twitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkurov/postqueue/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_RequiresBearerToken(t *testing.T) {
	_, err := NewPublisher(Config{})
	assert.Error(t, err)
}

func TestNewPublisher_Defaults(t *testing.T) {
	p, err := NewPublisher(Config{BearerToken: "token"})

	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, p.config.BaseURL)
	assert.Equal(t, defaultTimeout, p.config.Timeout)
	assert.Equal(t, defaultRateLimit, p.config.RateLimit)
	assert.NotNil(t, p.httpClient)
}

func newTestPublisher(t *testing.T, baseURL string) *Publisher {
	t.Helper()
	p, err := NewPublisher(Config{
		BearerToken: "test-token",
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		RateLimit:   1000, // no pacing in tests
	})
	require.NoError(t, err)
	return p
}

func TestPublish_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req tweetRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "hello world", req.Text)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1234567890"}}`))
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)
	id, err := p.Publish(context.Background(), "hello world")

	require.NoError(t, err)
	assert.Equal(t, "1234567890", id)
}

func TestPublish_RejectedContentIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content."}`))
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)
	_, err := p.Publish(context.Background(), "dup")

	var pubErr *publisher.Error
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusForbidden, pubErr.Code)
	assert.Contains(t, pubErr.Message, "duplicate content")
	assert.False(t, pubErr.IsRetryable())
}

func TestPublish_InvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized"}`))
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)
	_, err := p.Publish(context.Background(), "text")

	var pubErr *publisher.Error
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusUnauthorized, pubErr.Code)
	assert.False(t, pubErr.IsRetryable())
}

func TestPublish_RateLimitedIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)
	_, err := p.Publish(context.Background(), "text")

	var pubErr *publisher.Error
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusTooManyRequests, pubErr.Code)
	assert.True(t, pubErr.IsRetryable())
}

func TestPublish_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)
	_, err := p.Publish(context.Background(), "text")

	var pubErr *publisher.Error
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusServiceUnavailable, pubErr.Code)
	assert.True(t, pubErr.IsRetryable())
}

func TestPublish_TransportErrorIsRetryable(t *testing.T) {
	// Point at a closed server to force a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	p := newTestPublisher(t, server.URL)
	_, err := p.Publish(context.Background(), "text")

	var pubErr *publisher.Error
	require.ErrorAs(t, err, &pubErr)
	assert.True(t, pubErr.IsRetryable())
}

func TestPublish_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Publish(ctx, "text")
	require.Error(t, err)

	var pubErr *publisher.Error
	require.ErrorAs(t, err, &pubErr)
	assert.True(t, pubErr.IsRetryable())
}

func TestApiErrorDetail_Fallbacks(t *testing.T) {
	assert.Equal(t, "detail text", apiErrorDetail([]byte(`{"detail":"detail text"}`), "fallback"))
	assert.Equal(t, "raw body", apiErrorDetail([]byte("raw body"), "fallback"))
	assert.Equal(t, "fallback", apiErrorDetail(nil, "fallback"))
}
