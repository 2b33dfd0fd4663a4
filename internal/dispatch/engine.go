// Package dispatch implements the scheduled dispatch engine: it selects due
// posts, claims each one atomically, publishes through the external adapter,
// and records the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mkurov/postqueue/internal/domain"
	"github.com/mkurov/postqueue/internal/publisher"
)

// maxErrorLength bounds the diagnostic stored alongside a failed post.
const maxErrorLength = 500

// outcomeWriteTimeout bounds the terminal-state write after a publish attempt.
const outcomeWriteTimeout = 10 * time.Second

// Store is the post store surface the engine depends on.
type Store interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Post, error)
	TryClaim(ctx context.Context, id, token string, now time.Time) (bool, error)
	MarkPosted(ctx context.Context, id, token, externalID string, postedAt time.Time) error
	MarkFailed(ctx context.Context, id, token, message string, failedAt time.Time) error
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Post, error)
	ReleaseStuck(ctx context.Context, id string, cutoff time.Time) (bool, error)
	FailStuck(ctx context.Context, id string, cutoff, failedAt time.Time) (bool, error)
}

// StalePolicy decides what happens to in_flight posts whose claim outlived the
// staleness threshold. The external call's outcome is unknown for these, so
// the conservative default only surfaces them.
type StalePolicy string

// Stale claim policies.
const (
	// StalePolicySurface logs and exports stuck claims but never resolves them.
	StalePolicySurface StalePolicy = "surface"
	// StalePolicyRequeue releases stuck claims back to pending, accepting the
	// risk of a duplicate publish.
	StalePolicyRequeue StalePolicy = "requeue"
	// StalePolicyFail resolves stuck claims to failed; they are never re-attempted.
	StalePolicyFail StalePolicy = "fail"
)

// IsValid checks if the policy is a known value.
func (p StalePolicy) IsValid() bool {
	return p == StalePolicySurface || p == StalePolicyRequeue || p == StalePolicyFail
}

// Config contains dispatch engine configuration.
type Config struct {
	BatchSize      int
	NumWorkers     int
	CycleTimeout   time.Duration
	PublishTimeout time.Duration
	ClaimStaleness time.Duration
	StalePolicy    StalePolicy
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:      100,
		NumWorkers:     4,
		CycleTimeout:   2 * time.Minute,
		PublishTimeout: 15 * time.Second,
		ClaimStaleness: 15 * time.Minute,
		StalePolicy:    StalePolicySurface,
	}
}

// Outcome is the per-post result of one cycle.
type Outcome string

// Outcomes.
const (
	OutcomePosted  Outcome = "posted"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ItemResult is the recorded outcome for one post.
type ItemResult struct {
	PostID     string  `json:"post_id"`
	Outcome    Outcome `json:"outcome"`
	ExternalID string  `json:"external_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Summary describes one dispatch cycle. Attempted counts won claims; Skipped
// counts claim contention, which is benign. Posts left pending because the
// cycle deadline fired or the claim write errored appear in no bucket.
type Summary struct {
	Candidates int          `json:"candidates"`
	Attempted  int          `json:"attempted"`
	Posted     int          `json:"posted"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Results    []ItemResult `json:"results"`
}

func (s *Summary) add(res ItemResult) {
	switch res.Outcome {
	case OutcomePosted:
		s.Attempted++
		s.Posted++
	case OutcomeFailed:
		s.Attempted++
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.Results = append(s.Results, res)
}

// Engine runs dispatch cycles.
type Engine struct {
	config    Config
	store     Store
	publisher publisher.Publisher

	now func() time.Time
}

// NewEngine creates a new dispatch engine.
func NewEngine(config Config, store Store, pub publisher.Publisher) *Engine {
	return &Engine{
		config:    config,
		store:     store,
		publisher: pub,
		now:       time.Now,
	}
}

// RunCycle processes all currently due posts once. Per-post failures are
// recorded in the summary; only a failure before any item-level work begins
// (the due-post selection) is returned as an error.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.CycleTimeout)
	defer cancel()

	e.resolveStale(ctx, now)

	due, err := e.store.ListDue(ctx, now, e.config.BatchSize)
	if err != nil {
		recordCycle("error")
		return nil, fmt.Errorf("select due posts: %w", err)
	}

	summary := &Summary{
		Candidates: len(due),
		Results:    make([]ItemResult, 0, len(due)),
	}

	if len(due) == 0 {
		recordCycle("ok")
		return summary, nil
	}

	slog.Debug("dispatching due posts", "count", len(due))

	workers := e.config.NumWorkers
	if workers > len(due) {
		workers = len(due)
	}

	jobs := make(chan *domain.Post)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for post := range jobs {
				res := e.processItem(ctx, post)
				if res == nil {
					// Deadline fired before the claim; the post stays
					// pending for the next cycle.
					continue
				}
				mu.Lock()
				summary.add(*res)
				mu.Unlock()
			}
		}()
	}

	for _, post := range due {
		jobs <- post
	}
	close(jobs)
	wg.Wait()

	recordCycle("ok")
	slog.Info("dispatch cycle complete",
		"candidates", summary.Candidates,
		"attempted", summary.Attempted,
		"posted", summary.Posted,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)

	return summary, nil
}

// processItem owns one post end-to-end: claim, publish, record. A nil result
// means the post was never claimed and no side effect occurred.
func (e *Engine) processItem(ctx context.Context, post *domain.Post) *ItemResult {
	if ctx.Err() != nil {
		return nil
	}

	token := uuid.New().String()

	claimed, err := e.store.TryClaim(ctx, post.ID, token, e.now().UTC())
	if err != nil {
		// Store fault, not contention. The post was not claimed and stays
		// pending for the next cycle, like the deadline case.
		slog.Error("claim failed", "post_id", post.ID, "error", err)
		return nil
	}
	if !claimed {
		// Another dispatch run got there first.
		recordItem("skipped")
		return &ItemResult{PostID: post.ID, Outcome: OutcomeSkipped}
	}

	start := time.Now()
	pubCtx, cancelPub := context.WithTimeout(ctx, e.config.PublishTimeout)
	externalID, pubErr := e.publisher.Publish(pubCtx, post.Content)
	cancelPub()
	recordPublishDuration(time.Since(start))

	// A won claim must resolve even when the cycle deadline has fired, so the
	// outcome write runs on a context detached from cycle cancellation.
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancelWrite()

	if pubErr != nil {
		msg := truncate(pubErr.Error(), maxErrorLength)
		if errors.Is(pubErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("publish timed out after %s", e.config.PublishTimeout)
		}
		if err := e.store.MarkFailed(writeCtx, post.ID, token, msg, e.now().UTC()); err != nil {
			slog.Error("failed to record publish failure", "post_id", post.ID, "error", err)
		}
		recordItem("failed")
		slog.Warn("publish failed", "post_id", post.ID, "error", pubErr)
		return &ItemResult{PostID: post.ID, Outcome: OutcomeFailed, Error: msg}
	}

	if err := e.store.MarkPosted(writeCtx, post.ID, token, externalID, e.now().UTC()); err != nil {
		slog.Error("failed to record publish success", "post_id", post.ID, "error", err)
	}
	recordItem("posted")
	slog.Debug("post published", "post_id", post.ID, "external_id", externalID)
	return &ItemResult{PostID: post.ID, Outcome: OutcomePosted, ExternalID: externalID}
}

// resolveStale applies the configured stale-claim policy before selection, so
// requeued posts are picked up within the same cycle.
func (e *Engine) resolveStale(ctx context.Context, now time.Time) {
	cutoff := now.Add(-e.config.ClaimStaleness)

	stuck, err := e.store.ListStuck(ctx, cutoff, e.config.BatchSize)
	if err != nil {
		slog.Error("failed to list stuck claims", "error", err)
		return
	}

	recordStuckClaims(len(stuck))
	if len(stuck) == 0 {
		return
	}

	switch e.config.StalePolicy {
	case StalePolicyRequeue:
		for _, post := range stuck {
			released, err := e.store.ReleaseStuck(ctx, post.ID, cutoff)
			if err != nil {
				slog.Error("failed to release stuck claim", "post_id", post.ID, "error", err)
				continue
			}
			if released {
				slog.Warn("stuck claim released for re-dispatch",
					"post_id", post.ID,
					"claimed_at", post.ClaimedAt,
				)
			}
		}

	case StalePolicyFail:
		for _, post := range stuck {
			failed, err := e.store.FailStuck(ctx, post.ID, cutoff, e.now().UTC())
			if err != nil {
				slog.Error("failed to fail stuck claim", "post_id", post.ID, "error", err)
				continue
			}
			if failed {
				slog.Warn("stuck claim resolved to failed",
					"post_id", post.ID,
					"claimed_at", post.ClaimedAt,
				)
			}
		}

	default:
		// Surface only. The publish outcome is unknown; resolving here could
		// cause a duplicate publish (requeue) or hide a success (fail).
		for _, post := range stuck {
			slog.Warn("stuck claim detected",
				"post_id", post.ID,
				"claimed_at", post.ClaimedAt,
			)
		}
	}
}

// truncate cuts s to at most max bytes without splitting a rune, so the
// result stays valid UTF-8 for the database.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
