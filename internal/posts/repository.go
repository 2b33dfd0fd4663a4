// Package posts provides scheduled post record management.
package posts

import (
	"context"
	"time"

	"github.com/mkurov/postqueue/internal/domain"
)

// Repository defines the interface for post data access.
type Repository interface {
	// Record management
	Create(ctx context.Context, post *domain.Post) error
	GetByID(ctx context.Context, id string) (*domain.Post, error)
	List(ctx context.Context) ([]domain.Post, error)
	// Delete removes a post only while it is still pending.
	// Returns ErrPostNotFound or ErrPostNotPending otherwise.
	Delete(ctx context.Context, id string) error

	// Dispatch operations
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Post, error)
	// TryClaim atomically moves a pending post to in_flight under the given
	// claim token. Returns false when the post is no longer pending.
	TryClaim(ctx context.Context, id, token string, now time.Time) (bool, error)
	// MarkPosted and MarkFailed resolve a claim to a terminal state. Both are
	// no-ops (not errors) when the post is not in_flight under the given token,
	// so duplicate outcome writes are tolerated.
	MarkPosted(ctx context.Context, id, token, externalID string, postedAt time.Time) error
	MarkFailed(ctx context.Context, id, token, message string, failedAt time.Time) error

	// Stuck claim handling
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Post, error)
	// ReleaseStuck returns a stale in_flight post to pending. Guarded on the
	// claim age so a freshly re-claimed post is never released.
	ReleaseStuck(ctx context.Context, id string, cutoff time.Time) (bool, error)
	// FailStuck resolves a stale in_flight post to failed with a claim-expiry error.
	FailStuck(ctx context.Context, id string, cutoff, failedAt time.Time) (bool, error)

	// GetQueueStats returns post counts by status for monitoring.
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}

// QueueStats holds post counts by status.
type QueueStats struct {
	Pending  int64
	InFlight int64
	Posted   int64
	Failed   int64
}
