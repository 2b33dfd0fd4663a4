// Package postgres provides PostgreSQL implementation of the posts repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkurov/postqueue/internal/domain"
	"github.com/mkurov/postqueue/internal/posts"
)

// Repository implements posts.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const postColumns = `id, content, scheduled_at, status, claim_token, claimed_at, posted_at, failed_at, external_id, error, created_at, updated_at`

func scanPost(row pgx.Row, p *domain.Post) error {
	return row.Scan(
		&p.ID,
		&p.Content,
		&p.ScheduledAt,
		&p.Status,
		&p.ClaimToken,
		&p.ClaimedAt,
		&p.PostedAt,
		&p.FailedAt,
		&p.ExternalID,
		&p.Error,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

// Create inserts a new pending post.
func (r *Repository) Create(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (content, scheduled_at, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, post.Content, post.ScheduledAt, post.Status).
		Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// GetByID retrieves a post by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	var post domain.Post
	if err := scanPost(r.db.QueryRow(ctx, query, id), &post); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, posts.ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &post, nil
}

// List retrieves all posts ordered by scheduled time.
func (r *Repository) List(ctx context.Context) ([]domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts ORDER BY scheduled_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Post, 0)
	for rows.Next() {
		var post domain.Post
		if err := scanPost(rows, &post); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		list = append(list, post)
	}
	return list, rows.Err()
}

// Delete removes a post only while it is still pending.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1 AND status = $2`, id, domain.PostStatusPending)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Nothing deleted: missing post or one past cancellation.
	var status domain.PostStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM posts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return posts.ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("check post status: %w", err)
	}
	return posts.ErrPostNotPending
}

// ListDue returns pending posts whose scheduled time has passed, earliest first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, domain.PostStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// TryClaim atomically transitions a pending post to in_flight. The conditional
// update is the serialization point: overlapping dispatch runs race here and
// exactly one wins.
func (r *Repository) TryClaim(ctx context.Context, id, token string, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $3, claim_token = $4, claimed_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.Exec(ctx, query,
		id, domain.PostStatusPending, domain.PostStatusInFlight, token, now)
	if err != nil {
		return false, fmt.Errorf("claim post: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkPosted resolves a claim to posted. No-op when the post is not in_flight
// under the given token, so a duplicate write after a retried step is harmless.
func (r *Repository) MarkPosted(ctx context.Context, id, token, externalID string, postedAt time.Time) error {
	query := `
		UPDATE posts
		SET status = $4, posted_at = $5, external_id = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1 AND status = $2 AND claim_token = $3
	`
	_, err := r.db.Exec(ctx, query,
		id, domain.PostStatusInFlight, token, domain.PostStatusPosted, postedAt, externalID)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	return nil
}

// MarkFailed resolves a claim to failed with the captured error message.
// Same idempotency contract as MarkPosted.
func (r *Repository) MarkFailed(ctx context.Context, id, token, message string, failedAt time.Time) error {
	query := `
		UPDATE posts
		SET status = $4, failed_at = $5, error = $6, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND claim_token = $3
	`
	_, err := r.db.Exec(ctx, query,
		id, domain.PostStatusInFlight, token, domain.PostStatusFailed, failedAt, message)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ListStuck returns in_flight posts claimed at or before the cutoff.
func (r *Repository) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE status = $1 AND claimed_at <= $2
		ORDER BY claimed_at ASC, id ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, domain.PostStatusInFlight, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ReleaseStuck returns a stale claim to pending. The claimed_at guard keeps a
// freshly re-claimed post out of reach.
func (r *Repository) ReleaseStuck(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $3, claim_token = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND claimed_at <= $4
	`
	result, err := r.db.Exec(ctx, query,
		id, domain.PostStatusInFlight, domain.PostStatusPending, cutoff)
	if err != nil {
		return false, fmt.Errorf("release stuck post: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// FailStuck resolves a stale claim to failed with a claim-expiry error.
func (r *Repository) FailStuck(ctx context.Context, id string, cutoff, failedAt time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $3, failed_at = $5, error = $6, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND claimed_at <= $4
	`
	result, err := r.db.Exec(ctx, query,
		id, domain.PostStatusInFlight, domain.PostStatusFailed, cutoff, failedAt,
		"claim expired without outcome")
	if err != nil {
		return false, fmt.Errorf("fail stuck post: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// GetQueueStats returns post counts by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*posts.QueueStats, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM posts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := &posts.QueueStats{}
	for rows.Next() {
		var status domain.PostStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch status {
		case domain.PostStatusPending:
			stats.Pending = count
		case domain.PostStatusInFlight:
			stats.InFlight = count
		case domain.PostStatusPosted:
			stats.Posted = count
		case domain.PostStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func collectPosts(rows pgx.Rows) ([]*domain.Post, error) {
	list := make([]*domain.Post, 0)
	for rows.Next() {
		var post domain.Post
		if err := scanPost(rows, &post); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		list = append(list, &post)
	}
	return list, rows.Err()
}
