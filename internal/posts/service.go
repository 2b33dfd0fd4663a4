package posts

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mkurov/postqueue/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// Service implements post record business logic.
type Service struct {
	repo           Repository
	claimStaleness time.Duration
}

// NewService creates a new post service. claimStaleness is the age after which
// an in_flight claim is considered stuck.
func NewService(repo Repository, claimStaleness time.Duration) *Service {
	return &Service{
		repo:           repo,
		claimStaleness: claimStaleness,
	}
}

// CreatePostInput holds data for scheduling a post.
type CreatePostInput struct {
	Content     string
	ScheduledAt time.Time
}

// CreatePost validates and stores a new pending post.
func (s *Service) CreatePost(ctx context.Context, input CreatePostInput) (*domain.Post, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrContentEmpty
	}
	if ContentUnits(content) > domain.MaxContentUnits {
		return nil, fmt.Errorf("%w: limit is %d", ErrContentTooLong, domain.MaxContentUnits)
	}
	if input.ScheduledAt.IsZero() {
		return nil, ErrScheduleAtRequired
	}

	post := &domain.Post{
		Content:     content,
		ScheduledAt: input.ScheduledAt.UTC(),
		Status:      domain.PostStatusPending,
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	return post, nil
}

// GetPost retrieves a post by ID.
func (s *Service) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	return s.repo.GetByID(ctx, id)
}

// ListPosts retrieves all posts ordered by scheduled time.
func (s *Service) ListPosts(ctx context.Context) ([]domain.Post, error) {
	return s.repo.List(ctx)
}

// DeletePost cancels a post. Only pending posts may be deleted; posts that are
// in flight or already resolved are kept for history.
func (s *Service) DeletePost(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ListStuck returns in-flight posts whose claim has exceeded the staleness
// threshold. These are surfaced for monitoring, not auto-resolved: the external
// publish may have succeeded, so resolution requires an explicit policy.
func (s *Service) ListStuck(ctx context.Context, now time.Time) ([]*domain.Post, error) {
	return s.repo.ListStuck(ctx, now.Add(-s.claimStaleness), stuckListLimit)
}

const stuckListLimit = 100

// ContentUnits counts content length the way the publishing platform does:
// runes over the NFC-normalized form, so decomposed accents do not inflate
// the count.
func ContentUnits(content string) int {
	return utf8.RuneCountInString(norm.NFC.String(content))
}
