package domain

import "time"

// PostStatus represents the lifecycle state of a scheduled post.
type PostStatus string

// Post statuses. Posted and Failed are terminal.
const (
	PostStatusPending  PostStatus = "pending"
	PostStatusInFlight PostStatus = "in_flight"
	PostStatusPosted   PostStatus = "posted"
	PostStatusFailed   PostStatus = "failed"
)

// MaxContentUnits is the content length limit of the publishing platform.
const MaxContentUnits = 280

// Post represents a text post scheduled for future publication.
type Post struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      PostStatus `json:"status"`
	ClaimToken  *string    `json:"-"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	ExternalID  *string    `json:"external_id,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsValid checks if the status is a known value.
func (s PostStatus) IsValid() bool {
	return s == PostStatusPending ||
		s == PostStatusInFlight ||
		s == PostStatusPosted ||
		s == PostStatusFailed
}

// IsTerminal checks if the status permits no further transitions.
func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPosted || s == PostStatusFailed
}

// CanTransitionTo reports whether a transition from s to next is legal.
// The only legal paths are pending -> in_flight -> {posted|failed} and
// in_flight -> pending (stale claim released by policy).
func (s PostStatus) CanTransitionTo(next PostStatus) bool {
	switch s {
	case PostStatusPending:
		return next == PostStatusInFlight
	case PostStatusInFlight:
		return next == PostStatusPosted || next == PostStatusFailed || next == PostStatusPending
	default:
		return false
	}
}

// IsDue reports whether the post is eligible for dispatch at the given time.
func (p *Post) IsDue(now time.Time) bool {
	return p.Status == PostStatusPending && !p.ScheduledAt.After(now)
}

// IsStuck reports whether an in-flight claim is older than the staleness cutoff.
func (p *Post) IsStuck(cutoff time.Time) bool {
	return p.Status == PostStatusInFlight && p.ClaimedAt != nil && !p.ClaimedAt.After(cutoff)
}
