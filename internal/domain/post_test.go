package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostStatus_IsValid(t *testing.T) {
	assert.True(t, PostStatusPending.IsValid())
	assert.True(t, PostStatusInFlight.IsValid())
	assert.True(t, PostStatusPosted.IsValid())
	assert.True(t, PostStatusFailed.IsValid())
	assert.False(t, PostStatus("draft").IsValid())
}

func TestPostStatus_IsTerminal(t *testing.T) {
	assert.False(t, PostStatusPending.IsTerminal())
	assert.False(t, PostStatusInFlight.IsTerminal())
	assert.True(t, PostStatusPosted.IsTerminal())
	assert.True(t, PostStatusFailed.IsTerminal())
}

func TestPostStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    PostStatus
		to      PostStatus
		allowed bool
	}{
		{"pending to in_flight", PostStatusPending, PostStatusInFlight, true},
		{"pending to posted", PostStatusPending, PostStatusPosted, false},
		{"pending to failed", PostStatusPending, PostStatusFailed, false},
		{"in_flight to posted", PostStatusInFlight, PostStatusPosted, true},
		{"in_flight to failed", PostStatusInFlight, PostStatusFailed, true},
		{"in_flight released to pending", PostStatusInFlight, PostStatusPending, true},
		{"posted is terminal", PostStatusPosted, PostStatusFailed, false},
		{"failed is terminal", PostStatusFailed, PostStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPost_IsDue(t *testing.T) {
	now := time.Now()

	due := &Post{Status: PostStatusPending, ScheduledAt: now.Add(-time.Minute)}
	assert.True(t, due.IsDue(now))

	exactlyNow := &Post{Status: PostStatusPending, ScheduledAt: now}
	assert.True(t, exactlyNow.IsDue(now))

	future := &Post{Status: PostStatusPending, ScheduledAt: now.Add(time.Hour)}
	assert.False(t, future.IsDue(now))

	claimed := &Post{Status: PostStatusInFlight, ScheduledAt: now.Add(-time.Minute)}
	assert.False(t, claimed.IsDue(now))

	posted := &Post{Status: PostStatusPosted, ScheduledAt: now.Add(-time.Minute)}
	assert.False(t, posted.IsDue(now))
}

func TestPost_IsStuck(t *testing.T) {
	now := time.Now()
	cutoff := now.Add(-15 * time.Minute)

	old := now.Add(-time.Hour)
	stuck := &Post{Status: PostStatusInFlight, ClaimedAt: &old}
	assert.True(t, stuck.IsStuck(cutoff))

	recent := now.Add(-time.Minute)
	fresh := &Post{Status: PostStatusInFlight, ClaimedAt: &recent}
	assert.False(t, fresh.IsStuck(cutoff))

	pending := &Post{Status: PostStatusPending}
	assert.False(t, pending.IsStuck(cutoff))
}
