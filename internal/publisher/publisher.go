// Package publisher defines the external publishing boundary.
package publisher

import (
	"context"
	"fmt"
)

// Publisher publishes post content to an external platform.
// The call is not idempotent: once issued, its side effect cannot be rolled
// back, which is why callers must claim a post before publishing.
type Publisher interface {
	// Publish sends the content and returns the platform-assigned identifier.
	Publish(ctx context.Context, content string) (externalID string, err error)
}

// Error is a publish failure with the platform's diagnostic attached.
type Error struct {
	Code      int // HTTP status, 0 for transport errors
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("publish error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("publish error: %s", e.Message)
}

// IsRetryable reports whether a later attempt could succeed. The dispatch
// engine records it for operators but performs no retries itself.
func (e *Error) IsRetryable() bool { return e.Retryable }
