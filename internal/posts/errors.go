package posts

import "errors"

// Repository errors.
var (
	ErrPostNotFound   = errors.New("post not found")
	ErrPostNotPending = errors.New("post is not pending")
)

// Validation errors.
var (
	ErrContentEmpty       = errors.New("content is required")
	ErrContentTooLong     = errors.New("content exceeds maximum length")
	ErrScheduleAtRequired = errors.New("scheduled_at is required")
)
