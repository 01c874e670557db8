package domain

import "errors"

// Validation errors shared by story construction and batch submission.
var (
	ErrEmptyStoryID     = errors.New("story id must not be empty")
	ErrNegativeEstimate = errors.New("estimated hours must not be negative")
)
