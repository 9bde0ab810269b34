package domain

import "errors"

// Sentinel errors shared by the store and the review/quiz core.
// Check with errors.Is; callers wrap them with context.
var (
	// ErrNotFound is returned when an id is absent from the store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when required text is missing on create,
	// or when a rating or patch is outside its domain.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable is returned when the persistence layer cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)
