package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth marks credential rejection or an unreachable auth endpoint.
	ErrAuth = errors.New("authentication failed")
	// ErrFetch marks a per-item fetch failure after retries.
	ErrFetch = errors.New("fetch failed")
	// ErrIndexNotFound marks a query or delete against a missing collection.
	ErrIndexNotFound = errors.New("collection not found")
	// ErrGeneration marks a failed generation call.
	ErrGeneration = errors.New("generation failed")
)

// AuthError is returned when no token could be obtained. It is fatal to an
// ingestion job.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches ErrAuth.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// FetchError is returned for a single identifier once retries are exhausted
// or the failure is not transient.
type FetchError struct {
	ID         DocumentID
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %q failed after %d attempt(s) (status %d): %v", e.ID, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %q failed after %d attempt(s): %v", e.ID, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// GenerationError wraps a generator failure. It is surfaced to the caller
// without retry.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("generation with %s failed: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches ErrGeneration.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// CollectionNotFound wraps ErrIndexNotFound with the collection name.
func CollectionNotFound(name string) error {
	return fmt.Errorf("collection %q: %w", name, ErrIndexNotFound)
}
