package errors

import (
	"fmt"
	"time"
)

/*
Kind classifies a storage failure so callers can branch on the class of
problem without parsing message strings.
*/
type Kind string

const (
	KindRepositoryNotFound Kind = "repository_not_found"
	KindInvalidState       Kind = "invalid_state"
	KindGitOperation       Kind = "git_operation"
	KindEntityNotFound     Kind = "entity_not_found"
	KindSerialization      Kind = "serialization"
	KindDeserialization    Kind = "deserialization"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
)

/*
StorageError is the typed failure returned by every storage, index, query and
sync operation. Data optionally carries structured context (ids, ref names).
*/
type StorageError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

/*
Error implements the error interface for StorageError.
*/
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches two StorageErrors by Kind, so errors.Is(err, ErrEntityNotFound)
// works on contextualized copies produced by WithMessagef.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Convenience errors, one per Kind. Call WithMessagef for a contextualized
// copy rather than mutating these.
var (
	ErrRepositoryNotFound = &StorageError{Kind: KindRepositoryNotFound, Message: "repository not found"}
	ErrInvalidState       = &StorageError{Kind: KindInvalidState, Message: "storage is in an invalid state"}
	ErrGitOperation       = &StorageError{Kind: KindGitOperation, Message: "object store operation failed"}
	ErrEntityNotFound     = &StorageError{Kind: KindEntityNotFound, Message: "entity not found"}
	ErrSerialization      = &StorageError{Kind: KindSerialization, Message: "failed to serialize entity"}
	ErrDeserialization    = &StorageError{Kind: KindDeserialization, Message: "failed to deserialize entity"}
	ErrValidation         = &StorageError{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound           = &StorageError{Kind: KindNotFound, Message: "not found"}
)

// WithMessagef creates a *copy* of a StorageError with a formatted message.
// It does not modify the original error variable.
func (e *StorageError) WithMessagef(format string, args ...any) *StorageError {
	newErr := *e
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

// WithData creates a copy carrying structured context.
func (e *StorageError) WithData(data any) *StorageError {
	newErr := *e
	newErr.Data = data
	return &newErr
}

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
// Used where ref updates can race with a concurrent writer.
func RetryWithBackoff(config *RetryConfig, fn func() error) error {
	var err error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts, last error: %w", config.MaxAttempts, err)
}
