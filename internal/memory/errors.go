package memory

import (
	"errors"
	"fmt"
)

// Sentinel error kinds from the error taxonomy. Concrete errors wrap these
// with errors.Is-compatible %w so callers (notably internal/loomapi) can map
// them to HTTP status codes without string matching.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrValidation       = errors.New("validation error")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEmbeddingFailure = errors.New("embedding failure")
)

// RollbackError reports that the hybrid manager restored the pre-call state
// after a partial failure. FirstID is the relational id that was allocated
// and then rolled back, for operator diagnosis.
type RollbackError struct {
	FirstID int64
	Cause   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback performed after id %d: %v", e.FirstID, e.Cause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// RollbackFailedError is the critical variant: the rollback delete itself
// failed, so the relational store may still hold rows the caller believes
// were discarded. This must never be silently swallowed.
type RollbackFailedError struct {
	FirstID    int64
	Cause      error
	RollbackOf error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback FAILED for id %d: rollback cause=%v, rollback error=%v", e.FirstID, e.RollbackOf, e.Cause)
}

func (e *RollbackFailedError) Unwrap() error { return e.Cause }
