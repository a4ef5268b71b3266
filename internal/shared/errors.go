package shared

import "errors"

// Error categories. Domain errors wrap one of these so transports can map them
// without knowing every concrete failure.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the request was rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates the document is not in a state that allows the action.
	ErrInvalidState = errors.New("invalid state")
	// ErrIntegrity indicates stored data violates a ledger precondition.
	ErrIntegrity = errors.New("integrity violation")
	// ErrConflict indicates a uniqueness conflict.
	ErrConflict = errors.New("conflict")
	// ErrLocked indicates another worker holds the critical section.
	ErrLocked = errors.New("resource locked")
)
