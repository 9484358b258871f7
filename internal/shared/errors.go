package shared

import "errors"

var (
	// ErrNotFound indicates the entity id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status graph violation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState indicates a failed precondition on a multi-step operation.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the operation is forbidden by a business rule.
	ErrConflict = errors.New("conflict with current data")
	// ErrStore indicates a transaction or commit failure. A failed transaction
	// is never partially applied; callers may retry once before surfacing it.
	ErrStore = errors.New("store failure")
)
