package common

import "fmt"

// The shared error taxonomy. Components return one of these (wrapped with
// fmt.Errorf("%w: ...") where useful) rather than ad-hoc error strings, so
// callers can branch with errors.As/errors.Is.

// ValidationError wraps malformed input: bad hex, oversize blob, unknown
// namespace. Never retried; surfaced as 4xx at the HTTP boundary.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation error in %s: %v", e.Op, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError constructs a ValidationError.
func NewValidationError(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}

// NotFoundError wraps a reference to an absent entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

// NewNotFoundError constructs a NotFoundError.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError wraps a unique-key violation. For idempotent upserts this is
// resolved internally (last-write-wins) and never reaches the caller; it is
// surfaced only where the caller must pick a resolution.
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string { return fmt.Sprintf("conflict in %s: %v", e.Op, e.Err) }
func (e *ConflictError) Unwrap() error { return e.Err }

// NewConflictError constructs a ConflictError.
func NewConflictError(op string, err error) error {
	return &ConflictError{Op: op, Err: err}
}

// TransientError wraps a backend failure that is expected to clear with
// retry (lock contention, connection reset). Callers should retry with
// bounded exponential backoff; see Retry in retry.go.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient error in %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError constructs a TransientError.
func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IntegrityError wraps a cryptographic or structural mismatch: bad proof,
// CRC mismatch, broken parent link. Fatal to the operation, never retried.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string { return fmt.Sprintf("integrity error in %s: %v", e.Op, e.Err) }
func (e *IntegrityError) Unwrap() error { return e.Err }

// NewIntegrityError constructs an IntegrityError.
func NewIntegrityError(op string, err error) error {
	return &IntegrityError{Op: op, Err: err}
}

// PolicyDeniedError wraps a policy-level rejection: rate-limited, jailed
// provider, over-budget selection. The caller decides how to handle it.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string { return fmt.Sprintf("policy denied: %s", e.Reason) }

// NewPolicyDeniedError constructs a PolicyDeniedError.
func NewPolicyDeniedError(reason string) error {
	return &PolicyDeniedError{Reason: reason}
}

// InternalError wraps an invariant violation or bug. Logged with context,
// surfaced as 5xx.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal error in %s: %v", e.Op, e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }

// NewInternalError constructs an InternalError.
func NewInternalError(op string, err error) error {
	return &InternalError{Op: op, Err: err}
}
