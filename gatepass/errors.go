/*
errors.go - Centralized error types for the gate-pass engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every failure the engine can report maps to exactly one sentinel,
  so callers (and the HTTP layer) branch with errors.Is.

ERROR CATEGORIES:
  1. Caller errors  - validation, policy violations, quota, preconditions
  2. Lookup errors  - unknown request or user ids
  3. Store errors   - conflicts and infrastructure failures

USAGE:
  if errors.Is(err, gatepass.ErrPolicyViolation) {
      // 403: actor not allowed to perform this transition
  }

  var quota *gatepass.QuotaExceededError
  if errors.As(err, &quota) {
      // quota.Count, quota.Limit available for the message
  }

SEE ALSO:
  - transition.go: constructs PolicyViolationError
  - service.go:    wraps store failures with ErrUnavailable
  - api/handlers.go: maps these kinds to HTTP status codes
*/
package gatepass

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (bad id format, bad
	// date, unknown status value). Rejected before any store access.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is returned when a request or user id does not resolve.
	// A lookup miss is final; there is no fallback matching.
	ErrNotFound = errors.New("not found")

	// ErrPolicyViolation is returned when an actor attempts a transition
	// that is illegal for the request's current state or ownership.
	// No mutation is applied.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrQuotaExceeded is returned when a Personal-purpose submission
	// would exceed the monthly cap. Rejected before create.
	ErrQuotaExceeded = errors.New("personal quota exceeded")

	// ErrInvalidPrecondition is returned for gate actions out of order,
	// e.g. marking a request returned before it was allowed out.
	ErrInvalidPrecondition = errors.New("invalid precondition")

	// ErrConcurrentModification is returned when a conditional update finds
	// the record no longer in the state observed at read time. The caller
	// saw stale data; re-reading yields the decided state.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnavailable wraps infrastructure-level failures (store unreachable).
	// Safe to retry with backoff; everything above is not.
	ErrUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PolicyViolationError explains why a transition was refused.
type PolicyViolationError struct {
	ActorRole Role
	From      Status
	Target    Status
	Reason    string

	// BadTarget marks the target status as outside the actor's permitted
	// set altogether, as opposed to a state/ownership mismatch.
	BadTarget bool
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%s may not move request from %q to %q: %s",
		e.ActorRole, e.From, e.Target, e.Reason)
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

// QuotaExceededError reports the monthly Personal-purpose cap being hit.
type QuotaExceededError struct {
	FacultyID UserID
	YearMonth string // YYYY-MM of the requested date
	Limit     int
	Count     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("faculty %s already has %d Personal requests in %s (limit %d)",
		e.FacultyID, e.Count, e.YearMonth, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is caused by caller state or input
// and must not be retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPolicyViolation) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrInvalidPrecondition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
// Only infrastructure failures qualify; conflicts mean the decision
// already happened elsewhere.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
