/*
store.go - Persistence and directory interfaces

PURPOSE:
  Defines the interface between the workflow engine and its two external
  collaborators: the request store and the identity directory. Different
  implementations back them with SQLite or memory.

CONDITIONAL WRITE CONTRACT:
  Every mutation is a compare-and-swap against the state observed at read
  time. UpdateStatus only applies if the record still holds the expected
  from-status; the gate marks only apply if the respective flag is still
  unset. A failed condition reports ErrConcurrentModification and writes
  nothing. This is what makes two racing approvals impossible without any
  in-process locking.

  There are no unconditional updates and no deletes. Requests are never
  removed by any defined operation.

IMPLEMENTATIONS:
  - store/sqlite:          production store (requests + users)
  - gatepass/store (memory): in-memory store for tests and dev

SEE ALSO:
  - service.go: the only caller of the mutating methods
*/
package gatepass

import (
	"context"
	"time"
)

// =============================================================================
// REQUEST STORE
// =============================================================================

// StatusUpdate is the full set of fields rewritten on a status transition.
// The stage fields travel with the status so a persisted record is never
// internally inconsistent, even for readers that skip reconciliation.
type StatusUpdate struct {
	Status          Status
	StatusDetail    string
	HODStatus       StageStatus
	RegistrarStatus StageStatus
}

// GateMark records who performed a gate action and when.
type GateMark struct {
	By UserID
	At time.Time
}

// RequestFilter selects requests for list queries. Zero values mean
// "no constraint". Results are newest-first by creation time, except
// AllowedOnly listings which order by the allowed timestamp.
type RequestFilter struct {
	FacultyIDs  []UserID
	Statuses    []Status
	Date        string // exact match on the stored YYYY-MM-DD date
	AllowedOnly bool
}

// RequestStore persists LeaveRequest records.
type RequestStore interface {
	// Insert persists a new request. The store assigns CreatedAt/UpdatedAt.
	Insert(ctx context.Context, r *LeaveRequest) error

	// Get returns the request or ErrNotFound.
	Get(ctx context.Context, id RequestID) (*LeaveRequest, error)

	// List returns requests matching the filter.
	List(ctx context.Context, f RequestFilter) ([]*LeaveRequest, error)

	// CountPersonal counts Personal-purpose requests of a faculty whose
	// stored date falls in yearMonth (YYYY-MM).
	CountPersonal(ctx context.Context, facultyID UserID, yearMonth string) (int, error)

	// UpdateStatus applies upd iff the record still holds status from.
	// Returns the updated record, ErrNotFound, or ErrConcurrentModification.
	UpdateStatus(ctx context.Context, id RequestID, from Status, upd StatusUpdate) (*LeaveRequest, error)

	// MarkAllowed sets the allowed flag iff it is still unset. A non-nil
	// upd additionally moves the status (the pending → emergency case) and
	// is conditional on the status still being pending.
	MarkAllowed(ctx context.Context, id RequestID, mark GateMark, upd *StatusUpdate) (*LeaveRequest, error)

	// MarkReturned sets the returned flag iff allowed is set and returned
	// is still unset.
	MarkReturned(ctx context.Context, id RequestID, mark GateMark) (*LeaveRequest, error)
}

// =============================================================================
// IDENTITY DIRECTORY
// =============================================================================

// Directory resolves user identity for authorization and list scoping.
type Directory interface {
	// User returns the directory record or ErrNotFound.
	User(ctx context.Context, id UserID) (*User, error)

	// UsersByDepartment returns all users of a department.
	UsersByDepartment(ctx context.Context, department string) ([]*User, error)

	// EscalatedUsers returns every user whose requests escalate to the
	// principal (HOD-designated faculty and admin accounts).
	EscalatedUsers(ctx context.Context) ([]*User, error)
}
