/*
Package gatepass implements the gate-pass request workflow engine.

PURPOSE:
  A faculty member submits a request to leave campus during working hours.
  The request passes through a fixed approval chain before the gate lets
  the person out:

    faculty submits ──▶ HOD/Admin decides ──▶ Registrar countersigns
                           │
                           └─ HOD's own and admin-submitted requests
                              escalate to the Principal instead

  A separate viewer role at the gate records physical exit (allowed) and
  re-entry (returned). These gate marks are orthogonal to the approval
  chain and may be granted early for emergencies.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status:       the single authoritative workflow state of a request
  - StageStatus:  per-stage view (HOD stage, Registrar stage) derived
                  from Status, never written independently
  - LeaveRequest: the sole stateful entity
  - User/Actor:   identity records and the acting identity

DESIGN PRINCIPLES:
  1. Single source of truth: Status drives everything; the stage fields
     and detail label are recomputed on every write and every read.
  2. Type safety: strong typing for IDs and enums prevents mixing
     request ids with user ids or stage values with statuses.
  3. All mutations go through the transition table in transition.go.

SEE ALSO:
  - transition.go: who may move a request between statuses
  - reconcile.go:  derived stage fields and display labels
  - service.go:    the orchestrating lifecycle service
*/
package gatepass

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// RequestID is a canonical UUID string. Inputs are parse-or-reject; there is
// no fallback matching by email or by alternative id encodings.
type RequestID string

// UserID is a canonical UUID string identifying a directory user.
type UserID string

// =============================================================================
// ROLES AND DESIGNATIONS
// =============================================================================

type Role string

const (
	RoleFaculty   Role = "faculty"
	RoleAdmin     Role = "admin" // department HOD account with approval authority
	RoleViewer    Role = "viewer"
	RoleRegistrar Role = "registrar"
	RolePrincipal Role = "principal"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFaculty, RoleAdmin, RoleViewer, RoleRegistrar, RolePrincipal:
		return true
	}
	return false
}

// Designation is the faculty designation within a department.
type Designation string

const DesignationHOD Designation = "HOD"

// =============================================================================
// WORKFLOW STATUS
// =============================================================================

type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved" // HOD-stage approval, awaiting registrar
	StatusRejected          Status = "rejected"
	StatusRegistrarApproved Status = "registrar_approved"
	StatusRegistrarRejected Status = "registrar_rejected"

	// StatusPendingEmergency flags that the gate viewer (or the principal)
	// let a still-pending request through before formal approval. For all
	// subsequent approval decisions it behaves exactly like pending.
	StatusPendingEmergency Status = "pending_emergency_allowed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected,
		StatusRegistrarApproved, StatusRegistrarRejected, StatusPendingEmergency:
		return true
	}
	return false
}

// Terminal reports whether no further status transitions are defined from s.
// Gate marks (allowed/returned) remain applicable to terminal requests.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusRegistrarApproved, StatusRegistrarRejected:
		return true
	}
	return false
}

// Undecided reports whether s still awaits the HOD-stage (or principal)
// decision. pending_emergency_allowed counts: the emergency gate mark does
// not consume the approval chain.
func (s Status) Undecided() bool {
	return s == StatusPending || s == StatusPendingEmergency
}

// StageStatus is the per-stage outcome shown next to a request. Both stage
// fields are pure functions of Status (see reconcile.go); stored copies are
// caches, never sources of truth.
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageApproved StageStatus = "approved"
	StageRejected StageStatus = "rejected"
)

// =============================================================================
// STATUS DETAIL LABELS
// =============================================================================

// Human-readable annotations set alongside status transitions. The principal
// labels carry glyph prefixes and take display precedence over the combined
// stage badge: they record an out-of-band escalation outcome.
const (
	DetailPendingByPrincipal = "Pending By Principal"
	DetailRegistrarApproved  = "Approved by Registrar"
	DetailRegistrarRejected  = "Rejected by Registrar"
	DetailPrincipalApproved  = "✔️ Approved By Principal"
	DetailPrincipalRejected  = "❌ Rejected By Principal"
	DetailPrincipalEmergency = "🚨 Emergency Approved By Principal"
	DetailEmergencyAllowed   = "Pending - Allowed For Emergency"
)

// =============================================================================
// LEAVE REQUEST - The sole stateful entity
// =============================================================================

// PurposePersonal is the purpose value subject to the monthly quota. The
// purpose enumeration is otherwise open.
const PurposePersonal = "Personal"

type LeaveRequest struct {
	ID RequestID

	// Requester identity, immutable after creation. FacultyEmail is a
	// denormalized copy taken at submission time.
	FacultyID    UserID
	FacultyEmail string

	// Requested absence window, caller-supplied, immutable.
	Date    string // YYYY-MM-DD
	TimeIn  string // HH:MM
	TimeOut string // HH:MM

	Purpose string
	Reason  string

	// Workflow state. Status is authoritative; StatusDetail, HODStatus and
	// RegistrarStatus are maintained alongside it and recomputed on read.
	Status          Status
	StatusDetail    string
	HODStatus       StageStatus
	RegistrarStatus StageStatus

	// Gate marks, set only by the viewer role. Once true they never revert,
	// and Returned requires Allowed.
	Allowed    bool
	AllowedBy  *UserID
	AllowedAt  *time.Time
	Returned   bool
	ReturnedBy *UserID
	ReturnedAt *time.Time

	// Maintained by the store on every write.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state in place.
func (r *LeaveRequest) Clone() *LeaveRequest {
	c := *r
	if r.AllowedBy != nil {
		v := *r.AllowedBy
		c.AllowedBy = &v
	}
	if r.AllowedAt != nil {
		v := *r.AllowedAt
		c.AllowedAt = &v
	}
	if r.ReturnedBy != nil {
		v := *r.ReturnedBy
		c.ReturnedBy = &v
	}
	if r.ReturnedAt != nil {
		v := *r.ReturnedAt
		c.ReturnedAt = &v
	}
	return &c
}

// =============================================================================
// USERS
// =============================================================================

// User is an identity directory record. The engine reads role, department
// and designation; credential fields belong to the auth boundary.
type User struct {
	ID           UserID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	EmployeeID   string
	Designation  Designation
	Department   string
	CreatedAt    time.Time
}

// Escalated reports whether this user's own requests bypass ordinary
// HOD review and go to the principal: HOD-designated faculty and admin
// accounts (the admin is the department's approving HOD, so nobody below
// the principal can decide their requests).
func (u *User) Escalated() bool {
	return u.Designation == DesignationHOD || u.Role == RoleAdmin
}

// Actor is the authenticated identity performing an operation, as resolved
// by the auth boundary.
type Actor struct {
	ID   UserID
	Role Role
}
