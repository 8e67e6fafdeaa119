/*
service.go - Request lifecycle orchestration

PURPOSE:
  The one entry point for every workflow operation:

    Submit        create a request (quota-checked, ownership-checked)
    Transition    move a request through the approval chain
    MarkAllowed   gate viewer records physical exit
    MarkReturned  gate viewer records re-entry
    ListFor       role-scoped queries with tab counts
    GetFor        single-request lookup inside the actor's visibility

  Every mutation consults the transition authority (transition.go) before
  touching the store, and every record passes through reconciliation
  (reconcile.go) before it is returned to a caller.

REQUEST FLOW:

  client ──▶ Service ──▶ Authorize ──▶ RequestStore (conditional write)
                                            │
            client ◀── Reconcile ◀──────────┘

CONCURRENCY:
  The service itself holds no locks. It reads a record, decides, and asks
  the store for a conditional write against the state it observed. If a
  concurrent actor won the race the write fails with
  ErrConcurrentModification and nothing is applied.

SEE ALSO:
  - transition.go: the rule table
  - quota.go:      Personal-purpose monthly cap
  - store.go:      the conditional-write contract
*/
package gatepass

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store RequestStore
	dir   Directory
	quota *QuotaEnforcer
	now   func() time.Time
}

// NewService wires the lifecycle service. personalQuota <= 0 falls back to
// DefaultPersonalQuota.
func NewService(store RequestStore, dir Directory, personalQuota int) *Service {
	return &Service{
		store: store,
		dir:   dir,
		quota: &QuotaEnforcer{Store: store, Limit: personalQuota},
		now:   time.Now,
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

type SubmitInput struct {
	FacultyID UserID
	Date      string // YYYY-MM-DD
	TimeIn    string
	TimeOut   string
	Purpose   string
	Reason    string
}

// Submit creates a new pending request for the given faculty member. The
// actor must be the faculty member themselves, or an admin submitting their
// own admin-employee request. Personal-purpose submissions are quota-checked
// before anything is written.
func (s *Service) Submit(ctx context.Context, actor Actor, in SubmitInput) (*LeaveRequest, error) {
	if actor.Role != RoleFaculty && actor.Role != RoleAdmin {
		return nil, &PolicyViolationError{
			ActorRole: actor.Role, From: "", Target: StatusPending,
			Reason: "only faculty and admin accounts submit requests",
		}
	}
	if actor.ID != in.FacultyID && actor.Role != RoleAdmin {
		return nil, &PolicyViolationError{
			ActorRole: actor.Role, From: "", Target: StatusPending,
			Reason: "actor does not own the faculty reference",
		}
	}
	if in.TimeIn == "" || in.TimeOut == "" || in.Purpose == "" || in.Reason == "" {
		return nil, fmt.Errorf("%w: timeIn, timeOut, purpose and reason are required", ErrValidation)
	}
	if _, err := YearMonth(in.Date); err != nil {
		return nil, err
	}

	owner, err := s.dir.User(ctx, in.FacultyID)
	if err != nil {
		return nil, err
	}
	if owner.Role != RoleFaculty && owner.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: faculty reference does not identify a faculty member", ErrValidation)
	}

	if in.Purpose == PurposePersonal {
		if err := s.quota.Check(ctx, owner.ID, in.Date); err != nil {
			return nil, err
		}
	}

	// Escalated owners (admin submissions, HOD-designated faculty) never
	// enter ordinary HOD review; their requests are born awaiting the
	// principal.
	detail := ""
	if owner.Escalated() {
		detail = DetailPendingByPrincipal
	}

	req := &LeaveRequest{
		ID:              RequestID(uuid.NewString()),
		FacultyID:       owner.ID,
		FacultyEmail:    owner.Email,
		Date:            in.Date,
		TimeIn:          in.TimeIn,
		TimeOut:         in.TimeOut,
		Purpose:         in.Purpose,
		Reason:          in.Reason,
		Status:          StatusPending,
		StatusDetail:    detail,
		HODStatus:       StagePending,
		RegistrarStatus: StagePending,
	}

	if err := s.store.Insert(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: inserting request: %v", ErrUnavailable, err)
	}

	Reconcile(req, owner)
	return req, nil
}

// =============================================================================
// TRANSITION
// =============================================================================

// Transition moves a request to target on behalf of actor. The transition
// table decides legality; the store applies the change conditionally against
// the status observed here, so a racing decision fails cleanly.
func (s *Service) Transition(ctx context.Context, actor Actor, id RequestID, target Status) (*LeaveRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, err := s.dir.User(ctx, req.FacultyID)
	if err != nil {
		return nil, fmt.Errorf("request owner: %w", err)
	}

	// Admins only decide requests inside their own department.
	if actor.Role == RoleAdmin {
		me, err := s.dir.User(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("actor: %w", err)
		}
		if me.Department != owner.Department {
			return nil, &PolicyViolationError{
				ActorRole: actor.Role, From: req.Status, Target: target,
				Reason: "request belongs to another department",
			}
		}
	}

	detail, err := Authorize(actor.Role, owner.Escalated(), req.Status, target)
	if err != nil {
		return nil, err
	}

	upd := StatusUpdate{
		Status:          target,
		StatusDetail:    detail,
		HODStatus:       HODStage(target),
		RegistrarStatus: RegistrarStage(target),
	}

	updated, err := s.store.UpdateStatus(ctx, id, req.Status, upd)
	if err != nil {
		return nil, err
	}

	Reconcile(updated, owner)
	return updated, nil
}

// =============================================================================
// GATE ACTIONS
// =============================================================================

// MarkAllowed records that the viewer let the requester through the gate.
// Any status qualifies; a still-pending request additionally moves to
// pending_emergency_allowed so the approval chain can see the early grant.
// A second mark fails: allowedBy/allowedAt never change once set.
func (s *Service) MarkAllowed(ctx context.Context, actor Actor, id RequestID) (*LeaveRequest, error) {
	if actor.Role != RoleViewer {
		return nil, &PolicyViolationError{
			ActorRole: actor.Role, Target: StatusPendingEmergency,
			Reason: "only the gate viewer records exits",
		}
	}

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Allowed {
		return nil, fmt.Errorf("%w: request already marked allowed", ErrInvalidPrecondition)
	}

	var upd *StatusUpdate
	if req.Status == StatusPending {
		upd = &StatusUpdate{
			Status:          StatusPendingEmergency,
			StatusDetail:    DetailEmergencyAllowed,
			HODStatus:       StagePending,
			RegistrarStatus: StagePending,
		}
	}

	updated, err := s.store.MarkAllowed(ctx, id, GateMark{By: actor.ID, At: s.now().UTC()}, upd)
	if err != nil {
		return nil, err
	}

	s.reconcileOne(ctx, updated)
	return updated, nil
}

// MarkReturned records re-entry. Only allowed requests can return, and only
// once.
func (s *Service) MarkReturned(ctx context.Context, actor Actor, id RequestID) (*LeaveRequest, error) {
	if actor.Role != RoleViewer {
		return nil, &PolicyViolationError{
			ActorRole: actor.Role,
			Reason:    "only the gate viewer records re-entry",
		}
	}

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Allowed {
		return nil, fmt.Errorf("%w: cannot mark returned before the request is allowed out", ErrInvalidPrecondition)
	}
	if req.Returned {
		return nil, fmt.Errorf("%w: request already marked returned", ErrInvalidPrecondition)
	}

	updated, err := s.store.MarkReturned(ctx, id, GateMark{By: actor.ID, At: s.now().UTC()})
	if err != nil {
		return nil, err
	}

	s.reconcileOne(ctx, updated)
	return updated, nil
}

// =============================================================================
// LIST
// =============================================================================

type ListFilter struct {
	Date               string // exact YYYY-MM-DD match
	FacultyNameOrEmail string // case-insensitive substring
	StatusTab          string // "", "all", "pending", "approved", "rejected"
	AllowedOnly        bool   // viewer gate-control view: allowed requests only

	// OwnOnly scopes the listing to the actor's own submissions instead of
	// the role's review queue. Admins need this: their review queue excludes
	// escalated owners, which includes themselves.
	OwnOnly bool
}

type Counts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

type RequestList struct {
	Requests []*LeaveRequest
	Counts   Counts
}

// registrarScope is what the registrar queue is built from: everything at or
// past HOD approval, plus emergency-allowed requests still in flight.
var registrarScope = []Status{
	StatusApproved, StatusRegistrarApproved, StatusRegistrarRejected, StatusPendingEmergency,
}

// ListFor returns the requests visible to the actor's role, reconciled,
// filtered, and bucketed into tab counts. Counts are computed on the
// date/name-filtered set so the tabs always sum consistently regardless of
// which tab is selected.
func (s *Service) ListFor(ctx context.Context, actor Actor, f ListFilter) (*RequestList, error) {
	filter := RequestFilter{Date: f.Date, AllowedOnly: f.AllowedOnly}
	owners := map[UserID]*User{}
	resolveOwners := false

	switch {
	case f.OwnOnly:
		if actor.Role != RoleFaculty && actor.Role != RoleAdmin {
			return nil, &PolicyViolationError{ActorRole: actor.Role, Reason: "role has no own submissions"}
		}
		me, err := s.dir.User(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("actor: %w", err)
		}
		owners[me.ID] = me
		filter.FacultyIDs = []UserID{me.ID}

	case actor.Role == RoleFaculty:
		me, err := s.dir.User(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("actor: %w", err)
		}
		owners[me.ID] = me
		filter.FacultyIDs = []UserID{me.ID}

	case actor.Role == RoleAdmin:
		me, err := s.dir.User(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("actor: %w", err)
		}
		dept, err := s.dir.UsersByDepartment(ctx, me.Department)
		if err != nil {
			return nil, fmt.Errorf("%w: listing department: %v", ErrUnavailable, err)
		}
		for _, u := range dept {
			if u.Role == RoleFaculty && !u.Escalated() {
				owners[u.ID] = u
				filter.FacultyIDs = append(filter.FacultyIDs, u.ID)
			}
		}
		if len(filter.FacultyIDs) == 0 {
			return &RequestList{Requests: []*LeaveRequest{}}, nil
		}

	case actor.Role == RolePrincipal:
		esc, err := s.dir.EscalatedUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: listing escalated users: %v", ErrUnavailable, err)
		}
		for _, u := range esc {
			owners[u.ID] = u
			filter.FacultyIDs = append(filter.FacultyIDs, u.ID)
		}
		if len(filter.FacultyIDs) == 0 {
			return &RequestList{Requests: []*LeaveRequest{}}, nil
		}

	case actor.Role == RoleRegistrar:
		filter.Statuses = registrarScope
		resolveOwners = true

	case actor.Role == RoleViewer:
		resolveOwners = true

	default:
		return nil, &PolicyViolationError{ActorRole: actor.Role, Reason: "role has no request listing"}
	}

	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: listing requests: %v", ErrUnavailable, err)
	}

	if resolveOwners {
		for _, r := range records {
			if _, ok := owners[r.FacultyID]; !ok {
				if u, err := s.dir.User(ctx, r.FacultyID); err == nil {
					owners[r.FacultyID] = u
				}
			}
		}
	}

	// Escalated owners' requests never reach the registrar queue, whatever
	// their status says.
	if actor.Role == RoleRegistrar {
		records = filterRecords(records, func(r *LeaveRequest) bool {
			o := owners[r.FacultyID]
			return o != nil && !o.Escalated()
		})
	}

	if needle := strings.ToLower(strings.TrimSpace(f.FacultyNameOrEmail)); needle != "" {
		records = filterRecords(records, func(r *LeaveRequest) bool {
			if strings.Contains(strings.ToLower(r.FacultyEmail), needle) {
				return true
			}
			o := owners[r.FacultyID]
			return o != nil && strings.Contains(strings.ToLower(o.Name), needle)
		})
	}

	counts := countForRole(actor.Role, records)

	if tab := tabStatuses(actor.Role, f.StatusTab); tab != nil {
		records = filterRecords(records, func(r *LeaveRequest) bool {
			for _, st := range tab {
				if r.Status == st {
					return true
				}
			}
			return false
		})
	}

	for _, r := range records {
		Reconcile(r, owners[r.FacultyID])
	}

	return &RequestList{Requests: records, Counts: counts}, nil
}

// GetFor returns a single request if the actor may see it: their own
// submission (faculty and admin), or anything inside their review scope.
// Out-of-scope reads report ErrNotFound rather than revealing existence.
func (s *Service) GetFor(ctx context.Context, actor Actor, id RequestID) (*LeaveRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, ownerErr := s.dir.User(ctx, req.FacultyID)
	if ownerErr != nil {
		owner = nil
	}

	visible := false
	switch actor.Role {
	case RoleFaculty:
		visible = req.FacultyID == actor.ID
	case RoleAdmin:
		if req.FacultyID == actor.ID {
			visible = true
			break
		}
		me, err := s.dir.User(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("actor: %w", err)
		}
		visible = owner != nil && owner.Role == RoleFaculty &&
			!owner.Escalated() && owner.Department == me.Department
	case RolePrincipal:
		visible = owner != nil && owner.Escalated()
	case RoleRegistrar:
		visible = owner != nil && !owner.Escalated() && inStatuses(registrarScope, req.Status)
	case RoleViewer:
		visible = true
	}
	if !visible {
		return nil, ErrNotFound
	}

	Reconcile(req, owner)
	return req, nil
}

func inStatuses(set []Status, s Status) bool {
	for _, st := range set {
		if st == s {
			return true
		}
	}
	return false
}

func filterRecords(in []*LeaveRequest, keep func(*LeaveRequest) bool) []*LeaveRequest {
	out := in[:0]
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// countForRole buckets records into the tab counters. The registrar counts
// by registrar-stage outcomes (their "pending" is HOD-approved work waiting
// on them); every other role counts by overall outcome.
func countForRole(role Role, records []*LeaveRequest) Counts {
	c := Counts{Total: len(records)}
	for _, r := range records {
		if role == RoleRegistrar {
			switch r.Status {
			case StatusApproved:
				c.Pending++
			case StatusRegistrarApproved:
				c.Approved++
			case StatusRegistrarRejected:
				c.Rejected++
			}
			continue
		}
		switch r.Status {
		case StatusPending, StatusPendingEmergency:
			c.Pending++
		case StatusApproved, StatusRegistrarApproved:
			c.Approved++
		case StatusRejected, StatusRegistrarRejected:
			c.Rejected++
		}
	}
	return c
}

// tabStatuses maps a status tab name to the statuses it selects for the
// role. nil means no tab filtering.
func tabStatuses(role Role, tab string) []Status {
	switch tab {
	case "", "all":
		return nil
	}

	if role == RoleRegistrar {
		switch tab {
		case "pending", "hod_approved", "approved_by_hod":
			return []Status{StatusApproved}
		case "approved":
			return []Status{StatusRegistrarApproved}
		case "rejected":
			return []Status{StatusRegistrarRejected}
		}
	} else {
		switch tab {
		case "pending":
			return []Status{StatusPending, StatusPendingEmergency}
		case "approved":
			return []Status{StatusApproved, StatusRegistrarApproved}
		case "rejected":
			return []Status{StatusRejected, StatusRegistrarRejected}
		}
	}

	if st := Status(tab); st.Valid() {
		return []Status{st}
	}
	// Unknown tab selects nothing rather than everything.
	return []Status{}
}

// =============================================================================
// HELPERS
// =============================================================================

// reconcileOne reconciles a single record, resolving the owner when the
// directory has them. Gate actions tolerate an unresolvable owner: the
// stage derivation still runs, only the escalated-pending label is skipped.
func (s *Service) reconcileOne(ctx context.Context, r *LeaveRequest) {
	owner, err := s.dir.User(ctx, r.FacultyID)
	if err != nil {
		owner = nil
	}
	Reconcile(r, owner)
}

// ParseRequestID validates an incoming id string. A malformed id is a
// validation error, never a lookup attempt.
func ParseRequestID(s string) (RequestID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("%w: malformed request id %q", ErrValidation, s)
	}
	return RequestID(s), nil
}

// ParseUserID validates an incoming user id string.
func ParseUserID(s string) (UserID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("%w: malformed user id %q", ErrValidation, s)
	}
	return UserID(s), nil
}
