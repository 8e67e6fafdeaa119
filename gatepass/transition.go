/*
transition.go - The approval state machine

PURPOSE:
  Declares, in one table, every legal status transition and who may perform
  it. Role handlers never encode transition rules themselves; they ask this
  authority and either get the resulting status detail or a refusal.

STATE DIAGRAM:

                       admin/HOD (principal for escalated owners)
                 ┌──────────────────────────────┐
                 │                              ▼
   pending ──────┤                          approved ──────┬─▶ registrar_approved
      │          │                              registrar  │
      │ viewer   └─▶ rejected                              └─▶ registrar_rejected
      ▼
   pending_emergency_allowed   (behaves like pending for approvals)

  Terminal: rejected, registrar_approved, registrar_rejected.
  Gate marks (allowed/returned) are orthogonal and handled in service.go.

OWNERSHIP RULE:
  Requests owned by an escalated user (HOD designation or admin role) are
  decidable only by the principal. The admin/HOD rows never match them, no
  matter what the UI shows.

IDEMPOTENCE:
  Transitions are deliberately idempotent-unsafe. Re-applying a decision to
  a request that already left the required from-state fails; it never
  silently succeeds. Combined with the store's conditional update this rules
  out double approvals under concurrency.

SEE ALSO:
  - service.go:   loads the request, consults this table, persists
  - reconcile.go: derives the stage fields for the new status
*/
package gatepass

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// transition is a single allowed edge: actor role, owner escalation class,
// and the (from, to) pair, plus the status detail written alongside.
type transition struct {
	actor     Role
	escalated bool // owner is HOD-designated or admin-role
	from      Status
	to        Status
	detail    string
}

var transitionTable = []transition{
	// Department HOD/Admin acting on ordinary faculty requests.
	{RoleAdmin, false, StatusPending, StatusApproved, ""},
	{RoleAdmin, false, StatusPendingEmergency, StatusApproved, ""},
	{RoleAdmin, false, StatusPending, StatusRejected, ""},
	{RoleAdmin, false, StatusPendingEmergency, StatusRejected, ""},
	{RoleAdmin, false, StatusPending, StatusPendingEmergency, DetailEmergencyAllowed},

	// Registrar countersigns HOD-approved requests only.
	{RoleRegistrar, false, StatusApproved, StatusRegistrarApproved, DetailRegistrarApproved},
	{RoleRegistrar, false, StatusApproved, StatusRegistrarRejected, DetailRegistrarRejected},

	// Principal decides escalated owners' requests.
	{RolePrincipal, true, StatusPending, StatusApproved, DetailPrincipalApproved},
	{RolePrincipal, true, StatusPendingEmergency, StatusApproved, DetailPrincipalApproved},
	{RolePrincipal, true, StatusPending, StatusRejected, DetailPrincipalRejected},
	{RolePrincipal, true, StatusPendingEmergency, StatusRejected, DetailPrincipalRejected},
	{RolePrincipal, true, StatusPending, StatusPendingEmergency, DetailPrincipalEmergency},
}

// =============================================================================
// AUTHORITY
// =============================================================================

// Authorize decides whether actorRole may move a request owned by an
// escalated (or not) user from its current status to target. On success it
// returns the status detail to persist with the transition.
//
// Refusals distinguish two cases for the boundary layer: a target outside
// the actor's permitted set at all (BadTarget, a request-shape problem) and
// a state or ownership mismatch (a policy problem).
func Authorize(actorRole Role, ownerEscalated bool, from, to Status) (string, error) {
	if !to.Valid() {
		return "", &PolicyViolationError{
			ActorRole: actorRole, From: from, Target: to,
			Reason: "unknown target status", BadTarget: true,
		}
	}

	inActorSet := false
	for _, tr := range transitionTable {
		if tr.actor != actorRole || tr.to != to {
			continue
		}
		inActorSet = true
		if tr.escalated == ownerEscalated && tr.from == from {
			return tr.detail, nil
		}
	}

	if !inActorSet {
		return "", &PolicyViolationError{
			ActorRole: actorRole, From: from, Target: to,
			Reason: "target status outside this role's permitted set", BadTarget: true,
		}
	}

	// The actor can reach the target in principle; this particular request
	// refuses it. Say why.
	switch {
	case actorRole == RoleAdmin && ownerEscalated:
		return "", &PolicyViolationError{
			ActorRole: actorRole, From: from, Target: to,
			Reason: "request owner escalates to the principal",
		}
	case actorRole == RoleRegistrar && ownerEscalated:
		return "", &PolicyViolationError{
			ActorRole: actorRole, From: from, Target: to,
			Reason: "escalated owners' requests are not processed by the registrar",
		}
	case actorRole == RolePrincipal && !ownerEscalated:
		return "", &PolicyViolationError{
			ActorRole: actorRole, From: from, Target: to,
			Reason: "request owner is handled by the department HOD chain",
		}
	case from.Terminal():
		return "", &PolicyViolationError{
			ActorRole: actorRole, From: from, Target: to,
			Reason: "request already finalized",
		}
	default:
		return "", &PolicyViolationError{
			ActorRole: actorRole, From: from, Target: to,
			Reason: "request is not in the required state",
		}
	}
}

// CanDecide reports whether role ever decides requests of the given owner
// class. Used by list scoping, not as the mutation guard.
func CanDecide(role Role, ownerEscalated bool) bool {
	for _, tr := range transitionTable {
		if tr.actor == role && tr.escalated == ownerEscalated {
			return true
		}
	}
	return false
}
