/*
reconcile.go - Derived status fields and display labels

PURPOSE:
  The stored record carries three views of the same fact: Status (the
  truth), the per-stage HODStatus/RegistrarStatus pair, and the free-text
  StatusDetail. This file is the only place the derived views come from.
  Both are recomputed here on every write and again on every read, so a
  stale stored copy (say, written by a migration script) can never reach
  a caller.

DERIVATION TABLE:

  status                     hodStatus   registrarStatus
  ------                     ---------   ---------------
  pending                    pending     pending
  pending_emergency_allowed  pending     pending
  approved                   approved    pending
  rejected                   rejected    pending
  registrar_approved         approved    approved
  registrar_rejected         approved    rejected

  Both functions are pure and idempotent.

SEE ALSO:
  - service.go: calls Reconcile before returning any record
*/
package gatepass

// =============================================================================
// STAGE DERIVATION
// =============================================================================

// HODStage derives the HOD-stage outcome from the authoritative status.
func HODStage(s Status) StageStatus {
	switch s {
	case StatusApproved, StatusRegistrarApproved, StatusRegistrarRejected:
		return StageApproved
	case StatusRejected:
		return StageRejected
	default:
		return StagePending
	}
}

// RegistrarStage derives the registrar-stage outcome from the status.
func RegistrarStage(s Status) StageStatus {
	switch s {
	case StatusRegistrarApproved:
		return StageApproved
	case StatusRegistrarRejected:
		return StageRejected
	default:
		return StagePending
	}
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile overwrites the derived fields of r from its status. When the
// owner is known and escalated, undecided requests read back as awaiting
// the principal rather than showing a blank or HOD-stage detail.
func Reconcile(r *LeaveRequest, owner *User) {
	r.HODStatus = HODStage(r.Status)
	r.RegistrarStatus = RegistrarStage(r.Status)

	if owner != nil && owner.Escalated() && r.Status.Undecided() && r.StatusDetail != DetailEmergencyAllowed && r.StatusDetail != DetailPrincipalEmergency {
		r.StatusDetail = DetailPendingByPrincipal
	}
}

// =============================================================================
// DISPLAY LABEL
// =============================================================================

// principalAuthored reports whether detail is one of the glyph-prefixed
// labels the principal writes. Those represent an escalation outcome and
// beat the combined stage badge.
func principalAuthored(detail string) bool {
	switch detail {
	case DetailPrincipalApproved, DetailPrincipalRejected, DetailPrincipalEmergency:
		return true
	}
	return false
}

// DisplayLabel composes the combined status badge shown for a request.
// Until the HOD stage approves there is nothing to say about the registrar
// stage, so only the HOD line shows; afterwards both lines show.
func DisplayLabel(r *LeaveRequest) string {
	if principalAuthored(r.StatusDetail) {
		return r.StatusDetail
	}

	hod := HODStage(r.Status)
	if hod != StageApproved {
		return "HOD: " + stageLabel(hod)
	}
	return "HOD: " + stageLabel(hod) + " | Registrar: " + stageLabel(RegistrarStage(r.Status))
}

func stageLabel(s StageStatus) string {
	switch s {
	case StageApproved:
		return "Approved"
	case StageRejected:
		return "Rejected"
	default:
		return "Pending"
	}
}
