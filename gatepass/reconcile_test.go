package gatepass_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campusgate/gatepass-engine/gatepass"
)

// =============================================================================
// STAGE DERIVATION TESTS
// =============================================================================

func TestStageDerivation(t *testing.T) {
	// The per-stage fields are pure functions of the authoritative status.
	cases := []struct {
		status    gatepass.Status
		hod       gatepass.StageStatus
		registrar gatepass.StageStatus
	}{
		{gatepass.StatusPending, gatepass.StagePending, gatepass.StagePending},
		{gatepass.StatusPendingEmergency, gatepass.StagePending, gatepass.StagePending},
		{gatepass.StatusApproved, gatepass.StageApproved, gatepass.StagePending},
		{gatepass.StatusRejected, gatepass.StageRejected, gatepass.StagePending},
		{gatepass.StatusRegistrarApproved, gatepass.StageApproved, gatepass.StageApproved},
		{gatepass.StatusRegistrarRejected, gatepass.StageApproved, gatepass.StageRejected},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.hod, gatepass.HODStage(tc.status), "hod stage for %s", tc.status)
		assert.Equal(t, tc.registrar, gatepass.RegistrarStage(tc.status), "registrar stage for %s", tc.status)
	}
}

func TestReconcile_OverwritesStaleStageFields(t *testing.T) {
	// GIVEN: A record whose stored stage fields contradict its status
	// WHEN: Reconciling
	// THEN: The stage fields are recomputed from the status

	r := &gatepass.LeaveRequest{
		Status:          gatepass.StatusRegistrarApproved,
		HODStatus:       gatepass.StagePending,
		RegistrarStatus: gatepass.StageRejected,
	}

	gatepass.Reconcile(r, nil)

	assert.Equal(t, gatepass.StageApproved, r.HODStatus)
	assert.Equal(t, gatepass.StageApproved, r.RegistrarStatus)
}

func TestReconcile_EscalatedOwnerPendingDetail(t *testing.T) {
	// GIVEN: An undecided request owned by an HOD-designated faculty member
	// WHEN: Reconciling with the owner known
	// THEN: The detail reads as awaiting the principal

	hod := &gatepass.User{Role: gatepass.RoleFaculty, Designation: gatepass.DesignationHOD}
	r := &gatepass.LeaveRequest{Status: gatepass.StatusPending}

	gatepass.Reconcile(r, hod)

	assert.Equal(t, gatepass.DetailPendingByPrincipal, r.StatusDetail)
}

func TestReconcile_PreservesEmergencyDetail(t *testing.T) {
	// GIVEN: An escalated owner's request already flagged emergency-allowed
	// WHEN: Reconciling
	// THEN: The emergency annotation survives; it is not replaced by the
	//       generic awaiting-principal detail

	admin := &gatepass.User{Role: gatepass.RoleAdmin}
	r := &gatepass.LeaveRequest{
		Status:       gatepass.StatusPendingEmergency,
		StatusDetail: gatepass.DetailEmergencyAllowed,
	}

	gatepass.Reconcile(r, admin)

	assert.Equal(t, gatepass.DetailEmergencyAllowed, r.StatusDetail)
}

func TestReconcile_OrdinaryOwnerDetailUntouched(t *testing.T) {
	faculty := &gatepass.User{Role: gatepass.RoleFaculty}
	r := &gatepass.LeaveRequest{Status: gatepass.StatusPending, StatusDetail: ""}

	gatepass.Reconcile(r, faculty)

	assert.Empty(t, r.StatusDetail)
}

// =============================================================================
// DISPLAY LABEL TESTS
// =============================================================================

func TestDisplayLabel(t *testing.T) {
	cases := []struct {
		name   string
		status gatepass.Status
		detail string
		want   string
	}{
		{"pending shows only hod line", gatepass.StatusPending, "", "HOD: Pending"},
		{"rejected shows only hod line", gatepass.StatusRejected, "", "HOD: Rejected"},
		{"hod approved shows both lines", gatepass.StatusApproved, "", "HOD: Approved | Registrar: Pending"},
		{"registrar approved", gatepass.StatusRegistrarApproved, gatepass.DetailRegistrarApproved, "HOD: Approved | Registrar: Approved"},
		{"registrar rejected", gatepass.StatusRegistrarRejected, gatepass.DetailRegistrarRejected, "HOD: Approved | Registrar: Rejected"},
		{"principal approval beats stage badge", gatepass.StatusApproved, gatepass.DetailPrincipalApproved, gatepass.DetailPrincipalApproved},
		{"principal rejection beats stage badge", gatepass.StatusRejected, gatepass.DetailPrincipalRejected, gatepass.DetailPrincipalRejected},
		{"principal emergency beats stage badge", gatepass.StatusPendingEmergency, gatepass.DetailPrincipalEmergency, gatepass.DetailPrincipalEmergency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &gatepass.LeaveRequest{Status: tc.status, StatusDetail: tc.detail}
			assert.Equal(t, tc.want, gatepass.DisplayLabel(r))
		})
	}
}
