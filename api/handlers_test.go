package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/gatepass-engine/api"
	"github.com/campusgate/gatepass-engine/gatepass"
	"github.com/campusgate/gatepass-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard)
	service := gatepass.NewService(store, store, 2)
	handler := api.NewHandler(service, store, []byte("test-secret"), time.Hour, logger)
	return api.NewRouter(handler, []string{"*"})
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

// register creates an account and returns its token and id.
func register(t *testing.T, router http.Handler, body api.RegisterRequest) (string, string) {
	t.Helper()
	rr := doJSON(t, router, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rr.Code, "register %s: %s", body.Email, rr.Body.String())
	auth := decode[api.AuthResponse](t, rr)
	return auth.Token, auth.User.ID
}

func facultyAccount(name, dept string) api.RegisterRequest {
	return api.RegisterRequest{
		Name: name, Email: name + "@college.edu", Password: "secret-pass",
		Role: "faculty", Department: dept, EmployeeID: "EMP-" + name,
	}
}

// campus registers the full cast of roles used by the workflow tests.
type campus struct {
	faculty, hod, admin, principal, registrar, viewer string // tokens
	facultyID                                         string
}

func newCampus(t *testing.T, router http.Handler) *campus {
	t.Helper()
	c := &campus{}
	c.faculty, c.facultyID = register(t, router, facultyAccount("asha", "CS"))
	c.hod, _ = register(t, router, api.RegisterRequest{
		Name: "prakash", Email: "prakash@college.edu", Password: "secret-pass",
		Role: "faculty", Department: "CS", Designation: "HOD", EmployeeID: "EMP-prakash",
	})
	c.admin, _ = register(t, router, api.RegisterRequest{
		Name: "csadmin", Email: "csadmin@college.edu", Password: "secret-pass",
		Role: "admin", Department: "CS",
	})
	c.principal, _ = register(t, router, api.RegisterRequest{
		Name: "principal", Email: "principal@college.edu", Password: "secret-pass", Role: "principal",
	})
	c.registrar, _ = register(t, router, api.RegisterRequest{
		Name: "registrar", Email: "registrar@college.edu", Password: "secret-pass", Role: "registrar",
	})
	c.viewer, _ = register(t, router, api.RegisterRequest{
		Name: "gate", Email: "gate@college.edu", Password: "secret-pass", Role: "viewer",
	})
	return c
}

func submitRequest(t *testing.T, router http.Handler, token, date, purpose string) api.RequestDTO {
	t.Helper()
	rr := doJSON(t, router, http.MethodPost, "/api/requests", token, api.SubmitRequestDTO{
		Date: date, TimeOut: "10:00", TimeIn: "12:30", Purpose: purpose, Reason: "department errand",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[api.RequestDTO](t, rr)
}

// =============================================================================
// AUTH TESTS
// =============================================================================

func TestRegisterAndLogin(t *testing.T) {
	router := newTestRouter(t)

	_, _ = register(t, router, facultyAccount("asha", "CS"))

	rr := doJSON(t, router, http.MethodPost, "/api/auth/login", "", api.LoginRequest{
		Email: "asha@college.edu", Password: "secret-pass",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	auth := decode[api.AuthResponse](t, rr)
	assert.NotEmpty(t, auth.Token)
	assert.Equal(t, "faculty", auth.User.Role)

	me := doJSON(t, router, http.MethodGet, "/api/auth/me", auth.Token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "asha@college.edu", decode[api.UserDTO](t, me).Email)
}

func TestLogin_BadCredentials(t *testing.T) {
	router := newTestRouter(t)
	_, _ = register(t, router, facultyAccount("asha", "CS"))

	rr := doJSON(t, router, http.MethodPost, "/api/auth/login", "", api.LoginRequest{
		Email: "asha@college.edu", Password: "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/auth/login", "", api.LoginRequest{
		Email: "nobody@college.edu", Password: "secret-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestChangePassword(t *testing.T) {
	router := newTestRouter(t)
	token, _ := register(t, router, facultyAccount("asha", "CS"))

	// Wrong current password.
	rr := doJSON(t, router, http.MethodPut, "/api/auth/password", token, api.ChangePasswordRequest{
		CurrentPassword: "wrong-pass", NewPassword: "rotated-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/api/auth/password", token, api.ChangePasswordRequest{
		CurrentPassword: "secret-pass", NewPassword: "rotated-pass",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Old password no longer works, the new one does.
	rr = doJSON(t, router, http.MethodPost, "/api/auth/login", "", api.LoginRequest{
		Email: "asha@college.edu", Password: "secret-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = doJSON(t, router, http.MethodPost, "/api/auth/login", "", api.LoginRequest{
		Email: "asha@college.edu", Password: "rotated-pass",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	router := newTestRouter(t)
	_, _ = register(t, router, facultyAccount("asha", "CS"))

	dup := facultyAccount("asha", "CS")
	dup.EmployeeID = "EMP-other"
	rr := doJSON(t, router, http.MethodPost, "/api/auth/register", "", dup)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRegister_SingletonRoles(t *testing.T) {
	// GIVEN: A campus with a principal, a registrar, a CS admin and a CS HOD
	// WHEN: A second account is registered for each singleton position
	// THEN: Every one conflicts

	router := newTestRouter(t)
	_ = newCampus(t, router)

	cases := []api.RegisterRequest{
		{Name: "p2", Email: "p2@college.edu", Password: "secret-pass", Role: "principal"},
		{Name: "r2", Email: "r2@college.edu", Password: "secret-pass", Role: "registrar"},
		{Name: "a2", Email: "a2@college.edu", Password: "secret-pass", Role: "admin", Department: "CS"},
		{Name: "h2", Email: "h2@college.edu", Password: "secret-pass",
			Role: "faculty", Department: "CS", Designation: "HOD", EmployeeID: "EMP-h2"},
	}
	for _, body := range cases {
		rr := doJSON(t, router, http.MethodPost, "/api/auth/register", "", body)
		assert.Equal(t, http.StatusConflict, rr.Code, "role %s: %s", body.Role, rr.Body.String())
	}

	// A second admin in a different department is fine.
	rr := doJSON(t, router, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Name: "eeadmin", Email: "eeadmin@college.edu", Password: "secret-pass",
		Role: "admin", Department: "EE",
	})
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestRegister_Validation(t *testing.T) {
	router := newTestRouter(t)

	// Faculty without an employee id.
	rr := doJSON(t, router, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Name: "asha", Email: "asha@college.edu", Password: "secret-pass",
		Role: "faculty", Department: "CS",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Unknown role.
	rr = doJSON(t, router, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Name: "asha", Email: "asha@college.edu", Password: "secret-pass", Role: "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/requests/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/requests/mine", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoleGating(t *testing.T) {
	router := newTestRouter(t)
	c := newCampus(t, router)

	// Faculty cannot reach the review or gate routes.
	for _, path := range []string{"/api/admin/requests", "/api/principal/requests",
		"/api/registrar/requests", "/api/viewer/requests"} {
		rr := doJSON(t, router, http.MethodGet, path, c.faculty, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code, path)
	}

	// The viewer cannot submit.
	rr := doJSON(t, router, http.MethodPost, "/api/requests", c.viewer, api.SubmitRequestDTO{
		Date: "2024-05-10", TimeOut: "10:00", TimeIn: "12:30", Purpose: "Official", Reason: "errand",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

// =============================================================================
// WORKFLOW TESTS
// =============================================================================

func TestWorkflow_FullApprovalChain(t *testing.T) {
	// GIVEN: A faculty request
	// WHEN: Admin approves, registrar approves, viewer records exit and
	//       return
	// THEN: Every step succeeds and the record reflects the full chain

	router := newTestRouter(t)
	c := newCampus(t, router)

	req := submitRequest(t, router, c.faculty, "2024-05-10", "Official")
	assert.Equal(t, "pending", req.Status)
	assert.Equal(t, "HOD: Pending", req.DisplayLabel)

	rr := doJSON(t, router, http.MethodPut, "/api/admin/requests/"+req.ID+"/status", c.admin,
		api.DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "HOD: Approved | Registrar: Pending", decode[api.RequestDTO](t, rr).DisplayLabel)

	rr = doJSON(t, router, http.MethodPut, "/api/registrar/requests/"+req.ID+"/status", c.registrar,
		api.DecisionRequest{Status: "registrar_approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	final := decode[api.RequestDTO](t, rr)
	assert.Equal(t, "registrar_approved", final.Status)
	assert.Equal(t, "HOD: Approved | Registrar: Approved", final.DisplayLabel)

	rr = doJSON(t, router, http.MethodPost, "/api/viewer/requests/"+req.ID+"/allow", c.viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	allowed := decode[api.RequestDTO](t, rr)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, "registrar_approved", allowed.Status)

	rr = doJSON(t, router, http.MethodPost, "/api/viewer/requests/"+req.ID+"/return", c.viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[api.RequestDTO](t, rr).Returned)
}

func TestWorkflow_EscalatedOwner(t *testing.T) {
	// GIVEN: The CS HOD's own request
	// WHEN: The admin tries to decide it and the principal then approves
	// THEN: The admin is refused; the principal's glyph label lands

	router := newTestRouter(t)
	c := newCampus(t, router)

	req := submitRequest(t, router, c.hod, "2024-05-10", "Official")
	assert.Equal(t, "Pending By Principal", req.StatusDetail)

	rr := doJSON(t, router, http.MethodPut, "/api/admin/requests/"+req.ID+"/status", c.admin,
		api.DecisionRequest{Status: "approved"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/api/principal/requests/"+req.ID+"/status", c.principal,
		api.DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	approved := decode[api.RequestDTO](t, rr)
	assert.Equal(t, "✔️ Approved By Principal", approved.StatusDetail)

	// The registrar never finalizes escalated requests.
	rr = doJSON(t, router, http.MethodPut, "/api/registrar/requests/"+req.ID+"/status", c.registrar,
		api.DecisionRequest{Status: "registrar_approved"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestWorkflow_EmergencyAllow(t *testing.T) {
	router := newTestRouter(t)
	c := newCampus(t, router)

	req := submitRequest(t, router, c.faculty, "2024-05-10", "Official")

	rr := doJSON(t, router, http.MethodPost, "/api/viewer/requests/"+req.ID+"/allow", c.viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	allowed := decode[api.RequestDTO](t, rr)
	assert.Equal(t, "pending_emergency_allowed", allowed.Status)
	assert.Equal(t, "Pending - Allowed For Emergency", allowed.StatusDetail)

	// A second allow is a precondition failure, not a conflict.
	rr = doJSON(t, router, http.MethodPost, "/api/viewer/requests/"+req.ID+"/allow", c.viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWorkflow_ErrorMapping(t *testing.T) {
	router := newTestRouter(t)
	c := newCampus(t, router)

	req := submitRequest(t, router, c.faculty, "2024-05-10", "Official")

	// Registrar acting before the HOD stage: policy violation.
	rr := doJSON(t, router, http.MethodPut, "/api/registrar/requests/"+req.ID+"/status", c.registrar,
		api.DecisionRequest{Status: "registrar_approved"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Target outside the enumeration: request-shape problem.
	rr = doJSON(t, router, http.MethodPut, "/api/admin/requests/"+req.ID+"/status", c.admin,
		api.DecisionRequest{Status: "banana"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Malformed id.
	rr = doJSON(t, router, http.MethodPut, "/api/admin/requests/not-a-uuid/status", c.admin,
		api.DecisionRequest{Status: "approved"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Unknown id.
	rr = doJSON(t, router, http.MethodPut,
		"/api/admin/requests/00000000-0000-4000-8000-000000000000/status", c.admin,
		api.DecisionRequest{Status: "approved"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Return before any exit.
	rr = doJSON(t, router, http.MethodPost, "/api/viewer/requests/"+req.ID+"/return", c.viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWorkflow_PersonalQuota(t *testing.T) {
	router := newTestRouter(t)
	c := newCampus(t, router)

	submitRequest(t, router, c.faculty, "2024-05-03", "Personal")
	submitRequest(t, router, c.faculty, "2024-05-17", "Personal")

	rr := doJSON(t, router, http.MethodPost, "/api/requests", c.faculty, api.SubmitRequestDTO{
		Date: "2024-05-25", TimeOut: "10:00", TimeIn: "12:30", Purpose: "Personal", Reason: "errand",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	submitRequest(t, router, c.faculty, "2024-06-01", "Personal")
}

// =============================================================================
// LISTING TESTS
// =============================================================================

func TestListing_QueuesAndCounts(t *testing.T) {
	router := newTestRouter(t)
	c := newCampus(t, router)

	pending := submitRequest(t, router, c.faculty, "2024-05-10", "Official")
	_ = submitRequest(t, router, c.hod, "2024-05-10", "Official")

	mine := doJSON(t, router, http.MethodGet, "/api/requests/mine", c.faculty, nil)
	require.Equal(t, http.StatusOK, mine.Code)
	list := decode[api.ListResponse](t, mine)
	require.Len(t, list.Requests, 1)
	assert.Equal(t, pending.ID, list.Requests[0].ID)
	assert.Equal(t, "asha", list.Requests[0].FacultyName)
	assert.Equal(t, api.CountsDTO{Total: 1, Pending: 1}, list.Counts)

	// The admin queue holds the ordinary request, not the HOD's own.
	adminList := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet, "/api/admin/requests", c.admin, nil))
	require.Len(t, adminList.Requests, 1)
	assert.Equal(t, pending.ID, adminList.Requests[0].ID)

	// The principal sees only the escalated one.
	principalList := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet, "/api/principal/requests", c.principal, nil))
	require.Len(t, principalList.Requests, 1)
	assert.Equal(t, "Pending By Principal", principalList.Requests[0].StatusDetail)

	// The viewer sees everything; the allowed view starts empty.
	viewerList := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet, "/api/viewer/requests", c.viewer, nil))
	assert.Len(t, viewerList.Requests, 2)
	allowedList := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet, "/api/viewer/allowed", c.viewer, nil))
	assert.Empty(t, allowedList.Requests)
}

func TestListing_AdminOwnRequests(t *testing.T) {
	// GIVEN: The CS admin submits their own request
	// WHEN: The admin reads /requests/mine and the request by id
	// THEN: Both return it, even though the admin review queue never will

	router := newTestRouter(t)
	c := newCampus(t, router)

	own := submitRequest(t, router, c.admin, "2024-05-10", "Official")
	_ = submitRequest(t, router, c.faculty, "2024-05-10", "Official")

	mine := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet, "/api/requests/mine", c.admin, nil))
	require.Len(t, mine.Requests, 1)
	assert.Equal(t, own.ID, mine.Requests[0].ID)

	rr := doJSON(t, router, http.MethodGet, "/api/requests/"+own.ID, c.admin, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, own.ID, decode[api.RequestDTO](t, rr).ID)

	queue := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet, "/api/admin/requests", c.admin, nil))
	for _, r := range queue.Requests {
		assert.NotEqual(t, own.ID, r.ID)
	}
}

func TestGetRequest_ScopedByRole(t *testing.T) {
	router := newTestRouter(t)
	c := newCampus(t, router)

	req := submitRequest(t, router, c.faculty, "2024-05-10", "Official")

	// The owner sees it; the registrar does not until HOD approval.
	rr := doJSON(t, router, http.MethodGet, "/api/requests/"+req.ID, c.faculty, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, http.MethodGet, "/api/requests/"+req.ID, c.registrar, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/api/admin/requests/"+req.ID+"/status", c.admin,
		api.DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, router, http.MethodGet, "/api/requests/"+req.ID, c.registrar, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestListing_Filters(t *testing.T) {
	router := newTestRouter(t)
	c := newCampus(t, router)

	submitRequest(t, router, c.faculty, "2024-05-10", "Official")
	submitRequest(t, router, c.faculty, "2024-05-11", "Official")

	byDate := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet,
		"/api/requests/mine?date=2024-05-11", c.faculty, nil))
	assert.Len(t, byDate.Requests, 1)

	byName := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet,
		"/api/viewer/requests?q=asha", c.viewer, nil))
	assert.Len(t, byName.Requests, 2)

	noMatch := decode[api.ListResponse](t, doJSON(t, router, http.MethodGet,
		"/api/viewer/requests?q=nobody", c.viewer, nil))
	assert.Empty(t, noMatch.Requests)
}
