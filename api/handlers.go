/*
handlers.go - HTTP API handlers for the gate pass system

PURPOSE:
  Exposes the gate pass engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/register            Create account
    POST   /api/auth/login               Authenticate
    GET    /api/auth/me                  Current user profile

  Requests:
    POST   /api/requests                 Submit gate pass request
    GET    /api/requests/mine            Own requests (faculty/admin)
    GET    /api/requests/{id}           Single request

  Review queues:
    GET    /api/admin/requests           Department queue (admin)
    PUT    /api/admin/requests/{id}/status
    GET    /api/principal/requests       Escalated queue (principal)
    PUT    /api/principal/requests/{id}/status
    GET    /api/registrar/requests       Registrar queue
    PUT    /api/registrar/requests/{id}/status

  Gate control:
    GET    /api/viewer/requests          All requests (viewer)
    GET    /api/viewer/allowed           Allowed-through requests
    POST   /api/viewer/requests/{id}/allow
    POST   /api/viewer/requests/{id}/return

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: Domain workflow (submission, transitions, gate marks)
  - Users: Account directory and credential storage
  - JWTSecret/TokenTTL: Session token parameters

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator tags on DTOs)
  3. Call domain logic
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, quota, wrong-state decisions, bad targets
  - 401: Missing or invalid token
  - 403: Role not authorized for the transition
  - 404: Request or user not found
  - 409: Concurrent decision lost the race
  - 503: Storage unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Token middleware and account handlers
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/campusgate/gatepass-engine/gatepass"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// UserStore is the account storage the API layer needs beyond the domain
// Directory: credential lookup and the singleton checks registration makes.
type UserStore interface {
	User(ctx context.Context, id gatepass.UserID) (*gatepass.User, error)
	UserByEmail(ctx context.Context, email string) (*gatepass.User, error)
	UsersByRole(ctx context.Context, role gatepass.Role) ([]*gatepass.User, error)
	AdminInDepartment(ctx context.Context, department string) (*gatepass.User, error)
	HODInDepartment(ctx context.Context, department string) (*gatepass.User, error)
	SaveUser(ctx context.Context, u *gatepass.User) error
	UpdatePassword(ctx context.Context, id gatepass.UserID, passwordHash string) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *gatepass.Service
	Users   UserStore

	JWTSecret []byte
	TokenTTL  time.Duration

	Log *log.Logger
}

// NewHandler creates a handler with the given dependencies.
func NewHandler(svc *gatepass.Service, users UserStore, jwtSecret []byte, tokenTTL time.Duration, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		Service:   svc,
		Users:     users,
		JWTSecret: jwtSecret,
		TokenTTL:  tokenTTL,
		Log:       logger,
	}
}

// =============================================================================
// REQUEST LIFECYCLE HANDLERS
// =============================================================================

// SubmitRequest creates a new gate pass request.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var req SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	facultyID := actor.ID
	if req.FacultyID != "" {
		id, err := gatepass.ParseUserID(req.FacultyID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid faculty id", err)
			return
		}
		facultyID = id
	}

	created, err := h.Service.Submit(r.Context(), actor, gatepass.SubmitInput{
		FacultyID: facultyID,
		Date:      req.Date,
		TimeOut:   req.TimeOut,
		TimeIn:    req.TimeIn,
		Purpose:   req.Purpose,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to submit request", err)
		return
	}

	h.Log.Info("request submitted", "request", created.ID, "faculty", created.FacultyID, "purpose", created.Purpose)
	writeJSON(w, http.StatusCreated, h.toRequestDTO(r.Context(), created))
}

// GetRequest returns a single request by id.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := gatepass.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id", err)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	rec, err := h.Service.GetFor(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, "Failed to load request", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toRequestDTO(r.Context(), rec))
}

// ListMine returns the caller's own requests. Scoped by the actor's id, not
// their review queue: an admin's queue excludes their own submissions.
// GET /api/requests/mine
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	h.listForActor(w, r, withOwnOnly)
}

// ListQueue returns the requests visible to the caller's review role.
// GET /api/admin/requests, /api/principal/requests, /api/registrar/requests,
// /api/viewer/requests
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	h.listForActor(w, r)
}

// ListAllowed returns allowed-through requests for the gate return view.
// GET /api/viewer/allowed
func (h *Handler) ListAllowed(w http.ResponseWriter, r *http.Request) {
	h.listForActor(w, r, withAllowedOnly)
}

type listOption func(*gatepass.ListFilter)

func withAllowedOnly(f *gatepass.ListFilter) { f.AllowedOnly = true }
func withOwnOnly(f *gatepass.ListFilter)     { f.OwnOnly = true }

func (h *Handler) listForActor(w http.ResponseWriter, r *http.Request, opts ...listOption) {
	actor, _ := ActorFromContext(r.Context())

	q := r.URL.Query()
	filter := gatepass.ListFilter{
		Date:               q.Get("date"),
		FacultyNameOrEmail: q.Get("q"),
		StatusTab:          q.Get("status"),
	}
	for _, opt := range opts {
		opt(&filter)
	}

	list, err := h.Service.ListFor(r.Context(), actor, filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list requests", err)
		return
	}

	dtos := make([]RequestDTO, len(list.Requests))
	names := h.nameCache(r.Context(), list.Requests)
	for i, rec := range list.Requests {
		dtos[i] = toRequestDTOWith(rec, names[rec.FacultyID])
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Requests: dtos,
		Counts: CountsDTO{
			Total:    list.Counts.Total,
			Pending:  list.Counts.Pending,
			Approved: list.Counts.Approved,
			Rejected: list.Counts.Rejected,
		},
	})
}

// UpdateStatus applies an approval decision to a request.
// PUT /api/admin/requests/{id}/status (and principal/registrar variants)
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	id, err := gatepass.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id", err)
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid decision", err)
		return
	}

	updated, err := h.Service.Transition(r.Context(), actor, id, gatepass.Status(req.Status))
	if err != nil {
		h.writeDomainError(w, "Failed to update request", err)
		return
	}

	h.Log.Info("request decided", "request", updated.ID, "by", actor.Role, "status", updated.Status)
	writeJSON(w, http.StatusOK, h.toRequestDTO(r.Context(), updated))
}

// AllowRequest marks a request as let through the gate.
// POST /api/viewer/requests/{id}/allow
func (h *Handler) AllowRequest(w http.ResponseWriter, r *http.Request) {
	h.gateMark(w, r, h.Service.MarkAllowed, "request allowed through gate")
}

// ReturnRequest marks a previously allowed faculty member as returned.
// POST /api/viewer/requests/{id}/return
func (h *Handler) ReturnRequest(w http.ResponseWriter, r *http.Request) {
	h.gateMark(w, r, h.Service.MarkReturned, "faculty marked returned")
}

func (h *Handler) gateMark(
	w http.ResponseWriter, r *http.Request,
	op func(context.Context, gatepass.Actor, gatepass.RequestID) (*gatepass.LeaveRequest, error),
	event string,
) {
	actor, _ := ActorFromContext(r.Context())

	id, err := gatepass.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id", err)
		return
	}

	updated, err := op(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, "Failed to update gate record", err)
		return
	}

	h.Log.Info(event, "request", updated.ID, "viewer", actor.ID)
	writeJSON(w, http.StatusOK, h.toRequestDTO(r.Context(), updated))
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

func (h *Handler) toRequestDTO(ctx context.Context, rec *gatepass.LeaveRequest) RequestDTO {
	var owner *gatepass.User
	if u, err := h.Users.User(ctx, rec.FacultyID); err == nil {
		owner = u
	}
	return toRequestDTOWith(rec, owner)
}

// nameCache resolves each distinct owner once for a listing.
func (h *Handler) nameCache(ctx context.Context, recs []*gatepass.LeaveRequest) map[gatepass.UserID]*gatepass.User {
	out := make(map[gatepass.UserID]*gatepass.User)
	for _, rec := range recs {
		if _, seen := out[rec.FacultyID]; seen {
			continue
		}
		u, err := h.Users.User(ctx, rec.FacultyID)
		if err != nil {
			out[rec.FacultyID] = nil
			continue
		}
		out[rec.FacultyID] = u
	}
	return out
}

func toRequestDTOWith(rec *gatepass.LeaveRequest, owner *gatepass.User) RequestDTO {
	dto := RequestDTO{
		ID:              string(rec.ID),
		FacultyID:       string(rec.FacultyID),
		FacultyEmail:    rec.FacultyEmail,
		Date:            rec.Date,
		TimeOut:         rec.TimeOut,
		TimeIn:          rec.TimeIn,
		Purpose:         rec.Purpose,
		Reason:          rec.Reason,
		Status:          string(rec.Status),
		StatusDetail:    rec.StatusDetail,
		HODStatus:       string(rec.HODStatus),
		RegistrarStatus: string(rec.RegistrarStatus),
		DisplayLabel:    gatepass.DisplayLabel(rec),
		Allowed:         rec.Allowed,
		AllowedAt:       rec.AllowedAt,
		Returned:        rec.Returned,
		ReturnedAt:      rec.ReturnedAt,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.AllowedBy != nil {
		dto.AllowedBy = strPtr(string(*rec.AllowedBy))
	}
	if rec.ReturnedBy != nil {
		dto.ReturnedBy = strPtr(string(*rec.ReturnedBy))
	}
	if owner != nil {
		dto.FacultyName = owner.Name
		dto.Department = owner.Department
	}
	return dto
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError translates domain errors into HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var policyErr *gatepass.PolicyViolationError

	switch {
	case errors.As(err, &policyErr) && policyErr.BadTarget:
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, gatepass.ErrPolicyViolation):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, gatepass.ErrValidation),
		errors.Is(err, gatepass.ErrQuotaExceeded),
		errors.Is(err, gatepass.ErrInvalidPrecondition):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, gatepass.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, gatepass.ErrConcurrentModification):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, gatepass.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.Log.Error("internal error", "err", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func strPtr(s string) *string {
	return &s
}
