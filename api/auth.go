/*
auth.go - Token-based authentication and account management

PURPOSE:
  Issues and verifies JWT bearer tokens, resolves the authenticated actor
  for downstream handlers, and implements registration/login.

TOKEN MODEL:
  HMAC-signed JWT carrying the user id and role. The role claim is a
  convenience for route gating; handlers that mutate state re-read the
  user record, so a stale role claim cannot widen authority beyond what
  the directory says.

REGISTRATION RULES:
  The institution runs exactly one principal and one registrar, and each
  department has at most one admin and one HOD-designated faculty member.
  Registration enforces those singletons up front so the approval chain
  never has two competing authorities for the same request.

SEE ALSO:
  - server.go: Where middleware is attached to route groups
  - handlers.go: Role-scoped request handlers
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusgate/gatepass-engine/gatepass"
)

// =============================================================================
// TOKENS
// =============================================================================

// Claims is the JWT payload for authenticated sessions.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type contextKey string

const actorKey contextKey = "actor"

// ActorFromContext returns the authenticated actor stored by the
// Authenticator middleware.
func ActorFromContext(ctx context.Context) (gatepass.Actor, bool) {
	a, ok := ctx.Value(actorKey).(gatepass.Actor)
	return a, ok
}

// IssueToken signs a session token for the given user.
func (h *Handler) IssueToken(u *gatepass.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

func (h *Handler) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticator rejects requests without a valid bearer token and stores
// the resolved actor in the request context.
func (h *Handler) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		claims, err := h.parseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
			return
		}

		id, err := gatepass.ParseUserID(claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token subject", nil)
			return
		}

		actor := gatepass.Actor{ID: id, Role: gatepass.Role(claims.Role)}
		if !actor.Role.Valid() {
			writeError(w, http.StatusUnauthorized, "Invalid token role", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// RequireRoles gates a route group to the given roles.
func RequireRoles(roles ...gatepass.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient role", nil)
		})
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// Register creates a new user account.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid registration", err)
		return
	}

	ctx := r.Context()
	role := gatepass.Role(req.Role)

	// Singleton roles: one principal and one registrar institution-wide,
	// one admin and one HOD per department.
	switch role {
	case gatepass.RolePrincipal, gatepass.RoleRegistrar:
		existing, err := h.Users.UsersByRole(ctx, role)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to check existing accounts", err)
			return
		}
		if len(existing) > 0 {
			writeError(w, http.StatusConflict, "An account with this role already exists", nil)
			return
		}
	case gatepass.RoleAdmin:
		if _, err := h.Users.AdminInDepartment(ctx, req.Department); err == nil {
			writeError(w, http.StatusConflict, "This department already has an admin", nil)
			return
		} else if !gatepass.IsNotFound(err) {
			writeError(w, http.StatusInternalServerError, "Failed to check existing accounts", err)
			return
		}
	}
	if role == gatepass.RoleFaculty && gatepass.Designation(req.Designation) == gatepass.DesignationHOD {
		if _, err := h.Users.HODInDepartment(ctx, req.Department); err == nil {
			writeError(w, http.StatusConflict, "This department already has an HOD", nil)
			return
		} else if !gatepass.IsNotFound(err) {
			writeError(w, http.StatusInternalServerError, "Failed to check existing accounts", err)
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password", err)
		return
	}

	user := &gatepass.User{
		ID:           gatepass.UserID(uuid.NewString()),
		Name:         req.Name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         role,
		EmployeeID:   req.EmployeeID,
		Designation:  gatepass.Designation(req.Designation),
		Department:   req.Department,
	}

	if err := h.Users.SaveUser(ctx, user); err != nil {
		if gatepass.IsClientError(err) {
			writeError(w, http.StatusConflict, "Email or employee id already registered", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}

	token, err := h.IssueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: toUserDTO(user)})
}

// Login authenticates a user and returns a session token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credentials", err)
		return
	}

	user, err := h.Users.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		// Same response for unknown email and bad password.
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}

	token, err := h.IssueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: toUserDTO(user)})
}

// Me returns the authenticated user's profile.
// GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	user, err := h.Users.User(r.Context(), actor.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// ChangePassword replaces the caller's password after verifying the current
// one. Tokens already issued stay valid until they expire.
// PUT /api/auth/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid password change", err)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	user, err := h.Users.User(r.Context(), actor.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found", err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password", err)
		return
	}
	if err := h.Users.UpdatePassword(r.Context(), user.ID, string(hash)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update password", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
