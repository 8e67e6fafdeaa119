/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  them through a shared validator instance before touching domain logic.
  Domain-level rules (quotas, transition authority) stay in the gatepass
  package.

SEE ALSO:
  - handlers.go: Uses these types
  - auth.go: Login/registration types
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/campusgate/gatepass-engine/gatepass"
)

// validate is shared by all handlers. validator instances cache struct
// metadata, so a single instance is the intended usage.
var validate = validator.New()

// =============================================================================
// AUTH TYPES
// =============================================================================

// RegisterRequest creates a new user account.
type RegisterRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	Role        string `json:"role" validate:"required,oneof=faculty admin viewer registrar principal"`
	Department  string `json:"department" validate:"required_unless=Role principal Role registrar Role viewer"`
	Designation string `json:"designation"`
	EmployeeID  string `json:"employeeId" validate:"required_if=Role faculty"`
}

// ChangePasswordRequest rotates the caller's own password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

// LoginRequest authenticates an existing user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned on successful login or registration.
type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// UserDTO represents a user in API responses. Password hashes never leave
// the server.
type UserDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
	EmployeeID  string `json:"employeeId,omitempty"`
}

func toUserDTO(u *gatepass.User) UserDTO {
	return UserDTO{
		ID:          string(u.ID),
		Name:        u.Name,
		Email:       u.Email,
		Role:        string(u.Role),
		Department:  u.Department,
		Designation: string(u.Designation),
		EmployeeID:  u.EmployeeID,
	}
}

// =============================================================================
// REQUEST LIFECYCLE TYPES
// =============================================================================

// SubmitRequestDTO is the body for creating a gate pass request.
type SubmitRequestDTO struct {
	// FacultyID is optional for faculty callers (defaults to the caller);
	// admins may submit on behalf of any faculty or admin account. The
	// department scope applies to decisions, not submissions.
	FacultyID string `json:"facultyId" validate:"omitempty,uuid4"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeOut   string `json:"timeOut" validate:"required"`
	TimeIn    string `json:"timeIn" validate:"required"`
	Purpose   string `json:"purpose" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// DecisionRequest carries an approval decision. Status is the target
// status the caller wants the request moved to.
type DecisionRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected registrar_approved registrar_rejected pending_emergency_allowed"`
}

// RequestDTO represents a gate pass request in API responses.
type RequestDTO struct {
	ID              string `json:"id"`
	FacultyID       string `json:"facultyId"`
	FacultyEmail    string `json:"facultyEmail,omitempty"`
	FacultyName     string `json:"facultyName,omitempty"`
	Department      string `json:"department,omitempty"`
	Date            string `json:"date"`
	TimeOut         string `json:"timeOut"`
	TimeIn          string `json:"timeIn"`
	Purpose         string `json:"purpose"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	StatusDetail    string `json:"statusDetail,omitempty"`
	HODStatus       string `json:"hodStatus"`
	RegistrarStatus string `json:"registrarStatus"`
	DisplayLabel    string `json:"displayLabel"`

	Allowed    bool       `json:"allowed"`
	AllowedBy  *string    `json:"allowedBy,omitempty"`
	AllowedAt  *time.Time `json:"allowedAt,omitempty"`
	Returned   bool       `json:"returned"`
	ReturnedBy *string    `json:"returnedBy,omitempty"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListResponse wraps a request listing with per-tab counts.
type ListResponse struct {
	Requests []RequestDTO `json:"requests"`
	Counts   CountsDTO    `json:"counts"`
}

// CountsDTO summarizes a listing for tab badges.
type CountsDTO struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// ErrorResponse is the JSON error envelope for all failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
