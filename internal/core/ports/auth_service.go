package ports

import (
	"context"

	"github.com/forenvision/case-console/internal/core/domain"
)

// SignupRequest is the payload of POST /auth/signup.
type SignupRequest struct {
	Email             string `json:"email" validate:"required,email"`
	Password          string `json:"password" validate:"required,min=6"`
	Name              string `json:"name,omitempty"`
	ContactNumber     string `json:"contact_number,omitempty"`
	Role              string `json:"role" validate:"required,oneof=admin investigator"`
	Specialization    string `json:"specialization,omitempty"`
	YearsOfExperience *int   `json:"years_of_experience,omitempty"`
	Certification     string `json:"certification,omitempty"`
	Department        string `json:"department,omitempty"`
}

// SignupResult reports whether the new account awaits admin approval.
type SignupResult struct {
	Message          string           `json:"message"`
	RequiresApproval bool             `json:"requires_approval"`
	User             *domain.Identity `json:"user,omitempty"`
}

// AuthService drives the session lifecycle flows built on the core.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*domain.Identity, error)
	Signup(ctx context.Context, req SignupRequest) (*SignupResult, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (*domain.Identity, error)
	UpdateProfile(ctx context.Context, fields map[string]any) (*domain.Identity, error)
	SetAvailability(ctx context.Context, available bool) (*domain.Identity, error)
}
