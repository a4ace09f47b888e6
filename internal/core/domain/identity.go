package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Role names the coarse permission group of a user.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleInvestigator Role = "investigator"
)

// Entry points of the console navigation tree.
const (
	LoginPath            = "/login"
	AdminHomePath        = "/admin/dashboard"
	InvestigatorHomePath = "/investigator/dashboard"
	DefaultHomePath      = "/"
)

// Home returns the landing path of the role's own view tree.
func (r Role) Home() string {
	switch r {
	case RoleAdmin:
		return AdminHomePath
	case RoleInvestigator:
		return InvestigatorHomePath
	default:
		return DefaultHomePath
	}
}

// InvestigatorProfile carries the investigator-only fields returned at login.
type InvestigatorProfile struct {
	Specialization    string `json:"specialization,omitempty"`
	YearsOfExperience *int   `json:"years_of_experience,omitempty"`
	Certification     string `json:"certification,omitempty"`
	Department        string `json:"department,omitempty"`
	IsAvailable       *bool  `json:"is_available,omitempty"`
}

// Identity is the cached snapshot of the signed-in user.
//
// IsApproved is tri-state: nil means the account is still pending review.
type Identity struct {
	ID                  int64                `json:"id" validate:"required,gt=0"`
	Email               string               `json:"email,omitempty" validate:"omitempty,email"`
	Name                string               `json:"name,omitempty"`
	Role                Role                 `json:"role" validate:"required"`
	IsApproved          *bool                `json:"is_approved,omitempty"`
	ContactNumber       string               `json:"contact_number,omitempty"`
	ProfilePicture      string               `json:"profile_picture,omitempty"`
	InvestigatorProfile *InvestigatorProfile `json:"investigator_profile,omitempty"`
}

var identityValidator = validator.New()

// HasRole reports whether the identity belongs to one of roles.
func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a stored identity.
func (i *Identity) Validate() error {
	if i == nil {
		return ErrMalformedCredential
	}
	if err := identityValidator.Struct(i); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	return nil
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.IsApproved != nil {
		v := *i.IsApproved
		c.IsApproved = &v
	}
	if i.InvestigatorProfile != nil {
		p := *i.InvestigatorProfile
		if p.YearsOfExperience != nil {
			v := *p.YearsOfExperience
			p.YearsOfExperience = &v
		}
		if p.IsAvailable != nil {
			v := *p.IsAvailable
			p.IsAvailable = &v
		}
		c.InvestigatorProfile = &p
	}
	return &c
}

// ParseIdentity decodes and validates a persisted identity record.
// Any failure is reported as ErrMalformedCredential.
func ParseIdentity(raw []byte) (*Identity, error) {
	var ident Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if err := ident.Validate(); err != nil {
		return nil, err
	}
	return &ident, nil
}
