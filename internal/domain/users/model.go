package users

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthstore/healthstore/internal/platform/auth"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           auth.Role `json:"role"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	Specialization string    `json:"specialization,omitempty"`
	LicenseNumber  string    `json:"licenseNumber,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Input is the payload of create and update; nil fields are left unchanged.
type Input struct {
	Name           *string    `json:"name"`
	Email          *string    `json:"email"`
	Role           *auth.Role `json:"role"`
	Phone          *string    `json:"phone"`
	Address        *string    `json:"address"`
	Specialization *string    `json:"specialization"`
	LicenseNumber  *string    `json:"licenseNumber"`
	IsActive       *bool      `json:"isActive"`
}

func trimmed(p *string) string { return strings.TrimSpace(*p) }

func (in Input) apply(u *User) {
	if in.Name != nil {
		u.Name = trimmed(in.Name)
	}
	if in.Email != nil {
		u.Email = NormalizeEmail(*in.Email)
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Phone != nil {
		u.Phone = trimmed(in.Phone)
	}
	if in.Address != nil {
		u.Address = trimmed(in.Address)
	}
	if in.Specialization != nil {
		u.Specialization = trimmed(in.Specialization)
	}
	if in.LicenseNumber != nil {
		u.LicenseNumber = trimmed(in.LicenseNumber)
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

type ListFilter struct {
	Role   auth.Role
	Search string
	Limit  int
	Offset int
}
