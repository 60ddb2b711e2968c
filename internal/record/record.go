package record

import (
	"fmt"
	"strings"
	"time"
)

// Role distinguishes the two kinds of account.
type Role string

const (
	RolePatient   Role = "patient"
	RoleCaretaker Role = "caretaker"
)

// Roles lists the valid roles in display order.
var Roles = []Role{RolePatient, RoleCaretaker}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleCaretaker
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a user-supplied string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", &Error{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("invalid role %q: must be one of %v", s, Roles),
		}
	}
	return r, nil
}

// User is a stored account. PasswordHash is persisted by stores but never
// rendered in JSON output.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"-"`
}

// FullName returns "First Last".
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NewUser is a user that has not been assigned an identifier yet.
type NewUser struct {
	Email        string
	FirstName    string
	LastName     string
	Role         Role
	PasswordHash string
}

// WithID returns the stored form of u.
func (u NewUser) WithID(id string) User {
	return User{
		ID:           id,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
	}
}

// Medication is a single medication owned by a patient.
//
// LastTaken is nil until Taken has been set true at least once. PhotoProof is
// carried for completeness; nothing in the system writes it.
type Medication struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Dosage     string     `json:"dosage"`
	Frequency  string     `json:"frequency"`
	PatientID  string     `json:"patientId"`
	CreatedAt  time.Time  `json:"createdAt"`
	Taken      bool       `json:"taken"`
	LastTaken  *time.Time `json:"lastTaken,omitempty"`
	PhotoProof string     `json:"photoProof,omitempty"`
}

// NewMedication is a medication that has not been assigned an identifier yet.
type NewMedication struct {
	Name       string
	Dosage     string
	Frequency  string
	PatientID  string
	CreatedAt  time.Time
	Taken      bool
	LastTaken  *time.Time
	PhotoProof string
}

// WithID returns the stored form of m.
func (m NewMedication) WithID(id string) Medication {
	return Medication{
		ID:         id,
		Name:       m.Name,
		Dosage:     m.Dosage,
		Frequency:  m.Frequency,
		PatientID:  m.PatientID,
		CreatedAt:  m.CreatedAt,
		Taken:      m.Taken,
		LastTaken:  m.LastTaken,
		PhotoProof: m.PhotoProof,
	}
}
