package store

import (
	"context"
	"time"

	"github.com/roach88/medtrack/internal/record"
)

// UserStore is the user half of the record store.
type UserStore interface {
	// GetUserByEmailAndRole returns the first user matching both fields.
	GetUserByEmailAndRole(ctx context.Context, email string, role record.Role) (record.User, error)

	GetUserByID(ctx context.Context, id string) (record.User, error)

	// ListUsersByRole returns users of one role in insertion order.
	ListUsersByRole(ctx context.Context, role record.Role) ([]record.User, error)

	// CreateUser assigns an identifier and persists u.
	CreateUser(ctx context.Context, u record.NewUser) (record.User, error)
}

// MedicationStore is the medication half of the record store.
type MedicationStore interface {
	// GetMedicationsByPatientID returns the patient's medications in insertion
	// order. Returns an empty slice, not nil, when there are none.
	GetMedicationsByPatientID(ctx context.Context, patientID string) ([]record.Medication, error)

	// AddMedication assigns an identifier and persists m.
	AddMedication(ctx context.Context, m record.NewMedication) (record.Medication, error)

	// UpdateMedicationTaken overwrites the taken flag and lastTaken (nil
	// clears it). Returns a NOT_FOUND error for unknown ids.
	UpdateMedicationTaken(ctx context.Context, id string, taken bool, lastTaken *time.Time) error
}

// Seeder inserts rows with caller-chosen identifiers. Rows whose id already
// exists are left untouched.
type Seeder interface {
	InsertSeed(ctx context.Context, users []record.User, meds []record.Medication) error
}

// RecordStore is the full persistence contract shared by every backing.
type RecordStore interface {
	UserStore
	MedicationStore
	Seeder
	Close() error
}

// FormatTime renders t for TEXT storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
