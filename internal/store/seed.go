package store

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/go-extras/go-kit/must"
	"gopkg.in/yaml.v3"

	"github.com/roach88/medtrack/internal/record"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedData is the set of rows inserted into a fresh store.
type SeedData struct {
	Users       []SeedUser       `yaml:"users"`
	Medications []SeedMedication `yaml:"medications"`
}

// SeedUser carries a plaintext password that is hashed at seed time.
type SeedUser struct {
	ID        string `yaml:"id"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
	Role      string `yaml:"role"`
	Password  string `yaml:"password"`
}

// SeedMedication is a default medication. Taken rows get lastTaken = seed time.
type SeedMedication struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Dosage    string `yaml:"dosage"`
	Frequency string `yaml:"frequency"`
	PatientID string `yaml:"patientId"`
	Taken     bool   `yaml:"taken"`
}

// PasswordHasher hashes seed passwords before they reach a store.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// DefaultSeed returns the built-in rows: one patient, one caretaker, and four
// medications owned by the patient.
func DefaultSeed() *SeedData {
	return must.Must(parseSeed(seedYAML))
}

// LoadSeed reads seed rows from a YAML file.
func LoadSeed(path string) (*SeedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) (*SeedData, error) {
	var sd SeedData
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sd); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := sd.Validate(); err != nil {
		return nil, err
	}
	return &sd, nil
}

// Validate checks that every row is complete and that medications reference
// seeded patients.
func (sd *SeedData) Validate() error {
	users := make(map[string]bool, len(sd.Users))
	for i, u := range sd.Users {
		if u.ID == "" || u.Email == "" || u.Password == "" {
			return fmt.Errorf("seed user %d: id, email and password are required", i)
		}
		if _, err := record.ParseRole(u.Role); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		users[u.ID] = true
	}
	for _, m := range sd.Medications {
		if m.ID == "" || m.Name == "" {
			return fmt.Errorf("seed medication: id and name are required")
		}
		if !users[m.PatientID] {
			return fmt.Errorf("seed medication %s: unknown patient %q", m.ID, m.PatientID)
		}
	}
	return nil
}

// Seed inserts sd into st, skipping rows that already exist. Existing rows are
// never reset, so repeated startups keep the taken state users have recorded.
// Passwords are only hashed for users that are actually missing.
func Seed(ctx context.Context, st RecordStore, sd *SeedData, hasher PasswordHasher, now time.Time) error {
	var users []record.User
	for _, su := range sd.Users {
		_, err := st.GetUserByID(ctx, su.ID)
		if err == nil {
			continue
		}
		if !record.IsNotFound(err) {
			return fmt.Errorf("seed: %w", err)
		}

		role, err := record.ParseRole(su.Role)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		hash, err := hasher.Hash(su.Password)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		users = append(users, record.User{
			ID:           su.ID,
			Email:        record.NormalizeEmail(su.Email),
			FirstName:    su.FirstName,
			LastName:     su.LastName,
			Role:         role,
			PasswordHash: hash,
		})
	}

	now = now.UTC()
	meds := make([]record.Medication, 0, len(sd.Medications))
	for _, sm := range sd.Medications {
		m := record.Medication{
			ID:        sm.ID,
			Name:      sm.Name,
			Dosage:    sm.Dosage,
			Frequency: sm.Frequency,
			PatientID: sm.PatientID,
			CreatedAt: now,
			Taken:     sm.Taken,
		}
		if sm.Taken {
			lastTaken := now
			m.LastTaken = &lastTaken
		}
		meds = append(meds, m)
	}

	if err := st.InsertSeed(ctx, users, meds); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
