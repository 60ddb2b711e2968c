// Package slotstore is a RecordStore that keeps both tables as in-process
// slices and writes the whole table to a key-value slot on every mutation.
//
// The slot layout is two keys, each holding a JSON array of flat records.
// CreateUser rejects a taken (email, role) pair under the store mutex, the
// same rule the SQL backings get from their UNIQUE constraint.
package slotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/roach88/medtrack/internal/idgen"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/store"
)

// Slot keys.
const (
	UsersKey       = "medication_app_users"
	MedicationsKey = "medication_app_medications"
)

type userRow struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash"`
}

type medicationRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	PatientID  string `json:"patientId"`
	CreatedAt  string `json:"createdAt"`
	Taken      int    `json:"taken"`
	LastTaken  string `json:"lastTaken,omitempty"`
	PhotoProof string `json:"photoProof,omitempty"`
}

// Store is the slot-backed RecordStore.
//
// Thread-safety: all methods are serialized by an internal mutex.
type Store struct {
	mu    sync.Mutex
	kv    KV
	ids   idgen.Generator
	users []userRow
	meds  []medicationRow
}

var _ store.RecordStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the default UUIDv7 identifier generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// Open rehydrates both tables from kv. Missing slots start empty.
func Open(ctx context.Context, kv KV, opts ...Option) (*Store, error) {
	s := &Store{kv: kv, ids: idgen.UUIDv7{}}
	for _, opt := range opts {
		opt(s)
	}

	if err := load(ctx, kv, UsersKey, &s.users); err != nil {
		return nil, err
	}
	if err := load(ctx, kv, MedicationsKey, &s.meds); err != nil {
		return nil, err
	}
	return s, nil
}

func load(ctx context.Context, kv KV, key string, dst any) error {
	data, ok, err := kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func save(ctx context.Context, kv KV, key string, rows any) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Close releases the slot holder if it owns resources.
func (s *Store) Close() error {
	if c, ok := s.kv.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// GetUserByEmailAndRole returns the first matching user.
func (s *Store) GetUserByEmailAndRole(_ context.Context, email string, role record.Role) (record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email && u.Role == string(role) {
			return u.toRecord(), nil
		}
	}
	return record.User{}, record.NotFound("user", email+"/"+string(role))
}

// GetUserByID returns the user with the given identifier.
func (s *Store) GetUserByID(_ context.Context, id string) (record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == id {
			return u.toRecord(), nil
		}
	}
	return record.User{}, record.NotFound("user", id)
}

// ListUsersByRole returns users of one role in insertion order.
func (s *Store) ListUsersByRole(_ context.Context, role record.Role) ([]record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := []record.User{}
	for _, u := range s.users {
		if u.Role == string(role) {
			users = append(users, u.toRecord())
		}
	}
	return users, nil
}

// CreateUser appends a user and persists the users slot. A taken (email, role)
// pair is rejected with ALREADY_EXISTS. On a failed write the in-memory table
// is left as it was.
func (s *Store) CreateUser(ctx context.Context, nu record.NewUser) (record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.users {
		if r.Email == nu.Email && r.Role == string(nu.Role) {
			return record.User{}, record.AlreadyExists("user", nu.Email+"/"+string(nu.Role))
		}
	}

	u := nu.WithID(s.ids.Generate())
	next := append(s.users[:len(s.users):len(s.users)], userRowFrom(u))
	if err := save(ctx, s.kv, UsersKey, next); err != nil {
		return record.User{}, fmt.Errorf("create user: %w", err)
	}
	s.users = next
	return u, nil
}

// GetMedicationsByPatientID returns the patient's medications in insertion order.
func (s *Store) GetMedicationsByPatientID(_ context.Context, patientID string) ([]record.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meds := []record.Medication{}
	for _, row := range s.meds {
		if row.PatientID != patientID {
			continue
		}
		m, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, nil
}

// AddMedication appends a medication and persists the medications slot.
func (s *Store) AddMedication(ctx context.Context, nm record.NewMedication) (record.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := nm.WithID(s.ids.Generate())
	next := append(s.meds[:len(s.meds):len(s.meds)], medicationRowFrom(m))
	if err := save(ctx, s.kv, MedicationsKey, next); err != nil {
		return record.Medication{}, fmt.Errorf("add medication: %w", err)
	}
	s.meds = next
	return m, nil
}

// UpdateMedicationTaken overwrites taken and lastTaken for one medication.
func (s *Store) UpdateMedicationTaken(ctx context.Context, id string, taken bool, lastTaken *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, row := range s.meds {
		if row.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return record.NotFound("medication", id)
	}

	next := make([]medicationRow, len(s.meds))
	copy(next, s.meds)
	next[idx].Taken = 0
	if taken {
		next[idx].Taken = 1
	}
	next[idx].LastTaken = ""
	if lastTaken != nil {
		next[idx].LastTaken = store.FormatTime(*lastTaken)
	}

	if err := save(ctx, s.kv, MedicationsKey, next); err != nil {
		return fmt.Errorf("update medication taken: %w", err)
	}
	s.meds = next
	return nil
}

// InsertSeed appends rows whose ids are not present yet.
func (s *Store) InsertSeed(ctx context.Context, users []record.User, meds []record.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextUsers := append([]userRow(nil), s.users...)
	for _, u := range users {
		if !hasUser(nextUsers, u.ID) {
			nextUsers = append(nextUsers, userRowFrom(u))
		}
	}
	nextMeds := append([]medicationRow(nil), s.meds...)
	for _, m := range meds {
		if !hasMedication(nextMeds, m.ID) {
			nextMeds = append(nextMeds, medicationRowFrom(m))
		}
	}

	if len(nextUsers) != len(s.users) {
		if err := save(ctx, s.kv, UsersKey, nextUsers); err != nil {
			return fmt.Errorf("insert seed: %w", err)
		}
		s.users = nextUsers
	}
	if len(nextMeds) != len(s.meds) {
		if err := save(ctx, s.kv, MedicationsKey, nextMeds); err != nil {
			return fmt.Errorf("insert seed: %w", err)
		}
		s.meds = nextMeds
	}
	return nil
}

func hasUser(rows []userRow, id string) bool {
	for _, r := range rows {
		if r.ID == id {
			return true
		}
	}
	return false
}

func hasMedication(rows []medicationRow, id string) bool {
	for _, r := range rows {
		if r.ID == id {
			return true
		}
	}
	return false
}

func userRowFrom(u record.User) userRow {
	return userRow{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         string(u.Role),
		PasswordHash: u.PasswordHash,
	}
}

func (r userRow) toRecord() record.User {
	return record.User{
		ID:           r.ID,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Role:         record.Role(r.Role),
		PasswordHash: r.PasswordHash,
	}
}

func medicationRowFrom(m record.Medication) medicationRow {
	row := medicationRow{
		ID:         m.ID,
		Name:       m.Name,
		Dosage:     m.Dosage,
		Frequency:  m.Frequency,
		PatientID:  m.PatientID,
		CreatedAt:  store.FormatTime(m.CreatedAt),
		PhotoProof: m.PhotoProof,
	}
	if m.Taken {
		row.Taken = 1
	}
	if m.LastTaken != nil {
		row.LastTaken = store.FormatTime(*m.LastTaken)
	}
	return row
}

func (r medicationRow) toRecord() (record.Medication, error) {
	createdAt, err := store.ParseTime(r.CreatedAt)
	if err != nil {
		return record.Medication{}, fmt.Errorf("medication %s: createdAt: %w", r.ID, err)
	}
	m := record.Medication{
		ID:         r.ID,
		Name:       r.Name,
		Dosage:     r.Dosage,
		Frequency:  r.Frequency,
		PatientID:  r.PatientID,
		CreatedAt:  createdAt,
		Taken:      r.Taken != 0,
		PhotoProof: r.PhotoProof,
	}
	if r.LastTaken != "" {
		t, err := store.ParseTime(r.LastTaken)
		if err != nil {
			return record.Medication{}, fmt.Errorf("medication %s: lastTaken: %w", r.ID, err)
		}
		m.LastTaken = &t
	}
	return m, nil
}
