// Package pgstore is a RecordStore backed by PostgreSQL through a pgx pool.
// Insertion order is tracked with a BIGSERIAL column on each table.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/medtrack/internal/idgen"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQL error codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store is the PostgreSQL-backed RecordStore.
type Store struct {
	db  *pgxpool.Pool
	ids idgen.Generator
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

// Open connects to databaseURL, verifies the connection, and creates the
// tables if they are absent.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: pool, ids: idgen.UUIDv7{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const userColumns = `id, email, first_name, last_name, role, password`

func (s *Store) GetUserByEmailAndRole(ctx context.Context, email string, role record.Role) (record.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 AND role = $2
		ORDER BY seq ASC
		LIMIT 1
	`, email, string(role))

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.User{}, record.NotFound("user", email+"/"+string(role))
	}
	if err != nil {
		return record.User{}, fmt.Errorf("get user by email and role: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (record.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.User{}, record.NotFound("user", id)
	}
	if err != nil {
		return record.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsersByRole(ctx context.Context, role record.Role) ([]record.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1
		ORDER BY seq ASC
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []record.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, nu record.NewUser) (record.User, error) {
	u := nu.WithID(s.ids.Generate())

	_, err := s.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.FirstName, u.LastName, string(u.Role), u.PasswordHash)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return record.User{}, record.AlreadyExists("user", u.Email+"/"+string(u.Role))
		}
		return record.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

const medicationColumns = `id, name, dosage, frequency, patient_id, created_at, taken, last_taken, photo_proof`

func (s *Store) GetMedicationsByPatientID(ctx context.Context, patientID string) ([]record.Medication, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE patient_id = $1
		ORDER BY seq ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	meds := []record.Medication{}
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medications: %w", err)
	}
	return meds, nil
}

func (s *Store) AddMedication(ctx context.Context, nm record.NewMedication) (record.Medication, error) {
	m := nm.WithID(s.ids.Generate())

	_, err := s.db.Exec(ctx, `
		INSERT INTO medications (`+medicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, medicationArgs(m)...)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return record.Medication{}, record.NotFound("user", m.PatientID)
		}
		return record.Medication{}, fmt.Errorf("add medication: %w", err)
	}
	return m, nil
}

func (s *Store) UpdateMedicationTaken(ctx context.Context, id string, taken bool, lastTaken *time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE medications
		SET taken = $1, last_taken = $2
		WHERE id = $3
	`, taken, lastTaken, id)
	if err != nil {
		return fmt.Errorf("update medication taken: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.NotFound("medication", id)
	}
	return nil
}

func (s *Store) InsertSeed(ctx context.Context, users []record.User, meds []record.Medication) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("insert seed: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	for _, u := range users {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (`+userColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING
		`, u.ID, u.Email, u.FirstName, u.LastName, string(u.Role), u.PasswordHash)
		if err != nil {
			return fmt.Errorf("insert seed user %s: %w", u.ID, err)
		}
	}
	for _, m := range meds {
		_, err := tx.Exec(ctx, `
			INSERT INTO medications (`+medicationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, medicationArgs(m)...)
		if err != nil {
			return fmt.Errorf("insert seed medication %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("insert seed: commit: %w", err)
	}
	return nil
}

func medicationArgs(m record.Medication) []any {
	var photo *string
	if m.PhotoProof != "" {
		photo = &m.PhotoProof
	}
	return []any{m.ID, m.Name, m.Dosage, m.Frequency, m.PatientID, m.CreatedAt.UTC(), m.Taken, m.LastTaken, photo}
}

func scanUser(row pgx.Row) (record.User, error) {
	var u record.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role, &u.PasswordHash); err != nil {
		return record.User{}, err
	}
	u.Role = record.Role(role)
	return u, nil
}

func scanMedication(row pgx.Row) (record.Medication, error) {
	var (
		m     record.Medication
		photo *string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Dosage, &m.Frequency, &m.PatientID,
		&m.CreatedAt, &m.Taken, &m.LastTaken, &photo)
	if err != nil {
		return record.Medication{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if m.LastTaken != nil {
		t := m.LastTaken.UTC()
		m.LastTaken = &t
	}
	if photo != nil {
		m.PhotoProof = *photo
	}
	return m, nil
}
