package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/medtrack/internal/record"
)

const userColumns = `id, email, firstName, lastName, role, password`

// GetUserByEmailAndRole returns the first user with the given email and role.
func (s *Store) GetUserByEmailAndRole(ctx context.Context, email string, role record.Role) (record.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = ? AND role = ?
		ORDER BY rowid ASC
		LIMIT 1
	`, email, string(role))

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.User{}, record.NotFound("user", email+"/"+string(role))
	}
	if err != nil {
		return record.User{}, fmt.Errorf("get user by email and role: %w", err)
	}
	return u, nil
}

// GetUserByID returns the user with the given identifier.
func (s *Store) GetUserByID(ctx context.Context, id string) (record.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = ?
	`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.User{}, record.NotFound("user", id)
	}
	if err != nil {
		return record.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// ListUsersByRole returns all users with the given role in insertion order.
func (s *Store) ListUsersByRole(ctx context.Context, role record.Role) ([]record.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = ?
		ORDER BY rowid ASC
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

// CreateUser inserts a new user. A duplicate (email, role) pair is rejected by
// the schema and reported as ALREADY_EXISTS.
func (s *Store) CreateUser(ctx context.Context, nu record.NewUser) (record.User, error) {
	u := nu.WithID(s.ids.Generate())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.FirstName, u.LastName, string(u.Role), u.PasswordHash)
	if err != nil {
		if constraintCode(err) == sqlite3.ErrConstraintUnique {
			return record.User{}, record.AlreadyExists("user", u.Email+"/"+string(u.Role))
		}
		return record.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// InsertSeed inserts users and medications in one transaction, skipping any
// row that conflicts with an existing one.
func (s *Store) InsertSeed(ctx context.Context, users []record.User, meds []record.Medication) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert seed: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, u := range users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (`+userColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, u.ID, u.Email, u.FirstName, u.LastName, string(u.Role), u.PasswordHash)
		if err != nil {
			return fmt.Errorf("insert seed user %s: %w", u.ID, err)
		}
	}

	for _, m := range meds {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO medications (`+medicationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, medicationArgs(m)...)
		if err != nil {
			return fmt.Errorf("insert seed medication %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert seed: commit: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (record.User, error) {
	var u record.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role, &u.PasswordHash); err != nil {
		return record.User{}, err
	}
	u.Role = record.Role(role)
	return u, nil
}
