package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/medtrack/internal/record"
)

const medicationColumns = `id, name, dosage, frequency, patientId, createdAt, taken, lastTaken, photoProof`

// GetMedicationsByPatientID returns the patient's medications in insertion order.
func (s *Store) GetMedicationsByPatientID(ctx context.Context, patientID string) ([]record.Medication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE patientId = ?
		ORDER BY rowid ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query medications: %w", err)
	}
	defer rows.Close()

	meds := []record.Medication{}
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medications: %w", err)
	}
	return meds, nil
}

// AddMedication inserts a new medication. The owning user must exist.
func (s *Store) AddMedication(ctx context.Context, nm record.NewMedication) (record.Medication, error) {
	m := nm.WithID(s.ids.Generate())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medications (`+medicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, medicationArgs(m)...)
	if err != nil {
		if constraintCode(err) == sqlite3.ErrConstraintForeignKey {
			return record.Medication{}, record.NotFound("user", m.PatientID)
		}
		return record.Medication{}, fmt.Errorf("add medication: %w", err)
	}
	return m, nil
}

// UpdateMedicationTaken overwrites taken and lastTaken for one medication.
func (s *Store) UpdateMedicationTaken(ctx context.Context, id string, taken bool, lastTaken *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE medications
		SET taken = ?, lastTaken = ?
		WHERE id = ?
	`, boolToInt(taken), nullTime(lastTaken), id)
	if err != nil {
		return fmt.Errorf("update medication taken: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update medication taken: rows affected: %w", err)
	}
	if n == 0 {
		return record.NotFound("medication", id)
	}
	return nil
}

func medicationArgs(m record.Medication) []any {
	return []any{
		m.ID,
		m.Name,
		m.Dosage,
		m.Frequency,
		m.PatientID,
		FormatTime(m.CreatedAt),
		boolToInt(m.Taken),
		nullTime(m.LastTaken),
		sql.NullString{String: m.PhotoProof, Valid: m.PhotoProof != ""},
	}
}

func scanMedication(row rowScanner) (record.Medication, error) {
	var (
		m          record.Medication
		createdAt  string
		taken      int
		lastTaken  sql.NullString
		photoProof sql.NullString
	)
	err := row.Scan(&m.ID, &m.Name, &m.Dosage, &m.Frequency, &m.PatientID,
		&createdAt, &taken, &lastTaken, &photoProof)
	if err != nil {
		return record.Medication{}, fmt.Errorf("scan medication: %w", err)
	}

	m.CreatedAt, err = ParseTime(createdAt)
	if err != nil {
		return record.Medication{}, fmt.Errorf("scan medication %s: createdAt: %w", m.ID, err)
	}
	m.Taken = taken != 0
	if lastTaken.Valid {
		t, err := ParseTime(lastTaken.String)
		if err != nil {
			return record.Medication{}, fmt.Errorf("scan medication %s: lastTaken: %w", m.ID, err)
		}
		m.LastTaken = &t
	}
	m.PhotoProof = photoProof.String
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}
