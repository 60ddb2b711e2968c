package medication

import (
	"context"
	"fmt"

	"github.com/roach88/medtrack/internal/record"
)

// Badge grades a patient's adherence.
type Badge string

const (
	BadgeExcellent      Badge = "Excellent"
	BadgeGood           Badge = "Good"
	BadgeNeedsAttention Badge = "Needs Attention"
)

// BadgeFor grades an adherence percentage.
func BadgeFor(percentage int) Badge {
	switch {
	case percentage >= 90:
		return BadgeExcellent
	case percentage >= 70:
		return BadgeGood
	default:
		return BadgeNeedsAttention
	}
}

// PatientSummary is one row of the caretaker overview.
type PatientSummary struct {
	PatientID string                `json:"patientId"`
	Name      string                `json:"name"`
	Stats     record.AdherenceStats `json:"stats"`
	Missed    int                   `json:"missed"`
	Badge     Badge                 `json:"badge"`
}

// Overview summarizes adherence across every patient.
type Overview struct {
	Patients         []PatientSummary `json:"patients"`
	AverageAdherence int              `json:"averageAdherence"`
	TotalMissed      int              `json:"totalMissed"`
}

// OverviewStore is the subset of store.RecordStore BuildOverview needs.
type OverviewStore interface {
	ListUsersByRole(ctx context.Context, role record.Role) ([]record.User, error)
	GetMedicationsByPatientID(ctx context.Context, patientID string) ([]record.Medication, error)
}

// BuildOverview reads every patient's medications from st. Missed counts
// medications not currently marked taken.
func BuildOverview(ctx context.Context, st OverviewStore) (Overview, error) {
	patients, err := st.ListUsersByRole(ctx, record.RolePatient)
	if err != nil {
		return Overview{}, fmt.Errorf("list patients: %w", err)
	}

	ov := Overview{Patients: make([]PatientSummary, 0, len(patients))}
	sum := 0
	for _, p := range patients {
		meds, err := st.GetMedicationsByPatientID(ctx, p.ID)
		if err != nil {
			return Overview{}, fmt.Errorf("list medications for %s: %w", p.ID, err)
		}
		stats := record.ComputeAdherence(meds, p.ID)
		missed := stats.Total - stats.Taken

		ov.Patients = append(ov.Patients, PatientSummary{
			PatientID: p.ID,
			Name:      p.FullName(),
			Stats:     stats,
			Missed:    missed,
			Badge:     BadgeFor(stats.Percentage),
		})
		sum += stats.Percentage
		ov.TotalMissed += missed
	}

	if n := len(ov.Patients); n > 0 {
		ov.AverageAdherence = record.Percentage(sum, n*100)
	}
	return ov, nil
}
