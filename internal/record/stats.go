package record

import (
	"fmt"
	"math"
)

// AdherenceStats summarizes how many of a patient's medications are taken.
type AdherenceStats struct {
	Taken      int `json:"taken"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

func (s AdherenceStats) String() string {
	return fmt.Sprintf("%d of %d medications taken (%d%%)", s.Taken, s.Total, s.Percentage)
}

// ComputeAdherence counts meds owned by patientID. Percentage is
// round(taken/total*100), or 0 when the patient has no medications.
func ComputeAdherence(meds []Medication, patientID string) AdherenceStats {
	var stats AdherenceStats
	for _, m := range meds {
		if m.PatientID != patientID {
			continue
		}
		stats.Total++
		if m.Taken {
			stats.Taken++
		}
	}
	stats.Percentage = Percentage(stats.Taken, stats.Total)
	return stats
}

// Percentage returns round(part/whole*100), or 0 when whole is 0.
func Percentage(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
