package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/medtrack/internal/medication"
	"github.com/roach88/medtrack/internal/record"
)

const timeLayout = "2006-01-02 15:04"

// messageView is a plain confirmation.
type messageView struct {
	Message string `json:"message"`
}

func (v messageView) String() string {
	return v.Message
}

// userView renders a signed-in user.
type userView struct {
	record.User
}

func (v userView) String() string {
	return fmt.Sprintf("%s <%s> (%s, id %s)", v.FullName(), v.Email, v.Role, v.ID)
}

// medicationView renders one medication on a single line.
type medicationView struct {
	record.Medication
}

func (v medicationView) String() string {
	mark := " "
	if v.Taken {
		mark = "x"
	}
	line := fmt.Sprintf("[%s] %s  %s %s, %s", mark, v.ID, v.Name, v.Dosage, v.Frequency)
	if v.LastTaken != nil {
		line += fmt.Sprintf(" (last taken %s)", v.LastTaken.Format(timeLayout))
	}
	return line
}

// medicationListView renders a patient's medications, one per line.
type medicationListView []record.Medication

func (v medicationListView) String() string {
	if len(v) == 0 {
		return "No medications."
	}
	lines := make([]string, len(v))
	for i, m := range v {
		lines[i] = medicationView{m}.String()
	}
	return strings.Join(lines, "\n")
}

// overviewView renders the caretaker overview.
type overviewView struct {
	medication.Overview
}

func (v overviewView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patients: %d\n", len(v.Patients))
	fmt.Fprintf(&b, "Average adherence: %d%%\n", v.AverageAdherence)
	fmt.Fprintf(&b, "Missed: %d\n", v.TotalMissed)
	for _, p := range v.Patients {
		fmt.Fprintf(&b, "\n%s (id %s): %s\n", p.Name, p.PatientID, p.Badge)
		fmt.Fprintf(&b, "  %s, %d missed", p.Stats, p.Missed)
	}
	return b.String()
}
