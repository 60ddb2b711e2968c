// Package medication holds a session's medication list and derives adherence
// from it.
package medication

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/medtrack/internal/clock"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/validate"
)

// Store is the subset of store.RecordStore the tracker needs.
type Store interface {
	GetMedicationsByPatientID(ctx context.Context, patientID string) ([]record.Medication, error)
	AddMedication(ctx context.Context, nm record.NewMedication) (record.Medication, error)
	UpdateMedicationTaken(ctx context.Context, id string, taken bool, lastTaken *time.Time) error
}

// Tracker is the in-memory medication list of one session.
//
// Every mutation is written to the store first; memory changes only when the
// write succeeds, so a failed call leaves the previous state visible.
//
// Thread-safety: safe for concurrent use. Mutations are serialized.
type Tracker struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	meds    []record.Medication
	loading bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source for createdAt and lastTaken.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker creates an empty tracker over st.
func NewTracker(st Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  st,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// storeError passes categorized errors through and hides everything else
// behind the generic store banner.
func (t *Tracker) storeError(op string, err error, args ...any) error {
	if code := record.CodeOf(err); code != "" && code != record.ErrCodeStore {
		return err
	}
	t.logger.Error(op+" failed", append(args, "error", err)...)
	return record.StoreFailure(err)
}

// Medications returns a copy of the in-memory list.
func (t *Tracker) Medications() []record.Medication {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.meds)
}

// Loading reports whether a Refresh is in progress.
func (t *Tracker) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Refresh replaces the in-memory list with the patient's stored medications.
func (t *Tracker) Refresh(ctx context.Context, patientID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loading = true
	defer func() { t.loading = false }()

	meds, err := t.store.GetMedicationsByPatientID(ctx, patientID)
	if err != nil {
		return t.storeError("refresh medications", err, "patient_id", patientID)
	}
	t.meds = meds
	t.logger.Debug("medications loaded", "patient_id", patientID, "count", len(meds))
	return nil
}

// Add stores a new, untaken medication for patientID and appends it to the
// list. The form is assumed to have passed validation.
func (t *Tracker) Add(ctx context.Context, form validate.MedicationForm, patientID string) (record.Medication, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	med, err := t.store.AddMedication(ctx, record.NewMedication{
		Name:      record.NormalizeText(form.Name),
		Dosage:    record.NormalizeText(form.Dosage),
		Frequency: record.NormalizeText(form.Frequency),
		PatientID: patientID,
		CreatedAt: t.clock.Now().UTC(),
	})
	if err != nil {
		return record.Medication{}, t.storeError("add medication", err, "patient_id", patientID)
	}

	t.meds = append(t.meds, med)
	t.logger.Info("medication added", "id", med.ID, "patient_id", patientID, "name", med.Name)
	return med, nil
}

// MarkAsTaken flips the taken flag of medication id. Flipping to taken stamps
// lastTaken with the current time; flipping back keeps the previous stamp.
func (t *Tracker) MarkAsTaken(ctx context.Context, id string) (record.Medication, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := slices.IndexFunc(t.meds, func(m record.Medication) bool { return m.ID == id })
	if i < 0 {
		return record.Medication{}, record.NotFound("medication", id)
	}

	med := t.meds[i]
	med.Taken = !med.Taken
	if med.Taken {
		now := t.clock.Now().UTC()
		med.LastTaken = &now
	}

	if err := t.store.UpdateMedicationTaken(ctx, id, med.Taken, med.LastTaken); err != nil {
		return record.Medication{}, t.storeError("mark medication taken", err, "id", id)
	}

	t.meds[i] = med
	t.logger.Info("medication toggled", "id", id, "taken", med.Taken)
	return med, nil
}

// Stats computes adherence for patientID over the in-memory list.
func (t *Tracker) Stats(patientID string) record.AdherenceStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return record.ComputeAdherence(t.meds, patientID)
}
