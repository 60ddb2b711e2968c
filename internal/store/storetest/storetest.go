// Package storetest is a contract suite run against every store.RecordStore
// backing.
package storetest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/store"
)

// Factory returns an empty store. It should register cleanup on t.
type Factory func(t *testing.T) store.RecordStore

// PrefixHasher is a PasswordHasher that marks rather than hashes, so tests can
// see what was stored.
type PrefixHasher struct{}

func (PrefixHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

// SeedTime is the clock reading used for seeded rows.
var SeedTime = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// Run executes the full contract suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndLookupUser", func(t *testing.T) { testCreateAndLookupUser(t, newStore(t)) })
	t.Run("LookupRequiresRole", func(t *testing.T) { testLookupRequiresRole(t, newStore(t)) })
	t.Run("UnknownUser", func(t *testing.T) { testUnknownUser(t, newStore(t)) })
	t.Run("DuplicateEmailAndRole", func(t *testing.T) { testDuplicateEmailAndRole(t, newStore(t)) })
	t.Run("ConcurrentCreateUser", func(t *testing.T) { testConcurrentCreateUser(t, newStore(t)) })
	t.Run("ListUsersByRole", func(t *testing.T) { testListUsersByRole(t, newStore(t)) })
	t.Run("AddAndListMedications", func(t *testing.T) { testAddAndListMedications(t, newStore(t)) })
	t.Run("EmptyMedicationList", func(t *testing.T) { testEmptyMedicationList(t, newStore(t)) })
	t.Run("UpdateMedicationTaken", func(t *testing.T) { testUpdateMedicationTaken(t, newStore(t)) })
	t.Run("UpdateUnknownMedication", func(t *testing.T) { testUpdateUnknownMedication(t, newStore(t)) })
	t.Run("SeedDefaults", func(t *testing.T) { testSeedDefaults(t, newStore(t)) })
	t.Run("SeedKeepsExistingState", func(t *testing.T) { testSeedKeepsExistingState(t, newStore(t)) })
}

func newPatient(email string) record.NewUser {
	return record.NewUser{
		Email:        email,
		FirstName:    "Pat",
		LastName:     "Ient",
		Role:         record.RolePatient,
		PasswordHash: "hash",
	}
}

func createUser(t *testing.T, st store.RecordStore, nu record.NewUser) record.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), nu)
	require.NoError(t, err)
	return u
}

func testCreateAndLookupUser(t *testing.T, st store.RecordStore) {
	ctx := context.Background()

	created := createUser(t, st, newPatient("pat@example.com"))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "pat@example.com", created.Email)
	assert.Equal(t, "hash", created.PasswordHash)

	found, err := st.GetUserByEmailAndRole(ctx, "pat@example.com", record.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, created, found)

	byID, err := st.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)
}

func testLookupRequiresRole(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	createUser(t, st, newPatient("pat@example.com"))

	_, err := st.GetUserByEmailAndRole(ctx, "pat@example.com", record.RoleCaretaker)
	require.Error(t, err)
	assert.True(t, record.IsNotFound(err), "got %v", err)

	// Same email under the other role is a distinct account.
	care := newPatient("pat@example.com")
	care.Role = record.RoleCaretaker
	c := createUser(t, st, care)

	found, err := st.GetUserByEmailAndRole(ctx, "pat@example.com", record.RoleCaretaker)
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
}

func testUnknownUser(t *testing.T, st store.RecordStore) {
	ctx := context.Background()

	_, err := st.GetUserByEmailAndRole(ctx, "nobody@example.com", record.RolePatient)
	assert.True(t, record.IsNotFound(err), "got %v", err)

	_, err = st.GetUserByID(ctx, "missing")
	assert.True(t, record.IsNotFound(err), "got %v", err)
}

func testDuplicateEmailAndRole(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	first := createUser(t, st, newPatient("dup@example.com"))

	_, err := st.CreateUser(ctx, newPatient("dup@example.com"))
	require.Error(t, err)
	assert.True(t, record.IsAlreadyExists(err), "got %v", err)

	found, err := st.GetUserByEmailAndRole(ctx, "dup@example.com", record.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func testConcurrentCreateUser(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	const workers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := st.CreateUser(ctx, newPatient("race@example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case record.IsAlreadyExists(err):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, dupes)

	patients, err := st.ListUsersByRole(ctx, record.RolePatient)
	require.NoError(t, err)
	assert.Len(t, patients, 1)
}

func testListUsersByRole(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	a := createUser(t, st, newPatient("a@example.com"))
	care := newPatient("c@example.com")
	care.Role = record.RoleCaretaker
	createUser(t, st, care)
	b := createUser(t, st, newPatient("b@example.com"))

	patients, err := st.ListUsersByRole(ctx, record.RolePatient)
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, a.ID, patients[0].ID)
	assert.Equal(t, b.ID, patients[1].ID)

	caretakers, err := st.ListUsersByRole(ctx, record.RoleCaretaker)
	require.NoError(t, err)
	assert.Len(t, caretakers, 1)
}

func newMedication(patientID, name string) record.NewMedication {
	return record.NewMedication{
		Name:      name,
		Dosage:    "100mg",
		Frequency: "Once daily",
		PatientID: patientID,
		CreatedAt: SeedTime,
	}
}

func testAddAndListMedications(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	p1 := createUser(t, st, newPatient("p1@example.com"))
	p2 := createUser(t, st, newPatient("p2@example.com"))

	names := []string{"Aspirin", "Vitamin D", "Metformin"}
	var added []record.Medication
	for _, name := range names {
		m, err := st.AddMedication(ctx, newMedication(p1.ID, name))
		require.NoError(t, err)
		require.NotEmpty(t, m.ID)
		assert.False(t, m.Taken)
		assert.Nil(t, m.LastTaken)
		added = append(added, m)
	}
	_, err := st.AddMedication(ctx, newMedication(p2.ID, "Omega-3"))
	require.NoError(t, err)

	meds, err := st.GetMedicationsByPatientID(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, meds, 3)
	for i, m := range meds {
		assert.Equal(t, added[i].ID, m.ID, "insertion order")
		assert.Equal(t, names[i], m.Name)
		assert.Equal(t, p1.ID, m.PatientID)
		assert.True(t, SeedTime.Equal(m.CreatedAt))
	}

	other, err := st.GetMedicationsByPatientID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func testEmptyMedicationList(t *testing.T, st store.RecordStore) {
	meds, err := st.GetMedicationsByPatientID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, meds)
	assert.Empty(t, meds)
}

func testUpdateMedicationTaken(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	p := createUser(t, st, newPatient("p@example.com"))
	m, err := st.AddMedication(ctx, newMedication(p.ID, "Aspirin"))
	require.NoError(t, err)

	at := SeedTime.Add(2 * time.Hour)
	require.NoError(t, st.UpdateMedicationTaken(ctx, m.ID, true, &at))

	meds, err := st.GetMedicationsByPatientID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.True(t, meds[0].Taken)
	require.NotNil(t, meds[0].LastTaken)
	assert.True(t, at.Equal(*meds[0].LastTaken))

	// Untaken with a retained timestamp.
	require.NoError(t, st.UpdateMedicationTaken(ctx, m.ID, false, &at))
	meds, err = st.GetMedicationsByPatientID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, meds[0].Taken)
	require.NotNil(t, meds[0].LastTaken)
	assert.True(t, at.Equal(*meds[0].LastTaken))

	// nil clears.
	require.NoError(t, st.UpdateMedicationTaken(ctx, m.ID, false, nil))
	meds, err = st.GetMedicationsByPatientID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, meds[0].LastTaken)
}

func testUpdateUnknownMedication(t *testing.T, st store.RecordStore) {
	now := SeedTime
	err := st.UpdateMedicationTaken(context.Background(), "missing", true, &now)
	require.Error(t, err)
	assert.True(t, record.IsNotFound(err), "got %v", err)
}

func seed(t *testing.T, st store.RecordStore) {
	t.Helper()
	err := store.Seed(context.Background(), st, store.DefaultSeed(), PrefixHasher{}, SeedTime)
	require.NoError(t, err)
}

func testSeedDefaults(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	seed(t, st)
	seed(t, st) // idempotent

	patient, err := st.GetUserByEmailAndRole(ctx, "patient@example.com", record.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, "1", patient.ID)
	assert.Equal(t, "John Doe", patient.FullName())
	assert.Equal(t, "hashed:password123", patient.PasswordHash)

	caretaker, err := st.GetUserByEmailAndRole(ctx, "caretaker@example.com", record.RoleCaretaker)
	require.NoError(t, err)
	assert.Equal(t, "2", caretaker.ID)

	meds, err := st.GetMedicationsByPatientID(ctx, "1")
	require.NoError(t, err)
	require.Len(t, meds, 4)

	ids := make([]string, len(meds))
	for i, m := range meds {
		ids[i] = m.ID
		if m.Taken {
			require.NotNil(t, m.LastTaken, "taken seed row %s needs lastTaken", m.ID)
		} else {
			assert.Nil(t, m.LastTaken)
		}
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
	assert.Equal(t, record.AdherenceStats{Taken: 2, Total: 4, Percentage: 50}, record.ComputeAdherence(meds, "1"))
}

func testSeedKeepsExistingState(t *testing.T, st store.RecordStore) {
	ctx := context.Background()
	seed(t, st)

	at := SeedTime.Add(time.Hour)
	require.NoError(t, st.UpdateMedicationTaken(ctx, "2", true, &at))

	seed(t, st)

	meds, err := st.GetMedicationsByPatientID(ctx, "1")
	require.NoError(t, err)
	for _, m := range meds {
		if m.ID == "2" {
			assert.True(t, m.Taken, "reseeding must not reset recorded doses")
		}
	}
}
