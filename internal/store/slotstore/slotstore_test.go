package slotstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medtrack/internal/idgen"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/store"
	"github.com/roach88/medtrack/internal/store/storetest"
)

func TestMemoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.RecordStore {
		s, err := Open(context.Background(), NewMemoryKV())
		require.NoError(t, err)
		return s
	})
}

func TestFileContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.RecordStore {
		kv, err := NewFileKV(t.TempDir())
		require.NoError(t, err)
		s, err := Open(context.Background(), kv)
		require.NoError(t, err)
		return s
	})
}

func TestRedisContract(t *testing.T) {
	url := os.Getenv("MEDTRACK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MEDTRACK_TEST_REDIS_URL not set")
	}

	n := 0
	storetest.Run(t, func(t *testing.T) store.RecordStore {
		n++
		prefix := "medtrack-test:" + time.Now().Format("150405.000000") + ":" + string(rune('a'+n)) + ":"
		kv, err := NewRedisKV(context.Background(), url, prefix)
		require.NoError(t, err)
		s, err := Open(context.Background(), kv)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestRehydrate(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	s1, err := Open(ctx, kv)
	require.NoError(t, err)
	u, err := s1.CreateUser(ctx, record.NewUser{Email: "p@example.com", Role: record.RolePatient, PasswordHash: "h"})
	require.NoError(t, err)
	created := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	m, err := s1.AddMedication(ctx, record.NewMedication{Name: "Aspirin", Dosage: "100mg", Frequency: "Once daily", PatientID: u.ID, CreatedAt: created})
	require.NoError(t, err)
	require.NoError(t, s1.UpdateMedicationTaken(ctx, m.ID, true, &created))

	// A second process sees the same rows.
	s2, err := Open(ctx, kv)
	require.NoError(t, err)

	got, err := s2.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	meds, err := s2.GetMedicationsByPatientID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.True(t, meds[0].Taken)
	require.NotNil(t, meds[0].LastTaken)
	assert.True(t, created.Equal(*meds[0].LastTaken))
}

func TestSlotLayout(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s, err := Open(ctx, kv, WithIDGenerator(idgen.NewFixed("u1", "m1")))
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, record.NewUser{Email: "p@example.com", FirstName: "P", LastName: "Q", Role: record.RolePatient, PasswordHash: "$2a$hash"})
	require.NoError(t, err)
	_, err = s.AddMedication(ctx, record.NewMedication{Name: "Aspirin", Dosage: "100mg", Frequency: "Once daily", PatientID: "u1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	data, ok, err := kv.Get(ctx, UsersKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"u1","email":"p@example.com","firstName":"P","lastName":"Q","role":"patient","passwordHash":"$2a$hash"}]`, string(data))

	data, ok, err = kv.Get(ctx, MedicationsKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"m1","name":"Aspirin","dosage":"100mg","frequency":"Once daily","patientId":"u1","createdAt":"2024-01-01T00:00:00Z","taken":0}]`, string(data))
}

func TestCreateUser_RejectsTakenEmailAndRole(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s, err := Open(ctx, kv)
	require.NoError(t, err)

	nu := record.NewUser{Email: "dup@example.com", Role: record.RolePatient, PasswordHash: "h"}
	_, err = s.CreateUser(ctx, nu)
	require.NoError(t, err)
	before, _, err := kv.Get(ctx, UsersKey)
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, nu)
	require.Error(t, err)
	assert.True(t, record.IsAlreadyExists(err), "got %v", err)

	after, _, err := kv.Get(ctx, UsersKey)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

type failingKV struct {
	*MemoryKV
	fail bool
}

func (f *failingKV) Set(ctx context.Context, key string, data []byte) error {
	if f.fail {
		return errors.New("slot unavailable")
	}
	return f.MemoryKV.Set(ctx, key, data)
}

func TestFailedWriteKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{MemoryKV: NewMemoryKV()}
	s, err := Open(ctx, kv)
	require.NoError(t, err)

	u, err := s.CreateUser(ctx, record.NewUser{Email: "p@example.com", Role: record.RolePatient, PasswordHash: "h"})
	require.NoError(t, err)
	m, err := s.AddMedication(ctx, record.NewMedication{Name: "Aspirin", PatientID: u.ID, CreatedAt: time.Now()})
	require.NoError(t, err)

	kv.fail = true

	_, err = s.CreateUser(ctx, record.NewUser{Email: "q@example.com", Role: record.RolePatient})
	require.Error(t, err)
	patients, err := s.ListUsersByRole(ctx, record.RolePatient)
	require.NoError(t, err)
	assert.Len(t, patients, 1)

	now := time.Now()
	require.Error(t, s.UpdateMedicationTaken(ctx, m.ID, true, &now))
	meds, err := s.GetMedicationsByPatientID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, meds[0].Taken)
}

func TestOpen_CorruptSlot(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, UsersKey, []byte("{not json")))

	_, err := Open(ctx, kv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), UsersKey)
}

func TestFileKV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "slot", []byte(`[1]`)))
	require.NoError(t, kv.Set(ctx, "slot", []byte(`[1,2]`)))

	data, ok, err := kv.Get(ctx, "slot")
	require.NoError(t, err)
	assert.True(t, ok)
	var got []int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []int{1, 2}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be cleaned up")
	assert.Equal(t, "slot.json", entries[0].Name())

	assert.Error(t, kv.Set(ctx, "../escape", nil))
	_, _, err = kv.Get(ctx, filepath.Join("a", "b"))
	assert.Error(t, err)
}
