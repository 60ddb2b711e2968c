package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/medtrack/internal/auth"
	"github.com/roach88/medtrack/internal/clock"
	"github.com/roach88/medtrack/internal/idgen"
	"github.com/roach88/medtrack/internal/medication"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/store"
	"github.com/roach88/medtrack/internal/store/slotstore"
	"github.com/roach88/medtrack/internal/validate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func createTestServer(t *testing.T) (http.Handler, store.RecordStore) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := slotstore.Open(ctx, slotstore.NewMemoryKV(), slotstore.WithIDGenerator(idgen.NewSequence("id")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hasher := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, store.Seed(ctx, st, store.DefaultSeed(), hasher, testNow))

	clk := clock.NewManual(testNow)
	tokens, err := auth.NewTokenManager([]byte("test-secret"), time.Hour, clk)
	require.NoError(t, err)
	v, err := validate.New()
	require.NoError(t, err)
	svc := auth.NewService(st, hasher, auth.WithDelay(0), auth.WithLogger(logger))

	srv := New(st, svc, tokens, v, WithClock(clk), WithLogger(logger))
	return srv.Handler(), st
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func login(t *testing.T, h http.Handler, email, role string) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/auth/login", "", validate.LoginForm{
		Email: email, Password: "password123", Role: role,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[sessionResponse](t, w).Token
}

func TestLogin(t *testing.T) {
	h, _ := createTestServer(t)

	w := do(t, h, http.MethodPost, "/api/auth/login", "", validate.LoginForm{
		Email: "patient@example.com", Password: "password123", Role: "patient",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[sessionResponse](t, w)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "1", resp.User.ID)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestLogin_Failures(t *testing.T) {
	h, _ := createTestServer(t)

	tests := []struct {
		name string
		form validate.LoginForm
		code int
		body string
	}{
		{"wrong role", validate.LoginForm{Email: "patient@example.com", Password: "password123", Role: "caretaker"},
			http.StatusUnauthorized, `{"error":"Invalid credentials or role"}`},
		{"wrong password", validate.LoginForm{Email: "patient@example.com", Password: "nope", Role: "patient"},
			http.StatusUnauthorized, `{"error":"Invalid credentials or role"}`},
		{"missing fields", validate.LoginForm{},
			http.StatusBadRequest, `{"errors":{"email":"Email is required","password":"Password is required","role":"Role is required"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/auth/login", "", tt.form)
			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	h, _ := createTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignup(t *testing.T) {
	h, _ := createTestServer(t)

	form := validate.SignupForm{
		FirstName: "Ann", LastName: "Lee", Email: "ann@example.com",
		Password: "secret1", ConfirmPassword: "secret1", Role: "patient",
	}
	w := do(t, h, http.MethodPost, "/api/auth/signup", "", form)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[sessionResponse](t, w)
	assert.Equal(t, "ann@example.com", resp.User.Email)

	me := do(t, h, http.MethodGet, "/api/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, resp.User, decode[record.User](t, me))

	w = do(t, h, http.MethodPost, "/api/auth/signup", "", form)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"User already exists"}`, w.Body.String())

	form.ConfirmPassword = "other"
	w = do(t, h, http.MethodPost, "/api/auth/signup", "", form)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"errors":{"confirmPassword":"Passwords do not match"}}`, w.Body.String())
}

func TestRequireAuth(t *testing.T) {
	h, _ := createTestServer(t)

	w := do(t, h, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Not signed in"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoles(t *testing.T) {
	h, _ := createTestServer(t)
	patient := login(t, h, "patient@example.com", "patient")
	caretaker := login(t, h, "caretaker@example.com", "caretaker")

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/overview", patient, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/medications", caretaker, nil).Code)
}

func TestMedicationFlow(t *testing.T) {
	h, _ := createTestServer(t)
	token := login(t, h, "patient@example.com", "patient")

	w := do(t, h, http.MethodGet, "/api/medications", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]record.Medication](t, w), 4)

	w = do(t, h, http.MethodPost, "/api/medications", token, validate.MedicationForm{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/medications", token, validate.MedicationForm{
		Name: "Zinc", Dosage: "10mg", Frequency: "Once daily",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	med := decode[record.Medication](t, w)
	assert.False(t, med.Taken)
	assert.Equal(t, "1", med.PatientID)

	w = do(t, h, http.MethodPost, "/api/medications/"+med.ID+"/taken", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	taken := decode[record.Medication](t, w)
	assert.True(t, taken.Taken)
	require.NotNil(t, taken.LastTaken)
	assert.True(t, testNow.Equal(*taken.LastTaken))

	w = do(t, h, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, record.AdherenceStats{Taken: 3, Total: 5, Percentage: 60}, decode[record.AdherenceStats](t, w))

	w = do(t, h, http.MethodPost, "/api/medications/missing/taken", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkTaken_OtherPatientsMedication(t *testing.T) {
	h, st := createTestServer(t)
	ctx := context.Background()

	other, err := st.CreateUser(ctx, record.NewUser{Email: "o@example.com", Role: record.RolePatient, PasswordHash: "x"})
	require.NoError(t, err)
	med, err := st.AddMedication(ctx, record.NewMedication{Name: "X", Dosage: "1", Frequency: "d", PatientID: other.ID})
	require.NoError(t, err)

	token := login(t, h, "patient@example.com", "patient")
	w := do(t, h, http.MethodPost, "/api/medications/"+med.ID+"/taken", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkTaken_ConcurrentTogglesSerialize(t *testing.T) {
	h, st := createTestServer(t)
	token := login(t, h, "patient@example.com", "patient")

	// An even number of toggles returns Vitamin D to untaken.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := do(t, h, http.MethodPost, "/api/medications/2/taken", token, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	meds, err := st.GetMedicationsByPatientID(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, meds[1].Taken)
	assert.NotNil(t, meds[1].LastTaken)
}

func TestOverview(t *testing.T) {
	h, _ := createTestServer(t)
	token := login(t, h, "caretaker@example.com", "caretaker")

	w := do(t, h, http.MethodGet, "/api/overview", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ov := decode[medication.Overview](t, w)
	require.Len(t, ov.Patients, 1)
	assert.Equal(t, "John Doe", ov.Patients[0].Name)
	assert.Equal(t, 50, ov.AverageAdherence)
	assert.Equal(t, 2, ov.TotalMissed)
	assert.Equal(t, medication.BadgeNeedsAttention, ov.Patients[0].Badge)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlockB := k.Lock("b")
	unlockB()
	unlock()
	assert.Empty(t, k.locks)
}
