package validate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func validSignup() SignupForm {
	return SignupForm{
		FirstName:       "Ann",
		LastName:        "Lee",
		Email:           "ann@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Role:            "patient",
	}
}

func TestSignup_Valid(t *testing.T) {
	v := newValidator(t)
	errs := v.Signup(validSignup())
	assert.Empty(t, errs)
	assert.NoError(t, errs.Err())
}

func TestSignup_Messages(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		mutate func(*SignupForm)
		want   FieldErrors
	}{
		{
			name:   "everything empty",
			mutate: func(f *SignupForm) { *f = SignupForm{} },
			want: FieldErrors{
				"firstName":       "First name is required",
				"lastName":        "Last name is required",
				"email":           "Email is required",
				"password":        "Password is required",
				"confirmPassword": "Please confirm your password",
				"role":            "Role is required",
			},
		},
		{
			name:   "malformed email",
			mutate: func(f *SignupForm) { f.Email = "ann.example.com" },
			want:   FieldErrors{"email": "Email is invalid"},
		},
		{
			name:   "email without dot after at",
			mutate: func(f *SignupForm) { f.Email = "ann@example" },
			want:   FieldErrors{"email": "Email is invalid"},
		},
		{
			name:   "whitespace only name",
			mutate: func(f *SignupForm) { f.FirstName = "   " },
			want:   FieldErrors{"firstName": "First name is required"},
		},
		{
			name: "short password",
			mutate: func(f *SignupForm) {
				f.Password = "abc"
				f.ConfirmPassword = "abc"
			},
			want: FieldErrors{"password": "Password must be at least 6 characters"},
		},
		{
			name:   "mismatched confirmation",
			mutate: func(f *SignupForm) { f.ConfirmPassword = "secret2" },
			want:   FieldErrors{"confirmPassword": "Passwords do not match"},
		},
		{
			name: "short password still compared to confirmation",
			mutate: func(f *SignupForm) {
				f.Password = "abc"
				f.ConfirmPassword = "abd"
			},
			want: FieldErrors{
				"password":        "Password must be at least 6 characters",
				"confirmPassword": "Passwords do not match",
			},
		},
		{
			name:   "unknown role",
			mutate: func(f *SignupForm) { f.Role = "doctor" },
			want:   FieldErrors{"role": "Role must be patient or caretaker"},
		},
		{
			name:   "role is case insensitive",
			mutate: func(f *SignupForm) { f.Role = " Caretaker " },
			want:   FieldErrors{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validSignup()
			tt.mutate(&form)
			assert.Equal(t, tt.want, v.Signup(form))
		})
	}
}

func TestSignup_PasswordLengthCountsRunes(t *testing.T) {
	v := newValidator(t)
	form := validSignup()
	form.Password = "ééééé"
	form.ConfirmPassword = form.Password

	assert.Equal(t, FieldErrors{"password": "Password must be at least 6 characters"}, v.Signup(form))
}

func TestLogin(t *testing.T) {
	v := newValidator(t)

	assert.Empty(t, v.Login(LoginForm{Email: "patient@example.com", Password: "x", Role: "patient"}))
	assert.Equal(t, FieldErrors{
		"email":    "Email is required",
		"password": "Password is required",
		"role":     "Role is required",
	}, v.Login(LoginForm{}))
	assert.Equal(t, FieldErrors{"email": "Email is invalid"},
		v.Login(LoginForm{Email: "patient", Password: "x", Role: "patient"}))
}

func TestMedication(t *testing.T) {
	v := newValidator(t)

	assert.Empty(t, v.Medication(MedicationForm{Name: "Aspirin", Dosage: "100mg", Frequency: "Once daily"}))
	assert.Equal(t, FieldErrors{
		"name":      "Medication name is required",
		"dosage":    "Dosage is required",
		"frequency": "Frequency is required",
	}, v.Medication(MedicationForm{}))
}

func TestFieldErrors_Error(t *testing.T) {
	errs := FieldErrors{"name": "Medication name is required", "dosage": "Dosage is required"}
	assert.Equal(t, "validation failed: dosage: Dosage is required; name: Medication name is required", errs.Error())

	var empty FieldErrors
	assert.NoError(t, empty.Err())
}

func TestValidator_Concurrent(t *testing.T) {
	v := newValidator(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Empty(t, v.Signup(validSignup()))
			assert.Len(t, v.Medication(MedicationForm{}), 3)
		}()
	}
	wg.Wait()
}
