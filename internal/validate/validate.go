// Package validate checks user-entered forms before they reach a store.
//
// Field rules live in an embedded CUE schema. Each field is checked on its
// own so every field gets at most one message: the "required" banner when the
// trimmed value is empty, otherwise the "invalid" banner when the value fails
// its constraint. Cross-field checks (password confirmation) are done in Go.
package validate

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// FieldErrors maps a form field's JSON name to its message.
type FieldErrors map[string]string

// Error implements error. Fields are listed in name order.
func (e FieldErrors) Error() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, e[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns e as an error, or nil when there are no failures.
func (e FieldErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// SignupForm is the registration form.
type SignupForm struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role"`
}

// LoginForm is the sign-in form.
type LoginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// MedicationForm is the add-medication form.
type MedicationForm struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

type field struct {
	name     string
	schema   cue.Value
	required string
	invalid  string
}

// Validator checks forms against the compiled schema.
//
// Thread-safety: safe for concurrent use. CUE values are not, so checks are
// serialized.
type Validator struct {
	mu    sync.Mutex
	ctx   *cue.Context
	forms map[string][]field
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile form schema: %w", err)
	}

	v := &Validator{ctx: ctx, forms: make(map[string][]field)}
	for _, def := range []string{"#Signup", "#Login", "#Medication"} {
		fields, err := compileForm(root.LookupPath(cue.ParsePath(def)))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", def, err)
		}
		v.forms[def] = fields
	}
	return v, nil
}

func compileForm(def cue.Value) ([]field, error) {
	if !def.Exists() {
		return nil, fmt.Errorf("definition not found")
	}
	it, err := def.Fields()
	if err != nil {
		return nil, err
	}

	var fields []field
	for it.Next() {
		f := field{name: it.Selector().Unquoted(), schema: it.Value()}
		attr := it.Value().Attribute("msg")
		if f.required, _, err = attr.Lookup(0, "required"); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.name, err)
		}
		if f.required == "" {
			return nil, fmt.Errorf("field %s: missing required message", f.name)
		}
		f.invalid, _, _ = attr.Lookup(0, "invalid")
		fields = append(fields, f)
	}
	return fields, nil
}

// check validates values field by field. Fields absent from values are
// treated as empty.
func (v *Validator) check(def string, values map[string]string) FieldErrors {
	v.mu.Lock()
	defer v.mu.Unlock()

	errs := FieldErrors{}
	for _, f := range v.forms[def] {
		value := values[f.name]
		if strings.TrimSpace(value) == "" {
			errs[f.name] = f.required
			continue
		}
		if f.invalid == "" {
			continue
		}
		if err := f.schema.Unify(v.ctx.Encode(value)).Validate(cue.Concrete(true)); err != nil {
			errs[f.name] = f.invalid
		}
	}
	return errs
}

func (v *Validator) message(def, name string) string {
	for _, f := range v.forms[def] {
		if f.name == name {
			return f.invalid
		}
	}
	return ""
}

// Signup validates a registration form.
func (v *Validator) Signup(form SignupForm) FieldErrors {
	errs := v.check("#Signup", map[string]string{
		"firstName":       form.FirstName,
		"lastName":        form.LastName,
		"email":           form.Email,
		"password":        form.Password,
		"confirmPassword": form.ConfirmPassword,
		"role":            strings.ToLower(strings.TrimSpace(form.Role)),
	})
	if _, ok := errs["confirmPassword"]; !ok && form.ConfirmPassword != form.Password {
		errs["confirmPassword"] = v.message("#Signup", "confirmPassword")
	}
	return errs
}

// Login validates a sign-in form.
func (v *Validator) Login(form LoginForm) FieldErrors {
	return v.check("#Login", map[string]string{
		"email":    form.Email,
		"password": form.Password,
		"role":     strings.ToLower(strings.TrimSpace(form.Role)),
	})
}

// Medication validates an add-medication form.
func (v *Validator) Medication(form MedicationForm) FieldErrors {
	return v.check("#Medication", map[string]string{
		"name":      form.Name,
		"dosage":    form.Dosage,
		"frequency": form.Frequency,
	})
}
