package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

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

// StartTime is the clock reading when seeding. Step n runs at StartTime + n
// minutes.
var StartTime = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// OutcomeOK marks a successful step in the trace.
const OutcomeOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int               `json:"seq"`
	Action  string            `json:"action"`
	Args    map[string]string `json:"args,omitempty"`
	Outcome string            `json:"outcome"`
	Message string            `json:"message,omitempty"`
	Result  any               `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes each unmet expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// harness holds one scenario's session.
type harness struct {
	store     store.RecordStore
	clock     *clock.Manual
	logger    *slog.Logger
	validator *validate.Validator
	session   *auth.Session
	tracker   *medication.Tracker
	lastMed   string
}

// Run executes a scenario in a fresh in-memory store.
// The returned error reports setup failures; unmet expectations are recorded
// in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		h.clock.Advance(time.Minute)

		event, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		event.Seq = i + 1
		result.Trace = append(result.Trace, event)

		if err := checkExpect(step.Expect, event); err != nil {
			result.AddError(fmt.Sprintf("step %d (%s): %v", i+1, step.Action, err))
		}
	}
	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario) (*harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := slotstore.Open(ctx, slotstore.NewMemoryKV(), slotstore.WithIDGenerator(idgen.NewSequence("id")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	seed := scenario.Seed
	if seed == nil {
		seed = store.DefaultSeed()
	}
	hasher := auth.NewHasher(bcrypt.MinCost)
	if err := store.Seed(ctx, st, seed, hasher, StartTime); err != nil {
		st.Close()
		return nil, err
	}

	v, err := validate.New()
	if err != nil {
		st.Close()
		return nil, err
	}

	clk := clock.NewManual(StartTime)
	h := &harness{
		store:     st,
		clock:     clk,
		logger:    logger,
		validator: v,
		session:   auth.NewSession(auth.NewService(st, hasher, auth.WithDelay(0), auth.WithLogger(logger))),
	}
	h.resetTracker()
	return h, nil
}

func (h *harness) resetTracker() {
	h.tracker = medication.NewTracker(h.store, medication.WithClock(h.clock), medication.WithLogger(h.logger))
}

// execute runs one step and records its outcome. Only failures to encode a
// result are returned as errors.
func (h *harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	event := TraceEvent{Action: step.Action, Args: redact(step.Args)}

	value, err := h.dispatch(ctx, step)
	if err != nil {
		var fieldErrs validate.FieldErrors
		if errors.As(err, &fieldErrs) {
			event.Outcome = string(record.ErrCodeValidation)
			value = map[string]string(fieldErrs)
		} else {
			event.Outcome = string(record.CodeOf(err))
			if event.Outcome == "" {
				event.Outcome = string(record.ErrCodeStore)
			}
			event.Message = record.Message(err)
			value = nil
		}
	} else {
		event.Outcome = OutcomeOK
	}

	if value != nil {
		normalized, err := normalize(value)
		if err != nil {
			return TraceEvent{}, err
		}
		event.Result = normalized
	}
	return event, nil
}

func (h *harness) dispatch(ctx context.Context, step Step) (any, error) {
	args := step.Args

	switch step.Action {
	case ActionLogin:
		form := validate.LoginForm{Email: args["email"], Password: args["password"], Role: args["role"]}
		if errs := h.validator.Login(form); len(errs) > 0 {
			return nil, errs
		}
		role, err := record.ParseRole(form.Role)
		if err != nil {
			return nil, err
		}
		if err := h.session.Login(ctx, form.Email, form.Password, role); err != nil {
			return nil, err
		}
		return h.signedIn(ctx)

	case ActionSignup:
		form := validate.SignupForm{
			FirstName:       args["firstName"],
			LastName:        args["lastName"],
			Email:           args["email"],
			Password:        args["password"],
			ConfirmPassword: args["confirmPassword"],
			Role:            args["role"],
		}
		if errs := h.validator.Signup(form); len(errs) > 0 {
			return nil, errs
		}
		role, err := record.ParseRole(form.Role)
		if err != nil {
			return nil, err
		}
		err = h.session.Signup(ctx, auth.SignupData{
			Email:     form.Email,
			Password:  form.Password,
			FirstName: form.FirstName,
			LastName:  form.LastName,
			Role:      role,
		})
		if err != nil {
			return nil, err
		}
		return h.signedIn(ctx)

	case ActionLogout:
		h.session.Logout()
		h.resetTracker()
		return nil, nil

	case ActionRefresh:
		user, err := h.user()
		if err != nil {
			return nil, err
		}
		if err := h.tracker.Refresh(ctx, user.ID); err != nil {
			return nil, err
		}
		return map[string]int{"count": len(h.tracker.Medications())}, nil

	case ActionAdd:
		user, err := h.user()
		if err != nil {
			return nil, err
		}
		form := validate.MedicationForm{Name: args["name"], Dosage: args["dosage"], Frequency: args["frequency"]}
		if errs := h.validator.Medication(form); len(errs) > 0 {
			return nil, errs
		}
		med, err := h.tracker.Add(ctx, form, user.ID)
		if err != nil {
			return nil, err
		}
		h.lastMed = med.ID
		return med, nil

	case ActionTake:
		if _, err := h.user(); err != nil {
			return nil, err
		}
		id := args["id"]
		if id == LastMedication {
			id = h.lastMed
		}
		return h.tracker.MarkAsTaken(ctx, id)

	case ActionStats:
		user, err := h.user()
		if err != nil {
			return nil, err
		}
		return h.tracker.Stats(user.ID), nil

	case ActionOverview:
		user, err := h.user()
		if err != nil {
			return nil, err
		}
		if user.Role != record.RoleCaretaker {
			return nil, record.Unauthenticated(nil)
		}
		return medication.BuildOverview(ctx, h.store)
	}

	return nil, fmt.Errorf("unknown action %q", step.Action)
}

// signedIn loads a patient's medications after login or signup and returns
// the user.
func (h *harness) signedIn(ctx context.Context) (any, error) {
	user, err := h.user()
	if err != nil {
		return nil, err
	}
	h.resetTracker()
	if user.Role == record.RolePatient {
		if err := h.tracker.Refresh(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (h *harness) user() (record.User, error) {
	user, ok := h.session.User()
	if !ok {
		return record.User{}, record.Unauthenticated(nil)
	}
	return user, nil
}

// redact hides secrets in traced args.
func redact(args map[string]string) map[string]string {
	if args == nil {
		return nil
	}
	out := maps.Clone(args)
	for _, key := range []string{"password", "confirmPassword"} {
		if _, ok := out[key]; ok {
			out[key] = "***"
		}
	}
	return out
}

// normalize round-trips v through JSON so results compare and print the way
// clients see them.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
