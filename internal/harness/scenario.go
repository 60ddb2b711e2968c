package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/medtrack/internal/store"
)

// Step actions.
const (
	ActionLogin    = "login"
	ActionSignup   = "signup"
	ActionLogout   = "logout"
	ActionRefresh  = "refresh"
	ActionAdd      = "add"
	ActionTake     = "take"
	ActionStats    = "stats"
	ActionOverview = "overview"
)

// Actions lists every supported step action.
var Actions = []string{
	ActionLogin, ActionSignup, ActionLogout, ActionRefresh,
	ActionAdd, ActionTake, ActionStats, ActionOverview,
}

// LastMedication in a take step's id refers to the most recently added
// medication.
const LastMedication = "$last"

// Scenario is a scripted session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Seed replaces the default seed rows when set.
	Seed *store.SeedData `yaml:"seed,omitempty"`

	// Steps run in order against one session.
	Steps []Step `yaml:"steps"`
}

// Step is one user action.
type Step struct {
	Action string            `yaml:"action"`
	Args   map[string]string `yaml:"args,omitempty"`
	Expect *Expect           `yaml:"expect,omitempty"`
}

// Expect describes the required outcome of a step.
type Expect struct {
	// Error is the error code the step must fail with. Empty means the step
	// must succeed.
	Error string `yaml:"error,omitempty"`

	// Result is a subset of the step's JSON result.
	Result map[string]any `yaml:"result,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos do not silently pass.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Seed != nil {
		if err := s.Seed.Validate(); err != nil {
			return err
		}
	}

	for i, step := range s.Steps {
		if !slices.Contains(Actions, step.Action) {
			return fmt.Errorf("step %d: unknown action %q (must be one of %v)", i+1, step.Action, Actions)
		}
		if step.Action == ActionTake && step.Args["id"] == "" {
			return fmt.Errorf("step %d: take requires args.id", i+1)
		}
	}
	return nil
}
