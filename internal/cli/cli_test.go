package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medtrack/internal/clock"
	"github.com/roach88/medtrack/internal/config"
	"github.com/roach88/medtrack/internal/idgen"
)

var testStart = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// testCLI runs commands against a file-backed store in a temp dir. State
// carries over between runs the way it does between shell invocations.
type testCLI struct {
	t     *testing.T
	dir   string
	clock *clock.Manual
	ids   idgen.Generator
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	return &testCLI{
		t:     t,
		dir:   t.TempDir(),
		clock: clock.NewManual(testStart),
		ids:   idgen.NewSequence("id"),
	}
}

func (c *testCLI) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCommand(&RootOptions{
		Clock: c.clock,
		IDs:   c.ids,
		Overrides: map[string]any{
			config.KeyBackend:     config.BackendFile,
			config.KeyDataDir:     c.dir,
			config.KeySessionFile: filepath.Join(c.dir, "session"),
			config.KeyAuthDelay:   "0s",
			config.KeyBcryptCost:  4,
			config.KeyTokenSecret: "test-secret",
		},
	})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "output: %s", out)
	return out
}

func (c *testCLI) loginPatient() {
	c.t.Helper()
	c.mustRun("login", "--email", "patient@example.com", "--password", "password123", "--role", "patient")
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestInit(t *testing.T) {
	c := newTestCLI(t)
	out := c.mustRun("init")
	assert.Equal(t, "Initialized file store\n", out)

	// Running again keeps existing rows.
	out = c.mustRun("init")
	assert.Equal(t, "Initialized file store\n", out)
}

func TestLogin_Session(t *testing.T) {
	c := newTestCLI(t)

	out := c.mustRun("login", "--email", "patient@example.com", "--password", "password123")
	assert.Equal(t, "John Doe <patient@example.com> (patient, id 1)\n", out)

	out = c.mustRun("whoami")
	assert.Equal(t, "John Doe <patient@example.com> (patient, id 1)\n", out)

	out = c.mustRun("logout")
	assert.Equal(t, "Signed out\n", out)

	out, err := c.run("whoami")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "Error [UNAUTHENTICATED]: Not signed in\n", out)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "wrong password",
			args: []string{"--email", "patient@example.com", "--password", "nope123"},
			want: "Error [INVALID_CREDENTIALS]: Invalid credentials or role\n",
		},
		{
			name: "wrong role",
			args: []string{"--email", "patient@example.com", "--password", "password123", "--role", "caretaker"},
			want: "Error [INVALID_CREDENTIALS]: Invalid credentials or role\n",
		},
		{
			name: "unknown email",
			args: []string{"--email", "nobody@example.com", "--password", "password123"},
			want: "Error [INVALID_CREDENTIALS]: Invalid credentials or role\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCLI(t)
			out, err := c.run(append([]string{"login"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Equal(t, tt.want, out)

			// No session is saved after a failed login.
			_, err = os.Stat(filepath.Join(c.dir, "session"))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestLogin_ValidationJSON(t *testing.T) {
	c := newTestCLI(t)

	out, err := c.run("--format", "json", "login", "--email", "not-an-email", "--password", "")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION", resp.Error.Code)
	assert.Equal(t, map[string]any{
		"email":    "Email is invalid",
		"password": "Password is required",
	}, resp.Error.Details)
}

func TestSignup(t *testing.T) {
	c := newTestCLI(t)

	out := c.mustRun("signup", "--first", "Ann", "--last", "Lee", "--email", "ann@example.com",
		"--password", "secret1", "--confirm", "secret1", "--role", "patient")
	assert.Equal(t, "Ann Lee <ann@example.com> (patient, id id-1)\n", out)

	out = c.mustRun("stats")
	assert.Equal(t, "0 of 0 medications taken (0%)\n", out)

	out, err := c.run("signup", "--first", "Ann", "--last", "Lee", "--email", "ann@example.com",
		"--password", "secret1", "--confirm", "secret1", "--role", "patient")
	require.Error(t, err)
	assert.Equal(t, "Error [ALREADY_EXISTS]: User already exists\n", out)

	out, err = c.run("signup", "--first", "Ann", "--last", "Lee", "--email", "ann@example.com",
		"--password", "secret1", "--confirm", "secret2")
	require.Error(t, err)
	assert.Contains(t, out, "Error [VALIDATION]")
	assert.Contains(t, out, "Passwords do not match")
}

func TestStats_Golden(t *testing.T) {
	c := newTestCLI(t)
	c.loginPatient()

	out := c.mustRun("stats")
	newGoldie(t).Assert(t, "stats", []byte(out))
}

func TestMed_AddListTake(t *testing.T) {
	c := newTestCLI(t)
	c.loginPatient()

	c.clock.Advance(time.Hour)
	out := c.mustRun("med", "add", "--name", "Ibuprofen", "--dosage", "200mg", "--frequency", "As needed")
	assert.Equal(t, "[ ] id-1  Ibuprofen 200mg, As needed\n", out)

	out = c.mustRun("med", "list")
	assert.Contains(t, out, "[x] 1  Aspirin 100mg, Once daily (last taken 2024-01-01 08:00)")
	assert.Contains(t, out, "[ ] 2  Vitamin D 1000IU, Once daily")
	assert.Contains(t, out, "[ ] id-1  Ibuprofen 200mg, As needed")

	c.clock.Advance(time.Minute)
	out = c.mustRun("med", "take", "id-1")
	assert.Equal(t, "[x] id-1  Ibuprofen 200mg, As needed (last taken 2024-01-01 09:01)\n", out)

	out = c.mustRun("stats")
	assert.Equal(t, "3 of 5 medications taken (60%)\n", out)

	// Taking again flips it back and keeps the time.
	c.clock.Advance(time.Minute)
	out = c.mustRun("med", "take", "id-1")
	assert.Equal(t, "[ ] id-1  Ibuprofen 200mg, As needed (last taken 2024-01-01 09:01)\n", out)
}

func TestMed_Errors(t *testing.T) {
	c := newTestCLI(t)
	c.loginPatient()

	out, err := c.run("med", "take", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "Error [NOT_FOUND]: medication not found\n", out)

	out, err = c.run("med", "add", "--name", " ", "--dosage", "1mg", "--frequency", "daily")
	require.Error(t, err)
	assert.Contains(t, out, "Error [VALIDATION]")
}

func TestRoleRestrictions(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("login", "--email", "caretaker@example.com", "--password", "password123", "--role", "caretaker")

	out, err := c.run("stats")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "Error [UNAUTHENTICATED]: Only patients can use this command\n", out)

	c.loginPatient()
	out, err = c.run("overview")
	require.Error(t, err)
	assert.Equal(t, "Error [UNAUTHENTICATED]: Only caretakers can use this command\n", out)
}

func TestOverview_Golden(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("login", "--email", "caretaker@example.com", "--password", "password123", "--role", "caretaker")

	out := c.mustRun("overview")
	newGoldie(t).Assert(t, "overview", []byte(out))
}

func TestBadConfigFile(t *testing.T) {
	c := newTestCLI(t)
	out, err := c.run("--config", filepath.Join(c.dir, "missing.yaml"), "whoami")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, out)
}

func TestCheck(t *testing.T) {
	scenarios := filepath.Join("..", "harness", "testdata", "scenarios")

	t.Run("passing", func(t *testing.T) {
		c := newTestCLI(t)
		out := c.mustRun("check", scenarios)
		assert.Contains(t, out, "✓ adherence")
		assert.Contains(t, out, "✓ caretaker")
		assert.Contains(t, out, "✓ signup")
		assert.Contains(t, out, "3 passed, 0 failed, 3 total")
	})

	t.Run("filter", func(t *testing.T) {
		c := newTestCLI(t)
		out := c.mustRun("check", scenarios, "--filter", "care*")
		assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	})

	t.Run("json", func(t *testing.T) {
		c := newTestCLI(t)
		out := c.mustRun("--format", "json", "check", filepath.Join(scenarios, "signup.yaml"))

		var resp struct {
			Status string      `json:"status"`
			Data   CheckResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 1, resp.Data.Passed)
		assert.Equal(t, "signup", resp.Data.Scenarios[0].Name)
	})

	t.Run("missing path", func(t *testing.T) {
		c := newTestCLI(t)
		_, err := c.run("check", filepath.Join(c.dir, "nope"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("failing", func(t *testing.T) {
		c := newTestCLI(t)
		file := filepath.Join(c.dir, "bad.yaml")
		require.NoError(t, os.WriteFile(file, []byte(`name: bad
description: Expects the wrong adherence.
steps:
  - action: login
    args: {email: patient@example.com, password: password123, role: patient}
  - action: stats
    expect:
      result: {percentage: 100}
`), 0o644))

		out, err := c.run("check", file)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ bad")
		assert.Contains(t, out, "step 2 (stats): result.percentage: expected 100, got 50")
	})

	t.Run("update then compare", func(t *testing.T) {
		c := newTestCLI(t)
		src, err := os.ReadFile(filepath.Join(scenarios, "adherence.yaml"))
		require.NoError(t, err)
		file := filepath.Join(c.dir, "adherence.yaml")
		require.NoError(t, os.WriteFile(file, src, 0o644))

		c.mustRun("check", file, "--update")
		golden, err := os.ReadFile(filepath.Join(c.dir, "golden", "adherence.golden"))
		require.NoError(t, err)
		want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "adherence.golden"))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(golden))

		out := c.mustRun("check", file)
		assert.Contains(t, out, "✓ adherence")

		require.NoError(t, os.WriteFile(filepath.Join(c.dir, "golden", "adherence.golden"), []byte("{}\n"), 0o644))
		out, err = c.run("check", file)
		require.Error(t, err)
		assert.Contains(t, out, "trace does not match golden file")
	})
	t.Run("sibling golden directory", func(t *testing.T) {
		c := newTestCLI(t)
		src, err := os.ReadFile(filepath.Join(scenarios, "adherence.yaml"))
		require.NoError(t, err)
		scenarioDir := filepath.Join(c.dir, "testdata", "scenarios")
		goldenDir := filepath.Join(c.dir, "testdata", "golden")
		require.NoError(t, os.MkdirAll(scenarioDir, 0o755))
		require.NoError(t, os.MkdirAll(goldenDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(scenarioDir, "adherence.yaml"), src, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "adherence.golden"), []byte("{}\n"), 0o644))

		out, err := c.run("check", scenarioDir)
		require.Error(t, err)
		assert.Contains(t, out, "trace does not match golden file")

		c.mustRun("check", scenarioDir, "--update")
		_, err = os.Stat(filepath.Join(scenarioDir, "golden"))
		assert.True(t, os.IsNotExist(err))
		out = c.mustRun("check", scenarioDir)
		assert.Contains(t, out, "✓ adherence")
	})
}

func TestGoldenFilePath(t *testing.T) {
	root := t.TempDir()
	mkdir := func(parts ...string) string {
		dir := filepath.Join(append([]string{root}, parts...)...)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		return dir
	}
	mkdir("nested", "scenarios", "golden")
	mkdir("nested", "golden")
	mkdir("sibling", "scenarios")
	mkdir("sibling", "golden")
	mkdir("plain", "scenarios")

	tests := []struct {
		name     string
		scenario string
		want     string
	}{
		{
			name:     "golden inside scenario dir wins",
			scenario: filepath.Join(root, "nested", "scenarios", "a.yaml"),
			want:     filepath.Join(root, "nested", "scenarios", "golden", "a.golden"),
		},
		{
			name:     "golden beside scenario dir",
			scenario: filepath.Join(root, "sibling", "scenarios", "a.yaml"),
			want:     filepath.Join(root, "sibling", "golden", "a.golden"),
		},
		{
			name:     "no golden dir yet",
			scenario: filepath.Join(root, "plain", "scenarios", "a.yml"),
			want:     filepath.Join(root, "plain", "scenarios", "golden", "a.golden"),
		},
		{
			name:     "repo scenarios",
			scenario: filepath.Join("..", "harness", "testdata", "scenarios", "adherence.yaml"),
			want:     filepath.Join("..", "harness", "testdata", "golden", "adherence.golden"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, goldenFilePath(tt.scenario))
		})
	}
}
