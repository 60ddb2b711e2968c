package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/roach88/medtrack/internal/harness"
)

const (
	flagUpdate = "update"
	flagFilter = "filter"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// CheckResult holds the overall result of a check run.
type CheckResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewCheckCommand creates the check command, which replays scenario files
// against a fresh in-memory store.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var update bool
	flags := map[string]cobraflags.Flag{
		flagFilter: &cobraflags.StringFlag{
			Name:  flagFilter,
			Usage: "filter scenarios by glob pattern",
		},
	}

	cmd := &cobra.Command{
		Use:   "check <scenario-file|dir>...",
		Short: "Replay adherence scenarios",
		Long: `Replay scenario files step by step and check each step's expectation.

Each run starts from a fresh in-memory store with a manual clock that
advances one minute per step, so traces are deterministic. Golden traces
live in golden/<name>.golden, either in the scenario's directory or in a
golden directory beside it (testdata/scenarios with testdata/golden). When
the golden file exists the trace must match it; --update writes it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing path, bad filter)

Examples:
  medtrack check ./scenarios
  medtrack check ./scenarios --filter "care*"
  medtrack check ./scenarios --update`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, rootOpts, args, flags[flagFilter].GetString(), update)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().BoolVar(&update, flagUpdate, false, "regenerate golden files")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *RootOptions, paths []string, filter string, update bool) error {
	if _, err := filepath.Match(filter, ""); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, filter)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario path %s", p), err)
		}
		files = append(files, found...)
	}

	out := newFormatter(opts, cmd)
	result := CheckResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if opts.Format == "json" {
			return out.Success(result)
		}
		fmt.Fprintln(out.Writer, "No scenarios found.")
		return nil
	}

	for _, file := range files {
		sr := checkScenario(cmd, file, update)
		if opts.Format != "json" {
			printScenarioResult(out.Writer, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out.Writer, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

// findScenarioFiles returns path itself when it is a file, or every YAML file
// below it when it is a directory. golden/ directories are skipped.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func checkScenario(cmd *cobra.Command, file string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("load: %v", err)},
		}
	}

	result, err := harness.Run(commandContext(cmd), scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("run: %v", err)},
		}
	}

	sr := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, err.Error())
		return sr
	}

	goldenPath := goldenFilePath(file)
	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("create golden directory: %v", err))
			return sr
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("write golden file: %v", err))
		}
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("read golden file: %v", err))
	case !bytes.Equal(golden, snapshot):
		sr.Pass = false
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return sr
}

// goldenFilePath returns the golden file for dir/<name>.yaml. It looks in
// dir/golden first, then in a golden directory beside dir, which is the
// testdata/scenarios + testdata/golden layout. Without either it falls back
// to dir/golden.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	name := strings.TrimSuffix(filepath.Base(scenarioFile), filepath.Ext(scenarioFile))
	for _, goldenDir := range []string{
		filepath.Join(dir, "golden"),
		filepath.Join(filepath.Dir(dir), "golden"),
	} {
		if info, err := os.Stat(goldenDir); err == nil && info.IsDir() {
			return filepath.Join(goldenDir, name+".golden")
		}
	}
	return filepath.Join(dir, "golden", name+".golden")
}

func printScenarioResult(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
