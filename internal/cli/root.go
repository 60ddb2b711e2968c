package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/medtrack/internal/clock"
	"github.com/roach88/medtrack/internal/idgen"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Clock, IDs and Overrides replace the system clock, the UUIDv7 id
	// generator and config values (for testing). Nil means default.
	Clock     clock.Clock
	IDs       idgen.Generator
	Overrides map[string]any
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the medtrack CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medtrack",
		Short: "medtrack - medication adherence tracker",
		Long: `Track which medications a patient has taken, for patients and their caretakers.

Sign in once with "medtrack login"; the session is kept until "medtrack logout".`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./medtrack.yaml)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSignupCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewMedCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewOverviewCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}
