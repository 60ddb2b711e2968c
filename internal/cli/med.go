package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/medtrack/internal/medication"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/validate"
)

// NewMedCommand creates the med command group.
func NewMedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "med",
		Short: "Manage the signed-in patient's medications",
	}

	cmd.AddCommand(newMedAddCommand(rootOpts))
	cmd.AddCommand(newMedListCommand(rootOpts))
	cmd.AddCommand(newMedTakeCommand(rootOpts))

	return cmd
}

// patientTracker opens the app and loads the signed-in patient's medications.
func patientTracker(cmd *cobra.Command, opts *RootOptions) (*app, *medication.Tracker, record.User, error) {
	a, err := openApp(cmd, opts, slog.LevelWarn, false)
	if err != nil {
		return nil, nil, record.User{}, err
	}

	ctx := commandContext(cmd)
	user, err := a.requireUser(ctx, record.RolePatient)
	if err != nil {
		a.close()
		return nil, nil, record.User{}, a.fail(err)
	}

	tr := a.tracker()
	if err := tr.Refresh(ctx, user.ID); err != nil {
		a.close()
		return nil, nil, record.User{}, a.fail(err)
	}
	return a, tr, user, nil
}

func (a *app) tracker() *medication.Tracker {
	return medication.NewTracker(a.store, medication.WithClock(a.clock), medication.WithLogger(a.logger))
}

// MedAddOptions holds flags for the med add command.
type MedAddOptions struct {
	*RootOptions
	Form validate.MedicationForm
}

func newMedAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MedAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a medication",
		Long: `Add a medication for the signed-in patient. New medications start untaken.

Example:
  medtrack med add --name Aspirin --dosage 100mg --frequency "Once daily"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMedAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Form.Name, "name", "", "medication name")
	cmd.Flags().StringVar(&opts.Form.Dosage, "dosage", "", "dosage, e.g. 100mg")
	cmd.Flags().StringVar(&opts.Form.Frequency, "frequency", "", "frequency, e.g. Once daily")

	return cmd
}

func runMedAdd(opts *MedAddOptions, cmd *cobra.Command) error {
	a, tr, user, err := patientTracker(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	if errs := a.validator.Medication(opts.Form); len(errs) > 0 {
		return a.fail(errs)
	}
	med, err := tr.Add(commandContext(cmd), opts.Form, user.ID)
	if err != nil {
		return a.fail(err)
	}
	return a.out.Success(medicationView{med})
}

func newMedListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List medications",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, tr, _, err := patientTracker(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			return a.out.Success(medicationListView(tr.Medications()))
		},
	}
}

func newMedTakeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "take <id>",
		Short: "Toggle whether a medication has been taken",
		Long: `Toggle the taken flag of a medication. Marking it taken records the
current time as last taken; running take again marks it untaken and keeps
that time.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, tr, _, err := patientTracker(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			med, err := tr.MarkAsTaken(commandContext(cmd), args[0])
			if err != nil {
				return a.fail(err)
			}
			return a.out.Success(medicationView{med})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show the signed-in patient's adherence",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, tr, user, err := patientTracker(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.close()

			return a.out.Success(tr.Stats(user.ID))
		},
	}
}

// NewOverviewCommand creates the overview command.
func NewOverviewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "overview",
		Short:         "Show adherence across all patients (caretakers only)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, slog.LevelWarn, false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := commandContext(cmd)
			if _, err := a.requireUser(ctx, record.RoleCaretaker); err != nil {
				return a.fail(err)
			}
			return a.overview(ctx)
		},
	}
}

func (a *app) overview(ctx context.Context) error {
	ov, err := medication.BuildOverview(ctx, a.store)
	if err != nil {
		a.logger.Error("failed to build overview", "error", err)
		return a.fail(record.StoreFailure(err))
	}
	return a.out.Success(overviewView{ov})
}
