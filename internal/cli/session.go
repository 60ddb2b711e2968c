package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/medtrack/internal/auth"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/validate"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store and insert the demo accounts",
		Long: `Create the configured store if needed and insert the default rows:
a patient (patient@example.com) and a caretaker (caretaker@example.com), both
with password "password123", plus four medications for the patient.

Existing rows are left untouched, so init is safe to run repeatedly.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, slog.LevelWarn, true)
			if err != nil {
				return err
			}
			defer a.close()

			return a.out.Success(messageView{
				Message: fmt.Sprintf("Initialized %s store", a.cfg.Backend),
			})
		},
	}
}

// SignupOptions holds flags for the signup command.
type SignupOptions struct {
	*RootOptions
	Form validate.SignupForm
}

// NewSignupCommand creates the signup command.
func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Long: `Create an account and sign in.

Example:
  medtrack signup --first Ann --last Lee --email ann@example.com \
    --password secret1 --confirm secret1 --role patient`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Form.FirstName, "first", "", "first name")
	cmd.Flags().StringVar(&opts.Form.LastName, "last", "", "last name")
	cmd.Flags().StringVar(&opts.Form.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Form.Password, "password", "", "password (at least 6 characters)")
	cmd.Flags().StringVar(&opts.Form.ConfirmPassword, "confirm", "", "password again")
	cmd.Flags().StringVar(&opts.Form.Role, "role", string(record.RolePatient), "patient or caretaker")

	return cmd
}

func runSignup(opts *SignupOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts.RootOptions, slog.LevelWarn, false)
	if err != nil {
		return err
	}
	defer a.close()

	if errs := a.validator.Signup(opts.Form); len(errs) > 0 {
		return a.fail(errs)
	}
	role, err := record.ParseRole(opts.Form.Role)
	if err != nil {
		return a.fail(err)
	}

	a.out.VerboseLog("Registering %s as %s", opts.Form.Email, role)
	sess := auth.NewSession(a.auth)
	err = sess.Signup(commandContext(cmd), auth.SignupData{
		Email:     opts.Form.Email,
		Password:  opts.Form.Password,
		FirstName: opts.Form.FirstName,
		LastName:  opts.Form.LastName,
		Role:      role,
	})
	if err != nil {
		return a.fail(err)
	}
	return a.startSession(sess)
}

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Form validate.LoginForm
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Long: `Sign in as a patient or caretaker. The same email may hold one account
per role; the role must match the account.

Example:
  medtrack login --email patient@example.com --password password123 --role patient`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Form.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Form.Password, "password", "", "password")
	cmd.Flags().StringVar(&opts.Form.Role, "role", string(record.RolePatient), "patient or caretaker")

	return cmd
}

func runLogin(opts *LoginOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts.RootOptions, slog.LevelWarn, false)
	if err != nil {
		return err
	}
	defer a.close()

	if errs := a.validator.Login(opts.Form); len(errs) > 0 {
		return a.fail(errs)
	}
	role, err := record.ParseRole(opts.Form.Role)
	if err != nil {
		return a.fail(err)
	}

	sess := auth.NewSession(a.auth)
	if err := sess.Login(commandContext(cmd), opts.Form.Email, opts.Form.Password, role); err != nil {
		return a.fail(err)
	}
	return a.startSession(sess)
}

// startSession saves a token for the session's user and prints the user.
func (a *app) startSession(sess *auth.Session) error {
	user, ok := sess.User()
	if !ok {
		return a.fail(record.Unauthenticated(nil))
	}
	token, err := a.tokens.Issue(user)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to issue session", err)
	}
	if err := a.sessions.Save(token); err != nil {
		return WrapExitError(ExitCommandError, "failed to save session", err)
	}
	a.out.VerboseLog("Session saved to %s", a.sessions.Path)
	return a.out.Success(userView{user})
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Sign out",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, slog.LevelWarn, false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.sessions.Clear(); err != nil {
				return WrapExitError(ExitCommandError, "failed to clear session", err)
			}
			return a.out.Success(messageView{Message: "Signed out"})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "whoami",
		Short:         "Show the signed-in user",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, slog.LevelWarn, false)
			if err != nil {
				return err
			}
			defer a.close()

			user, err := a.currentUser(commandContext(cmd))
			if err != nil {
				return a.fail(err)
			}
			return a.out.Success(userView{user})
		},
	}
}
