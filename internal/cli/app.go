package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/medtrack/internal/auth"
	"github.com/roach88/medtrack/internal/clock"
	"github.com/roach88/medtrack/internal/config"
	"github.com/roach88/medtrack/internal/idgen"
	"github.com/roach88/medtrack/internal/record"
	"github.com/roach88/medtrack/internal/store"
	"github.com/roach88/medtrack/internal/store/pgstore"
	"github.com/roach88/medtrack/internal/store/slotstore"
	"github.com/roach88/medtrack/internal/validate"
)

const redisKeyPrefix = "medtrack:"

// app is everything a command needs, opened from config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	out       *OutputFormatter
	clock     clock.Clock
	store     store.RecordStore
	hasher    *auth.Hasher
	auth      *auth.Service
	tokens    *auth.TokenManager
	validator *validate.Validator
	sessions  auth.SessionFile
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger logs to w. Short-lived commands only report warnings unless
// verbose; baseLevel lets serve log at info.
func newLogger(w io.Writer, verbose bool, baseLevel slog.Level) *slog.Logger {
	level := baseLevel
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp loads config and opens the configured backend. Seeding runs when
// the config enables it or forceSeed is set.
func openApp(cmd *cobra.Command, opts *RootOptions, baseLevel slog.Level, forceSeed bool) (*app, error) {
	out := newFormatter(opts, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, baseLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(config.Options{ConfigFile: opts.ConfigFile, Overrides: opts.Overrides})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.UsesDevSecret() {
		logger.Debug("using development token secret; set MEDTRACK_TOKEN_SECRET to override")
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.UUIDv7{}
	}

	ctx := commandContext(cmd)
	logger.Debug("opening store", "backend", cfg.Backend)
	st, err := openStore(ctx, cfg, ids)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	hasher := auth.NewHasher(cfg.BcryptCost)
	if cfg.Seed || forceSeed {
		if err := store.Seed(ctx, st, store.DefaultSeed(), hasher, clk.Now()); err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to seed store", err)
		}
	}

	tokens, err := auth.NewTokenManager([]byte(cfg.TokenSecret), cfg.TokenTTL, clk)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to configure tokens", err)
	}
	v, err := validate.New()
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load form schema", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		out:       out,
		clock:     clk,
		store:     st,
		hasher:    hasher,
		auth:      auth.NewService(st, hasher, auth.WithDelay(cfg.AuthDelay), auth.WithLogger(logger)),
		tokens:    tokens,
		validator: v,
		sessions:  auth.SessionFile{Path: cfg.SessionFile},
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, ids idgen.Generator) (store.RecordStore, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		return store.Open(cfg.DatabasePath, store.WithIDGenerator(ids))
	case config.BackendFile:
		kv, err := slotstore.NewFileKV(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return slotstore.Open(ctx, kv, slotstore.WithIDGenerator(ids))
	case config.BackendRedis:
		kv, err := slotstore.NewRedisKV(ctx, cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, err
		}
		st, err := slotstore.Open(ctx, kv, slotstore.WithIDGenerator(ids))
		if err != nil {
			kv.Close()
			return nil, err
		}
		return st, nil
	case config.BackendPostgres:
		return pgstore.Open(ctx, cfg.PostgresURL, pgstore.WithIDGenerator(ids))
	case config.BackendMemory:
		return slotstore.Open(ctx, slotstore.NewMemoryKV(), slotstore.WithIDGenerator(ids))
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing store", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// currentUser resolves the saved session token to a stored user.
func (a *app) currentUser(ctx context.Context) (record.User, error) {
	token, ok, err := a.sessions.Load()
	if err != nil {
		return record.User{}, err
	}
	if !ok {
		return record.User{}, record.Unauthenticated(nil)
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return record.User{}, err
	}
	return a.auth.Resume(ctx, claims)
}

// requireUser is currentUser restricted to role.
func (a *app) requireUser(ctx context.Context, role record.Role) (record.User, error) {
	user, err := a.currentUser(ctx)
	if err != nil {
		return record.User{}, err
	}
	if user.Role != role {
		return record.User{}, &record.Error{
			Code:    record.ErrCodeUnauthenticated,
			Message: fmt.Sprintf("Only %ss can use this command", role),
		}
	}
	return user, nil
}

// fail reports err through the formatter and returns the matching exit error.
func (a *app) fail(err error) error {
	return reportError(a.out, err)
}

func reportError(out *OutputFormatter, err error) error {
	var fieldErrs validate.FieldErrors
	if errors.As(err, &fieldErrs) {
		_ = out.Error(string(record.ErrCodeValidation), fieldErrs.Error(), map[string]string(fieldErrs))
		return WrapExitError(ExitFailure, "invalid input", err)
	}

	code := record.CodeOf(err)
	switch code {
	case "":
		_ = out.Error(string(record.ErrCodeStore), err.Error(), nil)
		return WrapExitError(ExitCommandError, "command failed", err)
	case record.ErrCodeStore:
		_ = out.Error(string(code), record.Message(err), nil)
		return WrapExitError(ExitCommandError, record.Message(err), err)
	}
	_ = out.Error(string(code), record.Message(err), nil)
	return WrapExitError(ExitFailure, record.Message(err), err)
}
