package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/roach88/medtrack/internal/config"
	"github.com/roach88/medtrack/internal/httpapi"
)

const (
	addrFlag   = "addr"
	originFlag = "allow-origin"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	flags := map[string]cobraflags.Flag{
		addrFlag: &cobraflags.StringFlag{
			Name:  addrFlag,
			Value: "",
			Usage: "listen address (default from config, :8080)",
		},
		originFlag: &cobraflags.StringFlag{
			Name:  originFlag,
			Value: "",
			Usage: "allowed CORS origin (default: any)",
		},
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		Long: `Serve the JSON HTTP API until interrupted.

Example:
  medtrack serve --addr :8080
  MEDTRACK_BACKEND=postgres MEDTRACK_POSTGRES_URL=postgres://... medtrack serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr := flags[addrFlag].GetString(); addr != "" {
				rootOpts.setOverride(config.KeyHTTPAddr, addr)
			}
			return runServe(rootOpts, flags[originFlag].GetString(), cmd)
		},
	}

	cobraflags.RegisterMap(cmd, flags)

	return cmd
}

func (o *RootOptions) setOverride(key string, value any) {
	if o.Overrides == nil {
		o.Overrides = make(map[string]any)
	}
	o.Overrides[key] = value
}

func runServe(opts *RootOptions, origin string, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts, slog.LevelInfo, false)
	if err != nil {
		return err
	}
	defer a.close()

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	var serverOpts []httpapi.Option
	serverOpts = append(serverOpts, httpapi.WithClock(a.clock), httpapi.WithLogger(a.logger))
	if origin != "" {
		serverOpts = append(serverOpts, httpapi.WithAllowedOrigins(origin))
	}
	srv := httpapi.New(a.store, a.auth, a.tokens, a.validator, serverOpts...)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("starting server", "backend", a.cfg.Backend, "addr", a.cfg.HTTPAddr)
	if err := srv.Run(ctx, a.cfg.HTTPAddr); err != nil && err != context.Canceled {
		return WrapExitError(ExitCommandError, "server error", err)
	}
	return nil
}
