// Package cmd defines and implements the CLI commands for the itemcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/app"
	"github.com/JakeFAU/item-crawler/internal/config"
	"github.com/JakeFAU/item-crawler/internal/logging"
)

type ctxKey string

const appKey ctxKey = "app"

// newRootCmd builds the command tree. opts are forwarded to app.New so tests
// can inject collaborators.
func newRootCmd(opts ...app.Option) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "itemcrawler",
		Short: "Mirrors a remote item API into a local store",
		Long: `itemcrawler fetches every item id from 0 up to the remote maximum and
persists each one exactly once. Runs are resumable: only ids missing from
the store are fetched.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load configuration and build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			opts := append([]app.Option{app.WithProgressOutput(cmd.ErrOrStderr())}, opts...)
			instance, err := app.New(cmd.Context(), cfg, logger, opts...)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, &runtime{app: instance, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			rt, ok := cmd.Context().Value(appKey).(*runtime)
			if !ok {
				return
			}
			rt.close()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); env vars use the ITEMCRAWLER_ prefix")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

type runtime struct {
	app    *app.App
	logger *zap.Logger
	closed bool
}

func (r *runtime) close() {
	if r.closed {
		return
	}
	r.closed = true
	if err := r.app.Close(); err != nil {
		r.logger.Warn("shutdown", zap.Error(err))
	}
	_ = r.logger.Sync()
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// Execute runs the CLI with SIGINT/SIGTERM cancelling the command context and
// returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ran, err := newRootCmd().ExecuteContextC(ctx)
	if ran != nil && ran.Context() != nil {
		// PersistentPostRun is skipped when RunE fails.
		if rt, ok := ran.Context().Value(appKey).(*runtime); ok {
			rt.close()
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "itemcrawler:", err)
		return 1
	}
	return 0
}
