package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/xdeploy/internal/auth"
	"github.com/pendergraft/xdeploy/internal/observability/metrics"
	"github.com/pendergraft/xdeploy/internal/server"
)

func createServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run history over HTTP",
		Long: `Start the read-only report API over the run store.

Endpoints: /health, /readyz, /metrics, GET /api/v1/runs and GET /api/v1/runs/{id}.
The store is selected with XDEPLOY_STORAGE_TYPE (sqlite or postgres) and
DATABASE_URL.

EXAMPLES:
  xdeploy serve

  # Different port, Postgres store
  DATABASE_URL=postgres://localhost/xdeploy xdeploy serve --port 9090
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from XDEPLOY_PORT)")

	cmd.AddCommand(createKeygenCmd())

	return cmd
}

func createKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key for the report API",
		Long: `Generate a random API key.

Add it to XDEPLOY_API_KEYS (comma separated) on the server, and pass it to
clients with --api-key, XDEPLOY_API_KEY or api_key in xdeploy.toml.

EXAMPLES:
  XDEPLOY_API_KEYS=$(xdeploy serve keygen) xdeploy serve
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, port int) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	logger.Info("starting xdeploy server", "version", cmd.Root().Version, "auth", len(cfg.Server.APIKeys) > 0)

	metrics.Init(cfg.Metrics.Enabled, "xdeploy")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(cfg, store, logger)
	defer srv.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return server.ListenAndServe(ctx, cfg.Server, addr, srv.Handler(), logger)
}
