package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/config"
	"github.com/pendergraft/xdeploy/internal/observability/metrics"
	"github.com/pendergraft/xdeploy/internal/orchestrator"
	"github.com/pendergraft/xdeploy/internal/server"
	"github.com/pendergraft/xdeploy/internal/storage"
	"github.com/pendergraft/xdeploy/internal/verification"
)

type runOptions struct {
	contract    contractFlags
	salt        string
	targets     []string
	factory     string
	noVerify    bool
	noStore     bool
	concurrency int
	metricsAddr string
}

func createRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deploy and verify a contract on every target network",
		Long: `Deploy a contract through a CREATE2 factory to every target network, then
verify its source on each network's explorer.

The same salt and init code yield the same address everywhere. Chains are
deployed concurrently and each one fails on its own; the report lists every
chain's outcome. The exit code is 0 only if every chain was verified.

The deployer key is read from DEPLOYER_PRIVATE_KEY, or prompted for.

EXAMPLES:
  # Deploy Counter from a Foundry project to two testnets
  xdeploy run --contract Counter --salt WAGMI --chains sepolia,baseSepolia

  # Constructor arguments from a JSON array
  xdeploy run --contract src/Token.sol:Token --args deploy-args.json --chains 1,10,8453

  # Deploy only, skip explorer verification
  xdeploy run --contract Counter --salt WAGMI --chains sepolia --no-verify

  # Machine-readable report
  xdeploy run --contract Counter --salt WAGMI --chains sepolia -o json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	opts.contract.register(cmd, true)
	cmd.Flags().StringVar(&opts.salt, "salt", "", "CREATE2 salt: 0x-prefixed 32-byte hex, or any string to hash")
	cmd.Flags().StringSliceVar(&opts.targets, "chains", nil, "target networks by name or chain id")
	cmd.Flags().StringVar(&opts.factory, "factory", "", "CREATE2 factory: create2deployer or arachnid")
	cmd.Flags().BoolVar(&opts.noVerify, "no-verify", false, "skip explorer verification")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not record the run in the store")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "max chains in flight (default from XDEPLOY_CONCURRENCY, 0 = all)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func runRun(cmd *cobra.Command, opts runOptions) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	format, err := getOutput()
	if err != nil {
		return err
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	targets, err := resolveTargets(registry, opts.targets)
	if err != nil {
		return err
	}
	if _, err := registry.Select(targets); err != nil {
		return err
	}

	input, err := opts.contract.load()
	if err != nil {
		return err
	}
	salt, _, err := resolveSalt(opts.salt)
	if err != nil {
		return err
	}

	verify := cfg.Verify.Enabled
	if pc := loadProjectConfigSilent(); pc != nil && pc.Verify != nil && os.Getenv("XDEPLOY_VERIFY") == "" {
		verify = *pc.Verify
	}
	if opts.noVerify {
		verify = false
	}
	bundle := input.bundle()
	if verify && bundle == nil {
		return &chains.ConfigError{
			Problems: []string{fmt.Sprintf("%s has no build-info to verify with; rebuild with build info or pass --no-verify", input.name)},
			Err:      verification.ErrMalformedBundle,
		}
	}

	dep, err := newDeployer(cfg, opts.factory, logger)
	if err != nil {
		return err
	}

	key, err := readPrivateKey(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	sessions, err := newSigner(cfg, key, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineOpts, cleanup, err := runObservers(ctx, cfg, opts.noStore, opts.metricsAddr, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	concurrency := cfg.Deploy.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}
	engineOpts = append(engineOpts,
		orchestrator.WithConcurrency(concurrency),
		orchestrator.WithVerification(verify),
		orchestrator.WithLogger(logger),
	)

	engine := orchestrator.New(registry, dep, newDispatcher(cfg, logger), sessions, engineOpts...)

	rep, err := engine.Run(ctx, targets, input.spec(salt), bundle)
	if err != nil {
		return err
	}

	if err := printReport(cmd.OutOrStdout(), format, rep); err != nil {
		return err
	}
	return reportExit(rep)
}

// runObservers builds the observers of a run: logs, metrics and the store
func runObservers(ctx context.Context, cfg *config.Config, noStore bool, metricsAddr string, logger *slog.Logger) ([]orchestrator.Option, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	metricsOn := cfg.Metrics.Enabled || metricsAddr != ""
	metrics.Init(metricsOn, "xdeploy")

	opts := []orchestrator.Option{
		orchestrator.WithObserver(orchestrator.LogObserver{Logger: logger}),
	}
	if metricsOn {
		opts = append(opts, orchestrator.WithObserver(orchestrator.MetricsObserver{}))
	}

	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := server.ListenAndServe(mctx, cfg.Server, metricsAddr, metrics.Handler(), logger); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		cleanups = append(cleanups, func() {
			cancel()
			<-done
		})
	}

	if !noStore {
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { store.Close() })
		opts = append(opts, orchestrator.WithObserver(storage.NewRunRecorder(store, logger)))
	}

	return opts, cleanup, nil
}

// reportExit turns an unsuccessful report into an ExitError
func reportExit(rep orchestrator.Report) error {
	if code := rep.ExitCode(); code != orchestrator.ExitSuccess {
		return &ExitError{Code: code, Msg: fmt.Sprintf("run %s did not complete on every chain", rep.RunID)}
	}
	return nil
}
