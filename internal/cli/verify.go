package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/xdeploy/internal/orchestrator"
	"github.com/pendergraft/xdeploy/internal/validation"
)

type verifyOptions struct {
	contract contractFlags
	address  string
	targets  []string
	noStore  bool
}

func createVerifyCmd() *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an existing deployment on every target network",
		Long: `Submit the source of a contract that is already deployed at the same address
on every target network. No transaction is sent and no key is needed.

The contract must come from a Foundry or Hardhat project with build-info, so
that the exact compiler input can be uploaded.

EXAMPLES:
  xdeploy verify --contract Counter --address 0x5FbDB2315678afecb367f032d93F642f64180aa3 --chains sepolia,baseSepolia

  # With constructor arguments
  xdeploy verify --contract Token --args deploy-args.json --address 0x... --chains 1
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}

	opts.contract.register(cmd, false)
	cmd.Flags().StringVar(&opts.address, "address", "", "deployed contract address (required)")
	cmd.Flags().StringSliceVar(&opts.targets, "chains", nil, "target networks by name or chain id")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not record the run in the store")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func runVerify(cmd *cobra.Command, opts verifyOptions) error {
	if err := validation.ValidateAddress(opts.address); err != nil {
		return err
	}
	address := common.HexToAddress(opts.address)

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

	input, err := opts.contract.load()
	if err != nil {
		return err
	}
	bundle := input.bundle()
	if bundle == nil {
		return fmt.Errorf("%s has no build-info; rebuild the project with build info enabled", input.name)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineOpts, cleanup, err := runObservers(ctx, cfg, opts.noStore, "", logger)
	if err != nil {
		return err
	}
	defer cleanup()
	engineOpts = append(engineOpts,
		orchestrator.WithConcurrency(cfg.Deploy.Concurrency),
		orchestrator.WithLogger(logger),
	)

	engine := orchestrator.New(registry, nil, newDispatcher(cfg, logger), nil, engineOpts...)
	rep, err := engine.VerifyExisting(ctx, targets, input.name, address, bundle)
	if err != nil {
		return err
	}

	if err := printReport(cmd.OutOrStdout(), format, rep); err != nil {
		return err
	}
	return reportExit(rep)
}
