package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/chains/evm/artifacts"
	"github.com/pendergraft/xdeploy/internal/config"
	"github.com/pendergraft/xdeploy/internal/deployer"
	"github.com/pendergraft/xdeploy/internal/observability/metrics"
	"github.com/pendergraft/xdeploy/internal/retry"
	"github.com/pendergraft/xdeploy/internal/signer"
	"github.com/pendergraft/xdeploy/internal/storage"
	"github.com/pendergraft/xdeploy/internal/validation"
	"github.com/pendergraft/xdeploy/internal/verification"
	"github.com/pendergraft/xdeploy/internal/verification/blockscout"
	"github.com/pendergraft/xdeploy/internal/verification/etherscan"
	"github.com/pendergraft/xdeploy/internal/verification/sourcify"
)

// contractFlags selects what to deploy: a compiled artifact, or raw init code
type contractFlags struct {
	project  string
	contract string
	argsFile string
	argsHex  string
	initCode string
}

func (f *contractFlags) register(cmd *cobra.Command, allowInitCode bool) {
	cmd.Flags().StringVar(&f.project, "project", "", "Foundry or Hardhat project root (default: .)")
	cmd.Flags().StringVar(&f.contract, "contract", "", "contract name or path/File.sol:Name")
	cmd.Flags().StringVar(&f.argsFile, "args", "", "JSON file with an array of constructor arguments")
	cmd.Flags().StringVar(&f.argsHex, "args-hex", "", "ABI-encoded constructor arguments")
	if allowInitCode {
		cmd.Flags().StringVar(&f.initCode, "init-code", "", "raw creation bytecode instead of an artifact")
	}
}

// contractInput is a resolved contract with its encoded constructor arguments
type contractInput struct {
	name     string
	artifact *artifacts.Artifact // nil for raw init code
	initCode []byte
	args     []byte
}

func (f contractFlags) load() (*contractInput, error) {
	pc := loadProjectConfigSilent()
	fileValue := func(get func(*ProjectConfig) string) string {
		if pc == nil {
			return ""
		}
		return get(pc)
	}

	argsFile := resolve(f.argsFile, "", fileValue(func(c *ProjectConfig) string { return c.Args }), "")
	if argsFile != "" && f.argsHex != "" {
		return nil, fmt.Errorf("--args and --args-hex are mutually exclusive")
	}

	var hexArgs []byte
	if f.argsHex != "" {
		if err := validation.ValidateHex(f.argsHex); err != nil {
			return nil, fmt.Errorf("--args-hex: %w", err)
		}
		b, err := deployer.DecodeHex(f.argsHex)
		if err != nil {
			return nil, fmt.Errorf("invalid --args-hex: %w", err)
		}
		hexArgs = b
	}

	if f.initCode != "" {
		if err := validation.ValidateHex(f.initCode); err != nil {
			return nil, fmt.Errorf("--init-code: %w", err)
		}
		code, err := deployer.DecodeHex(f.initCode)
		if err != nil {
			return nil, fmt.Errorf("invalid --init-code: %w", err)
		}
		if len(code) == 0 {
			return nil, fmt.Errorf("--init-code is empty")
		}
		if f.argsFile != "" {
			return nil, fmt.Errorf("--args needs an artifact ABI; use --args-hex with --init-code")
		}
		name := f.contract
		if name == "" {
			name = "contract"
		}
		return &contractInput{name: name, initCode: code, args: hexArgs}, nil
	}

	contract := resolve(f.contract, "", fileValue(func(c *ProjectConfig) string { return c.Contract }), "")
	if contract == "" {
		return nil, fmt.Errorf("no contract given (use --contract or set contract in xdeploy.toml)")
	}
	project := resolve(f.project, "", fileValue(func(c *ProjectConfig) string { return c.Project }), ".")

	art, err := artifacts.Load(project, contract)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", contract, err)
	}

	args := hexArgs
	if argsFile != "" {
		raw, err := os.ReadFile(argsFile)
		if err != nil {
			return nil, fmt.Errorf("reading constructor arguments: %w", err)
		}
		if args, err = art.EncodeArgs(raw); err != nil {
			return nil, err
		}
	} else if args == nil {
		if args, err = art.EncodeArgs(nil); err != nil {
			return nil, err
		}
	}

	return &contractInput{name: art.Name, artifact: art, initCode: art.Bytecode, args: args}, nil
}

func (in *contractInput) spec(salt [32]byte) deployer.Spec {
	if in.artifact != nil {
		return in.artifact.DeploySpec(salt, in.args)
	}
	return deployer.Spec{
		ContractName:    in.name,
		InitCode:        in.initCode,
		ConstructorArgs: in.args,
		Salt:            salt,
	}
}

// bundle is the verification input, nil without build-info
func (in *contractInput) bundle() *verification.SourceBundle {
	if in.artifact == nil {
		return nil
	}
	return in.artifact.SourceBundle(in.args)
}

// resolveSalt applies flag > XDEPLOY_SALT > config file
func resolveSalt(flagValue string) ([32]byte, string, error) {
	raw := resolve(flagValue, "XDEPLOY_SALT", projectConfigValue(func(c *ProjectConfig) string { return c.Salt }), "")
	if raw == "" {
		return [32]byte{}, "", fmt.Errorf("no salt given (use --salt, XDEPLOY_SALT or set salt in xdeploy.toml)")
	}
	if err := validation.ValidateSalt(raw); err != nil {
		return [32]byte{}, "", err
	}
	salt, err := deployer.ParseSalt(raw)
	return salt, raw, err
}

// resolveTargets turns --chains (or the config file targets) into chain ids
func resolveTargets(registry *chains.Registry, flagValue []string) ([]uint64, error) {
	tokens := flagValue
	if len(tokens) == 0 {
		if pc := loadProjectConfigSilent(); pc != nil {
			tokens = pc.Targets
		}
	}
	if len(tokens) == 0 {
		if env := os.Getenv("XDEPLOY_TARGETS"); env != "" {
			tokens = strings.Split(env, ",")
		}
	}
	if len(tokens) == 0 {
		return nil, &chains.ConfigError{Problems: []string{"no target chains (use --chains or set targets in xdeploy.toml)"}, Err: chains.ErrEmptySelection}
	}
	return registry.ParseTargets(tokens)
}

func loadRegistry() (*chains.Registry, error) {
	return chains.Load(getNetworksFile())
}

func newDeployer(cfg *config.Config, factoryFlag string, logger *slog.Logger) (*deployer.Deployer, error) {
	name := resolve(factoryFlag, "XDEPLOY_FACTORY", projectConfigValue(func(c *ProjectConfig) string { return c.Factory }), cfg.Deploy.Factory)
	factory, err := deployer.FactoryByName(name)
	if err != nil {
		return nil, err
	}
	return deployer.New(factory,
		deployer.WithGasLimit(cfg.Deploy.GasLimit),
		deployer.WithRetryPolicy(retry.NewPolicy(cfg.Deploy.MaxAttempts, cfg.Deploy.Backoff.Initial, cfg.Deploy.Backoff.Max)),
		deployer.WithLogger(logger),
	), nil
}

func newSigner(cfg *config.Config, hexKey string, logger *slog.Logger) (*signer.KeySigner, error) {
	return signer.NewKeySigner(hexKey,
		signer.WithCallTimeout(cfg.Deploy.RPCTimeout),
		signer.WithLogger(logger),
	)
}

// newDispatcher wires every explorer adapter behind one per-host rate limit pool
func newDispatcher(cfg *config.Config, logger *slog.Logger) *verification.Dispatcher {
	limiters := verification.NewLimiters(cfg.Verify.RateLimit, 1)
	timeout := cfg.Verify.HTTPTimeout

	explorers := verification.NewRegistry()
	explorers.Register(chains.ExplorerEtherscan, etherscan.Constructor(
		etherscan.WithTimeout(timeout),
		etherscan.WithLimiters(limiters),
		etherscan.WithLogger(logger),
	))
	explorers.Register(chains.ExplorerBlockscout, blockscout.Constructor(
		blockscout.WithTimeout(timeout),
		blockscout.WithLimiters(limiters),
	))
	explorers.Register(chains.ExplorerCustom, sourcify.Constructor(
		sourcify.WithTimeout(timeout),
		sourcify.WithLimiters(limiters),
	))

	return verification.NewDispatcher(explorers,
		verification.WithSettleDelay(cfg.Verify.SettleDelay),
		verification.WithRetryPolicy(retry.NewPolicy(cfg.Verify.MaxAttempts, cfg.Verify.Backoff.Initial, cfg.Verify.Backoff.Max)),
		verification.WithPolling(cfg.Verify.PollInterval, cfg.Verify.PollTimeout),
		verification.WithAttemptHook(func(kind chains.ExplorerKind, outcome string) {
			metrics.VerificationAttempt(string(kind), outcome)
		}),
		verification.WithLogger(logger),
	)
}

// openStore opens and migrates the configured run store
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}
