package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/config"
)

type addressOptions struct {
	contract contractFlags
	salt     string
	targets  []string
	factory  string
}

// addressResult is the prediction for one network, or the default factory
// when no network is given
type addressResult struct {
	Chain   string         `json:"chain,omitempty"`
	ChainID uint64         `json:"chainId,omitempty"`
	Factory string         `json:"factory"`
	Address common.Address `json:"address"`
}

type addressOutput struct {
	Contract     string          `json:"contract"`
	Salt         common.Hash     `json:"salt"`
	InitCodeHash common.Hash     `json:"initCodeHash"`
	Predictions  []addressResult `json:"predictions"`
}

func createAddressCmd() *cobra.Command {
	var opts addressOptions

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Predict the deployment address offline",
		Long: `Compute the address a contract will get from the CREATE2 factory, without
touching any network.

Networks that override the factory get their own prediction.

EXAMPLES:
  xdeploy address --contract Counter --salt WAGMI

  # Raw init code
  xdeploy address --init-code 0x6080... --salt 0x0000000000000000000000000000000000000000000000000000000000000001

  # Per network, honoring factory overrides
  xdeploy address --contract Counter --salt WAGMI --chains mainnet,gnosis
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddress(cmd.OutOrStdout(), opts)
		},
	}

	opts.contract.register(cmd, true)
	cmd.Flags().StringVar(&opts.salt, "salt", "", "CREATE2 salt: 0x-prefixed 32-byte hex, or any string to hash")
	cmd.Flags().StringSliceVar(&opts.targets, "chains", nil, "networks to predict for (default: the configured factory only)")
	cmd.Flags().StringVar(&opts.factory, "factory", "", "CREATE2 factory: create2deployer or arachnid")

	return cmd
}

func runAddress(w io.Writer, opts addressOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	format, err := getOutput()
	if err != nil {
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
	spec := input.spec(salt)

	dep, err := newDeployer(cfg, opts.factory, setupLogger(cfg, io.Discard))
	if err != nil {
		return err
	}

	targets := []chains.Descriptor{{}}
	if len(opts.targets) > 0 {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		ids, err := registry.ParseTargets(opts.targets)
		if err != nil {
			return err
		}
		targets = targets[:0]
		for _, id := range ids {
			d, err := registry.Resolve(id)
			if err != nil {
				return err
			}
			targets = append(targets, d)
		}
	}

	out := addressOutput{
		Contract:     spec.ContractName,
		Salt:         common.Hash(spec.Salt),
		InitCodeHash: spec.InitCodeHash(),
	}
	for _, chain := range targets {
		factory, err := dep.FactoryFor(chain)
		if err != nil {
			return err
		}
		addr, err := dep.Predict(chain, spec)
		if err != nil {
			return err
		}
		out.Predictions = append(out.Predictions, addressResult{
			Chain:   chain.Name,
			ChainID: chain.ChainID,
			Factory: factory.Name(),
			Address: addr,
		})
	}

	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Contract:       %s\n", out.Contract)
	fmt.Fprintf(w, "Salt:           %s\n", out.Salt.Hex())
	fmt.Fprintf(w, "Init code hash: %s\n", out.InitCodeHash.Hex())
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tCHAIN ID\tFACTORY\tADDRESS")
	for _, p := range out.Predictions {
		network, chainID := p.Chain, fmt.Sprint(p.ChainID)
		if network == "" {
			network, chainID = "(any)", "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", network, chainID, p.Factory, p.Address.Hex())
	}
	return tw.Flush()
}
