package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/xdeploy/internal/chains"
)

type chainsOptions struct {
	explorer string
	testnet  bool
	mainnet  bool
}

// chainItem is a registry entry as printed; secrets are reduced to flags
type chainItem struct {
	chains.Descriptor
	HasRPC    bool `json:"hasRpc"`
	HasAPIKey bool `json:"hasApiKey"`
}

func createChainsCmd() *cobra.Command {
	var opts chainsOptions

	cmd := &cobra.Command{
		Use:   "chains",
		Short: "List known networks",
		Long: `List the built-in networks merged with the network file, with their explorer
and whether an RPC endpoint and API key are configured.

EXAMPLES:
  xdeploy chains

  # Only testnets verified through Blockscout
  xdeploy chains --testnet --explorer blockscout

  # Include a custom network file
  xdeploy chains --networks networks.toml -o json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChains(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.explorer, "explorer", "", "filter by explorer kind: etherscan, blockscout or custom")
	cmd.Flags().BoolVar(&opts.testnet, "testnet", false, "only testnets")
	cmd.Flags().BoolVar(&opts.mainnet, "mainnet", false, "only mainnets")
	cmd.MarkFlagsMutuallyExclusive("testnet", "mainnet")

	return cmd
}

func runChains(w io.Writer, opts chainsOptions) error {
	format, err := getOutput()
	if err != nil {
		return err
	}
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	var filter chains.Filter
	if opts.explorer != "" {
		kind, err := chains.ParseExplorerKind(opts.explorer)
		if err != nil {
			return err
		}
		filter.Kinds = []chains.ExplorerKind{kind}
	}
	if opts.testnet || opts.mainnet {
		testnet := opts.testnet
		filter.Testnet = &testnet
	}

	list := registry.List(&filter)
	items := make([]chainItem, len(list))
	for i, d := range list {
		items[i] = chainItem{Descriptor: d, HasRPC: d.RPCEndpoint != "", HasAPIKey: d.APIKey != ""}
		items[i].RPCEndpoint = ""
	}

	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Fprintln(w, "No networks match")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHAIN ID\tEXPLORER\tTESTNET\tRPC\tAPI KEY")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			it.Name, it.ChainID, it.ExplorerKind, yesNo(it.Testnet), yesNo(it.HasRPC), yesNo(it.HasAPIKey))
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
