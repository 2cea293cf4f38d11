package chains

import "os"

const (
	etherscanV2API = "https://api.etherscan.io/v2/api"
	sourcifyAPI    = "https://sourcify.dev/server"
)

// catalogEntry describes a built-in network. RPC URLs and API keys come from
// environment variables so that secrets stay out of config files.
type catalogEntry struct {
	name       string
	chainID    uint64
	rpcEnv     string
	kind       ExplorerKind
	apiURL     string
	browserURL string
	apiKeyEnv  string
	testnet    bool
}

var catalog = []catalogEntry{
	{"mainnet", 1, "ETH_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://etherscan.io", "ETHERSCAN_API_KEY", false},
	{"sepolia", 11155111, "ETH_SEPOLIA_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://sepolia.etherscan.io", "ETHERSCAN_API_KEY", true},
	{"holesky", 17000, "ETH_HOLESKY_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://holesky.etherscan.io", "ETHERSCAN_API_KEY", true},
	{"bscMain", 56, "BSC_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://bscscan.com", "BSC_API_KEY", false},
	{"bscTestnet", 97, "BSC_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://testnet.bscscan.com", "BSC_API_KEY", true},
	{"optimismMain", 10, "OPTIMISM_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://optimistic.etherscan.io", "OPTIMISM_API_KEY", false},
	{"optimismTestnet", 11155420, "OPTIMISM_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://sepolia-optimism.etherscan.io", "OPTIMISM_API_KEY", true},
	{"arbitrumMain", 42161, "ARBITRUM_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://arbiscan.io", "ARBITRUM_API_KEY", false},
	{"arbitrumTestnet", 421614, "ARBITRUM_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://sepolia.arbiscan.io", "ARBITRUM_API_KEY", true},
	{"polygon", 137, "POLYGON_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://polygonscan.com", "POLYGON_API_KEY", false},
	{"amoy", 80002, "POLYGON_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://amoy.polygonscan.com", "POLYGON_API_KEY", true},
	{"avalanche", 43114, "AVALANCHE_MAINNET_URL", ExplorerEtherscan, "https://api.routescan.io/v2/network/mainnet/evm/43114/etherscan/api", "https://snowtrace.io", "AVALANCHE_API_KEY", false},
	{"fuji", 43113, "AVALANCHE_TESTNET_URL", ExplorerEtherscan, "https://api.routescan.io/v2/network/testnet/evm/43113/etherscan/api", "https://testnet.snowtrace.io", "AVALANCHE_API_KEY", true},
	{"fantomMain", 250, "FANTOM_MAINNET_URL", ExplorerEtherscan, "https://api.ftmscan.com/api", "https://ftmscan.com", "FANTOM_API_KEY", false},
	{"fantomTestnet", 4002, "FANTOM_TESTNET_URL", ExplorerEtherscan, "https://api-testnet.ftmscan.com/api", "https://testnet.ftmscan.com", "FANTOM_API_KEY", true},
	{"gnosis", 100, "GNOSIS_MAINNET_URL", ExplorerBlockscout, "https://gnosis.blockscout.com/api", "https://gnosis.blockscout.com", "", false},
	{"chiado", 10200, "GNOSIS_TESTNET_URL", ExplorerBlockscout, "https://gnosis-chiado.blockscout.com/api", "https://gnosis-chiado.blockscout.com", "", true},
	{"moonbeam", 1284, "MOONBEAM_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://moonbeam.moonscan.io", "MOONBEAM_API_KEY", false},
	{"moonriver", 1285, "MOONRIVER_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://moonriver.moonscan.io", "MOONBEAM_API_KEY", false},
	{"moonbaseAlpha", 1287, "MOONBEAM_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://moonbase.moonscan.io", "MOONBEAM_API_KEY", true},
	{"celo", 42220, "CELO_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://celoscan.io", "CELO_API_KEY", false},
	{"alfajores", 44787, "CELO_TESTNET_URL", ExplorerCustom, sourcifyAPI, "https://celo-alfajores.blockscout.com", "", true},
	{"auroraMain", 1313161554, "AURORA_MAINNET_URL", ExplorerBlockscout, "https://explorer.mainnet.aurora.dev/api", "https://explorer.mainnet.aurora.dev", "", false},
	{"auroraTestnet", 1313161555, "AURORA_TESTNET_URL", ExplorerBlockscout, "https://explorer.testnet.aurora.dev/api", "https://explorer.testnet.aurora.dev", "", true},
	{"base", 8453, "BASE_MAINNET_URL", ExplorerEtherscan, etherscanV2API, "https://basescan.org", "BASE_API_KEY", false},
	{"baseSepolia", 84532, "BASE_TESTNET_URL", ExplorerEtherscan, etherscanV2API, "https://sepolia.basescan.org", "BASE_API_KEY", true},
}

// DefaultCatalog returns the built-in networks with RPC URLs and API keys
// resolved from the environment. Unset variables leave the fields empty, which
// only matters if the chain is selected for a run.
func DefaultCatalog() []Descriptor {
	out := make([]Descriptor, 0, len(catalog))
	for _, e := range catalog {
		d := Descriptor{
			Name:               e.name,
			ChainID:            e.chainID,
			RPCEndpoint:        os.Getenv(e.rpcEnv),
			ExplorerKind:       e.kind,
			ExplorerAPIURL:     e.apiURL,
			ExplorerBrowserURL: e.browserURL,
			Confirmations:      DefaultConfirmations,
			Testnet:            e.testnet,
		}
		if e.apiKeyEnv != "" {
			d.APIKey = os.Getenv(e.apiKeyEnv)
		}
		out = append(out, d)
	}
	return out
}
