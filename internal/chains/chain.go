// Package chains provides the chain registry: the immutable catalog of target
// networks with their RPC and block-explorer endpoints.
package chains

import (
	"fmt"
	"strings"
)

// ExplorerKind selects the verification protocol spoken by a chain's explorer
type ExplorerKind string

const (
	// ExplorerEtherscan is any Etherscan-compatible API (Etherscan v2, Routescan, ftmscan...)
	ExplorerEtherscan ExplorerKind = "etherscan"
	// ExplorerBlockscout is the Blockscout v2 REST API
	ExplorerBlockscout ExplorerKind = "blockscout"
	// ExplorerCustom is a Sourcify-compatible verification server
	ExplorerCustom ExplorerKind = "custom"
)

// ParseExplorerKind parses an explorer kind from configuration
func ParseExplorerKind(s string) (ExplorerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "etherscan", "etherscan-compatible", "etherscancompatible":
		return ExplorerEtherscan, nil
	case "blockscout":
		return ExplorerBlockscout, nil
	case "custom", "sourcify":
		return ExplorerCustom, nil
	default:
		return "", fmt.Errorf("unknown explorer kind %q", s)
	}
}

// DefaultConfirmations is used when a network does not configure its own depth
const DefaultConfirmations = 1

// Descriptor is the identity and connectivity of one target network
type Descriptor struct {
	Name               string       `json:"name"`
	ChainID            uint64       `json:"chainId"`
	RPCEndpoint        string       `json:"rpcEndpoint"`
	ExplorerKind       ExplorerKind `json:"explorerKind"`
	ExplorerAPIURL     string       `json:"explorerApiUrl"`
	ExplorerBrowserURL string       `json:"explorerBrowserUrl"`
	APIKey             string       `json:"-"`
	Confirmations      uint64       `json:"confirmations"`
	NonceGroup         string       `json:"nonceGroup,omitempty"`
	GasLimit           uint64       `json:"gasLimit,omitempty"`
	Factory            string       `json:"factory,omitempty"`
	Testnet            bool         `json:"testnet"`
}

// String returns "name (chainId)"
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%d)", d.Name, d.ChainID)
}

// AddressURL links to an address on the chain's explorer, or "" without a browser URL
func (d Descriptor) AddressURL(address string) string {
	if d.ExplorerBrowserURL == "" {
		return ""
	}
	return strings.TrimRight(d.ExplorerBrowserURL, "/") + "/address/" + address
}

// TxURL links to a transaction on the chain's explorer, or "" without a browser URL
func (d Descriptor) TxURL(hash string) string {
	if d.ExplorerBrowserURL == "" {
		return ""
	}
	return strings.TrimRight(d.ExplorerBrowserURL, "/") + "/tx/" + hash
}

// missingFields lists the required fields that are empty for a chain selected for a run
func (d Descriptor) missingFields() []string {
	var missing []string
	if strings.TrimSpace(d.RPCEndpoint) == "" {
		missing = append(missing, "rpc endpoint")
	}
	if d.ExplorerKind == "" {
		missing = append(missing, "explorer kind")
	}
	if strings.TrimSpace(d.ExplorerAPIURL) == "" {
		missing = append(missing, "explorer api url")
	}
	return missing
}
