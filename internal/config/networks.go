package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Network is one entry of a network file. Zero values mean "inherit from the
// built-in catalog" when the name matches a known network.
type Network struct {
	ChainID        uint64 `toml:"chain_id" yaml:"chain_id"`
	RPCURL         string `toml:"rpc_url" yaml:"rpc_url"`
	Explorer       string `toml:"explorer" yaml:"explorer"` // "etherscan", "blockscout", "custom"
	ExplorerAPIURL string `toml:"explorer_api_url" yaml:"explorer_api_url"`
	ExplorerURL    string `toml:"explorer_url" yaml:"explorer_url"`
	APIKey         string `toml:"api_key" yaml:"api_key"`
	APIKeyEnv      string `toml:"api_key_env" yaml:"api_key_env"`
	Confirmations  uint64 `toml:"confirmations" yaml:"confirmations"`
	NonceGroup     string `toml:"nonce_group" yaml:"nonce_group"`
	GasLimit       uint64 `toml:"gas_limit" yaml:"gas_limit"`
	Factory        string `toml:"factory" yaml:"factory"`
	Testnet        *bool  `toml:"testnet" yaml:"testnet"`
}

// NetworkFile is the top-level document of a network file
type NetworkFile struct {
	Networks map[string]Network `toml:"networks" yaml:"networks"`
}

// LoadNetworks reads a TOML or YAML network file, chosen by extension.
// ${VAR} references are expanded from the environment before parsing, and
// api_key_env references are resolved into APIKey.
func LoadNetworks(path string) (map[string]Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var file NetworkFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &file); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported network file extension %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}

	for name, n := range file.Networks {
		if n.APIKey == "" && n.APIKeyEnv != "" {
			n.APIKey = os.Getenv(n.APIKeyEnv)
		}
		file.Networks[name] = n
	}
	return file.Networks, nil
}
