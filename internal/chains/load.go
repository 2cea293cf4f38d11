package chains

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pendergraft/xdeploy/internal/config"
)

// Merge overlays network file entries on top of base descriptors. An entry
// whose name matches a base network only overrides the fields it sets;
// unknown names add new networks and must carry a chain id.
func Merge(base []Descriptor, networks map[string]config.Network) ([]Descriptor, error) {
	byName := make(map[string]int, len(base))
	out := make([]Descriptor, len(base))
	copy(out, base)
	for i, d := range out {
		byName[strings.ToLower(d.Name)] = i
	}

	// Deterministic order so error messages are stable
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		n := networks[name]

		idx, known := byName[strings.ToLower(name)]
		var d Descriptor
		if known {
			d = out[idx]
		} else {
			d = Descriptor{Name: name, Confirmations: DefaultConfirmations}
		}

		if n.ChainID != 0 {
			d.ChainID = n.ChainID
		}
		if n.RPCURL != "" {
			d.RPCEndpoint = n.RPCURL
		}
		if n.Explorer != "" {
			kind, err := ParseExplorerKind(n.Explorer)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			d.ExplorerKind = kind
		}
		if n.ExplorerAPIURL != "" {
			d.ExplorerAPIURL = n.ExplorerAPIURL
		}
		if n.ExplorerURL != "" {
			d.ExplorerBrowserURL = n.ExplorerURL
		}
		if n.APIKey != "" {
			d.APIKey = n.APIKey
		}
		if n.Confirmations != 0 {
			d.Confirmations = n.Confirmations
		}
		if n.NonceGroup != "" {
			d.NonceGroup = n.NonceGroup
		}
		if n.GasLimit != 0 {
			d.GasLimit = n.GasLimit
		}
		if n.Factory != "" {
			d.Factory = n.Factory
		}
		if n.Testnet != nil {
			d.Testnet = *n.Testnet
		}

		if d.ChainID == 0 {
			problems = append(problems, fmt.Sprintf("%s: chain_id is required for custom networks", name))
			continue
		}

		if known {
			out[idx] = d
		} else {
			byName[strings.ToLower(name)] = len(out)
			out = append(out, d)
		}
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return out, nil
}

// Load builds the registry from the built-in catalog, overlaid with the
// network file at path when path is non-empty.
func Load(path string) (*Registry, error) {
	descs := DefaultCatalog()
	if path != "" {
		networks, err := config.LoadNetworks(path)
		if err != nil {
			return nil, &ConfigError{Problems: []string{err.Error()}, Err: err}
		}
		descs, err = Merge(descs, networks)
		if err != nil {
			return nil, err
		}
	}
	return NewRegistry(descs...)
}
