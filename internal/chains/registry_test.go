package chains

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/xdeploy/internal/config"
)

func testDescriptors() []Descriptor {
	return []Descriptor{
		{Name: "sepolia", ChainID: 11155111, RPCEndpoint: "http://sepolia", ExplorerKind: ExplorerEtherscan, ExplorerAPIURL: "http://etherscan", Testnet: true},
		{Name: "mainnet", ChainID: 1, RPCEndpoint: "http://mainnet", ExplorerKind: ExplorerEtherscan, ExplorerAPIURL: "http://etherscan"},
		{Name: "gnosis", ChainID: 100, RPCEndpoint: "http://gnosis", ExplorerKind: ExplorerBlockscout, ExplorerAPIURL: "http://blockscout/api", Confirmations: 3},
		{Name: "broken", ChainID: 999, ExplorerKind: ExplorerCustom, ExplorerAPIURL: "http://sourcify"},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r, err := NewRegistry(testDescriptors()...)
		require.NoError(t, err)
		assert.Equal(t, 4, r.Len())

		d, err := r.Resolve(1)
		require.NoError(t, err)
		assert.Equal(t, "mainnet", d.Name)
		assert.Equal(t, uint64(DefaultConfirmations), d.Confirmations)

		d, err = r.Resolve(100)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), d.Confirmations)
	})

	t.Run("duplicate chain id", func(t *testing.T) {
		descs := append(testDescriptors(), Descriptor{Name: "mainnet-fork", ChainID: 1})
		_, err := NewRegistry(descs...)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.True(t, errors.Is(err, ErrDuplicateChainID))
		assert.Contains(t, err.Error(), "chain id 1")
	})

	t.Run("duplicate name", func(t *testing.T) {
		descs := append(testDescriptors(), Descriptor{Name: "Mainnet", ChainID: 5})
		_, err := NewRegistry(descs...)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.ErrorIs(t, err, ErrDuplicateName)
		assert.NotErrorIs(t, err, ErrDuplicateChainID)
	})

	t.Run("missing chain id", func(t *testing.T) {
		descs := append(testDescriptors(), Descriptor{Name: "devnet"})
		_, err := NewRegistry(descs...)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.ErrorIs(t, err, ErrMissingChainID)
		assert.NotErrorIs(t, err, ErrDuplicateChainID)
		assert.Contains(t, err.Error(), "devnet: chain id is required")
	})

	t.Run("mixed problems", func(t *testing.T) {
		descs := append(testDescriptors(), Descriptor{Name: "devnet"}, Descriptor{Name: "mainnet-fork", ChainID: 1})
		_, err := NewRegistry(descs...)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingChainID)
		assert.ErrorIs(t, err, ErrDuplicateChainID)
	})
}

func TestRegistry_List(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	all := r.List(nil)
	require.Len(t, all, 4)
	assert.Equal(t, uint64(1), all[0].ChainID)
	assert.Equal(t, uint64(11155111), all[3].ChainID)

	blockscout := r.List(&Filter{Kinds: []ExplorerKind{ExplorerBlockscout}})
	require.Len(t, blockscout, 1)
	assert.Equal(t, "gnosis", blockscout[0].Name)

	testnet := true
	testnets := r.List(&Filter{Testnet: &testnet})
	require.Len(t, testnets, 1)
	assert.Equal(t, "sepolia", testnets[0].Name)

	named := r.List(&Filter{Names: []string{"MAINNET", "gnosis"}})
	assert.Len(t, named, 2)
}

func TestRegistry_Resolve(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	_, err = r.Resolve(42)
	assert.ErrorIs(t, err, ErrNotFound)

	d, err := r.ResolveName("Gnosis")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), d.ChainID)

	_, err = r.ResolveName("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ParseTargets(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	ids, err := r.ParseTargets([]string{"mainnet", "100", " ", "sepolia"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 100, 11155111}, ids)

	_, err = r.ParseTargets([]string{"nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Select(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	tests := []struct {
		name    string
		ids     []uint64
		wantIDs []uint64
		wantErr error
	}{
		{name: "sorted and deduplicated", ids: []uint64{100, 1, 100}, wantIDs: []uint64{1, 100}},
		{name: "empty", ids: nil, wantErr: ErrEmptySelection},
		{name: "unknown chain", ids: []uint64{1, 42}, wantErr: ErrNotFound},
		{name: "missing rpc endpoint", ids: []uint64{999}, wantErr: ErrMissingEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Select(tt.ids)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, IsConfigError(err))
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]uint64, len(got))
			for i, d := range got {
				ids[i] = d.ChainID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r, err := NewRegistry(testDescriptors()...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(1)
			_ = r.List(nil)
		}()
	}
	wg.Wait()
}

func TestMerge(t *testing.T) {
	base := testDescriptors()[:2]
	confirmations := uint64(4)
	testnet := false

	merged, err := Merge(base, map[string]config.Network{
		"mainnet": {RPCURL: "http://override", Confirmations: confirmations, NonceGroup: "hot"},
		"devnet":  {ChainID: 31337, RPCURL: "http://127.0.0.1:8545", Explorer: "sourcify", ExplorerAPIURL: "http://localhost:5555", Testnet: &testnet},
	})
	require.NoError(t, err)
	require.Len(t, merged, 3)

	r, err := NewRegistry(merged...)
	require.NoError(t, err)

	mainnet, err := r.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, "http://override", mainnet.RPCEndpoint)
	assert.Equal(t, uint64(4), mainnet.Confirmations)
	assert.Equal(t, "hot", mainnet.NonceGroup)
	assert.Equal(t, "http://etherscan", mainnet.ExplorerAPIURL)

	devnet, err := r.Resolve(31337)
	require.NoError(t, err)
	assert.Equal(t, ExplorerCustom, devnet.ExplorerKind)

	_, err = Merge(base, map[string]config.Network{"orphan": {RPCURL: "http://x"}})
	assert.True(t, IsConfigError(err))

	_, err = Merge(base, map[string]config.Network{"mainnet": {Explorer: "tenderly"}})
	assert.True(t, IsConfigError(err))
}

func TestLoad(t *testing.T) {
	t.Setenv("ETH_MAINNET_URL", "http://mainnet.example")

	path := filepath.Join(t.TempDir(), "networks.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[networks.anvil]
chain_id = 31337
rpc_url = "http://127.0.0.1:8545"
explorer = "custom"
explorer_api_url = "http://127.0.0.1:5555"
`), 0644))

	r, err := Load(path)
	require.NoError(t, err)

	mainnet, err := r.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, "http://mainnet.example", mainnet.RPCEndpoint)

	_, err = r.ResolveName("anvil")
	assert.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, IsConfigError(err))
}

func TestDefaultCatalog_UniqueChainIDs(t *testing.T) {
	_, err := NewRegistry(DefaultCatalog()...)
	assert.NoError(t, err)
}

func TestDescriptor_URLs(t *testing.T) {
	d := Descriptor{ExplorerBrowserURL: "https://etherscan.io/"}
	assert.Equal(t, "https://etherscan.io/address/0xabc", d.AddressURL("0xabc"))
	assert.Equal(t, "https://etherscan.io/tx/0x01", d.TxURL("0x01"))
	assert.Empty(t, Descriptor{}.AddressURL("0xabc"))
}
