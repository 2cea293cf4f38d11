package deployer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Well-known CREATE2 factory addresses, identical on every chain they are deployed to
var (
	ArachnidProxyAddress   = common.HexToAddress("0x4e59b44847b379578588920cA78FbF26c0B4956C")
	Create2DeployerAddress = common.HexToAddress("0x13b0D85CcB8bf860b6b79AF3029fCA081AE9beF2")
)

// Factory is an on-chain CREATE2 factory
type Factory interface {
	Name() string
	Address() common.Address
	// Calldata builds the call that deploys initCode under salt
	Calldata(salt [32]byte, initCode []byte) ([]byte, error)
}

// ArachnidFactory is the Deterministic Deployment Proxy. Its calldata is the
// raw salt followed by the init code.
type ArachnidFactory struct{}

func (ArachnidFactory) Name() string            { return "arachnid" }
func (ArachnidFactory) Address() common.Address { return ArachnidProxyAddress }

func (ArachnidFactory) Calldata(salt [32]byte, initCode []byte) ([]byte, error) {
	data := make([]byte, 0, len(salt)+len(initCode))
	data = append(data, salt[:]...)
	return append(data, initCode...), nil
}

const create2DeployerABI = `[{"inputs":[{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"bytes32","name":"salt","type":"bytes32"},{"internalType":"bytes","name":"code","type":"bytes"}],"name":"deploy","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// Create2DeployerFactory is the Create2Deployer contract used by xdeployer,
// called through deploy(uint256 value, bytes32 salt, bytes code).
type Create2DeployerFactory struct {
	abi abi.ABI
}

// NewCreate2DeployerFactory parses the factory ABI
func NewCreate2DeployerFactory() (*Create2DeployerFactory, error) {
	parsed, err := abi.JSON(strings.NewReader(create2DeployerABI))
	if err != nil {
		return nil, fmt.Errorf("parse create2deployer abi: %w", err)
	}
	return &Create2DeployerFactory{abi: parsed}, nil
}

func (f *Create2DeployerFactory) Name() string            { return "create2deployer" }
func (f *Create2DeployerFactory) Address() common.Address { return Create2DeployerAddress }

func (f *Create2DeployerFactory) Calldata(salt [32]byte, initCode []byte) ([]byte, error) {
	data, err := f.abi.Pack("deploy", new(big.Int), salt, initCode)
	if err != nil {
		return nil, fmt.Errorf("pack deploy call: %w", err)
	}
	return data, nil
}

// FactoryByName resolves a factory from configuration. Empty selects create2deployer.
func FactoryByName(name string) (Factory, error) {
	switch strings.ToLower(name) {
	case "arachnid", "deterministic-deployment-proxy":
		return ArachnidFactory{}, nil
	case "", "create2deployer":
		return NewCreate2DeployerFactory()
	default:
		return nil, fmt.Errorf("unknown factory %q", name)
	}
}
