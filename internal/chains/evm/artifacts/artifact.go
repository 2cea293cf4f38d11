// Package artifacts loads compiled contracts from Foundry and Hardhat projects
// and turns them into a deployment spec and a verification source bundle.
package artifacts

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/xdeploy/internal/chains/evm"
	"github.com/pendergraft/xdeploy/internal/deployer"
	"github.com/pendergraft/xdeploy/internal/verification"
)

var (
	// ErrNotFound is returned when no artifact matches the contract reference
	ErrNotFound = errors.New("artifact not found")
	// ErrAmbiguous is returned when a bare contract name matches several sources
	ErrAmbiguous = errors.New("contract name is ambiguous")
	// ErrNoBytecode is returned for interfaces and abstract contracts
	ErrNoBytecode = errors.New("contract has no bytecode")
	// ErrUnlinked is returned when bytecode still has library placeholders
	ErrUnlinked = errors.New("bytecode has unlinked libraries")
	// ErrUnknownProject is returned when dir is neither a Foundry nor a Hardhat project
	ErrUnknownProject = errors.New("no foundry.toml or hardhat.config found")
)

// Ref names a contract, either "Name" or "path/to/File.sol:Name"
type Ref struct {
	SourcePath string
	Name       string
}

// ParseRef parses a contract reference
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty contract reference")
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		ref := Ref{SourcePath: s[:i], Name: s[i+1:]}
		if ref.SourcePath == "" || ref.Name == "" {
			return Ref{}, fmt.Errorf("invalid contract reference %q, want path:Name", s)
		}
		return ref, nil
	}
	return Ref{Name: s}, nil
}

func (r Ref) String() string {
	if r.SourcePath == "" {
		return r.Name
	}
	return r.SourcePath + ":" + r.Name
}

// Artifact is a compiled contract plus the compiler input that produced it
type Artifact struct {
	Name             string
	SourcePath       string
	Toolchain        string
	ABI              json.RawMessage
	Bytecode         []byte
	DeployedBytecode []byte
	CompilerVersion  string // long form, e.g. 0.8.24+commit.e11b9ed9
	License          string
	StandardJSON     json.RawMessage
}

// Identifier is the fully qualified name explorers expect
func (a *Artifact) Identifier() string {
	return a.SourcePath + ":" + a.Name
}

// EncodeArgs ABI-encodes constructor arguments given as a JSON array
func (a *Artifact) EncodeArgs(rawJSON []byte) ([]byte, error) {
	if len(rawJSON) == 0 {
		rawJSON = []byte("[]")
	}
	return deployer.EncodeJSONArgs(a.ABI, rawJSON)
}

// DeploySpec builds the deployment spec for this contract
func (a *Artifact) DeploySpec(salt [32]byte, constructorArgs []byte) deployer.Spec {
	return deployer.Spec{
		ContractName:    a.Name,
		InitCode:        a.Bytecode,
		ConstructorArgs: constructorArgs,
		Salt:            salt,
		DeployedCode:    a.DeployedBytecode,
	}
}

// SourceBundle builds the verification bundle for this contract. It is nil
// when the project has no build-info to verify from.
func (a *Artifact) SourceBundle(constructorArgs []byte) *verification.SourceBundle {
	if len(a.StandardJSON) == 0 {
		return nil
	}
	return &verification.SourceBundle{
		StandardJSON:       a.StandardJSON,
		CompilerVersion:    a.CompilerVersion,
		ContractIdentifier: a.Identifier(),
		ConstructorArgs:    constructorArgs,
		License:            a.License,
	}
}

// Loader reads artifacts produced by one toolchain
type Loader interface {
	Name() string
	Detect(dir string) (bool, error)
	Load(dir string, ref Ref) (*Artifact, error)
}

// Loaders returns the supported toolchains in detection order
func Loaders() []Loader {
	return []Loader{NewFoundry(), NewHardhat()}
}

// Detect returns the loader for the project in dir
func Detect(dir string) (Loader, error) {
	for _, l := range Loaders() {
		ok, err := l.Detect(dir)
		if err != nil {
			return nil, err
		}
		if ok {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w in %s", ErrUnknownProject, dir)
}

// Load detects the toolchain of dir and loads the referenced contract
func Load(dir, contract string) (*Artifact, error) {
	ref, err := ParseRef(contract)
	if err != nil {
		return nil, err
	}
	l, err := Detect(dir)
	if err != nil {
		return nil, err
	}
	return l.Load(dir, ref)
}

// decodeBytecode turns artifact hex into bytes, rejecting placeholders
func decodeBytecode(name, object string) ([]byte, error) {
	if object == "" || object == "0x" {
		return nil, fmt.Errorf("%w: %s (likely an interface)", ErrNoBytecode, name)
	}
	if evm.HasLibraryPlaceholders(object) {
		return nil, fmt.Errorf("%w: %s", ErrUnlinked, name)
	}
	code, err := hex.DecodeString(strings.TrimPrefix(object, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode of %s: %w", name, err)
	}
	return code, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// findByName walks root for <name>.json files whose parent directory ends in
// .sol, skipping build-info and debug files
func findByName(root, name string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != name+".json" {
			return nil
		}
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		matches = append(matches, path)
		return nil
	})
	return matches, err
}
