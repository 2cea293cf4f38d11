package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

var hardhatConfigFiles = []string{"hardhat.config.ts", "hardhat.config.js", "hardhat.config.cjs", "hardhat.config.mjs"}

// Hardhat loads artifacts from artifacts/ and artifacts/build-info
type Hardhat struct{}

// NewHardhat creates a Hardhat loader
func NewHardhat() *Hardhat {
	return &Hardhat{}
}

// Name returns the toolchain identifier
func (h *Hardhat) Name() string {
	return "hardhat"
}

// Detect checks for a hardhat.config file
func (h *Hardhat) Detect(dir string) (bool, error) {
	for _, name := range hardhatConfigFiles {
		ok, err := fileExists(filepath.Join(dir, name))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// hh-sol-artifact-1
type hardhatArtifact struct {
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// hh-sol-dbg-1, stored next to the artifact
type hardhatDebug struct {
	BuildInfo string `json:"buildInfo"`
}

// Load reads artifacts/<sourcePath>/<Name>.json and the build-info its
// .dbg.json file points to
func (h *Hardhat) Load(dir string, ref Ref) (*Artifact, error) {
	root := filepath.Join(dir, "artifacts")
	if ok, err := fileExists(root); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("artifacts directory not found - run 'npx hardhat compile' first")
	}

	var candidates []string
	if ref.SourcePath != "" {
		candidates = []string{filepath.Join(root, filepath.FromSlash(ref.SourcePath), ref.Name+".json")}
	} else {
		found, err := findByName(root, ref.Name)
		if err != nil {
			return nil, err
		}
		candidates = found
	}

	var (
		path string
		raw  hardhatArtifact
		hits int
	)
	for _, c := range candidates {
		data, err := os.ReadFile(c)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		var a hardhatArtifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parsing artifact %s: %w", c, err)
		}
		if a.ContractName != ref.Name {
			continue
		}
		path, raw = c, a
		hits++
	}
	switch {
	case hits == 0:
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, ref, root)
	case hits > 1:
		return nil, fmt.Errorf("%w: %s matches %d artifacts, use path:Name", ErrAmbiguous, ref.Name, hits)
	}

	a := &Artifact{
		Name:       raw.ContractName,
		SourcePath: raw.SourceName,
		Toolchain:  h.Name(),
		ABI:        raw.ABI,
	}
	var err error
	if a.Bytecode, err = decodeBytecode(ref.String(), raw.Bytecode); err != nil {
		return nil, err
	}
	if raw.DeployedBytecode != "" && raw.DeployedBytecode != "0x" {
		if a.DeployedBytecode, err = decodeBytecode(ref.String(), raw.DeployedBytecode); err != nil {
			return nil, err
		}
	}

	bi, metadata, err := h.buildInfo(root, path, a.SourcePath, a.Name)
	if err != nil {
		return a, nil
	}
	if a.StandardJSON, err = bi.StandardJSON(); err != nil {
		return nil, err
	}
	a.CompilerVersion = bi.SolcLongVersion
	if meta, err := parseMetadata(metadata); err == nil {
		a.License = meta.license(a.SourcePath)
		if a.CompilerVersion == "" {
			a.CompilerVersion = meta.Compiler.Version
		}
	}
	return a, nil
}

// buildInfo follows the .dbg.json pointer, falling back to scanning
// artifacts/build-info
func (h *Hardhat) buildInfo(root, artifactPath, sourcePath, name string) (*BuildInfo, string, error) {
	dbgPath := artifactPath[:len(artifactPath)-len(".json")] + ".dbg.json"
	if data, err := os.ReadFile(dbgPath); err == nil {
		var dbg hardhatDebug
		if json.Unmarshal(data, &dbg) == nil && dbg.BuildInfo != "" {
			biPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))
			if bi, err := readBuildInfo(biPath); err == nil {
				if metadata, ok := bi.compiled(sourcePath, name); ok {
					return bi, metadata, nil
				}
			}
		}
	}
	return findBuildInfo(filepath.Join(root, "build-info"), sourcePath, name)
}
