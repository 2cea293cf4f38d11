package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Foundry loads artifacts from out/ and out/build-info
type Foundry struct{}

// NewFoundry creates a Foundry loader
func NewFoundry() *Foundry {
	return &Foundry{}
}

// Name returns the toolchain identifier
func (f *Foundry) Name() string {
	return "foundry"
}

// Detect checks for foundry.toml
func (f *Foundry) Detect(dir string) (bool, error) {
	return fileExists(filepath.Join(dir, "foundry.toml"))
}

type foundryArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         bytecodeObject  `json:"bytecode"`
	DeployedBytecode bytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

type bytecodeObject struct {
	Object string `json:"object"`
}

// Load reads out/<File>.sol/<Name>.json and the build-info that compiled it
func (f *Foundry) Load(dir string, ref Ref) (*Artifact, error) {
	outDir := filepath.Join(dir, "out")
	if ok, err := fileExists(outDir); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("out directory not found - run 'forge build' first")
	}

	path, raw, meta, err := f.locate(outDir, ref)
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		Name:            ref.Name,
		SourcePath:      meta.target(),
		Toolchain:       f.Name(),
		ABI:             raw.ABI,
		CompilerVersion: meta.Compiler.Version,
	}
	if a.SourcePath == "" {
		a.SourcePath = ref.SourcePath
	}
	a.License = meta.license(a.SourcePath)

	if a.Bytecode, err = decodeBytecode(ref.String(), raw.Bytecode.Object); err != nil {
		return nil, err
	}
	if raw.DeployedBytecode.Object != "" {
		if a.DeployedBytecode, err = decodeBytecode(ref.String(), raw.DeployedBytecode.Object); err != nil {
			return nil, err
		}
	}

	// Without --build-info the contract can still be deployed, just not verified
	bi, _, err := findBuildInfo(filepath.Join(outDir, "build-info"), a.SourcePath, a.Name)
	if err != nil {
		return a, nil
	}
	if a.StandardJSON, err = bi.StandardJSON(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if bi.SolcLongVersion != "" {
		a.CompilerVersion = bi.SolcLongVersion
	}
	return a, nil
}

// locate finds the artifact file for ref. Foundry names artifact
// directories after the source file's base name; a bare contract name that
// matches several sources is rejected.
func (f *Foundry) locate(outDir string, ref Ref) (string, *foundryArtifact, *contractMetadata, error) {
	var candidates []string
	if ref.SourcePath != "" {
		candidates = []string{filepath.Join(outDir, filepath.Base(ref.SourcePath), ref.Name+".json")}
	} else {
		found, err := findByName(outDir, ref.Name)
		if err != nil {
			return "", nil, nil, err
		}
		candidates = found
	}

	type match struct {
		path string
		raw  *foundryArtifact
		meta *contractMetadata
	}
	var matches []match
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", nil, nil, err
		}
		var raw foundryArtifact
		if err := json.Unmarshal(data, &raw); err != nil {
			return "", nil, nil, fmt.Errorf("parsing artifact %s: %w", path, err)
		}
		meta, err := parseMetadata(raw.RawMetadata)
		if err != nil {
			return "", nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		if ref.SourcePath != "" && meta.target() != "" && meta.target() != ref.SourcePath {
			continue
		}
		matches = append(matches, match{path: path, raw: &raw, meta: meta})
	}

	switch len(matches) {
	case 0:
		return "", nil, nil, fmt.Errorf("%w: %s in %s", ErrNotFound, ref, outDir)
	case 1:
		m := matches[0]
		return m.path, m.raw, m.meta, nil
	}
	return "", nil, nil, fmt.Errorf("%w: %s matches %d artifacts, use path:Name", ErrAmbiguous, ref.Name, len(matches))
}
