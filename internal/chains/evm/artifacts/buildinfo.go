package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildInfo is a solc build-info file as written by Hardhat and by
// `forge build --build-info`
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`     // 0.8.28
	SolcLongVersion string          `json:"solcLongVersion"` // 0.8.28+commit.7893614a
	Input           json.RawMessage `json:"input"`
	Output          json.RawMessage `json:"output"`
}

type buildOutput struct {
	Contracts map[string]map[string]struct {
		Metadata string `json:"metadata"`
	} `json:"contracts"`
}

// compiled reports whether this build produced contracts[sourcePath][name]
// and returns the contract's metadata string
func (b *BuildInfo) compiled(sourcePath, name string) (string, bool) {
	var out buildOutput
	if err := json.Unmarshal(b.Output, &out); err != nil || out.Contracts == nil {
		return "", false
	}
	c, ok := out.Contracts[sourcePath][name]
	return c.Metadata, ok
}

// standardJSONKeysToStrip are top-level keys Foundry adds that explorers'
// solc rejects; standard JSON input only allows language, sources, settings
var standardJSONKeysToStrip = []string{"allowPaths", "basePath", "includePaths", "version"}

// StandardJSON returns the compiler input with tool-specific keys removed
func (b *BuildInfo) StandardJSON() (json.RawMessage, error) {
	var m map[string]any
	if err := json.Unmarshal(b.Input, &m); err != nil {
		return nil, fmt.Errorf("parsing build-info input: %w", err)
	}
	for _, key := range standardJSONKeysToStrip {
		delete(m, key)
	}
	return json.Marshal(m)
}

func readBuildInfo(path string) (*BuildInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bi BuildInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &bi, nil
}

// findBuildInfo scans dir for the build-info that compiled sourcePath:name.
// Files that cannot be read are skipped.
func findBuildInfo(dir, sourcePath, name string) (*BuildInfo, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("reading build-info directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		bi, err := readBuildInfo(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if metadata, ok := bi.compiled(sourcePath, name); ok {
			return bi, metadata, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no build-info compiled %s:%s", ErrNotFound, sourcePath, name)
}

// contractMetadata is the subset of solc's metadata JSON we read
type contractMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
	Sources map[string]struct {
		License string `json:"license"`
	} `json:"sources"`
}

func parseMetadata(raw string) (*contractMetadata, error) {
	var m contractMetadata
	if raw == "" {
		return &m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return &m, nil
}

// target is the compilation target's source path
func (m *contractMetadata) target() string {
	for k := range m.Settings.CompilationTarget {
		return k
	}
	return ""
}

// license is the SPDX license of sourcePath
func (m *contractMetadata) license(sourcePath string) string {
	return m.Sources[sourcePath].License
}
