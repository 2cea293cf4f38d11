// Package evm holds EVM bytecode helpers shared by the artifact loaders and the deployer.
package evm

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"strings"
)

// Match types returned by CompareBytecode
const (
	MatchFull    = "full"
	MatchPartial = "partial"
	MatchNone    = "none"
)

// MatchResult describes how on-chain code relates to an artifact
type MatchResult struct {
	Match     bool
	MatchType string
	Message   string
}

// CBOR metadata marker (Solidity >=0.6.0): map header followed by "ipfs"
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-f0-9]{34}\$__`)

// StripMetadata removes the CBOR metadata solc appends to runtime bytecode.
// The trailing two bytes hold the CBOR length; when they do not point at a
// CBOR map, the last "ipfs" marker is used instead.
func StripMetadata(code []byte) []byte {
	if n := len(code); n >= 2 {
		cborLen := int(code[n-2])<<8 | int(code[n-1])
		start := n - 2 - cborLen
		if cborLen > 0 && start >= 0 && code[start]&0xf0 == 0xa0 {
			return code[:start]
		}
	}

	idx := bytes.LastIndex(code, metadataMarker)
	if idx == -1 {
		return code
	}
	return code[:idx]
}

// CompareBytecode compares code found on chain with the expected runtime
// code. expected may be raw bytes or 0x-prefixed hex text.
func CompareBytecode(deployed, expected []byte) *MatchResult {
	if len(expected) > 2 && expected[0] == '0' && expected[1] == 'x' {
		if decoded, err := hex.DecodeString(string(expected[2:])); err == nil {
			expected = decoded
		}
	}

	if bytes.Equal(deployed, expected) {
		return &MatchResult{Match: true, MatchType: MatchFull, Message: "bytecode matches exactly including metadata"}
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(expected)) {
		return &MatchResult{Match: true, MatchType: MatchPartial, Message: "executable code matches, metadata differs"}
	}

	return &MatchResult{Match: false, MatchType: MatchNone, Message: "bytecode does not match"}
}

// HasLibraryPlaceholders reports whether hex bytecode still needs library linking
func HasLibraryPlaceholders(hexCode string) bool {
	return libraryPlaceholder.MatchString(strings.ToLower(hexCode))
}
