// Package validation provides input validation for xdeploy.
package validation

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"
)

// Solidity compiler versions look like 0.8.28 or v0.8.28+commit.7893614a
var compilerVersionRegex = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.]+)?(\+commit\.[0-9a-f]{8})?$`)

// ValidateAddress validates an Ethereum address. Mixed-case addresses must
// carry a valid EIP-55 checksum.
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: contains non-hex characters")
	}
	body := addr[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if common.HexToAddress(addr).Hex() != addr {
			return errors.New("invalid address: checksum mismatch")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID uint64) error {
	if chainID == 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateCompilerVersion validates a solc version string
func ValidateCompilerVersion(v string) error {
	if v == "" {
		return errors.New("compiler version cannot be empty")
	}
	if !compilerVersionRegex.MatchString(v) {
		return errors.New("invalid compiler version: must look like 0.8.28 or v0.8.28+commit.7893614a")
	}
	if !semver.IsValid(semverForm(v)) {
		return errors.New("invalid compiler version")
	}
	return nil
}

func semverForm(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}

// ValidateSalt validates a deployment salt. Any non-empty string is usable;
// strings shaped like a 32-byte hex word must actually be hex.
func ValidateSalt(salt string) error {
	if salt == "" {
		return errors.New("salt cannot be empty")
	}
	if strings.HasPrefix(salt, "0x") && len(salt) == 66 {
		if _, err := hex.DecodeString(salt[2:]); err != nil {
			return errors.New("invalid salt: 0x-prefixed 32-byte salt contains non-hex characters")
		}
	}
	return nil
}

// ValidateHex validates a hex blob such as init code or encoded arguments
func ValidateHex(s string) error {
	body := strings.TrimPrefix(s, "0x")
	if len(body)%2 != 0 {
		return errors.New("invalid hex: odd length")
	}
	if _, err := hex.DecodeString(body); err != nil {
		return errors.New("invalid hex: contains non-hex characters")
	}
	return nil
}
