// Package deployer computes deterministic CREATE2 addresses and submits the
// factory deployment transaction on each chain.
package deployer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSalt is returned for an empty salt
var ErrInvalidSalt = errors.New("invalid salt")

// ComputeAddress returns keccak256(0xff ++ factory ++ salt ++ initCodeHash)[12:],
// the address any CREATE2 factory at factory produces for this salt and init code.
func ComputeAddress(factory common.Address, salt [32]byte, initCodeHash common.Hash) common.Address {
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// ParseSalt accepts a 0x-prefixed 32-byte hex value verbatim. Any other
// string is hashed with keccak256 over its UTF-8 bytes, like xdeployer does
// for salts such as "WAGMI".
func ParseSalt(s string) ([32]byte, error) {
	var salt [32]byte
	if s == "" {
		return salt, fmt.Errorf("%w: salt must not be empty", ErrInvalidSalt)
	}
	if strings.HasPrefix(s, "0x") && len(s) == 66 {
		if b, err := hex.DecodeString(s[2:]); err == nil {
			copy(salt[:], b)
			return salt, nil
		}
	}
	copy(salt[:], crypto.Keccak256([]byte(s)))
	return salt, nil
}
