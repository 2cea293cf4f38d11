package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid lowercase", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", false},
		{"valid checksum", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", false},
		{"valid uppercase", "0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266", false},
		{"bad checksum", "0xF39fd6e51aad88F6F4ce6aB8827279cffFb92266", true},
		{"too short", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb922", true},
		{"no prefix", "f39fd6e51aad88f6f4ce6ab8827279cfffb9226600", true},
		{"non hex", "0xz39fd6e51aad88f6f4ce6ab8827279cfffb92266", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateChainID(t *testing.T) {
	assert.NoError(t, ValidateChainID(1))
	assert.Error(t, ValidateChainID(0))
}

func TestValidateCompilerVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"short", "0.8.28", false},
		{"long", "v0.8.28+commit.7893614a", false},
		{"long without v", "0.8.28+commit.7893614a", false},
		{"nightly", "0.8.29-nightly.2025.1.1+commit.deadbeef", false},
		{"missing patch", "0.8", true},
		{"bad commit", "0.8.28+commit.xyz", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCompilerVersion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSalt(t *testing.T) {
	assert.NoError(t, ValidateSalt("WAGMI"))
	assert.NoError(t, ValidateSalt("0x01"))
	assert.NoError(t, ValidateSalt("0x0000000000000000000000000000000000000000000000000000000000000001"))
	assert.Error(t, ValidateSalt("0xzz00000000000000000000000000000000000000000000000000000000000001"))
	assert.Error(t, ValidateSalt(""))
}

func TestValidateHex(t *testing.T) {
	assert.NoError(t, ValidateHex("0x6080"))
	assert.NoError(t, ValidateHex("6080"))
	assert.NoError(t, ValidateHex("0x"))
	assert.Error(t, ValidateHex("0x608"))
	assert.Error(t, ValidateHex("0xgg"))
}
