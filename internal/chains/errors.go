package chains

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a chain id or name is not in the registry
	ErrNotFound = errors.New("chain not found")
	// ErrMissingChainID is returned when a network has no chain id
	ErrMissingChainID = errors.New("missing chain id")
	// ErrDuplicateChainID is returned when two networks claim the same chain id
	ErrDuplicateChainID = errors.New("duplicate chain id")
	// ErrDuplicateName is returned when two networks share a name
	ErrDuplicateName = errors.New("duplicate network name")
	// ErrMissingEndpoint is returned when a selected chain lacks a required endpoint
	ErrMissingEndpoint = errors.New("missing required endpoint")
	// ErrEmptySelection is returned when a run targets no chains
	ErrEmptySelection = errors.New("no target chains selected")
)

// ConfigError reports bad registry data. It aborts a run before any chain starts.
type ConfigError struct {
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	return "invalid chain configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is (or wraps) a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
