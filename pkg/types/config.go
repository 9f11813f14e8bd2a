package types

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// IntegrityPolicy controls how lineage reads react to a broken parent or
// root reference.
type IntegrityPolicy string

// Integrity policies. Lenient returns the truncated chain and logs the
// condition; strict fails the read with ErrIntegrity.
const (
	IntegrityLenient IntegrityPolicy = "lenient"
	IntegrityStrict  IntegrityPolicy = "strict"
)

// Config validation errors.
var (
	ErrBackendEmpty    = errors.New("backend must not be empty")
	ErrBackendUnknown  = errors.New("unknown backend")
	ErrIntegrityPolicy = errors.New("unknown integrity policy")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return nil
}

// ParseIntegrityPolicy converts a configuration string to an IntegrityPolicy.
// The empty string selects the lenient policy.
func ParseIntegrityPolicy(s string) (IntegrityPolicy, error) {
	switch IntegrityPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", IntegrityLenient:
		return IntegrityLenient, nil
	case IntegrityStrict:
		return IntegrityStrict, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrIntegrityPolicy, s)
	}
}
