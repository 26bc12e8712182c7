// Package config loads the YAML configuration of a healthvault deployment
// and builds the engine backend it describes.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tuneinsight/lattigo/v5/he/heint"
	"gopkg.in/yaml.v3"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/schemes/lattice"
	"github.com/tuneinsight/healthvault/schemes/mask"
)

var validate = validator.New()

// Config is the top-level configuration.
type Config struct {
	// Backend selects the scheme: "mask" or "lattice".
	Backend string        `yaml:"backend" validate:"required,oneof=mask lattice"`
	Mask    MaskConfig    `yaml:"mask"`
	Lattice LatticeConfig `yaml:"lattice"`
	Vault   VaultConfig   `yaml:"vault"`
	Log     LogConfig     `yaml:"log"`
}

// MaskConfig configures the mask backend. Seed takes precedence over Mask;
// with neither set the default mask is used.
type MaskConfig struct {
	Mask *uint32 `yaml:"mask,omitempty"`
	Seed string  `yaml:"seed,omitempty" validate:"omitempty,max=64"`
}

// LatticeConfig overrides the default BGV parameters. Zero fields keep the
// default.
type LatticeConfig struct {
	LogN             int    `yaml:"log_n,omitempty" validate:"omitempty,min=10,max=16"`
	LogQ             []int  `yaml:"log_q,omitempty" validate:"omitempty,max=8,dive,min=20,max=61"`
	LogP             []int  `yaml:"log_p,omitempty" validate:"omitempty,max=4,dive,min=20,max=61"`
	PlaintextModulus uint64 `yaml:"plaintext_modulus,omitempty" validate:"omitempty,min=3"`
}

// VaultConfig configures the reading store.
type VaultConfig struct {
	// AttestationKey is the hex encoding of the 32-byte attestation key.
	// A random key is generated when empty.
	AttestationKey string `yaml:"attestation_key,omitempty" validate:"omitempty,hexadecimal,len=64"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: mask.Name,
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a YAML configuration. Unset fields keep
// their default value.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ParametersLiteral returns the BGV parameters of the lattice backend.
func (c LatticeConfig) ParametersLiteral() heint.ParametersLiteral {
	literal := lattice.DefaultParametersLiteral
	if c.LogN != 0 {
		literal.LogN = c.LogN
	}
	if len(c.LogQ) != 0 {
		literal.LogQ = append([]int(nil), c.LogQ...)
	}
	if len(c.LogP) != 0 {
		literal.LogP = append([]int(nil), c.LogP...)
	}
	if c.PlaintextModulus != 0 {
		literal.PlaintextModulus = c.PlaintextModulus
	}
	return literal
}

// Key decodes the vault attestation key, returning nil when unset.
func (c VaultConfig) Key() ([]byte, error) {
	if c.AttestationKey == "" {
		return nil, nil
	}
	return hex.DecodeString(c.AttestationKey)
}

// NewBackend builds the configured engine backend.
func (c *Config) NewBackend() (engine.Backend, error) {
	switch c.Backend {
	case mask.Name:
		switch {
		case c.Mask.Seed != "":
			return mask.NewBackendFromSeed([]byte(c.Mask.Seed)), nil
		case c.Mask.Mask != nil:
			return mask.NewBackend(*c.Mask.Mask), nil
		default:
			return mask.NewBackend(mask.DefaultMask), nil
		}
	case lattice.Name:
		return lattice.NewBackend(c.Lattice.ParametersLiteral()), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}
