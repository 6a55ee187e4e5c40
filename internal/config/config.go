// Package config loads the server settings from the project's
// .tekton-lsp.toml and the client's initialization options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/segmentio/encoding/json"
)

// FileName is looked up in the workspace root.
const FileName = ".tekton-lsp.toml"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Log        Log        `toml:"log" json:"log"`
	Index      Index      `toml:"index" json:"index"`
	Validation Validation `toml:"validation" json:"validation"`
	Format     Format     `toml:"format" json:"format"`
	Debug      Debug      `toml:"debug" json:"debug"`
}

type Log struct {
	Level string `toml:"level" json:"level" validate:"oneof=debug info warn error"`
	// File receives the log instead of stderr when set.
	File string `toml:"file,omitempty" json:"file,omitempty"`
}

type Index struct {
	Backend string `toml:"backend" json:"backend" validate:"oneof=memory sqlite"`
	DSN     string `toml:"dsn,omitempty" json:"dsn,omitempty"`
	// Scan indexes YAML files on disk that are not open in the editor.
	Scan            bool `toml:"scan" json:"scan"`
	Watch           bool `toml:"watch" json:"watch"`
	ScanConcurrency int  `toml:"scanConcurrency" json:"scanConcurrency" validate:"gte=1,lte=64"`
}

type Validation struct {
	Disabled      []string `toml:"disabled" json:"disabled" validate:"dive,oneof=missing-required-field empty-required-collection mutually-exclusive-fields unknown-field type-mismatch parse-error unknown-kind invalid-value"`
	UnknownFields bool     `toml:"unknownFields" json:"unknownFields"`
}

type Format struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

type Debug struct {
	// Addr enables the debug HTTP endpoint, for example "localhost:6060".
	Addr string `toml:"addr,omitempty" json:"addr,omitempty" validate:"omitempty,hostname_port"`
}

func Default() *Config {
	return &Config{
		Log:   Log{Level: "info"},
		Index: Index{Backend: "memory", ScanConcurrency: 8},
		Validation: Validation{
			Disabled:      []string{},
			UnknownFields: true,
		},
		Format: Format{Enabled: true},
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s fails %q", ErrInvalid, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Load reads FileName from root over the defaults. A missing file is not an
// error.
func Load(root string) (*Config, error) {
	cfg := Default()
	if root == "" {
		return cfg, nil
	}
	path := filepath.Join(root, FileName)
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.Decode(content); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays TOML content on c. Unknown keys are rejected so that typos
// do not go unnoticed.
func (c *Config) Decode(content []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("%w: line %d, column %d: %v", ErrInvalid, row, col, derr)
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return c.Validate()
}

// Overlay applies the client's initializationOptions, which arrive as
// decoded JSON. Keys missing from opts keep their current value.
func (c *Config) Overlay(opts interface{}) error {
	if opts == nil {
		return nil
	}
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("%w: initializationOptions: %v", ErrInvalid, err)
	}
	return c.Validate()
}

// Marshal renders c as TOML, for scaffolding a project file.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
