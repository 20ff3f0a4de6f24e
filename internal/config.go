package internal

import (
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/clickup-notes/internal/reader"
)

// Config represents the application configuration. It is built once at
// startup and passed explicitly to every stage.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Input    InputConfig       `yaml:"input"`
	Output   OutputConfig      `yaml:"output"`
	Convert  ConvertConfig     `yaml:"convert"`
	Manifest ManifestConfig    `yaml:"manifest"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Convert.Validate(); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// InputConfig describes the CSV export to read.
type InputConfig struct {
	Path    string         `yaml:"path"`
	Columns reader.Columns `yaml:"columns"`
}

// Validate validates the input configuration.
func (c *InputConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	); err != nil {
		return err
	}
	if err := c.Columns.Validate(); err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	return nil
}

// OutputConfig describes where and how notes are written.
type OutputConfig struct {
	Path string `yaml:"path"`
	// Author is stamped on every note; empty falls back to each row's
	// creator column.
	Author string `yaml:"author"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ConvertConfig holds conversion policy.
type ConvertConfig struct {
	// DoNotConvert lists statuses whose tasks are left out entirely.
	DoNotConvert []string `yaml:"do_not_convert"`
}

// Validate validates the conversion configuration.
func (c *ConvertConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DoNotConvert, validation.Each(validation.By(nonBlank))),
	)
}

func nonBlank(v interface{}) error {
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("status must not be blank")
	}
	return nil
}

// ManifestConfig holds the optional SQLite run manifest location. An
// empty path disables the manifest.
type ManifestConfig struct {
	Path string `yaml:"path"`
}

// Enabled returns true when a manifest path is configured.
func (c *ManifestConfig) Enabled() bool {
	return c.Path != ""
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Input: InputConfig{
			Path:    "clickupExport.csv",
			Columns: reader.DefaultColumns(),
		},
		Output: OutputConfig{
			Path: "clickup_notes",
		},
		Convert: ConvertConfig{
			DoNotConvert: []string{"closed", "complete"},
		},
	}
}
