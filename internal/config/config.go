package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for photosort.
type Config struct {
	LogDir   string `toml:"log_dir" yaml:"log_dir"`
	LogLevel string `toml:"log_level" yaml:"log_level"` // trace, debug, info, warn, error

	// OutputDir is the default output root when none is given on the command line.
	OutputDir string `toml:"output_dir,omitempty" yaml:"output_dir,omitempty"`

	Mode     string `toml:"mode" yaml:"mode"` // "copy" or "move"
	Workers  int    `toml:"workers" yaml:"workers"`
	Locale   string `toml:"locale" yaml:"locale"`     // month/weekday names, e.g. "fr-FR"; empty means English
	Timezone string `toml:"timezone" yaml:"timezone"` // IANA name; empty means local time

	Extensions  []string `toml:"extensions" yaml:"extensions"`
	DateSources []string `toml:"date_sources" yaml:"date_sources"`

	Ledger     LedgerConfig     `toml:"ledger" yaml:"ledger"`
	Filesystem FilesystemConfig `toml:"filesystem" yaml:"filesystem"`
}

// LedgerConfig selects the ledger store.
// This uses a tagged union pattern - the Type field determines which store is used.
type LedgerConfig struct {
	Type string `toml:"type" yaml:"type"`                     // "csv", "sqlite" or "memory"
	File string `toml:"file,omitempty" yaml:"file,omitempty"` // relative paths are under the output root
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore" yaml:"ignore"`
}

// Defaults applied by NewConfig and ApplyDefaults.
var (
	DefaultExtensions  = []string{".jpg", ".jpeg"}
	DefaultDateSources = []string{"DateTimeOriginal", "mtime"}
)

const (
	DefaultMode       = "copy"
	DefaultLogLevel   = "info"
	DefaultLedgerType = "csv"
	DefaultWorkers    = 4
)

var (
	validModes       = []string{"copy", "move"}
	validLogLevels   = []string{"trace", "debug", "info", "warn", "error"}
	validLedgerTypes = []string{"csv", "sqlite", "memory"}
	validDateSources = []string{"DateTimeOriginal", "DateTimeDigitized", "DateTime", "birthtime", "mtime"}
)

// NewConfig creates a new Config with default values rooted at baseDir.
func NewConfig(baseDir string) *Config {
	cfg := &Config{LogDir: filepath.Join(baseDir, "log")}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if len(c.DateSources) == 0 {
		c.DateSources = append([]string(nil), DefaultDateSources...)
	}
	if c.Ledger.Type == "" {
		c.Ledger.Type = DefaultLedgerType
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !contains(validModes, c.Mode) {
		return fmt.Errorf("invalid mode %q (want one of %s)", c.Mode, strings.Join(validModes, ", "))
	}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log_level %q (want one of %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if !contains(validLedgerTypes, c.Ledger.Type) {
		return fmt.Errorf("unknown ledger type: %s", c.Ledger.Type)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	for _, s := range c.DateSources {
		if !contains(validDateSources, s) {
			return fmt.Errorf("unknown date source %q (want one of %s)", s, strings.Join(validDateSources, ", "))
		}
	}
	for _, e := range c.Extensions {
		if !strings.HasPrefix(e, ".") || len(e) < 2 {
			return fmt.Errorf("invalid extension %q: must start with '.'", e)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Format is a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from a file extension; anything other
// than .yaml or .yml is TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Manager handles reading and writing configuration.
type Manager struct {
	Format Format // empty means TOML
}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	switch m.Format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, falling back to NewConfig(baseDir) when
// the file does not exist. Defaults are applied and the result validated.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = NewConfig(baseDir)
	} else if err != nil {
		return nil, err
	}

	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(baseDir, "log")
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
