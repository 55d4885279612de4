// Package config manages nsrl-filter configuration.
// Values come from built-in defaults, an optional TOML or YAML file, and
// finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFile      = "nsrl-filter.toml"
	DefaultDatabase = "nsrl.db"
	DefaultInput    = "files.csv"

	// Forensic file-listing exports carry MD5 then SHA-1 at these positions
	DefaultMD5Field       = 6
	DefaultSHA1Field      = 7
	DefaultExtensionField = 2

	DefaultChunkSize = 10000
)

// Supported reference store drivers
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
)

// Where DuplicateKnown records are written
const (
	DuplicatesKnown = "known"
	DuplicatesOmit  = "omit"
)

// ErrConfigExists is returned by Initialize when a config file is already present
var ErrConfigExists = errors.New("config file already exists")

// Config represents the nsrl-filter configuration
type Config struct {
	Database string `toml:"database" yaml:"database"`
	Input    string `toml:"input" yaml:"input"`
	Driver   string `toml:"driver" yaml:"driver"`
	Table    string `toml:"table,omitempty" yaml:"table,omitempty"` // Overrides METADATA/FILE detection

	Workers      int `toml:"workers" yaml:"workers"`
	ChunkSize    int `toml:"chunk_size" yaml:"chunk_size"`
	QueryRetries int `toml:"query_retries" yaml:"query_retries"`

	MD5Field       int      `toml:"md5_field" yaml:"md5_field"`
	SHA1Field      int      `toml:"sha1_field" yaml:"sha1_field"`
	ExtensionField int      `toml:"extension_field" yaml:"extension_field"`
	Delimiter      string   `toml:"delimiter" yaml:"delimiter"`
	LazyQuotes     bool     `toml:"lazy_quotes" yaml:"lazy_quotes"`
	Extensions     []string `toml:"extensions,omitempty" yaml:"extensions,omitempty"`

	KnownOutput   string `toml:"known_output,omitempty" yaml:"known_output,omitempty"`
	UnknownOutput string `toml:"unknown_output,omitempty" yaml:"unknown_output,omitempty"`
	Duplicates    string `toml:"duplicates" yaml:"duplicates"`

	SkipIndex bool `toml:"skip_index" yaml:"skip_index"`

	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`

	path string // file the config was loaded from, empty for defaults
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Database:       DefaultDatabase,
		Input:          DefaultInput,
		Driver:         DriverSQLite,
		Workers:        runtime.NumCPU(),
		ChunkSize:      DefaultChunkSize,
		QueryRetries:   1,
		MD5Field:       DefaultMD5Field,
		SHA1Field:      DefaultSHA1Field,
		ExtensionField: DefaultExtensionField,
		Delimiter:      ",",
		Duplicates:     DuplicatesKnown,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads the configuration file at path on top of the defaults.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.path = path
	return cfg, nil
}

// Discover loads ConfigFile from the working directory, falling back to
// defaults when it does not exist
func Discover() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(cwd, ConfigFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	return Load(path)
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Initialize writes a default config file into dir
func Initialize(dir string) (string, error) {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return "", ErrConfigExists
	}

	cfg := Default()
	if err := cfg.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// Comma returns the field delimiter as a rune. "tab" and "\t" mean a tab.
func (c *Config) Comma() rune {
	switch c.Delimiter {
	case "", ",":
		return ','
	case "tab", `\t`:
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres, DriverSQLServer:
	default:
		return fmt.Errorf("unknown driver %q (want %s, %s or %s)", c.Driver, DriverSQLite, DriverPostgres, DriverSQLServer)
	}

	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1, got %d", c.ChunkSize)
	}
	if c.QueryRetries < 0 {
		return fmt.Errorf("query_retries cannot be negative")
	}
	if c.MD5Field < 0 || c.SHA1Field < 0 || c.ExtensionField < 0 {
		return fmt.Errorf("field positions cannot be negative")
	}
	if c.MD5Field == c.SHA1Field {
		return fmt.Errorf("md5_field and sha1_field must differ")
	}
	if utf8.RuneCountInString(c.Delimiter) > 1 && c.Delimiter != "tab" && c.Delimiter != `\t` {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if c.Comma() == '"' || c.Comma() == '\r' || c.Comma() == '\n' || c.Comma() == utf8.RuneError {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	switch c.Duplicates {
	case DuplicatesKnown, DuplicatesOmit:
	default:
		return fmt.Errorf("duplicates must be %q or %q, got %q", DuplicatesKnown, DuplicatesOmit, c.Duplicates)
	}

	return nil
}
