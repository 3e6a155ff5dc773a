package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/pyscout/core/util/pathutil"
)

//go:generate go run ../tools/schema-generator/

// Settings holds the discovery settings consumed by the finder. Paths may
// contain a home-directory prefix or environment variables; they are expanded
// before being sent to the worker.
type Settings struct {
	// WorkerPath overrides the discovery worker executable. When empty the
	// worker is looked up as "pyscout-worker" on PATH.
	WorkerPath string `yaml:"worker_path,omitempty" toml:"worker_path,omitempty" json:"worker_path,omitempty" jsonschema:"description=Path to the discovery worker executable"`

	// CondaPath overrides the conda executable used by the worker.
	CondaPath string `yaml:"conda_path,omitempty" toml:"conda_path,omitempty" json:"conda_path,omitempty" jsonschema:"description=Path to the conda executable"`

	// PoetryPath overrides the poetry executable used by the worker.
	PoetryPath string `yaml:"poetry_path,omitempty" toml:"poetry_path,omitempty" json:"poetry_path,omitempty" jsonschema:"description=Path to the poetry executable"`

	// VenvDirs lists custom virtual-environment root directories to scan.
	VenvDirs []string `yaml:"venv_dirs,omitempty" toml:"venv_dirs,omitempty" json:"venv_dirs,omitempty" jsonschema:"description=Custom virtual environment root directories"`

	// SearchPaths lists extra directories to search for interpreters.
	SearchPaths []string `yaml:"search_paths,omitempty" toml:"search_paths,omitempty" json:"search_paths,omitempty" jsonschema:"description=Additional interpreter search paths"`

	// Workspaces lists the workspace directories reported to the worker.
	// Defaults to the directory containing pyscout.yml.
	Workspaces []string `yaml:"workspaces,omitempty" toml:"workspaces,omitempty" json:"workspaces,omitempty" jsonschema:"description=Workspace directories for workspace-local discovery"`
}

// Config is the root of a parsed pyscout.yml.
type Config struct {
	Version  string   `yaml:"version" toml:"version" json:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
	Settings Settings `yaml:"settings,omitempty" toml:"settings,omitempty" json:"settings,omitempty" jsonschema:"description=Discovery settings"`

	// Extensions captures all other top-level keys for extensibility
	// (e.g. the "logging" section).
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`

	// path is the file this config was loaded from, when known.
	path string
}

// Path returns the file path this configuration was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// SetDefaults fills in defaults for fields that were not specified.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
}

// Validate performs basic semantic validation beyond the JSON schema.
func (c *Config) Validate() error {
	for _, p := range append(append([]string{}, c.Settings.VenvDirs...), c.Settings.SearchPaths...) {
		if p == "" {
			return fmt.Errorf("empty path entry in settings")
		}
	}
	return nil
}

// ExpandedSettings returns a copy of the settings with every path expanded
// (home directory and environment variables). Entries that fail to expand are
// dropped and returned as errors for the caller to log.
func (c *Config) ExpandedSettings() (Settings, []error) {
	var errs []error
	out := Settings{}

	expandOne := func(p string) string {
		if p == "" {
			return ""
		}
		expanded, err := pathutil.Expand(p)
		if err != nil {
			errs = append(errs, err)
			return ""
		}
		return expanded
	}

	out.WorkerPath = expandOne(c.Settings.WorkerPath)
	out.CondaPath = expandOne(c.Settings.CondaPath)
	out.PoetryPath = expandOne(c.Settings.PoetryPath)

	var e []error
	out.VenvDirs, e = pathutil.ExpandAll(c.Settings.VenvDirs)
	errs = append(errs, e...)
	out.SearchPaths, e = pathutil.ExpandAll(c.Settings.SearchPaths)
	errs = append(errs, e...)
	out.Workspaces, e = pathutil.ExpandAll(c.Settings.Workspaces)
	errs = append(errs, e...)

	return out, errs
}

// UnmarshalExtension decodes a specific extension's configuration from the
// Extensions map into a strongly-typed target struct.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{} into the
	// strongly-typed target struct, keyed by yaml tags for consistency.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
