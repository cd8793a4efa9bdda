// Package config loads the YAML configuration of canlogctl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
	"example.com/canlog/internal/common"
	"example.com/canlog/internal/pipeline"
)

type Config struct {
	Catalog       string           `yaml:"catalog"`
	Extended      bool             `yaml:"extended"`
	Resolution    string           `yaml:"resolution"`
	DeviceShift   *uint            `yaml:"deviceShift"`
	Duplicates    string           `yaml:"duplicates"`
	Jobs          int              `yaml:"jobs"`
	ShareRollover bool             `yaml:"shareRollover"`
	Overwrite     bool             `yaml:"overwrite"`
	Progress      bool             `yaml:"progress"`
	Logs          common.LogConfig `yaml:"logs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Resolution == "" {
		c.Resolution = canlog.Nanosecond.String()
	}
	if c.Duplicates == "" {
		c.Duplicates = string(catalog.LastWins)
	}
	if c.Jobs <= 0 {
		c.Jobs = runtime.NumCPU()
	}
	if c.Logs.Directory != "" {
		if c.Logs.MaxSizeMB <= 0 {
			c.Logs.MaxSizeMB = 25
		}
		if c.Logs.MaxAgeDays <= 0 {
			c.Logs.MaxAgeDays = 7
		}
		if c.Logs.MaxBackups <= 0 {
			c.Logs.MaxBackups = 5
		}
	}
}

// Load reads the file at path and fills in defaults. Relative paths in the
// file are resolved against its directory. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Catalog != "" {
		cfg.Catalog = resolvePath(cfg.Catalog)
	}
	if cfg.Logs.Directory != "" {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := canlog.ParseResolution(c.Resolution); err != nil {
		return err
	}
	if _, err := catalog.ParseDuplicatePolicy(c.Duplicates); err != nil {
		return err
	}
	if c.DeviceShift != nil && *c.DeviceShift > catalog.MaxDeviceShift {
		return fmt.Errorf("deviceShift %d out of range 0..%d", *c.DeviceShift, catalog.MaxDeviceShift)
	}
	return nil
}

// Options translates the configuration into pipeline options. Paths are
// left for the caller to fill in.
func (c Config) Options() (pipeline.Options, error) {
	var opts pipeline.Options
	if err := c.Validate(); err != nil {
		return opts, err
	}
	res, _ := canlog.ParseResolution(c.Resolution)
	dup, _ := catalog.ParseDuplicatePolicy(c.Duplicates)
	opts.CatalogPath = c.Catalog
	opts.Grammar = canlog.GrammarFor(c.Extended)
	opts.Resolution = res
	opts.Duplicates = dup
	// Without an explicit deviceShift the header define, then the
	// default, applies.
	opts.DeviceShift = pipeline.DefaultDeviceShift
	opts.ShiftFromHeader = c.DeviceShift == nil
	if c.DeviceShift != nil {
		opts.DeviceShift = *c.DeviceShift
	}
	opts.Jobs = c.Jobs
	opts.ShareRollover = c.ShareRollover
	return opts, nil
}
