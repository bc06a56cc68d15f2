// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/util"
)

// Defaults for the coprocessor devnet. The config file can override
// any of them; most users never need one.
const (
	DefaultRemoteURL   = "https://github.com/zippiehq/cartesi-coprocessor"
	DefaultBranch      = "main"
	DefaultCheckoutDir = "~/.cartesi-coprocessor-repo"
	DefaultComposeFile = "docker-compose-devnet.yaml"
	DefaultStateDir    = "~/.copro"
)

// Duration wraps time.Duration with yaml support for strings like
// "5s" and "30m".
type Duration time.Duration

// UnmarshalYAML parses either a duration string or a bare number of
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		return fmt.Errorf("empty duration")
	}
	if !strings.ContainsAny(s, "smhdµn") {
		s += "s"
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the copro configuration, loaded from YAML over defaults.
type Config struct {
	Repo struct {
		// URL is the coprocessor git remote.
		URL string `yaml:"url"`

		// Branch is the upstream branch tracked for updates.
		Branch string `yaml:"branch"`

		// Dir is the checkout location; supports ~ expansion.
		Dir string `yaml:"dir"`
	} `yaml:"repo"`

	Sync struct {
		// SubmodulePollInterval is how often the streamed
		// submodule update is checked for completion.
		SubmodulePollInterval Duration `yaml:"submodule_poll_interval"`

		// SubmoduleTimeout bounds the submodule update.
		SubmoduleTimeout Duration `yaml:"submodule_timeout"`
	} `yaml:"sync"`

	Compose struct {
		// File is the compose file name inside the checkout.
		File string `yaml:"file"`

		// PollInterval is how often streamed compose commands
		// are checked for completion.
		PollInterval Duration `yaml:"poll_interval"`

		// Timeout bounds each compose command.
		Timeout Duration `yaml:"timeout"`
	} `yaml:"compose"`

	Logging struct {
		// Level is debug, info, warn, or error.
		Level string `yaml:"level"`

		// Dir enables JSON file logging when set.
		Dir string `yaml:"dir"`

		// JSON switches stderr logging to JSON.
		JSON bool `yaml:"json"`
	} `yaml:"logging"`

	// StateDir holds diagnostics bundles and logs; supports ~
	// expansion.
	StateDir string `yaml:"state_dir"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	var c Config
	c.Repo.URL = DefaultRemoteURL
	c.Repo.Branch = DefaultBranch
	c.Repo.Dir = DefaultCheckoutDir
	c.Sync.SubmodulePollInterval = Duration(util.DefaultSubmodulePollInterval)
	c.Sync.SubmoduleTimeout = Duration(util.DefaultSubmoduleMaxWait)
	c.Compose.File = DefaultComposeFile
	c.Compose.PollInterval = Duration(util.DefaultComposePollInterval)
	c.Compose.Timeout = Duration(util.DefaultComposeMaxWait)
	c.Logging.Level = "info"
	c.StateDir = DefaultStateDir
	return c
}

// LoadConfig reads path over the defaults. A missing file is not an
// error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.Repo.URL == "" {
		return fmt.Errorf("repo.url must not be empty")
	}
	if c.Repo.Branch == "" {
		return fmt.Errorf("repo.branch must not be empty")
	}
	if c.Repo.Dir == "" {
		return fmt.Errorf("repo.dir must not be empty")
	}
	if c.Compose.File == "" {
		return fmt.Errorf("compose.file must not be empty")
	}
	if err := util.ValidateTimeout("sync.submodule_timeout", c.Sync.SubmoduleTimeout.Std()); err != nil {
		return err
	}
	if err := util.ValidatePollInterval("sync.submodule_poll_interval", c.Sync.SubmodulePollInterval.Std()); err != nil {
		return err
	}
	if err := util.ValidateTimeout("compose.timeout", c.Compose.Timeout.Std()); err != nil {
		return err
	}
	return util.ValidatePollInterval("compose.poll_interval", c.Compose.PollInterval.Std())
}

// CheckoutDir returns the expanded checkout path.
func (c Config) CheckoutDir() (string, error) {
	return expandHome(c.Repo.Dir)
}

// DiagnosticsDir returns the expanded directory for failure bundles.
func (c Config) DiagnosticsDir() (string, error) {
	state, err := expandHome(c.StateDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "diagnostics"), nil
}

// expandHome resolves a leading ~ against the home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory for %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
