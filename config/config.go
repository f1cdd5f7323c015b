// Package config ties together all other application configuration types.
package config

import (
	"bytes"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"code.straitex.io/sequencer/core/journal"
	"code.straitex.io/sequencer/core/sequencer"
	"code.straitex.io/sequencer/gateway"
	"code.straitex.io/sequencer/logging"
	"code.straitex.io/sequencer/metrics"
)

type Config struct {
	Logging   logging.Config   `toml:"logging"`
	Sequencer sequencer.Config `toml:"sequencer"`
	Journal   journal.Config   `toml:"journal"`
	Gateway   gateway.Config   `toml:"gateway"`
	Metrics   metrics.Config   `toml:"metrics"`
}

// NewDefaultConfig returns the default configuration for every package, as
// specified at the per-package config level.
func NewDefaultConfig() Config {
	return Config{
		Logging:   logging.NewDefaultConfig(),
		Sequencer: sequencer.NewDefaultConfig(),
		Journal:   journal.NewDefaultConfig(),
		Gateway:   gateway.NewDefaultConfig(),
		Metrics:   metrics.NewDefaultConfig(),
	}
}

// Read loads a configuration file over the defaults, so a partial file is
// valid.
func Read(path string) (Config, error) {
	cfg := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "unable to read configuration at %s", path)
	}
	return cfg, nil
}

// Write saves the configuration, creating the file if needed.
func Write(path string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return errors.Wrap(err, "unable to encode configuration")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "unable to write configuration at %s", path)
	}
	return nil
}
