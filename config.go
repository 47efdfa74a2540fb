// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the daemon-side configuration file. The library itself is
// configured through Options; Config exists so a standalone bridged
// process can be driven from YAML.
type Config struct {
	SocketPath string `yaml:"socket_path"`
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file"`
	ReadLimit  int    `yaml:"read_limit"`
}

// LoadConfig reads and strictly decodes a YAML config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config")
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %s", path)
	}
	if cfg.ReadLimit < 0 {
		return nil, errors.Errorf("read_limit must not be negative, got %d", cfg.ReadLimit)
	}
	return &cfg, nil
}

// Options translates the file settings into listener options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.SocketPath != "" {
		opts = append(opts, WithSocketPath(c.SocketPath))
	}
	if c.ReadLimit > 0 {
		opts = append(opts, WithReadLimit(c.ReadLimit))
	}
	return opts
}
