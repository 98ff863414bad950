// Package config provides configuration loading and management.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// FUSION_BRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/zapletal-martin/fusion-idea-addin/internal/constants"
)

// envPrefix namespaces environment overrides, e.g. FUSION_BRIDGE_LOG_LEVEL.
const envPrefix = "FUSION_BRIDGE"

// Config is the full bridge configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Command   CommandConfig   `yaml:"command"`
	Script    ScriptConfig    `yaml:"script"`
	Queue     QueueConfig     `yaml:"queue"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" envconfig:"LOG_PRETTY"`
}

// DiscoveryConfig controls the discovery responder.
type DiscoveryConfig struct {
	Group string `yaml:"group" envconfig:"DISCOVERY_GROUP"`
	Port  int    `yaml:"port" envconfig:"DISCOVERY_PORT"`

	// Interface names the interface for the multicast join. Empty picks the
	// loopback interface.
	Interface string `yaml:"interface" envconfig:"DISCOVERY_INTERFACE"`
}

// CommandConfig controls the command listener.
type CommandConfig struct {
	// Host must stay loopback; the channel is not meant to be reachable from
	// other machines.
	Host string `yaml:"host" envconfig:"COMMAND_HOST"`
}

// ScriptConfig controls script execution.
type ScriptConfig struct {
	Interpreter string        `yaml:"interpreter" envconfig:"SCRIPT_INTERPRETER"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"SCRIPT_TIMEOUT"`
}

// QueueConfig controls the dispatcher queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity" envconfig:"QUEUE_CAPACITY"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Discovery: DiscoveryConfig{
			Group: constants.MulticastGroup,
			Port:  constants.DiscoveryPort,
		},
		Command: CommandConfig{
			Host: constants.CommandHost,
		},
		Script: ScriptConfig{
			Interpreter: constants.DefaultInterpreter,
			Timeout:     5 * time.Minute,
		},
		Queue: QueueConfig{
			Capacity: constants.DefaultQueueCapacity,
		},
	}
}

// Load builds the effective configuration. An explicitly given path must
// exist; the default path is optional.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = constants.ConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Defaults plus env overrides.
	default:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration's internal consistency.
func (c *Config) Validate() error {
	if c.Discovery.Port < 0 || c.Discovery.Port > 65535 {
		return fmt.Errorf("discovery port %d is out of range", c.Discovery.Port)
	}
	if c.Command.Host == "" {
		return errors.New("command host must not be empty")
	}
	if c.Script.Interpreter == "" {
		return errors.New("script interpreter must not be empty")
	}
	if c.Script.Timeout < 0 {
		return fmt.Errorf("script timeout %s must not be negative", c.Script.Timeout)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity %d must be positive", c.Queue.Capacity)
	}
	return nil
}
