// Package config loads the vkprime configuration from defaults, a YAML file and VKPRIME_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, dispatch.elements is VKPRIME_DISPATCH_ELEMENTS.
const EnvPrefix = "VKPRIME"

// ReferenceElements is the buffer length of the reference run, 512*48*96*8.
const ReferenceElements = 18874368

// Config represents the vkprime configuration
type Config struct {
	Backend  string         `mapstructure:"backend"`
	Kernel   KernelConfig   `mapstructure:"kernel"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Output   OutputConfig   `mapstructure:"output"`
	Wait     WaitConfig     `mapstructure:"wait"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Vulkan   VulkanConfig   `mapstructure:"vulkan"`
}

// KernelConfig selects the kernel. An empty path uses the built in prime kernel.
type KernelConfig struct {
	Path  string `mapstructure:"path"`
	Entry string `mapstructure:"entry"`
}

type DispatchConfig struct {
	Elements int `mapstructure:"elements"`
	// Groups fixes the workgroup count, 0 derives it from Elements.
	Groups       uint32 `mapstructure:"groups"`
	Strict       bool   `mapstructure:"strict"`
	TimeDispatch bool   `mapstructure:"time_dispatch"`
	Reuse        bool   `mapstructure:"reuse"`
	Repeat       int    `mapstructure:"repeat"`
}

type OutputConfig struct {
	Timing bool `mapstructure:"timing"`
	Dump   bool `mapstructure:"dump"`
	Verify bool `mapstructure:"verify"`
}

type WaitConfig struct {
	// Timeout bounds the wait for completion, 0 waits without bound.
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type VulkanConfig struct {
	Validation bool `mapstructure:"validation"`
}

var (
	validBackends = []string{"vulkan", "wgpu", "software"}
	validLevels   = []string{"debug", "info", "warn", "error"}
)

// DefaultConfig returns the configuration of the reference run
func DefaultConfig() *Config {
	return &Config{
		Backend: "vulkan",
		Kernel: KernelConfig{
			Entry: "main_cs",
		},
		Dispatch: DispatchConfig{
			Elements: ReferenceElements,
			Repeat:   1,
		},
		Output: OutputConfig{
			Timing: true,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load loads configuration from file, environment, and defaults. A missing default config file
// is not an error, a missing explicit one is.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	return LoadWith(v, cfgFile)
}

// LoadWith is Load on a caller supplied viper instance, so command flags bound to v take
// precedence over the file and the environment.
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".vkprime"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("vkprime")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !contains(validBackends, c.Backend) {
		return fmt.Errorf("backend must be one of: %v", validBackends)
	}
	if c.Kernel.Entry == "" {
		return errors.New("kernel.entry must not be empty")
	}
	if c.Dispatch.Elements <= 0 {
		return errors.New("dispatch.elements must be positive")
	}
	if c.Dispatch.Repeat < 1 {
		return errors.New("dispatch.repeat must be at least 1")
	}
	if c.Wait.Timeout < 0 {
		return errors.New("wait.timeout must not be negative")
	}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}
	return nil
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Kernel.Path = expandPath(c.Kernel.Path)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend", cfg.Backend)

	v.SetDefault("kernel.path", cfg.Kernel.Path)
	v.SetDefault("kernel.entry", cfg.Kernel.Entry)

	v.SetDefault("dispatch.elements", cfg.Dispatch.Elements)
	v.SetDefault("dispatch.groups", cfg.Dispatch.Groups)
	v.SetDefault("dispatch.strict", cfg.Dispatch.Strict)
	v.SetDefault("dispatch.time_dispatch", cfg.Dispatch.TimeDispatch)
	v.SetDefault("dispatch.reuse", cfg.Dispatch.Reuse)
	v.SetDefault("dispatch.repeat", cfg.Dispatch.Repeat)

	v.SetDefault("output.timing", cfg.Output.Timing)
	v.SetDefault("output.dump", cfg.Output.Dump)
	v.SetDefault("output.verify", cfg.Output.Verify)

	v.SetDefault("wait.timeout", cfg.Wait.Timeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)

	v.SetDefault("vulkan.validation", cfg.Vulkan.Validation)
}
