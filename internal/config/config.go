// Package config manages prism-sidecar configuration
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jrepp/prism-sidecar/pkg/launcher"
)

// EnvPrefix is prepended to every environment override (PRISM_SIDECAR_PORT, ...)
const EnvPrefix = "PRISM_SIDECAR"

// Config holds the prism-sidecar configuration
type Config struct {
	Mode       string `mapstructure:"mode"`
	PortPolicy string `mapstructure:"port_policy"`
	Port       int    `mapstructure:"port"`

	ResourceDir string   `mapstructure:"resource_dir"`
	BinaryName  string   `mapstructure:"binary_name"`
	Args        []string `mapstructure:"args"`
	Env         []string `mapstructure:"env"` // KEY=VALUE; viper lowercases map keys
	WorkDir     string   `mapstructure:"work_dir"`

	HealthPath       string        `mapstructure:"health_path"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`

	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"mode":              "mode",
	"port-policy":       "port_policy",
	"port":              "port",
	"resource-dir":      "resource_dir",
	"binary-name":       "binary_name",
	"health-path":       "health_path",
	"readiness-timeout": "readiness_timeout",
	"grace-period":      "grace_period",
	"log-level":         "log_level",
	"log-format":        "log_format",
	"metrics-addr":      "metrics_addr",
}

// Load loads configuration from file, environment and flags, in increasing
// precedence. An empty configFile searches $HOME/.prism-sidecar and the
// working directory for sidecar.yaml; a missing file is not an error.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v, err := newViper(configFile, flags)
	if err != nil {
		return nil, err
	}

	// Read config file (ignore if not found - use defaults)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Watch calls onChange with the reloaded configuration every time the
// config file is written. Changes that fail to decode are logged to logger
// (slog.Default when nil) and skipped. It returns the watched path, or ""
// when no config file exists and there is nothing to watch.
func Watch(configFile string, flags *pflag.FlagSet, logger *slog.Logger, onChange func(*Config)) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v, err := newViper(configFile, flags)
	if err != nil {
		return "", err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Warn("ignoring invalid configuration change", "path", e.Name, "error", err)
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()

	return v.ConfigFileUsed(), nil
}

func newViper(configFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sidecar")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.prism-sidecar")
		v.AddConfigPath(".")
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	d := launcher.DefaultConfig()

	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("port_policy", string(d.PortPolicy))
	v.SetDefault("port", int(d.Port))
	v.SetDefault("resource_dir", DefaultResourceDir())
	v.SetDefault("binary_name", d.BinaryName)
	v.SetDefault("args", []string{})
	v.SetDefault("env", []string{})
	v.SetDefault("work_dir", "")
	v.SetDefault("health_path", d.HealthPath)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("readiness_timeout", d.ReadinessTimeout)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("grace_period", d.GracePeriod)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("metrics_addr", "")
}

// DefaultResourceDir returns the directory holding the running executable,
// where a packaged application bundles its backend.
func DefaultResourceDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// LauncherConfig converts to the supervisor configuration and validates it
func (c *Config) LauncherConfig() (*launcher.Config, error) {
	if c.Port < 0 || c.Port > 65535 {
		return nil, launcher.ErrInvalidConfiguration("port", c.Port, "port must be between 0 and 65535")
	}

	lc := &launcher.Config{
		Mode:             launcher.Mode(strings.ToLower(c.Mode)),
		PortPolicy:       launcher.PortPolicy(strings.ToLower(c.PortPolicy)),
		Port:             uint16(c.Port),
		ResourceDir:      c.ResourceDir,
		BinaryName:       c.BinaryName,
		Args:             append([]string(nil), c.Args...),
		WorkDir:          c.WorkDir,
		HealthPath:       c.HealthPath,
		PollInterval:     c.PollInterval,
		ReadinessTimeout: c.ReadinessTimeout,
		RequestTimeout:   c.RequestTimeout,
		GracePeriod:      c.GracePeriod,
	}
	if len(c.Env) > 0 {
		lc.Env = make(map[string]string, len(c.Env))
		for _, kv := range c.Env {
			k, val, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, launcher.ErrInvalidConfiguration("env", kv, "environment entries must be KEY=VALUE")
			}
			lc.Env[k] = val
		}
	}

	if err := lc.Validate(); err != nil {
		return nil, err
	}
	return lc, nil
}

// ParseLevel maps a log_level value to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger from log_level and log_format. When
// level is non-nil it is set from log_level and can be changed later.
func (c *Config) NewLogger(w io.Writer, level *slog.LevelVar) (*slog.Logger, error) {
	if level == nil {
		level = new(slog.LevelVar)
	}
	level.Set(ParseLevel(c.LogLevel))
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.LogFormat) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, launcher.ErrInvalidConfiguration("log_format", c.LogFormat, "log format must be json or text")
	}
}

// effectiveView is the YAML rendering of Config, durations as strings
type effectiveView struct {
	Mode             string   `yaml:"mode"`
	PortPolicy       string   `yaml:"port_policy"`
	Port             int      `yaml:"port"`
	ResourceDir      string   `yaml:"resource_dir"`
	BinaryName       string   `yaml:"binary_name"`
	Args             []string `yaml:"args,omitempty"`
	Env              []string `yaml:"env,omitempty"`
	WorkDir          string   `yaml:"work_dir,omitempty"`
	HealthPath       string   `yaml:"health_path"`
	PollInterval     string   `yaml:"poll_interval"`
	ReadinessTimeout string   `yaml:"readiness_timeout"`
	RequestTimeout   string   `yaml:"request_timeout"`
	GracePeriod      string   `yaml:"grace_period"`
	LogLevel         string   `yaml:"log_level"`
	LogFormat        string   `yaml:"log_format"`
	MetricsAddr      string   `yaml:"metrics_addr,omitempty"`
}

// MarshalYAML renders the configuration in the same shape as sidecar.yaml
func (c *Config) MarshalYAML() (interface{}, error) {
	return effectiveView{
		Mode:             c.Mode,
		PortPolicy:       c.PortPolicy,
		Port:             c.Port,
		ResourceDir:      c.ResourceDir,
		BinaryName:       c.BinaryName,
		Args:             c.Args,
		Env:              c.Env,
		WorkDir:          c.WorkDir,
		HealthPath:       c.HealthPath,
		PollInterval:     c.PollInterval.String(),
		ReadinessTimeout: c.ReadinessTimeout.String(),
		RequestTimeout:   c.RequestTimeout.String(),
		GracePeriod:      c.GracePeriod.String(),
		LogLevel:         c.LogLevel,
		LogFormat:        c.LogFormat,
		MetricsAddr:      c.MetricsAddr,
	}, nil
}

// WriteYAML writes the effective configuration to w
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
