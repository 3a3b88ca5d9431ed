package launcher

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the backend is obtained
type Mode string

const (
	// ModeDevelopment assumes a developer already runs the backend on the fixed port
	ModeDevelopment Mode = "development"
	// ModePackaged spawns the backend bundled in the resource directory
	ModePackaged Mode = "packaged"
)

// PortPolicy selects how the backend port is chosen
type PortPolicy string

const (
	// PortPolicyFixed always uses Config.Port so clients can reconnect across restarts
	PortPolicyFixed PortPolicy = "fixed"
	// PortPolicyEphemeral asks the OS for a free loopback port
	PortPolicyEphemeral PortPolicy = "ephemeral"
)

const (
	// DefaultPort is the well-known development port
	DefaultPort uint16 = 8765

	// DefaultBinaryName is the bundled backend executable name
	DefaultBinaryName = "backend-server"

	// DefaultHealthPath is the readiness endpoint on the backend
	DefaultHealthPath = "/health"

	DefaultPollInterval     = 200 * time.Millisecond
	DefaultReadinessTimeout = 60 * time.Second
	DefaultRequestTimeout   = 2 * time.Second
	DefaultGracePeriod      = 5 * time.Second
)

// Config holds supervisor configuration
type Config struct {
	// Execution mode
	Mode Mode

	// Port selection
	PortPolicy PortPolicy
	Port       uint16

	// Executable location (packaged mode)
	ResourceDir string
	BinaryName  string

	// Extra arguments placed before --port, extra environment and working directory
	Args    []string
	Env     map[string]string
	WorkDir string

	// Readiness probe
	HealthPath       string
	PollInterval     time.Duration
	ReadinessTimeout time.Duration
	RequestTimeout   time.Duration

	// Termination
	GracePeriod time.Duration
}

// DefaultConfig returns a packaged-mode configuration with an ephemeral port
func DefaultConfig() *Config {
	return &Config{
		Mode:             ModePackaged,
		PortPolicy:       PortPolicyEphemeral,
		Port:             DefaultPort,
		BinaryName:       DefaultBinaryName,
		HealthPath:       DefaultHealthPath,
		PollInterval:     DefaultPollInterval,
		ReadinessTimeout: DefaultReadinessTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		GracePeriod:      DefaultGracePeriod,
	}
}

// EffectivePortPolicy returns the policy actually applied; development mode
// always uses the fixed port.
func (c *Config) EffectivePortPolicy() PortPolicy {
	if c.Mode == ModeDevelopment {
		return PortPolicyFixed
	}
	return c.PortPolicy
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDevelopment, ModePackaged:
	default:
		return ErrInvalidConfiguration("mode", c.Mode,
			fmt.Sprintf("mode must be %q or %q", ModeDevelopment, ModePackaged))
	}

	switch c.PortPolicy {
	case PortPolicyFixed, PortPolicyEphemeral:
	default:
		return ErrInvalidConfiguration("port_policy", c.PortPolicy,
			fmt.Sprintf("port_policy must be %q or %q", PortPolicyFixed, PortPolicyEphemeral))
	}

	if c.EffectivePortPolicy() == PortPolicyFixed && c.Port == 0 {
		return ErrInvalidConfiguration("port", c.Port, "fixed port must be between 1 and 65535")
	}

	if c.Mode == ModePackaged {
		if c.ResourceDir == "" {
			return ErrInvalidConfiguration("resource_dir", c.ResourceDir, "resource directory is required in packaged mode")
		}
		if c.BinaryName == "" {
			return ErrInvalidConfiguration("binary_name", c.BinaryName, "binary name is required in packaged mode")
		}
	}

	if !strings.HasPrefix(c.HealthPath, "/") {
		return ErrInvalidConfiguration("health_path", c.HealthPath, "health path must start with /")
	}

	if c.PollInterval <= 0 {
		return ErrInvalidConfiguration("poll_interval", c.PollInterval, "poll interval must be positive")
	}
	if c.ReadinessTimeout <= 0 {
		return ErrInvalidConfiguration("readiness_timeout", c.ReadinessTimeout, "readiness timeout must be positive")
	}
	if c.PollInterval > c.ReadinessTimeout {
		return ErrInvalidConfiguration("poll_interval", c.PollInterval, "poll interval cannot exceed the readiness timeout")
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidConfiguration("request_timeout", c.RequestTimeout, "request timeout must be positive")
	}
	if c.GracePeriod < 0 {
		return ErrInvalidConfiguration("grace_period", c.GracePeriod, "grace period cannot be negative")
	}

	return nil
}
