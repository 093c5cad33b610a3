// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAPIPrefix is the path the simulation API is mounted under when
// simulation.api_prefix is not set.
const DefaultAPIPrefix = "/api/"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Simulation() SimulationConfig
	Network() NetworkConfig

	// Simulation Setters
	SetSimulationHost(string)
	SetSimulationEnvName(string)

	// Network Setters
	SetNetworkTimeout(d time.Duration)
	SetNetworkIgnoreTLSErrors(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	SimulationCfg SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	NetworkCfg    NetworkConfig    `mapstructure:"network" yaml:"network"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Simulation() SimulationConfig { return c.SimulationCfg }
func (c *Config) Network() NetworkConfig       { return c.NetworkCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetSimulationHost(h string)    { c.SimulationCfg.Host = h }
func (c *Config) SetSimulationEnvName(n string) { c.SimulationCfg.EnvName = n }

func (c *Config) SetNetworkTimeout(d time.Duration) { c.NetworkCfg.Timeout = d }
func (c *Config) SetNetworkIgnoreTLSErrors(b bool)  { c.NetworkCfg.IgnoreTLSErrors = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SimulationConfig locates the remote simulation API.
type SimulationConfig struct {
	// Host is the host name (optionally host:port) of the simulation service. Required.
	Host string `mapstructure:"host" yaml:"host"`
	// Scheme is "https" unless talking to a local plain-HTTP service.
	Scheme string `mapstructure:"scheme" yaml:"scheme"`
	// APIPrefix is the fixed path every resource path is appended to.
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix"`
	// EnvName is the environment template used when a command does not name one.
	EnvName string `mapstructure:"env_name" yaml:"env_name"`
	// DefaultMode is the JSON text sent as the action mode when none is given.
	DefaultMode string `mapstructure:"default_mode" yaml:"default_mode"`
}

// BaseURL assembles scheme, host and API prefix into the root every request path hangs off.
// The result always ends in a slash.
func (s SimulationConfig) BaseURL() (*url.URL, error) {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		return nil, fmt.Errorf("simulation.host is required (set SIMCLIENT_SIMULATION_HOST or --host)")
	}
	if strings.ContainsAny(host, "/?#") {
		return nil, fmt.Errorf("simulation.host %q must be a bare host name without scheme or path", host)
	}
	scheme := strings.ToLower(s.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	prefix := DefaultAPIPrefix
	if strings.TrimSpace(s.APIPrefix) != "" {
		// An explicit "/" mounts the API at the root.
		prefix = "/" + strings.Trim(s.APIPrefix, "/") + "/"
		if prefix == "//" {
			prefix = "/"
		}
	}
	u := &url.URL{Scheme: scheme, Host: host, Path: prefix}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("simulation.host %q is not a valid host name", host)
	}
	return u, nil
}

// NetworkConfig tunes the HTTP behavior of the client.
type NetworkConfig struct {
	// Timeout bounds each request. Zero disables the bound.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// IgnoreTLSErrors disables certificate verification for this client only.
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ForceHTTP2      bool              `mapstructure:"force_http2" yaml:"force_http2"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
	// Proxy routes requests through this http, https or socks5 URL. Empty uses
	// the HTTP_PROXY/HTTPS_PROXY environment.
	Proxy string `mapstructure:"proxy" yaml:"proxy"`
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
// Every key needs a default (even an empty one) so AutomaticEnv can override it.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "simclient")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Simulation --
	v.SetDefault("simulation.host", "")
	v.SetDefault("simulation.scheme", "https")
	v.SetDefault("simulation.api_prefix", DefaultAPIPrefix)
	v.SetDefault("simulation.env_name", "")
	v.SetDefault("simulation.default_mode", `"default"`)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.force_http2", true)
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.rate_limit", 0.0)
	v.SetDefault("network.rate_burst", 1)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := DecodeViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DecodeViper unmarshals v without validating, for callers that adjust the
// result before checking it.
func DecodeViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The host is the one value that routinely comes from the environment.
	if err := v.BindEnv("simulation.host", "SIMCLIENT_SIMULATION_HOST", "SIMULATION_HOST"); err != nil {
		return nil, fmt.Errorf("error binding simulation.host: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.SimulationCfg.Validate(); err != nil {
		return err
	}
	if err := c.NetworkCfg.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the simulation endpoint settings.
func (s *SimulationConfig) Validate() error {
	switch strings.ToLower(s.Scheme) {
	case "", "http", "https":
	default:
		return fmt.Errorf("simulation.scheme must be http or https, got %q", s.Scheme)
	}
	if _, err := s.BaseURL(); err != nil {
		return err
	}
	return nil
}

// Validate checks the network settings.
func (n *NetworkConfig) Validate() error {
	if n.Timeout < 0 {
		return fmt.Errorf("network.timeout must not be negative")
	}
	if _, err := n.ProxyURL(); err != nil {
		return err
	}
	if n.RateLimit < 0 {
		return fmt.Errorf("network.rate_limit must not be negative")
	}
	if n.RateLimit > 0 && n.RateBurst <= 0 {
		return fmt.Errorf("network.rate_burst must be a positive integer when rate_limit is set")
	}
	return nil
}

// ProxyURL parses Proxy. It returns nil when no proxy is configured.
func (n NetworkConfig) ProxyURL() (*url.URL, error) {
	raw := strings.TrimSpace(n.Proxy)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("network.proxy %q is not a valid URL: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("network.proxy %q must use http, https or socks5", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("network.proxy %q has no host", raw)
	}
	return u, nil
}
