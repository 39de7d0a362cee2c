// Package gssconfig loads and validates the engine's configuration: pipe
// names and wire versions, the mechanism list, and the retry/expiry timers
// that drive the Credential state machine.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GSSAUTH_*), for keys the file sets
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// An environment variable overrides only a key that the loaded file
// sets; keys the file leaves out take their default values. When no
// configuration file is found, Load returns the defaults and does not
// read the environment.
package gssconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the engine's static configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Pipes configures the upcall pipes used to reach the keying daemon.
	Pipes PipesConfig `mapstructure:"pipes" yaml:"pipes"`

	// Credential configures the Credential renewal state machine.
	Credential CredentialConfig `mapstructure:"credential" yaml:"credential"`

	// Mechanisms lists the GSS mechanisms this engine negotiates, in
	// preference order (e.g. "krb5", "krb5i", "krb5p" pseudoflavor names).
	Mechanisms []string `mapstructure:"mechanisms" yaml:"mechanisms"`

	// Metrics configures the Prometheus metrics HTTP server.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// PipesConfig names the upcall channels the Coordinator opens toward the
// keying daemon and the wire version each speaks.
type PipesConfig struct {
	// BinaryPipeName is the pipe name used for the v0 binary upcall
	// encoding (4-byte native-endian uid).
	BinaryPipeName string `mapstructure:"binary_pipe_name" yaml:"binary_pipe_name"`

	// TextPipeName is the pipe name used for the v1 text upcall encoding
	// ("mech=... uid=...").
	TextPipeName string `mapstructure:"text_pipe_name" yaml:"text_pipe_name"`

	// NegotiationTimeout bounds how long the Coordinator waits for a
	// daemon to open a pipe and commit to a version before giving up.
	// Default: 15s.
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout" validate:"omitempty,gt=0" yaml:"negotiation_timeout"`
}

// CredentialConfig tunes the Credential state machine's timers.
type CredentialConfig struct {
	// ExpiredCredRetryDelay is the cooldown a Credential spends in the
	// NEGATIVE state after an upcall reports the user's key as expired,
	// before another renewal attempt is allowed.
	// Default: 5s.
	ExpiredCredRetryDelay time.Duration `mapstructure:"expired_cred_retry_delay" validate:"omitempty,gt=0" yaml:"expired_cred_retry_delay"`

	// KeyExpireTimeout is the look-ahead window used to treat a Context
	// as "about to expire" and proactively renew it.
	// Default: 240s.
	KeyExpireTimeout time.Duration `mapstructure:"key_expire_timeo" validate:"omitempty,gt=0" yaml:"key_expire_timeo"`

	// CacheKeepCount is how many entries EvictOldest leaves behind when
	// it trims a Credential cache.
	// Default: 4096.
	CacheKeepCount int `mapstructure:"cache_keep_count" validate:"omitempty,gt=0" yaml:"cache_keep_count"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server are enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GSSAUTH_*), for keys the file sets
//  2. Configuration file
//  3. Default values
//
// If no configuration file is found, Load returns GetDefaultConfig()
// without consulting the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("gssconfig: unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("gssconfig: validate config: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes cfg to path in YAML form.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("gssconfig: create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("gssconfig: marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("gssconfig: write config file: %w", err)
	}
	return nil
}

// setupViper wires environment variable overrides and config file search.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GSSAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists. Returns
// (found, error); a missing file is not an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("gssconfig: read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings and numbers to time.Duration so
// config files can use "5s"/"4m" alongside raw nanosecond integers.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/gssauth,
// falling back to ~/.config/gssauth, or "." if the home directory is unknown.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gssauth")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gssauth")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
