package gssconfig

import (
	"strings"
	"time"
)

// ApplyDefaults fills in zero-valued fields across cfg with production
// defaults. Called after unmarshalling a config file so only fields the
// user actually set survive.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyPipesDefaults(&cfg.Pipes)
	applyCredentialDefaults(&cfg.Credential)
	applyMechanismsDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyPipesDefaults sets upcall pipe defaults.
func applyPipesDefaults(cfg *PipesConfig) {
	if cfg.BinaryPipeName == "" {
		cfg.BinaryPipeName = "gssauth.upcall"
	}
	if cfg.TextPipeName == "" {
		cfg.TextPipeName = "gssauth.text.upcall"
	}
	if cfg.NegotiationTimeout == 0 {
		cfg.NegotiationTimeout = 15 * time.Second
	}
}

// applyCredentialDefaults sets Credential state machine timer defaults.
func applyCredentialDefaults(cfg *CredentialConfig) {
	if cfg.ExpiredCredRetryDelay == 0 {
		cfg.ExpiredCredRetryDelay = 5 * time.Second
	}
	if cfg.KeyExpireTimeout == 0 {
		cfg.KeyExpireTimeout = 240 * time.Second
	}
	if cfg.CacheKeepCount == 0 {
		cfg.CacheKeepCount = 4096
	}
}

// applyMechanismsDefaults defaults the mechanism list to the three
// Kerberos RPCSEC_GSS service flavors when the user configured none.
func applyMechanismsDefaults(cfg *Config) {
	if len(cfg.Mechanisms) == 0 {
		cfg.Mechanisms = []string{"krb5", "krb5i", "krb5p"}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a fully defaulted Config, used when no config
// file is present.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
