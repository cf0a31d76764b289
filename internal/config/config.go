// Package config provides configuration loading and validation for dnsbalancer.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (DNSBALANCER_* prefix)
//  2. YAML config file (if specified)
//  3. Hardcoded defaults
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DNSBALANCER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.workers", "auto")
	v.SetDefault("server.max_pkt_size", 4096)

	v.SetDefault("tracking.req_ttl", "10s")
	v.SetDefault("tracking.epoch_tick_size", "100ms")
	v.SetDefault("tracking.gc_interval", "1s")

	v.SetDefault("watchdog.interval", "5s")
	v.SetDefault("watchdog.tries", 3)

	v.SetDefault("selection", "random")

	v.SetDefault("reload.enabled", false)
	v.SetDefault("reload.socket_path", "/run/dnsbalancer/reload.sock")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", "127.0.0.1:9153")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})
}

func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadTrackingConfig(v, cfg)
	loadWatchdogConfig(v, cfg)
	loadSelectionConfig(v, cfg)
	loadTopologyConfig(v, cfg)
	loadReloadConfig(v, cfg)
	loadMetricsConfig(v, cfg)
	loadLoggingConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
	cfg.Server.MaxPktSize = v.GetInt("server.max_pkt_size")
}

func loadTrackingConfig(v *viper.Viper, cfg *Config) {
	cfg.Tracking.ReqTTL = v.GetString("tracking.req_ttl")
	cfg.Tracking.EpochTickSize = v.GetString("tracking.epoch_tick_size")
	cfg.Tracking.GCInterval = v.GetString("tracking.gc_interval")
}

func loadWatchdogConfig(v *viper.Viper, cfg *Config) {
	cfg.Watchdog.Interval = v.GetString("watchdog.interval")
	cfg.Watchdog.Tries = v.GetInt("watchdog.tries")
}

func loadSelectionConfig(v *viper.Viper, cfg *Config) {
	cfg.Selection = SelectionPolicy(strings.ToLower(v.GetString("selection")))
}

func loadTopologyConfig(v *viper.Viper, cfg *Config) {
	if err := v.UnmarshalKey("frontends", &cfg.Frontends); err != nil {
		cfg.Frontends = nil
	}
	if err := v.UnmarshalKey("forwarders", &cfg.Forwarders); err != nil {
		cfg.Forwarders = nil
	}
}

func loadReloadConfig(v *viper.Viper, cfg *Config) {
	cfg.Reload.Enabled = v.GetBool("reload.enabled")
	cfg.Reload.SocketPath = v.GetString("reload.socket_path")
}

func loadMetricsConfig(v *viper.Viper, cfg *Config) {
	cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	cfg.Metrics.Listen = v.GetString("metrics.listen")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

// normalizeConfig validates and normalizes the configuration, and checks
// that every duration field parses. The parsed durations are not stored:
// the ReqTTL/EpochTickSize/GCInterval/WatchdogInterval accessors parse the
// string again on each call.
func normalizeConfig(cfg *Config) error {
	if len(cfg.Frontends) == 0 {
		return errors.New("at least one frontend must be configured")
	}
	if len(cfg.Forwarders) == 0 {
		return errors.New("at least one forwarder must be configured")
	}

	forwarderNames := make(map[string]bool, len(cfg.Forwarders))
	for _, f := range cfg.Forwarders {
		if f.Name == "" || f.Address == "" {
			return errors.New("forwarders require both name and address")
		}
		forwarderNames[f.Name] = true
	}
	for _, f := range cfg.Frontends {
		if f.Name == "" || f.Address == "" {
			return errors.New("frontends require both name and address")
		}
		if len(f.Forwarders) == 0 {
			return fmt.Errorf("frontend %q lists no forwarders", f.Name)
		}
		for _, name := range f.Forwarders {
			if !forwarderNames[name] {
				return fmt.Errorf("frontend %q references unknown forwarder %q", f.Name, name)
			}
		}
	}

	switch cfg.Selection {
	case SelectionRandom, SelectionRoundRobin, SelectionWeighted:
	case "":
		cfg.Selection = SelectionRandom
	default:
		return fmt.Errorf("unknown selection policy %q", cfg.Selection)
	}

	if cfg.Server.MaxPktSize <= 0 {
		cfg.Server.MaxPktSize = 4096
	}

	if _, err := time.ParseDuration(cfg.Tracking.ReqTTL); err != nil {
		return fmt.Errorf("tracking.req_ttl: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Tracking.EpochTickSize); err != nil {
		return fmt.Errorf("tracking.epoch_tick_size: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Tracking.GCInterval); err != nil {
		return fmt.Errorf("tracking.gc_interval: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Watchdog.Interval); err != nil {
		return fmt.Errorf("watchdog.interval: %w", err)
	}
	if cfg.Watchdog.Tries <= 0 {
		cfg.Watchdog.Tries = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	return nil
}

// ReqTTL returns the parsed request TTL. Safe to call after Load, which
// validates the raw string.
func (c *Config) ReqTTL() time.Duration {
	d, _ := time.ParseDuration(c.Tracking.ReqTTL)
	return d
}

// EpochTickSize returns the parsed epoch tick duration.
func (c *Config) EpochTickSize() time.Duration {
	d, _ := time.ParseDuration(c.Tracking.EpochTickSize)
	return d
}

// GCInterval returns the parsed GC sweep interval.
func (c *Config) GCInterval() time.Duration {
	d, _ := time.ParseDuration(c.Tracking.GCInterval)
	return d
}

// WatchdogInterval returns the parsed watchdog probe interval.
func (c *Config) WatchdogInterval() time.Duration {
	d, _ := time.ParseDuration(c.Watchdog.Interval)
	return d
}
