// Package config provides configuration loading for dnsbalancer using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the DNSBALANCER_ prefix and underscore-separated keys:
//   - DNSBALANCER_SERVER_WORKERS -> server.workers
//   - DNSBALANCER_TRACKING_REQ_TTL -> tracking.req_ttl
//   - DNSBALANCER_WATCHDOG_INTERVAL -> watchdog.interval
package config

import (
	"strconv"
	"strings"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// ServerConfig contains top-level daemon settings.
type ServerConfig struct {
	WorkersRaw string        `yaml:"workers" mapstructure:"workers"`
	Workers    WorkerSetting `yaml:"-"       mapstructure:"-"`
	MaxPktSize int           `yaml:"max_pkt_size" mapstructure:"max_pkt_size"`
}

// TrackingConfig controls the in-flight tracking table and its GC.
type TrackingConfig struct {
	ReqTTL        string `yaml:"req_ttl"         mapstructure:"req_ttl"`
	EpochTickSize string `yaml:"epoch_tick_size" mapstructure:"epoch_tick_size"`
	GCInterval    string `yaml:"gc_interval"     mapstructure:"gc_interval"`
}

// WatchdogConfig controls the forwarder liveness prober.
type WatchdogConfig struct {
	Interval string `yaml:"interval" mapstructure:"interval"`
	Tries    int    `yaml:"tries"    mapstructure:"tries"`
}

// SelectionPolicy names a forwarder selection strategy.
type SelectionPolicy string

const (
	SelectionRandom      SelectionPolicy = "random"
	SelectionRoundRobin  SelectionPolicy = "round_robin"
	SelectionWeighted    SelectionPolicy = "weighted"
)

// ForwarderConfig describes one upstream resolver.
type ForwarderConfig struct {
	Name          string `yaml:"name"           mapstructure:"name"`
	Address       string `yaml:"address"        mapstructure:"address"`
	Weight        int    `yaml:"weight"         mapstructure:"weight"`
	WatchdogQuery string `yaml:"watchdog_query" mapstructure:"watchdog_query"`
}

// FrontendConfig describes one client-facing bound endpoint.
type FrontendConfig struct {
	Name       string   `yaml:"name"       mapstructure:"name"`
	Address    string   `yaml:"address"    mapstructure:"address"`
	Forwarders []string `yaml:"forwarders" mapstructure:"forwarders"`
}

// ReloadConfig controls hot-reload behavior.
type ReloadConfig struct {
	Enabled    bool   `yaml:"enabled"     mapstructure:"enabled"`
	SocketPath string `yaml:"socket_path" mapstructure:"socket_path"`
}

// MetricsConfig controls the Prometheus observability surface.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen"  mapstructure:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig      `yaml:"server"    mapstructure:"server"`
	Tracking  TrackingConfig    `yaml:"tracking"  mapstructure:"tracking"`
	Watchdog  WatchdogConfig    `yaml:"watchdog"  mapstructure:"watchdog"`
	Selection SelectionPolicy   `yaml:"selection" mapstructure:"selection"`
	Frontends []FrontendConfig  `yaml:"frontends" mapstructure:"frontends"`
	Forwarders []ForwarderConfig `yaml:"forwarders" mapstructure:"forwarders"`
	Reload    ReloadConfig      `yaml:"reload"    mapstructure:"reload"`
	Metrics   MetricsConfig     `yaml:"metrics"   mapstructure:"metrics"`
	Logging   LoggingConfig     `yaml:"logging"   mapstructure:"logging"`
}

// Load loads configuration from a YAML file with environment variable overrides.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (DNSBALANCER_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
