// Package config loads the controller's runtime configuration.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/netrack/flowctl/ctlerr"
)

// Policy names a path-selection strategy for PathEngine.
type Policy string

const (
	PolicyHop       Policy = "hop"
	PolicyDelay     Policy = "delay"
	PolicyBandwidth Policy = "bandwidth"
	PolicyLoss      Policy = "loss"
)

// Config is the single recognized configuration object for the controller.
type Config struct {
	StableSeconds      time.Duration
	EchoPeriod         time.Duration
	LLDPEmitPeriod     time.Duration
	DelayCollectPeriod time.Duration
	StatsCollectPeriod time.Duration
	PortStatHistory    int
	DefaultPolicy      Policy

	ShowTopo      bool
	ShowDelay     bool
	ShowBandwidth bool
	ShowLoss      bool

	ListenAddr string
	LogLevel   string

	MetricsAddr string

	// PathsFile, when set, points at a persisted-path JSON oracle that
	// overrides policy-based planning for the (src, dst) pairs it covers.
	PathsFile string
}

// Default returns the configuration with every documented default applied.
func Default() *Config {
	return &Config{
		StableSeconds:      5 * time.Second,
		EchoPeriod:         50 * time.Millisecond,
		LLDPEmitPeriod:     time.Second,
		DelayCollectPeriod: 5 * time.Second,
		StatsCollectPeriod: 5 * time.Second,
		PortStatHistory:    5,
		DefaultPolicy:      PolicyHop,
		ListenAddr:         "0.0.0.0:6633",
		LogLevel:           "info",
	}
}

// Load reads configuration from the given file (if non-empty) and from
// SDNCTL_-prefixed environment variables, falling back to Default for
// anything left unset. A malformed or unreadable file is a ConfigError.
func Load(file string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetEnvPrefix("SDNCTL")
	v.AutomaticEnv()

	v.SetDefault("stable_seconds", def.StableSeconds)
	v.SetDefault("echo_period", def.EchoPeriod)
	v.SetDefault("lldp_emit_period", def.LLDPEmitPeriod)
	v.SetDefault("delay_collect_period", def.DelayCollectPeriod)
	v.SetDefault("stats_collect_period", def.StatsCollectPeriod)
	v.SetDefault("port_stat_history", def.PortStatHistory)
	v.SetDefault("default_policy", string(def.DefaultPolicy))
	v.SetDefault("show_topo", false)
	v.SetDefault("show_delay", false)
	v.SetDefault("show_bandwidth", false)
	v.SetDefault("show_loss", false)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("paths_file", "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, ctlerr.New(ctlerr.ConfigError, "config: read", err)
		}
	}

	cfg := &Config{
		StableSeconds:      v.GetDuration("stable_seconds"),
		EchoPeriod:         v.GetDuration("echo_period"),
		LLDPEmitPeriod:     v.GetDuration("lldp_emit_period"),
		DelayCollectPeriod: v.GetDuration("delay_collect_period"),
		StatsCollectPeriod: v.GetDuration("stats_collect_period"),
		PortStatHistory:    v.GetInt("port_stat_history"),
		DefaultPolicy:      Policy(v.GetString("default_policy")),
		ShowTopo:           v.GetBool("show_topo"),
		ShowDelay:          v.GetBool("show_delay"),
		ShowBandwidth:      v.GetBool("show_bandwidth"),
		ShowLoss:           v.GetBool("show_loss"),
		ListenAddr:         v.GetString("listen_addr"),
		LogLevel:           v.GetString("log_level"),
		MetricsAddr:        v.GetString("metrics_addr"),
		PathsFile:          v.GetString("paths_file"),
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations that would otherwise fail silently
// deep inside a collector.
func (c *Config) Validate() error {
	switch c.DefaultPolicy {
	case PolicyHop, PolicyDelay, PolicyBandwidth, PolicyLoss:
	default:
		return errors.Errorf("config: unknown default_policy %q", c.DefaultPolicy)
	}

	if c.PortStatHistory <= 0 {
		return errors.New("config: port_stat_history must be positive")
	}

	if c.StableSeconds <= 0 {
		return errors.New("config: stable_seconds must be positive")
	}

	return nil
}
