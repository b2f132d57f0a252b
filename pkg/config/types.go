package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent thinkgate configuration stored as
// config.toml in the .thinkgate/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Gateway     GatewayConfig     `toml:"gateway"`
	Markers     MarkersConfig     `toml:"markers"`
	Metrics     MetricsConfig     `toml:"metrics"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Client      ClientConfig      `toml:"client"`
}

// GatewayConfig holds gateway server settings.
type GatewayConfig struct {
	Listen             string `toml:"listen,omitempty"`
	Upstream           string `toml:"upstream,omitempty"`
	UpstreamTimeout    string `toml:"upstream_timeout,omitempty"`
	KeepAliveInterval  string `toml:"keepalive_interval,omitempty"`
	PromptPreviewChars uint   `toml:"prompt_preview_chars,omitempty"`
}

// MarkersConfig holds the in-band reasoning markers.
type MarkersConfig struct {
	Open  string `toml:"open,omitempty"`
	Close string `toml:"close,omitempty"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path,omitempty"`
}

// EventStreamConfig holds stream-completed event publication settings.
type EventStreamConfig struct {
	Provider  string   `toml:"provider,omitempty"`
	Brokers   []string `toml:"brokers,omitempty"`
	Topic     string   `toml:"topic,omitempty"`
	QueueSize uint     `toml:"queue_size,omitempty"`
	Workers   uint     `toml:"workers,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// gateway (e.g. thinkgate chat). Values are full URLs.
type ClientConfig struct {
	GatewayTarget string `toml:"gateway_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"gateway.listen": {
		get: func(c *Config) string { return c.Gateway.Listen },
		set: func(c *Config, v string) error { c.Gateway.Listen = v; return nil },
	},
	"gateway.upstream": {
		get: func(c *Config) string { return c.Gateway.Upstream },
		set: func(c *Config, v string) error { c.Gateway.Upstream = v; return nil },
	},
	"gateway.upstream_timeout": {
		get: func(c *Config) string { return c.Gateway.UpstreamTimeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for gateway.upstream_timeout: %w", err)
			}
			c.Gateway.UpstreamTimeout = v
			return nil
		},
	},
	"gateway.keepalive_interval": {
		get: func(c *Config) string { return c.Gateway.KeepAliveInterval },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for gateway.keepalive_interval: %w", err)
			}
			c.Gateway.KeepAliveInterval = v
			return nil
		},
	},
	"gateway.prompt_preview_chars": {
		get: func(c *Config) string { return formatUint(c.Gateway.PromptPreviewChars) },
		set: func(c *Config, v string) error {
			return parseUint("gateway.prompt_preview_chars", v, &c.Gateway.PromptPreviewChars)
		},
	},
	"markers.open": {
		get: func(c *Config) string { return c.Markers.Open },
		set: func(c *Config, v string) error { c.Markers.Open = v; return nil },
	},
	"markers.close": {
		get: func(c *Config) string { return c.Markers.Close },
		set: func(c *Config, v string) error { c.Markers.Close = v; return nil },
	},
	"metrics.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Metrics.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for metrics.enabled: %w", err)
			}
			c.Metrics.Enabled = b
			return nil
		},
	},
	"metrics.path": {
		get: func(c *Config) string { return c.Metrics.Path },
		set: func(c *Config, v string) error { c.Metrics.Path = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			if !IsValidEventStreamProvider(v) {
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s)",
					v, strings.Join(EventStreamProviders(), ", "))
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = SplitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"eventstream.queue_size": {
		get: func(c *Config) string { return formatUint(c.EventStream.QueueSize) },
		set: func(c *Config, v string) error {
			return parseUint("eventstream.queue_size", v, &c.EventStream.QueueSize)
		},
	},
	"eventstream.workers": {
		get: func(c *Config) string { return formatUint(c.EventStream.Workers) },
		set: func(c *Config, v string) error {
			return parseUint("eventstream.workers", v, &c.EventStream.Workers)
		},
	},
	"client.gateway_target": {
		get: func(c *Config) string { return c.Client.GatewayTarget },
		set: func(c *Config, v string) error { c.Client.GatewayTarget = v; return nil },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string, target *uint) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = uint(n)
	return nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
