package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/thinkgate/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by InitViper.
const EnvPrefix = "THINKGATE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the THINKGATE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (THINKGATE_GATEWAY_LISTEN, THINKGATE_MARKERS_OPEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Gateway
	v.SetDefault("gateway.listen", d.Gateway.Listen)
	v.SetDefault("gateway.upstream", d.Gateway.Upstream)
	v.SetDefault("gateway.upstream_timeout", d.Gateway.UpstreamTimeout)
	v.SetDefault("gateway.keepalive_interval", d.Gateway.KeepAliveInterval)
	v.SetDefault("gateway.prompt_preview_chars", d.Gateway.PromptPreviewChars)

	// Markers
	v.SetDefault("markers.open", d.Markers.Open)
	v.SetDefault("markers.close", d.Markers.Close)

	// Metrics
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
	v.SetDefault("eventstream.queue_size", d.EventStream.QueueSize)
	v.SetDefault("eventstream.workers", d.EventStream.Workers)

	// Client
	v.SetDefault("client.gateway_target", d.Client.GatewayTarget)
}

// FromViper materializes a Config from the resolved viper values.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Version: v.GetInt("version"),
		Gateway: GatewayConfig{
			Listen:             v.GetString("gateway.listen"),
			Upstream:           v.GetString("gateway.upstream"),
			UpstreamTimeout:    v.GetString("gateway.upstream_timeout"),
			KeepAliveInterval:  v.GetString("gateway.keepalive_interval"),
			PromptPreviewChars: v.GetUint("gateway.prompt_preview_chars"),
		},
		Markers: MarkersConfig{
			Open:  v.GetString("markers.open"),
			Close: v.GetString("markers.close"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
		EventStream: EventStreamConfig{
			Provider:  v.GetString("eventstream.provider"),
			Brokers:   brokersFromViper(v),
			Topic:     v.GetString("eventstream.topic"),
			QueueSize: v.GetUint("eventstream.queue_size"),
			Workers:   v.GetUint("eventstream.workers"),
		},
		Client: ClientConfig{
			GatewayTarget: v.GetString("client.gateway_target"),
		},
	}

	if !IsValidEventStreamProvider(cfg.EventStream.Provider) {
		return nil, fmt.Errorf("unknown eventstream provider %q (available: %s)",
			cfg.EventStream.Provider, strings.Join(EventStreamProviders(), ", "))
	}

	applyDefaults(cfg)
	return cfg, nil
}

// brokersFromViper accepts either a TOML array or a comma-separated string
// (the form environment variables and flags take).
func brokersFromViper(v *viper.Viper) []string {
	var brokers []string
	for _, item := range v.GetStringSlice("eventstream.brokers") {
		brokers = append(brokers, SplitList(item)...)
	}
	return brokers
}
