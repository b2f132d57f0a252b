package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "gateway.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagListen              = "listen"
	FlagUpstream            = "upstream"
	FlagUpstreamTimeout     = "upstream-timeout"
	FlagKeepAliveInterval   = "keepalive-interval"
	FlagPromptPreviewChars  = "prompt-preview-chars"
	FlagOpenMarker          = "open-marker"
	FlagCloseMarker         = "close-marker"
	FlagMetrics             = "metrics"
	FlagMetricsPath         = "metrics-path"
	FlagEventStreamProvider = "eventstream-provider"
	FlagEventStreamBrokers  = "eventstream-brokers"
	FlagEventStreamTopic    = "eventstream-topic"
	FlagGatewayTarget       = "gateway-target"
)

// GatewayFlags is the registry of flags accepted by commands that run or
// reach the gateway.
var GatewayFlags = FlagSet{
	FlagListen:              {Name: "listen", Shorthand: "l", ViperKey: "gateway.listen", Description: "Address for the gateway to listen on"},
	FlagUpstream:            {Name: "upstream", Shorthand: "u", ViperKey: "gateway.upstream", Description: "Upstream chat completions URL"},
	FlagUpstreamTimeout:     {Name: "upstream-timeout", ViperKey: "gateway.upstream_timeout", Description: "Time to wait for upstream response headers (e.g. 60s)"},
	FlagKeepAliveInterval:   {Name: "keepalive-interval", ViperKey: "gateway.keepalive_interval", Description: "Idle time before a keep-alive comment is sent downstream (0s disables)"},
	FlagPromptPreviewChars:  {Name: "prompt-preview-chars", ViperKey: "gateway.prompt_preview_chars", Description: "Maximum characters in the prompt acknowledgment"},
	FlagOpenMarker:          {Name: "open-marker", ViperKey: "markers.open", Description: "Marker that opens a reasoning region"},
	FlagCloseMarker:         {Name: "close-marker", ViperKey: "markers.close", Description: "Marker that closes a reasoning region"},
	FlagMetrics:             {Name: "metrics", ViperKey: "metrics.enabled", Description: "Serve Prometheus metrics"},
	FlagMetricsPath:         {Name: "metrics-path", ViperKey: "metrics.path", Description: "Path of the Prometheus metrics endpoint"},
	FlagEventStreamProvider: {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Stream event publisher (nop, kafka)"},
	FlagEventStreamBrokers:  {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma-separated Kafka brokers"},
	FlagEventStreamTopic:    {Name: "eventstream-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for stream events"},
	FlagGatewayTarget:       {Name: "gateway-target", Shorthand: "g", ViperKey: "client.gateway_target", Description: "Thinkgate gateway URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
