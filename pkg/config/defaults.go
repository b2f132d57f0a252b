package config

import "slices"

const (
	defaultListen             = ":8000"
	defaultUpstream           = "http://127.0.0.1:8001/chat/completions"
	defaultUpstreamTimeout    = "60s"
	defaultKeepAliveInterval  = "15s"
	defaultPromptPreviewChars = 100

	defaultOpenMarker  = "<think>"
	defaultCloseMarker = "</think>"

	defaultMetricsPath = "/metrics"

	defaultEventStreamProvider = EventStreamNop
	defaultEventStreamTopic    = "thinkgate.streams"
	defaultEventQueueSize      = 256
	defaultEventWorkers        = 2

	defaultClientGatewayTarget = "http://localhost:8000"
)

// Supported eventstream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

// EventStreamProviders returns the recognized eventstream provider names.
func EventStreamProviders() []string {
	return []string{EventStreamNop, EventStreamKafka}
}

// IsValidEventStreamProvider reports whether name is a recognized provider.
func IsValidEventStreamProvider(name string) bool {
	return slices.Contains(EventStreamProviders(), name)
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Gateway: GatewayConfig{
			Listen:             defaultListen,
			Upstream:           defaultUpstream,
			UpstreamTimeout:    defaultUpstreamTimeout,
			KeepAliveInterval:  defaultKeepAliveInterval,
			PromptPreviewChars: defaultPromptPreviewChars,
		},
		Markers: MarkersConfig{
			Open:  defaultOpenMarker,
			Close: defaultCloseMarker,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		EventStream: EventStreamConfig{
			Provider:  defaultEventStreamProvider,
			Topic:     defaultEventStreamTopic,
			QueueSize: defaultEventQueueSize,
			Workers:   defaultEventWorkers,
		},
		Client: ClientConfig{
			GatewayTarget: defaultClientGatewayTarget,
		},
	}
}
