package gateway

import "time"

// Config is the gateway server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// UpstreamURL is the full chat completions URL of the upstream model
	// server (e.g., "http://127.0.0.1:8001/chat/completions")
	UpstreamURL string

	// UpstreamTimeout bounds how long the gateway waits for the upstream to
	// answer with response headers. Zero means no limit.
	UpstreamTimeout time.Duration

	// KeepAliveInterval is how long an upstream may stay silent before the
	// gateway writes an SSE comment downstream to probe the client. Zero
	// disables keep-alives.
	KeepAliveInterval time.Duration

	// PromptPreviewChars bounds the prompt_summary preview, in runes.
	PromptPreviewChars int

	// OpenMarker and CloseMarker delimit reasoning regions in generated text.
	OpenMarker  string
	CloseMarker string

	// MetricsPath is where Prometheus metrics are served. Empty disables the
	// route.
	MetricsPath string

	// EventQueueSize and EventWorkers size the completion event publish
	// pool. Zero selects the pool defaults.
	EventQueueSize uint
	EventWorkers   uint

	// Name identifies this gateway instance in published events.
	Name string
}
