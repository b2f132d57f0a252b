package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStreamCompleted is emitted after a gateway stream terminates.
	EventTypeStreamCompleted = "thinkgate.stream.completed"
)

// StreamCompletedEvent is a transport-neutral event payload describing one
// finished gateway stream.
type StreamCompletedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	RequestMeta   StreamRequest `json:"request_meta"`
	Stream        StreamSummary `json:"stream"`
}

// EventSource identifies the gateway instance and upstream that served the
// stream.
type EventSource struct {
	Gateway  string `json:"gateway,omitempty"`
	Upstream string `json:"upstream"`
}

// StreamRequest captures request lifecycle metadata for the event.
type StreamRequest struct {
	RequestID   string    `json:"request_id"`
	Path        string    `json:"path,omitempty"`
	Model       string    `json:"model,omitempty"`
	Prompt      string    `json:"prompt"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// StreamSummary captures what the splitter observed.
type StreamSummary struct {
	Outcome          string   `json:"outcome"`
	Error            string   `json:"error,omitempty"`
	Fragments        int      `json:"fragments"`
	MalformedLines   int      `json:"malformed_lines"`
	ReasoningRegions int      `json:"reasoning_regions"`
	Digests          []string `json:"digests,omitempty"`
	ContentChars     int      `json:"content_chars"`
}

// NewStreamCompletedEvent stamps a new event with a fresh ID and the current
// time.
func NewStreamCompletedEvent(source EventSource, req StreamRequest, summary StreamSummary) *StreamCompletedEvent {
	return &StreamCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeStreamCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   req,
		Stream:        summary,
	}
}
