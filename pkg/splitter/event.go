package splitter

// Kind is the type of a classified micro-event.
type Kind int

const (
	// ReasoningChunk carries text from inside a reasoning region. Opening a
	// region emits one empty ReasoningChunk as the region-start signal.
	ReasoningChunk Kind = iota + 1

	// ReasoningClosed carries the digest of a reasoning region that just
	// closed.
	ReasoningClosed

	// ContentChunk carries final answer text, already artifact-filtered.
	ContentChunk
)

func (k Kind) String() string {
	switch k {
	case ReasoningChunk:
		return "reasoning_chunk"
	case ReasoningClosed:
		return "reasoning_closed"
	case ContentChunk:
		return "content_chunk"
	default:
		return "unknown"
	}
}

// Event is one classified micro-event produced by the Splitter.
type Event struct {
	Kind Kind
	Text string
}
