package llm

import (
	"bytes"
	"encoding/json"
)

// ChunkObject is the object type of a streamed chat completion chunk.
const ChunkObject = "chat.completion.chunk"

// StreamChunk represents a single chunk in an OpenAI-compatible streaming
// response. Upstream sends one per "data:" line.
type StreamChunk struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is one completion choice inside a StreamChunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta carries the newly generated text of a choice.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// NewDeltaChunk builds a single-choice chunk carrying text.
func NewDeltaChunk(model, text string) StreamChunk {
	return StreamChunk{
		Object: ChunkObject,
		Model:  model,
		Choices: []ChunkChoice{
			{Delta: Delta{Content: text}},
		},
	}
}

// Marshal encodes the chunk as a data line payload. Markup in the delta is
// written as-is rather than HTML-escaped.
func (c StreamChunk) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
