// Package emitter serializes classified stream events into the downstream
// SSE protocol. It is the only part of the pipeline that writes to the
// client.
//
// Every event is a single "data:" line carrying a JSON object with "type" and
// "content" fields. A stream ends with "data: [DONE]", including streams that
// failed, which carry one {"error": "..."} event first.
package emitter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/papercomputeco/thinkgate/pkg/splitter"
	"github.com/papercomputeco/thinkgate/pkg/sse"
)

// Type is the value of the "type" field of a downstream event.
type Type string

const (
	TypePromptSummary    Type = "prompt_summary"
	TypeReasoningContent Type = "reasoning_content"
	TypeReasoningSummary Type = "reasoning_summary"
	TypeContent          Type = "content"
)

// ErrClosed is returned when writing to an Emitter after the terminal line.
var ErrClosed = errors.New("emitter: stream already terminated")

// Message is a typed downstream event.
type Message struct {
	Type    Type   `json:"type"`
	Content string `json:"content"`
}

// ErrorMessage is the downstream event reporting a stream failure.
type ErrorMessage struct {
	Error string `json:"error"`
}

// Emitter writes one stream's events in order. It is not safe for concurrent
// use.
type Emitter struct {
	writer *sse.Writer
	done   bool
}

// New returns an Emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{writer: sse.NewWriter(w)}
}

// PromptAcknowledged emits the prompt_summary event that opens every stream.
func (e *Emitter) PromptAcknowledged(preview string) error {
	return e.write(Message{Type: TypePromptSummary, Content: preview})
}

// Emit writes the downstream event for a splitter event.
func (e *Emitter) Emit(ev splitter.Event) error {
	t, err := typeOf(ev.Kind)
	if err != nil {
		return err
	}
	return e.write(Message{Type: t, Content: ev.Text})
}

// KeepAlive writes an SSE comment that clients skip. It carries no event and
// fails once the client is gone.
func (e *Emitter) KeepAlive() error {
	if e.done {
		return ErrClosed
	}
	return e.writer.WriteComment("keep-alive")
}

// Error emits an error event. The stream must still be ended with Done.
func (e *Emitter) Error(message string) error {
	return e.write(ErrorMessage{Error: message})
}

// Done writes the terminal line. Calling Done more than once is a no-op.
func (e *Emitter) Done() error {
	if e.done {
		return nil
	}
	e.done = true
	return e.writer.WriteDone()
}

func (e *Emitter) write(v any) error {
	if e.done {
		return ErrClosed
	}

	payload, err := encode(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return e.writer.WriteData(payload)
}

func typeOf(kind splitter.Kind) (Type, error) {
	switch kind {
	case splitter.ReasoningChunk:
		return TypeReasoningContent, nil
	case splitter.ReasoningClosed:
		return TypeReasoningSummary, nil
	case splitter.ContentChunk:
		return TypeContent, nil
	default:
		return "", fmt.Errorf("unknown event kind %d", kind)
	}
}

// encode marshals v without HTML escaping so reasoning text keeps its angle
// brackets readable on the wire.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
