// Package chunk decodes raw upstream chat completion stream lines into text
// fragments.
//
// The upstream speaks the OpenAI chunked protocol: every data line carries a
// "chat.completion.chunk" JSON object whose choices[0].delta.content holds the
// newly generated text, and the stream is terminated by "data: [DONE]".
package chunk

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/thinkgate/pkg/sse"
)

const (
	// DeltaPath is the gjson path of the incremental text inside a chunk.
	DeltaPath = "choices.0.delta.content"

	// DeltaObjectPath is the gjson path of the delta holding DeltaPath.
	DeltaObjectPath = "choices.0.delta"
)

// Kind classifies a decoded line.
type Kind int

const (
	// KindIgnore marks a line that carries no fragment: comments, blank
	// lines, non-data fields, unparseable payloads, or payloads without a
	// text delta.
	KindIgnore Kind = iota

	// KindFragment marks a line carrying newly generated text.
	KindFragment

	// KindEnd marks the terminal line of the stream.
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindEnd:
		return "end"
	default:
		return "ignore"
	}
}

// Reasons reported for ignored lines.
const (
	ReasonNotData      = "not_data"
	ReasonInvalidJSON  = "invalid_json"
	ReasonMissingDelta = "missing_delta"
)

// Result is the outcome of decoding one line.
type Result struct {
	Kind Kind

	// Text is the fragment text when Kind is KindFragment. It may be empty.
	Text string

	// Reason explains why a line was ignored. Blank lines and comments are
	// ignored with an empty Reason since they are a normal part of framing.
	Reason string
}

// Decoder turns upstream protocol lines into Results. A Decoder holds no
// per-stream state and is safe for concurrent use.
type Decoder struct {
	deltaPath       string
	deltaObjectPath string
}

// NewDecoder creates a Decoder for OpenAI-style chat completion chunks.
func NewDecoder() *Decoder {
	return &Decoder{deltaPath: DeltaPath, deltaObjectPath: DeltaObjectPath}
}

// Decode classifies a single raw line. Decode never fails: anything it cannot
// make sense of is reported as KindIgnore.
func (d *Decoder) Decode(line string) Result {
	field, value, ok := sse.ParseLine(line)
	if !ok {
		return Result{Kind: KindIgnore}
	}
	if field != "data" {
		return Result{Kind: KindIgnore, Reason: ReasonNotData}
	}

	payload := strings.TrimSpace(value)
	if payload == sse.Done {
		return Result{Kind: KindEnd}
	}

	if !gjson.Valid(payload) {
		return Result{Kind: KindIgnore, Reason: ReasonInvalidJSON}
	}

	delta := gjson.Get(payload, d.deltaPath)
	switch {
	case delta.Type == gjson.String:
		return Result{Kind: KindFragment, Text: delta.String()}

	// A role-only opening chunk or an empty finishing delta carries no text
	// and is a normal part of every stream.
	case delta.Type == gjson.Null && gjson.Get(payload, d.deltaObjectPath).IsObject():
		return Result{Kind: KindIgnore}
	}

	return Result{Kind: KindIgnore, Reason: ReasonMissingDelta}
}
