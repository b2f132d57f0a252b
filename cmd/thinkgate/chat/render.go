package chatcmder

import (
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/thinkgate/pkg/cliui"
	"github.com/papercomputeco/thinkgate/pkg/sse"
)

// errStreamFailed is returned when the gateway reports a stream error.
var errStreamFailed = errors.New("gateway reported a stream error")

type section int

const (
	sectionNone section = iota
	sectionPrompt
	sectionReasoning
	sectionSummary
	sectionAnswer
)

// renderer prints gateway events as labelled sections.
type renderer struct {
	out     io.Writer
	current section
	answer  []byte
	failed  bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

// render consumes a gateway event stream until its terminal line and returns
// the final answer text.
func (r *renderer) render(body io.Reader) (string, error) {
	reader := sse.NewReader(body)

	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return string(r.answer), errors.New("stream ended without a terminal line")
		}
		if err != nil {
			return string(r.answer), fmt.Errorf("reading stream: %w", err)
		}

		field, value, ok := sse.ParseLine(line)
		if !ok || field != "data" {
			continue
		}
		if value == sse.Done {
			fmt.Fprintln(r.out)
			if r.failed {
				return string(r.answer), errStreamFailed
			}
			return string(r.answer), nil
		}

		r.handle(value)
	}
}

func (r *renderer) handle(payload string) {
	if !gjson.Valid(payload) {
		return
	}

	if msg := gjson.Get(payload, "error"); msg.Exists() {
		r.failed = true
		r.enter(sectionNone, "")
		fmt.Fprintf(r.out, "%s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(msg.String()))
		return
	}

	content := gjson.Get(payload, "content").String()
	switch gjson.Get(payload, "type").String() {
	case "prompt_summary":
		r.enter(sectionPrompt, "PROMPT")
		fmt.Fprintln(r.out, content)
	case "reasoning_content":
		r.enter(sectionReasoning, "REASONING")
		fmt.Fprint(r.out, cliui.DimStyle.Render(content))
	case "reasoning_summary":
		r.enter(sectionSummary, "REASONING SUMMARY")
		fmt.Fprintln(r.out, content)
	case "content":
		r.enter(sectionAnswer, "FINAL RESPONSE")
		fmt.Fprint(r.out, content)
		r.answer = append(r.answer, content...)
	}
}

// enter starts a new section unless it is already open.
func (r *renderer) enter(s section, label string) {
	if r.current == s {
		return
	}
	if r.current == sectionReasoning || r.current == sectionAnswer {
		fmt.Fprintln(r.out)
	}
	r.current = s
	if label != "" {
		fmt.Fprintf(r.out, "\n%s\n", cliui.Section(label))
	}
}
