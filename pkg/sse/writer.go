package sse

import (
	"bytes"
	"io"
	"strings"
)

// flusher is implemented by buffered writers (e.g. *bufio.Writer) that must
// be flushed for an event to reach the client.
type flusher interface {
	Flush() error
}

// Writer writes SSE events to a downstream io.Writer. Each event is framed
// in full and handed to the destination in a single Write call so that a
// blocking destination (such as an io.Pipe backing a chunked HTTP response)
// applies backpressure per event rather than per field.
type Writer struct {
	dest io.Writer
}

// NewWriter returns a Writer targeting dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// WriteData writes a single "data:" event carrying payload.
func (w *Writer) WriteData(payload []byte) error {
	return w.WriteEvent(&Event{Data: string(payload)})
}

// WriteDone writes the terminal "data: [DONE]" event.
func (w *Writer) WriteDone() error {
	return w.WriteEvent(&Event{Data: Done})
}

// WriteComment writes a comment line. Clients ignore it, which makes it
// usable as a keep-alive that still fails fast once the client is gone.
func (w *Writer) WriteComment(text string) error {
	return w.write([]byte(": " + strings.ReplaceAll(text, "\n", " ") + "\n\n"))
}

// WriteEvent frames ev and writes it to the destination, flushing if the
// destination supports it.
func (w *Writer) WriteEvent(ev *Event) error {
	var buf bytes.Buffer

	if ev.Type != "" {
		buf.WriteString("event: ")
		buf.WriteString(ev.Type)
		buf.WriteByte('\n')
	}
	if ev.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(ev.ID)
		buf.WriteByte('\n')
	}

	// Multi-line payloads are split across data fields; clients rejoin
	// them with "\n" per the SSE spec.
	for line := range strings.SplitSeq(ev.Data, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	return w.write(buf.Bytes())
}

func (w *Writer) write(p []byte) error {
	if _, err := w.dest.Write(p); err != nil {
		return err
	}

	if f, ok := w.dest.(flusher); ok {
		return f.Flush()
	}

	return nil
}
