package sse_test

import (
	"bufio"
	"bytes"
	"errors"

	"github.com/papercomputeco/thinkgate/pkg/sse"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingWriter records how many Write calls it received.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client gone") }

var _ = Describe("Writer", func() {
	It("frames a data event with a blank-line delimiter", func() {
		var buf bytes.Buffer
		Expect(sse.NewWriter(&buf).WriteData([]byte(`{"type":"content","content":"hi"}`))).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"type\":\"content\",\"content\":\"hi\"}\n\n"))
	})

	It("writes the terminal marker", func() {
		var buf bytes.Buffer
		Expect(sse.NewWriter(&buf).WriteDone()).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
	})

	It("hands each event to the destination in a single write", func() {
		cw := &countingWriter{}
		w := sse.NewWriter(cw)
		Expect(w.WriteEvent(&sse.Event{Type: "message", ID: "1", Data: "a\nb"})).To(Succeed())
		Expect(cw.writes).To(Equal(1))
		Expect(cw.String()).To(Equal("event: message\nid: 1\ndata: a\ndata: b\n\n"))
	})

	It("flushes buffered destinations", func() {
		var buf bytes.Buffer
		bw := bufio.NewWriter(&buf)
		Expect(sse.NewWriter(bw).WriteDone()).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
	})

	It("writes comments on a single line", func() {
		cw := &countingWriter{}
		Expect(sse.NewWriter(cw).WriteComment("keep-alive")).To(Succeed())
		Expect(cw.writes).To(Equal(1))
		Expect(cw.String()).To(Equal(": keep-alive\n\n"))

		field, _, ok := sse.ParseLine(": keep-alive")
		Expect(ok).To(BeFalse())
		Expect(field).To(BeEmpty())
	})

	It("returns destination errors", func() {
		Expect(sse.NewWriter(failingWriter{}).WriteComment("keep-alive")).To(MatchError("client gone"))
		Expect(sse.NewWriter(failingWriter{}).WriteDone()).To(MatchError("client gone"))
	})
})
