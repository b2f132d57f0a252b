package sse_test

import (
	"errors"
	"io"
	"strings"

	"github.com/papercomputeco/thinkgate/pkg/sse"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// readAll drains r and returns every line it produced.
func readAll(r *sse.Reader) []string {
	var lines []string
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			return lines
		}
		Expect(err).NotTo(HaveOccurred())
		lines = append(lines, line)
	}
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("returns each line without its terminator", func() {
			r := sse.NewReader(strings.NewReader("data: first\n\ndata: second\n\n"))
			Expect(readAll(r)).To(Equal([]string{"data: first", "", "data: second", ""}))
		})

		It("strips carriage returns from CRLF framing", func() {
			r := sse.NewReader(strings.NewReader("data: hello\r\n\r\n"))
			Expect(readAll(r)).To(Equal([]string{"data: hello", ""}))
		})

		It("yields a final line that has no trailing newline", func() {
			r := sse.NewReader(strings.NewReader("data: [DONE]"))
			Expect(readAll(r)).To(Equal([]string{"data: [DONE]"}))
		})

		It("returns io.EOF on empty input", func() {
			r := sse.NewReader(strings.NewReader(""))
			_, err := r.Next()
			Expect(err).To(MatchError(io.EOF))
		})

		It("surfaces read errors from the source", func() {
			r := sse.NewReader(io.MultiReader(strings.NewReader("data: a\n"), iotest{}))
			line, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(line).To(Equal("data: a"))

			_, err = r.Next()
			Expect(err).To(MatchError("connection reset"))
		})
	})

	Describe("ParseLine", func() {
		DescribeTable("field parsing",
			func(line, wantField, wantValue string, wantOK bool) {
				field, value, ok := sse.ParseLine(line)
				Expect(ok).To(Equal(wantOK))
				Expect(field).To(Equal(wantField))
				Expect(value).To(Equal(wantValue))
			},
			Entry("data with space", "data: {\"a\":1}", "data", "{\"a\":1}", true),
			Entry("data without space", "data:{\"a\":1}", "data", "{\"a\":1}", true),
			Entry("only the first space is stripped", "data:  x", "data", " x", true),
			Entry("empty data", "data:", "data", "", true),
			Entry("event field", "event: content_block_delta", "event", "content_block_delta", true),
			Entry("colon inside value", "data: a:b", "data", "a:b", true),
			Entry("field with no colon", "data", "data", "", true),
			Entry("blank line", "", "", "", false),
			Entry("comment line", ": keep-alive", "", "", false),
		)
	})
})

// iotest is a reader that always fails.
type iotest struct{}

func (iotest) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
