package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/thinkgate/pkg/logger"
	"github.com/papercomputeco/thinkgate/pkg/metrics"
	"github.com/papercomputeco/thinkgate/pkg/splitter"
)

// failingWriter accepts the first n writes and fails every write after.
type failingWriter struct {
	n      int
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.n {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}

// endlessBody yields delta lines forever and records whether it was closed.
type endlessBody struct {
	closed atomic.Bool
	buf    bytes.Buffer
}

func (b *endlessBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, errors.New("read on closed body")
	}
	if b.buf.Len() == 0 {
		b.buf.WriteString(deltaLine("more "))
	}
	return b.buf.Read(p)
}

func (b *endlessBody) Close() error {
	b.closed.Store(true)
	return nil
}

// stalledBody blocks every read until it is closed, like an upstream that
// went silent after sending its response headers.
type stalledBody struct {
	closed chan struct{}
	once   sync.Once
}

func newStalledBody() *stalledBody {
	return &stalledBody{closed: make(chan struct{})}
}

func (b *stalledBody) Read([]byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *stalledBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *stalledBody) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

func staticUpstream(body string) OpenFunc {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

var _ = Describe("Pipeline", func() {
	var (
		out       *bytes.Buffer
		collector *metrics.Collector
	)

	newPipeline := func(w io.Writer) *Pipeline {
		p, err := NewPipeline(PipelineConfig{Collector: collector, Logger: logger.Nop()}, w)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		out = &bytes.Buffer{}
		collector = metrics.NewCollector("test", logger.Nop())
	})

	It("relays the end-to-end scenario in causal order", func() {
		result := newPipeline(out).Run(context.Background(), "Say something",
			staticUpstream(upstreamBody("<think>", "Step one. Step two.", "</think>", "Final answer.")))

		Expect(payloads(out.String())).To(Equal([]string{
			event("prompt_summary", "Say something"),
			event("reasoning_content", ""),
			event("reasoning_content", "Step one. Step two."),
			event("reasoning_summary", bookendDigest),
			event("content", "Final answer."),
			"[DONE]",
		}))

		Expect(result.Outcome).To(Equal(OutcomeCompleted))
		Expect(result.Err).NotTo(HaveOccurred())
		Expect(result.Fragments).To(Equal(4))
		Expect(result.ReasoningRegions).To(Equal(1))
		Expect(result.Digests).To(Equal([]string{bookendDigest}))
		Expect(result.ContentChars).To(Equal(len("Final answer.")))
	})

	It("classifies markers split across fragments", func() {
		split := &bytes.Buffer{}
		newPipeline(split).Run(context.Background(), "p",
			staticUpstream(upstreamBody("<th", "ink>reasoning text</th", "ink>answer")))

		whole := &bytes.Buffer{}
		newPipeline(whole).Run(context.Background(), "p",
			staticUpstream(upstreamBody("<think>reasoning text</think>answer")))

		collect := func(body string) (reasoning, content string) {
			for _, p := range payloads(body) {
				switch {
				case strings.Contains(p, `"type":"reasoning_content"`):
					reasoning += strings.TrimSuffix(strings.TrimPrefix(p, `{"type":"reasoning_content","content":"`), `"}`)
				case strings.Contains(p, `"type":"content"`):
					content += strings.TrimSuffix(strings.TrimPrefix(p, `{"type":"content","content":"`), `"}`)
				}
			}
			return reasoning, content
		}

		splitReasoning, splitContent := collect(split.String())
		wholeReasoning, wholeContent := collect(whole.String())
		Expect(splitReasoning).To(Equal("reasoning text"))
		Expect(splitContent).To(Equal("answer"))
		Expect(splitReasoning).To(Equal(wholeReasoning))
		Expect(splitContent).To(Equal(wholeContent))
	})

	It("skips malformed lines without aborting the stream", func() {
		body := deltaLine("Hello") +
			": keep-alive\n\n" +
			"data: {not json\n\n" +
			`data: {"choices":[{"index":0,"delta":{"content":42}}]}` + "\n\n" +
			"event: ping\n\n" +
			deltaLine(" world") +
			"data: [DONE]\n\n"

		result := newPipeline(out).Run(context.Background(), "p", staticUpstream(body))

		Expect(payloads(out.String())).To(Equal([]string{
			event("prompt_summary", "p"),
			event("content", "Hello"),
			event("content", " world"),
			"[DONE]",
		}))
		Expect(result.Outcome).To(Equal(OutcomeCompleted))
		Expect(result.Fragments).To(Equal(2))
		Expect(result.MalformedLines).To(Equal(3))
	})

	It("does not count role-only and finishing deltas as malformed", func() {
		body := `data: {"choices":[{"index":0,"delta":{"role":"assistant"}}]}` + "\n\n" +
			deltaLine("Hi") +
			`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}` + "\n\n" +
			"data: [DONE]\n\n"

		result := newPipeline(out).Run(context.Background(), "p", staticUpstream(body))

		Expect(result.Outcome).To(Equal(OutcomeCompleted))
		Expect(result.Fragments).To(Equal(1))
		Expect(result.MalformedLines).To(BeZero())
	})

	It("stops reading at the end signal", func() {
		body := upstreamBody("before") + deltaLine("after")

		newPipeline(out).Run(context.Background(), "p", staticUpstream(body))

		Expect(out.String()).NotTo(ContainSubstring("after"))
	})

	It("ends the stream when the upstream closes without an end signal", func() {
		result := newPipeline(out).Run(context.Background(), "p", staticUpstream(deltaLine("partial")))

		Expect(payloads(out.String())).To(Equal([]string{
			event("prompt_summary", "p"),
			event("content", "partial"),
			"[DONE]",
		}))
		Expect(result.Outcome).To(Equal(OutcomeCompleted))
	})

	It("flushes a held false match as content at stream end", func() {
		newPipeline(out).Run(context.Background(), "p", staticUpstream(upstreamBody("a <thi")))

		Expect(payloads(out.String())).To(Equal([]string{
			event("prompt_summary", "p"),
			event("content", "a "),
			event("content", "<thi"),
			"[DONE]",
		}))
	})

	It("discards an unclosed reasoning region", func() {
		result := newPipeline(out).Run(context.Background(), "p",
			staticUpstream(upstreamBody("Answer. <think>never fini", "shed </thi")))

		Expect(payloads(out.String())).To(Equal([]string{
			event("prompt_summary", "p"),
			event("content", "Answer. "),
			event("reasoning_content", ""),
			event("reasoning_content", "never fini"),
			event("reasoning_content", "shed "),
			"[DONE]",
		}))
		Expect(result.Outcome).To(Equal(OutcomeUnclosedReasoning))
		Expect(result.Err).To(MatchError(splitter.ErrUnclosedReasoning))
		Expect(result.ReasoningRegions).To(BeZero())
	})

	It("reports a transport fault as an error event followed by the terminal line", func() {
		result := newPipeline(out).Run(context.Background(), "p", func(context.Context) (io.ReadCloser, error) {
			return nil, errors.New("connection refused")
		})

		Expect(payloads(out.String())).To(Equal([]string{
			event("prompt_summary", "p"),
			`{"error":"connection refused"}`,
			"[DONE]",
		}))
		Expect(result.Outcome).To(Equal(OutcomeUpstreamError))
		Expect(result.Err).To(MatchError("connection refused"))
	})

	It("acknowledges the prompt before opening the upstream", func() {
		var seen string
		newPipeline(out).Run(context.Background(), "hello there", func(context.Context) (io.ReadCloser, error) {
			seen = out.String()
			return io.NopCloser(strings.NewReader(upstreamBody())), nil
		})

		Expect(seen).To(Equal("data: " + event("prompt_summary", "hello there") + "\n\n"))
	})

	It("stops consuming and releases the upstream when the client is gone", func() {
		body := &endlessBody{}
		var upstreamCtx context.Context

		result := newPipeline(&failingWriter{n: 3}).Run(context.Background(), "p", func(ctx context.Context) (io.ReadCloser, error) {
			upstreamCtx = ctx
			return body, nil
		})

		Expect(result.Outcome).To(Equal(OutcomeClientGone))
		Expect(result.Err).To(MatchError(io.ErrClosedPipe))
		Expect(body.closed.Load()).To(BeTrue())
		Expect(upstreamCtx.Err()).To(MatchError(context.Canceled))
	})

	Context("with keep-alives", func() {
		newKeepAlivePipeline := func(w io.Writer) *Pipeline {
			p, err := NewPipeline(PipelineConfig{KeepAlive: 10 * time.Millisecond, Logger: logger.Nop()}, w)
			Expect(err).NotTo(HaveOccurred())
			return p
		}

		It("releases a stalled upstream once the client is gone", func() {
			body := newStalledBody()
			results := make(chan StreamResult, 1)

			go func() {
				defer GinkgoRecover()
				results <- newKeepAlivePipeline(&failingWriter{n: 1}).Run(context.Background(), "p",
					func(context.Context) (io.ReadCloser, error) { return body, nil })
			}()

			var result StreamResult
			Eventually(results, 2*time.Second).Should(Receive(&result))
			Expect(result.Outcome).To(Equal(OutcomeClientGone))
			Expect(result.Err).To(MatchError(ContainSubstring("writing keep-alive")))
			Expect(body.isClosed()).To(BeTrue())
		})

		It("writes comments while the upstream is silent and then relays it", func() {
			pr, pw := io.Pipe()
			go func() {
				defer GinkgoRecover()
				time.Sleep(50 * time.Millisecond)
				_, _ = io.WriteString(pw, upstreamBody("late answer"))
				_ = pw.Close()
			}()

			result := newKeepAlivePipeline(out).Run(context.Background(), "p",
				func(context.Context) (io.ReadCloser, error) { return pr, nil })

			Expect(result.Outcome).To(Equal(OutcomeCompleted))
			Expect(out.String()).To(ContainSubstring(": keep-alive\n\n"))
			Expect(payloads(out.String())).To(Equal([]string{
				event("prompt_summary", "p"),
				event("content", "late answer"),
				"[DONE]",
			}))
		})

		It("writes no comments when disabled", func() {
			newPipeline(out).Run(context.Background(), "p", staticUpstream(upstreamBody("hi")))
			Expect(out.String()).NotTo(ContainSubstring(": keep-alive"))
		})
	})

	It("reports a client gone before the prompt acknowledgment", func() {
		opened := false
		result := newPipeline(&failingWriter{}).Run(context.Background(), "p", func(context.Context) (io.ReadCloser, error) {
			opened = true
			return nil, nil
		})

		Expect(result.Outcome).To(Equal(OutcomeClientGone))
		Expect(opened).To(BeFalse())
	})

	It("counts malformed lines in the collector", func() {
		newPipeline(out).Run(context.Background(), "p", staticUpstream("data: nope\n\ndata: [DONE]\n\n"))

		count, err := collectorCount(collector, "test_malformed_lines_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("rejects identical markers", func() {
		_, err := NewPipeline(PipelineConfig{OpenMarker: "##", CloseMarker: "##"}, out)
		Expect(err).To(HaveOccurred())
	})
})
