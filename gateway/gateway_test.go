package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/thinkgate/pkg/eventstream"
	"github.com/papercomputeco/thinkgate/pkg/logger"
	"github.com/papercomputeco/thinkgate/pkg/metrics"
)

// capturingPublisher records completion events.
type capturingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.StreamCompletedEvent
}

func (p *capturingPublisher) PublishStream(_ context.Context, ev *eventstream.StreamCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) published() []*eventstream.StreamCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.StreamCompletedEvent(nil), p.events...)
}

// upstreamRequest is what the fake upstream received.
type upstreamRequest struct {
	path    string
	headers http.Header
	body    map[string]any
}

// sseUpstream serves the given stream body and records every request.
func sseUpstream(body string, seen chan<- upstreamRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)
		select {
		case seen <- upstreamRequest{path: r.URL.Path, headers: r.Header.Clone(), body: decoded}:
		default:
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range strings.SplitAfter(body, "\n\n") {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}))
}

var _ = Describe("Gateway", func() {
	var (
		g         *Gateway
		upstream  *httptest.Server
		publisher *capturingPublisher
		collector *metrics.Collector
		cfg       Config
	)

	newGateway := func() {
		var err error
		g, err = New(cfg, publisher, collector, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	}

	post := func(path, body string, headers map[string]string) (*http.Response, string) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := g.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, string(b)
	}

	BeforeEach(func() {
		publisher = &capturingPublisher{}
		collector = metrics.NewCollector("test", logger.Nop())
		cfg = Config{
			ListenAddr:         ":0",
			PromptPreviewChars: 100,
			MetricsPath:        "/metrics",
			Name:               "test-gateway",
		}
	})

	AfterEach(func() {
		if g != nil {
			g.Close()
			g = nil
		}
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	Describe("New", func() {
		It("requires an upstream URL", func() {
			_, err := New(Config{}, nil, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("upstream URL is required")))
		})

		It("rejects identical markers", func() {
			_, err := New(Config{UpstreamURL: "http://upstream", OpenMarker: "|", CloseMarker: "|"}, nil, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("invalid markers")))
		})
	})

	Context("when the upstream streams a reasoning response", func() {
		var seen chan upstreamRequest

		BeforeEach(func() {
			seen = make(chan upstreamRequest, 1)
			upstream = sseUpstream(upstreamBody("<think>", "Step one. Step two.", "</think>", "Final answer."), seen)
			cfg.UpstreamURL = upstream.URL + "/chat/completions"
			newGateway()
		})

		It("streams the split event sequence", func() {
			resp, body := post("/chat/completions", chatBody("Explain it"), nil)

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
			Expect(resp.Header.Get("X-Request-Id")).NotTo(BeEmpty())

			Expect(payloads(body)).To(Equal([]string{
				event("prompt_summary", "Explain it"),
				event("reasoning_content", ""),
				event("reasoning_content", "Step one. Step two."),
				event("reasoning_summary", bookendDigest),
				event("content", "Final answer."),
				"[DONE]",
			}))
		})

		It("serves the /v1 alias", func() {
			resp, body := post("/v1/chat/completions", chatBody("Explain it"), nil)

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(HaveSuffix("data: [DONE]\n\n"))
		})

		It("forwards the request with streaming forced on", func() {
			post("/chat/completions", `{"model":"m","stream":false,"messages":[{"role":"user","content":"hi"}]}`,
				map[string]string{"Authorization": "Bearer token123"})

			var got upstreamRequest
			Eventually(seen).Should(Receive(&got))
			Expect(got.path).To(Equal("/chat/completions"))
			Expect(got.body).To(HaveKeyWithValue("stream", true))
			Expect(got.body).To(HaveKeyWithValue("model", "m"))
			Expect(got.headers.Get("Authorization")).To(Equal("Bearer token123"))
		})

		It("previews the latest message", func() {
			_, body := post("/chat/completions", chatBody("first question", strings.Repeat("x", 150)), nil)

			Expect(payloads(body)[0]).To(Equal(event("prompt_summary", strings.Repeat("x", 100))))
		})

		It("uses a placeholder preview when there are no messages", func() {
			_, body := post("/chat/completions", `{"model":"m","messages":[]}`, nil)

			Expect(payloads(body)[0]).To(Equal(event("prompt_summary", "Unknown")))
		})

		It("publishes a completion event and records metrics", func() {
			post("/chat/completions", chatBody("Explain it"), nil)

			Eventually(publisher.published).Should(HaveLen(1))
			ev := publisher.published()[0]
			Expect(ev.EventType).To(Equal(eventstream.EventTypeStreamCompleted))
			Expect(ev.Source.Gateway).To(Equal("test-gateway"))
			Expect(ev.Source.Upstream).To(Equal(cfg.UpstreamURL))
			Expect(ev.RequestMeta.Path).To(Equal("/chat/completions"))
			Expect(ev.RequestMeta.Model).To(Equal("test-model"))
			Expect(ev.RequestMeta.Prompt).To(Equal("Explain it"))
			Expect(ev.Stream.Outcome).To(Equal(OutcomeCompleted))
			Expect(ev.Stream.Fragments).To(Equal(4))
			Expect(ev.Stream.ReasoningRegions).To(Equal(1))
			Expect(ev.Stream.Digests).To(Equal([]string{bookendDigest}))

			Eventually(func() (int, error) {
				return collectorCount(collector, "test_streams_total")
			}).Should(Equal(1))
		})

		It("handles concurrent requests independently", func() {
			var wg sync.WaitGroup
			bodies := make([]string, 8)
			for i := range bodies {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, bodies[i] = post("/chat/completions", chatBody(fmt.Sprintf("prompt %d", i)), nil)
				}(i)
			}
			wg.Wait()

			for i, body := range bodies {
				p := payloads(body)
				Expect(p[0]).To(Equal(event("prompt_summary", fmt.Sprintf("prompt %d", i))))
				Expect(p[1:]).To(Equal([]string{
					event("reasoning_content", ""),
					event("reasoning_content", "Step one. Step two."),
					event("reasoning_summary", bookendDigest),
					event("content", "Final answer."),
					"[DONE]",
				}))
			}
		})
	})

	Context("when the request is invalid", func() {
		BeforeEach(func() {
			cfg.UpstreamURL = "http://127.0.0.1:1/chat/completions"
			newGateway()
		})

		It("rejects malformed JSON with a 400", func() {
			resp, body := post("/chat/completions", `{"messages": [`, nil)

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(MatchJSON(`{"error":"Invalid JSON"}`))
		})

		It("rejects messages with unsupported content", func() {
			resp, body := post("/chat/completions", `{"messages":[{"role":"user","content":42}]}`, nil)

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(MatchJSON(`{"error":"Invalid JSON"}`))
		})
	})

	Context("when the upstream fails", func() {
		It("reports a non-200 status as an error event", func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			}))
			cfg.UpstreamURL = upstream.URL
			newGateway()

			resp, body := post("/chat/completions", chatBody("hi"), nil)

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(payloads(body)).To(Equal([]string{
				event("prompt_summary", "hi"),
				`{"error":"upstream returned status 503: model overloaded"}`,
				"[DONE]",
			}))

			Eventually(publisher.published).Should(HaveLen(1))
			Expect(publisher.published()[0].Stream.Outcome).To(Equal(OutcomeUpstreamError))
			Expect(publisher.published()[0].Stream.Error).To(ContainSubstring("503"))
		})

		It("reports an unreachable upstream as an error event", func() {
			upstream = httptest.NewServer(http.NotFoundHandler())
			cfg.UpstreamURL = upstream.URL
			upstream.Close()
			upstream = nil
			newGateway()

			_, body := post("/chat/completions", chatBody("hi"), nil)

			p := payloads(body)
			Expect(p).To(HaveLen(3))
			Expect(p[1]).To(HavePrefix(`{"error":"upstream request failed:`))
			Expect(p[2]).To(Equal("[DONE]"))
		})

		It("reports an upstream that does not answer in time", func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			}))
			cfg.UpstreamURL = upstream.URL
			cfg.UpstreamTimeout = 50 * time.Millisecond
			newGateway()

			_, body := post("/chat/completions", chatBody("hi"), nil)

			p := payloads(body)
			Expect(p).To(HaveLen(3))
			Expect(p[1]).To(ContainSubstring("timeout"))
		})

		It("keeps the client connection probed while the upstream is silent", func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				w.(http.Flusher).Flush()
				time.Sleep(100 * time.Millisecond)
				fmt.Fprint(w, upstreamBody("slow answer"))
			}))
			cfg.UpstreamURL = upstream.URL
			cfg.KeepAliveInterval = 20 * time.Millisecond
			newGateway()

			_, body := post("/chat/completions", chatBody("hi"), nil)

			Expect(body).To(ContainSubstring(": keep-alive\n\n"))
			Expect(payloads(body)).To(Equal([]string{
				event("prompt_summary", "hi"),
				event("content", "slow answer"),
				"[DONE]",
			}))
		})
	})

	Describe("auxiliary routes", func() {
		BeforeEach(func() {
			cfg.UpstreamURL = "http://127.0.0.1:1/chat/completions"
		})

		It("answers health checks", func() {
			newGateway()
			resp, err := g.server.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			b, _ := io.ReadAll(resp.Body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(b)).To(MatchJSON(`{"status":"ok"}`))
		})

		It("serves metrics", func() {
			newGateway()
			_, err := g.server.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())

			resp, err := g.server.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			b, _ := io.ReadAll(resp.Body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(b)).To(ContainSubstring(`test_http_requests_total{method="GET",path="/ping",status="200"} 1`))
		})

		It("omits the metrics route when disabled", func() {
			cfg.MetricsPath = ""
			newGateway()

			resp, err := g.server.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
