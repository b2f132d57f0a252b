package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/thinkgate/pkg/logger"
)

const splitStream = `data: {"type":"prompt_summary","content":"Why?"}

data: {"type":"reasoning_content","content":""}

data: {"type":"reasoning_content","content":"Step one. "}

data: {"type":"reasoning_content","content":"Step two."}

data: {"type":"reasoning_summary","content":"The model started with 'Step one...' and concluded that 'Step two...'"}

data: {"type":"content","content":"Because "}

data: {"type":"content","content":"physics."}

data: [DONE]

`

var _ = Describe("NewChatCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := NewChatCmd()
		Expect(cmd.Use).To(Equal("chat <prompt>"))
	})

	It("requires a prompt", func() {
		cmd := NewChatCmd()
		Expect(cmd.Args(cmd, []string{})).To(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"hello"})).To(Succeed())
	})

	It("has a --gateway-target flag with the default target", func() {
		cmd := NewChatCmd()
		flag := cmd.Flags().Lookup("gateway-target")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("g"))
		Expect(flag.DefValue).To(Equal("http://localhost:8000"))
	})

	It("has a --model flag", func() {
		cmd := NewChatCmd()
		flag := cmd.Flags().Lookup("model")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("m"))
	})
})

var _ = Describe("renderer", func() {
	It("renders each section once, in stream order", func() {
		var out bytes.Buffer
		answer, err := newRenderer(&out).render(strings.NewReader(splitStream))
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("Because physics."))

		text := out.String()
		prompt := strings.Index(text, "[PROMPT]:")
		reasoning := strings.Index(text, "[REASONING]:")
		summary := strings.Index(text, "[REASONING SUMMARY]:")
		final := strings.Index(text, "[FINAL RESPONSE]:")

		Expect(prompt).To(BeNumerically(">=", 0))
		Expect(reasoning).To(BeNumerically(">", prompt))
		Expect(summary).To(BeNumerically(">", reasoning))
		Expect(final).To(BeNumerically(">", summary))

		Expect(strings.Count(text, "[REASONING]:")).To(Equal(1))
		Expect(strings.Count(text, "[FINAL RESPONSE]:")).To(Equal(1))
		Expect(text).To(ContainSubstring("Step one."))
		Expect(text).To(ContainSubstring("Step two."))
		Expect(text).To(ContainSubstring("Because physics."))
	})

	It("reports a gateway error event", func() {
		var out bytes.Buffer
		stream := `data: {"type":"prompt_summary","content":"hi"}` + "\n\n" +
			`data: {"error":"upstream returned status 503: overloaded"}` + "\n\n" +
			"data: [DONE]\n\n"

		_, err := newRenderer(&out).render(strings.NewReader(stream))
		Expect(err).To(MatchError(errStreamFailed))
		Expect(out.String()).To(ContainSubstring("upstream returned status 503: overloaded"))
	})

	It("fails when the stream ends without a terminal line", func() {
		_, err := newRenderer(io.Discard).render(strings.NewReader(`data: {"type":"content","content":"cut"}` + "\n\n"))
		Expect(err).To(MatchError(ContainSubstring("without a terminal line")))
	})

	It("ignores lines it cannot parse", func() {
		stream := ": comment\n\ndata: {broken\n\n" + splitStream

		answer, err := newRenderer(io.Discard).render(strings.NewReader(stream))
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("Because physics."))
	})
})

var _ = Describe("sendAndRender", func() {
	var (
		server   *httptest.Server
		received chatRequest
		out      bytes.Buffer
		cmder    *chatCommander
	)

	BeforeEach(func() {
		out.Reset()
		received = chatRequest{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/chat/completions"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, splitStream)
		}))

		cmder = &chatCommander{
			gatewayTarget: server.URL + "/",
			model:         "qwen3",
			system:        "Be brief.",
			timeout:       time.Minute,
			out:           &out,
			logger:        logger.Nop(),
		}
	})

	AfterEach(func() {
		server.Close()
	})

	It("sends the prompt as the last message", func() {
		answer, err := cmder.sendAndRender(context.Background(), "Why?")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("Because physics."))

		Expect(received.Model).To(Equal("qwen3"))
		Expect(received.Stream).To(BeTrue())
		Expect(received.Messages).To(Equal([]chatMessage{
			{Role: "system", Content: "Be brief."},
			{Role: "user", Content: "Why?"},
		}))
	})

	It("reports a rejected request", func() {
		server.Close()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"Invalid JSON"}`)
		}))
		cmder.gatewayTarget = server.URL

		_, err := cmder.sendAndRender(context.Background(), "Why?")
		Expect(err).To(MatchError(ContainSubstring("gateway returned status 400")))
	})
})
