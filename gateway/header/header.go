// Package header provides header handling for the thinkgate gateway.
//
// The gateway sits between a client and an upstream model server:
//
//	Client <--> Gateway <--> Upstream
//
// The client leg always receives a server-sent event stream produced by the
// gateway, so upstream response headers are never copied back. Only the
// request leg forwards client headers, such as Authorization.
package header

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the gateway-assigned request ID back to the client.
const RequestIDHeader = "X-Request-Id"

// Handler manages headers between gateway connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (client --> gateway --> upstream)
// that are not forwarded to the upstream.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL.
	"Host": {},

	// Accept-Encoding is stripped so that Go's http.Transport adds its own
	// and transparently decompresses the upstream stream.
	"Accept-Encoding": {},

	// The forwarded body is rewritten, so the client's length no longer
	// applies.
	"Content-Length": {},
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context to
// the outgoing http.Request, filtering headers that must not be forwarded.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	req.Header.Set("Accept", "text/event-stream")
}

// SetStreamResponseHeaders marks the client response as an unbuffered
// server-sent event stream.
func (h *Handler) SetStreamResponseHeaders(c *fiber.Ctx, requestID string) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")
	if requestID != "" {
		c.Set(RequestIDHeader, requestID)
	}
}
