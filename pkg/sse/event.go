// Package sse provides the minimal Server-Sent Events plumbing used by the
// thinkgate gateway: a line-oriented reader for the upstream stream and a
// data-line writer for the downstream client.
//
// The gateway never forwards upstream bytes verbatim. Every upstream line is
// decoded, classified, and re-emitted as a new event, so reading and writing
// are deliberately decoupled here.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Done is the terminal payload carried by the final data line of an
// OpenAI-style chat completion stream ("data: [DONE]").
const Done = "[DONE]"

// Event is a single outgoing SSE event.
type Event struct {
	// Type is written as an "event:" field when non-empty. An empty string
	// means the default "message" type per the SSE spec.
	Type string

	// Data is written as one "data:" field per line of the payload.
	Data string

	// ID is written as an "id:" field when non-empty.
	ID string
}
