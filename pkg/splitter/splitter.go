// Package splitter implements the marker-aware stream splitter: an
// incremental state machine that separates reasoning text, delimited by an
// in-band open/close marker pair, from final answer text.
//
// Correctness is defined over the window formed by the held PendingPrefix and
// the newly arrived fragment, never over a fragment in isolation, so markers
// split across any number of fragments are recognized exactly once.
package splitter

import (
	"errors"
	"strings"

	"github.com/papercomputeco/thinkgate/pkg/artifact"
	"github.com/papercomputeco/thinkgate/pkg/summarizer"
)

const (
	DefaultOpenMarker  = "<think>"
	DefaultCloseMarker = "</think>"
)

// ErrUnclosedReasoning is reported by Finish when the stream ended inside a
// reasoning region. The region's accumulated text is discarded.
var ErrUnclosedReasoning = errors.New("stream ended inside an unclosed reasoning region")

// State is the region currently open.
type State int

const (
	// Outside means a content region is open.
	Outside State = iota

	// Inside means a reasoning region is open.
	Inside
)

func (s State) String() string {
	if s == Inside {
		return "inside"
	}
	return "outside"
}

// Config configures a Splitter.
type Config struct {
	// OpenMarker and CloseMarker delimit a reasoning region. They default to
	// DefaultOpenMarker and DefaultCloseMarker.
	OpenMarker  string
	CloseMarker string

	// Summarizer produces the digest of each closed region. Defaults to the
	// standard strategy chain.
	Summarizer *summarizer.Summarizer

	// Filter cleans text destined for the content channel. Defaults to
	// artifact.Strip.
	Filter func(string) string
}

// Splitter classifies an ordered sequence of fragments. A Splitter belongs to
// exactly one stream and is not safe for concurrent use.
type Splitter struct {
	openMarker  string
	closeMarker string
	summarizer  *summarizer.Summarizer
	filter      func(string) string

	state     State
	pending   string
	reasoning strings.Builder
	finished  bool
}

// New creates a Splitter in the Outside state.
func New(cfg Config) (*Splitter, error) {
	if cfg.OpenMarker == "" {
		cfg.OpenMarker = DefaultOpenMarker
	}
	if cfg.CloseMarker == "" {
		cfg.CloseMarker = DefaultCloseMarker
	}
	if cfg.OpenMarker == cfg.CloseMarker {
		return nil, errors.New("open and close markers must differ")
	}
	if cfg.Summarizer == nil {
		cfg.Summarizer = summarizer.New()
	}
	if cfg.Filter == nil {
		cfg.Filter = artifact.Strip
	}

	return &Splitter{
		openMarker:  cfg.OpenMarker,
		closeMarker: cfg.CloseMarker,
		summarizer:  cfg.Summarizer,
		filter:      cfg.Filter,
	}, nil
}

// State returns the region currently open.
func (s *Splitter) State() State {
	return s.state
}

// Pending returns the held tail that may be the start of a marker.
func (s *Splitter) Pending() string {
	return s.pending
}

// Push consumes the next fragment and returns the events it produced, in
// order. A fragment may be empty and may contain any number of markers or
// only part of one.
//
// Both markers are recognized in either region. The one that ends the
// current region switches it; the other is a stray marker and is dropped
// without changing region, so no chunk ever carries a whole marker.
func (s *Splitter) Push(fragment string) []Event {
	if s.finished {
		return nil
	}

	window := s.pending + fragment
	s.pending = ""

	var events []Event
	for {
		if i, marker := s.nextMarker(window); i >= 0 {
			events = s.classify(events, window[:i])
			window = window[i+len(marker):]
			if marker == s.marker() {
				events = s.flip(events)
			}
			continue
		}

		held := max(overlap(window, s.openMarker), overlap(window, s.closeMarker))
		events = s.classify(events, window[:len(window)-held])
		s.pending = window[len(window)-held:]

		return events
	}
}

// nextMarker returns the position of the earliest complete marker in window
// and which marker it is, or -1. At the same position the longer marker wins.
func (s *Splitter) nextMarker(window string) (int, string) {
	at, found := -1, ""
	for _, m := range [...]string{s.openMarker, s.closeMarker} {
		i := strings.Index(window, m)
		if i < 0 {
			continue
		}
		if at < 0 || i < at || (i == at && len(m) > len(found)) {
			at, found = i, m
		}
	}
	return at, found
}

// Finish ends the stream. Outside a reasoning region, any held text was a
// false marker match and is flushed as content. Inside one, the held text and
// the accumulated reasoning are discarded and ErrUnclosedReasoning is
// returned; no ReasoningClosed event is produced.
func (s *Splitter) Finish() ([]Event, error) {
	if s.finished {
		return nil, nil
	}
	s.finished = true

	pending := s.pending
	s.pending = ""

	if s.state == Inside {
		s.reasoning.Reset()
		return nil, ErrUnclosedReasoning
	}

	return s.classify(nil, pending), nil
}

// marker returns the marker that ends the current region.
func (s *Splitter) marker() string {
	if s.state == Inside {
		return s.closeMarker
	}
	return s.openMarker
}

// classify emits text for the current region. Empty text produces nothing.
func (s *Splitter) classify(events []Event, text string) []Event {
	if text == "" {
		return events
	}

	if s.state == Inside {
		s.reasoning.WriteString(text)
		return append(events, Event{Kind: ReasoningChunk, Text: text})
	}

	if clean := s.filter(text); clean != "" {
		return append(events, Event{Kind: ContentChunk, Text: clean})
	}
	return events
}

// flip consumes a marker and switches regions.
func (s *Splitter) flip(events []Event) []Event {
	if s.state == Outside {
		s.state = Inside
		return append(events, Event{Kind: ReasoningChunk})
	}

	digest := s.summarizer.Summarize(s.reasoning.String())
	s.reasoning.Reset()
	s.state = Outside

	return append(events, Event{Kind: ReasoningClosed, Text: digest})
}

// overlap returns the length of the longest strict prefix of delim that is a
// suffix of s.
func overlap(s, delim string) int {
	maxLen := min(len(delim)-1, len(s))
	for i := maxLen; i > 0; i-- {
		if strings.HasSuffix(s, delim[:i]) {
			return i
		}
	}
	return 0
}
