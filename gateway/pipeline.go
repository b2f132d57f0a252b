package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/papercomputeco/thinkgate/pkg/chunk"
	"github.com/papercomputeco/thinkgate/pkg/emitter"
	"github.com/papercomputeco/thinkgate/pkg/metrics"
	"github.com/papercomputeco/thinkgate/pkg/splitter"
	"github.com/papercomputeco/thinkgate/pkg/sse"
	"github.com/papercomputeco/thinkgate/pkg/summarizer"
)

// Stream outcomes.
const (
	OutcomeCompleted         = "completed"
	OutcomeUnclosedReasoning = "unclosed_reasoning"
	OutcomeUpstreamError     = "upstream_error"
	OutcomeClientGone        = "client_gone"
)

// OpenFunc opens the upstream stream. The returned body is read line by line
// until it ends or ctx is canceled.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// StreamResult describes how one stream ended.
type StreamResult struct {
	Outcome string

	// Err is the transport fault, client write failure, or unclosed region
	// error that determined Outcome. Nil for completed streams.
	Err error

	Fragments        int
	MalformedLines   int
	ReasoningRegions int
	ContentChars     int
	Digests          []string
	Duration         time.Duration
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	OpenMarker  string
	CloseMarker string
	Summarizer  *summarizer.Summarizer

	// KeepAlive is how long the upstream may stay silent before a keep-alive
	// comment is written downstream. A failed keep-alive ends the stream as
	// client_gone, so a stalled upstream is released once the client leaves.
	// Zero disables keep-alives.
	KeepAlive time.Duration

	// Collector records malformed upstream lines. Optional.
	Collector *metrics.Collector
	Logger    *zap.Logger
}

// Pipeline carries one request from upstream lines to downstream events:
//
//	sse.Reader -> chunk.Decoder -> splitter.Splitter -> emitter.Emitter
//
// Every fragment's events are written downstream before the next line is
// read. A Pipeline serves exactly one stream.
type Pipeline struct {
	decoder   *chunk.Decoder
	splitter  *splitter.Splitter
	emitter   *emitter.Emitter
	collector *metrics.Collector
	logger    *zap.Logger
	keepAlive time.Duration

	result StreamResult
}

// upstreamLine is one line read from the upstream body, or the error that
// ended it.
type upstreamLine struct {
	text string
	err  error
}

// NewPipeline creates a Pipeline writing downstream events to w.
func NewPipeline(cfg PipelineConfig, w io.Writer) (*Pipeline, error) {
	s, err := splitter.New(splitter.Config{
		OpenMarker:  cfg.OpenMarker,
		CloseMarker: cfg.CloseMarker,
		Summarizer:  cfg.Summarizer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		decoder:   chunk.NewDecoder(),
		splitter:  s,
		emitter:   emitter.New(w),
		collector: cfg.Collector,
		logger:    logger,
		keepAlive: cfg.KeepAlive,
	}, nil
}

// Run acknowledges the prompt, opens the upstream and relays it until the
// stream ends. Run always terminates the downstream stream unless the client
// is gone, and cancels the upstream as soon as a downstream write fails.
func (p *Pipeline) Run(ctx context.Context, preview string, open OpenFunc) StreamResult {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.emitter.PromptAcknowledged(preview); err != nil {
		return p.finish(start, OutcomeClientGone, err)
	}

	body, err := open(ctx)
	if err != nil {
		return p.fail(start, err)
	}

	lines := readLines(ctx, body)
	defer func() {
		cancel()
		body.Close()
		for range lines {
		}
	}()

	var (
		ticker    *time.Ticker
		keepAlive <-chan time.Time
	)
	if p.keepAlive > 0 {
		ticker = time.NewTicker(p.keepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

relay:
	for {
		var (
			line upstreamLine
			ok   bool
		)
		select {
		case <-keepAlive:
			if err := p.emitter.KeepAlive(); err != nil {
				return p.finish(start, OutcomeClientGone, fmt.Errorf("writing keep-alive: %w", err))
			}
			continue
		case line, ok = <-lines:
		}

		if !ok {
			return p.fail(start, fmt.Errorf("reading upstream: %w", ctx.Err()))
		}

		if errors.Is(line.err, io.EOF) {
			break
		}
		if line.err != nil {
			return p.fail(start, fmt.Errorf("reading upstream: %w", line.err))
		}
		if ticker != nil {
			ticker.Reset(p.keepAlive)
		}

		res := p.decoder.Decode(line.text)
		switch res.Kind {
		case chunk.KindEnd:
			break relay

		case chunk.KindIgnore:
			if res.Reason == "" {
				continue
			}
			p.result.MalformedLines++
			if p.collector != nil {
				p.collector.RecordMalformedLine(res.Reason)
			}
			p.logger.Debug("skipping upstream line",
				zap.String("reason", res.Reason),
				zap.String("line", line.text),
			)

		case chunk.KindFragment:
			p.result.Fragments++
			if err := p.emit(p.splitter.Push(res.Text)); err != nil {
				return p.finish(start, OutcomeClientGone, err)
			}
		}
	}

	outcome := OutcomeCompleted
	events, finishErr := p.splitter.Finish()
	if finishErr != nil {
		outcome = OutcomeUnclosedReasoning
	}

	if err := p.emit(events); err != nil {
		return p.finish(start, OutcomeClientGone, err)
	}
	if err := p.emitter.Done(); err != nil {
		return p.finish(start, OutcomeClientGone, err)
	}

	return p.finish(start, outcome, finishErr)
}

// readLines reads the upstream body on its own goroutine so that Run can
// notice an idle upstream. The channel is closed after the line carrying the
// read error, or as soon as ctx is done.
func readLines(ctx context.Context, body io.Reader) <-chan upstreamLine {
	lines := make(chan upstreamLine)
	go func() {
		defer close(lines)
		reader := sse.NewReader(body)
		for {
			text, err := reader.Next()
			select {
			case lines <- upstreamLine{text: text, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

// emit writes events downstream and tallies them.
func (p *Pipeline) emit(events []splitter.Event) error {
	for _, ev := range events {
		switch ev.Kind {
		case splitter.ReasoningClosed:
			p.result.ReasoningRegions++
			p.result.Digests = append(p.result.Digests, ev.Text)
		case splitter.ContentChunk:
			p.result.ContentChars += utf8.RuneCountInString(ev.Text)
		}

		if err := p.emitter.Emit(ev); err != nil {
			return fmt.Errorf("writing event: %w", err)
		}
	}
	return nil
}

// fail reports a transport fault downstream and ends the stream.
func (p *Pipeline) fail(start time.Time, err error) StreamResult {
	if werr := p.emitter.Error(err.Error()); werr != nil {
		return p.finish(start, OutcomeClientGone, werr)
	}
	if werr := p.emitter.Done(); werr != nil {
		return p.finish(start, OutcomeClientGone, werr)
	}
	return p.finish(start, OutcomeUpstreamError, err)
}

func (p *Pipeline) finish(start time.Time, outcome string, err error) StreamResult {
	if outcome == OutcomeClientGone {
		p.logger.Debug("client gone, releasing upstream",
			zap.Stringer("region", p.splitter.State()),
			zap.String("pending", p.splitter.Pending()),
		)
	}
	p.result.Outcome = outcome
	p.result.Err = err
	p.result.Duration = time.Since(start)
	return p.result
}
