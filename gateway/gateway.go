// Package gateway provides the thinkgate HTTP gateway: it accepts chat
// completion requests, streams them from an upstream model server, and
// relays the generated text to the client split into reasoning and content
// events.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/papercomputeco/thinkgate/gateway/header"
	"github.com/papercomputeco/thinkgate/gateway/worker"
	"github.com/papercomputeco/thinkgate/pkg/eventstream"
	"github.com/papercomputeco/thinkgate/pkg/eventstream/nop"
	"github.com/papercomputeco/thinkgate/pkg/llm"
	"github.com/papercomputeco/thinkgate/pkg/metrics"
	"github.com/papercomputeco/thinkgate/pkg/summarizer"
	"github.com/papercomputeco/thinkgate/pkg/utils"
)

const (
	defaultPromptPreviewChars = 100

	// maxErrorBodyBytes bounds how much of a failed upstream response is
	// quoted back to the client.
	maxErrorBodyBytes = 4096
)

// Gateway streams chat completions from the upstream, splitting reasoning
// from content. Every request runs its own Pipeline; the only state shared
// across requests is the HTTP client, the metrics collector, and the publish
// worker pool.
type Gateway struct {
	config        Config
	workerPool    *worker.Pool
	collector     *metrics.Collector
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
	summarizer    *summarizer.Summarizer
}

// New creates a new Gateway. A nil publisher disables event publication and a
// nil collector gets a private one.
func New(config Config, publisher eventstream.Publisher, collector *metrics.Collector, logger *zap.Logger) (*Gateway, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if config.PromptPreviewChars <= 0 {
		config.PromptPreviewChars = defaultPromptPreviewChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector(metrics.DefaultNamespace, logger)
	}
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	// Fail fast on unusable markers rather than on the first request.
	if _, err := NewPipeline(PipelineConfig{OpenMarker: config.OpenMarker, CloseMarker: config.CloseMarker}, io.Discard); err != nil {
		return nil, fmt.Errorf("invalid markers: %w", err)
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher:  publisher,
		Collector:  collector,
		NumWorkers: config.EventWorkers,
		QueueSize:  config.EventQueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.UpstreamTimeout

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	g := &Gateway{
		config:        config,
		workerPool:    wp,
		collector:     collector,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		summarizer:    summarizer.New(),
		httpClient:    &http.Client{Transport: transport},
	}

	app.Use(fiberrecover.New())
	app.Use(g.recordRequests)

	app.Post("/chat/completions", g.handleChat)
	app.Post("/v1/chat/completions", g.handleChat)
	app.Get("/ping", g.handlePing)
	if config.MetricsPath != "" {
		app.Get(config.MetricsPath, adaptor.HTTPHandler(collector.Handler()))
	}

	return g, nil
}

// Run starts the gateway server on the configured listening address.
func (g *Gateway) Run() error {
	g.logger.Info("starting gateway server",
		zap.String("listen", g.config.ListenAddr),
		zap.String("upstream", g.config.UpstreamURL),
	)

	return g.server.Listen(g.config.ListenAddr)
}

// RunWithListener starts the gateway server using the provided listener.
func (g *Gateway) RunWithListener(listener net.Listener) error {
	g.logger.Info("starting gateway server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", g.config.UpstreamURL),
	)

	return g.server.Listener(listener)
}

// Close stops the HTTP server and then drains queued completion events.
func (g *Gateway) Close() error {
	err := g.server.Shutdown()
	g.workerPool.Close()
	return err
}

func (g *Gateway) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// recordRequests is middleware recording every served request.
func (g *Gateway) recordRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}

	g.collector.RecordHTTPRequest(c.Method(), c.Route().Path, status, time.Since(start))
	return err
}

// handleChat validates a chat request and starts its stream.
func (g *Gateway) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()
	requestID := uuid.NewString()

	// fasthttp reuses the request buffer once the handler returns.
	body := bytes.Clone(c.Body())

	parsedReq, err := llm.ParseChatRequest(body)
	if err != nil {
		g.logger.Debug("rejecting invalid request",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "Invalid JSON"})
	}

	if parsedReq.Stream == nil || !*parsedReq.Stream {
		g.logger.Debug("forcing streaming for non-streaming request",
			zap.String("request_id", requestID),
		)
	}

	forward, err := sjson.SetBytes(parsedReq.RawRequest, "stream", true)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "Invalid JSON"})
	}

	// Use a context detached from c.Context() because fasthttp recycles its
	// RequestCtx after the handler returns, while the stream keeps running in
	// its own goroutine.
	ctx, cancel := context.WithCancel(context.Background())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.UpstreamURL, bytes.NewReader(forward))
	if err != nil {
		cancel()
		g.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	g.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	// Use io.Pipe + SetBodyStream so that every pw.Write blocks until
	// fasthttp has consumed the event and flushed it to the client as one
	// chunk.
	pr, pw := io.Pipe()

	pipeline, err := NewPipeline(PipelineConfig{
		OpenMarker:  g.config.OpenMarker,
		CloseMarker: g.config.CloseMarker,
		Summarizer:  g.summarizer,
		KeepAlive:   g.config.KeepAliveInterval,
		Collector:   g.collector,
		Logger:      g.logger.With(zap.String("request_id", requestID)),
	}, pw)
	if err != nil {
		cancel()
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	preview := parsedReq.PromptPreview(g.config.PromptPreviewChars)
	meta := eventstream.StreamRequest{
		RequestID: requestID,
		Path:      c.Path(),
		Model:     parsedReq.Model,
		Prompt:    preview,
		StartedAt: startTime.UTC(),
	}

	g.logger.Debug("starting stream",
		zap.String("request_id", requestID),
		zap.String("model", parsedReq.Model),
		zap.Int("messages", len(parsedReq.Messages)),
	)

	go func() {
		defer cancel()
		result := pipeline.Run(ctx, preview, func(ctx context.Context) (io.ReadCloser, error) {
			return g.openUpstream(httpReq.WithContext(ctx))
		})
		pw.Close()
		g.complete(meta, result)
	}()

	g.headerHandler.SetStreamResponseHeaders(c, requestID)
	c.Status(fiber.StatusOK)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// openUpstream sends the request and returns the event stream body. Any
// status other than 200 is a transport fault.
func (g *Gateway) openUpstream(req *http.Request) (io.ReadCloser, error) {
	g.logger.Debug("forwarding streaming request to upstream",
		zap.String("url", req.URL.String()),
	)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("upstream returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return resp.Body, nil
}

// complete records a finished stream and queues its completion event.
func (g *Gateway) complete(meta eventstream.StreamRequest, result StreamResult) {
	g.collector.RecordStream(result.Outcome, result.Duration, result.Fragments, result.ReasoningRegions)

	fields := []zap.Field{
		zap.String("request_id", meta.RequestID),
		zap.String("outcome", result.Outcome),
		zap.Int("fragments", result.Fragments),
		zap.Int("reasoning_regions", result.ReasoningRegions),
		zap.Duration("duration", result.Duration),
	}
	switch result.Outcome {
	case OutcomeUpstreamError:
		g.logger.Error("upstream stream failed", append(fields, zap.Error(result.Err))...)
	case OutcomeUnclosedReasoning:
		g.logger.Warn("stream ended inside a reasoning region", fields...)
	case OutcomeClientGone:
		g.logger.Info("client disconnected", append(fields, zap.Error(result.Err))...)
	default:
		g.logger.Info("stream completed", fields...)
	}

	summary := eventstream.StreamSummary{
		Outcome:          result.Outcome,
		Fragments:        result.Fragments,
		MalformedLines:   result.MalformedLines,
		ReasoningRegions: result.ReasoningRegions,
		Digests:          result.Digests,
		ContentChars:     result.ContentChars,
	}
	if result.Err != nil {
		summary.Error = utils.Truncate(result.Err.Error(), maxErrorBodyBytes)
	}

	completedAt := meta.StartedAt.Add(result.Duration)
	meta.CompletedAt = completedAt
	meta.DurationMs = result.Duration.Milliseconds()

	g.workerPool.Enqueue(worker.Job{
		Event: eventstream.NewStreamCompletedEvent(
			eventstream.EventSource{Gateway: g.config.Name, Upstream: g.config.UpstreamURL},
			meta,
			summary,
		),
	})
}
