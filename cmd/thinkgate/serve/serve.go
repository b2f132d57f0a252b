// Package servecmder provides the serve command that runs the gateway.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/thinkgate/gateway"
	"github.com/papercomputeco/thinkgate/pkg/config"
	"github.com/papercomputeco/thinkgate/pkg/eventstream"
	"github.com/papercomputeco/thinkgate/pkg/eventstream/kafka"
	"github.com/papercomputeco/thinkgate/pkg/eventstream/nop"
	"github.com/papercomputeco/thinkgate/pkg/logger"
	"github.com/papercomputeco/thinkgate/pkg/metrics"
)

// serveFlags are the GatewayFlags registered on the serve command.
var serveFlags = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagUpstreamTimeout,
	config.FlagKeepAliveInterval,
	config.FlagPromptPreviewChars,
	config.FlagOpenMarker,
	config.FlagCloseMarker,
	config.FlagMetrics,
	config.FlagMetricsPath,
	config.FlagEventStreamProvider,
	config.FlagEventStreamBrokers,
	config.FlagEventStreamTopic,
}

type ServeCommander struct {
	// Flag targets. Resolved values are read back through viper so that
	// flags, environment, config file, and defaults share one precedence
	// chain.
	listen              string
	upstream            string
	upstreamTimeout     string
	keepAliveInterval   string
	promptPreviewChars  uint
	openMarker          string
	closeMarker         string
	metrics             bool
	metricsPath         string
	eventStreamProvider string
	eventStreamBrokers  string
	eventStreamTopic    string

	debug     bool
	logFormat string
	cfg       *config.Config

	logger *zap.Logger
}

const serveLongDesc string = `Run the thinkgate gateway.

The gateway accepts OpenAI-compatible chat completion requests, forwards them
to the upstream model server as a stream, and relays the generated text as
server-sent events split into reasoning and content:

  prompt_summary       preview of the latest message, sent first
  reasoning_content    reasoning text, relayed as it is generated
  reasoning_summary    a short digest of each closed reasoning region
  content              the final answer text

Every value can be set by flag, THINKGATE_* environment variable (for example
THINKGATE_GATEWAY_UPSTREAM), or config.toml, in that order of precedence.

Examples:
  thinkgate serve
  thinkgate serve --upstream http://localhost:11434/v1/chat/completions
  thinkgate serve --eventstream-provider kafka --eventstream-brokers kafka:9092`

const serveShortDesc string = "Run the thinkgate gateway"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfg, err := resolveConfig(cmd, configDir)
			if err != nil {
				return err
			}
			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagUpstreamTimeout, &cmder.upstreamTimeout)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagKeepAliveInterval, &cmder.keepAliveInterval)
	config.AddUintFlag(cmd, config.GatewayFlags, config.FlagPromptPreviewChars, &cmder.promptPreviewChars)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagOpenMarker, &cmder.openMarker)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagCloseMarker, &cmder.closeMarker)
	config.AddBoolFlag(cmd, config.GatewayFlags, config.FlagMetrics, &cmder.metrics)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagMetricsPath, &cmder.metricsPath)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagEventStreamProvider, &cmder.eventStreamProvider)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagEventStreamBrokers, &cmder.eventStreamBrokers)
	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagEventStreamTopic, &cmder.eventStreamTopic)
	cmd.Flags().StringVar(&cmder.logFormat, "log-format", string(logger.FormatConsole), "Log encoding: console or json")

	return cmd
}

// resolveConfig layers flags over the environment, config file, and
// defaults.
func resolveConfig(cmd *cobra.Command, configDir string) (*config.Config, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.GatewayFlags, serveFlags)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// gatewayConfig translates the persistent config into gateway settings.
func gatewayConfig(cfg *config.Config) (gateway.Config, error) {
	timeout, err := time.ParseDuration(cfg.Gateway.UpstreamTimeout)
	if err != nil {
		return gateway.Config{}, fmt.Errorf("invalid upstream timeout %q: %w", cfg.Gateway.UpstreamTimeout, err)
	}

	keepAlive, err := time.ParseDuration(cfg.Gateway.KeepAliveInterval)
	if err != nil {
		return gateway.Config{}, fmt.Errorf("invalid keep-alive interval %q: %w", cfg.Gateway.KeepAliveInterval, err)
	}

	gc := gateway.Config{
		ListenAddr:         cfg.Gateway.Listen,
		UpstreamURL:        cfg.Gateway.Upstream,
		UpstreamTimeout:    timeout,
		KeepAliveInterval:  keepAlive,
		PromptPreviewChars: int(cfg.Gateway.PromptPreviewChars),
		OpenMarker:         cfg.Markers.Open,
		CloseMarker:        cfg.Markers.Close,
		EventQueueSize:     cfg.EventStream.QueueSize,
		EventWorkers:       cfg.EventStream.Workers,
	}
	if cfg.Metrics.Enabled {
		gc.MetricsPath = cfg.Metrics.Path
	}
	if host, err := os.Hostname(); err == nil {
		gc.Name = host
	}

	return gc, nil
}

// newPublisher builds the configured completion event publisher.
func newPublisher(cfg config.EventStreamConfig) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case config.EventStreamKafka:
		p, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.Brokers, Topic: cfg.Topic})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil
	case config.EventStreamNop, "":
		return nop.NewPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown eventstream provider %q", cfg.Provider)
	}
}

func (c *ServeCommander) run() error {
	format, err := logger.ParseFormat(c.logFormat)
	if err != nil {
		return err
	}
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithFormat(format))
	defer func() { _ = c.logger.Sync() }()

	gc, err := gatewayConfig(c.cfg)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(c.cfg.EventStream)
	if err != nil {
		return err
	}
	defer publisher.Close()

	collector := metrics.NewCollector(metrics.DefaultNamespace, c.logger)

	g, err := gateway.New(gc, publisher, collector, c.logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer g.Close()

	c.logger.Info("gateway configured",
		zap.String("listen", gc.ListenAddr),
		zap.String("upstream", gc.UpstreamURL),
		zap.Duration("upstream_timeout", gc.UpstreamTimeout),
		zap.Duration("keepalive_interval", gc.KeepAliveInterval),
		zap.String("open_marker", c.cfg.Markers.Open),
		zap.String("close_marker", c.cfg.Markers.Close),
		zap.String("metrics_path", gc.MetricsPath),
		zap.String("eventstream", c.cfg.EventStream.Provider),
	)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := g.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}
