// Package chatcmder provides the chat command, a reference client that sends
// one prompt through a running thinkgate gateway and renders the split
// stream.
package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/thinkgate/pkg/config"
	"github.com/papercomputeco/thinkgate/pkg/logger"
)

const chatPath = "/chat/completions"

type chatCommander struct {
	gatewayTarget string
	model         string
	system        string
	timeout       time.Duration
	debug         bool

	out    io.Writer
	logger *zap.Logger
}

// chatRequest is the OpenAI-compatible request sent to the gateway.
type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const chatLongDesc string = `Send a prompt through a running thinkgate gateway.

The response is rendered in sections as it streams: the acknowledged prompt,
the model's reasoning as it is generated, a summary of each reasoning region,
and the final response.

Examples:
  thinkgate chat "Why is the sky blue?"
  thinkgate chat --model qwen3 --gateway-target http://localhost:8080 "Hello"`

const chatShortDesc string = "Send a prompt through the thinkgate gateway"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed(config.FlagGatewayTarget) {
				cmder.gatewayTarget = cfg.Client.GatewayTarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context(), strings.Join(args, " "))
		},
	}

	config.AddStringFlag(cmd, config.GatewayFlags, config.FlagGatewayTarget, &cmder.gatewayTarget)
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model name forwarded to the upstream")
	cmd.Flags().StringVarP(&cmder.system, "system", "s", "", "Optional system message")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 5*time.Minute, "Maximum time to wait for the full response")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, prompt string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.logger == nil {
		c.logger = logger.NewLogger(c.debug)
		defer func() { _ = c.logger.Sync() }()
	}

	_, err := c.sendAndRender(ctx, prompt)
	return err
}

// sendAndRender posts the prompt to the gateway and renders the event stream.
// Returns the final response text.
func (c *chatCommander) sendAndRender(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:  c.model,
		Stream: true,
	}
	if c.system != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: c.system})
	}
	reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.gatewayTarget, "/") + chatPath
	c.logger.Debug("sending chat request",
		zap.String("url", url),
		zap.String("model", c.model),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return newRenderer(c.out).render(resp.Body)
}
