package llm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/thinkgate/pkg/utils"
)

// UnknownPrompt is the preview used when a request carries no messages.
const UnknownPrompt = "Unknown"

// ErrInvalidRequest is returned when an inbound body is not a chat request.
var ErrInvalidRequest = errors.New("invalid chat request")

// ChatRequest is the inbound chat completion request as seen by the gateway.
// Only the fields the gateway inspects are decoded; RawRequest keeps the
// original payload so it can be forwarded upstream untouched.
type ChatRequest struct {
	// Model name (e.g., "qwen2.5-0.5b-instruct")
	Model string `json:"model,omitempty"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream *bool `json:"stream,omitempty"`

	// RawRequest preserves the original request payload.
	RawRequest json.RawMessage `json:"-"`
}

// chatRequest is the OpenAI-compatible wire format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

// ParseChatRequest decodes an OpenAI-compatible chat completion body. A body
// that is not a JSON object, or whose messages do not have the expected
// shape, is reported as ErrInvalidRequest.
func ParseChatRequest(payload []byte) (*ChatRequest, error) {
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	messages := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		converted := Message{Role: msg.Role}

		switch content := msg.Content.(type) {
		case string:
			converted.Content = []ContentBlock{{Type: "text", Text: content}}
		case []any:
			// Multimodal content parts
			for _, item := range content {
				part, ok := item.(map[string]any)
				if !ok {
					continue
				}
				cb := ContentBlock{}
				if t, ok := part["type"].(string); ok {
					cb.Type = t
				}
				if text, ok := part["text"].(string); ok {
					cb.Text = text
				}
				if imageURL, ok := part["image_url"].(map[string]any); ok {
					cb.Type = "image"
					if url, ok := imageURL["url"].(string); ok {
						cb.ImageURL = url
					}
				}
				converted.Content = append(converted.Content, cb)
			}
		case nil:
			converted.Content = []ContentBlock{}
		default:
			return nil, fmt.Errorf("%w: unsupported content of type %T", ErrInvalidRequest, content)
		}

		messages = append(messages, converted)
	}

	return &ChatRequest{
		Model:      req.Model,
		Messages:   messages,
		Stream:     req.Stream,
		RawRequest: payload,
	}, nil
}

// PromptPreview returns the text of the latest message clipped to maxChars
// runes, or UnknownPrompt when the request has no messages.
func (r *ChatRequest) PromptPreview(maxChars int) string {
	if len(r.Messages) == 0 {
		return UnknownPrompt
	}
	last := r.Messages[len(r.Messages)-1]
	return utils.Clip(last.GetText(), maxChars)
}

// ErrorResponse is the JSON body returned for requests rejected before any
// streaming begins.
type ErrorResponse struct {
	Error string `json:"error"`
}
