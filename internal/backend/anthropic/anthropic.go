// Package anthropic implements the backend adapter for Anthropic's Messages
// API. The Anthropic envelope differs structurally from the normalized
// shape: tool-call headers arrive on content_block_start, argument JSON
// dribbles in through input_json_delta, and the stop reason is split across
// message_delta and message_stop. The interpreter here carries per-stream
// state to stitch that lifecycle back into flat chunks.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/provider"
)

const (
	messagesPath = "/messages"
	modelsPath   = "/models"

	apiVersion = "2023-06-01"
)

// Fixed tuning profile for the family. Anthropic requires max_tokens on
// every request, so a default applies when the caller sets none.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
)

// Adapter serves the Anthropic backend family.
type Adapter struct{}

// New creates the adapter.
func New() *Adapter {
	return &Adapter{}
}

// Family returns the backend family this adapter serves.
func (a *Adapter) Family() string {
	return provider.FamilyAnthropic
}

// NewClient builds a client authenticating via x-api-key with the pinned
// API version header.
func (a *Adapter) NewClient(p provider.Provider) *backend.Client {
	return backend.NewClient(p.Endpoint,
		backend.Header{Key: "x-api-key", Value: p.APIKey},
		backend.Header{Key: "anthropic-version", Value: apiVersion},
	)
}

type messagesRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []message      `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	Stream      bool           `json:"stream"`
	Tools       []toolSpec     `json:"tools,omitempty"`
	ToolChoice  map[string]any `json:"tool_choice,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type toolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// BuildParams maps the normalized request onto the Messages API body. The
// system prompt moves to the top-level system field, assistant tool calls
// become tool_use blocks, and consecutive tool results merge into one user
// turn since Anthropic forbids back-to-back user messages.
func (a *Adapter) BuildParams(req backend.Request) (any, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := messagesRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: defaultTemperature,
		Stream:      true,
	}

	for _, t := range req.Tools {
		schema := json.RawMessage(`{"type":"object","properties":{}}`)
		if t.Schema != nil {
			raw, err := json.Marshal(t.Schema)
			if err != nil {
				return nil, fmt.Errorf("marshal tool schema for %q: %w", t.Name, err)
			}
			schema = raw
		}
		body.Tools = append(body.Tools, toolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = map[string]any{"type": "auto"}
	}
	return body, nil
}

func buildMessages(messages []backend.Message) []message {
	var result []message

	for _, msg := range messages {
		switch msg.Role {
		case backend.RoleUser:
			result = append(result, message{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: msg.Content}},
			})

		case backend.RoleAssistant:
			assistant := message{Role: "assistant"}
			for _, call := range msg.ToolCalls {
				assistant.Content = append(assistant.Content, contentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: json.RawMessage(call.Function.Arguments),
				})
			}
			if msg.Content != "" {
				assistant.Content = append(assistant.Content, contentBlock{Type: "text", Text: msg.Content})
			}
			if len(assistant.Content) > 0 {
				result = append(result, assistant)
			}

		case backend.RoleTool:
			content, err := json.Marshal(msg.Content)
			if err != nil {
				content = []byte(`""`)
			}
			block := contentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   content,
			}
			// Two consecutive user turns are rejected, so tool results
			// following tool results fold into the previous message.
			if n := len(result); n > 0 && isToolResults(result[n-1]) {
				result[n-1].Content = append(result[n-1].Content, block)
			} else {
				result = append(result, message{Role: "user", Content: []contentBlock{block}})
			}

		case backend.RoleSystem:
			// System content belongs in the top-level field; anything that
			// slips through here survives as a user turn instead of dropping.
			result = append(result, message{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}
	return result
}

func isToolResults(m message) bool {
	if m.Role != "user" || len(m.Content) == 0 {
		return false
	}
	for _, block := range m.Content {
		if block.Type != "tool_result" {
			return false
		}
	}
	return true
}

// Open sends the streaming request with a fresh stateful interpreter.
func (a *Adapter) Open(ctx context.Context, c *backend.Client, params any) (*backend.Stream, error) {
	resp, err := c.PostStream(ctx, messagesPath, params)
	if err != nil {
		return nil, err
	}
	return backend.NewStream(resp.Body, newInterpreter()), nil
}

// streamEvent is the envelope shared by all Anthropic SSE event types.
type streamEvent struct {
	Type         string `json:"type"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// newInterpreter returns the per-stream translation of the Anthropic event
// lifecycle (message_start, content_block_start, content_block_delta,
// content_block_stop, message_delta, message_stop) into normalized chunks.
func newInterpreter() backend.InterpretFunc {
	// toolCallCounter assigns each tool_use block a zero-based index; it is
	// incremented after the header emits, so open-block argument deltas
	// target toolCallCounter-1. finishReason is captured on message_delta
	// and emitted when message_stop closes the stream.
	toolCallCounter := 0
	finishReason := ""

	return func(payload string, emit func(backend.Chunk)) (bool, error) {
		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return false, fmt.Errorf("parse stream event: %w", err)
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock == nil || event.ContentBlock.Type != "tool_use" {
				return false, nil
			}
			// ID and Name only appear here, never on the argument deltas.
			emit(backend.Chunk{Choices: []backend.Choice{{Delta: backend.Delta{
				ToolCalls: []backend.ToolCallDelta{{
					Index:    toolCallCounter,
					ID:       event.ContentBlock.ID,
					Type:     "function",
					Function: backend.ToolFunctionDelta{Name: event.ContentBlock.Name},
				}},
			}}}})
			toolCallCounter++

		case "content_block_delta":
			if event.Delta == nil {
				return false, nil
			}
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					emit(backend.ContentChunk(event.Delta.Text))
				}
			case "input_json_delta":
				if event.Delta.PartialJSON != "" {
					emit(backend.Chunk{Choices: []backend.Choice{{Delta: backend.Delta{
						ToolCalls: []backend.ToolCallDelta{{
							Index:    toolCallCounter - 1,
							Function: backend.ToolFunctionDelta{Arguments: event.Delta.PartialJSON},
						}},
					}}}})
				}
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				finishReason = event.Delta.StopReason
			}

		case "message_stop":
			emit(backend.FinishChunk(mapStopReason(finishReason)))
			return true, nil

		case "error":
			message := "unknown stream error"
			if event.Error != nil {
				message = event.Error.Message
			}
			return true, fmt.Errorf("anthropic stream error: %s", message)

		case "message_start", "content_block_stop", "ping":
			// Carry no deltas the orchestration layer consumes.

		default:
			// Unknown event types are skipped for forward compatibility.
		}
		return false, nil
	}
}

func mapStopReason(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return backend.FinishToolCalls
	case "max_tokens":
		return backend.FinishLength
	default:
		// end_turn, stop_sequence, and anything unrecognized.
		return backend.FinishStop
	}
}

type modelList struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// ListModels fetches the provider's model list from GET /models.
func (a *Adapter) ListModels(ctx context.Context, c *backend.Client) ([]provider.Model, error) {
	var list modelList
	if err := c.GetJSON(ctx, modelsPath, &list); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := make([]provider.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, provider.Model{
			ID:      m.ID,
			Family:  provider.FamilyAnthropic,
			OwnedBy: "anthropic",
		})
	}
	return models, nil
}
