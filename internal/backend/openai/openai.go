// Package openai implements the backend adapter for OpenAI-compatible chat
// completion APIs. OpenAI, Groq and Cloudflare Workers AI all serve this
// wire format, so one adapter covers the whole family with the provider's
// endpoint swapped in.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/provider"
)

const chatCompletionsPath = "/chat/completions"

// Fixed tuning profile for the family.
const (
	defaultTemperature = 0.75
	defaultTopP        = 1.0
)

// Adapter serves the OpenAI-compatible backend family.
type Adapter struct{}

// New creates the adapter.
func New() *Adapter {
	return &Adapter{}
}

// Family returns the backend family this adapter serves.
func (a *Adapter) Family() string {
	return provider.FamilyOpenAI
}

// NewClient builds a client with bearer-token auth against the provider's
// resolved endpoint.
func (a *Adapter) NewClient(p provider.Provider) *backend.Client {
	return backend.NewClient(p.Endpoint,
		backend.Header{Key: "Authorization", Value: "Bearer " + p.APIKey},
	)
}

type chatRequest struct {
	Model         string            `json:"model"`
	Messages      []backend.Message `json:"messages"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   float64           `json:"temperature"`
	TopP          float64           `json:"top_p"`
	Stream        bool              `json:"stream"`
	Tools         []toolSpec        `json:"tools,omitempty"`
	ToolChoice    string            `json:"tool_choice,omitempty"`
	StreamOptions *streamOptions    `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// BuildParams maps the normalized request onto the chat completions body.
// The system prompt becomes a leading system message.
func (a *Adapter) BuildParams(req backend.Request) (any, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	messages := make([]backend.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, backend.Message{Role: backend.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)

	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		Stream:      true,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, toolSpec{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}
	return body, nil
}

// Open sends the streaming request. The returned stream passes chunks
// through nearly verbatim since the normalized shape is this family's
// native one.
func (a *Adapter) Open(ctx context.Context, c *backend.Client, params any) (*backend.Stream, error) {
	resp, err := c.PostStream(ctx, chatCompletionsPath, params)
	if err != nil {
		return nil, err
	}
	return backend.NewStream(resp.Body, interpretChunk), nil
}

// streamChunk is the subset of chat.completion.chunk the orchestration
// layer consumes. Usage-only chunks carry empty choices and are dropped.
type streamChunk struct {
	Choices []backend.Choice `json:"choices"`
}

func interpretChunk(payload string, emit func(backend.Chunk)) (bool, error) {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return false, fmt.Errorf("parse streaming chunk: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return false, nil
	}
	emit(backend.Chunk{Choices: chunk.Choices})
	return false, nil
}

type modelList struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

// ListModels fetches the provider's model list from GET /models.
func (a *Adapter) ListModels(ctx context.Context, c *backend.Client) ([]provider.Model, error) {
	var list modelList
	if err := c.GetJSON(ctx, "/models", &list); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := make([]provider.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, provider.Model{
			ID:      m.ID,
			Family:  provider.FamilyOpenAI,
			OwnedBy: m.OwnedBy,
			Created: m.Created,
		})
	}
	return models, nil
}
