// Package backend defines the provider-adapter contract that normalizes
// heterogeneous LLM streaming APIs behind one shape.
//
// Backends disagree on streaming envelope framing: OpenAI-compatible APIs
// emit chat.completion.chunk deltas terminated by a [DONE] sentinel, while
// Anthropic frames content blocks through a message_start/content_block_delta/
// message_stop lifecycle. Each family's adapter translates its native
// envelope into the normalized Chunk shape here, so the tool-call loop and
// the SSE surface operate on one contract regardless of backend.
package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/geoffsee/open-gsio/internal/provider"
)

// Normalized finish reasons. Adapters map their native stop reasons onto
// these values.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// Message roles in conversation order.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation entry in the normalized shape. Role alternation
// is a soft convention and deliberately not enforced here.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// contentPart mirrors the multi-part content shape some clients send
// ({"type":"text","text":...}). Non-text parts are ignored.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts content as either a plain string or an array of
// content parts, flattening parts into one text string.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		Content json.RawMessage `json:"content"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Content) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(aux.Content, &s); err == nil {
		m.Content = s
		return nil
	}

	var parts []contentPart
	if err := json.Unmarshal(aux.Content, &parts); err != nil {
		return fmt.Errorf("message content must be a string or content-part array: %w", err)
	}
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			m.Content += p.Text
		}
	}
	return nil
}

// ToolCall is a completed tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the function name and its serialized JSON arguments.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallDelta is an incremental tool-call fragment keyed by the
// provider-assigned index. ID, Name, and Arguments may each arrive split
// across several fragments for the same index and must be concatenated in
// arrival order.
type ToolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function ToolFunctionDelta `json:"function"`
}

// ToolFunctionDelta is the fragmented function portion of a tool-call delta.
type ToolFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Delta is the incremental payload of one streamed choice.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// Choice pairs a delta with an optional finish reason.
type Choice struct {
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Chunk is the normalized streamed event: OpenAI-compatible on the wire,
// which is also the frame shape the SSE surface emits to clients.
type Chunk struct {
	Choices []Choice `json:"choices"`
}

// ContentChunk builds a chunk carrying a plain content delta.
func ContentChunk(text string) Chunk {
	return Chunk{Choices: []Choice{{Delta: Delta{Content: text}}}}
}

// FinishChunk builds a terminal chunk with the given finish reason.
func FinishChunk(reason string) Chunk {
	return Chunk{Choices: []Choice{{FinishReason: &reason}}}
}

// FinishReason returns the first finish reason present in the chunk, or "".
func (c Chunk) FinishReason() string {
	for _, choice := range c.Choices {
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			return *choice.FinishReason
		}
	}
	return ""
}

// ToolDefinition describes one function tool offered to the backend.
// Schema is a JSON-Schema object for the function parameters.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is the normalized generation request handed to an adapter.
// Tuning knobs beyond MaxTokens are fixed per-backend constants inside each
// adapter's BuildParams, not caller-configurable.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Tools        []ToolDefinition
}

// Adapter is implemented once per backend family. It covers client
// construction, request-shape translation, streamed-chunk interpretation and
// model listing for the catalog.
type Adapter interface {
	// Family returns the backend family name this adapter serves.
	Family() string

	// NewClient constructs the backend-specific API client from the
	// provider's resolved credentials and endpoint.
	NewClient(p provider.Provider) *Client

	// BuildParams maps the normalized request into the backend's native
	// request body, applying the family's fixed tuning profile.
	BuildParams(req Request) (any, error)

	// Open sends the streaming request and returns a Stream of normalized
	// chunks. Pre-stream failures (auth, rate limit, transport) are returned
	// as an error, typed *ClientError when the backend rejected the request.
	Open(ctx context.Context, c *Client, params any) (*Stream, error)

	// ListModels fetches the models served by this backend.
	ListModels(ctx context.Context, c *Client) ([]provider.Model, error)
}

// Registry maps family names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Family()] = a
	}
	return r
}

// ForFamily resolves the adapter owning a backend family.
func (r *Registry) ForFamily(family string) (Adapter, error) {
	a, ok := r.adapters[family]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for family %q", family)
	}
	return a, nil
}

// Lister adapts the registry to the provider.ModelLister contract used by
// the model catalog.
type Lister struct {
	registry *Registry
}

// NewLister creates a catalog lister over the registry.
func NewLister(registry *Registry) *Lister {
	return &Lister{registry: registry}
}

// ListModels fetches the model list of one provider through its family
// adapter and stamps provider ownership on each entry.
func (l *Lister) ListModels(ctx context.Context, p provider.Provider) ([]provider.Model, error) {
	adapter, err := l.registry.ForFamily(p.Family)
	if err != nil {
		return nil, err
	}
	models, err := adapter.ListModels(ctx, adapter.NewClient(p))
	if err != nil {
		return nil, err
	}
	for i := range models {
		models[i].Provider = p.Name
		models[i].Family = p.Family
	}
	return models, nil
}
