// Package chat implements the streaming orchestration core: stream
// submission and materialization over the TTL registry, and the tool-call
// loop that mediates between the model and the retrieval tool.
package chat

import (
	"errors"

	"github.com/geoffsee/open-gsio/internal/backend"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	// ErrEmptyMessages rejects a submission with no conversation.
	ErrEmptyMessages = errors.New("chat: messages must not be empty")

	// ErrStreamActive reports a second materialization attempt while the
	// first is still running.
	ErrStreamActive = errors.New("chat: stream already active")

	// ErrStreamNotFound reports an unknown or expired stream id.
	ErrStreamNotFound = errors.New("chat: stream not found")
)

// StreamRequest is the submitted chat request held in the registry between
// POST /chat and the client's follow-up GET on the stream URL.
type StreamRequest struct {
	Model        string            `json:"model"`
	Messages     []backend.Message `json:"messages"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
}

// Validate checks the request is well-formed enough to store.
func (r StreamRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	return nil
}
