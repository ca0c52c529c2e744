// Package sse writes the outbound Server-Sent Events stream. Every frame is
// a single JSON object on one data line; the frame type travels inside the
// JSON rather than as a named SSE event.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/geoffsee/open-gsio/internal/backend"
)

// Writer wraps an http.ResponseWriter for SSE streaming.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter creates a new SSE writer and sets the streaming headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

type chatFrame struct {
	Type string        `json:"type"`
	Data backend.Chunk `json:"data"`
}

type errorFrame struct {
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"statusCode"`
}

// WriteChunk sends one completion chunk as a chat frame.
func (w *Writer) WriteChunk(chunk backend.Chunk) error {
	return w.writeFrame(chatFrame{Type: "chat", Data: chunk})
}

// WriteError sends an error frame. Backend ClientErrors keep their status
// code and details; anything else becomes an opaque 500.
func (w *Writer) WriteError(err error) error {
	frame := errorFrame{
		Type:       "error",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
	var ce *backend.ClientError
	if errors.As(err, &ce) {
		frame.Message = ce.Message
		frame.Details = ce.Details
		frame.StatusCode = ce.StatusCode
	}
	return w.writeFrame(frame)
}

// writeFrame marshals v onto a single data line and flushes immediately so
// the client sees each frame as it is produced.
func (w *Writer) writeFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}
