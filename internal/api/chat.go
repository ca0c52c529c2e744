package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/chat"
	"github.com/geoffsee/open-gsio/internal/provider"
	"github.com/geoffsee/open-gsio/internal/sse"
)

// maxChatBodySize bounds inbound chat payloads.
const maxChatBodySize = 1024 * 1024

// chatHandler serves the streaming chat surface: submission returns a stream
// URL, materialization replays it once over SSE.
type chatHandler struct {
	orchestrator *chat.Orchestrator
	logger       *slog.Logger
}

// submitResponse is the POST /chat response body.
type submitResponse struct {
	StreamURL string `json:"streamUrl"`
}

// submit accepts a chat request, registers it, and returns the stream URL the
// client should connect to.
func (h *chatHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req chat.StreamRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "content_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	_, url, err := h.orchestrator.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{StreamURL: url})
}

func (h *chatHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessages):
		writeError(w, http.StatusBadRequest, "empty_messages", "messages must not be empty", h.logger)
	case errors.Is(err, provider.ErrUnknownModel):
		writeError(w, http.StatusNotFound, "unknown_model", err.Error(), h.logger)
	default:
		var ce *backend.ClientError
		if errors.As(err, &ce) {
			writeError(w, ce.StatusCode, ce.Code, ce.Message, h.logger)
			return
		}
		h.logger.Error("chat submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}

// stream materializes a submitted request as an SSE stream.
//
// Errors before the first frame map onto HTTP status codes; once streaming
// has started the connection is committed to 200 and failures become a final
// error frame instead.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("streamId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_stream_id", "stream id is required", h.logger)
		return
	}

	var writer *sse.Writer
	emit := func(c backend.Chunk) error {
		if writer == nil {
			var err error
			writer, err = sse.NewWriter(w)
			if err != nil {
				return err
			}
		}
		return writer.WriteChunk(c)
	}

	err := h.orchestrator.Materialize(r.Context(), id, emit)
	if err == nil {
		return
	}

	if writer == nil {
		switch {
		case errors.Is(err, chat.ErrStreamActive):
			writeError(w, http.StatusConflict, "stream_active", "stream is already being consumed", h.logger)
		case errors.Is(err, chat.ErrStreamNotFound):
			writeError(w, http.StatusNotFound, "stream_not_found", "stream not found or expired", h.logger)
		default:
			var ce *backend.ClientError
			if errors.As(err, &ce) {
				writeError(w, ce.StatusCode, ce.Code, ce.Message, h.logger)
				return
			}
			h.logger.Error("stream materialization failed", "stream_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		}
		return
	}

	// Client disconnects are routine; only genuine failures get a frame.
	if r.Context().Err() != nil {
		h.logger.Debug("client disconnected mid-stream", "stream_id", id)
		return
	}
	h.logger.Error("stream failed mid-flight", "stream_id", id, "error", err)
	if writeErr := writer.WriteError(err); writeErr != nil {
		h.logger.Debug("failed to write error frame", "stream_id", id, "error", writeErr)
	}
}
