package sse

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/testutil"
)

type noFlushWriter struct {
	http.ResponseWriter
}

func newRecorderWriter(t *testing.T) (*Writer, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)
	return w, rec
}

func TestNewWriterSetsStreamingHeaders(t *testing.T) {
	_, rec := newRecorderWriter(t)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestNewWriterRequiresFlusher(t *testing.T) {
	_, err := NewWriter(noFlushWriter{httptest.NewRecorder()})
	require.Error(t, err)
}

func TestWriteChunkFrame(t *testing.T) {
	w, rec := newRecorderWriter(t)

	require.NoError(t, w.WriteChunk(backend.ContentChunk("hello")))

	frames := testutil.DecodeFrames(t, testutil.ParseSSEFrames(t, rec.Body.String()))
	require.Len(t, frames, 1)
	assert.Equal(t, "chat", frames[0].Type)

	var chunk backend.Chunk
	require.NoError(t, json.Unmarshal(frames[0].Data, &chunk))
	require.Len(t, chunk.Choices, 1)
	assert.Equal(t, "hello", chunk.Choices[0].Delta.Content)
}

func TestWriteErrorClientError(t *testing.T) {
	w, rec := newRecorderWriter(t)

	ce := backend.NewClientError(http.StatusTooManyRequests, "rate limit exceeded")
	ce.Details = map[string]any{"type": "rate_limit_error"}
	require.NoError(t, w.WriteError(ce))

	frames := testutil.DecodeFrames(t, testutil.ParseSSEFrames(t, rec.Body.String()))
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, http.StatusTooManyRequests, frames[0].StatusCode)
	assert.Equal(t, "rate limit exceeded", frames[0].Message)
	assert.Equal(t, "rate_limit_error", frames[0].Details["type"])
}

func TestWriteErrorMasksInternalErrors(t *testing.T) {
	w, rec := newRecorderWriter(t)

	require.NoError(t, w.WriteError(errors.New("pgx: connection refused")))

	frames := testutil.DecodeFrames(t, testutil.ParseSSEFrames(t, rec.Body.String()))
	require.Len(t, frames, 1)
	assert.Equal(t, http.StatusInternalServerError, frames[0].StatusCode)
	assert.Equal(t, "Internal server error", frames[0].Message)
	assert.NotContains(t, rec.Body.String(), "pgx")
}

func TestMultipleFramesStayDelimited(t *testing.T) {
	w, rec := newRecorderWriter(t)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, w.WriteChunk(backend.ContentChunk(text)))
	}

	frames := testutil.ParseSSEFrames(t, rec.Body.String())
	assert.Len(t, frames, 3)
	assert.True(t, strings.HasSuffix(rec.Body.String(), "\n\n"))
}
