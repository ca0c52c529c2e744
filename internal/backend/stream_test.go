package backend

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func passthrough(payload string, emit func(Chunk)) (bool, error) {
	emit(ContentChunk(payload))
	return false, nil
}

func TestStreamNextDeliversChunksInOrder(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: one\n\ndata: two\n\n"))
	s := NewStream(body, passthrough)

	for _, want := range []string{"one", "two"} {
		chunk, err := s.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got := chunk.Choices[0].Delta.Content; got != want {
			t.Errorf("content = %q, want %q", got, want)
		}
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("exhausted stream: err = %v, want io.EOF", err)
	}
}

func TestStreamQueuesMultipleEmitsPerPayload(t *testing.T) {
	interpret := func(payload string, emit func(Chunk)) (bool, error) {
		emit(ContentChunk(payload + "-a"))
		emit(ContentChunk(payload + "-b"))
		return false, nil
	}
	s := NewStream(io.NopCloser(strings.NewReader("data: x\n\n")), interpret)

	first, _ := s.Next()
	second, _ := s.Next()
	if first.Choices[0].Delta.Content != "x-a" || second.Choices[0].Delta.Content != "x-b" {
		t.Errorf("got %q then %q", first.Choices[0].Delta.Content, second.Choices[0].Delta.Content)
	}
}

func TestStreamStopsAfterTerminalPayload(t *testing.T) {
	interpret := func(payload string, emit func(Chunk)) (bool, error) {
		emit(FinishChunk(FinishStop))
		return true, nil
	}
	s := NewStream(io.NopCloser(strings.NewReader("data: end\n\ndata: ignored\n\n")), interpret)

	chunk, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if chunk.FinishReason() != FinishStop {
		t.Errorf("finish reason = %q", chunk.FinishReason())
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after terminal: err = %v, want io.EOF", err)
	}
}

func TestStreamPropagatesInterpreterError(t *testing.T) {
	interpret := func(payload string, emit func(Chunk)) (bool, error) {
		return false, fmt.Errorf("bad payload %q", payload)
	}
	s := NewStream(io.NopCloser(strings.NewReader("data: junk\n\n")), interpret)

	if _, err := s.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want interpreter error", err)
	}
	// The stream stays terminal after an error.
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after error: err = %v, want io.EOF", err)
	}
}
