package backend

import (
	"errors"
	"io"
)

// InterpretFunc translates one raw SSE payload into zero or more normalized
// chunks via emit. Returning terminal=true marks the stream finished;
// subsequent payloads are not read. Implementations may hold per-stream
// state (Anthropic's envelope requires it), so a fresh InterpretFunc is
// built for every stream.
type InterpretFunc func(payload string, emit func(Chunk)) (terminal bool, err error)

// Stream delivers normalized chunks from one backend streaming response.
// It is not safe for concurrent use.
type Stream struct {
	body      io.ReadCloser
	scanner   *SSEScanner
	interpret InterpretFunc
	queue     []Chunk
	terminal  bool
}

// NewStream wraps a streaming response body with a per-stream interpreter.
func NewStream(body io.ReadCloser, interpret InterpretFunc) *Stream {
	return &Stream{
		body:      body,
		scanner:   NewSSEScanner(body),
		interpret: interpret,
	}
}

// Next returns the next normalized chunk, or io.EOF when the stream is
// exhausted. Interpreter and transport errors end the stream.
func (s *Stream) Next() (Chunk, error) {
	for len(s.queue) == 0 {
		if s.terminal {
			return Chunk{}, io.EOF
		}

		payload, err := s.scanner.Next()
		if err != nil {
			s.terminal = true
			if errors.Is(err, io.EOF) {
				continue
			}
			return Chunk{}, err
		}

		terminal, err := s.interpret(payload, func(c Chunk) {
			s.queue = append(s.queue, c)
		})
		if err != nil {
			s.terminal = true
			return Chunk{}, err
		}
		if terminal {
			s.terminal = true
		}
	}

	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk, nil
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	return s.body.Close()
}
