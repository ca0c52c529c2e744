package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

// ParseSSEFrames splits an SSE response body into per-event data payloads.
//
// Handles the W3C SSE framing rules this stream uses:
//   - Multiple "data:" lines are joined with newline
//   - Empty line terminates an event
//   - Comments starting with ":" are ignored
func ParseSSEFrames(t *testing.T, body string) []string {
	t.Helper()

	var frames []string
	scanner := bufio.NewScanner(strings.NewReader(body))

	var dataLines []string
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			if len(dataLines) > 0 {
				frames = append(frames, strings.Join(dataLines, "\n"))
				dataLines = nil
			}

		default:
			if !strings.HasPrefix(line, ":") {
				t.Fatalf("SSE parse error at line %d: unexpected SSE line: %q", lineNum, line)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}
	if len(dataLines) > 0 {
		t.Fatalf("SSE stream ended without terminating frame (missing empty line)")
	}

	return frames
}

// DecodeFrames unmarshals each frame payload into the envelope shape used on
// the wire, keyed by the "type" field.
type Frame struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Details    map[string]any  `json:"details"`
	StatusCode int             `json:"statusCode"`
}

// DecodeFrames parses every SSE data payload as a JSON frame envelope.
func DecodeFrames(t *testing.T, payloads []string) []Frame {
	t.Helper()

	frames := make([]Frame, 0, len(payloads))
	for i, p := range payloads {
		var f Frame
		if err := json.Unmarshal([]byte(p), &f); err != nil {
			t.Fatalf("frame %d is not valid JSON: %v\npayload: %s", i, err, p)
		}
		frames = append(frames, f)
	}
	return frames
}
