package backend

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxSSELineSize is the largest single SSE line accepted (1 MB). The default
// bufio.Scanner limit of 64 KiB is too small for large tool-call argument
// payloads. A longer line surfaces as a wrapped bufio.ErrTooLong from Next.
const maxSSELineSize = 1 * 1024 * 1024

// SSEScanner reads Server-Sent Events from a backend response body. It
// skips comments and empty lines, joins multi-line data fields and treats
// the OpenAI [DONE] sentinel as end of stream.
type SSEScanner struct {
	scanner *bufio.Scanner
}

// NewSSEScanner creates a scanner over the given reader.
func NewSSEScanner(r io.Reader) *SSEScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{scanner: sc}
}

// Next returns the next SSE data payload. It returns io.EOF when the stream
// ends or the [DONE] sentinel arrives. Consecutive data lines of one event
// are joined with newlines.
func (s *SSEScanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line ends the current event.
		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return "", io.EOF
			}
			dataLines = append(dataLines, data)
			continue
		}

		// Other SSE fields (event:, id:, retry:) carry no payload here.
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("sse scanner: %w", err)
	}
	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}
	return "", io.EOF
}
