package adapters

import (
	"bufio"
	"io"
	"strings"
)

// doneSentinel terminates an SSE stream.
const doneSentinel = "[DONE]"

// SSEReader yields the data payloads of a server-sent event stream.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader wraps a provider response body. The scanner buffer is
// enlarged because tool-call argument chunks can be sizable.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEReader{scanner: scanner}
}

// Next returns the next "data:" payload. It returns io.EOF when the
// stream finishes, either via the [DONE] sentinel or the body closing.
func (s *SSEReader) Next() ([]byte, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// event: lines, comments and keep-alive blanks.
			continue
		}
		data := strings.TrimPrefix(line, "data:")
		data = strings.TrimPrefix(data, " ")
		if data == doneSentinel {
			return nil, io.EOF
		}
		if data == "" {
			continue
		}
		return []byte(data), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
