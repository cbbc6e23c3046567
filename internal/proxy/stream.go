package proxy

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// streamBufferLimit is the largest single SSE event accepted from upstream.
const streamBufferLimit = 10 * 1024 * 1024

// Stream is a managed upstream SSE stream. The first parsed chunk confirms
// the credential actually worked; Close releases the underlying connection
// exactly once no matter how many paths call it.
type Stream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
	closeErr  error
	onFirst   func()
	sawFirst  bool
}

// NewStream wraps an SSE response body. onFirst, if non-nil, fires once when
// the first data event is parsed.
func NewStream(body io.ReadCloser, onFirst func()) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), streamBufferLimit)
	return &Stream{body: body, scanner: sc, onFirst: onFirst}
}

// Next returns the payload of the next SSE data event. It reports io.EOF
// when the stream ends cleanly and the underlying read error otherwise.
func (s *Stream) Next() ([]byte, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(line[len("data:"):])
		if len(payload) == 0 {
			continue
		}
		if !s.sawFirst {
			s.sawFirst = true
			if s.onFirst != nil {
				s.onFirst()
			}
		}
		return append([]byte(nil), payload...), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close shuts the upstream connection. Safe to call multiple times.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
