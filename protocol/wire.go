package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const contentLengthHeader = "Content-Length:"

// maxFrameSize bounds a single message so a corrupt length header cannot make
// the reader allocate unbounded memory.
const maxFrameSize = 16 << 20

// WriteFrame writes one Content-Length framed payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "%s %d\r\n\r\n", contentLengthHeader, len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// FrameReader reads Content-Length framed payloads from a stream.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r in a FrameReader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next reads headers until the blank separator line, then reads exactly the
// announced number of payload bytes. Unknown headers are skipped. Returns
// io.EOF when the stream ends cleanly between frames.
func (fr *FrameReader) Next() ([]byte, error) {
	length := -1

	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && length == -1 && strings.TrimSpace(line) == "" {
				return nil, io.EOF
			}
			return nil, err
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if length >= 0 {
				break
			}
			// Blank line before any header; tolerate and keep scanning.
			continue
		}

		if rest, ok := cutHeader(trimmed); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length header %q: %w", trimmed, err)
			}
			length = n
		}
	}

	if length < 0 || length > maxFrameSize {
		return nil, fmt.Errorf("unreasonable frame length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// cutHeader matches the Content-Length header case-insensitively, the way
// the worker emits it.
func cutHeader(line string) (string, bool) {
	if len(line) < len(contentLengthHeader) {
		return "", false
	}
	if !strings.EqualFold(line[:len(contentLengthHeader)], contentLengthHeader) {
		return "", false
	}
	return line[len(contentLengthHeader):], true
}
