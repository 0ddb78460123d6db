// Package transport implements the CRLF-delimited frame protocol the
// collector and processor speak over a long-lived TCP connection.
package transport

import (
	"bufio"
	"bytes"
	"io"
)

// MaxFrameBytes bounds a single frame before FrameScanner gives up, protecting
// the processor from an unbounded line filling memory.
const MaxFrameBytes = 1 << 20 // 1 MiB

const crlf = "\r\n"

// WriteFrame writes payload followed by the CRLF delimiter. payload itself
// must not contain a bare CRLF.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(w, crlf)
	return err
}

// FrameScanner wraps a bufio.Scanner configured with a CRLF split function,
// trimming the trailing \r\n from each returned token.
type FrameScanner struct {
	scanner *bufio.Scanner
}

// NewFrameScanner returns a FrameScanner reading frames from r.
func NewFrameScanner(r io.Reader) *FrameScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), MaxFrameBytes)
	s.Split(splitCRLF)
	return &FrameScanner{scanner: s}
}

// Scan advances to the next frame. It returns false at EOF or on error; call
// Err to distinguish the two.
func (f *FrameScanner) Scan() bool {
	return f.scanner.Scan()
}

// Bytes returns the most recently scanned frame, CRLF stripped. The
// underlying array may be overwritten by the next call to Scan.
func (f *FrameScanner) Bytes() []byte {
	return f.scanner.Bytes()
}

// Err returns the first non-EOF error encountered by Scan.
func (f *FrameScanner) Err() error {
	return f.scanner.Err()
}

// splitCRLF is a bufio.SplitFunc that splits on \r\n, dropping the
// delimiter from the returned token. A lone \n with no preceding \r is not
// treated as a frame boundary, matching the CRLF-only wire format.
func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte(crlf)); i >= 0 {
		return i + 2, data[0:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
