package processor

import (
	"bytes"
	"compress/zlib"
)

// compress returns content's zlib-compressed form. ok is false if
// compression failed, in which case the caller should archive the
// original bytes uncompressed rather than drop the record.
func compress(content []byte) (out []byte, ok bool) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(content); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
