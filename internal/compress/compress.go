// Package compress provides the zlib compression shared by the wire codecs
// and the document-store repositories, grounded on the original's
// source/utilities/compress_data.py (zlib_compress/zlib_decompress).
package compress

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// Zlib compresses text, returning raw deflate-wrapped bytes.
func Zlib(text string) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(text)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("compress: zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

// Unzlib inverts Zlib, recovering the exact original string.
func Unzlib(data []byte) (string, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("compress: zlib reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("compress: zlib inflate: %w", err)
	}
	return string(out), nil
}
