package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/jerling2/handshake-pipeline/internal/compress"
)

// compressB64 returns base64(zlib(utf8(text))), the wire representation
// every compressed text field in this system shares.
func compressB64(text string) (string, error) {
	raw, err := compress.Zlib(text)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// decompressB64 inverts compressB64, recovering the exact original string.
func decompressB64(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("codec: base64 decode: %w", err)
	}
	return compress.Unzlib(raw)
}
