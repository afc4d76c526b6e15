package spec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compress gzip-compresses data, or returns it unchanged for
// CompressionNone. Matches the internal-directory compression PMTiles v3
// allows; tile body compression is not attempted here since this repo's
// tiles are already JPEG/PNG-encoded.
func Compress(data []byte, compression Compression) ([]byte, error) {
	if compression == CompressionNone {
		return data, nil
	}
	if compression != CompressionGzip {
		return nil, fmt.Errorf("pmarchive: compression not supported (%v)", compression)
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("pmarchive: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("pmarchive: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress is Compress's inverse.
func Decompress(data []byte, compression Compression) ([]byte, error) {
	if compression == CompressionNone {
		return data, nil
	}
	if compression != CompressionGzip {
		return nil, fmt.Errorf("pmarchive: compression not supported (%v)", compression)
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("pmarchive: decompress: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pmarchive: decompress: %w", err)
	}
	return out, nil
}
