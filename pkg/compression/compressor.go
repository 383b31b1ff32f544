// Package compression wraps table files written by the object storage and
// file destinations in a streaming compressor.
//
// # Algorithm Selection
//
//   - Snappy/S2: fastest, moderate ratio
//   - LZ4: very fast, decent ratio
//   - Zstd: best ratio at good speed
//   - Gzip: widest compatibility (BigQuery and Snowflake load it natively)
//
// # Basic Usage
//
//	w, err := compression.NewWriter(file, compression.Gzip, compression.Default)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	_, err = w.Write(data)
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	None    Algorithm = "none"
	Gzip    Algorithm = "gzip"
	Snappy  Algorithm = "snappy"
	LZ4     Algorithm = "lz4"
	Zstd    Algorithm = "zstd"
	S2      Algorithm = "s2"
	Deflate Algorithm = "deflate"
)

// Level trades speed for ratio
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Better improves compression at cost of speed
	Better Level = 7
	// Best maximizes compression ratio
	Best Level = 9
)

// Parse maps a configuration value onto an Algorithm. Empty means None.
func Parse(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return None, nil
	case None, Gzip, Snappy, LZ4, Zstd, S2, Deflate:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Extension returns the file suffix for the algorithm, including the dot,
// or "" for None
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	case S2:
		return ".s2"
	case Deflate:
		return ".deflate"
	default:
		return ""
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps dst. Close flushes the compressor but never closes dst.
func NewWriter(dst io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, mapGzipLevel(level))
	case Deflate:
		return flate.NewWriter(dst, mapGzipLevel(level))
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		opts := []s2.WriterOption{}
		switch {
		case level >= Best:
			opts = append(opts, s2.WriterBestCompression())
		case level >= Better:
			opts = append(opts, s2.WriterBetterCompression())
		}
		return s2.NewWriter(dst, opts...), nil
	case Zstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(level)))
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// NewReader wraps src for decompression
func NewReader(src io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		return gzip.NewReader(src)
	case Deflate:
		return flate.NewReader(src), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case Zstd:
		d, err := zstd.NewReader(src)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// Compress compresses data in memory
func Compress(data []byte, alg Algorithm, level Level) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, alg, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress
func Decompress(data []byte, alg Algorithm) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(data), alg)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	case Better:
		return 7
	default:
		return gzip.DefaultCompression
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Better:
		return lz4.Level6
	case Best:
		return lz4.Level9
	default:
		return lz4.Level4
	}
}
