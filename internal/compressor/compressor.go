// Package compressor wraps zstd so the store can keep values compressed on
// disk without every caller having to reason about frame headers or
// decompression-bomb sizes. It is grounded on the original engine's
// Compressor class: a persistent context reused across calls, and a hard cap
// on the decompressed size pulled from the frame header before the actual
// decompression runs.
package compressor

import (
	"fmt"

	"github.com/DataDog/zstd"
)

// MaxDecompressedSize bounds how large a single value is allowed to grow
// back to. It mirrors the 100MiB cap the original Compressor enforces via
// ZSTD_getFrameContentSize before calling ZSTD_decompress.
const MaxDecompressedSize = 100 * 1024 * 1024

// ErrUnknownSize is returned when a compressed frame does not declare its
// decompressed size (ZSTD_CONTENTSIZE_UNKNOWN).
var ErrUnknownSize = fmt.Errorf("compressor: frame does not declare its decompressed size")

// ErrCorruptFrame is returned when the frame header itself cannot be parsed
// (ZSTD_CONTENTSIZE_ERROR) or the frame fails to decompress.
var ErrCorruptFrame = fmt.Errorf("compressor: frame header is malformed")

// ErrTooLarge is returned when a frame's declared decompressed size exceeds
// MaxDecompressedSize.
var ErrTooLarge = fmt.Errorf("compressor: declared decompressed size exceeds cap")

// These sentinel return values from zstd.GetFrameContentSize mirror the C
// ZSTD_CONTENTSIZE_UNKNOWN / ZSTD_CONTENTSIZE_ERROR constants.
const (
	contentSizeUnknown = ^uint64(0)     // 0xFFFFFFFFFFFFFFFF
	contentSizeError   = ^uint64(0) - 1 // 0xFFFFFFFFFFFFFFFE
)

// Compressor holds reusable compression/decompression contexts. It is safe
// for concurrent use: the underlying zstd.Ctx serializes internally, and the
// store only ever calls through it while already holding its own lock.
type Compressor struct {
	level int
	cctx  zstd.Ctx
	dctx  zstd.Ctx
}

// New creates a Compressor using the given zstd compression level. Levels
// outside zstd's supported range are clamped by the library itself.
func New(level int) *Compressor {
	return &Compressor{
		level: level,
		cctx:  zstd.NewCtx(),
		dctx:  zstd.NewCtx(),
	}
}

// Level reports the configured compression level.
func (c *Compressor) Level() int { return c.level }

// Compress returns data compressed at the Compressor's configured level.
// Empty input yields empty output rather than a zero-length zstd frame.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	out, err := c.cctx.CompressLevel(nil, data, c.level)
	if err != nil {
		return nil, fmt.Errorf("compressor: compress: %w", err)
	}
	return out, nil
}

// Decompress inflates a zstd frame previously produced by Compress. It reads
// the frame's declared content size first and refuses to decompress a frame
// that doesn't declare one, declares an invalid one, or declares a size past
// MaxDecompressedSize — guarding against decompression-bomb payloads.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	size, err := zstd.GetFrameContentSize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	switch size {
	case contentSizeUnknown:
		return nil, ErrUnknownSize
	case contentSizeError:
		return nil, ErrCorruptFrame
	}
	if size > MaxDecompressedSize {
		return nil, ErrTooLarge
	}

	out, err := c.dctx.Decompress(make([]byte, 0, size), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	return out, nil
}
