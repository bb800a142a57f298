package cache

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to the cache payload.
type Compression uint8

const (
	// None stores the payload as is.
	None Compression = iota
	// LZ4 compresses the payload as a single LZ4 block.
	LZ4
	// Zstd compresses the payload as a single zstd frame.
	Zstd
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression converts a name as returned by Compression.String.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zst":
		return Zstd, nil
	}
	return None, fmt.Errorf("unknown compression %q", name)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxPayload))
}

// compress returns the compressed payload together with the algorithm
// actually used. Data that LZ4 cannot shrink is stored uncompressed.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	switch c {
	case None:
		return data, None, nil
	case LZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, c, err
		}
		if n == 0 || n >= len(data) {
			return data, None, nil
		}
		return dst[:n], LZ4, nil
	case Zstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, c, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), Zstd, nil
	}
	return nil, c, fmt.Errorf("unknown compression %d", uint8(c))
}

// maxLZ4Ratio bounds the expansion of an LZ4 block, every length byte of a
// match adding at most 255 output bytes.
const maxLZ4Ratio = 255

// decompress expands body into exactly size bytes. The declared size is
// checked against what body can plausibly hold before anything is allocated.
func decompress(body []byte, c Compression, size int) ([]byte, error) {
	switch c {
	case None:
		return body, nil
	case LZ4:
		if uint64(size) > maxLZ4Ratio*uint64(len(body))+16 {
			return nil, fmt.Errorf("%d bytes cannot expand to %d", len(body), size)
		}
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	case Zstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)

		var h zstd.Header
		if err := h.Decode(body); err != nil {
			return nil, err
		}
		if h.HasFCS && h.FrameContentSize != uint64(size) {
			return nil, fmt.Errorf("frame holds %d bytes, want %d", h.FrameContentSize, size)
		}
		// The decoder memory limit bounds the output, size is only trusted
		// once the frame has been decoded.
		return dec.DecodeAll(body, nil)
	}
	return nil, fmt.Errorf("unknown compression %d", uint8(c))
}
