// Package codec implements the read path's Codec component: bytewise
// decompression of tile data plus the optional post-decode integrity
// check bookkeeping may record for a tile.
//
// GZIP and LZ4 are both wired as real compression kinds a tile store
// can pick between, rather than committing to one single codec.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"

	"github.com/arrayfs/fragread/internal/fraglog"
	"github.com/arrayfs/fragread/internal/schema"
)

// Decode decompresses src (a full on-disk compressed tile) according
// to kind, writing the result into dst. dst must already be sized to
// the expected decompressed length (the tile's cell count times its cell
// size for a fixed-size tile; bookkeeping's recorded size for a variable
// payload). Returns the number of bytes
// actually written; for a well-formed fragment this always equals
// len(dst), and a mismatch is reported as a corruption error.
func Decode(kind schema.CompressionKind, src []byte, dst []byte) (int, error) {
	switch kind {
	case schema.NoCompression:
		n := copy(dst, src)
		return n, nil

	case schema.GzipCompression:
		return gunzip(src, dst)

	case schema.LZ4Compression:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			fraglog.Warnf("codec: lz4 decompress failed: %v", err)
			return 0, fmt.Errorf("codec: lz4 decompress: %w", err)
		}
		return n, nil

	default:
		return 0, fmt.Errorf("codec: unsupported compression kind %d", kind)
	}
}

// gunzip is the bytewise GZIP decompressor: gunzip(src, dst) -> out_len.
func gunzip(src []byte, dst []byte) (int, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		fraglog.Warnf("codec: gzip reader: %v", err)
		return 0, fmt.Errorf("codec: gzip reader: %w", err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		fraglog.Warnf("codec: gzip decompress: %v", err)
		return n, fmt.Errorf("codec: gzip decompress: %w", err)
	}

	// Confirm the stream had no more data than dst_cap accounted for.
	var extra [1]byte
	if m, _ := r.Read(extra[:]); m > 0 {
		return n, fmt.Errorf("codec: gzip decompress: out_len exceeds dst_cap %d", len(dst))
	}

	return n, nil
}

// Fletcher32 computes the Fletcher-32 checksum of data, the value
// bookkeeping records per tile for the optional post-decode
// corruption check VerifyFletcher32 performs on read.
func Fletcher32(data []byte) uint32 {
	return fletcher32(data)
}

// VerifyFletcher32 verifies data against an expected Fletcher-32
// checksum, the optional per-tile corruption check bookkeeping may
// attach, as a standalone integrity check rather than a pipeline filter
// (the fragment layout carries no trailing checksum bytes of its own).
func VerifyFletcher32(data []byte, expected uint32) bool {
	return fletcher32(data) == expected
}

func fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32
	length := len(data)
	i := 0
	for ; i+1 < length; i += 2 {
		word := uint32(data[i]) | uint32(data[i+1])<<8
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
	}
	if i < length {
		word := uint32(data[i])
		sum1 = (sum1 + word) % 65535
		sum2 = (sum2 + sum1) % 65535
	}
	return (sum2 << 16) | sum1
}
