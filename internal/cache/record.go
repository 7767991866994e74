package cache

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Record layout:
//
//	[0]     format version
//	[1]     flags
//	[2:10]  writtenAt, unix milliseconds, big endian
//	[10:18] payload size before compression
//	[18:]   payload
const (
	recordVersion    = 1
	recordHeaderSize = 18

	flagCompressed = 1 << 0

	// Payloads at or below this size are stored as-is.
	compressThreshold = 1024
)

type recordHeader struct {
	Compressed bool
	WrittenAt  time.Time
	Size       int64
}

// codec encodes and decodes stored records.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec(level int) (*codec, error) {
	c := &codec{}

	var err error
	if level > 0 {
		c.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	// The decoder is always available so records written with compression
	// stay readable after it is turned off.
	c.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return c, nil
}

func (c *codec) close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	c.decoder.Close()
}

func (c *codec) encode(payload []byte, now time.Time) []byte {
	body := payload
	var flags byte
	if c.encoder != nil && len(payload) > compressThreshold {
		compressed := c.encoder.EncodeAll(payload, nil)
		if len(compressed) < len(payload) {
			body = compressed
			flags |= flagCompressed
		}
	}

	out := make([]byte, recordHeaderSize+len(body))
	out[0] = recordVersion
	out[1] = flags
	binary.BigEndian.PutUint64(out[2:10], uint64(now.UnixMilli()))
	binary.BigEndian.PutUint64(out[10:18], uint64(len(payload)))
	copy(out[recordHeaderSize:], body)
	return out
}

func parseHeader(val []byte) (recordHeader, error) {
	if len(val) < recordHeaderSize || val[0] != recordVersion {
		return recordHeader{}, ErrCacheCorrupted
	}
	return recordHeader{
		Compressed: val[1]&flagCompressed != 0,
		WrittenAt:  time.UnixMilli(int64(binary.BigEndian.Uint64(val[2:10]))),
		Size:       int64(binary.BigEndian.Uint64(val[10:18])),
	}, nil
}

func (c *codec) decode(val []byte) ([]byte, recordHeader, error) {
	hdr, err := parseHeader(val)
	if err != nil {
		return nil, hdr, err
	}

	body := val[recordHeaderSize:]
	if !hdr.Compressed {
		out := make([]byte, len(body))
		copy(out, body)
		return out, hdr, nil
	}

	out, err := c.decoder.DecodeAll(body, make([]byte, 0, hdr.Size))
	if err != nil {
		return nil, hdr, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if int64(len(out)) != hdr.Size {
		return nil, hdr, fmt.Errorf("%w: size mismatch", ErrCacheCorrupted)
	}
	return out, hdr, nil
}
