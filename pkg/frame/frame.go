// Package frame wraps finished buffers for storage or transport: a small
// header, an optionally zstd compressed payload and a CRC32 trailer.
//
//	0xFB 0x46 | version | flags | payload len u32 | raw len u32 | payload | crc32 u32
//
// All integers are little-endian. The CRC (IEEE) covers every byte after the
// magic up to the end of the payload.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/rawbytedev/flatcore/internal/log"
)

const (
	Magic0  = 0xFB
	Magic1  = 0x46
	Version = 1

	FlagZstd byte = 1 << 0

	HeaderSize  = 12
	TrailerSize = 4
	Overhead    = HeaderSize + TrailerSize

	// DefaultMaxSize bounds the decompressed payload a Decoder accepts.
	DefaultMaxSize = 64 << 20
)

var (
	ErrNotFrame = errors.New("frame: bad magic")
	ErrVersion  = errors.New("frame: unsupported version")
	ErrLength   = errors.New("frame: length mismatch")
	ErrChecksum = errors.New("frame: checksum mismatch")
	ErrTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed part of a frame.
type Header struct {
	Version    byte
	Flags      byte
	PayloadLen uint32
	RawLen     uint32
}

func (h Header) Compressed() bool { return h.Flags&FlagZstd != 0 }

// ParseHeader reads the header at the start of data without checking the
// payload.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than a header", ErrLength, len(data))
	}
	if data[0] != Magic0 || data[1] != Magic1 {
		return Header{}, ErrNotFrame
	}
	h := Header{
		Version:    data[2],
		Flags:      data[3],
		PayloadLen: binary.LittleEndian.Uint32(data[4:]),
		RawLen:     binary.LittleEndian.Uint32(data[8:]),
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}

// Options configures an Encoder.
type Options struct {
	Compress bool
	// Level is the zstd level; zero selects zstd.SpeedDefault.
	Level zstd.EncoderLevel
	// MinSize leaves payloads shorter than this uncompressed.
	MinSize int
}

// Encoder builds frames. It is safe for concurrent use.
type Encoder struct {
	opts Options
	zenc *zstd.Encoder
}

func NewEncoder(opts Options) (*Encoder, error) {
	e := &Encoder{opts: opts}
	if opts.Compress {
		level := opts.Level
		if level == 0 {
			level = zstd.SpeedDefault
		}
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		e.zenc = enc
	}
	return e, nil
}

// Encode frames payload. When compression is enabled but does not shrink
// the payload, the raw bytes are stored instead.
func (e *Encoder) Encode(payload []byte) []byte {
	body, flags := payload, byte(0)
	if e.zenc != nil && len(payload) >= e.opts.MinSize {
		if comp := e.zenc.EncodeAll(payload, make([]byte, 0, len(payload))); len(comp) < len(payload) {
			body, flags = comp, FlagZstd
		}
	}

	out := make([]byte, HeaderSize, len(body)+Overhead)
	out[0], out[1], out[2], out[3] = Magic0, Magic1, Version, flags
	binary.LittleEndian.PutUint32(out[4:], uint32(len(body)))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(payload)))
	out = append(out, body...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(out[2:]))

	log.Base().Debug("encoded frame",
		log.BufferAttr(payload), slog.Int("stored", len(body)), slog.Bool("zstd", flags&FlagZstd != 0))
	return out
}

// WriteFrame encodes payload and writes the frame to w.
func (e *Encoder) WriteFrame(w io.Writer, payload []byte) (int, error) {
	return w.Write(e.Encode(payload))
}

func (e *Encoder) Close() error {
	if e.zenc != nil {
		return e.zenc.Close()
	}
	return nil
}

// Decoder checks and unwraps frames. It is safe for concurrent use.
type Decoder struct {
	maxSize int
	zdec    *zstd.Decoder
}

// NewDecoder returns a Decoder that rejects payloads larger than maxSize
// bytes; zero selects DefaultMaxSize.
func NewDecoder(maxSize int) (*Decoder, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxSize)), zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Decoder{maxSize: maxSize, zdec: dec}, nil
}

// Decode checks data, which must hold exactly one frame, and returns the
// payload. An uncompressed payload aliases data.
func (d *Decoder) Decode(data []byte) ([]byte, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != uint64(h.PayloadLen)+Overhead {
		return nil, fmt.Errorf("%w: header says %d payload bytes, frame has %d", ErrLength, h.PayloadLen, len(data)-Overhead)
	}
	if int64(h.RawLen) > int64(d.maxSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, h.RawLen)
	}
	end := len(data) - TrailerSize
	if crc32.ChecksumIEEE(data[2:end]) != binary.LittleEndian.Uint32(data[end:]) {
		return nil, ErrChecksum
	}

	payload := data[HeaderSize:end]
	if !h.Compressed() {
		if h.RawLen != h.PayloadLen {
			return nil, fmt.Errorf("%w: raw length %d differs from stored %d", ErrLength, h.RawLen, h.PayloadLen)
		}
		return payload, nil
	}
	raw, err := d.zdec.DecodeAll(payload, make([]byte, 0, h.RawLen))
	if err != nil {
		return nil, fmt.Errorf("decompressing frame: %w", err)
	}
	if len(raw) != int(h.RawLen) {
		return nil, fmt.Errorf("%w: decompressed %d bytes, header says %d", ErrLength, len(raw), h.RawLen)
	}
	return raw, nil
}

// ReadFrame reads one frame from r and decodes it.
func (d *Decoder) ReadFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	h, err := ParseHeader(head)
	if err != nil {
		return nil, err
	}
	if int64(h.PayloadLen) > int64(d.maxSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, h.PayloadLen)
	}
	data := make([]byte, HeaderSize+int(h.PayloadLen)+TrailerSize)
	copy(data, head)
	if _, err := io.ReadFull(r, data[HeaderSize:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLength, err)
	}
	return d.Decode(data)
}

func (d *Decoder) Close() {
	d.zdec.Close()
}
