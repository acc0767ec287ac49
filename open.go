package flatcore

import (
	"encoding/binary"
	"fmt"
)

// GetRoot returns the root table of a finished buffer without any checks.
func GetRoot(buf []byte) Table {
	return Table{Bytes: buf, Pos: GetUOffsetT(buf)}
}

// GetSizePrefixedRoot is GetRoot for buffers built with FinishSizePrefixed.
func GetSizePrefixedRoot(buf []byte) Table {
	n := GetUOffsetT(buf[SizePrefixLength:])
	return Table{Bytes: buf, Pos: n + SizePrefixLength}
}

// GetSizePrefix returns the size stored in front of a size-prefixed buffer.
func GetSizePrefix(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// GetBufferIdentifier returns the 4-byte file identifier of buf.
func GetBufferIdentifier(buf []byte) string {
	return string(buf[SizeUOffsetT : SizeUOffsetT+FileIdentifierLength])
}

// BufferHasIdentifier reports whether buf carries the file identifier id.
func BufferHasIdentifier(buf []byte, id string) bool {
	if len(buf) < SizeUOffsetT+FileIdentifierLength {
		return false
	}
	return GetBufferIdentifier(buf) == id
}

// ReadOptions selects how a buffer is opened.
type ReadOptions struct {
	// Trusted skips verification. Only use it for buffers this process
	// built itself or received over an authenticated channel.
	Trusted      bool
	SizePrefixed bool
	// FileIdentifier, when set, must match the buffer's identifier.
	FileIdentifier string
	// Verify checks the root table's fields. It is required unless
	// Trusted is set; VerifyHeaderOnly opts out of field checks explicitly.
	Verify TableVerifier
	Limits VerifierOptions
}

// Opener turns raw bytes into a root table view.
type Opener interface {
	Open(buf []byte) (Table, error)
}

// NewOpener returns the Opener described by opts. Verification is the
// default.
func NewOpener(opts ReadOptions) Opener {
	if opts.Trusted {
		return TrustedOpener{SizePrefixed: opts.SizePrefixed}
	}
	return VerifyingOpener{
		SizePrefixed:   opts.SizePrefixed,
		FileIdentifier: opts.FileIdentifier,
		Verify:         opts.Verify,
		Limits:         opts.Limits,
	}
}

// Open opens buf according to opts.
func Open(buf []byte, opts ReadOptions) (Table, error) {
	return NewOpener(opts).Open(buf)
}

// TrustedOpener performs no checks. A malformed buffer may make later
// reads panic.
type TrustedOpener struct {
	SizePrefixed bool
}

func (o TrustedOpener) Open(buf []byte) (Table, error) {
	if o.SizePrefixed {
		return GetSizePrefixedRoot(buf), nil
	}
	return GetRoot(buf), nil
}

// VerifyingOpener checks the whole buffer before handing out the root.
// Opening fails with ErrNoVerifier when Verify is nil.
type VerifyingOpener struct {
	SizePrefixed   bool
	FileIdentifier string
	Verify         TableVerifier
	Limits         VerifierOptions
}

func (o VerifyingOpener) Open(buf []byte) (Table, error) {
	if o.Verify == nil {
		return Table{}, fmt.Errorf("%w: use a generated verifier, schema.Open or Codec.Decode, or set Trusted", ErrNoVerifier)
	}
	v := NewVerifier(buf, o.Limits)
	base := UOffsetT(0)
	if o.SizePrefixed {
		if len(buf) < SizePrefixLength {
			return Table{}, v.fail(0, ErrMalformed, "buffer too short for size prefix")
		}
		size := uint64(GetSizePrefix(buf))
		if size > uint64(len(buf)-SizePrefixLength) {
			return Table{}, v.fail(0, ErrMalformed, "size prefix %d exceeds buffer of %d bytes", size, len(buf))
		}
		buf = buf[:SizePrefixLength+size]
		v = NewVerifier(buf, o.Limits)
		base = SizePrefixLength
	}

	if o.FileIdentifier != "" {
		if len(buf) < int(base)+SizeUOffsetT+FileIdentifierLength {
			return Table{}, v.fail(base, ErrMalformed, "buffer too short for file identifier")
		}
		if got := GetBufferIdentifier(buf[base:]); got != o.FileIdentifier {
			return Table{}, v.fail(base+SizeUOffsetT, ErrIdentifierMismatch, "got %q, want %q", got, o.FileIdentifier)
		}
	}

	root, err := v.offsetAt(base)
	if err != nil {
		return Table{}, err
	}
	if err := v.VerifyTable(root, o.Verify); err != nil {
		return Table{}, err
	}
	return Table{Bytes: buf, Pos: root}, nil
}
