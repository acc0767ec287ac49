package flatcore

import (
	"errors"
	"fmt"
)

// Builder protocol violations. The Builder panics with an error wrapping one
// of these; recover and use errors.Is to tell them apart.
var (
	ErrNested          = errors.New("flatcore: object serialization must not be nested")
	ErrNotNested       = errors.New("flatcore: operation requires an open table or vector")
	ErrFinished        = errors.New("flatcore: builder is finished, call Reset to reuse it")
	ErrNotFinished     = errors.New("flatcore: buffer is not finished")
	ErrSlotOrder       = errors.New("flatcore: fields must be added in ascending slot order")
	ErrVectorCount     = errors.New("flatcore: vector element count does not match StartVector")
	ErrUnfinishedChild = errors.New("flatcore: offset refers to an object that is not finished")
	ErrInlineStruct    = errors.New("flatcore: struct must be written inline in its table or vector")
	ErrStructSize      = errors.New("flatcore: struct size does not match its declaration")
	ErrFileIdentifier  = errors.New("flatcore: file identifier must be exactly 4 bytes")
	ErrUnionMismatch   = errors.New("flatcore: union tag and value must both be set or both be empty")
	ErrTableTooLarge   = errors.New("flatcore: table exceeds 65535 bytes")
	ErrBufferTooLarge  = errors.New("flatcore: cannot grow buffer beyond 2 gigabytes")
)

// Read-side errors.
var (
	ErrOutOfRange         = errors.New("flatcore: index out of range")
	ErrMalformed          = errors.New("flatcore: malformed buffer")
	ErrIdentifierMismatch = errors.New("flatcore: file identifier mismatch")
	ErrDepthLimit         = errors.New("flatcore: table nesting exceeds depth limit")
	ErrTableLimit         = errors.New("flatcore: buffer holds too many tables")
	ErrNoVerifier         = errors.New("flatcore: verifying open needs a table verifier")
)

func violation(err error, format string, args ...any) {
	panic(fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)))
}

func outOfRange(i, n int) error {
	return fmt.Errorf("%w: index %d, length %d", ErrOutOfRange, i, n)
}

// VerifyError describes why a buffer was rejected. It always matches
// ErrMalformed, plus the more specific Err when one is set.
type VerifyError struct {
	Pos    UOffsetT
	Reason string
	Err    error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%v at byte %d: %s", e.Err, e.Pos, e.Reason)
}

func (e *VerifyError) Unwrap() []error {
	if e.Err == ErrMalformed {
		return []error{ErrMalformed}
	}
	return []error{ErrMalformed, e.Err}
}
