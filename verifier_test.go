package flatcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyCatalog(t *testing.T) {
	buf := buildCatalog(t)
	root, err := Open(buf, ReadOptions{Verify: verifyCatalog})
	require.NoError(t, err)
	assert.Equal(t, GetRoot(buf), root)
}

func TestNewOpenerSelectsMode(t *testing.T) {
	assert.IsType(t, VerifyingOpener{}, NewOpener(ReadOptions{}))
	assert.IsType(t, TrustedOpener{}, NewOpener(ReadOptions{Trusted: true}))
}

func TestOpenRequiresVerifier(t *testing.T) {
	b := NewBuilder(0)
	s := b.CreateString("abc")
	b.StartTable()
	b.AddOffset(0, s)
	b.Finish(b.EndTable())
	buf := bytes.Clone(b.FinishedBytes())

	root := GetRoot(buf)
	field := root.Pos + UOffsetT(root.FieldOffset(0))
	WriteUOffsetT(buf[field:], 0x7ffffff0)

	require.NotPanics(t, func() {
		_, err := Open(buf, ReadOptions{})
		assert.ErrorIs(t, err, ErrNoVerifier)
		assert.NotErrorIs(t, err, ErrMalformed)

		_, err = Open(buf, ReadOptions{Verify: func(v *Verifier, t Table) error { return v.String(t, 0) }})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	_, err := Open(buf, ReadOptions{Verify: VerifyHeaderOnly})
	assert.NoError(t, err, "header and vtable are intact")
}

func TestVerifyRejectsTruncation(t *testing.T) {
	buf := buildCatalog(t)
	for n := 0; n < len(buf); n++ {
		_, err := Open(buf[:n], ReadOptions{Verify: verifyCatalog})
		require.ErrorIs(t, err, ErrMalformed, "prefix of %d bytes", n)
	}
}

func TestVerifyCorruption(t *testing.T) {
	buf := buildCatalog(t)
	for i := range buf {
		c := bytes.Clone(buf)
		c[i] ^= 0xA5
		require.NotPanics(t, func() {
			root, err := Open(c, ReadOptions{Verify: verifyCatalog})
			if err != nil {
				return
			}
			for range GetVector[int32](root, 0).All() {
			}
			for range root.Strings(1).All() {
			}
			for _, item := range root.Tables(2).All() {
				_ = GetScalar(item, 0, int32(0))
			}
			for _, s := range root.Structs(3, 8).All() {
				_ = StructScalar[int32](s, 4)
			}
			if u := root.Union(4, 5); !u.Value.IsNil() {
				_ = GetScalar(u.Value, 0, int32(0))
			}
		}, "byte %d", i)
	}
}

func TestVerifyUnterminatedString(t *testing.T) {
	b := NewBuilder(0)
	s := b.CreateString("abc")
	b.StartTable()
	b.AddOffset(0, s)
	b.Finish(b.EndTable())
	buf := bytes.Clone(b.FinishedBytes())
	require.Equal(t, byte(0), buf[len(buf)-1])
	buf[len(buf)-1] = 'x'

	_, err := Open(buf, ReadOptions{Verify: func(v *Verifier, t Table) error { return v.String(t, 0) }})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyUnionWithoutTag(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	child := b.EndTable()
	b.StartTable()
	b.AddOffset(1, child)
	b.Finish(b.EndTable())

	_, err := Open(b.FinishedBytes(), ReadOptions{Verify: func(v *Verifier, t Table) error {
		return v.Union(t, 0, 1, nil)
	}})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyFieldOverrunsTable(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	b.AddInt16(0, 1, 0)
	b.Finish(b.EndTable())

	_, err := Open(b.FinishedBytes(), ReadOptions{Verify: func(v *Verifier, t Table) error {
		// reading slot 0 as an int64 would run past the table
		return v.Field(t, 0, 8, 1)
	}})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRequired(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	b.AddInt32(0, 1, 0)
	b.Finish(b.EndTable())

	fn := func(v *Verifier, t Table) error { return v.Required(t, 1) }
	_, err := Open(b.FinishedBytes(), ReadOptions{Verify: fn})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Open(b.FinishedBytes(), ReadOptions{Verify: fn, Trusted: true})
	assert.NoError(t, err)
}

// chain builds tables nested depth levels deep through slot 0.
func chain(depth int) []byte {
	b := NewBuilder(0)
	var child UOffsetT
	for i := 0; i < depth; i++ {
		b.StartTable()
		b.AddOffset(0, child)
		child = b.EndTable()
	}
	b.Finish(child)
	return b.FinishedBytes()
}

func verifyChain(v *Verifier, t Table) error {
	return v.NestedTable(t, 0, verifyChain)
}

func TestVerifyDepthLimit(t *testing.T) {
	buf := chain(5)
	_, err := Open(buf, ReadOptions{Verify: verifyChain})
	require.NoError(t, err)

	_, err = Open(buf, ReadOptions{Verify: verifyChain, Limits: VerifierOptions{MaxDepth: 3}})
	assert.ErrorIs(t, err, ErrDepthLimit)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyTableLimit(t *testing.T) {
	buf := buildCatalog(t)
	_, err := Open(buf, ReadOptions{Verify: verifyCatalog, Limits: VerifierOptions{MaxTables: 2}})
	assert.ErrorIs(t, err, ErrTableLimit)
}

func TestVerifyBadVtable(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	b.AddInt32(0, 1, 0)
	b.Finish(b.EndTable())
	buf := bytes.Clone(b.FinishedBytes())

	root := GetUOffsetT(buf)
	WriteSOffsetT(buf[root:], -1000)
	_, err := Open(buf, ReadOptions{Verify: VerifyHeaderOnly})
	assert.ErrorIs(t, err, ErrMalformed)

	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, root, verr.Pos)
}
