package flatcore

import (
	"errors"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireViolation runs fn and checks that it panics with target.
func requireViolation(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic wrapping %v", target)
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.ErrorIs(t, err, target)
	}()
	fn()
}

func live(b *Builder) []byte {
	return b.Bytes[b.Head():]
}

func TestByteVectorLayout(t *testing.T) {
	b := NewBuilder(0)
	b.StartVector(1, 1, 1)
	assert.Equal(t, []byte{0, 0, 0}, live(b))
	b.PrependByte(1)
	assert.Equal(t, []byte{1, 0, 0, 0}, live(b))
	b.EndVector()
	assert.Equal(t, []byte{1, 0, 0, 0, 1, 0, 0, 0}, live(b))
}

func TestStringLayout(t *testing.T) {
	b := NewBuilder(0)
	b.CreateString("foo")
	assert.Equal(t, []byte{3, 0, 0, 0, 'f', 'o', 'o', 0}, live(b))
	b.CreateString("moop")
	assert.Equal(t, []byte{
		4, 0, 0, 0, 'm', 'o', 'o', 'p', 0, 0, 0, 0, // terminator and padding
		3, 0, 0, 0, 'f', 'o', 'o', 0,
	}, live(b))
}

func TestByteStringLayout(t *testing.T) {
	a, b := NewBuilder(0), NewBuilder(0)
	a.CreateString("moop")
	off := b.CreateByteString([]byte("moop"))
	assert.Equal(t, live(a), live(b))

	b.StartTable()
	b.AddOffset(0, off)
	b.Finish(b.EndTable())
	root := GetRoot(b.FinishedBytes())
	assert.Equal(t, []byte("moop"), root.ByteString(0))
	assert.Equal(t, "moop", root.String(0))
}

func TestTableLayout(t *testing.T) {
	t.Run("one int16", func(t *testing.T) {
		b := NewBuilder(0)
		b.StartTable()
		b.AddInt16(0, 0x789A, 0)
		b.EndTable()
		assert.Equal(t, []byte{
			6, 0, // vtable bytes
			8, 0, // object bytes
			6, 0, // offset to value
			6, 0, 0, 0, // soffset to vtable
			0, 0, // padding
			0x9A, 0x78,
		}, live(b))
	})
	t.Run("elided default", func(t *testing.T) {
		b := NewBuilder(0)
		b.StartTable()
		b.AddInt16(0, 0, 0)
		b.EndTable()
		assert.Equal(t, []byte{
			4, 0, // vtable bytes
			4, 0, // object bytes
			4, 0, 0, 0, // soffset to vtable
		}, live(b))
	})
	t.Run("forced default", func(t *testing.T) {
		b := NewBuilder(0)
		b.ForceDefaults(true)
		b.StartTable()
		b.AddInt16(0, 0, 0)
		b.EndTable()
		assert.Equal(t, []byte{
			6, 0,
			8, 0,
			6, 0,
			6, 0, 0, 0,
			0, 0,
			0, 0,
		}, live(b))
	})
}

func TestVtableDeduplication(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	b.AddInt32(0, 1, 0)
	t1 := b.EndTable()
	b.StartTable()
	b.AddInt32(0, 2, 0)
	t2 := b.EndTable()
	require.Len(t, b.vtables, 1)

	b.StartTable()
	b.AddInt32(0, 3, 0)
	b.AddInt16(1, 3, 0)
	t3 := b.EndTable()
	require.Len(t, b.vtables, 2)

	b.Finish(t3)
	buf := b.FinishedBytes()
	at := func(off UOffsetT) Table { return Table{Bytes: buf, Pos: UOffsetT(len(buf)) - off} }

	assert.Equal(t, at(t1).vtable(), at(t2).vtable())
	assert.NotEqual(t, at(t1).vtable(), at(t3).vtable())
	assert.Equal(t, int32(1), GetScalar(at(t1), 0, int32(0)))
	assert.Equal(t, int32(2), GetScalar(at(t2), 0, int32(0)))
	root := GetRoot(buf)
	assert.Equal(t, int32(3), GetScalar(root, 0, int32(0)))
	assert.Equal(t, int16(3), GetScalar(root, 1, int16(0)))
}

func TestVtableDeduplicationMixedWidths(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	b.AddByte(0, 1, 0)
	b.AddInt64(1, 2, 0)
	t1 := b.EndTable()
	b.StartTable()
	b.AddByte(0, 3, 0)
	b.AddInt64(1, 4, 0)
	t2 := b.EndTable()
	require.Len(t, b.vtables, 1)

	b.StartTable()
	b.AddOffset(0, t1)
	b.AddOffset(1, t2)
	b.Finish(b.EndTable())
	buf := b.FinishedBytes()
	at := func(off UOffsetT) Table { return Table{Bytes: buf, Pos: UOffsetT(len(buf)) - off} }

	a, c := at(t1), at(t2)
	assert.Equal(t, a.vtable(), c.vtable())
	assert.Equal(t, a.FieldOffset(0), c.FieldOffset(0))
	assert.Equal(t, byte(1), GetScalar(a, 0, byte(0)))
	assert.Equal(t, int64(2), GetScalar(a, 1, int64(0)))
	assert.Equal(t, byte(3), GetScalar(c, 0, byte(0)))
	assert.Equal(t, int64(4), GetScalar(c, 1, int64(0)))
}

func TestTrailingAbsentSlotsShareVtable(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	b.AddInt32(0, 7, 0)
	b.EndTable()
	b.StartTable()
	b.AddInt32(0, 8, 0)
	b.AddInt32(1, 0, 0)
	b.AddOffset(2, 0)
	b.EndTable()
	assert.Len(t, b.vtables, 1)
}

func TestForwardCompatibleReads(t *testing.T) {
	// written by an older schema that only knew slots 0 and 1
	b := NewBuilder(0)
	b.StartTable()
	b.AddInt32(0, 10, 0)
	b.AddBool(1, true, false)
	b.Finish(b.EndTable())
	root := GetRoot(b.FinishedBytes())

	assert.Equal(t, int32(10), GetScalar(root, 0, int32(0)))
	assert.True(t, GetScalar(root, 1, false))
	assert.Equal(t, int64(-5), GetScalar(root, 2, int64(-5)))
	assert.Equal(t, "", root.String(3))
	assert.Nil(t, root.ByteString(3))
	assert.True(t, root.Nested(4).IsNil())
	assert.Equal(t, 0, root.VectorLen(5))
	assert.Equal(t, 0, GetVector[int32](root, 5).Len())
	assert.Equal(t, Union{}, root.Union(6, 7))
	_, ok := root.Struct(8)
	assert.False(t, ok)
	assert.False(t, MutateScalar(root, 2, int64(1)))
}

func TestBackwardCompatibleReads(t *testing.T) {
	// written by a newer schema; an older reader only asks for slot 0 and 1
	b := NewBuilder(0)
	s := b.CreateString("new field")
	b.StartTable()
	b.AddInt32(0, 1, 0)
	b.AddInt32(1, 2, 0)
	b.AddOffset(2, s)
	b.AddFloat64(3, 1.5, 0)
	b.Finish(b.EndTable())
	root := GetRoot(b.FinishedBytes())

	assert.Equal(t, int32(1), GetScalar(root, 0, int32(0)))
	assert.Equal(t, int32(2), GetScalar(root, 1, int32(0)))
}

func TestScalarRoundTrip(t *testing.T) {
	f := func(a int32, c int16, u uint64, x float64, y float32, flag bool, s string) bool {
		b := NewBuilder(0)
		str := b.CreateString(s)
		b.StartTable()
		b.AddInt32(0, a, 0)
		b.AddInt16(1, c, 0)
		b.AddUint64(2, u, 0)
		b.AddFloat64(3, x, 0)
		b.AddFloat32(4, y, 0)
		b.AddBool(5, flag, false)
		b.AddOffset(6, str)
		b.Finish(b.EndTable())

		root, err := Open(b.FinishedBytes(), ReadOptions{Verify: verifyScalars})
		if err != nil {
			return false
		}
		return GetScalar(root, 0, int32(0)) == a &&
			GetScalar(root, 1, int16(0)) == c &&
			GetScalar(root, 2, uint64(0)) == u &&
			GetScalar(root, 3, float64(0)) == x &&
			GetScalar(root, 4, float32(0)) == y &&
			GetScalar(root, 5, false) == flag &&
			root.String(6) == s
	}
	require.NoError(t, quick.Check(f, nil))
}

func verifyScalars(v *Verifier, t Table) error {
	return errors.Join(
		v.Field(t, 0, 4, 4),
		v.Field(t, 1, 2, 2),
		v.Field(t, 2, 8, 8),
		v.Field(t, 3, 8, 8),
		v.Field(t, 4, 4, 4),
		v.Field(t, 5, 1, 1),
		v.String(t, 6),
	)
}

type level int16

func TestNamedScalarTypes(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	AddScalar(b, 0, level(-3), level(0))
	b.Finish(b.EndTable())
	root := GetRoot(b.FinishedBytes())

	assert.Equal(t, level(-3), GetScalar(root, 0, level(0)))
	assert.True(t, MutateScalar(root, 0, level(9)))
	assert.Equal(t, int16(9), GetScalar(root, 0, int16(0)))
}

func TestSharedStrings(t *testing.T) {
	b := NewBuilder(0)
	a1 := b.CreateSharedString("orc")
	a2 := b.CreateSharedString("orc")
	c := b.CreateSharedString("troll")
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, c)

	b.Reset()
	assert.Empty(t, b.sharedStrings)
}

func TestSizePrefixedBuffer(t *testing.T) {
	b := NewBuilder(0)
	b.StartTable()
	b.AddInt64(0, 42, 0)
	b.FinishSizePrefixedWithFileIdentifier(b.EndTable(), []byte("TEST"))
	buf := b.FinishedBytes()

	assert.Equal(t, uint32(len(buf)-SizePrefixLength), GetSizePrefix(buf))
	assert.True(t, BufferHasIdentifier(buf[SizePrefixLength:], "TEST"))
	assert.Equal(t, int64(42), GetScalar(GetSizePrefixedRoot(buf), 0, int64(0)))

	root, err := Open(buf, ReadOptions{SizePrefixed: true, FileIdentifier: "TEST", Verify: VerifyHeaderOnly})
	require.NoError(t, err)
	assert.Equal(t, int64(42), GetScalar(root, 0, int64(0)))

	_, err = Open(buf, ReadOptions{FileIdentifier: "TEST", Verify: VerifyHeaderOnly})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestResetReusesBuilder(t *testing.T) {
	b := NewBuilder(16)
	b.StartTable()
	b.AddInt32(0, 1, 0)
	b.Finish(b.EndTable())
	first := append([]byte{}, b.FinishedBytes()...)

	b.Reset()
	b.StartTable()
	b.AddInt32(0, 1, 0)
	b.Finish(b.EndTable())
	assert.Equal(t, first, b.FinishedBytes())
}

func TestProtocolViolations(t *testing.T) {
	cases := []struct {
		name string
		err  error
		fn   func(b *Builder)
	}{
		{"nested table", ErrNested, func(b *Builder) {
			b.StartTable()
			b.StartTable()
		}},
		{"string inside table", ErrNested, func(b *Builder) {
			b.StartTable()
			b.CreateString("x")
		}},
		{"vector inside vector", ErrNested, func(b *Builder) {
			b.StartVector(4, 1, 4)
			b.StartVector(4, 1, 4)
		}},
		{"field outside table", ErrNotNested, func(b *Builder) {
			b.AddInt32(0, 1, 0)
		}},
		{"field inside vector", ErrNotNested, func(b *Builder) {
			b.StartVector(4, 1, 4)
			b.AddInt32(0, 1, 0)
		}},
		{"end table without start", ErrNotNested, func(b *Builder) {
			b.EndTable()
		}},
		{"end vector without start", ErrNotNested, func(b *Builder) {
			b.EndVector()
		}},
		{"descending slots", ErrSlotOrder, func(b *Builder) {
			b.StartTable()
			b.AddInt32(2, 1, 0)
			b.AddInt32(1, 1, 0)
		}},
		{"repeated slot", ErrSlotOrder, func(b *Builder) {
			b.StartTable()
			b.AddInt32(1, 1, 0)
			b.AddInt32(1, 2, 0)
		}},
		{"elided slot still orders", ErrSlotOrder, func(b *Builder) {
			b.StartTable()
			b.AddInt32(3, 0, 0)
			b.AddInt32(2, 1, 0)
		}},
		{"vector too short", ErrVectorCount, func(b *Builder) {
			b.StartVector(4, 2, 4)
			b.PrependInt32(1)
			b.EndVector()
		}},
		{"vector too long", ErrVectorCount, func(b *Builder) {
			b.StartVector(4, 1, 4)
			b.PrependInt32(1)
			b.PrependInt32(2)
		}},
		{"table field refers into open table", ErrUnfinishedChild, func(b *Builder) {
			b.StartTable()
			off := b.CreateStruct(4, 4, func(b *Builder) { b.PrependInt32(1) })
			b.AddOffset(0, off)
		}},
		{"vector element refers into open vector", ErrUnfinishedChild, func(b *Builder) {
			s := b.CreateString("a")
			b.StartVector(4, 2, 4)
			b.PrependUOffsetT(s)
			b.PrependUOffsetT(b.Offset())
		}},
		{"zero offset in vector", ErrUnfinishedChild, func(b *Builder) {
			b.CreateOffsetVector([]UOffsetT{0})
		}},
		{"struct not inline", ErrInlineStruct, func(b *Builder) {
			b.StartTable()
			off := b.CreateStruct(4, 4, func(b *Builder) { b.PrependInt32(1) })
			b.AddInt32(0, 5, 0)
			b.AddStruct(1, off)
		}},
		{"struct outside table", ErrInlineStruct, func(b *Builder) {
			b.CreateStruct(4, 4, func(b *Builder) { b.PrependInt32(1) })
		}},
		{"struct size mismatch", ErrStructSize, func(b *Builder) {
			b.StartTable()
			b.CreateStruct(4, 8, func(b *Builder) { b.PrependInt32(1) })
		}},
		{"union tag without value", ErrUnionMismatch, func(b *Builder) {
			b.StartTable()
			b.AddUnion(0, 1, 1, 0)
		}},
		{"finish inside table", ErrNested, func(b *Builder) {
			b.StartTable()
			b.Finish(4)
		}},
		{"bad identifier", ErrFileIdentifier, func(b *Builder) {
			b.StartTable()
			b.FinishWithFileIdentifier(b.EndTable(), []byte("ABC"))
		}},
		{"finished bytes before finish", ErrNotFinished, func(b *Builder) {
			b.FinishedBytes()
		}},
		{"finish twice", ErrFinished, func(b *Builder) {
			b.StartTable()
			root := b.EndTable()
			b.Finish(root)
			b.Finish(root)
		}},
		{"write after finish", ErrFinished, func(b *Builder) {
			b.StartTable()
			b.Finish(b.EndTable())
			b.CreateString("late")
		}},
		{"table after finish", ErrFinished, func(b *Builder) {
			b.StartTable()
			b.Finish(b.EndTable())
			b.StartTable()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requireViolation(t, tc.err, func() { tc.fn(NewBuilder(0)) })
		})
	}
}

func TestBuilderUsableAfterReset(t *testing.T) {
	b := NewBuilder(0)
	requireViolation(t, ErrSlotOrder, func() {
		b.StartTable()
		b.AddInt32(1, 1, 0)
		b.AddInt32(0, 1, 0)
	})
	b.Reset()
	b.StartTable()
	b.AddInt32(0, 1, 0)
	b.Finish(b.EndTable())
	assert.Equal(t, int32(1), GetScalar(GetRoot(b.FinishedBytes()), 0, int32(0)))
}

func BenchmarkBuildTable(b *testing.B) {
	builder := NewBuilder(256)
	b.ReportAllocs()
	for b.Loop() {
		builder.Reset()
		s := builder.CreateString("goblin")
		inv := CreateVector(builder, []int16{100, 250, 300})
		builder.StartTable()
		builder.AddInt32(0, 17, 0)
		builder.AddOffset(1, s)
		builder.AddOffset(2, inv)
		builder.AddFloat64(3, 1236.2, 0)
		builder.Finish(builder.EndTable())
	}
}
