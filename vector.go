package flatcore

import (
	"iter"

	"github.com/rawbytedev/flatcore/internal/common"
)

// Vector is a view of a vector of scalars. Pos is the position of the
// length prefix; the zero Vector is empty.
type Vector[T Scalar] struct {
	Bytes []byte
	Pos   UOffsetT
}

func vectorLen(buf []byte, pos UOffsetT) int {
	if buf == nil {
		return 0
	}
	return int(GetUOffsetT(buf[pos:]))
}

// Len returns the number of elements.
func (v Vector[T]) Len() int { return vectorLen(v.Bytes, v.Pos) }

func (v Vector[T]) elem(i int) (UOffsetT, error) {
	n := v.Len()
	if i < 0 || i >= n {
		return 0, outOfRange(i, n)
	}
	return v.Pos + SizeUOffsetT + UOffsetT(i*common.SizeOf[T]()), nil
}

// Get returns element i.
func (v Vector[T]) Get(i int) (T, error) {
	p, err := v.elem(i)
	if err != nil {
		var z T
		return z, err
	}
	return Read[T](v.Bytes[p:]), nil
}

// All iterates the elements in order. Each call starts a fresh pass.
func (v Vector[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		size := UOffsetT(common.SizeOf[T]())
		p := v.Pos + SizeUOffsetT
		for i, n := 0, v.Len(); i < n; i++ {
			if !yield(i, Read[T](v.Bytes[p:])) {
				return
			}
			p += size
		}
	}
}

// Unsafe returns the elements as a slice that aliases the buffer. It
// reports false when that is not possible on this machine or for this
// particular buffer; callers then fall back to Get or All.
func (v Vector[T]) Unsafe() ([]T, bool) {
	n := v.Len()
	if n == 0 {
		return nil, true
	}
	start := v.Pos + SizeUOffsetT
	return common.Alias[T](v.Bytes[start:], n)
}

// TableVector is a view of a vector of tables.
type TableVector struct {
	Bytes []byte
	Pos   UOffsetT
}

func (v TableVector) Len() int { return vectorLen(v.Bytes, v.Pos) }

// Get returns the table at index i.
func (v TableVector) Get(i int) (Table, error) {
	n := v.Len()
	if i < 0 || i >= n {
		return Table{}, outOfRange(i, n)
	}
	return v.at(i), nil
}

func (v TableVector) at(i int) Table {
	p := v.Pos + SizeUOffsetT + UOffsetT(i*SizeUOffsetT)
	return Table{Bytes: v.Bytes, Pos: p + GetUOffsetT(v.Bytes[p:])}
}

func (v TableVector) All() iter.Seq2[int, Table] {
	return func(yield func(int, Table) bool) {
		for i, n := 0, v.Len(); i < n; i++ {
			if !yield(i, v.at(i)) {
				return
			}
		}
	}
}

// StringVector is a view of a vector of strings. Returned strings alias
// the buffer.
type StringVector struct {
	Bytes []byte
	Pos   UOffsetT
}

func (v StringVector) Len() int { return vectorLen(v.Bytes, v.Pos) }

func (v StringVector) Get(i int) (string, error) {
	n := v.Len()
	if i < 0 || i >= n {
		return "", outOfRange(i, n)
	}
	return v.at(i), nil
}

func (v StringVector) at(i int) string {
	p := v.Pos + SizeUOffsetT + UOffsetT(i*SizeUOffsetT)
	t := Table{Bytes: v.Bytes}
	return t.stringAt(t.Indirect(p))
}

func (v StringVector) All() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i, n := 0, v.Len(); i < n; i++ {
			if !yield(i, v.at(i)) {
				return
			}
		}
	}
}

// StructVector is a view of a vector of inline structs.
type StructVector struct {
	Bytes    []byte
	Pos      UOffsetT
	ElemSize int
}

func (v StructVector) Len() int { return vectorLen(v.Bytes, v.Pos) }

func (v StructVector) Get(i int) (Struct, error) {
	n := v.Len()
	if i < 0 || i >= n {
		return Struct{}, outOfRange(i, n)
	}
	return v.at(i), nil
}

func (v StructVector) at(i int) Struct {
	return Struct{Bytes: v.Bytes, Pos: v.Pos + SizeUOffsetT + UOffsetT(i*v.ElemSize)}
}

func (v StructVector) All() iter.Seq2[int, Struct] {
	return func(yield func(int, Struct) bool) {
		for i, n := 0, v.Len(); i < n; i++ {
			if !yield(i, v.at(i)) {
				return
			}
		}
	}
}
