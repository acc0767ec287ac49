package flatcore

import "unsafe"

// Table is a read-only view of a table inside a buffer. The zero Table is
// the nil view returned for absent child tables.
//
// A Table holds no state beyond its buffer and position, so it can be
// copied freely and shared between goroutines as long as nobody mutates
// the buffer concurrently.
type Table struct {
	Bytes []byte
	Pos   UOffsetT
}

// IsNil reports whether t refers to no table.
func (t Table) IsNil() bool {
	return t.Bytes == nil
}

func (t Table) vtable() UOffsetT {
	return UOffsetT(SOffsetT(t.Pos) - GetSOffsetT(t.Bytes[t.Pos:]))
}

// Offset returns the field offset stored at vtableOffset in the vtable, or
// 0 when the vtable is too short to hold that entry.
func (t Table) Offset(vtableOffset VOffsetT) VOffsetT {
	vtable := t.vtable()
	if vtableOffset < GetVOffsetT(t.Bytes[vtable:]) {
		return GetVOffsetT(t.Bytes[vtable+UOffsetT(vtableOffset):])
	}
	return 0
}

// FieldOffset returns the offset of slot's value relative to the table,
// 0 when absent.
func (t Table) FieldOffset(slot int) VOffsetT {
	return t.Offset(SlotOffset(slot))
}

// Has reports whether slot is stored in the table.
func (t Table) Has(slot int) bool {
	return t.FieldOffset(slot) != 0
}

// Indirect follows the uoffset stored at off.
func (t Table) Indirect(off UOffsetT) UOffsetT {
	return off + GetUOffsetT(t.Bytes[off:])
}

// indirectField resolves slot's stored uoffset, returning 0 when absent.
func (t Table) indirectField(slot int) UOffsetT {
	o := t.FieldOffset(slot)
	if o == 0 {
		return 0
	}
	return t.Indirect(t.Pos + UOffsetT(o))
}

// GetScalar returns the value stored in slot, or d when it is absent.
func GetScalar[T Scalar](t Table, slot int, d T) T {
	if o := t.FieldOffset(slot); o != 0 {
		return Read[T](t.Bytes[t.Pos+UOffsetT(o):])
	}
	return d
}

// ByteString returns the bytes of the string or byte vector in slot
// without copying, nil when absent.
func (t Table) ByteString(slot int) []byte {
	off := t.indirectField(slot)
	if off == 0 {
		return nil
	}
	return t.byteVector(off)
}

// String returns the string in slot, "" when absent. The result aliases the
// buffer and must not outlive it.
func (t Table) String(slot int) string {
	b := t.ByteString(slot)
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

func (t Table) byteVector(off UOffsetT) []byte {
	start := off + SizeUOffsetT
	return t.Bytes[start : start+GetUOffsetT(t.Bytes[off:])]
}

func (t Table) stringAt(off UOffsetT) string {
	b := t.byteVector(off)
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// Nested returns the child table referenced by slot, or the nil Table.
func (t Table) Nested(slot int) Table {
	off := t.indirectField(slot)
	if off == 0 {
		return Table{}
	}
	return Table{Bytes: t.Bytes, Pos: off}
}

// Struct returns the inline struct stored in slot.
func (t Table) Struct(slot int) (Struct, bool) {
	o := t.FieldOffset(slot)
	if o == 0 {
		return Struct{}, false
	}
	return Struct{Bytes: t.Bytes, Pos: t.Pos + UOffsetT(o)}, true
}

// Union is a tagged variant read from a table. Value is the nil Table when
// Type is UnionNone.
type Union struct {
	Type  UnionType
	Value Table
}

// Union reads the union stored across typeSlot and valueSlot.
func (t Table) Union(typeSlot, valueSlot int) Union {
	tag := UnionType(GetScalar(t, typeSlot, uint8(UnionNone)))
	if tag == UnionNone {
		return Union{}
	}
	return Union{Type: tag, Value: t.Nested(valueSlot)}
}

// VectorLen returns the element count of the vector in slot, 0 when absent.
func (t Table) VectorLen(slot int) int {
	off := t.indirectField(slot)
	if off == 0 {
		return 0
	}
	return int(GetUOffsetT(t.Bytes[off:]))
}

// GetVector returns the scalar vector stored in slot. An absent field
// yields an empty vector.
func GetVector[T Scalar](t Table, slot int) Vector[T] {
	off := t.indirectField(slot)
	if off == 0 {
		return Vector[T]{}
	}
	return Vector[T]{Bytes: t.Bytes, Pos: off}
}

// Tables returns the vector of tables stored in slot.
func (t Table) Tables(slot int) TableVector {
	off := t.indirectField(slot)
	if off == 0 {
		return TableVector{}
	}
	return TableVector{Bytes: t.Bytes, Pos: off}
}

// Strings returns the vector of strings stored in slot.
func (t Table) Strings(slot int) StringVector {
	off := t.indirectField(slot)
	if off == 0 {
		return StringVector{}
	}
	return StringVector{Bytes: t.Bytes, Pos: off}
}

// Structs returns the vector of inline structs of elemSize bytes stored in
// slot.
func (t Table) Structs(slot, elemSize int) StructVector {
	off := t.indirectField(slot)
	if off == 0 {
		return StructVector{ElemSize: elemSize}
	}
	return StructVector{Bytes: t.Bytes, Pos: off, ElemSize: elemSize}
}
