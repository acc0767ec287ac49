package flatcore

// UnionType is the discriminant stored next to a union value.
type UnionType uint8

// UnionNone marks an empty union.
const UnionNone UnionType = 0

// tableAlign is the widest scalar. Tables start on this boundary so that
// the padding inside a table depends only on its field sequence, which
// keeps equal shapes on equal vtables.
const tableAlign = 8

// StartTable begins a table. Fields are added with AddScalar, AddOffset,
// AddStruct and AddUnion in strictly ascending slot order, then the table
// is closed with EndTable. Strings, vectors and child tables must be
// created before StartTable.
func (b *Builder) StartTable() {
	b.assertNotFinished()
	b.assertNotNested()
	b.nested = true
	b.vtable = b.vtable[:0]
	b.lastSlot = -1
	b.Prep(tableAlign, 0)
	b.objectEnd = b.Offset()
}

// beginField checks ordering and reserves a vtable entry for slot.
func (b *Builder) beginField(slot int) {
	b.assertNested()
	if slot < 0 || slot <= b.lastSlot {
		violation(ErrSlotOrder, "slot %d added after slot %d", slot, b.lastSlot)
	}
	b.lastSlot = slot
	for len(b.vtable) <= slot {
		b.vtable = append(b.vtable, 0)
	}
}

// AddScalar adds a scalar field. The field is omitted when x equals the
// declared default d, unless ForceDefaults is set.
func AddScalar[T Scalar](b *Builder, slot int, x, d T) {
	b.beginField(slot)
	if x == d && !b.forceDefaults {
		return
	}
	Prepend(b, x)
	b.vtable[slot] = b.Offset()
}

func (b *Builder) AddBool(slot int, x, d bool) { AddScalar(b, slot, x, d) }
func (b *Builder) AddByte(slot int, x, d byte) { AddScalar(b, slot, x, d) }
func (b *Builder) AddInt8(slot int, x, d int8) { AddScalar(b, slot, x, d) }
func (b *Builder) AddInt16(slot int, x, d int16) { AddScalar(b, slot, x, d) }
func (b *Builder) AddUint16(slot int, x, d uint16) { AddScalar(b, slot, x, d) }
func (b *Builder) AddInt32(slot int, x, d int32) { AddScalar(b, slot, x, d) }
func (b *Builder) AddUint32(slot int, x, d uint32) { AddScalar(b, slot, x, d) }
func (b *Builder) AddInt64(slot int, x, d int64) { AddScalar(b, slot, x, d) }
func (b *Builder) AddUint64(slot int, x, d uint64) { AddScalar(b, slot, x, d) }
func (b *Builder) AddFloat32(slot int, x, d float32) { AddScalar(b, slot, x, d) }
func (b *Builder) AddFloat64(slot int, x, d float64) { AddScalar(b, slot, x, d) }

// AddOffset adds a reference to a string, vector or table. A zero offset
// leaves the field absent.
func (b *Builder) AddOffset(slot int, off UOffsetT) {
	b.beginField(slot)
	if off == 0 {
		return
	}
	if off > b.objectEnd {
		violation(ErrUnfinishedChild, "slot %d refers to offset %d written inside the open table", slot, off)
	}
	b.PrependUOffsetT(off)
	b.vtable[slot] = b.Offset()
}

// AddStruct records a struct that was just written inline with CreateStruct.
func (b *Builder) AddStruct(slot int, off UOffsetT) {
	b.beginField(slot)
	if off == 0 {
		return
	}
	if off != b.Offset() {
		violation(ErrInlineStruct, "slot %d: struct at %d, head at %d", slot, off, b.Offset())
	}
	b.vtable[slot] = off
}

// AddUnion adds a union as its two fields: the discriminant at typeSlot and
// the value table at valueSlot.
func (b *Builder) AddUnion(typeSlot int, tag UnionType, valueSlot int, value UOffsetT) {
	if (tag == UnionNone) != (value == 0) {
		violation(ErrUnionMismatch, "tag %d with value offset %d", tag, value)
	}
	AddScalar(b, typeSlot, uint8(tag), 0)
	b.AddOffset(valueSlot, value)
}

// EndTable closes the open table, writing its vtable or reusing an
// identical one, and returns the table's offset.
func (b *Builder) EndTable() UOffsetT {
	b.assertNested()
	off := b.writeVtable()
	b.nested = false
	b.lastSlot = -1
	return off
}

// writeVtable serializes the vtable for the current table. Vtables are
// deduplicated against every vtable written so far, searching newest
// first.
//
// Layout:
//
//	vtable byte size    uint16
//	object byte size    uint16
//	field offsets       uint16 each, 0 for absent
func (b *Builder) writeVtable() UOffsetT {
	// placeholder for the soffset to the vtable
	b.PrependSOffsetT(0)

	objectOffset := b.Offset()
	existingVtable := UOffsetT(0)

	i := len(b.vtable) - 1
	for ; i >= 0 && b.vtable[i] == 0; i-- {
	}
	b.vtable = b.vtable[:i+1]

	objectSize := objectOffset - b.objectEnd
	if objectSize > 0xFFFF {
		violation(ErrTableTooLarge, "table is %d bytes", objectSize)
	}

	for i := len(b.vtables) - 1; i >= 0; i-- {
		vt2Offset := b.vtables[i]
		vt2Start := len(b.Bytes) - int(vt2Offset)
		vt2Len := GetVOffsetT(b.Bytes[vt2Start:])

		metadata := VtableMetadataFields * SizeVOffsetT
		vt2End := vt2Start + int(vt2Len)
		vt2 := b.Bytes[vt2Start+metadata : vt2End]

		if GetVOffsetT(b.Bytes[vt2Start+SizeVOffsetT:]) == VOffsetT(objectSize) &&
			vtableEqual(b.vtable, objectOffset, vt2) {
			existingVtable = vt2Offset
			break
		}
	}

	if existingVtable == 0 {
		for i := len(b.vtable) - 1; i >= 0; i-- {
			var off UOffsetT
			if b.vtable[i] != 0 {
				off = objectOffset - b.vtable[i]
			}
			b.PrependVOffsetT(VOffsetT(off))
		}

		b.PrependVOffsetT(VOffsetT(objectSize))

		vBytes := (len(b.vtable) + VtableMetadataFields) * SizeVOffsetT
		b.PrependVOffsetT(VOffsetT(vBytes))

		objectStart := SOffsetT(len(b.Bytes)) - SOffsetT(objectOffset)
		WriteSOffsetT(b.Bytes[objectStart:], SOffsetT(b.Offset())-SOffsetT(objectOffset))

		b.vtables = append(b.vtables, b.Offset())
	} else {
		// reuse: drop back to the object and point it at the old vtable
		objectStart := SOffsetT(len(b.Bytes)) - SOffsetT(objectOffset)
		b.head = UOffsetT(objectStart)
		WriteSOffsetT(b.Bytes[b.head:], SOffsetT(existingVtable)-SOffsetT(objectOffset))
	}

	b.vtable = b.vtable[:0]
	return objectOffset
}

// vtableEqual compares the unwritten vtable a against the serialized entries b.
func vtableEqual(a []UOffsetT, objectStart UOffsetT, b []byte) bool {
	if len(a)*SizeVOffsetT != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		x := GetVOffsetT(b[i*SizeVOffsetT : (i+1)*SizeVOffsetT])
		if x == 0 && a[i] == 0 {
			continue
		}
		y := SOffsetT(objectStart) - SOffsetT(a[i])
		if SOffsetT(x) != y {
			return false
		}
	}
	return true
}
