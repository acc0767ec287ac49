package flatcore

import "github.com/rawbytedev/flatcore/internal/common"

// StartVector begins a vector of numElems elements of elemSize bytes each.
// Elements are prepended last to first and the vector is closed with
// EndVector. Elements that are offsets must refer to objects created before
// StartVector.
func (b *Builder) StartVector(elemSize, numElems, alignment int) UOffsetT {
	b.assertNotFinished()
	b.assertNotNested()
	base := b.Offset()
	b.Prep(SizeUint32, elemSize*numElems)
	b.Prep(alignment, elemSize*numElems)
	b.nested = true
	b.vector = vectorState{
		open:     true,
		base:     base,
		start:    b.Offset(),
		elemSize: elemSize,
		count:    numElems,
	}
	return b.Offset()
}

// EndVector writes the element count and returns the vector's offset.
func (b *Builder) EndVector() UOffsetT {
	v := b.vector
	if !v.open {
		violation(ErrNotNested, "EndVector without StartVector")
	}
	if written := int(b.Offset() - v.start); written != v.elemSize*v.count {
		violation(ErrVectorCount, "declared %d elements of %d bytes, wrote %d bytes", v.count, v.elemSize, written)
	}
	b.vector = vectorState{}
	b.nested = false

	// space for the length was reserved by StartVector
	b.PlaceUOffsetT(UOffsetT(v.count))
	return b.Offset()
}

// CreateVector writes a complete vector of scalars.
func CreateVector[T Scalar](b *Builder, xs []T) UOffsetT {
	size := common.SizeOf[T]()
	b.StartVector(size, len(xs), size)
	for i := len(xs) - 1; i >= 0; i-- {
		Prepend(b, xs[i])
	}
	return b.EndVector()
}

// CreateOffsetVector writes a vector of references to strings, vectors or
// tables that have already been written.
func (b *Builder) CreateOffsetVector(offs []UOffsetT) UOffsetT {
	b.StartVector(SizeUOffsetT, len(offs), SizeUOffsetT)
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}
	return b.EndVector()
}

// CreateString writes a length-prefixed, NUL-terminated string.
func (b *Builder) CreateString(s string) UOffsetT {
	b.assertNotFinished()
	b.assertNotNested()

	b.Prep(SizeUOffsetT, len(s)+1)
	Place(b, byte(0))

	l := UOffsetT(len(s))
	b.head -= l
	copy(b.Bytes[b.head:b.head+l], s)

	b.PlaceUOffsetT(l)
	return b.Offset()
}

// CreateByteString writes a byte slice the same way as CreateString.
func (b *Builder) CreateByteString(s []byte) UOffsetT {
	b.assertNotFinished()
	b.assertNotNested()

	b.Prep(SizeUOffsetT, len(s)+1)
	Place(b, byte(0))

	l := UOffsetT(len(s))
	b.head -= l
	copy(b.Bytes[b.head:b.head+l], s)

	b.PlaceUOffsetT(l)
	return b.Offset()
}

// CreateByteVector writes a []byte vector without a terminator.
func (b *Builder) CreateByteVector(v []byte) UOffsetT {
	b.assertNotFinished()
	b.assertNotNested()

	b.Prep(SizeUOffsetT, len(v))

	l := UOffsetT(len(v))
	b.head -= l
	copy(b.Bytes[b.head:b.head+l], v)

	b.PlaceUOffsetT(l)
	return b.Offset()
}

// CreateSharedString writes s once per buffer and returns the same offset
// for every later call with equal content.
func (b *Builder) CreateSharedString(s string) UOffsetT {
	if off, ok := b.sharedStrings[s]; ok {
		return off
	}
	if b.sharedStrings == nil {
		b.sharedStrings = make(map[string]UOffsetT)
	}
	off := b.CreateString(s)
	b.sharedStrings[s] = off
	return off
}

// CreateStruct writes a struct of the given size and alignment inline.
// fill must prepend the struct's fields last to first, including any
// padding, and write exactly size bytes. It is only legal inside an open
// table (followed by AddStruct) or vector.
func (b *Builder) CreateStruct(align, size int, fill func(b *Builder)) UOffsetT {
	if !b.nested {
		violation(ErrInlineStruct, "no table or vector is open")
	}
	b.Prep(align, size)
	start := b.Offset()
	fill(b)
	if written := int(b.Offset() - start); written != size {
		violation(ErrStructSize, "declared %d bytes, wrote %d", size, written)
	}
	return b.Offset()
}
