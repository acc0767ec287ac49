package flatcore

import (
	"github.com/rawbytedev/flatcore/internal/common"
)

// Builder assembles a buffer back to front. Children are written before the
// objects that reference them, so every offset points forward.
//
// A Builder is not safe for concurrent use. Reset lets one be reused.
type Builder struct {
	// Bytes gives raw access to the buffer. Most users want FinishedBytes.
	Bytes []byte

	minalign  int
	vtable    []UOffsetT
	objectEnd UOffsetT
	vtables   []UOffsetT
	head      UOffsetT
	nested    bool
	finished  bool
	lastSlot  int
	vector    vectorState

	forceDefaults bool
	sharedStrings map[string]UOffsetT
}

type vectorState struct {
	open bool
	// base is the offset before StartVector; elements may only refer to
	// objects at or below it.
	base     UOffsetT
	start    UOffsetT
	elemSize int
	count    int
}

// NewBuilder creates a Builder with an initial buffer of initialSize bytes.
// The buffer doubles when it runs out of room.
func NewBuilder(initialSize int) *Builder {
	if initialSize <= 0 {
		initialSize = 0
	}
	b := &Builder{}
	b.Bytes = make([]byte, initialSize)
	b.head = UOffsetT(initialSize)
	b.minalign = 1
	b.lastSlot = -1
	b.vtables = make([]UOffsetT, 0, 16)
	return b
}

// Reset truncates the builder so it can build a new buffer. The backing
// memory is kept, as is the ForceDefaults setting.
func (b *Builder) Reset() {
	if b.Bytes != nil {
		b.Bytes = b.Bytes[:cap(b.Bytes)]
	}
	b.vtables = b.vtables[:0]
	b.vtable = b.vtable[:0]
	b.head = UOffsetT(len(b.Bytes))
	b.minalign = 1
	b.nested = false
	b.finished = false
	b.lastSlot = -1
	b.vector = vectorState{}
	clear(b.sharedStrings)
}

// ForceDefaults makes the builder write scalar fields even when they equal
// their declared default. Such fields can then be mutated in place.
func (b *Builder) ForceDefaults(force bool) {
	b.forceDefaults = force
}

// FinishedBytes returns the finished buffer. It aliases the builder's
// memory and is only valid until the next Reset.
func (b *Builder) FinishedBytes() []byte {
	b.assertFinished()
	return b.Bytes[b.head:]
}

// Head is the start of valid data in Bytes.
func (b *Builder) Head() UOffsetT {
	return b.head
}

// Offset is the current distance from the end of the buffer. Offsets
// returned by Create*, EndVector and EndTable are values of Offset.
func (b *Builder) Offset() UOffsetT {
	return UOffsetT(len(b.Bytes)) - b.head
}

// Pad places n zero bytes at the head.
func (b *Builder) Pad(n int) {
	for i := 0; i < n; i++ {
		b.head--
		b.Bytes[b.head] = 0
	}
}

// Prep aligns the head so that a value of the given size, written after
// additionalBytes more bytes, lands on a multiple of size. It grows the
// buffer as needed.
func (b *Builder) Prep(size, additionalBytes int) {
	if b.finished {
		violation(ErrFinished, "write after Finish")
	}
	if size > b.minalign {
		b.minalign = size
	}
	alignSize := common.PadSize(len(b.Bytes)-int(b.head)+additionalBytes, size)

	for int(b.head) <= alignSize+size+additionalBytes {
		old := len(b.Bytes)
		b.growByteBuffer()
		b.head += UOffsetT(len(b.Bytes) - old)
	}
	b.Pad(alignSize)

	if v := &b.vector; v.open {
		if int(b.Offset()-v.start)+size > v.elemSize*v.count {
			violation(ErrVectorCount, "more than %d elements of %d bytes written", v.count, v.elemSize)
		}
	}
}

// growByteBuffer doubles the buffer and moves the data to the upper half.
func (b *Builder) growByteBuffer() {
	if len(b.Bytes) > MaxBufferSize/2 {
		violation(ErrBufferTooLarge, "buffer holds %d bytes", len(b.Bytes))
	}
	newLen := len(b.Bytes) * 2
	if newLen == 0 {
		newLen = 1
	}

	if cap(b.Bytes) >= newLen {
		b.Bytes = b.Bytes[:newLen]
	} else {
		extension := make([]byte, newLen-len(b.Bytes))
		b.Bytes = append(b.Bytes, extension...)
	}

	middle := newLen / 2
	copy(b.Bytes[middle:], b.Bytes[:middle])
}

// Place writes x at the head without alignment or bounds preparation.
// Callers must have called Prep.
func Place[T Scalar](b *Builder, x T) {
	b.head -= UOffsetT(common.SizeOf[T]())
	common.Put(b.Bytes[b.head:], x)
}

// Prepend aligns for and writes x.
func Prepend[T Scalar](b *Builder, x T) {
	b.Prep(common.SizeOf[T](), 0)
	Place(b, x)
}

func (b *Builder) PlaceUOffsetT(x UOffsetT) {
	b.head -= SizeUOffsetT
	WriteUOffsetT(b.Bytes[b.head:], x)
}

func (b *Builder) PlaceSOffsetT(x SOffsetT) {
	b.head -= SizeSOffsetT
	WriteSOffsetT(b.Bytes[b.head:], x)
}

func (b *Builder) PlaceVOffsetT(x VOffsetT) {
	b.head -= SizeVOffsetT
	WriteVOffsetT(b.Bytes[b.head:], x)
}

func (b *Builder) PrependBool(x bool) { Prepend(b, x) }
func (b *Builder) PrependByte(x byte) { Prepend(b, x) }
func (b *Builder) PrependInt8(x int8) { Prepend(b, x) }
func (b *Builder) PrependUint8(x uint8) { Prepend(b, x) }
func (b *Builder) PrependInt16(x int16) { Prepend(b, x) }
func (b *Builder) PrependUint16(x uint16) { Prepend(b, x) }
func (b *Builder) PrependInt32(x int32) { Prepend(b, x) }
func (b *Builder) PrependUint32(x uint32) { Prepend(b, x) }
func (b *Builder) PrependInt64(x int64) { Prepend(b, x) }
func (b *Builder) PrependUint64(x uint64) { Prepend(b, x) }
func (b *Builder) PrependFloat32(x float32) { Prepend(b, x) }
func (b *Builder) PrependFloat64(x float64) { Prepend(b, x) }

func (b *Builder) PrependVOffsetT(x VOffsetT) {
	b.Prep(SizeVOffsetT, 0)
	b.PlaceVOffsetT(x)
}

// PrependSOffsetT writes a signed offset relative to where it is stored.
func (b *Builder) PrependSOffsetT(off SOffsetT) {
	b.Prep(SizeSOffsetT, 0)
	if UOffsetT(off) > b.Offset() {
		violation(ErrUnfinishedChild, "soffset %d beyond current offset %d", off, b.Offset())
	}
	b.PlaceSOffsetT(SOffsetT(b.Offset()) - off + SizeSOffsetT)
}

// PrependUOffsetT writes a forward reference to an already written object.
func (b *Builder) PrependUOffsetT(off UOffsetT) {
	b.Prep(SizeUOffsetT, 0)
	if off == 0 || off > b.Offset() {
		violation(ErrUnfinishedChild, "offset %d is not a finished object (current offset %d)", off, b.Offset())
	}
	if b.vector.open && off > b.vector.base {
		violation(ErrUnfinishedChild, "vector element refers to offset %d written after StartVector", off)
	}
	b.PlaceUOffsetT(b.Offset() - off + SizeUOffsetT)
}

// Finish writes the root offset and seals the buffer.
func (b *Builder) Finish(root UOffsetT) {
	b.finish(root, nil, false)
}

// FinishWithFileIdentifier is Finish plus a 4-byte identifier placed right
// after the root offset.
func (b *Builder) FinishWithFileIdentifier(root UOffsetT, fid []byte) {
	if len(fid) != FileIdentifierLength {
		violation(ErrFileIdentifier, "got %d bytes", len(fid))
	}
	b.finish(root, fid, false)
}

// FinishSizePrefixed is Finish with a leading uint32 holding the size of
// the remainder of the buffer.
func (b *Builder) FinishSizePrefixed(root UOffsetT) {
	b.finish(root, nil, true)
}

func (b *Builder) FinishSizePrefixedWithFileIdentifier(root UOffsetT, fid []byte) {
	if len(fid) != FileIdentifierLength {
		violation(ErrFileIdentifier, "got %d bytes", len(fid))
	}
	b.finish(root, fid, true)
}

func (b *Builder) finish(root UOffsetT, fid []byte, sizePrefix bool) {
	b.assertNotFinished()
	b.assertNotNested()

	extra := SizeUOffsetT
	if sizePrefix {
		extra += SizePrefixLength
	}
	if fid != nil {
		extra += FileIdentifierLength
	}
	b.Prep(b.minalign, extra)
	for i := FileIdentifierLength - 1; fid != nil && i >= 0; i-- {
		Place(b, fid[i])
	}
	b.PrependUOffsetT(root)
	if sizePrefix {
		b.PrependUint32(uint32(b.Offset()))
	}
	b.finished = true
}

func (b *Builder) assertNested() {
	if !b.nested || b.vector.open {
		violation(ErrNotNested, "no table is open")
	}
}

func (b *Builder) assertNotNested() {
	if b.nested {
		violation(ErrNested, "a table or vector is still open")
	}
}

func (b *Builder) assertFinished() {
	if !b.finished {
		violation(ErrNotFinished, "call Finish first")
	}
}

func (b *Builder) assertNotFinished() {
	if b.finished {
		violation(ErrFinished, "buffer already finished")
	}
}
