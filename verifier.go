package flatcore

import (
	"fmt"
	"math"
)

const (
	DefaultMaxDepth  = 64
	DefaultMaxTables = 1_000_000
)

// VerifierOptions bounds the work a Verifier will do on one buffer. Zero
// values select the defaults.
type VerifierOptions struct {
	MaxDepth  int
	MaxTables int
	// IgnoreAlignment accepts offsets and scalars that are not naturally
	// aligned relative to the start of the buffer.
	IgnoreAlignment bool
}

// TableVerifier checks the fields of one table type. Generated or
// layout-driven code supplies one per table and calls the Verifier
// primitives for every field it would read.
type TableVerifier func(v *Verifier, t Table) error

// VerifyHeaderOnly accepts any table whose header and vtable are in
// bounds. Reading fields of a table opened with it is unchecked; it suits
// tools that only inspect the vtable.
func VerifyHeaderOnly(*Verifier, Table) error { return nil }

// UnionVerifier checks the value of a union given its tag. Unknown tags
// should be accepted so that older readers tolerate newer variants.
type UnionVerifier func(v *Verifier, tag UnionType, t Table) error

// Verifier checks that every offset, length and field a reader may follow
// stays inside the buffer. A buffer that passes can be read without bounds
// failures.
type Verifier struct {
	buf    []byte
	opts   VerifierOptions
	depth  int
	tables int
}

func NewVerifier(buf []byte, opts VerifierOptions) *Verifier {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxTables <= 0 {
		opts.MaxTables = DefaultMaxTables
	}
	return &Verifier{buf: buf, opts: opts}
}

func (v *Verifier) fail(pos UOffsetT, err error, format string, args ...any) error {
	return &VerifyError{Pos: pos, Reason: fmt.Sprintf(format, args...), Err: err}
}

func (v *Verifier) inBounds(pos uint64, size uint64) bool {
	return pos+size <= uint64(len(v.buf))
}

func (v *Verifier) aligned(pos uint64, align int) bool {
	return v.opts.IgnoreAlignment || align <= 1 || pos%uint64(align) == 0
}

// offsetAt reads the uoffset stored at pos and returns its target.
func (v *Verifier) offsetAt(pos UOffsetT) (UOffsetT, error) {
	if !v.inBounds(uint64(pos), SizeUOffsetT) || !v.aligned(uint64(pos), SizeUOffsetT) {
		return 0, v.fail(pos, ErrMalformed, "offset out of bounds or misaligned")
	}
	o := GetUOffsetT(v.buf[pos:])
	if o == 0 {
		return 0, v.fail(pos, ErrMalformed, "zero offset")
	}
	target := uint64(pos) + uint64(o)
	if target >= uint64(len(v.buf)) {
		return 0, v.fail(pos, ErrMalformed, "offset %d points past the end of the buffer", o)
	}
	return UOffsetT(target), nil
}

// VerifyTable checks the table header and vtable at pos, then runs fn on
// the table's fields.
func (v *Verifier) VerifyTable(pos UOffsetT, fn TableVerifier) error {
	v.depth++
	defer func() { v.depth-- }()
	if v.depth > v.opts.MaxDepth {
		return v.fail(pos, ErrDepthLimit, "depth %d", v.depth)
	}
	v.tables++
	if v.tables > v.opts.MaxTables {
		return v.fail(pos, ErrTableLimit, "more than %d tables", v.opts.MaxTables)
	}

	if !v.inBounds(uint64(pos), SizeSOffsetT) || !v.aligned(uint64(pos), SizeSOffsetT) {
		return v.fail(pos, ErrMalformed, "table out of bounds or misaligned")
	}
	vt := int64(pos) - int64(GetSOffsetT(v.buf[pos:]))
	if vt < 0 || vt > math.MaxUint32 || !v.inBounds(uint64(vt), 2*SizeVOffsetT) || !v.aligned(uint64(vt), SizeVOffsetT) {
		return v.fail(pos, ErrMalformed, "vtable out of bounds or misaligned")
	}
	vsize := GetVOffsetT(v.buf[vt:])
	if vsize < 2*SizeVOffsetT || vsize%SizeVOffsetT != 0 || !v.inBounds(uint64(vt), uint64(vsize)) {
		return v.fail(UOffsetT(vt), ErrMalformed, "bad vtable size %d", vsize)
	}
	osize := GetVOffsetT(v.buf[vt+SizeVOffsetT:])
	if osize < SizeSOffsetT || !v.inBounds(uint64(pos), uint64(osize)) {
		return v.fail(pos, ErrMalformed, "bad table size %d", osize)
	}
	for p := int64(2 * SizeVOffsetT); p < int64(vsize); p += SizeVOffsetT {
		fo := GetVOffsetT(v.buf[vt+p:])
		if fo != 0 && (fo < SizeSOffsetT || fo >= osize) {
			return v.fail(UOffsetT(vt+p), ErrMalformed, "field offset %d outside table of %d bytes", fo, osize)
		}
	}

	if fn == nil {
		return nil
	}
	return fn(v, Table{Bytes: v.buf, Pos: pos})
}

func (v *Verifier) objectSize(t Table) VOffsetT {
	return GetVOffsetT(t.Bytes[t.vtable()+SizeVOffsetT:])
}

// fieldPos locates slot and checks that size bytes fit inside the table.
func (v *Verifier) fieldPos(t Table, slot, size, align int) (UOffsetT, bool, error) {
	o := t.FieldOffset(slot)
	if o == 0 {
		return 0, false, nil
	}
	p := t.Pos + UOffsetT(o)
	if int(o)+size > int(v.objectSize(t)) {
		return p, true, v.fail(p, ErrMalformed, "slot %d overruns its table", slot)
	}
	if !v.aligned(uint64(p), align) {
		return p, true, v.fail(p, ErrMalformed, "slot %d misaligned", slot)
	}
	return p, true, nil
}

// Field checks an inline scalar or struct field of the given size.
func (v *Verifier) Field(t Table, slot, size, align int) error {
	_, _, err := v.fieldPos(t, slot, size, align)
	return err
}

// Required fails when slot is absent.
func (v *Verifier) Required(t Table, slot int) error {
	if !t.Has(slot) {
		return v.fail(t.Pos, ErrMalformed, "required slot %d is missing", slot)
	}
	return nil
}

func (v *Verifier) offsetField(t Table, slot int) (UOffsetT, bool, error) {
	p, ok, err := v.fieldPos(t, slot, SizeUOffsetT, SizeUOffsetT)
	if !ok || err != nil {
		return 0, ok, err
	}
	target, err := v.offsetAt(p)
	return target, true, err
}

func (v *Verifier) vectorAt(pos UOffsetT, elemSize int) (int, error) {
	if !v.inBounds(uint64(pos), SizeUOffsetT) || !v.aligned(uint64(pos), SizeUOffsetT) {
		return 0, v.fail(pos, ErrMalformed, "vector length out of bounds or misaligned")
	}
	n := GetUOffsetT(v.buf[pos:])
	if !v.inBounds(uint64(pos)+SizeUOffsetT, uint64(n)*uint64(elemSize)) {
		return 0, v.fail(pos, ErrMalformed, "vector of %d elements overruns the buffer", n)
	}
	return int(n), nil
}

func (v *Verifier) stringAt(pos UOffsetT) error {
	n, err := v.vectorAt(pos, 1)
	if err != nil {
		return err
	}
	end := uint64(pos) + SizeUOffsetT + uint64(n)
	if !v.inBounds(end, 1) || v.buf[end] != 0 {
		return v.fail(pos, ErrMalformed, "string is not NUL terminated")
	}
	return nil
}

// String checks the string in slot, if present.
func (v *Verifier) String(t Table, slot int) error {
	target, ok, err := v.offsetField(t, slot)
	if !ok || err != nil {
		return err
	}
	return v.stringAt(target)
}

// Vector checks a vector of inline elements of elemSize bytes.
func (v *Verifier) Vector(t Table, slot, elemSize int) error {
	target, ok, err := v.offsetField(t, slot)
	if !ok || err != nil {
		return err
	}
	_, err = v.vectorAt(target, elemSize)
	return err
}

// NestedTable checks the child table in slot with fn.
func (v *Verifier) NestedTable(t Table, slot int, fn TableVerifier) error {
	target, ok, err := v.offsetField(t, slot)
	if !ok || err != nil {
		return err
	}
	return v.VerifyTable(target, fn)
}

// TableVector checks a vector of tables, running fn on each element.
func (v *Verifier) TableVector(t Table, slot int, fn TableVerifier) error {
	target, ok, err := v.offsetField(t, slot)
	if !ok || err != nil {
		return err
	}
	n, err := v.vectorAt(target, SizeUOffsetT)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		elem, err := v.offsetAt(target + SizeUOffsetT + UOffsetT(i*SizeUOffsetT))
		if err != nil {
			return err
		}
		if err := v.VerifyTable(elem, fn); err != nil {
			return err
		}
	}
	return nil
}

// StringVector checks a vector of strings.
func (v *Verifier) StringVector(t Table, slot int) error {
	target, ok, err := v.offsetField(t, slot)
	if !ok || err != nil {
		return err
	}
	n, err := v.vectorAt(target, SizeUOffsetT)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		elem, err := v.offsetAt(target + SizeUOffsetT + UOffsetT(i*SizeUOffsetT))
		if err != nil {
			return err
		}
		if err := v.stringAt(elem); err != nil {
			return err
		}
	}
	return nil
}

// Union checks the discriminant in typeSlot and the value in valueSlot.
// A tag without a value, or a value without a tag, is rejected.
func (v *Verifier) Union(t Table, typeSlot, valueSlot int, fn UnionVerifier) error {
	if err := v.Field(t, typeSlot, 1, 1); err != nil {
		return err
	}
	tag := UnionType(GetScalar(t, typeSlot, uint8(UnionNone)))
	target, ok, err := v.offsetField(t, valueSlot)
	if err != nil {
		return err
	}
	switch {
	case tag == UnionNone && ok:
		return v.fail(t.Pos, ErrMalformed, "union slot %d has a value but no tag", valueSlot)
	case tag == UnionNone:
		return nil
	case !ok:
		return v.fail(t.Pos, ErrMalformed, "union tag %d has no value", tag)
	}
	return v.VerifyTable(target, func(v *Verifier, vt Table) error {
		if fn == nil {
			return nil
		}
		return fn(v, tag, vt)
	})
}
