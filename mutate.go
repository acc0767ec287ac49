package flatcore

// MutateScalar overwrites the scalar stored in slot. It returns false and
// leaves the buffer untouched when the field is absent, which includes
// fields elided because they held their default when the buffer was built.
func MutateScalar[T Scalar](t Table, slot int, v T) bool {
	o := t.FieldOffset(slot)
	if o == 0 {
		return false
	}
	Write(t.Bytes[t.Pos+UOffsetT(o):], v)
	return true
}

// MutateStructScalar overwrites the scalar at byte offset off inside s.
// Struct fields are always present, so this cannot fail.
func MutateStructScalar[T Scalar](s Struct, off int, v T) {
	Write(s.Bytes[s.Pos+UOffsetT(off):], v)
}

// Mutate overwrites element i.
func (v Vector[T]) Mutate(i int, x T) error {
	p, err := v.elem(i)
	if err != nil {
		return err
	}
	Write(v.Bytes[p:], x)
	return nil
}
