package flatcore

// Struct is a view of a fixed-layout struct stored inline in a table,
// vector or enclosing struct. Field positions are byte offsets from Pos.
type Struct struct {
	Bytes []byte
	Pos   UOffsetT
}

// StructScalar reads the scalar at byte offset off inside s.
func StructScalar[T Scalar](s Struct, off int) T {
	return Read[T](s.Bytes[s.Pos+UOffsetT(off):])
}

// Nested returns the struct embedded at byte offset off.
func (s Struct) Nested(off int) Struct {
	return Struct{Bytes: s.Bytes, Pos: s.Pos + UOffsetT(off)}
}
