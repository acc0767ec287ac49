package schema

import (
	"fmt"
	"strings"

	"github.com/rawbytedev/flatcore"
)

// Decode reads t as the named table into a map. Scalars are always
// present, holding their default when the buffer omits them, and are
// widened to bool, int64, uint64 or float64. Absent strings, vectors,
// tables, structs and unions are left out, as are deprecated fields.
// Strings are copied out of the buffer.
//
// t must come from a verified buffer or one this process built.
func (s *Schema) Decode(t flatcore.Table, table string) (map[string]any, error) {
	tbl, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrUnknownType, table)
	}
	return s.decodeTable(t, tbl), nil
}

func (s *Schema) decodeTable(t flatcore.Table, tbl *Table) map[string]any {
	out := make(map[string]any, len(tbl.Fields))
	for _, f := range tbl.Fields {
		if f.Deprecated {
			continue
		}
		if f.Type.IsScalar() {
			if o := t.FieldOffset(f.Slot); o != 0 {
				out[f.Name] = readScalar(f.Type, t.Bytes[t.Pos+flatcore.UOffsetT(o):])
			} else {
				out[f.Name] = widen(f.def)
			}
			continue
		}
		if v, ok := s.decodeField(t, f); ok {
			out[f.Name] = v
		}
	}
	return out
}

func (s *Schema) decodeField(t flatcore.Table, f *Field) (any, bool) {
	switch f.Type {
	case String:
		if !t.Has(f.Slot) {
			return nil, false
		}
		return strings.Clone(t.String(f.Slot)), true
	case TableKind:
		child := t.Nested(f.Slot)
		if child.IsNil() {
			return nil, false
		}
		return s.decodeTable(child, s.tables[f.Ref]), true
	case StructKind:
		st, ok := t.Struct(f.Slot)
		if !ok {
			return nil, false
		}
		return s.decodeStruct(st, s.structs[f.Ref]), true
	case Union:
		u := t.Union(f.TypeSlot(), f.Slot)
		if u.Type == flatcore.UnionNone {
			return nil, false
		}
		name, known := f.Variants[uint8(u.Type)]
		if !known || u.Value.IsNil() {
			return map[string]any{"type": uint64(u.Type)}, true
		}
		return map[string]any{"type": name, "value": s.decodeTable(u.Value, s.tables[name])}, true
	case Vector:
		if !t.Has(f.Slot) {
			return nil, false
		}
		return s.decodeVector(t, f), true
	}
	return nil, false
}

func (s *Schema) decodeVector(t flatcore.Table, f *Field) []any {
	switch {
	case f.Elem.IsScalar():
		raw := flatcore.GetVector[uint8](t, f.Slot)
		n := raw.Len()
		size := f.Elem.Size()
		start := raw.Pos + flatcore.SizeUOffsetT
		out := make([]any, n)
		for i := range n {
			out[i] = readScalar(f.Elem, t.Bytes[start+flatcore.UOffsetT(i*size):])
		}
		return out
	case f.Elem == String:
		v := t.Strings(f.Slot)
		out := make([]any, 0, v.Len())
		for _, str := range v.All() {
			out = append(out, strings.Clone(str))
		}
		return out
	case f.Elem == TableKind:
		v := t.Tables(f.Slot)
		ref := s.tables[f.Ref]
		out := make([]any, 0, v.Len())
		for _, item := range v.All() {
			out = append(out, s.decodeTable(item, ref))
		}
		return out
	default:
		st := s.structs[f.Ref]
		v := t.Structs(f.Slot, st.Size)
		out := make([]any, 0, v.Len())
		for _, item := range v.All() {
			out = append(out, s.decodeStruct(item, st))
		}
		return out
	}
}

func (s *Schema) decodeStruct(v flatcore.Struct, st *Struct) map[string]any {
	out := make(map[string]any, len(st.Fields))
	for _, sf := range st.Fields {
		if sf.Type == StructKind {
			out[sf.Name] = s.decodeStruct(v.Nested(sf.Offset), s.structs[sf.Ref])
			continue
		}
		out[sf.Name] = readScalar(sf.Type, v.Bytes[v.Pos+flatcore.UOffsetT(sf.Offset):])
	}
	return out
}
