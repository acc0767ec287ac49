package schema

import (
	"fmt"

	"github.com/rawbytedev/flatcore"
)

// Verifier returns a TableVerifier that checks every field the named table
// declares, following child tables, vectors and unions.
func (s *Schema) Verifier(table string) (flatcore.TableVerifier, error) {
	tbl, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrUnknownType, table)
	}
	return s.tableVerifier(tbl), nil
}

func (s *Schema) tableVerifier(tbl *Table) flatcore.TableVerifier {
	return func(v *flatcore.Verifier, t flatcore.Table) error {
		for _, f := range tbl.Fields {
			if f.Required {
				if err := v.Required(t, f.Slot); err != nil {
					return err
				}
			}
			if f.Deprecated {
				continue
			}
			if err := s.verifyField(v, t, f); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Schema) verifyField(v *flatcore.Verifier, t flatcore.Table, f *Field) error {
	switch f.Type {
	case String:
		return v.String(t, f.Slot)
	case TableKind:
		return v.NestedTable(t, f.Slot, s.tableVerifier(s.tables[f.Ref]))
	case StructKind:
		st := s.structs[f.Ref]
		return v.Field(t, f.Slot, st.Size, st.Align)
	case Union:
		return v.Union(t, f.TypeSlot(), f.Slot, func(v *flatcore.Verifier, tag flatcore.UnionType, vt flatcore.Table) error {
			name, ok := f.Variants[uint8(tag)]
			if !ok {
				// a variant added after this schema was written
				return nil
			}
			return s.tableVerifier(s.tables[name])(v, vt)
		})
	case Vector:
		switch {
		case f.Elem.IsScalar():
			return v.Vector(t, f.Slot, f.Elem.Size())
		case f.Elem == String:
			return v.StringVector(t, f.Slot)
		case f.Elem == TableKind:
			return v.TableVector(t, f.Slot, s.tableVerifier(s.tables[f.Ref]))
		default:
			return v.Vector(t, f.Slot, s.structs[f.Ref].Size)
		}
	default:
		size := f.Type.Size()
		return v.Field(t, f.Slot, size, size)
	}
}

// Open verifies buf against the named table, or the root table when table
// is empty, and returns its root. When opts names no file identifier the
// schema's own is required. opts.Verify is replaced by the schema's
// verifier.
func (s *Schema) Open(buf []byte, table string, opts flatcore.ReadOptions) (flatcore.Table, error) {
	if table == "" {
		table = s.Root
	}
	fn, err := s.Verifier(table)
	if err != nil {
		return flatcore.Table{}, err
	}
	opts.Verify = fn
	if opts.FileIdentifier == "" {
		opts.FileIdentifier = s.FileIdentifier
	}
	return flatcore.Open(buf, opts)
}
