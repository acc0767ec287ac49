// Package schema describes table layouts as data: which slot holds which
// field, its width, default and kind. A Schema is loaded from YAML and can
// build, decode and verify buffers without generated code.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/flatcore"
	"github.com/rawbytedev/flatcore/internal/common"
	"github.com/rawbytedev/flatcore/internal/log"
)

var (
	ErrInvalidSchema = errors.New("schema: invalid schema")
	ErrUnknownType   = errors.New("schema: unknown type")
	ErrValue         = errors.New("schema: value does not match field")
)

// Kind is the type of a field or vector element.
type Kind string

const (
	Bool    Kind = "bool"
	Int8    Kind = "int8"
	Uint8   Kind = "uint8"
	Int16   Kind = "int16"
	Uint16  Kind = "uint16"
	Int32   Kind = "int32"
	Uint32  Kind = "uint32"
	Int64   Kind = "int64"
	Uint64  Kind = "uint64"
	Float32 Kind = "float32"
	Float64 Kind = "float64"

	String     Kind = "string"
	Vector     Kind = "vector"
	TableKind  Kind = "table"
	StructKind Kind = "struct"
	Union      Kind = "union"
)

// Size returns the width of a scalar kind, 0 for anything else.
func (k Kind) Size() int {
	switch k {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

func (k Kind) IsScalar() bool { return k.Size() > 0 }

// Field is one entry of a table layout.
type Field struct {
	Name       string           `yaml:"name"`
	Slot       int              `yaml:"slot"`
	Type       Kind             `yaml:"type"`
	Elem       Kind             `yaml:"elem,omitempty"`
	Ref        string           `yaml:"ref,omitempty"`
	Default    any              `yaml:"default,omitempty"`
	Required   bool             `yaml:"required,omitempty"`
	Deprecated bool             `yaml:"deprecated,omitempty"`
	Variants   map[uint8]string `yaml:"variants,omitempty"`

	def any
}

// DefaultValue returns the typed default of a scalar field, for example
// int16(100).
func (f *Field) DefaultValue() any { return f.def }

// TypeSlot is the slot holding a union's discriminant.
func (f *Field) TypeSlot() int { return f.Slot - 1 }

// Width is the number of bytes the field occupies inside its table.
func (f *Field) Width(s *Schema) int {
	switch f.Type {
	case StructKind:
		return s.structs[f.Ref].Size
	case String, Vector, TableKind, Union:
		return flatcore.SizeUOffsetT
	default:
		return f.Type.Size()
	}
}

// Variant returns the union tag for the named variant table.
func (f *Field) Variant(name string) (flatcore.UnionType, bool) {
	for tag, n := range f.Variants {
		if n == name {
			return flatcore.UnionType(tag), true
		}
	}
	return flatcore.UnionNone, false
}

type Table struct {
	Name   string   `yaml:"name"`
	Fields []*Field `yaml:"fields"`

	byName map[string]*Field
}

// Field looks up a field by name.
func (t *Table) Field(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

type StructField struct {
	Name string `yaml:"name"`
	Type Kind   `yaml:"type"`
	Ref  string `yaml:"ref,omitempty"`

	Offset int `yaml:"-"`
}

// Struct is a fixed layout laid out C style: every field at a multiple of
// its alignment, the total size a multiple of the largest alignment.
type Struct struct {
	Name   string         `yaml:"name"`
	Fields []*StructField `yaml:"fields"`

	Size  int `yaml:"-"`
	Align int `yaml:"-"`
}

type Schema struct {
	Namespace      string    `yaml:"namespace,omitempty"`
	Root           string    `yaml:"root,omitempty"`
	FileIdentifier string    `yaml:"file_identifier,omitempty"`
	Structs        []*Struct `yaml:"structs,omitempty"`
	Tables         []*Table  `yaml:"tables"`

	tables  map[string]*Table
	structs map[string]*Struct
}

// Load reads and validates a YAML schema file.
func Load(ctx context.Context, path string) (s *Schema, err error) {
	op := log.Operation(ctx, "load schema", slog.String("path", path))
	defer func() { op.Done(err) }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML schema.
func Parse(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

func (s *Schema) Struct(name string) (*Struct, bool) {
	st, ok := s.structs[name]
	return st, ok
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchema, fmt.Sprintf(format, args...))
}

// Validate checks the schema, resolves references, computes struct layouts
// and parses defaults. Parse calls it; call it again after editing a
// Schema by hand.
func (s *Schema) Validate() error {
	if s.FileIdentifier != "" && len(s.FileIdentifier) != flatcore.FileIdentifierLength {
		return invalid("file identifier %q must be 4 bytes", s.FileIdentifier)
	}

	s.structs = make(map[string]*Struct, len(s.Structs))
	for _, st := range s.Structs {
		if _, dup := s.structs[st.Name]; dup || st.Name == "" {
			return invalid("struct %q defined twice or unnamed", st.Name)
		}
		s.structs[st.Name] = st
	}
	for _, st := range s.Structs {
		if err := s.layoutStruct(st, map[string]bool{}); err != nil {
			return err
		}
	}

	s.tables = make(map[string]*Table, len(s.Tables))
	for _, t := range s.Tables {
		if _, dup := s.tables[t.Name]; dup || t.Name == "" {
			return invalid("table %q defined twice or unnamed", t.Name)
		}
		s.tables[t.Name] = t
	}
	for _, t := range s.Tables {
		if err := s.validateTable(t); err != nil {
			return err
		}
	}

	if s.Root != "" {
		if _, ok := s.tables[s.Root]; !ok {
			return invalid("root %q is not a table", s.Root)
		}
	}
	return nil
}

func (s *Schema) layoutStruct(st *Struct, visiting map[string]bool) error {
	if st.Size > 0 {
		return nil
	}
	if visiting[st.Name] {
		return invalid("struct %q contains itself", st.Name)
	}
	visiting[st.Name] = true
	defer delete(visiting, st.Name)

	if len(st.Fields) == 0 {
		return invalid("struct %q has no fields", st.Name)
	}
	off, align := 0, 1
	for _, f := range st.Fields {
		var size, a int
		switch {
		case f.Type.IsScalar():
			size, a = f.Type.Size(), f.Type.Size()
		case f.Type == StructKind:
			inner, ok := s.structs[f.Ref]
			if !ok {
				return invalid("struct %q field %q: %v %q", st.Name, f.Name, ErrUnknownType, f.Ref)
			}
			if err := s.layoutStruct(inner, visiting); err != nil {
				return err
			}
			size, a = inner.Size, inner.Align
		default:
			return invalid("struct %q field %q: only scalars and structs may be inlined", st.Name, f.Name)
		}
		off = common.AlignUp(off, a)
		f.Offset = off
		off += size
		align = max(align, a)
	}
	st.Align = align
	st.Size = common.AlignUp(off, align)
	return nil
}

func (s *Schema) validateTable(t *Table) error {
	t.byName = make(map[string]*Field, len(t.Fields))
	used := map[int]string{}
	claim := func(f *Field, slot int) error {
		if slot < 0 {
			return invalid("table %q field %q: negative slot", t.Name, f.Name)
		}
		if other, ok := used[slot]; ok {
			return invalid("table %q: slot %d used by %q and %q", t.Name, slot, other, f.Name)
		}
		used[slot] = f.Name
		return nil
	}

	for _, f := range t.Fields {
		if _, dup := t.byName[f.Name]; dup || f.Name == "" {
			return invalid("table %q field %q defined twice or unnamed", t.Name, f.Name)
		}
		t.byName[f.Name] = f
		if err := claim(f, f.Slot); err != nil {
			return err
		}
		if f.Default != nil && !f.Type.IsScalar() {
			return invalid("table %q field %q: only scalars take defaults", t.Name, f.Name)
		}

		switch {
		case f.Type.IsScalar():
			d := f.Default
			if d == nil {
				d = 0
				if f.Type == Bool {
					d = false
				}
			}
			v, err := convertScalar(f.Type, d)
			if err != nil {
				return invalid("table %q field %q default: %v", t.Name, f.Name, err)
			}
			f.def = v
		case f.Type == String:
		case f.Type == TableKind:
			if _, ok := s.tables[f.Ref]; !ok {
				return invalid("table %q field %q: %v %q", t.Name, f.Name, ErrUnknownType, f.Ref)
			}
		case f.Type == StructKind:
			if _, ok := s.structs[f.Ref]; !ok {
				return invalid("table %q field %q: %v %q", t.Name, f.Name, ErrUnknownType, f.Ref)
			}
		case f.Type == Vector:
			if err := s.validateElem(t, f); err != nil {
				return err
			}
		case f.Type == Union:
			if err := claim(f, f.TypeSlot()); err != nil {
				return err
			}
			if len(f.Variants) == 0 {
				return invalid("table %q union %q has no variants", t.Name, f.Name)
			}
			for tag, name := range f.Variants {
				if tag == uint8(flatcore.UnionNone) {
					return invalid("table %q union %q: tag 0 is reserved", t.Name, f.Name)
				}
				if _, ok := s.tables[name]; !ok {
					return invalid("table %q union %q: %v %q", t.Name, f.Name, ErrUnknownType, name)
				}
			}
		default:
			return invalid("table %q field %q: %v %q", t.Name, f.Name, ErrUnknownType, f.Type)
		}
	}

	sort.Slice(t.Fields, func(i, j int) bool { return t.Fields[i].Slot < t.Fields[j].Slot })
	return nil
}

func (s *Schema) validateElem(t *Table, f *Field) error {
	switch {
	case f.Elem.IsScalar(), f.Elem == String:
		return nil
	case f.Elem == TableKind:
		if _, ok := s.tables[f.Ref]; ok {
			return nil
		}
	case f.Elem == StructKind:
		if _, ok := s.structs[f.Ref]; ok {
			return nil
		}
	default:
		return invalid("table %q vector %q: unsupported element %q", t.Name, f.Name, f.Elem)
	}
	return invalid("table %q vector %q: %v %q", t.Name, f.Name, ErrUnknownType, f.Ref)
}
