package schema

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/rawbytedev/flatcore"
	"github.com/rawbytedev/flatcore/internal/log"
)

// EncodeOptions controls how Encode finishes a buffer.
type EncodeOptions struct {
	SizePrefixed  bool
	ForceDefaults bool
	// InitialSize is the builder's starting capacity.
	InitialSize int
}

// Encode builds obj as a finished buffer rooted at table, or at the
// schema's root table when table is empty. The schema's file identifier is
// written when it has one.
func (s *Schema) Encode(table string, obj map[string]any, opts EncodeOptions) ([]byte, error) {
	if table == "" {
		table = s.Root
	}
	b := flatcore.NewBuilder(opts.InitialSize)
	b.ForceDefaults(opts.ForceDefaults)
	root, err := s.Build(b, table, obj)
	if err != nil {
		return nil, err
	}
	var fid []byte
	if s.FileIdentifier != "" {
		fid = []byte(s.FileIdentifier)
	}
	switch {
	case opts.SizePrefixed && fid != nil:
		b.FinishSizePrefixedWithFileIdentifier(root, fid)
	case opts.SizePrefixed:
		b.FinishSizePrefixed(root)
	case fid != nil:
		b.FinishWithFileIdentifier(root, fid)
	default:
		b.Finish(root)
	}
	buf := b.FinishedBytes()
	log.Base().Debug("encoded buffer", slog.String("table", table), log.BufferAttr(buf))
	return buf, nil
}

// pending is a field value that is ready to be added to the open table.
type pending struct {
	f      *Field
	scalar any
	off    flatcore.UOffsetT
	tag    flatcore.UnionType
	image  []byte
}

// Build writes obj as a table of the named type and returns its offset.
// Children are written first, so b must not have a table or vector open.
// Keys that name no field, or name a deprecated one, are errors. Builder
// protocol violations, such as a table past 64 KiB, are returned as errors;
// b must be Reset before reuse after one.
func (s *Schema) Build(b *flatcore.Builder, table string, obj map[string]any) (off flatcore.UOffsetT, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok {
				panic(r)
			}
			off, err = 0, fmt.Errorf("building %s: %w", table, perr)
		}
	}()

	t, ok := s.tables[table]
	if !ok {
		return 0, fmt.Errorf("%w: table %q", ErrUnknownType, table)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		if _, ok := t.byName[k]; !ok {
			return 0, fmt.Errorf("%w: %s has no field %q", ErrValue, t.Name, k)
		}
		keys = append(keys, k)
	}
	// deterministic output for equal inputs
	sort.Slice(keys, func(i, j int) bool { return t.byName[keys[i]].Slot < t.byName[keys[j]].Slot })

	fields := make([]pending, 0, len(keys))
	for _, k := range keys {
		f := t.byName[k]
		if f.Deprecated {
			return 0, fmt.Errorf("%w: %s.%s is deprecated", ErrValue, t.Name, k)
		}
		p, err := s.prepare(b, f, obj[k])
		if err != nil {
			return 0, fmt.Errorf("%s.%s: %w", t.Name, k, err)
		}
		if p != nil {
			fields = append(fields, *p)
		}
	}

	b.StartTable()
	for _, p := range fields {
		switch p.f.Type {
		case StructKind:
			st := s.structs[p.f.Ref]
			b.AddStruct(p.f.Slot, b.CreateStruct(st.Align, st.Size, prependImage(p.image)))
		case Union:
			b.AddUnion(p.f.TypeSlot(), p.tag, p.f.Slot, p.off)
		case String, Vector, TableKind:
			b.AddOffset(p.f.Slot, p.off)
		default:
			addScalar(b, p.f.Slot, p.scalar, p.f.def)
		}
	}
	return b.EndTable(), nil
}

// prepare converts v and writes anything that lives outside the table.
// A nil result means the field is left absent.
func (s *Schema) prepare(b *flatcore.Builder, f *Field, v any) (*pending, error) {
	if v == nil {
		return nil, nil
	}
	p := &pending{f: f}
	switch f.Type {
	case String:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a string", ErrValue, v)
		}
		p.off = b.CreateString(str)
	case TableKind:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a table", ErrValue, v)
		}
		off, err := s.Build(b, f.Ref, m)
		if err != nil {
			return nil, err
		}
		p.off = off
	case StructKind:
		img, err := s.structImage(s.structs[f.Ref], v)
		if err != nil {
			return nil, err
		}
		p.image = img
	case Vector:
		off, err := s.buildVector(b, f, v)
		if err != nil {
			return nil, err
		}
		p.off = off
	case Union:
		tag, off, err := s.buildUnion(b, f, v)
		if err != nil {
			return nil, err
		}
		if tag == flatcore.UnionNone {
			return nil, nil
		}
		p.tag, p.off = tag, off
	default:
		x, err := convertScalar(f.Type, v)
		if err != nil {
			return nil, err
		}
		p.scalar = x
	}
	return p, nil
}

func (s *Schema) buildUnion(b *flatcore.Builder, f *Field, v any) (flatcore.UnionType, flatcore.UOffsetT, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("%w: union wants {type, value}, got %T", ErrValue, v)
	}
	name, _ := m["type"].(string)
	if name == "" || name == "NONE" {
		if m["value"] != nil {
			return 0, 0, fmt.Errorf("%w: union value without a type", ErrValue)
		}
		return flatcore.UnionNone, 0, nil
	}
	tag, ok := f.Variant(name)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q is not a variant of %s", ErrValue, name, f.Name)
	}
	value, ok := m["value"].(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("%w: union of type %s has no value", ErrValue, name)
	}
	off, err := s.Build(b, name, value)
	if err != nil {
		return 0, 0, err
	}
	return tag, off, nil
}

func (s *Schema) buildVector(b *flatcore.Builder, f *Field, v any) (flatcore.UOffsetT, error) {
	items, ok := v.([]any)
	if !ok {
		if raw, isBytes := v.([]byte); isBytes && f.Elem == Uint8 {
			return b.CreateByteVector(raw), nil
		}
		return 0, fmt.Errorf("%w: %T is not a list", ErrValue, v)
	}

	switch {
	case f.Elem.IsScalar():
		xs := make([]any, len(items))
		for i, item := range items {
			x, err := convertScalar(f.Elem, item)
			if err != nil {
				return 0, fmt.Errorf("element %d: %w", i, err)
			}
			xs[i] = x
		}
		size := f.Elem.Size()
		b.StartVector(size, len(xs), size)
		for i := len(xs) - 1; i >= 0; i-- {
			prependScalar(b, xs[i])
		}
		return b.EndVector(), nil

	case f.Elem == String:
		offs := make([]flatcore.UOffsetT, len(items))
		for i, item := range items {
			str, ok := item.(string)
			if !ok {
				return 0, fmt.Errorf("element %d: %w: %T is not a string", i, ErrValue, item)
			}
			offs[i] = b.CreateString(str)
		}
		return b.CreateOffsetVector(offs), nil

	case f.Elem == TableKind:
		offs := make([]flatcore.UOffsetT, len(items))
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return 0, fmt.Errorf("element %d: %w: %T is not a table", i, ErrValue, item)
			}
			off, err := s.Build(b, f.Ref, m)
			if err != nil {
				return 0, fmt.Errorf("element %d: %w", i, err)
			}
			offs[i] = off
		}
		return b.CreateOffsetVector(offs), nil

	default:
		st := s.structs[f.Ref]
		images := make([][]byte, len(items))
		for i, item := range items {
			img, err := s.structImage(st, item)
			if err != nil {
				return 0, fmt.Errorf("element %d: %w", i, err)
			}
			images[i] = img
		}
		b.StartVector(st.Size, len(images), st.Align)
		for i := len(images) - 1; i >= 0; i-- {
			b.CreateStruct(st.Align, st.Size, prependImage(images[i]))
		}
		return b.EndVector(), nil
	}
}

// structImage lays v out as the little-endian bytes of st, padding
// included. Missing fields are zero.
func (s *Schema) structImage(st *Struct, v any) ([]byte, error) {
	img := make([]byte, st.Size)
	if err := s.fillStruct(img, st, v); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *Schema) fillStruct(img []byte, st *Struct, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %T is not a %s struct", ErrValue, v, st.Name)
	}
	for k, x := range m {
		var sf *StructField
		for _, cand := range st.Fields {
			if cand.Name == k {
				sf = cand
				break
			}
		}
		if sf == nil {
			return fmt.Errorf("%w: %s has no field %q", ErrValue, st.Name, k)
		}
		dst := img[sf.Offset:]
		if sf.Type == StructKind {
			if err := s.fillStruct(dst, s.structs[sf.Ref], x); err != nil {
				return err
			}
			continue
		}
		typed, err := convertScalar(sf.Type, x)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", st.Name, k, err)
		}
		writeScalar(dst, typed)
	}
	return nil
}

func prependImage(img []byte) func(*flatcore.Builder) {
	return func(b *flatcore.Builder) {
		for i := len(img) - 1; i >= 0; i-- {
			b.PrependByte(img[i])
		}
	}
}
