package schema

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rawbytedev/flatcore"
	"github.com/rawbytedev/flatcore/internal/common"
)

var (
	ErrNotStruct    = errors.New("schema: expected struct")
	ErrNotStructPtr = errors.New("schema: expected pointer to struct")
	ErrUnsupported  = errors.New("schema: unsupported field type")
)

type fieldKind uint8

const (
	scalarField fieldKind = iota
	stringField
	bytesField
	scalarVecField
	stringVecField
	tableField
	tableVecField
)

type fieldPlan struct {
	idx  int
	name string
	slot int
	kind fieldKind
	// rkind is the kind of the scalar or vector element.
	rkind reflect.Kind
	size  int
	def   reflect.Value
	// elem is the struct type of a table or table vector field.
	elem reflect.Type
	ptr  bool
}

type structPlan struct {
	fields []fieldPlan
}

// Codec maps Go structs onto tables by reflection. Exported fields take
// consecutive slots in declaration order unless tagged:
//
//	Hp   int16  `flat:"2,default=100"`
//	Skip string `flat:"-"`
//
// Supported field types are fixed-width scalars (named types included),
// string, []byte, slices of scalars or strings, and structs, struct
// pointers or slices of either, which become child tables. Layouts are
// computed once per type and cached. The zero Codec is ready to use and
// safe for concurrent use.
type Codec struct {
	mu    sync.RWMutex
	plans map[reflect.Type]*structPlan

	Limits flatcore.VerifierOptions
}

func NewCodec() *Codec {
	return &Codec{plans: make(map[reflect.Type]*structPlan)}
}

func (c *Codec) getPlan(t reflect.Type) (*structPlan, error) {
	c.mu.RLock()
	if p, ok := c.plans[t]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	p, err := buildPlan(t)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check
	if cached, ok := c.plans[t]; ok {
		return cached, nil
	}
	if c.plans == nil {
		c.plans = make(map[reflect.Type]*structPlan)
	}
	c.plans[t] = p
	return p, nil
}

func buildPlan(t reflect.Type) (*structPlan, error) {
	p := &structPlan{}
	next := 0
	used := map[int]string{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		tag := sf.Tag.Get("flat")
		if tag == "-" {
			continue
		}
		fp := fieldPlan{idx: i, name: sf.Name, slot: next}
		if err := classify(&fp, sf.Type); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
		}
		if err := applyTag(&fp, sf.Type, tag); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
		}
		if other, dup := used[fp.slot]; dup {
			return nil, fmt.Errorf("%w: %s.%s reuses slot %d of %s", ErrInvalidSchema, t.Name(), sf.Name, fp.slot, other)
		}
		used[fp.slot] = sf.Name
		next = fp.slot + 1
		p.fields = append(p.fields, fp)
	}
	sort.Slice(p.fields, func(i, j int) bool { return p.fields[i].slot < p.fields[j].slot })
	return p, nil
}

func classify(fp *fieldPlan, t reflect.Type) error {
	k := t.Kind()
	switch {
	case common.IsFixedKind(k):
		fp.kind, fp.rkind, fp.size = scalarField, k, common.FixedSize(k)
		fp.def = reflect.Zero(t)
	case k == reflect.String:
		fp.kind = stringField
	case k == reflect.Struct:
		fp.kind, fp.elem = tableField, t
	case k == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		fp.kind, fp.elem, fp.ptr = tableField, t.Elem(), true
	case k == reflect.Slice:
		e := t.Elem()
		ek := e.Kind()
		switch {
		case ek == reflect.Uint8 && e == reflect.TypeOf(byte(0)):
			fp.kind = bytesField
		case common.IsFixedKind(ek):
			fp.kind, fp.rkind, fp.size = scalarVecField, ek, common.FixedSize(ek)
		case ek == reflect.String:
			fp.kind = stringVecField
		case ek == reflect.Struct:
			fp.kind, fp.elem = tableVecField, e
		case ek == reflect.Pointer && e.Elem().Kind() == reflect.Struct:
			fp.kind, fp.elem, fp.ptr = tableVecField, e.Elem(), true
		default:
			return fmt.Errorf("%w: %s", ErrUnsupported, t)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	return nil
}

func applyTag(fp *fieldPlan, t reflect.Type, tag string) error {
	if tag == "" {
		return nil
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		slot, err := strconv.Atoi(parts[0])
		if err != nil || slot < 0 {
			return fmt.Errorf("%w: bad slot %q", ErrInvalidSchema, parts[0])
		}
		fp.slot = slot
	}
	for _, opt := range parts[1:] {
		val, ok := strings.CutPrefix(opt, "default=")
		if !ok {
			return fmt.Errorf("%w: unknown tag option %q", ErrInvalidSchema, opt)
		}
		if fp.kind != scalarField {
			return fmt.Errorf("%w: only scalars take defaults", ErrInvalidSchema)
		}
		d := reflect.New(t).Elem()
		var err error
		switch {
		case fp.rkind == reflect.Bool:
			var x bool
			x, err = strconv.ParseBool(val)
			d.SetBool(x)
		case d.CanInt():
			var x int64
			x, err = strconv.ParseInt(val, 0, fp.size*8)
			d.SetInt(x)
		case d.CanUint():
			var x uint64
			x, err = strconv.ParseUint(val, 0, fp.size*8)
			d.SetUint(x)
		default:
			var x float64
			x, err = strconv.ParseFloat(val, fp.size*8)
			d.SetFloat(x)
		}
		if err != nil {
			return fmt.Errorf("%w: default %q: %v", ErrInvalidSchema, val, err)
		}
		fp.def = d
	}
	return nil
}

// scalarOf returns the value held by v as its fixed-width base type.
func scalarOf(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int8:
		return int8(v.Int())
	case reflect.Int16:
		return int16(v.Int())
	case reflect.Int32:
		return int32(v.Int())
	case reflect.Int64:
		return v.Int()
	case reflect.Uint8:
		return uint8(v.Uint())
	case reflect.Uint16:
		return uint16(v.Uint())
	case reflect.Uint32:
		return uint32(v.Uint())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return float32(v.Float())
	case reflect.Float64:
		return v.Float()
	}
	return nil
}

func structValue(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, ErrNotStruct
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, ErrNotStruct
	}
	return rv, nil
}

// Marshal writes v, a struct or pointer to struct, as a table and returns
// its offset. b must not have a table or vector open.
func (c *Codec) Marshal(b *flatcore.Builder, v any) (flatcore.UOffsetT, error) {
	rv, err := structValue(v)
	if err != nil {
		return 0, err
	}
	return c.marshal(b, rv)
}

func (c *Codec) marshal(b *flatcore.Builder, rv reflect.Value) (flatcore.UOffsetT, error) {
	p, err := c.getPlan(rv.Type())
	if err != nil {
		return 0, err
	}

	offs := make([]flatcore.UOffsetT, len(p.fields))
	for i, fp := range p.fields {
		fv := rv.Field(fp.idx)
		switch fp.kind {
		case stringField:
			if s := fv.String(); s != "" {
				offs[i] = b.CreateString(s)
			}
		case bytesField:
			if !fv.IsNil() {
				offs[i] = b.CreateByteVector(fv.Bytes())
			}
		case scalarVecField:
			if !fv.IsNil() {
				offs[i] = marshalScalars(b, fv, fp.size)
			}
		case stringVecField:
			if !fv.IsNil() {
				strs := make([]flatcore.UOffsetT, fv.Len())
				for j := range strs {
					strs[j] = b.CreateString(fv.Index(j).String())
				}
				offs[i] = b.CreateOffsetVector(strs)
			}
		case tableField:
			if fp.ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if offs[i], err = c.marshal(b, fv); err != nil {
				return 0, err
			}
		case tableVecField:
			if fv.IsNil() {
				continue
			}
			items := make([]flatcore.UOffsetT, fv.Len())
			for j := range items {
				ev := fv.Index(j)
				if fp.ptr {
					if ev.IsNil() {
						return 0, fmt.Errorf("%w: nil element %d in %s", ErrUnsupported, j, fp.name)
					}
					ev = ev.Elem()
				}
				if items[j], err = c.marshal(b, ev); err != nil {
					return 0, err
				}
			}
			offs[i] = b.CreateOffsetVector(items)
		}
	}

	b.StartTable()
	for i, fp := range p.fields {
		if fp.kind == scalarField {
			addScalar(b, fp.slot, scalarOf(rv.Field(fp.idx)), scalarOf(fp.def))
			continue
		}
		b.AddOffset(fp.slot, offs[i])
	}
	return b.EndTable(), nil
}

func marshalScalars(b *flatcore.Builder, v reflect.Value, size int) flatcore.UOffsetT {
	var scratch [8]byte
	n := v.Len()
	b.StartVector(size, n, size)
	for i := n - 1; i >= 0; i-- {
		common.PutFixed(scratch[:], v.Index(i))
		for j := size - 1; j >= 0; j-- {
			b.PrependByte(scratch[j])
		}
	}
	return b.EndVector()
}

// Encode marshals v into a new finished buffer.
func (c *Codec) Encode(v any) ([]byte, error) {
	b := flatcore.NewBuilder(0)
	root, err := c.Marshal(b, v)
	if err != nil {
		return nil, err
	}
	b.Finish(root)
	return b.FinishedBytes(), nil
}

// UnmarshalTable fills the struct v points to from t. Strings and byte
// slices are copied. t must be verified or trusted.
func (c *Codec) UnmarshalTable(t flatcore.Table, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPtr
	}
	return c.unmarshal(t, rv.Elem())
}

func (c *Codec) unmarshal(t flatcore.Table, rv reflect.Value) error {
	p, err := c.getPlan(rv.Type())
	if err != nil {
		return err
	}
	for _, fp := range p.fields {
		fv := rv.Field(fp.idx)
		switch fp.kind {
		case scalarField:
			if o := t.FieldOffset(fp.slot); o != 0 {
				common.SetFixed(fv, t.Bytes[t.Pos+flatcore.UOffsetT(o):], fp.rkind)
			} else {
				fv.Set(fp.def)
			}
		case stringField:
			fv.SetString(strings.Clone(t.String(fp.slot)))
		case bytesField:
			if t.Has(fp.slot) {
				fv.SetBytes(bytes.Clone(t.ByteString(fp.slot)))
			} else {
				fv.SetZero()
			}
		case scalarVecField:
			if !t.Has(fp.slot) {
				fv.SetZero()
				continue
			}
			raw := flatcore.GetVector[uint8](t, fp.slot)
			n := raw.Len()
			start := raw.Pos + flatcore.SizeUOffsetT
			s := reflect.MakeSlice(fv.Type(), n, n)
			for i := range n {
				common.SetFixed(s.Index(i), t.Bytes[start+flatcore.UOffsetT(i*fp.size):], fp.rkind)
			}
			fv.Set(s)
		case stringVecField:
			if !t.Has(fp.slot) {
				fv.SetZero()
				continue
			}
			vec := t.Strings(fp.slot)
			s := reflect.MakeSlice(fv.Type(), vec.Len(), vec.Len())
			for i, str := range vec.All() {
				s.Index(i).SetString(strings.Clone(str))
			}
			fv.Set(s)
		case tableField:
			child := t.Nested(fp.slot)
			if child.IsNil() {
				fv.SetZero()
				continue
			}
			dst := fv
			if fp.ptr {
				dst = reflect.New(fp.elem)
				fv.Set(dst)
				dst = dst.Elem()
			}
			if err := c.unmarshal(child, dst); err != nil {
				return err
			}
		case tableVecField:
			if !t.Has(fp.slot) {
				fv.SetZero()
				continue
			}
			vec := t.Tables(fp.slot)
			s := reflect.MakeSlice(fv.Type(), vec.Len(), vec.Len())
			for i, item := range vec.All() {
				dst := s.Index(i)
				if fp.ptr {
					dst.Set(reflect.New(fp.elem))
					dst = dst.Elem()
				}
				if err := c.unmarshal(item, dst); err != nil {
					return err
				}
			}
			fv.Set(s)
		}
	}
	return nil
}

// Decode verifies buf against v's layout and unmarshals its root into v.
func (c *Codec) Decode(buf []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrNotStructPtr
	}
	fn, err := c.Verifier(rv.Elem().Type())
	if err != nil {
		return err
	}
	root, err := flatcore.Open(buf, flatcore.ReadOptions{Verify: fn, Limits: c.Limits})
	if err != nil {
		return err
	}
	return c.unmarshal(root, rv.Elem())
}

// Verifier returns a TableVerifier for the layout of struct type t.
func (c *Codec) Verifier(t reflect.Type) (flatcore.TableVerifier, error) {
	p, err := c.getPlan(t)
	if err != nil {
		return nil, err
	}
	return func(v *flatcore.Verifier, tbl flatcore.Table) error {
		return c.verify(v, tbl, p)
	}, nil
}

func (c *Codec) verify(v *flatcore.Verifier, t flatcore.Table, p *structPlan) error {
	for _, fp := range p.fields {
		var err error
		switch fp.kind {
		case scalarField:
			err = v.Field(t, fp.slot, fp.size, fp.size)
		case stringField:
			err = v.String(t, fp.slot)
		case bytesField:
			err = v.Vector(t, fp.slot, 1)
		case scalarVecField:
			err = v.Vector(t, fp.slot, fp.size)
		case stringVecField:
			err = v.StringVector(t, fp.slot)
		case tableField, tableVecField:
			var fn flatcore.TableVerifier
			if fn, err = c.Verifier(fp.elem); err != nil {
				return err
			}
			if fp.kind == tableField {
				err = v.NestedTable(t, fp.slot, fn)
			} else {
				err = v.TableVector(t, fp.slot, fn)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
