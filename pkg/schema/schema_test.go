package schema

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/flatcore"
	"github.com/rawbytedev/flatcore/examples/monster"
)

const monsterSchema = "../../examples/monster/monster.yaml"

func loadMonster(t *testing.T) *Schema {
	t.Helper()
	s, err := Load(context.Background(), monsterSchema)
	require.NoError(t, err)
	return s
}

func orc() map[string]any {
	return map[string]any{
		"pos":       map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
		"hp":        300,
		"name":      "Orc",
		"inventory": []any{0, 1, 2, 3, 4},
		"color":     0,
		"weapons": []any{
			map[string]any{"name": "Sword", "damage": 3},
			map[string]any{"name": "Axe", "damage": 5},
		},
		"equipped": map[string]any{
			"type":  "Weapon",
			"value": map[string]any{"name": "Club", "damage": 7},
		},
		"path": []any{
			map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
			map[string]any{"x": 4.0, "y": 5.0, "z": 6.0},
		},
	}
}

func TestLoadMonsterSchema(t *testing.T) {
	s := loadMonster(t)
	assert.Equal(t, "Monster", s.Root)

	vec, ok := s.Struct("Vec3")
	require.True(t, ok)
	assert.Equal(t, 12, vec.Size)
	assert.Equal(t, 4, vec.Align)
	assert.Equal(t, 8, vec.Fields[2].Offset)

	m, ok := s.Table("Monster")
	require.True(t, ok)
	mana, ok := m.Field("mana")
	require.True(t, ok)
	assert.Equal(t, int16(150), mana.DefaultValue())
	equipped, _ := m.Field("equipped")
	assert.Equal(t, 8, equipped.TypeSlot())
	tag, ok := equipped.Variant("Weapon")
	assert.True(t, ok)
	assert.Equal(t, flatcore.UnionType(1), tag)
	assert.Equal(t, 12, m.Fields[0].Width(s))
}

func TestStructLayout(t *testing.T) {
	s, err := Parse([]byte(`
structs:
  - name: Inner
    fields:
      - {name: a, type: int8}
      - {name: b, type: int64}
  - name: Outer
    fields:
      - {name: tag, type: uint8}
      - {name: in, type: struct, ref: Inner}
      - {name: n, type: int16}
tables: []
`))
	require.NoError(t, err)
	inner, _ := s.Struct("Inner")
	assert.Equal(t, 16, inner.Size)
	assert.Equal(t, 8, inner.Align)
	outer, _ := s.Struct("Outer")
	assert.Equal(t, 8, outer.Fields[1].Offset)
	assert.Equal(t, 24, outer.Fields[2].Offset)
	assert.Equal(t, 32, outer.Size)
}

func TestInvalidSchemas(t *testing.T) {
	cases := map[string]string{
		"slot reused": `
tables:
  - name: T
    fields:
      - {name: a, slot: 0, type: int32}
      - {name: b, slot: 0, type: int32}`,
		"union type slot taken": `
tables:
  - name: V
    fields: []
  - name: T
    fields:
      - {name: a, slot: 0, type: int32}
      - {name: u, slot: 1, type: union, variants: {1: V}}`,
		"default overflows": `
tables:
  - name: T
    fields:
      - {name: a, slot: 0, type: int8, default: 300}`,
		"default on string": `
tables:
  - name: T
    fields:
      - {name: a, slot: 0, type: string, default: x}`,
		"unknown ref": `
tables:
  - name: T
    fields:
      - {name: a, slot: 0, type: table, ref: Nope}`,
		"unknown kind": `
tables:
  - name: T
    fields:
      - {name: a, slot: 0, type: int128}`,
		"recursive struct": `
structs:
  - name: S
    fields:
      - {name: s, type: struct, ref: S}
tables: []`,
		"short identifier": `
file_identifier: AB
tables: []`,
		"missing root": `
root: Nope
tables: []`,
		"tag zero variant": `
tables:
  - name: V
    fields: []
  - name: T
    fields:
      - {name: u, slot: 1, type: union, variants: {0: V}}`,
		"not yaml": "tables: [",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestEncodeMatchesBindings(t *testing.T) {
	s := loadMonster(t)
	buf, err := s.Encode("", orc(), EncodeOptions{})
	require.NoError(t, err)

	mon := monster.NewMonsterT()
	mon.Pos = &monster.Vec3T{X: 1, Y: 2, Z: 3}
	mon.Hp = 300
	mon.Name = "Orc"
	mon.Inventory = []byte{0, 1, 2, 3, 4}
	mon.Color = monster.ColorRed
	mon.Weapons = []*monster.WeaponT{{Name: "Sword", Damage: 3}, {Name: "Axe", Damage: 5}}
	mon.Equipped = &monster.EquipmentT{Type: monster.EquipmentWeapon, Value: &monster.WeaponT{Name: "Club", Damage: 7}}
	mon.Path = []monster.Vec3T{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}

	b := flatcore.NewBuilder(0)
	monster.FinishMonsterBuffer(b, mon.Pack(b))
	assert.Equal(t, b.FinishedBytes(), buf)

	m, err := monster.OpenMonster(buf, flatcore.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Orc", m.Name())
	assert.Equal(t, int16(150), m.Mana())
	assert.Equal(t, int16(300), m.Hp())
	assert.Equal(t, monster.ColorRed, m.Color())
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, m.InventoryBytes())
	assert.Equal(t, 2, m.WeaponsLength())
	assert.Equal(t, monster.EquipmentWeapon, m.EquippedType())
}

func TestDecode(t *testing.T) {
	s := loadMonster(t)
	buf, err := s.Encode("Monster", orc(), EncodeOptions{})
	require.NoError(t, err)

	root, err := s.Open(buf, "", flatcore.ReadOptions{})
	require.NoError(t, err)
	got, err := s.Decode(root, "Monster")
	require.NoError(t, err)

	vec := func(x, y, z float64) map[string]any { return map[string]any{"x": x, "y": y, "z": z} }
	want := map[string]any{
		"pos":       vec(1, 2, 3),
		"mana":      int64(150),
		"hp":        int64(300),
		"name":      "Orc",
		"inventory": []any{uint64(0), uint64(1), uint64(2), uint64(3), uint64(4)},
		"color":     int64(0),
		"weapons": []any{
			map[string]any{"name": "Sword", "damage": int64(3)},
			map[string]any{"name": "Axe", "damage": int64(5)},
		},
		"equipped": map[string]any{
			"type":  "Weapon",
			"value": map[string]any{"name": "Club", "damage": int64(7)},
		},
		"path": []any{vec(1, 2, 3), vec(4, 5, 6)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeOmitsAbsentFields(t *testing.T) {
	s := loadMonster(t)
	buf, err := s.Encode("", map[string]any{"name": "Bare"}, EncodeOptions{})
	require.NoError(t, err)
	root, err := s.Open(buf, "", flatcore.ReadOptions{})
	require.NoError(t, err)

	got, err := s.Decode(root, "Monster")
	require.NoError(t, err)
	want := map[string]any{"name": "Bare", "mana": int64(150), "hp": int64(100), "color": int64(2)}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestEncodeOptions(t *testing.T) {
	s := loadMonster(t)
	obj := map[string]any{"name": "Orc", "hp": 100}

	plain, err := s.Encode("", obj, EncodeOptions{})
	require.NoError(t, err)
	forced, err := s.Encode("", obj, EncodeOptions{ForceDefaults: true})
	require.NoError(t, err)
	assert.Greater(t, len(forced), len(plain))

	root, err := s.Open(forced, "", flatcore.ReadOptions{})
	require.NoError(t, err)
	m, _ := s.Table("Monster")
	hp, _ := m.Field("hp")
	assert.True(t, root.Has(hp.Slot))

	prefixed, err := s.Encode("", obj, EncodeOptions{SizePrefixed: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(len(prefixed)-flatcore.SizePrefixLength), flatcore.GetSizePrefix(prefixed))
	_, err = s.Open(prefixed, "", flatcore.ReadOptions{SizePrefixed: true})
	assert.NoError(t, err)
}

func TestBuildRejectsBadInput(t *testing.T) {
	s := loadMonster(t)
	cases := map[string]map[string]any{
		"unknown key":      {"name": "x", "speed": 3},
		"deprecated":       {"name": "x", "friendly": true},
		"wrong type":       {"name": 7},
		"overflow":         {"name": "x", "hp": 70000},
		"fractional":       {"name": "x", "hp": 1.5},
		"bad vector":       {"name": "x", "inventory": "abc"},
		"bad element":      {"name": "x", "inventory": []any{-1}},
		"unknown variant":  {"name": "x", "equipped": map[string]any{"type": "Shield", "value": map[string]any{}}},
		"variant no value": {"name": "x", "equipped": map[string]any{"type": "Weapon"}},
		"bad struct":       {"name": "x", "pos": map[string]any{"w": 1}},
		"bad child":        {"name": "x", "weapons": []any{map[string]any{"edge": 1}}},
	}
	for name, obj := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Encode("", obj, EncodeOptions{})
			assert.ErrorIs(t, err, ErrValue)
		})
	}

	_, err := s.Encode("Dragon", nil, EncodeOptions{})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestBuildReturnsBuilderViolations(t *testing.T) {
	s := loadMonster(t)

	b := flatcore.NewBuilder(0)
	b.StartTable()
	assert.NotPanics(t, func() {
		_, err := s.Build(b, "Monster", map[string]any{"name": "Orc"})
		assert.ErrorIs(t, err, flatcore.ErrNested)
	})

	b.Reset()
	b.StartTable()
	b.Finish(b.EndTable())
	assert.NotPanics(t, func() {
		_, err := s.Build(b, "Monster", map[string]any{"hp": 1})
		assert.ErrorIs(t, err, flatcore.ErrFinished)
	})

	b.Reset()
	off, err := s.Build(b, "Monster", map[string]any{"name": "Orc"})
	require.NoError(t, err)
	b.Finish(off)
	assert.Equal(t, "Orc", monster.GetRootAsMonster(b.FinishedBytes()).Name())
}

func TestOpenUsesSchemaVerifier(t *testing.T) {
	s := loadMonster(t)

	// name is required
	buf, err := s.Encode("", map[string]any{"hp": 5}, EncodeOptions{})
	require.NoError(t, err)
	_, err = s.Open(buf, "", flatcore.ReadOptions{})
	assert.ErrorIs(t, err, flatcore.ErrMalformed)

	buf, err = s.Encode("", orc(), EncodeOptions{})
	require.NoError(t, err)
	for n := range len(buf) {
		_, err := s.Open(buf[:n], "", flatcore.ReadOptions{})
		require.Error(t, err, "prefix of %d bytes", n)
	}

	other := bytes.Clone(buf)
	copy(other[flatcore.SizeUOffsetT:], "NOPE")
	_, err = s.Open(other, "", flatcore.ReadOptions{})
	assert.ErrorIs(t, err, flatcore.ErrIdentifierMismatch)
}

func TestUnknownVariantIsTolerated(t *testing.T) {
	s := loadMonster(t)
	b := flatcore.NewBuilder(0)
	name := b.CreateString("Future")
	b.StartTable()
	shield := b.EndTable()
	b.StartTable()
	b.AddOffset(3, name)
	b.AddUnion(8, 2, 9, shield)
	b.FinishWithFileIdentifier(b.EndTable(), []byte("MONS"))

	root, err := s.Open(b.FinishedBytes(), "", flatcore.ReadOptions{})
	require.NoError(t, err)
	got, err := s.Decode(root, "Monster")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": uint64(2)}, got["equipped"])
}
