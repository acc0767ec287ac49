package common

import (
	"encoding/binary"
	"math"
	"reflect"
	"unsafe"
)

// Scalar is the set of fixed-width values that can be stored inline in a
// table, a struct or a vector. Named types (enums) are allowed.
type Scalar interface {
	~bool | ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// SizeOf returns the encoded width of T in bytes.
func SizeOf[T Scalar]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

// Put encodes v little-endian into the front of b.
func Put[T Scalar](b []byte, v T) {
	switch x := any(v).(type) {
	case bool:
		if x {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case int8:
		b[0] = byte(x)
	case uint8:
		b[0] = x
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case uint16:
		binary.LittleEndian.PutUint16(b, x)
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(b, x)
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(b, x)
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	default:
		// named type such as an enum
		PutFixed(b, reflect.ValueOf(v))
	}
}

// Get decodes a little-endian T from the front of b.
func Get[T Scalar](b []byte) T {
	var out T
	switch p := any(&out).(type) {
	case *bool:
		*p = b[0] != 0
	case *int8:
		*p = int8(b[0])
	case *uint8:
		*p = b[0]
	case *int16:
		*p = int16(binary.LittleEndian.Uint16(b))
	case *uint16:
		*p = binary.LittleEndian.Uint16(b)
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b)
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		dst := reflect.ValueOf(&out).Elem()
		SetFixed(dst, b, dst.Kind())
	}
	return out
}

// IsFixedKind reports whether k is a fixed-size primitive kind.
func IsFixedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// FixedSize returns the byte width for fixed-size primitive kinds.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	default:
		return -1
	}
}

// PutFixed encodes the fixed-width primitive held by v into b.
func PutFixed(b []byte, v reflect.Value) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case reflect.Int8:
		b[0] = byte(v.Int())
	case reflect.Uint8:
		b[0] = byte(v.Uint())
	case reflect.Int16:
		binary.LittleEndian.PutUint16(b, uint16(v.Int()))
	case reflect.Uint16:
		binary.LittleEndian.PutUint16(b, uint16(v.Uint()))
	case reflect.Int32:
		binary.LittleEndian.PutUint32(b, uint32(v.Int()))
	case reflect.Uint32:
		binary.LittleEndian.PutUint32(b, uint32(v.Uint()))
	case reflect.Int64:
		binary.LittleEndian.PutUint64(b, uint64(v.Int()))
	case reflect.Uint64:
		binary.LittleEndian.PutUint64(b, v.Uint())
	case reflect.Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.Float()))
	}
}

// SetFixed decodes a fixed-width primitive from b and sets dst.
func SetFixed(dst reflect.Value, b []byte, k reflect.Kind) {
	switch k {
	case reflect.Bool:
		dst.SetBool(b[0] != 0)
	case reflect.Int8:
		dst.SetInt(int64(int8(b[0])))
	case reflect.Uint8:
		dst.SetUint(uint64(b[0]))
	case reflect.Int16:
		dst.SetInt(int64(int16(binary.LittleEndian.Uint16(b))))
	case reflect.Uint16:
		dst.SetUint(uint64(binary.LittleEndian.Uint16(b)))
	case reflect.Int32:
		dst.SetInt(int64(int32(binary.LittleEndian.Uint32(b))))
	case reflect.Uint32:
		dst.SetUint(uint64(binary.LittleEndian.Uint32(b)))
	case reflect.Int64:
		dst.SetInt(int64(binary.LittleEndian.Uint64(b)))
	case reflect.Uint64:
		dst.SetUint(binary.LittleEndian.Uint64(b))
	case reflect.Float32:
		dst.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case reflect.Float64:
		dst.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
}

// PadSize returns the number of zero bytes needed so that offset+pad is a
// multiple of align. align must be a power of two.
func PadSize(offset, align int) int {
	return (^offset + 1) & (align - 1)
}

// AlignUp rounds n up to the next multiple of align.
func AlignUp(n, align int) int {
	return n + PadSize(n, align)
}

var littleEndianHost = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// LittleEndianHost reports whether the running machine stores integers
// least significant byte first.
func LittleEndianHost() bool { return littleEndianHost }

// Alias reinterprets the first n elements of b as a []T without copying.
// It reports false when the host byte order differs from the wire order,
// when b is not suitably aligned for T, or when T is bool.
func Alias[T Scalar](b []byte, n int) ([]T, bool) {
	var z T
	if reflect.TypeOf(z).Kind() == reflect.Bool || !littleEndianHost {
		return nil, false
	}
	if n == 0 {
		return []T{}, true
	}
	size := int(unsafe.Sizeof(z))
	if len(b) < n*size {
		return nil, false
	}
	p := unsafe.Pointer(&b[0])
	if uintptr(p)%unsafe.Alignof(z) != 0 {
		return nil, false
	}
	return unsafe.Slice((*T)(p), n), true
}
