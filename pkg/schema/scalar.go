package schema

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rawbytedev/flatcore"
)

// convertScalar turns a loosely typed value (as decoded from YAML or JSON)
// into the Go type of kind k, checking its range.
func convertScalar(k Kind, v any) (any, error) {
	switch k {
	case Bool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a bool", ErrValue, x)
			}
			return b, nil
		}
		return nil, fmt.Errorf("%w: %v is not a bool", ErrValue, v)
	case Int8, Int16, Int32, Int64:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		bits := k.Size() * 8
		if bits < 64 && (n < -(1<<(bits-1)) || n > 1<<(bits-1)-1) {
			return nil, fmt.Errorf("%w: %d overflows %s", ErrValue, n, k)
		}
		switch k {
		case Int8:
			return int8(n), nil
		case Int16:
			return int16(n), nil
		case Int32:
			return int32(n), nil
		}
		return n, nil
	case Uint8, Uint16, Uint32, Uint64:
		n, err := toUint(v)
		if err != nil {
			return nil, err
		}
		bits := k.Size() * 8
		if bits < 64 && n > 1<<bits-1 {
			return nil, fmt.Errorf("%w: %d overflows %s", ErrValue, n, k)
		}
		switch k {
		case Uint8:
			return uint8(n), nil
		case Uint16:
			return uint16(n), nil
		case Uint32:
			return uint32(n), nil
		}
		return n, nil
	case Float32:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case Float64:
		return toFloat(v)
	}
	return nil, fmt.Errorf("%w: %q is not a scalar", ErrUnknownType, k)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrValue, x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrValue, x)
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrValue, x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %v (%T) is not an integer", ErrValue, v, v)
}

func toUint(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case string:
		n, err := strconv.ParseUint(x, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an unsigned integer", ErrValue, x)
		}
		return n, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrValue, n)
	}
	return uint64(n), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrValue, x)
		}
		return f, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

// addScalar adds a typed value produced by convertScalar.
func addScalar(b *flatcore.Builder, slot int, v, d any) {
	switch x := v.(type) {
	case bool:
		flatcore.AddScalar(b, slot, x, d.(bool))
	case int8:
		flatcore.AddScalar(b, slot, x, d.(int8))
	case uint8:
		flatcore.AddScalar(b, slot, x, d.(uint8))
	case int16:
		flatcore.AddScalar(b, slot, x, d.(int16))
	case uint16:
		flatcore.AddScalar(b, slot, x, d.(uint16))
	case int32:
		flatcore.AddScalar(b, slot, x, d.(int32))
	case uint32:
		flatcore.AddScalar(b, slot, x, d.(uint32))
	case int64:
		flatcore.AddScalar(b, slot, x, d.(int64))
	case uint64:
		flatcore.AddScalar(b, slot, x, d.(uint64))
	case float32:
		flatcore.AddScalar(b, slot, x, d.(float32))
	case float64:
		flatcore.AddScalar(b, slot, x, d.(float64))
	default:
		panic(fmt.Sprintf("schema: %T is not a scalar", v))
	}
}

func prependScalar(b *flatcore.Builder, v any) {
	switch x := v.(type) {
	case bool:
		flatcore.Prepend(b, x)
	case int8:
		flatcore.Prepend(b, x)
	case uint8:
		flatcore.Prepend(b, x)
	case int16:
		flatcore.Prepend(b, x)
	case uint16:
		flatcore.Prepend(b, x)
	case int32:
		flatcore.Prepend(b, x)
	case uint32:
		flatcore.Prepend(b, x)
	case int64:
		flatcore.Prepend(b, x)
	case uint64:
		flatcore.Prepend(b, x)
	case float32:
		flatcore.Prepend(b, x)
	case float64:
		flatcore.Prepend(b, x)
	default:
		panic(fmt.Sprintf("schema: %T is not a scalar", v))
	}
}

// writeScalar stores a typed value at the start of dst.
func writeScalar(dst []byte, v any) {
	switch x := v.(type) {
	case bool:
		flatcore.Write(dst, x)
	case int8:
		flatcore.Write(dst, x)
	case uint8:
		flatcore.Write(dst, x)
	case int16:
		flatcore.Write(dst, x)
	case uint16:
		flatcore.Write(dst, x)
	case int32:
		flatcore.Write(dst, x)
	case uint32:
		flatcore.Write(dst, x)
	case int64:
		flatcore.Write(dst, x)
	case uint64:
		flatcore.Write(dst, x)
	case float32:
		flatcore.Write(dst, x)
	case float64:
		flatcore.Write(dst, x)
	default:
		panic(fmt.Sprintf("schema: %T is not a scalar", v))
	}
}

// readScalar decodes a scalar of kind k and widens it to bool, int64,
// uint64 or float64.
func readScalar(k Kind, buf []byte) any {
	switch k {
	case Bool:
		return flatcore.Read[bool](buf)
	case Int8:
		return int64(flatcore.Read[int8](buf))
	case Int16:
		return int64(flatcore.Read[int16](buf))
	case Int32:
		return int64(flatcore.Read[int32](buf))
	case Int64:
		return flatcore.Read[int64](buf)
	case Uint8:
		return uint64(flatcore.Read[uint8](buf))
	case Uint16:
		return uint64(flatcore.Read[uint16](buf))
	case Uint32:
		return uint64(flatcore.Read[uint32](buf))
	case Uint64:
		return flatcore.Read[uint64](buf)
	case Float32:
		return float64(flatcore.Read[float32](buf))
	case Float64:
		return flatcore.Read[float64](buf)
	}
	return nil
}

// widen converts a typed default to the representation readScalar uses.
func widen(v any) any {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case float32:
		return float64(x)
	}
	return v
}
