package canon

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Normalize walks an arbitrary Go value (the shapes produced by decoding
// JSON, or plain map[string]any/[]any payloads built by callers) and
// returns its canon.Value tree. It never mutates the input.
func Normalize(v any) (Value, error) {
	return normalize(reflect.ValueOf(v))
}

// Snapshot is an alias for Normalize: the spec names both operations
// separately (freeze-on-write vs normalize-for-hashing) but in this
// implementation both produce the same immutable Value tree, since Value is
// already structurally immutable once built.
func Snapshot(v any) (Value, error) {
	return Normalize(v)
}

func normalize(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return Null{}, nil
	}

	switch x := rv.Interface().(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case time.Time:
		return Timestamp(x.UTC()), nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr:
		if rv.IsNil() {
			return Null{}, nil
		}
		return normalize(rv.Elem())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		return normalizeList(rv)
	case reflect.Map:
		return normalizeMap(rv)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrInvalidValue, rv.Kind())
	}
}

func normalizeFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite float", ErrInvalidValue)
	}
	// Decimal round-trip normalization: render and re-parse so that
	// numerically-equal floats always collapse to the same bit pattern,
	// and fold -0 into 0.
	s := strconv.FormatFloat(f, 'g', -1, 64)
	normalized, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: float round-trip failed", ErrInvalidValue)
	}
	if normalized == 0 {
		normalized = 0
	}
	return Float(normalized), nil
}

func normalizeList(rv reflect.Value) (Value, error) {
	n := rv.Len()
	out := make(List, n)
	for i := 0; i < n; i++ {
		item, err := normalize(rv.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func normalizeMap(rv reflect.Value) (Value, error) {
	fields := make(map[string]Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, err := coerceKey(iter.Key())
		if err != nil {
			return nil, err
		}
		val, err := normalize(iter.Value())
		if err != nil {
			return nil, err
		}
		fields[key] = val
	}
	return NewMap(fields), nil
}

func coerceKey(rv reflect.Value) (string, error) {
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	default:
		return "", fmt.Errorf("%w: map key of kind %s is not string-coercible", ErrInvalidKey, rv.Kind())
	}
}
