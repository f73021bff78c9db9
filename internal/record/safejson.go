package record

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// CircularSentinel replaces values that point back into themselves during
// safe serialization.
const CircularSentinel = "[Circular]"

// MarshalSafe encodes a payload to JSON while tolerating the shapes that
// make the standard encoder fail: reference cycles become the
// CircularSentinel string, functions and channels become null, and
// non-finite floats become null. Capture must not lose a whole batch over
// one hostile payload.
func MarshalSafe(payload any) (json.RawMessage, error) {
	if data, err := json.Marshal(payload); err == nil {
		return data, nil
	}
	sanitized := sanitize(reflect.ValueOf(payload), map[uintptr]bool{})
	data, err := json.Marshal(sanitized)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// MarshalRecords encodes a batch. A record whose payload still defeats the
// safe encoder is reduced to its type and timestamp rather than dropped,
// so batch ordering survives.
func MarshalRecords(records []Record) (json.RawMessage, error) {
	encoded := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			data, err = json.Marshal(Record{Type: rec.Type, Timestamp: rec.Timestamp})
			if err != nil {
				return nil, fmt.Errorf("marshal record: %w", err)
			}
		}
		encoded = append(encoded, data)
	}
	out, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	return out, nil
}

func sanitize(v reflect.Value, seen map[uintptr]bool) any {
	if !v.IsValid() {
		return nil
	}

	if v.CanInterface() {
		if marshaler, ok := v.Interface().(json.Marshaler); ok {
			if data, err := marshaler.MarshalJSON(); err == nil {
				return json.RawMessage(data)
			}
			return nil
		}
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return sanitize(v.Elem(), seen)

	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		addr := v.Pointer()
		if seen[addr] {
			return CircularSentinel
		}
		seen[addr] = true
		out := sanitize(v.Elem(), seen)
		delete(seen, addr)
		return out

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		addr := v.Pointer()
		if seen[addr] {
			return CircularSentinel
		}
		seen[addr] = true
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = sanitize(iter.Value(), seen)
		}
		delete(seen, addr)
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), v.Bytes()...)
		}
		addr := v.Pointer()
		if addr != 0 && seen[addr] {
			return CircularSentinel
		}
		if addr != 0 {
			seen[addr] = true
			defer delete(seen, addr)
		}
		return sanitizeSequence(v, seen)

	case reflect.Array:
		return sanitizeSequence(v, seen)

	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name, omitEmpty := jsonFieldName(field)
			if name == "-" {
				continue
			}
			value := v.Field(i)
			if omitEmpty && value.IsZero() {
				continue
			}
			out[name] = sanitize(value, seen)
		}
		return out

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f

	default:
		return v.Interface()
	}
}

func sanitizeSequence(v reflect.Value, seen map[uintptr]bool) []any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = sanitize(v.Index(i), seen)
	}
	return out
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name, false
	}
	name := tag
	omitEmpty := false
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			name = tag[:i]
			omitEmpty = tag[i+1:] == "omitempty"
			break
		}
	}
	if name == "" {
		name = field.Name
	}
	return name, omitEmpty
}
