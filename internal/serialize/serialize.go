// Package serialize turns arbitrary Go values into JSON-safe trees.
//
// Values that encoding/json would reject or lose (cycles, functions, channels,
// NaN, integers beyond 2^53, byte blobs, errors) become tagged maps carrying a
// "__type" key. Serialization never panics: a value whose methods panic is
// replaced by a "[Serialization Error: ...]" marker at its position.
package serialize

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"time"
)

const (
	Circular      = "[Circular]"
	DepthExceeded = "[Max Depth Exceeded]"

	DefaultMaxDepth      = 10
	DefaultPreviewLength = 50

	maxSafeInteger = 1<<53 - 1
)

// Options controls a single serialization call.
type Options struct {
	MaxDepth            int
	IncludeStack        bool
	BufferPreviewLength int
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{MaxDepth: DefaultMaxDepth, BufferPreviewLength: DefaultPreviewLength}
}

func (o Options) normalized() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.BufferPreviewLength <= 0 {
		o.BufferPreviewLength = DefaultPreviewLength
	}
	return o
}

// identity is reference identity for pointers, maps and slices. Slices also
// key on length so a sub-slice sharing a backing array is not a cycle.
type identity struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

type state struct {
	opts Options
	// seen holds the references on the current path from the root.
	seen map[identity]struct{}
}

// Value returns a JSON-safe rendition of v.
func Value(v any, opts Options) any {
	s := &state{opts: opts.normalized(), seen: make(map[identity]struct{})}
	return s.value(reflect.ValueOf(v), 0)
}

// Map serializes a context map. A nil map yields an empty one.
func Map(ctx map[string]any, opts Options) map[string]any {
	if ctx == nil {
		return map[string]any{}
	}
	if m, ok := Value(ctx, opts).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// JSON marshals the serialized form of v. On failure it returns a minimal
// {"__serializationError":true,"message":...} object instead.
func JSON(v any, opts Options) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fallbackJSON(fmt.Sprint(r))
		}
	}()
	b, err := json.Marshal(Value(v, opts))
	if err != nil {
		return fallbackJSON(err.Error())
	}
	return string(b)
}

func fallbackJSON(msg string) string {
	b, err := json.Marshal(map[string]any{"__serializationError": true, "message": msg})
	if err != nil {
		return `{"__serializationError":true}`
	}
	return string(b)
}

func errorMarker(r any) string {
	return fmt.Sprintf("[Serialization Error: %v]", r)
}

func (s *state) value(rv reflect.Value, depth int) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = errorMarker(r)
		}
	}()

	for rv.IsValid() && rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || isNil(rv) {
		return nil
	}

	if id, ok := identityOf(rv); ok {
		if _, dup := s.seen[id]; dup {
			return Circular
		}
		s.seen[id] = struct{}{}
		defer delete(s.seen, id)
	}

	if depth > s.opts.MaxDepth {
		return DepthExceeded
	}
	return s.visit(rv, depth)
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func identityOf(rv reflect.Value) (identity, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		return identity{typ: rv.Type(), ptr: rv.Pointer(), n: rv.Len()}, true
	}
	return identity{}, false
}

var (
	bytesType     = reflect.TypeOf([]byte(nil))
	rawType       = reflect.TypeOf(json.RawMessage(nil))
	emptyStruct   = reflect.TypeOf(struct{}{})
	textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func (s *state) visit(rv reflect.Value, depth int) any {
	if rv.CanInterface() {
		switch x := rv.Interface().(type) {
		case time.Time:
			return tagged("Date", "value", x.UTC().Format(time.RFC3339Nano))
		case time.Duration:
			return tagged("Duration", "value", x.String())
		case *big.Int:
			return bigIntTag(x.String())
		case big.Int:
			return bigIntTag(x.String())
		case *regexp.Regexp:
			return tagged("RegExp", "source", x.String())
		case error:
			return s.errorValue(x, rv, depth)
		}
		if rv.Type() == bytesType || rv.Type() == rawType {
			return s.buffer(rv.Bytes())
		}
		if rv.Kind() != reflect.Struct && rv.Kind() != reflect.Pointer && rv.Type().Implements(textMarshaler) {
			if b, err := rv.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
				return string(b)
			}
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > maxSafeInteger || n < -maxSafeInteger {
			return bigIntTag(fmt.Sprint(n))
		}
		return n
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > maxSafeInteger {
			return bigIntTag(fmt.Sprint(n))
		}
		return n
	case reflect.Float32, reflect.Float64:
		return number(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		return tagged("Complex", "value", fmt.Sprint(rv.Complex()))
	case reflect.String:
		return rv.String()
	case reflect.Func:
		return functionTag(rv)
	case reflect.Chan:
		return tagged("Symbol", "description", rv.Type().String())
	case reflect.UnsafePointer, reflect.Uintptr:
		return tagged("Symbol", "description", rv.Type().String())
	case reflect.Pointer:
		return s.value(rv.Elem(), depth)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = s.value(rv.Index(i), depth+1)
		}
		return out
	case reflect.Map:
		return s.mapValue(rv, depth)
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		s.structFields(rv, depth, out)
		return out
	}
	return tagged("Symbol", "description", rv.Type().String())
}

func number(f float64) any {
	switch {
	case math.IsNaN(f):
		return tagged("Number", "value", "NaN")
	case math.IsInf(f, 1):
		return tagged("Number", "value", "Infinity")
	case math.IsInf(f, -1):
		return tagged("Number", "value", "-Infinity")
	}
	return f
}
