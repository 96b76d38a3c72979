package serialize

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// TypeKey is the discriminator key of every tagged form.
const TypeKey = "__type"

func tagged(kind, key string, val any) map[string]any {
	return map[string]any{TypeKey: kind, key: val}
}

func bigIntTag(digits string) map[string]any {
	return tagged("BigInt", "value", digits+"n")
}

func functionTag(rv reflect.Value) map[string]any {
	name := "anonymous"
	if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
		name = fn.Name()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
	}
	return tagged("Function", "name", name)
}

func (s *state) buffer(b []byte) map[string]any {
	preview := b
	if len(preview) > s.opts.BufferPreviewLength {
		preview = preview[:s.opts.BufferPreviewLength]
	}
	return map[string]any{
		TypeKey:   "Buffer",
		"length":  len(b),
		"preview": hex.EncodeToString(preview),
	}
}

// stackTracer is implemented by errors that carry their own stack text.
type stackTracer interface {
	Stack() string
}

func safeMessage(err error) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = errorMarker(r)
		}
	}()
	return err.Error()
}

// errorValue renders an error with its exported fields and unwrap chain.
func (s *state) errorValue(err error, rv reflect.Value, depth int) map[string]any {
	out := map[string]any{}
	base := rv
	for base.Kind() == reflect.Pointer && !base.IsNil() {
		base = base.Elem()
	}
	if base.Kind() == reflect.Struct {
		s.structFields(base, depth, out)
	}

	out[TypeKey] = "Error"
	out["name"] = rv.Type().String()
	out["message"] = safeMessage(err)

	if s.opts.IncludeStack {
		if st, ok := err.(stackTracer); ok {
			out["stack"] = st.Stack()
		}
	}

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		causes := u.Unwrap()
		list := make([]any, len(causes))
		for i, c := range causes {
			list[i] = s.value(reflect.ValueOf(c), depth+1)
		}
		out["causes"] = list
	default:
		if cause := errors.Unwrap(err); cause != nil {
			out["cause"] = s.value(reflect.ValueOf(cause), depth+1)
		}
	}
	return out
}

func (s *state) mapValue(rv reflect.Value, depth int) any {
	t := rv.Type()
	if t.Elem() == emptyStruct {
		vals := make([]any, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			vals = append(vals, s.value(iter.Key(), depth+1))
		}
		sortByText(vals, func(i int) any { return vals[i] })
		return map[string]any{TypeKey: "Set", "values": vals}
	}

	if t.Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = s.value(iter.Value(), depth+1)
		}
		return out
	}

	entries := make([]any, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, []any{s.value(iter.Key(), depth+1), s.value(iter.Value(), depth+1)})
	}
	sortByText(entries, func(i int) any { return entries[i].([]any)[0] })
	return map[string]any{TypeKey: "Map", "entries": entries}
}

// sortByText orders serialized values by their printed form so output is
// stable across runs.
func sortByText(vals []any, key func(int) any) {
	keys := make([]string, len(vals))
	for i := range vals {
		keys[i] = fmt.Sprint(key(i))
	}
	sort.Sort(byText{vals: vals, keys: keys})
}

type byText struct {
	vals []any
	keys []string
}

func (b byText) Len() int           { return len(b.vals) }
func (b byText) Less(i, j int) bool { return b.keys[i] < b.keys[j] }
func (b byText) Swap(i, j int) {
	b.vals[i], b.vals[j] = b.vals[j], b.vals[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}

// structFields writes the exported fields of rv into out, using json tag
// names and flattening untagged embedded structs the way encoding/json does.
func (s *state) structFields(rv reflect.Value, depth int, out map[string]any) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, omitEmpty, skip := jsonName(f)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if ft.Kind() == reflect.Struct {
				s.structFields(fv, depth, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = s.value(fv, depth+1)
	}
}

func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false, false
	}
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	for _, o := range strings.Split(opts, ",") {
		if o == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
