package serialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestSelfReferenceIsCircular(t *testing.T) {
	m := map[string]any{}
	m["a"] = m
	got := Value(m, Options{}).(map[string]any)
	if got["a"] != Circular {
		t.Fatalf("a = %#v", got["a"])
	}
}

type node struct {
	Name string
	Next *node
}

func TestPointerCycle(t *testing.T) {
	a := &node{Name: "a"}
	b := &node{Name: "b", Next: a}
	a.Next = b
	got := Value(a, Options{}).(map[string]any)
	next := got["Next"].(map[string]any)
	if next["Name"] != "b" || next["Next"] != Circular {
		t.Fatalf("got %#v", got)
	}
}

func TestSharedReferenceIsNotCircular(t *testing.T) {
	shared := map[string]any{"x": int64(1)}
	got := Value(map[string]any{"l": shared, "r": shared}, Options{}).(map[string]any)
	for _, k := range []string{"l", "r"} {
		if _, ok := got[k].(map[string]any); !ok {
			t.Fatalf("%s = %#v", k, got[k])
		}
	}
}

func TestMaxDepth(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < 5; i++ {
		v = []any{v}
	}
	got := Value(v, Options{MaxDepth: 2})
	lvl := got.([]any)[0].([]any)[0].([]any)
	if lvl[0] != DepthExceeded {
		t.Fatalf("got %#v", lvl[0])
	}
}

func TestPrimitivesPassThrough(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{42, int64(42)},
		{uint8(7), uint64(7)},
		{1.5, 1.5},
		{"s", "s"},
	}
	for _, tc := range cases {
		if got := Value(tc.in, Options{}); got != tc.want {
			t.Errorf("Value(%#v) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestTaggedForms(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	cases := []struct {
		name string
		in   any
		typ  string
		key  string
		want any
	}{
		{"bigint", big1, "BigInt", "value", "123456789012345678901234567890n"},
		{"unsafe int", int64(1) << 60, "BigInt", "value", "1152921504606846976n"},
		{"date", when, "Date", "value", "2024-03-01T12:00:00Z"},
		{"duration", 3 * time.Second, "Duration", "value", "3s"},
		{"regexp", regexp.MustCompile(`a+b`), "RegExp", "source", "a+b"},
		{"nan", math.NaN(), "Number", "value", "NaN"},
		{"chan", make(chan int), "Symbol", "description", "chan int"},
		{"func", TestTaggedForms, "Function", "name", "serialize.TestTaggedForms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Value(tc.in, Options{}).(map[string]any)
			if !ok {
				t.Fatalf("not tagged: %#v", Value(tc.in, Options{}))
			}
			if got[TypeKey] != tc.typ || got[tc.key] != tc.want {
				t.Fatalf("got %#v", got)
			}
		})
	}
}

func TestBufferPreview(t *testing.T) {
	buf := make([]byte, 100)
	for i := range buf {
		buf[i] = byte(i)
	}
	got := Value(buf, Options{BufferPreviewLength: 4}).(map[string]any)
	if got[TypeKey] != "Buffer" || got["length"] != 100 || got["preview"] != "00010203" {
		t.Fatalf("got %#v", got)
	}
}

func TestSetAndMap(t *testing.T) {
	set := Value(map[string]struct{}{"b": {}, "a": {}}, Options{}).(map[string]any)
	if set[TypeKey] != "Set" || !reflect.DeepEqual(set["values"], []any{"a", "b"}) {
		t.Fatalf("set = %#v", set)
	}
	m := Value(map[int]string{2: "two", 1: "one"}, Options{}).(map[string]any)
	want := []any{[]any{int64(1), "one"}, []any{int64(2), "two"}}
	if m[TypeKey] != "Map" || !reflect.DeepEqual(m["entries"], want) {
		t.Fatalf("map = %#v", m)
	}
}

type jsonTagged struct {
	Visible string `json:"visible"`
	Skipped string `json:"-"`
	Empty   string `json:"empty,omitempty"`
	hidden  string
	Plain   int
}

func TestStructUsesJSONNames(t *testing.T) {
	got := Value(jsonTagged{Visible: "v", Skipped: "s", hidden: "h", Plain: 3}, Options{}).(map[string]any)
	want := map[string]any{"visible": "v", "Plain": int64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

type codedError struct {
	Code  int
	cause error
}

func (e *codedError) Error() string { return fmt.Sprintf("code %d", e.Code) }
func (e *codedError) Unwrap() error { return e.cause }
func (e *codedError) Stack() string { return "frame1\nframe2" }

func TestErrorForm(t *testing.T) {
	err := &codedError{Code: 7, cause: fs.ErrNotExist}
	got := Value(err, Options{IncludeStack: true}).(map[string]any)
	if got[TypeKey] != "Error" || got["name"] != "*serialize.codedError" || got["message"] != "code 7" {
		t.Fatalf("got %#v", got)
	}
	if got["Code"] != int64(7) {
		t.Fatalf("own field missing: %#v", got)
	}
	if got["stack"] != "frame1\nframe2" {
		t.Fatalf("stack = %#v", got["stack"])
	}
	cause := got["cause"].(map[string]any)
	if cause["message"] != fs.ErrNotExist.Error() {
		t.Fatalf("cause = %#v", cause)
	}

	noStack := Value(err, Options{}).(map[string]any)
	if _, ok := noStack["stack"]; ok {
		t.Fatal("stack included without IncludeStack")
	}
}

func TestJoinedErrors(t *testing.T) {
	got := Value(errors.Join(errors.New("a"), errors.New("b")), Options{}).(map[string]any)
	causes, ok := got["causes"].([]any)
	if !ok || len(causes) != 2 {
		t.Fatalf("got %#v", got)
	}
}

type panicky struct{}

func (panicky) Error() string { panic("boom") }

type panickyText int

func (panickyText) MarshalText() ([]byte, error) { panic("kaboom") }

func TestPanickingAccessorsBecomeMarkers(t *testing.T) {
	got := Value(map[string]any{"err": panicky{}, "txt": panickyText(1)}, Options{}).(map[string]any)
	msg := got["err"].(map[string]any)["message"]
	if msg != "[Serialization Error: boom]" {
		t.Fatalf("err message = %#v", msg)
	}
	if got["txt"] != "[Serialization Error: kaboom]" {
		t.Fatalf("txt = %#v", got["txt"])
	}
}

func TestJSONOutput(t *testing.T) {
	m := map[string]any{"n": math.Inf(1)}
	m["self"] = m
	out := JSON(m, Options{})
	var back map[string]any
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if back["self"] != Circular {
		t.Fatalf("self = %#v", back["self"])
	}
	if !strings.Contains(out, `"Infinity"`) {
		t.Fatalf("out = %s", out)
	}
}

func TestFallbackJSON(t *testing.T) {
	var back map[string]any
	if err := json.Unmarshal([]byte(fallbackJSON("bad")), &back); err != nil {
		t.Fatal(err)
	}
	if back["__serializationError"] != true || back["message"] != "bad" {
		t.Fatalf("got %#v", back)
	}
}

func TestMapNil(t *testing.T) {
	if got := Map(nil, Options{}); got == nil || len(got) != 0 {
		t.Fatalf("got %#v", got)
	}
}
