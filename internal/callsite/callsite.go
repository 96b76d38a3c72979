// Package callsite finds the first stack frame outside the reporting pipeline.
package callsite

import (
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
)

// Info is the location of the caller that triggered a report.
type Info struct {
	Method   string `json:"method"`
	File     string `json:"file"`
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
	// Column is always 0; Go frames do not carry one.
	Column int `json:"column"`
}

// Unknown is returned when no qualifying frame exists.
var Unknown = Info{Method: "<unknown>", File: "<unknown>", FilePath: "<unknown>"}

// IsUnknown reports whether i is the Unknown sentinel.
func (i Info) IsUnknown() bool { return i == Unknown }

// Map returns i as context keys.
func (i Info) Map() map[string]any {
	return map[string]any{
		"method":   i.Method,
		"file":     i.File,
		"filePath": i.FilePath,
		"line":     i.Line,
		"column":   i.Column,
	}
}

const maxFrames = 64

// pipelinePrefix is the import path prefix shared by the pipeline packages,
// e.g. "faultline/internal/".
var pipelinePrefix = strings.TrimSuffix(reflect.TypeOf(Info{}).PkgPath(), "callsite")

var pipelinePackages = []string{"callsite", "report", "serialize"}

// Capturer skips the pipeline packages plus any extra packages given to it.
type Capturer struct {
	skip []string
}

// NewCapturer returns a Capturer that also treats extra import paths as
// part of the pipeline.
func NewCapturer(extra ...string) *Capturer {
	skip := make([]string, 0, len(pipelinePackages)+len(extra))
	for _, p := range pipelinePackages {
		skip = append(skip, pipelinePrefix+p)
	}
	skip = append(skip, extra...)
	return &Capturer{skip: skip}
}

var std = NewCapturer()

// Capture returns the first frame outside the pipeline.
func Capture() Info { return std.Capture(1) }

// CaptureSkip is Capture that additionally drops n qualifying frames, for
// wrappers that call through an intermediary.
func CaptureSkip(n int) Info { return std.Capture(n + 1) }

// Capture skips pipeline frames, then skip-1 further qualifying frames.
// skip values below 1 are treated as 1.
func (c *Capturer) Capture(skip int) (info Info) {
	defer func() {
		if recover() != nil {
			info = Unknown
		}
	}()
	if skip < 1 {
		skip = 1
	}
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return Unknown
	}
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		if fr.Function != "" && !c.inPipeline(fr.Function) {
			skip--
			if skip == 0 {
				return fromFrame(fr)
			}
		}
		if !more {
			break
		}
	}
	return Unknown
}

func (c *Capturer) inPipeline(function string) bool {
	pkg := packageOf(function)
	if pkg == "runtime" || strings.HasPrefix(pkg, "runtime/") || pkg == "testing" {
		return true
	}
	for _, s := range c.skip {
		if pkg == s {
			return true
		}
	}
	return false
}

// packageOf strips the function and receiver from a fully qualified name:
// "a/b/pkg.(*T).M.func1" -> "a/b/pkg".
func packageOf(function string) string {
	slash := strings.LastIndex(function, "/")
	dot := strings.Index(function[slash+1:], ".")
	if dot < 0 {
		return function
	}
	return function[:slash+1+dot]
}

func fromFrame(fr runtime.Frame) Info {
	method := fr.Function
	if i := strings.LastIndex(method, "/"); i >= 0 {
		method = method[i+1:]
	}
	return Info{
		Method:   method,
		File:     filepath.Base(fr.File),
		FilePath: fr.File,
		Line:     fr.Line,
	}
}
