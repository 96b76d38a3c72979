package report

import "faultline/internal/bincode"

type options struct {
	throw        bool
	noCollect    bool
	collector    string
	skip         int
	skipCapture  bool
	maxDepth     int
	includeStack bool
	noEscalate   bool
}

// Option adjusts a single Report call.
type Option func(*options)

// Throw panics with *FatalError after reporting, when the code's severity is
// marked should_throw. It is ignored for every other severity.
func Throw() Option { return func(o *options) { o.throw = true } }

// NoCollect routes straight to the log router, bypassing collectors.
func NoCollect() Option { return func(o *options) { o.noCollect = true } }

// Collector selects a named collector instead of the global one.
func Collector(name string) Option { return func(o *options) { o.collector = name } }

// SkipFrames skips n extra caller frames, for wrappers around Report.
func SkipFrames(n int) Option { return func(o *options) { o.skip += n } }

// SkipCapture disables call-site capture.
func SkipCapture() Option { return func(o *options) { o.skipCapture = true } }

// MaxDepth bounds context serialization depth.
func MaxDepth(n int) Option { return func(o *options) { o.maxDepth = n } }

// IncludeStack adds a goroutine stack to the context and keeps error stacks.
func IncludeStack() Option { return func(o *options) { o.includeStack = true } }

// NoEscalate suppresses collector escalation of CRITICAL and above.
func NoEscalate() Option { return func(o *options) { o.noEscalate = true } }

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Result is the outcome of one Report call.
type Result struct {
	// Success is false when the code was invalid or the pipeline failed.
	Success bool
	Code    bincode.Code
	// Context is the merged and serialized context that was reported.
	Context map[string]any
	// Err explains a failure, an escalation or a reached collector limit.
	Err error
}
