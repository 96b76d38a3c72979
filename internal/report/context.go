package report

import (
	"context"
	"sync/atomic"

	"faultline/internal/bincode"
)

type ctxKey struct{}

// WithReporter attaches r to ctx.
func WithReporter(ctx context.Context, r *Reporter) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the Reporter attached to ctx, falling back to the
// process default. It may return nil; a nil *Reporter answers every Report
// with ErrNoReporter.
func FromContext(ctx context.Context) *Reporter {
	if ctx != nil {
		if r, ok := ctx.Value(ctxKey{}).(*Reporter); ok && r != nil {
			return r
		}
	}
	return Default()
}

var defaultReporter atomic.Pointer[Reporter]

// SetDefault installs the process-wide Reporter used by the package-level
// Report and by FromContext.
func SetDefault(r *Reporter) { defaultReporter.Store(r) }

// Default returns the process-wide Reporter, or nil.
func Default() *Reporter { return defaultReporter.Load() }

// Report reports through the process-wide Reporter.
func Report(code bincode.Code, ctx map[string]any, opts ...Option) Result {
	return Default().Report(code, ctx, opts...)
}
