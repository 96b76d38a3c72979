package report

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"faultline/internal/bincode"
	"faultline/internal/callsite"
	"faultline/internal/codes"
	"faultline/internal/collector"
	"faultline/internal/render"
	"faultline/internal/serialize"
	"faultline/internal/taxonomy"
)

// Router is the part of the log router the facade writes to.
type Router interface {
	WriteLog(sev int, msg string, meta any) error
	Emergency(msg string)
}

// Config wires a Reporter.
type Config struct {
	Registry *taxonomy.Registry
	Router   Router
	// Collectors configures the collectors the Reporter creates on demand.
	Collectors collector.Options
	Renderer   *render.Renderer
	Logger     *zap.Logger
	// RenderFull writes the multi-section rendering instead of one line.
	RenderFull bool
	Serialize  serialize.Options
	Now        func() time.Time
}

// Reporter is safe for concurrent use.
type Reporter struct {
	reg        *taxonomy.Registry
	router     Router
	collectors *collector.Registry
	renderer   *render.Renderer
	log        *zap.Logger
	renderFull bool
	ser        serialize.Options
	now        func() time.Time
	capturer   *callsite.Capturer
	codes      *codes.Table

	// guard is held while a pipeline failure is being reported.
	guard atomic.Bool
	// route writes one code to the router; tests replace it.
	route func(code bincode.Code, ctx map[string]any) error
}

// New builds a Reporter. Registry and Router are required.
func New(cfg Config) (*Reporter, error) {
	if cfg.Registry == nil {
		return nil, errors.New("report: nil registry")
	}
	if cfg.Router == nil {
		return nil, errors.New("report: nil router")
	}
	r := &Reporter{
		reg:        cfg.Registry,
		router:     cfg.Router,
		renderer:   cfg.Renderer,
		log:        cfg.Logger,
		renderFull: cfg.RenderFull,
		ser:        cfg.Serialize,
		now:        cfg.Now,
		// the code factory calls back into the facade from its builders
		capturer: callsite.NewCapturer(reflect.TypeOf(codes.Table{}).PkgPath()),
	}
	if r.renderer == nil {
		r.renderer = render.New(cfg.Registry, render.DefaultCatalog(), render.Options{})
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.route = r.routeRecord
	r.collectors = collector.NewRegistry(cfg.Registry, cfg.Collectors, r.Sink())
	r.codes = codes.New(cfg.Registry, codes.OnReject(r.onReject))
	return r, nil
}

// Registry returns the taxonomy the Reporter validates against.
func (r *Reporter) Registry() *taxonomy.Registry { return r.reg }

// Collectors returns the named collectors.
func (r *Reporter) Collectors() *collector.Registry { return r.collectors }

// Renderer returns the renderer used for log lines.
func (r *Reporter) Renderer() *render.Renderer { return r.renderer }

// Codes returns the code factory. Refused builds are reported as
// RejectedComposeCode.
func (r *Reporter) Codes() *codes.Table { return r.codes }

// Sink routes a code without collecting it. Collectors created outside the
// Reporter can stream through it.
func (r *Reporter) Sink() collector.Sink {
	return func(code bincode.Code, ctx map[string]any) error {
		return r.route(code, ctx)
	}
}

func (r *Reporter) onReject(rej codes.Rejection) {
	r.Report(RejectedComposeCode, map[string]any{
		"domain":   rej.Domain,
		"category": rej.Category,
		"severity": rej.Severity,
		"source":   rej.Source,
		"offset":   rej.Offset,
		"error":    rej.Err.Error(),
	})
}

// Report classifies and routes one failure.
func (r *Reporter) Report(code bincode.Code, ctx map[string]any, opts ...Option) Result {
	if r == nil {
		return Result{Code: code, Err: ErrNoReporter}
	}
	return r.report(code, ctx, buildOptions(opts))
}

// Warn reports code with its severity replaced by WARNING.
func (r *Reporter) Warn(code bincode.Code, ctx map[string]any, opts ...Option) Result {
	return r.Report(withSeverity(code, taxonomy.SevWarning), ctx, opts...)
}

// Info reports code with its severity replaced by INFO.
func (r *Reporter) Info(code bincode.Code, ctx map[string]any, opts ...Option) Result {
	return r.Report(withSeverity(code, taxonomy.SevInfo), ctx, opts...)
}

// Debug reports code with its severity replaced by DEBUG.
func (r *Reporter) Debug(code bincode.Code, ctx map[string]any, opts ...Option) Result {
	return r.Report(withSeverity(code, taxonomy.SevDebug), ctx, opts...)
}

func withSeverity(code bincode.Code, s taxonomy.Severity) bincode.Code {
	c := bincode.Decompose(code)
	c.Severity = uint8(s)
	return c.Code()
}

// validate checks that every axis of code is registered.
func (r *Reporter) validate(code bincode.Code) error {
	c := bincode.Decompose(code)
	if _, ok := r.reg.Domain(taxonomy.Domain(c.Domain)); !ok {
		return &InvalidCodeError{Code: code, Axis: "domain"}
	}
	if _, ok := r.reg.Category(taxonomy.Category(c.Category)); !ok {
		return &InvalidCodeError{Code: code, Axis: "category"}
	}
	if _, ok := r.reg.Severity(taxonomy.Severity(c.Severity)); !ok {
		return &InvalidCodeError{Code: code, Axis: "severity"}
	}
	if _, ok := r.reg.Source(taxonomy.Source(c.Source)); !ok {
		return &InvalidCodeError{Code: code, Axis: "source"}
	}
	return nil
}

func (r *Reporter) report(code bincode.Code, ctx map[string]any, o options) Result {
	if err := r.validate(code); err != nil {
		if code == MetaInvalidCode {
			// the sentinel itself does not resolve: nothing left to report with
			r.log.Warn("meta-invalid sentinel rejected by taxonomy", zap.Stringer("code", code))
			return Result{Code: code, Err: err}
		}
		inv := r.report(MetaInvalidCode, map[string]any{
			"invalidCode": code.String(),
			"components":  bincode.Decompose(code),
			"reason":      err.Error(),
			"context":     ctx,
		}, options{skip: o.skip, skipCapture: o.skipCapture, collector: o.collector, noCollect: o.noCollect})
		return Result{Code: code, Context: inv.Context, Err: err}
	}

	merged := make(map[string]any, len(ctx)+8)
	if !o.skipCapture {
		for k, v := range r.capturer.Capture(1 + o.skip).Map() {
			merged[k] = v
		}
	}
	if o.includeStack {
		merged["stack"] = string(debug.Stack())
	}
	for k, v := range ctx {
		merged[k] = v
	}
	merged["timestamp"] = r.now().UTC().Format(time.RFC3339Nano)

	sopts := r.ser
	if o.maxDepth > 0 {
		sopts.MaxDepth = o.maxDepth
	}
	sopts.IncludeStack = sopts.IncludeStack || o.includeStack
	sctx := serialize.Map(merged, sopts)

	res := Result{Success: true, Code: code, Context: sctx}
	if err := r.dispatch(code, sctx, o); err != nil {
		res.Err = err
		var esc *collector.EscalationError
		res.Success = errors.As(err, &esc)
	}

	if o.throw {
		if info, ok := r.reg.Severity(taxonomy.Severity(bincode.Decompose(code).Severity)); ok && info.ShouldThrow {
			panic(&FatalError{Code: code, Severity: info.Name, Context: sctx})
		}
	}
	return res
}

// dispatch collects or routes code. A panic anywhere below is recovered and
// reported once through pipelineFailure.
func (r *Reporter) dispatch(code bincode.Code, ctx map[string]any, o options) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PipelineError{Code: code, Cause: p}
			r.pipelineFailure(code, p)
		}
	}()
	if o.noCollect {
		return r.route(code, ctx)
	}
	_, err = r.collectors.Get(o.collector).Collect(code, ctx, collector.CollectOptions{SuppressEscalation: o.noEscalate})
	return err
}

// pipelineFailure routes one PipelineFailureCode line straight to the
// router. If the guard is already held, or routing the failure fails too,
// only a minimal emergency line is written.
func (r *Reporter) pipelineFailure(code bincode.Code, cause any) {
	if !r.guard.CompareAndSwap(false, true) {
		r.router.Emergency(fmt.Sprintf("nested reporting failure for %s: %v", code, cause))
		return
	}
	defer r.guard.Store(false)
	defer func() {
		if p := recover(); p != nil {
			r.router.Emergency(fmt.Sprintf("reporting failure for %s: %v (while logging: %v)", code, cause, p))
		}
	}()

	r.log.Error("reporting pipeline failed", zap.Stringer("code", code), zap.Any("cause", cause))
	ctx := map[string]any{
		"failedCode": code.String(),
		"error":      fmt.Sprint(cause),
		"timestamp":  r.now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.route(PipelineFailureCode, ctx); err != nil {
		r.router.Emergency(fmt.Sprintf("reporting failure for %s: %v (route: %v)", code, cause, err))
	}
}

// routeRecord renders code and writes it to the stream of its severity.
// Severities with should_log unset are dropped here.
func (r *Reporter) routeRecord(code bincode.Code, ctx map[string]any) error {
	rec := collector.NewRecord(r.reg, code, ctx, r.now())
	sev := taxonomy.Severity(rec.Components.Severity)
	if info, ok := r.reg.Severity(sev); ok && !info.ShouldLog {
		return nil
	}
	msg := r.renderer.Line(rec)
	if r.renderFull {
		msg = r.renderer.Render(rec)
	}
	return r.router.WriteLog(int(sev), msg, ctx)
}
