package logstream

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"faultline/internal/taxonomy"
)

// HandleSignals closes every stream and exits on SIGINT (130) or SIGTERM
// (143). The returned stop function detaches the handler; cancelling ctx
// does the same.
func (r *Router) HandleSignals(ctx context.Context) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
		case <-done:
		case sig := <-ch:
			r.onSignal(sig)
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (r *Router) onSignal(sig os.Signal) {
	code := 128
	if s, ok := sig.(syscall.Signal); ok {
		code += int(s)
	}
	r.log.Info("signal received, closing log streams", zap.String("signal", sig.String()))
	if err := r.CloseAllStreams(); err != nil {
		r.em.write(fmt.Sprintf("close on %s: %v", sig, err))
	}
	r.cfg.Exit(code)
}

// RecoverFault must be deferred directly. It turns a panic into an
// EMERGENCY line, dumps the recent-line ring to the emergency channel,
// closes every stream and exits with the EMERGENCY exit code.
func (r *Router) RecoverFault() {
	if v := recover(); v != nil {
		r.Fault(v, debug.Stack())
	}
}

// Fault runs the uncaught-fault sequence for v.
func (r *Router) Fault(v any, stack []byte) {
	recent := r.recent.snapshot()
	msg := fmt.Sprintf("uncaught fault: %v", v)
	_ = r.WriteLog(int(taxonomy.SevEmergency), msg, map[string]any{"stack": string(stack)})

	r.em.write(msg)
	for _, line := range recent {
		r.em.write("recent: " + line)
	}
	if err := r.FlushAll(); err != nil {
		r.em.write(fmt.Sprintf("flush after fault: %v", err))
	}
	if err := r.CloseAllStreams(); err != nil {
		r.em.write(fmt.Sprintf("close after fault: %v", err))
	}
	r.cfg.Exit(r.faultExitCode())
}

func (r *Router) faultExitCode() int {
	if info, ok := r.reg.Severity(taxonomy.SevEmergency); ok && info.ExitCode != 0 {
		return info.ExitCode
	}
	return 1
}

// Go runs fn in a goroutine whose panics take the fault path instead of
// crashing the process without a trace in the logs.
func (r *Router) Go(fn func()) {
	go func() {
		defer r.RecoverFault()
		fn()
	}()
}
