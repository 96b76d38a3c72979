package report

import (
	"sync"

	"faultline/internal/bincode"
)

type routed struct {
	sev  int
	msg  string
	meta any
}

// fakeRouter records everything written to it.
type fakeRouter struct {
	mu          sync.Mutex
	lines       []routed
	emergencies []string
	err         error
}

func (f *fakeRouter) WriteLog(sev int, msg string, meta any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, routed{sev: sev, msg: msg, meta: meta})
	return f.err
}

func (f *fakeRouter) Emergency(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emergencies = append(f.emergencies, msg)
}

func (f *fakeRouter) snapshot() ([]routed, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]routed(nil), f.lines...), append([]string(nil), f.emergencies...)
}

// routeRecorder replaces Reporter.route and records the codes it sees.
type routeRecorder struct {
	mu    sync.Mutex
	codes []bincode.Code
}

func (rr *routeRecorder) add(c bincode.Code) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.codes = append(rr.codes, c)
}
