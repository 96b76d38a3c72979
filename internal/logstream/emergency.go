package logstream

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// emergency is the last-resort channel. It does not depend on the taxonomy
// registry or on any stream, and its write never fails: if the rotated file
// cannot be written it falls back to stderr.
type emergency struct {
	mu       sync.Mutex
	file     *lumberjack.Logger
	stderr   io.Writer
	now      func() time.Time
	degraded bool
	count    int
}

func newEmergency(path string, stderr io.Writer, now func() time.Time) *emergency {
	return &emergency{
		file: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		},
		stderr: stderr,
		now:    now,
	}
}

func (e *emergency) write(msg string) {
	line := fmt.Sprintf("[%s] %s\n", timestamp(e.now()), strings.TrimRight(msg, "\n"))

	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		// the stderr writer is not ours to trust either
		_ = recover()
	}()
	e.count++
	if !e.degraded {
		if _, err := e.file.Write([]byte(line)); err == nil {
			return
		}
		e.degraded = true
	}
	_, _ = io.WriteString(e.stderr, line)
}

func (e *emergency) writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *emergency) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close()
}
