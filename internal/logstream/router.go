// Package logstream routes report lines to one durable file per severity.
//
// Destinations come from the taxonomy registry's log paths and are opened in
// truncate mode by Init. Lines for unknown severities go to the fallback
// severity's stream with a [FALLBACK] prefix. Anything that cannot be written
// lands in the emergency channel, which is independent of the registry.
package logstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"faultline/internal/taxonomy"
)

// Config is the externally supplied configuration of a Router.
type Config struct {
	// BaseDir is the root every registry log path is relative to.
	BaseDir string
	// FallbackSeverity names the stream that receives unknown severities.
	FallbackSeverity string
	// EmergencyPath is the emergency log file; relative paths are resolved
	// against BaseDir.
	EmergencyPath string
	// Durable fsyncs after every line.
	Durable bool
	// RingSize is the number of recent lines kept for fault dumps.
	RingSize int

	Logger *zap.Logger
	Now    func() time.Time
	Exit   func(code int)
	Stderr io.Writer
}

// Router owns every log file handle.
type Router struct {
	reg      *taxonomy.Registry
	cfg      Config
	log      *zap.Logger
	fallback taxonomy.Severity
	em       *emergency
	recent   *ring

	mu          sync.RWMutex
	streams     map[taxonomy.Severity]*stream
	initialized bool
	closed      bool
}

// New validates cfg. Files are not touched until Init or the first write,
// except that the emergency channel is usable immediately.
func New(reg *taxonomy.Registry, cfg Config) (*Router, error) {
	if reg == nil {
		return nil, errors.New("logstream: nil registry")
	}
	if cfg.BaseDir == "" {
		return nil, errors.New("logstream: base directory is required")
	}
	if cfg.EmergencyPath == "" {
		return nil, errors.New("logstream: emergency path is required")
	}
	fallback, ok := reg.SeverityByName(cfg.FallbackSeverity)
	if !ok {
		return nil, fmt.Errorf("logstream: unknown fallback severity %q", cfg.FallbackSeverity)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	emPath := cfg.EmergencyPath
	if !filepath.IsAbs(emPath) {
		emPath = filepath.Join(cfg.BaseDir, filepath.FromSlash(emPath))
	}
	return &Router{
		reg:      reg,
		cfg:      cfg,
		log:      cfg.Logger,
		fallback: fallback,
		em:       newEmergency(emPath, cfg.Stderr, cfg.Now),
		recent:   newRing(cfg.RingSize),
		streams:  make(map[taxonomy.Severity]*stream),
	}, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Init opens every destination named by the registry. Severities sharing a
// path share one stream. Calling Init again is a no-op that returns nil.
func (r *Router) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initLocked()
}

func (r *Router) initLocked() error {
	if r.initialized || r.closed {
		return nil
	}
	r.initialized = true

	var errs []error
	byPath := make(map[string]*stream)
	for _, info := range r.reg.Severities() {
		if info.LogPath == "" {
			continue
		}
		path := filepath.Join(r.cfg.BaseDir, filepath.FromSlash(info.LogPath))
		st, ok := byPath[path]
		if !ok {
			var err error
			st, err = r.open(path)
			if err != nil {
				errs = append(errs, fmt.Errorf("open %s stream: %w", info.Name, err))
				r.log.Warn("log stream unavailable", zap.String("severity", info.Name), zap.String("path", path), zap.Error(err))
				r.em.write(fmt.Sprintf("cannot open %s log %s: %v", info.Name, path, err))
				continue
			}
			byPath[path] = st
		}
		st.names = append(st.names, info.Name)
		r.streams[info.Code] = st
		if err := st.marker(fmt.Sprintf("[%s] === %s log initialized (%s) ===\n", timestamp(r.cfg.Now()), info.Name, path)); err != nil {
			errs = append(errs, err)
		}
		r.log.Debug("log stream opened", zap.String("severity", info.Name), zap.String("path", path))
	}
	return errors.Join(errs...)
}

func (r *Router) open(path string) (*stream, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return openStream(path, r.cfg.Durable)
}

func (r *Router) ensureInit() {
	r.mu.RLock()
	ready := r.initialized || r.closed
	r.mu.RUnlock()
	if ready {
		return
	}
	_ = r.Init()
}

func (r *Router) lookup(sev taxonomy.Severity) (*stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.streams[sev]
	return st, ok && !r.closed
}

// formatLine renders "[ts] msg META=<json>". A nil meta omits the META part.
func (r *Router) formatLine(msg string, meta any) string {
	if meta == nil {
		return fmt.Sprintf("[%s] %s\n", timestamp(r.cfg.Now()), msg)
	}
	return fmt.Sprintf("[%s] %s META=%s\n", timestamp(r.cfg.Now()), msg, metaJSON(meta))
}

func metaJSON(meta any) (out string) {
	defer func() {
		if recover() != nil {
			out = "<unserializable>"
		}
	}()
	b, err := json.Marshal(meta)
	if err != nil {
		return "<unserializable>"
	}
	return string(b)
}

// WriteLog appends one line to the stream of sev. Values outside the
// severity range are treated like unknown severities. It does not fail for
// routing problems: unknown severities fall back, and unwritable lines go to
// the emergency channel. ErrClosed is returned after CloseAllStreams, once
// the line has been diverted to the emergency channel.
func (r *Router) WriteLog(sev int, msg string, meta any) error {
	r.ensureInit()

	var (
		st *stream
		ok bool
	)
	if sev > 0 && sev <= 0xFF {
		st, ok = r.lookup(taxonomy.Severity(sev))
	}
	if !ok {
		if r.isClosed() {
			r.em.write(fmt.Sprintf("after close: severity=%d %s", sev, msg))
			return ErrClosed
		}
		msg = fmt.Sprintf("[FALLBACK] severity=%d %s", sev, msg)
		st, ok = r.lookup(r.fallback)
	}
	line := r.formatLine(msg, meta)
	r.recent.add(line)
	if !ok {
		r.em.write(line)
		return nil
	}
	if err := st.write(line); err != nil {
		r.log.Warn("log write failed", zap.String("path", st.path), zap.Error(err))
		r.em.write(fmt.Sprintf("write %s failed (%v): %s", st.path, err, line))
		if errors.Is(err, ErrClosed) {
			return ErrClosed
		}
	}
	return nil
}

func (r *Router) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// uniqueStreams returns each open stream once, ordered by path.
func (r *Router) uniqueStreams() []*stream {
	seen := make(map[*stream]struct{})
	var out []*stream
	for _, st := range r.streams {
		if _, ok := seen[st]; ok {
			continue
		}
		seen[st] = struct{}{}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// FlushAll forces every open stream to stable storage.
func (r *Router) FlushAll() error {
	r.mu.RLock()
	streams := r.uniqueStreams()
	r.mu.RUnlock()

	var errs []error
	for _, st := range streams {
		if err := st.sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", st.path, err))
		}
	}
	return errors.Join(errs...)
}

// CloseAllStreams writes a closing marker with the line and byte counters to
// each stream and releases the handles. Only the first call has an effect.
func (r *Router) CloseAllStreams() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	streams := r.uniqueStreams()
	r.mu.Unlock()

	var errs []error
	for _, st := range streams {
		label := st.label()
		err := st.close(func(lines, bytes int64) string {
			return fmt.Sprintf("[%s] === %s log closed (lines=%d, bytes=%d) ===\n", timestamp(r.cfg.Now()), label, lines, bytes)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", st.path, err))
		}
	}
	if err := r.em.close(); err != nil {
		errs = append(errs, err)
	}
	r.log.Debug("log streams closed", zap.Int("streams", len(streams)))
	return errors.Join(errs...)
}

// Emergency writes msg to the emergency channel. It never fails.
func (r *Router) Emergency(msg string) { r.em.write(msg) }

// EmergencyCount is the number of emergency writes so far.
func (r *Router) EmergencyCount() int { return r.em.writes() }

// Path returns the destination file of sev after Init.
func (r *Router) Path(sev taxonomy.Severity) (string, bool) {
	st, ok := r.lookup(sev)
	if !ok {
		return "", false
	}
	return st.path, true
}

// Stats describes one open stream.
type Stats struct {
	Severities string
	Path       string
	Lines      int64
	Bytes      int64
}

// Stats reports the counters of every stream, ordered by path.
func (r *Router) Stats() []Stats {
	r.mu.RLock()
	streams := r.uniqueStreams()
	r.mu.RUnlock()

	out := make([]Stats, 0, len(streams))
	for _, st := range streams {
		lines, bytes := st.counters()
		out = append(out, Stats{Severities: st.label(), Path: st.path, Lines: lines, Bytes: bytes})
	}
	return out
}

// Recent returns the last routed lines, oldest first.
func (r *Router) Recent() []string { return r.recent.snapshot() }
