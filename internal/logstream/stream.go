package logstream

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrClosed is returned for writes to a closed stream or router.
var ErrClosed = errors.New("log stream closed")

// stream is one open destination. Writers are serialized by mu so two lines
// never interleave.
type stream struct {
	mu      sync.Mutex
	path    string
	names   []string // severities sharing this destination
	f       *os.File
	w       *bufio.Writer
	durable bool
	closed  bool

	lines int64
	bytes int64
}

func openStream(path string, durable bool) (*stream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &stream{
		path:    path,
		f:       f,
		w:       bufio.NewWriter(f),
		durable: durable,
	}, nil
}

func (s *stream) label() string { return strings.Join(s.names, "|") }

// write appends one counted line and makes it durable before returning.
func (s *stream) write(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, err := s.writeLocked(line)
	if err != nil {
		return err
	}
	s.lines++
	s.bytes += int64(n)
	return nil
}

// marker writes an uncounted line.
func (s *stream) marker(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.writeLocked(line)
	return err
}

func (s *stream) writeLocked(line string) (int, error) {
	n, err := s.w.WriteString(line)
	if err != nil {
		return n, err
	}
	if err := s.w.Flush(); err != nil {
		return n, err
	}
	if s.durable {
		if err := s.f.Sync(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *stream) counters() (lines, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines, s.bytes
}

func (s *stream) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

// close writes the closing marker built from the final counters and
// releases the handle.
func (s *stream) close(marker func(lines, bytes int64) string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, werr := s.writeLocked(marker(s.lines, s.bytes))
	if err := s.w.Flush(); err != nil && werr == nil {
		werr = err
	}
	if err := s.f.Sync(); err != nil && werr == nil {
		werr = err
	}
	return errors.Join(werr, s.f.Close())
}
