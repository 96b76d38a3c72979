package collector

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultline/internal/bincode"
	"faultline/internal/taxonomy"
)

func code(t *testing.T, d taxonomy.Domain, c taxonomy.Category, s taxonomy.Severity, src taxonomy.Source) bincode.Code {
	t.Helper()
	out, err := bincode.Compose(int(d), int(c), int(s), int(src), 1)
	require.NoError(t, err)
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	return f.now
}

func newCollector(t *testing.T, opts Options, sink Sink) *Collector {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts.Now = clk.Now
	return New(taxonomy.Default(), opts, sink)
}

func TestClassification(t *testing.T) {
	c := newCollector(t, Options{}, nil)
	for _, sev := range []taxonomy.Severity{
		taxonomy.SevTrace, taxonomy.SevInfo, taxonomy.SevWarning,
		taxonomy.SevError, taxonomy.SevCritical, taxonomy.SevEmergency,
	} {
		_, err := c.Collect(code(t, taxonomy.DomainIO, taxonomy.CategoryResource, sev, taxonomy.SourceSystem), nil, CollectOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, Counts{Errors: 3, Warnings: 1, Info: 2, Total: 6}, c.Counts())
	assert.True(t, c.HasErrors())
	assert.True(t, c.HasWarnings())
	assert.Equal(t, 1, c.BySeverity()["CRITICAL"])
}

func TestUnknownSeverityIsError(t *testing.T) {
	c := newCollector(t, Options{}, nil)
	rec, err := c.Collect(code(t, taxonomy.DomainIO, taxonomy.CategoryResource, 3, taxonomy.SourceSystem), nil, CollectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "SEVERITY(3)", rec.Metadata.Severity)
	assert.True(t, c.HasErrors())
}

func TestEscalation(t *testing.T) {
	c := newCollector(t, Options{EscalateOnCritical: true}, nil)
	crit := code(t, taxonomy.DomainRuntime, taxonomy.CategoryLogic, taxonomy.SevCritical, taxonomy.SourceRuntime)

	_, err := c.Collect(crit, nil, CollectOptions{})
	var esc *EscalationError
	require.ErrorAs(t, err, &esc)
	assert.ErrorIs(t, err, ErrEscalated)
	assert.Equal(t, "CRITICAL", esc.Record.Metadata.Severity)

	_, err = c.Collect(crit, nil, CollectOptions{SuppressEscalation: true})
	assert.NoError(t, err)

	_, err = c.Collect(code(t, taxonomy.DomainRuntime, taxonomy.CategoryLogic, taxonomy.SevError, taxonomy.SourceRuntime), nil, CollectOptions{})
	assert.NoError(t, err, "ERROR must not escalate")
	assert.Equal(t, 3, c.Counts().Errors, "escalated records are still stored")
}

func TestLimitReached(t *testing.T) {
	c := newCollector(t, Options{MaxRecords: 2}, nil)
	warn := code(t, taxonomy.DomainParser, taxonomy.CategorySyntax, taxonomy.SevWarning, taxonomy.SourceParser)
	errc := code(t, taxonomy.DomainParser, taxonomy.CategorySyntax, taxonomy.SevError, taxonomy.SourceParser)

	_, err := c.Collect(warn, nil, CollectOptions{})
	require.NoError(t, err)
	_, err = c.Collect(errc, nil, CollectOptions{})
	require.NoError(t, err)
	_, err = c.Collect(errc, nil, CollectOptions{})
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 2, c.Counts().Total)
	assert.True(t, c.Report().Summary.Limited)
}

func TestLimitReachedStillStreams(t *testing.T) {
	var got []bincode.Code
	sink := func(code bincode.Code, ctx map[string]any) error {
		got = append(got, code)
		return nil
	}
	c := newCollector(t, Options{StreamMode: true, MaxRecords: 1}, sink)
	errc := code(t, taxonomy.DomainParser, taxonomy.CategorySyntax, taxonomy.SevError, taxonomy.SourceParser)

	_, err := c.Collect(errc, nil, CollectOptions{})
	require.NoError(t, err)
	_, err = c.Collect(errc, nil, CollectOptions{})
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 1, c.Counts().Total, "records over the limit are not stored")
	assert.Len(t, got, 2, "records over the limit still reach the sink")

	boom := errors.New("disk gone")
	failing := newCollector(t, Options{StreamMode: true, MaxRecords: 1}, func(bincode.Code, map[string]any) error { return boom })
	_, _ = failing.Collect(errc, nil, CollectOptions{})
	_, err = failing.Collect(errc, nil, CollectOptions{})
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.ErrorIs(t, err, boom)
}

func TestRecordOwnsItsContext(t *testing.T) {
	c := newCollector(t, Options{}, nil)
	ctx := map[string]any{"table": "users"}
	_, err := c.Collect(code(t, taxonomy.DomainDatabase, taxonomy.CategoryIntegrity, taxonomy.SevError, taxonomy.SourceSystem), ctx, CollectOptions{})
	require.NoError(t, err)

	ctx["table"] = "orders"
	ctx["extra"] = true

	stored := c.Report().Errors[0]
	assert.Equal(t, "users", stored.Context["table"])
	assert.NotContains(t, stored.Context, "extra")
}

func TestStreamModeCallsSinkOnce(t *testing.T) {
	var got []bincode.Code
	sink := func(code bincode.Code, ctx map[string]any) error {
		got = append(got, code)
		return nil
	}
	c := newCollector(t, Options{StreamMode: true}, sink)
	x := code(t, taxonomy.DomainIO, taxonomy.CategoryTimeout, taxonomy.SevInfo, taxonomy.SourceExternal)
	_, err := c.Collect(x, map[string]any{"k": "v"}, CollectOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bincode.Code{x}, got)

	quiet := newCollector(t, Options{}, sink)
	_, err = quiet.Collect(x, nil, CollectOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 1, "non-stream collectors do not route")
}

func TestSinkErrorIsWrapped(t *testing.T) {
	boom := errors.New("disk gone")
	c := newCollector(t, Options{StreamMode: true}, func(bincode.Code, map[string]any) error { return boom })
	rec, err := c.Collect(code(t, taxonomy.DomainIO, taxonomy.CategoryResource, taxonomy.SevError, taxonomy.SourceSystem), nil, CollectOptions{})
	assert.ErrorIs(t, err, boom)
	assert.NotZero(t, rec.Code)
	assert.Equal(t, 1, c.Counts().Errors)
}

func TestByFileAndReport(t *testing.T) {
	c := newCollector(t, Options{Name: "scan"}, nil)
	x := code(t, taxonomy.DomainValidator, taxonomy.CategoryValidation, taxonomy.SevError, taxonomy.SourceValidator)
	for _, f := range []string{"a.go", "b.go", "a.go"} {
		_, err := c.Collect(x, map[string]any{"file": f}, CollectOptions{})
		require.NoError(t, err)
	}
	_, err := c.Collect(x, nil, CollectOptions{})
	require.NoError(t, err)

	byFile := c.ByFile()
	assert.Len(t, byFile["a.go"], 2)
	assert.Len(t, byFile["b.go"], 1)
	assert.Len(t, byFile["<unknown>"], 1)

	rep := c.Report()
	assert.Equal(t, "scan", rep.Summary.Name)
	assert.Equal(t, 4, rep.Summary.Counts.Total)
	assert.Equal(t, map[string]int{"a.go": 2, "b.go": 1, "<unknown>": 1}, rep.ByFile)
	assert.True(t, rep.Summary.End.After(rep.Summary.Start))
	assert.Equal(t, rep.Summary.End.Sub(rep.Summary.Start), rep.Summary.Elapsed)
	assert.Equal(t, c.ID(), rep.Summary.ID)
}

func TestClearResetsPeriod(t *testing.T) {
	c := newCollector(t, Options{}, nil)
	before := c.Report().Summary
	_, err := c.Collect(code(t, taxonomy.DomainIO, taxonomy.CategoryResource, taxonomy.SevError, taxonomy.SourceSystem), nil, CollectOptions{})
	require.NoError(t, err)

	c.Clear()
	after := c.Report().Summary
	assert.Zero(t, after.Counts.Total)
	assert.False(t, c.HasErrors())
	assert.NotEqual(t, before.ID, after.ID)
	assert.True(t, after.Start.After(before.Start))
}

func TestDrainRoutesInOrder(t *testing.T) {
	c := newCollector(t, Options{}, nil)
	first := code(t, taxonomy.DomainIO, taxonomy.CategoryResource, taxonomy.SevInfo, taxonomy.SourceSystem)
	second := code(t, taxonomy.DomainIO, taxonomy.CategoryResource, taxonomy.SevFatal, taxonomy.SourceSystem)
	_, _ = c.Collect(first, nil, CollectOptions{})
	_, _ = c.Collect(second, nil, CollectOptions{})

	var routed []bincode.Code
	err := c.Drain(func(code bincode.Code, _ map[string]any) error {
		routed = append(routed, code)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []bincode.Code{first, second}, routed)
	assert.Zero(t, c.Counts().Total)
}

func TestConcurrentCollect(t *testing.T) {
	c := New(taxonomy.Default(), Options{}, nil)
	x := code(t, taxonomy.DomainNetwork, taxonomy.CategoryTimeout, taxonomy.SevWarning, taxonomy.SourceExternal)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Collect(x, nil, CollectOptions{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Counts().Warnings)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(taxonomy.Default(), Options{MaxRecords: 5}, nil)
	g := r.Get("")
	assert.Same(t, g, r.Get(DefaultName))
	assert.Equal(t, DefaultName, g.Name())
	assert.Equal(t, 5, g.Options().MaxRecords)

	_, ok := r.Lookup("lint")
	assert.False(t, ok)
	own := New(taxonomy.Default(), Options{Name: "lint"}, nil)
	r.Put("lint", own)
	got, ok := r.Lookup("lint")
	require.True(t, ok)
	assert.Same(t, own, got)
	assert.Equal(t, []string{DefaultName, "lint"}, r.Names())

	r.Remove("lint")
	assert.Equal(t, []string{DefaultName}, r.Names())
}

func TestArchiveRoundTrip(t *testing.T) {
	c := newCollector(t, Options{Name: "archive"}, nil)
	x := code(t, taxonomy.DomainDatabase, taxonomy.CategoryIntegrity, taxonomy.SevCritical, taxonomy.SourceExternal)
	_, err := c.Collect(x, map[string]any{"file": "db.go", "table": "users"}, CollectOptions{})
	require.NoError(t, err)
	rep := c.Report()

	path := filepath.Join(t.TempDir(), "nested", "run.mp")
	require.NoError(t, SaveArchive(path, rep))

	back, err := LoadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary.ID, back.Summary.ID)
	assert.Equal(t, rep.Summary.Counts, back.Summary.Counts)
	assert.True(t, rep.Summary.Start.Equal(back.Summary.Start))
	require.Len(t, back.Errors, 1)
	assert.Equal(t, x, back.Errors[0].Code)
	assert.Equal(t, "CRITICAL", back.Errors[0].Metadata.Severity)
	assert.Equal(t, "users", back.Errors[0].Context["table"])
	assert.Equal(t, rep.ByFile, back.ByFile)
}

func TestLoadArchiveMissing(t *testing.T) {
	_, err := LoadArchive(filepath.Join(t.TempDir(), "nope.mp"))
	assert.Error(t, err)
}
