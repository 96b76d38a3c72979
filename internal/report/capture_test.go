package report_test

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultline/internal/bincode"
	"faultline/internal/logstream"
	"faultline/internal/report"
	"faultline/internal/taxonomy"
)

func newFileReporter(t *testing.T) (*report.Reporter, *logstream.Router, string) {
	t.Helper()
	dir := t.TempDir()
	router, err := logstream.New(taxonomy.Default(), logstream.Config{
		BaseDir:          dir,
		FallbackSeverity: "ERROR",
		EmergencyPath:    "errors/logger-emergency.log",
		Exit:             func(int) { t.Fatal("unexpected exit") },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = router.CloseAllStreams() })
	r, err := report.New(report.Config{Registry: taxonomy.Default(), Router: router})
	require.NoError(t, err)
	return r, router, dir
}

func line() int {
	_, _, l, _ := runtime.Caller(1)
	return l
}

func parserSyntax(t *testing.T, sev taxonomy.Severity) bincode.Code {
	t.Helper()
	code, err := bincode.Compose(int(taxonomy.DomainParser), int(taxonomy.CategorySyntax), int(sev), int(taxonomy.SourceParser), 1001)
	require.NoError(t, err)
	return code
}

func TestReportCapturesCaller(t *testing.T) {
	r, _, _ := newFileReporter(t)
	res, want := r.Report(parserSyntax(t, taxonomy.SevError), nil), line()

	assert.Equal(t, "capture_test.go", res.Context["file"])
	assert.Equal(t, int64(want), res.Context["line"])
	assert.True(t, strings.HasSuffix(res.Context["method"].(string), "TestReportCapturesCaller"))
	assert.Equal(t, int64(0), res.Context["column"])
}

func TestCallerContextOverridesCapture(t *testing.T) {
	r, _, _ := newFileReporter(t)
	res := r.Report(parserSyntax(t, taxonomy.SevError), map[string]any{"file": "grammar.sg", "timestamp": "caller"})
	assert.Equal(t, "grammar.sg", res.Context["file"])
	assert.NotEqual(t, "caller", res.Context["timestamp"], "the facade timestamp wins")
}

func TestWrappersCaptureCaller(t *testing.T) {
	r, _, _ := newFileReporter(t)
	res, want := r.Warn(parserSyntax(t, taxonomy.SevError), nil), line()
	assert.Equal(t, int64(want), res.Context["line"])
}

func reportVia(r *report.Reporter, code bincode.Code) report.Result {
	return r.Report(code, nil, report.SkipFrames(1))
}

func TestSkipFrames(t *testing.T) {
	r, _, _ := newFileReporter(t)
	res, want := reportVia(r, parserSyntax(t, taxonomy.SevInfo)), line()
	assert.Equal(t, int64(want), res.Context["line"])
	assert.True(t, strings.HasSuffix(res.Context["method"].(string), "TestSkipFrames"))
}

func TestBatchKeepsAddSite(t *testing.T) {
	r, _, _ := newFileReporter(t)
	b := r.NewBatch()
	want := line() + 1
	b.Add(parserSyntax(t, taxonomy.SevWarning), nil)

	results := b.Flush()
	require.Len(t, results, 1)
	assert.Equal(t, int64(want), results[0].Context["line"])
}

func TestCodesRejectionCapturesCaller(t *testing.T) {
	r, router, _ := newFileReporter(t)
	_, err := r.Codes().Must("SYSTEM", "RUNTIME")("NOT_A_SEVERITY", "SYSTEM", 1)
	require.Error(t, err)

	recent := router.Recent()
	require.NotEmpty(t, recent)
	assert.Contains(t, recent[len(recent)-1], "capture_test.go")
}

func TestReportWritesSeverityFile(t *testing.T) {
	r, router, dir := newFileReporter(t)
	res := r.Report(parserSyntax(t, taxonomy.SevCritical), map[string]any{"message": "unexpected '}'"})
	require.True(t, res.Success)
	require.NoError(t, router.CloseAllStreams())

	lines := readLines(t, filepath.Join(dir, "errors", "critical.log"))
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "CRITICAL PARSER/SYNTAX source=PARSER offset=1001")
	assert.Contains(t, lines[1], "unexpected '}'")
	assert.Contains(t, lines[1], `META={`)
	assert.Contains(t, lines[2], "lines=1")
}
