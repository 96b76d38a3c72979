package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"faultline/internal/bincode"
	"faultline/internal/collector"
	"faultline/internal/report"
	"faultline/internal/taxonomy"
)

const replayCollector = "replay"

// replayEntry is one NDJSON line. Code may be a JSON number or a decimal or
// hex string.
type replayEntry struct {
	Code    json.RawMessage `json:"code"`
	Context map[string]any  `json:"context"`
}

type replayItem struct {
	line int
	code bincode.Code
	ctx  map[string]any
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <file.ndjson>",
		Short: "Report every {code, context} line of a file concurrently",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	cmd.Flags().Int("jobs", 4, "number of concurrent reporters")
	cmd.Flags().String("archive", "", "write the collector report to this msgpack file")
	cmd.Flags().String("min-severity", "", "skip codes below this severity")
	return cmd
}

func parseEntryCode(raw json.RawMessage) (bincode.Code, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing code")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return bincode.Parse(s)
	}
	// numbers are parsed from their text so codes above 2^53 stay exact
	return bincode.Parse(string(raw))
}

func readReplay(r io.Reader) ([]replayItem, error) {
	var items []replayItem
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		var e replayEntry
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		code, err := parseEntryCode(e.Code)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, replayItem{line: line, code: code, ctx: e.Context})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	s, cleanup, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.router.RecoverFault()

	jobs, _ := cmd.Flags().GetInt("jobs")
	archivePath, _ := cmd.Flags().GetString("archive")
	minSeverity, _ := cmd.Flags().GetString("min-severity")
	if jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1, got %d", jobs)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open replay file: %w", err)
	}
	idx := s.timer.Begin("read")
	items, err := readReplay(f)
	f.Close()
	s.timer.End(idx, fmt.Sprintf("%d entries", len(items)))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	if minSeverity != "" {
		sev, ok := s.reg.SeverityByName(minSeverity)
		if !ok {
			return fmt.Errorf("unknown severity %q", minSeverity)
		}
		items = filterBySeverity(items, s.reg.MaskAtLeast(sev))
	}

	var failed atomic.Int64
	idx = s.timer.Begin("replay")
	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for _, it := range items {
		g.Go(func() error {
			defer s.router.RecoverFault()
			if gctx.Err() != nil {
				return gctx.Err()
			}
			ctx := make(map[string]any, len(it.ctx)+1)
			for k, v := range it.ctx {
				ctx[k] = v
			}
			ctx["replayLine"] = it.line
			res := report.FromContext(gctx).Report(it.code, ctx, report.Collector(replayCollector), report.SkipCapture())
			if !res.Success {
				failed.Add(1)
				s.log.Debug("replay entry failed", zap.Int("line", it.line), zap.Error(res.Err))
			}
			return nil
		})
	}
	err = g.Wait()
	s.timer.End(idx, "")
	if err != nil {
		return err
	}

	c := s.reporter.Collectors().Get(replayCollector)
	// non-stream collectors are drained by the session cleanup
	rep := c.Report()
	printSummary(cmd.OutOrStdout(), rep)
	if n := failed.Load(); n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "rejected: %d\n", n)
	}

	if archivePath != "" {
		idx = s.timer.Begin("archive")
		err := collector.SaveArchive(archivePath, rep)
		s.timer.End(idx, archivePath)
		if err != nil {
			return err
		}
	}
	return nil
}

func filterBySeverity(items []replayItem, mask taxonomy.Mask) []replayItem {
	kept := items[:0]
	for _, it := range items {
		if bincode.SeverityIn(it.code, uint8(mask)) {
			kept = append(kept, it)
		}
	}
	return kept
}

func printSummary(out io.Writer, rep collector.Report) {
	sum := rep.Summary
	fmt.Fprintf(out, "collector %s (%s)\n", sum.Name, sum.ID)
	fmt.Fprintf(out, "  errors:   %d\n", sum.Counts.Errors)
	fmt.Fprintf(out, "  warnings: %d\n", sum.Counts.Warnings)
	fmt.Fprintf(out, "  info:     %d\n", sum.Counts.Info)
	fmt.Fprintf(out, "  total:    %d\n", sum.Counts.Total)
	if sum.Limited {
		fmt.Fprintln(out, "  limit reached, later problems were dropped")
	}
	for _, name := range sortedKeys(rep.BySeverity) {
		fmt.Fprintf(out, "  %-10s %d\n", name, rep.BySeverity[name])
	}
}
