package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"faultline/internal/bincode"
	"faultline/internal/collector"
	"faultline/internal/report"
	"faultline/internal/taxonomy"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <code> [key=value...]",
		Short: "Report a code through the full pipeline",
		Long: `Report classifies the code, collects it and writes it to the log stream of its severity.
Context values are parsed as JSON when possible and kept as strings otherwise.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runReport,
	}
	cmd.Flags().Bool("throw", false, "exit with the severity's exit code when the severity demands it")
	cmd.Flags().Bool("no-collect", false, "route directly without collecting")
	cmd.Flags().String("collector", "", "collector name (default global)")
	cmd.Flags().Bool("stack", false, "attach the goroutine stack to the context")
	return cmd
}

// parseContext turns key=value arguments into a context map.
func parseContext(args []string) (map[string]any, error) {
	ctx := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("context argument %q is not key=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		ctx[key] = v
	}
	return ctx, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	s, cleanup, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.router.RecoverFault()

	code, err := bincode.Parse(args[0])
	if err != nil {
		return err
	}
	ctx, err := parseContext(args[1:])
	if err != nil {
		return err
	}

	var opts []report.Option
	if v, _ := cmd.Flags().GetBool("throw"); v {
		opts = append(opts, report.Throw())
	}
	if v, _ := cmd.Flags().GetBool("no-collect"); v {
		opts = append(opts, report.NoCollect())
	}
	if v, _ := cmd.Flags().GetString("collector"); v != "" {
		opts = append(opts, report.Collector(v))
	}
	if v, _ := cmd.Flags().GetBool("stack"); v {
		opts = append(opts, report.IncludeStack())
	}

	res, fatal := reportCatching(cmd.Context(), code, ctx, opts)
	if fatal != nil {
		printRecord(cmd, s, fatal.Code, fatal.Context)
		return &exitError{code: exitCodeOf(s.reg, fatal), err: fatal}
	}
	printRecord(cmd, s, res.Code, res.Context)
	if !res.Success {
		return res.Err
	}
	if res.Err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", res.Err)
	}
	return nil
}

// reportCatching turns the Throw panic into a value. Other panics keep
// unwinding to the fault handler.
func reportCatching(ctx context.Context, code bincode.Code, fields map[string]any, opts []report.Option) (res report.Result, fatal *report.FatalError) {
	defer func() {
		if p := recover(); p != nil {
			fe, ok := p.(*report.FatalError)
			if !ok {
				panic(p)
			}
			fatal = fe
		}
	}()
	return report.FromContext(ctx).Report(code, fields, opts...), nil
}

func exitCodeOf(reg *taxonomy.Registry, fe *report.FatalError) int {
	if sev, ok := reg.SeverityByName(fe.Severity); ok {
		if info, ok := reg.Severity(sev); ok && info.ExitCode > 0 {
			return info.ExitCode
		}
	}
	return 1
}

func printRecord(cmd *cobra.Command, s *session, code bincode.Code, ctx map[string]any) {
	rec := collector.NewRecord(s.reg, code, ctx, time.Now())
	if s.cfg.Render.Full {
		fmt.Fprint(cmd.OutOrStdout(), s.renderer.Render(rec))
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.renderer.Line(rec))
}
