package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"faultline/internal/collector"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Print a collector report saved by replay --archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().String("format", "pretty", "output format (pretty|json)")
	cmd.Flags().Bool("full", false, "render every record in full")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	s, cleanup, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	format, _ := cmd.Flags().GetString("format")
	full, _ := cmd.Flags().GetBool("full")

	idx := s.timer.Begin("load archive")
	rep, err := collector.LoadArchive(args[0])
	s.timer.End(idx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "pretty":
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	printSummary(out, rep)
	for _, file := range sortedKeys(rep.ByFile) {
		fmt.Fprintf(out, "  %s: %d\n", file, rep.ByFile[file])
	}
	groups := []struct {
		name    string
		records []collector.Record
	}{
		{"errors", rep.Errors},
		{"warnings", rep.Warnings},
		{"info", rep.Info},
	}
	for _, g := range groups {
		if len(g.records) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", g.name)
		for _, rec := range g.records {
			if full {
				fmt.Fprintln(out, s.renderer.Render(rec))
				continue
			}
			fmt.Fprintln(out, "  "+s.renderer.Line(rec))
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
