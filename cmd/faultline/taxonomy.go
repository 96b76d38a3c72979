package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"faultline/internal/codes"
	"faultline/internal/taxonomy"
)

type taxonomyPayload struct {
	Domains    []taxonomy.DomainInfo   `json:"domains"`
	Categories []taxonomy.CategoryInfo `json:"categories"`
	Severities []taxonomy.SeverityInfo `json:"severities"`
	Sources    []taxonomy.SourceInfo   `json:"sources"`
	Pairs      []codes.Pair            `json:"pairs,omitempty"`
}

func newTaxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Dump the loaded taxonomy",
		Args:  cobra.NoArgs,
		RunE:  runTaxonomy,
	}
	cmd.Flags().String("format", "pretty", "output format (pretty|json)")
	cmd.Flags().Bool("pairs", false, "list every domain/category builder")
	return cmd
}

func runTaxonomy(cmd *cobra.Command, args []string) error {
	s, cleanup, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	format, _ := cmd.Flags().GetString("format")
	withPairs, _ := cmd.Flags().GetBool("pairs")

	payload := taxonomyPayload{
		Domains:    s.reg.Domains(),
		Categories: s.reg.Categories(),
		Severities: s.reg.Severities(),
		Sources:    s.reg.Sources(),
	}
	if withPairs {
		payload.Pairs = codes.New(s.reg).Pairs()
	}

	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case "pretty":
		printTaxonomy(cmd.OutOrStdout(), payload)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
}

func printTaxonomy(out io.Writer, p taxonomyPayload) {
	fmt.Fprintln(out, "domains:")
	for _, d := range p.Domains {
		names := make([]string, 0, len(d.Categories))
		for _, c := range d.Categories {
			names = append(names, c.String())
		}
		fmt.Fprintf(out, "  %-10s %5d  %s\n", d.Name, d.Code, strings.Join(names, ","))
	}
	fmt.Fprintln(out, "categories:")
	for _, c := range p.Categories {
		fmt.Fprintf(out, "  %-20s %5d  default=%s\n", c.Name, c.Code, c.DefaultSeverity)
	}
	fmt.Fprintln(out, "severities:")
	for _, sv := range p.Severities {
		fmt.Fprintf(out, "  %-10s %5d  exit=%d throw=%t log=%s\n", sv.Name, sv.Code, sv.ExitCode, sv.ShouldThrow, sv.LogPath)
	}
	fmt.Fprintln(out, "sources:")
	for _, src := range p.Sources {
		fmt.Fprintf(out, "  %-10s %5d  %s\n", src.Name, src.Code, src.Accountable)
	}
	if len(p.Pairs) == 0 {
		return
	}
	fmt.Fprintln(out, "pairs:")
	for _, pair := range p.Pairs {
		mark := " "
		if pair.Allowed {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %s/%s\n", mark, pair.Domain, pair.Category)
	}
}
