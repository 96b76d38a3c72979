package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"faultline/internal/bincode"
	"faultline/internal/codes"
)

type codePayload struct {
	Code       bincode.Code       `json:"code"`
	Hex        string             `json:"hex"`
	Binary     string             `json:"binary"`
	Components bincode.Components `json:"components"`
}

func newComposeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Build a code from taxonomy names",
		Args:  cobra.NoArgs,
		RunE:  runCompose,
	}
	cmd.Flags().String("domain", "", "domain name (required)")
	cmd.Flags().String("category", "", "category name (required)")
	cmd.Flags().String("severity", "ERROR", "severity name")
	cmd.Flags().String("source", "SYSTEM", "source name")
	cmd.Flags().Int("offset", 0, "offset within the domain/category pair (0..65535)")
	cmd.Flags().String("format", "text", "output format (text|json)")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func runCompose(cmd *cobra.Command, args []string) error {
	s, cleanup, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	domain, _ := cmd.Flags().GetString("domain")
	category, _ := cmd.Flags().GetString("category")
	severity, _ := cmd.Flags().GetString("severity")
	source, _ := cmd.Flags().GetString("source")
	offset, _ := cmd.Flags().GetInt("offset")
	format, _ := cmd.Flags().GetString("format")

	code, err := codes.New(s.reg).Build(domain, category, severity, source, offset)
	if err != nil {
		return fmt.Errorf("compose failed: %w", err)
	}
	return printCode(cmd.OutOrStdout(), code, format)
}

func printCode(out io.Writer, code bincode.Code, format string) error {
	switch format {
	case "text":
		c := code.Components()
		fmt.Fprintf(out, "decimal: %s\n", code)
		fmt.Fprintf(out, "hex:     %s\n", code.Hex())
		fmt.Fprintf(out, "binary:  %s\n", code.BinaryFields())
		fmt.Fprintf(out, "fields:  domain=%d category=%d severity=%d source=%d offset=%d\n",
			c.Domain, c.Category, c.Severity, c.Source, c.Offset)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(codePayload{
			Code:       code,
			Hex:        code.Hex(),
			Binary:     code.Binary(),
			Components: code.Components(),
		})
	default:
		return fmt.Errorf("unsupported format %q (must be text or json)", format)
	}
}
