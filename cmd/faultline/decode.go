package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"faultline/internal/bincode"
	"faultline/internal/collector"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <code>",
		Short: "Explain a code given in decimal or 0x hex",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecode,
	}
	cmd.Flags().String("format", "pretty", "output format (pretty|text|json)")
	return cmd
}

func runDecode(cmd *cobra.Command, args []string) error {
	s, cleanup, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	code, err := bincode.Parse(args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "pretty" {
		return printCode(cmd.OutOrStdout(), code, format)
	}
	rec := collector.NewRecord(s.reg, code, nil, time.Now())
	fmt.Fprint(cmd.OutOrStdout(), s.renderer.Render(rec))
	return nil
}
