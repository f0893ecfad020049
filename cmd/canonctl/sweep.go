package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowcanon/canon/internal/parentresolve"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single parent-resolution pass across every model",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pctx, sqlStore, err := buildContext(ctx, nil)
	if err != nil {
		return err
	}
	if sqlStore != nil {
		defer sqlStore.Close()
	}

	svc := parentresolve.NewService(pctx, nil)
	if err := svc.SweepOnce(ctx); err != nil {
		return fmt.Errorf("canonctl: sweep: %w", err)
	}
	if jsonOutput {
		return printJSON(map[string]bool{"ok": true})
	}
	fmt.Println(passStyle.Render("sweep complete"))
	return nil
}
