package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

var parkedCmd = &cobra.Command{
	Use:   "parked",
	Short: "Inspect parked records",
}

var parkedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parked records, optionally filtered by model",
	RunE:  runParkedList,
}

func init() {
	parkedListCmd.Flags().String("model", "", "Limit to a single model")
	parkedListCmd.Flags().Int("page-size", 100, "Max records per model")
	parkedCmd.AddCommand(parkedListCmd)
}

func runParkedList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pctx, sqlStore, err := buildContext(ctx, nil)
	if err != nil {
		return err
	}
	if sqlStore != nil {
		defer sqlStore.Close()
	}

	pageSize, _ := cmd.Flags().GetInt("page-size")
	only := modelFlag(cmd)

	var out []*types.ParkedRecord
	for _, m := range pctx.Registry.Models() {
		if only != "" && m.Name() != only {
			continue
		}
		set := storage.SetName(m.Name(), storage.SetStageParked)
		recs, err := storage.FirstPage[types.ParkedRecord](ctx, pctx.Storage, set, pageSize)
		if err != nil {
			return fmt.Errorf("canonctl: listing %s parked: %w", m.Name(), err)
		}
		out = append(out, recs...)
	}

	if jsonOutput {
		return printJSON(out)
	}
	if len(out) == 0 {
		fmt.Println(passStyle.Render("no parked records"))
		return nil
	}
	for _, p := range out {
		fmt.Printf("%s  %-22s  %-10s  %s\n",
			mutedStyle.Render(p.ParkedAt.Format("2006-01-02T15:04:05Z07:00")),
			accentStyle.Render(p.SourceId),
			warnStyle.Render(p.ReasonCode),
			p.Id)
	}
	return nil
}
