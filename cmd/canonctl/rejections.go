package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/types"
)

var rejectionsCmd = &cobra.Command{
	Use:   "rejections",
	Short: "Inspect rejection reports",
}

var rejectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rejection reports, optionally filtered by model",
	RunE:  runRejectionsList,
}

func init() {
	rejectionsListCmd.Flags().String("model", "", "Limit to a single model")
	rejectionsListCmd.Flags().Int("page-size", 100, "Max records per model")
	rejectionsCmd.AddCommand(rejectionsListCmd)
}

func runRejectionsList(cmd *cobra.Command, args []string) error {
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

	var out []*types.RejectionReport
	for _, m := range pctx.Registry.Models() {
		if only != "" && m.Name() != only {
			continue
		}
		set := storage.SetName(m.Name(), storage.SetRejections)
		recs, err := storage.FirstPage[types.RejectionReport](ctx, pctx.Storage, set, pageSize)
		if err != nil {
			return fmt.Errorf("canonctl: listing %s rejections: %w", m.Name(), err)
		}
		out = append(out, recs...)
	}

	if jsonOutput {
		return printJSON(out)
	}
	if len(out) == 0 {
		fmt.Println(passStyle.Render("no rejection reports"))
		return nil
	}
	for _, r := range out {
		fmt.Printf("%s  %-12s  %-22s  %s\n",
			mutedStyle.Render(r.CreatedAt.Format("2006-01-02T15:04:05Z07:00")),
			accentStyle.Render(r.Model),
			failStyle.Render(r.ReasonCode),
			r.SourceId)
	}
	return nil
}
