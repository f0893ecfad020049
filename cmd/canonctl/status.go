package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowcanon/canon/internal/storage"
)

// modelStatus is one model's row in `canonctl status` output.
type modelStatus struct {
	Model      string `json:"model"`
	Intake     int64  `json:"intake"`
	Keyed      int64  `json:"keyed"`
	Parked     int64  `json:"parked"`
	Tasks      int64  `json:"tasks"`
	Rejections int64  `json:"rejections"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-model intake/keyed/parked/task/rejection counts",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pctx, sqlStore, err := buildContext(ctx, nil)
	if err != nil {
		return err
	}
	if sqlStore != nil {
		defer sqlStore.Close()
	}

	var rows []modelStatus
	for _, m := range pctx.Registry.Models() {
		row := modelStatus{Model: m.Name()}
		row.Intake, err = pctx.Storage.Count(ctx, storage.SetName(m.Name(), storage.SetStageIntake))
		if err != nil {
			return fmt.Errorf("canonctl: counting %s intake: %w", m.Name(), err)
		}
		row.Keyed, err = pctx.Storage.Count(ctx, storage.SetName(m.Name(), storage.SetStageKeyed))
		if err != nil {
			return fmt.Errorf("canonctl: counting %s keyed: %w", m.Name(), err)
		}
		row.Parked, err = pctx.Storage.Count(ctx, storage.SetName(m.Name(), storage.SetStageParked))
		if err != nil {
			return fmt.Errorf("canonctl: counting %s parked: %w", m.Name(), err)
		}
		row.Tasks, err = pctx.Storage.Count(ctx, storage.SetName(m.Name(), storage.SetTasks))
		if err != nil {
			return fmt.Errorf("canonctl: counting %s tasks: %w", m.Name(), err)
		}
		row.Rejections, err = pctx.Storage.Count(ctx, storage.SetName(m.Name(), storage.SetRejections))
		if err != nil {
			return fmt.Errorf("canonctl: counting %s rejections: %w", m.Name(), err)
		}
		rows = append(rows, row)
	}

	if jsonOutput {
		return printJSON(rows)
	}
	printStatusTable(rows)
	return nil
}

func printStatusTable(rows []modelStatus) {
	if len(rows) == 0 {
		fmt.Println(mutedStyle.Render("no models registered (pass --profiles)"))
		return
	}
	fmt.Printf("%s\n", boldStyle.Render(fmt.Sprintf("%-24s %8s %8s %8s %8s %10s", "MODEL", "INTAKE", "KEYED", "PARKED", "TASKS", "REJECTIONS")))
	for _, r := range rows {
		parked := fmt.Sprint(r.Parked)
		if r.Parked > 0 {
			parked = warnStyle.Render(parked)
		} else {
			parked = passStyle.Render(parked)
		}
		rejections := fmt.Sprint(r.Rejections)
		if r.Rejections > 0 {
			rejections = failStyle.Render(rejections)
		} else {
			rejections = passStyle.Render(rejections)
		}
		fmt.Printf("%-24s %8d %8d %8s %8d %10s\n",
			accentStyle.Render(r.Model), r.Intake, r.Keyed, parked, r.Tasks, rejections)
	}
}
