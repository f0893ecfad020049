// Command canonctl is an operations CLI for the canonicalization
// pipeline: inspecting pipeline health (status, parked, rejections),
// triggering an out-of-band parent-resolution sweep, and running the
// background workers themselves. It is never an ingestion path — nothing
// here writes a StageRecord.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flowcanon/canon/internal/config"
	"github.com/flowcanon/canon/internal/pipeline"
	"github.com/flowcanon/canon/internal/registry"
	"github.com/flowcanon/canon/internal/storage"
	"github.com/flowcanon/canon/internal/storage/memory"
	"github.com/flowcanon/canon/internal/storage/sqlstore"
	"github.com/flowcanon/canon/internal/telemetry"
)

var (
	jsonOutput  bool
	noColor     bool
	profilesPath string
	configPath  string

	storageBackend string // "memory" (default) or "sql"
	sqlDriver      string
	sqlDSN         string
	sqlTable       string
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "canonctl",
	Short: "Operate a canonicalization pipeline",
	Long: `canonctl inspects and drives a Flow/Canon canonicalization pipeline:
intake/keyed/parked counts, parked and rejection diagnostics, an on-demand
parent-resolution sweep, and the background workers themselves.

Examples:
  canonctl status --profiles profiles.toml
  canonctl parked list --model Contact
  canonctl sweep --profiles profiles.toml
  canonctl run --profiles profiles.toml --storage sql --dsn "canon@tcp(127.0.0.1:3306)/canon"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled output")
	rootCmd.PersistentFlags().StringVar(&profilesPath, "profiles", "", "Path to a profiles.toml model manifest")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or TOML Options file")

	rootCmd.PersistentFlags().StringVar(&storageBackend, "storage", "memory", "Storage backend: memory or sql")
	rootCmd.PersistentFlags().StringVar(&sqlDriver, "driver", "mysql", "sqlstore driver: mysql or dolt")
	rootCmd.PersistentFlags().StringVar(&sqlDSN, "dsn", "", "sqlstore data source name")
	rootCmd.PersistentFlags().StringVar(&sqlTable, "table", "", "sqlstore table name override")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(parkedCmd)
	rootCmd.AddCommand(rejectionsCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	if noColor || !term.IsTerminal(int(os.Stdout.Fd())) || termenv.NewOutput(os.Stdout).ColorProfile() == termenv.Ascii {
		lipgloss.DefaultRenderer().SetColorProfile(termenv.Ascii)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// buildContext assembles a *pipeline.Context from the persistent flags,
// shared by every subcommand. Callers that open a sqlstore.Store get it
// back as the second return value so they can Close it.
func buildContext(ctx context.Context, log *slog.Logger) (*pipeline.Context, *sqlstore.Store, error) {
	return buildContextWithMetrics(ctx, log, telemetry.NoOp())
}

// buildContextWithMetrics is buildContext with an explicit Metrics
// instance, used by `run` to wire a real exporter instead of the no-op.
func buildContextWithMetrics(ctx context.Context, log *slog.Logger, metrics *telemetry.Metrics) (*pipeline.Context, *sqlstore.Store, error) {
	reg, err := buildRegistry(profilesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("canonctl: building registry: %w", err)
	}

	loader, err := config.NewLoader(configPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("canonctl: loading config: %w", err)
	}
	opts := loader.Options()

	store, sqlStore, err := openStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	pctx := pipeline.New(store, reg, opts, log, metrics)
	return pctx, sqlStore, nil
}

func openStorage(ctx context.Context) (storage.Storage, *sqlstore.Store, error) {
	switch storageBackend {
	case "", "memory":
		return memory.New(), nil, nil
	case "sql":
		if sqlDSN == "" {
			return nil, nil, fmt.Errorf("canonctl: --storage sql requires --dsn")
		}
		s, err := sqlstore.Open(ctx, sqlstore.Config{Driver: sqlDriver, DSN: sqlDSN, Table: sqlTable})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("canonctl: unknown storage backend %q", storageBackend)
	}
}

func printJSON(v interface{}) error {
	return newJSONEncoder(os.Stdout).Encode(v)
}

func newJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

func modelFlag(cmd *cobra.Command) string {
	m, _ := cmd.Flags().GetString("model")
	return m
}
