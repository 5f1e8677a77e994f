package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"photosort/internal/app"
	"photosort/internal/config"
	"photosort/internal/sorter"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if sorter.IsFatal(err) {
			fmt.Fprintln(os.Stderr, "photosort: stopped, output and ledger may need inspection")
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults. A missing file
// yields the default configuration.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config, applies command-line overrides and creates a
// SortApp for the output root. The caller must defer app.Close().
func newApp(cmd *cobra.Command) (*app.SortApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	output, _ := cmd.Flags().GetString("output")
	a, err := app.NewSortApp(cfg, output, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("move") {
		if move, _ := flags.GetBool("move"); move {
			cfg.Mode = "move"
		} else {
			cfg.Mode = "copy"
		}
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("locale") {
		cfg.Locale, _ = flags.GetString("locale")
	}
	if flags.Changed("timezone") {
		cfg.Timezone, _ = flags.GetString("timezone")
	}
	if flags.Changed("ledger") {
		cfg.Ledger.Type, _ = flags.GetString("ledger")
		cfg.Ledger.File = ""
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg.Validate()
}

var rootCmd = &cobra.Command{
	Use:          "photosort",
	Short:        "Sort photos into dated directories without duplicates",
	SilenceUsage: true,
}

// sort command
var sortCmd = &cobra.Command{
	Use:   "sort -i INPUT [-o OUTPUT]",
	Short: "Sort photos from INPUT into OUTPUT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, sortErr := a.Sort(ctx, input)

		out := cmd.OutOrStdout()
		fmt.Fprint(out, renderTable(out,
			[]string{"Outcome", "Files"},
			[][]string{
				{"placed", strconv.Itoa(summary.Placed)},
				{"duplicates", strconv.Itoa(summary.Duplicates)},
				{"destination conflicts", strconv.Itoa(summary.DestinationConflicts)},
				{"ledger conflicts", strconv.Itoa(summary.LedgerConflicts)},
				{"unreadable", strconv.Itoa(summary.Unreadable)},
				{"skipped", strconv.Itoa(summary.Skipped)},
			},
			[]columnAlignment{alignLeft, alignRight},
		))
		fmt.Fprintln(out)

		if sortErr != nil {
			return fmt.Errorf("sort failed (run %s): %w", a.RunID(), sortErr)
		}
		return nil
	},
}

// ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the ledger of an output directory",
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger location and size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats := a.LedgerStats()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderTable(out,
			[]string{"Type", "Path", "Entries"},
			[][]string{{stats.Type, stats.Path, strconv.Itoa(stats.Entries)}},
			[]columnAlignment{alignLeft, alignLeft, alignRight},
		))
		return nil
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Report whether a file's content has already been sorted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.CheckFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.Recorded {
			fmt.Fprintf(out, "%s  %s  recorded from %s\n", res.Digest, res.Path, res.SourcePath)
		} else {
			fmt.Fprintf(out, "%s  %s  not recorded\n", res.Digest, res.Path)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sort run history (sqlite ledger)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if errors.Is(err, app.ErrNoHistory) {
			return fmt.Errorf("%w (use --ledger sqlite)", err)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			rows = append(rows, []string{
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Mode.String(),
				r.Status,
				strconv.Itoa(r.Summary.Placed),
				strconv.Itoa(r.Summary.Duplicates),
				strconv.Itoa(r.Summary.Conflicts()),
				duration,
				r.InputRoot,
			})
		}
		fmt.Fprintln(out, renderTable(out,
			[]string{"Started", "Mode", "Status", "Placed", "Duplicates", "Conflicts", "Duration", "Input"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
		))
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(cmd.OutOrStdout(), "Log Dir: %s\n", cfg.LogDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", defaults["config_path"])
		fmt.Fprintln(out, renderTable(out,
			[]string{"Key", "Value"},
			[][]string{
				{"log_dir", cfg.LogDir},
				{"log_level", cfg.LogLevel},
				{"output_dir", cfg.OutputDir},
				{"mode", cfg.Mode},
				{"workers", strconv.Itoa(cfg.Workers)},
				{"locale", cfg.Locale},
				{"timezone", cfg.Timezone},
				{"extensions", strings.Join(cfg.Extensions, ", ")},
				{"date_sources", strings.Join(cfg.DateSources, ", ")},
				{"ledger.type", cfg.Ledger.Type},
				{"ledger.file", cfg.Ledger.File},
				{"filesystem.ignore", strings.Join(cfg.Filesystem.Ignore, ", ")},
			},
			nil,
		))
		return nil
	},
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Output directory (default: output_dir from config)")
	cmd.Flags().String("ledger", "", "Ledger store: csv, sqlite or memory")
}

func init() {
	// sort
	sortCmd.Flags().StringP("input", "i", "", "Directory to sort photos from")
	sortCmd.MarkFlagRequired("input")
	addOutputFlag(sortCmd)
	sortCmd.Flags().Bool("move", false, "Move files instead of copying them")
	sortCmd.Flags().Int("workers", config.DefaultWorkers, "Number of concurrent digest workers")
	sortCmd.Flags().String("locale", "", "Locale for month and weekday names, e.g. fr_FR")
	sortCmd.Flags().String("timezone", "", "Time zone for dates, e.g. Europe/Paris (default: local)")
	sortCmd.Flags().String("log-level", "", "trace, debug, info, warn or error")

	// ledger
	addOutputFlag(ledgerStatsCmd)
	addOutputFlag(ledgerCheckCmd)
	ledgerCmd.AddCommand(ledgerStatsCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)

	// history
	addOutputFlag(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")

	// config
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(sortCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
