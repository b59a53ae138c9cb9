package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	ownerEmail string
	verbose    bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "notepulse",
		Short:         "Track daily view, like and comment counts of your note.com articles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&ownerEmail, "owner", "", "account email whose data to use (default: note.email)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(fetchCmd())
	root.AddCommand(importCmd())
	root.AddCommand(summaryCmd())
	root.AddCommand(seriesCmd())
	root.AddCommand(calendarCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(sampleCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(userCmd())

	return root
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch today's statistics from note.com",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context())
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <files...>",
		Short: "Import exported CSV, TSV or XLSX statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args)
		},
	}
}

func summaryCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the latest snapshot and changes since the previous one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), jsonOutput, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "max articles to show")
	return cmd
}

func seriesCmd() *cobra.Command {
	var (
		jsonOutput bool
		totals     bool
	)

	cmd := &cobra.Command{
		Use:   "series",
		Short: "Show per-article history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeries(cmd.Context(), jsonOutput, totals)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&totals, "totals", false, "show daily totals instead of per-article series")
	return cmd
}

func calendarCmd() *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show which days have observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalendar(cmd.Context(), months)
		},
	}

	cmd.Flags().IntVar(&months, "months", 6, "number of months to show")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your observations as a SQLite database file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), out)
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "notepulse-export.db", "output file")
	return cmd
}

func sampleCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample import file (Shift_JIS CSV)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(out)
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "notepulse-sample.csv", "output file")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with daily fetch and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var (
		password    string
		skipBilling bool
	)
	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(cmd.Context(), args[0], password, skipBilling)
		},
	}
	add.Flags().StringVar(&password, "password", "", "account password")
	add.Flags().BoolVar(&skipBilling, "skip-billing", false, "exempt the account from the subscription check")
	add.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd.Context())
		},
	}

	del := &cobra.Command{
		Use:   "delete <email>",
		Short: "Delete an account and all of its observations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserDelete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}
