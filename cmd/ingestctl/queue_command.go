package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"podingest/internal/config"
	"podingest/internal/store"
)

func newQueueCommand(cfgRef **config.Config) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage source processing state",
	}

	queueCmd.AddCommand(newQueueStatusCommand(cfgRef))
	queueCmd.AddCommand(newQueueListCommand(cfgRef))
	queueCmd.AddCommand(newQueueReingestCommand(cfgRef))
	queueCmd.AddCommand(newQueueHealthCommand(cfgRef))
	return queueCmd
}

func newQueueStatusCommand(cfgRef **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show counts by processing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(*cfgRef)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			stats, err := db.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("load stats: %w", err)
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources ingested yet")
				return nil
			}

			keys := make([]string, 0, len(stats))
			for status := range stats {
				keys = append(keys, string(status))
			}
			sort.Strings(keys)

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Status", "Count"})
			for _, key := range keys {
				tw.AppendRow(table.Row{key, stats[store.SourceStatus(key)]})
			}
			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 1, Align: text.AlignLeft},
				{Number: 2, Align: text.AlignRight},
			})
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			return nil
		},
	}
}

func newQueueListCommand(cfgRef **config.Config) *cobra.Command {
	var statusFilter []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(*cfgRef)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			statuses := make([]store.SourceStatus, 0, len(statusFilter))
			for _, s := range statusFilter {
				statuses = append(statuses, store.SourceStatus(strings.ToLower(strings.TrimSpace(s))))
			}
			sources, err := db.ListByStatus(cmd.Context(), statuses...)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			if len(sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching sources")
				return nil
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"ID", "Title", "Status", "Failure Reason"})
			for _, src := range sources {
				title := src.Title
				if len(title) > 60 {
					title = title[:57] + "..."
				}
				tw.AppendRow(table.Row{src.ID, title, src.Status, src.FailureReason})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilter, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueReingestCommand(cfgRef **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reingest [sourceID...]",
		Short: "Reset sources to pending so they're reprocessed",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid source id %q", arg)
				}
				ids = append(ids, id)
			}
			if len(ids) == 0 {
				return fmt.Errorf("specify at least one source id")
			}

			db, err := store.Open(*cfgRef)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			updated, err := db.Reingest(cmd.Context(), ids...)
			if err != nil {
				return fmt.Errorf("reingest: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d source(s) for reingestion\n", updated)
			return nil
		},
	}
}

func newQueueHealthCommand(cfgRef **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show database and queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(*cfgRef)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			health, err := db.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("load health: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total: %d\nPending: %d\nProcessing: %d\nFailed: %d\nSkipped: %d\nCompleted: %d\n",
				health.Total, health.Pending, health.Processing, health.Failed, health.Skipped, health.Completed)
			return nil
		},
	}
}
