// Package report renders the end-of-run summary spec.md §7 requires: counts
// by terminal status and the most common failure reasons.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"podingest/internal/store"
)

// FailureCount pairs a failure reason with how many sources hit it.
type FailureCount struct {
	Reason string
	Count  int
}

// Summary is the data behind the printed report.
type Summary struct {
	StatusCounts  map[store.SourceStatus]int
	TopFailures   []FailureCount
}

// Build collects status counts and the top N most common failure reasons
// across all currently-failed sources.
func Build(ctx context.Context, db *store.Store, topN int) (Summary, error) {
	stats, err := db.Stats(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load stats: %w", err)
	}

	failed, err := db.ListByStatus(ctx, store.SourceStatusFailed)
	if err != nil {
		return Summary{}, fmt.Errorf("list failed sources: %w", err)
	}

	counts := make(map[string]int)
	for _, src := range failed {
		reason := src.FailureReason
		if reason == "" {
			reason = "unknown"
		}
		counts[reason]++
	}

	top := make([]FailureCount, 0, len(counts))
	for reason, count := range counts {
		top = append(top, FailureCount{Reason: reason, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Reason < top[j].Reason
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}

	return Summary{StatusCounts: stats, TopFailures: top}, nil
}

// Render writes the status-count go-pretty table to w, followed by a
// failure-reason table, or by the line "No failures recorded" when there
// are no failures.
func Render(w io.Writer, summary Summary) {
	statusKeys := make([]string, 0, len(summary.StatusCounts))
	for status := range summary.StatusCounts {
		statusKeys = append(statusKeys, string(status))
	}
	sort.Strings(statusKeys)

	statusTable := table.NewWriter()
	statusTable.SetOutputMirror(w)
	statusTable.SetStyle(table.StyleRounded)
	statusTable.AppendHeader(table.Row{"Status", "Count"})
	for _, key := range statusKeys {
		statusTable.AppendRow(table.Row{key, summary.StatusCounts[store.SourceStatus(key)]})
	}
	statusTable.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})
	statusTable.Render()

	if len(summary.TopFailures) == 0 {
		fmt.Fprintln(w, "No failures recorded")
		return
	}

	failureTable := table.NewWriter()
	failureTable.SetOutputMirror(w)
	failureTable.SetStyle(table.StyleRounded)
	failureTable.AppendHeader(table.Row{"Failure Reason", "Count"})
	for _, f := range summary.TopFailures {
		reason := f.Reason
		if len(reason) > 80 {
			reason = reason[:77] + "..."
		}
		failureTable.AppendRow(table.Row{reason, f.Count})
	}
	failureTable.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})
	failureTable.Render()
}
