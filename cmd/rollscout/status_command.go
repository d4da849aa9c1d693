package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show rotation state and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ctx := cmd.Context()

				cursor, err := store.EnsureRotationCursor(ctx)
				if err != nil {
					return err
				}
				topics, err := store.Topics(ctx)
				if err != nil {
					return err
				}
				subjects, err := store.Subjects(ctx)
				if err != nil {
					return err
				}
				queued, err := store.UnprocessedSubjects(ctx, 1000)
				if err != nil {
					return err
				}

				lastRun := "never"
				if !cursor.LastRunAt.IsZero() {
					lastRun = cursor.LastRunAt.Local().Format(time.RFC3339)
				}
				overview := [][]string{
					{"Rotation index", strconv.Itoa(cursor.LastQueryIndex)},
					{"Last run", lastRun},
					{"Quota used last run", strconv.Itoa(cursor.QuotaUsedLastRun)},
					{"Topics", strconv.Itoa(len(topics))},
					{"Subjects", strconv.Itoa(len(subjects))},
					{"Queued subjects", strconv.Itoa(len(queued))},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, overview))

				records, err := store.RecentRuns(ctx, limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					completed := "running"
					if record.CompletedAt != nil {
						completed = record.CompletedAt.Local().Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{
						record.RunID[:8],
						record.StartedAt.Local().Format("2006-01-02 15:04"),
						completed,
						record.StopReason,
						strconv.Itoa(record.QueriesExecuted),
						strconv.Itoa(record.ItemsAdmitted),
						strconv.Itoa(record.QuotaUsed),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Started", "Completed", "Stop", "Queries", "Admitted", "Quota"},
					rows, 4, 5, 6,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of recent runs to show")
	return cmd
}
