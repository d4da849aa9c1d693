package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
)

func newVideosCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List recently admitted videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				videos, err := store.RecentVideos(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(videos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No videos admitted yet.")
					return nil
				}
				rows := make([][]string, 0, len(videos))
				for _, video := range videos {
					rows = append(rows, []string{
						video.SourceID,
						truncateTitle(video.Title, 48),
						video.SubjectName,
						video.TopicName,
						fmt.Sprintf("%.1f", video.QualityScore),
						formatDuration(video.DurationSeconds),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Source", "Title", "Subject", "Topic", "Score", "Length"}, rows, 4, 5,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of videos to show")
	return cmd
}

func truncateTitle(title string, limit int) string {
	runes := []rune(title)
	if len(runes) <= limit {
		return title
	}
	return string(runes[:limit-3]) + "..."
}

func formatDuration(seconds int) string {
	minutes := seconds / 60
	if minutes < 60 {
		return strconv.Itoa(minutes) + "m"
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}
