package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
)

func newTopicsCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage the topic search space",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				topics, err := store.Topics(cmd.Context())
				if err != nil {
					return err
				}
				if len(topics) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No topics configured. Seed some with `rollscout topics add`.")
					return nil
				}
				rows := make([][]string, 0, len(topics))
				for _, topic := range topics {
					rows = append(rows, []string{
						topic.Name,
						strconv.Itoa(topic.VideoCount),
						strconv.Itoa(topic.Priority),
						yesNo(topic.IsCore),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Topic", "Videos", "Priority", "Core"}, rows, 1, 2,
				))
				return nil
			})
		},
	}

	cmd.AddCommand(newTopicsAddCommand(cmdCtx))
	return cmd
}

func newTopicsAddCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		priority int
		core     bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a topic to the search space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				topic := catalog.Topic{Name: args[0], Priority: priority, IsCore: core}
				if err := store.UpsertTopic(cmd.Context(), topic); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Topic %q saved (priority=%d core=%s).\n", topic.Name, priority, yesNo(core))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&priority, "priority", 0, "Rotation priority (higher is searched sooner)")
	cmd.Flags().BoolVar(&core, "core", false, "Mark as a core topic used for priority queries")
	return cmd
}
