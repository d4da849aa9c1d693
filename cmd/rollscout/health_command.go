package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
	"rollscout/internal/evaluator"
)

func newHealthCommand(cmdCtx *commandContext) *cobra.Command {
	var checkEvaluator bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check catalog database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}

				rows := [][]string{
					{"Database", health.DBPath},
					{"Exists", yesNo(health.DatabaseExists)},
					{"Readable", yesNo(health.DatabaseReadable)},
					{"Integrity", yesNo(health.IntegrityCheck)},
					{"Videos", strconv.Itoa(health.TotalVideos)},
				}
				if len(health.MissingTables) > 0 {
					rows = append(rows, []string{"Missing tables", strings.Join(health.MissingTables, ", ")})
				}
				if health.Error != "" {
					rows = append(rows, []string{"Error", health.Error})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))

				if checkEvaluator {
					client, err := evaluator.NewClient(cfg.Evaluator)
					if err != nil {
						return err
					}
					if err := client.CheckHealth(cmd.Context()); err != nil {
						return fmt.Errorf("evaluator health: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Evaluator reachable.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&checkEvaluator, "evaluator", false, "Also ping the evaluator endpoint")
	return cmd
}
