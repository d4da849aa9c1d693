package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
)

func newSubjectsCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Manage tracked instructors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				subjects, err := store.Subjects(cmd.Context())
				if err != nil {
					return err
				}
				if len(subjects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No subjects tracked yet. Seed some with `rollscout subjects add`.")
					return nil
				}
				rows := make([][]string, 0, len(subjects))
				for _, subject := range subjects {
					known := ""
					if !subject.KnownSince.IsZero() {
						known = subject.KnownSince.Local().Format("2006-01-02")
					}
					rows = append(rows, []string{subject.Name, strconv.Itoa(subject.Credibility), known})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Subject", "Credibility", "Known since"}, rows, 1,
				))
				return nil
			})
		},
	}

	cmd.AddCommand(newSubjectsAddCommand(cmdCtx))
	return cmd
}

func newSubjectsAddCommand(cmdCtx *commandContext) *cobra.Command {
	var credibility int

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Track an instructor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				subject := catalog.Subject{
					Name:        args[0],
					Credibility: credibility,
					KnownSince:  time.Now().UTC(),
				}
				if err := store.AddSubject(cmd.Context(), subject); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subject %q saved (credibility=%d).\n", subject.Name, credibility)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&credibility, "credibility", 50, "Instructor credibility (0-100)")
	return cmd
}
