package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rollscout/internal/admission"
	"rollscout/internal/catalog"
	"rollscout/internal/config"
	"rollscout/internal/dedupe"
	"rollscout/internal/evaluator"
	"rollscout/internal/logging"
	"rollscout/internal/planner"
	"rollscout/internal/provider"
	"rollscout/internal/quota"
	"rollscout/internal/runner"
	"rollscout/internal/searchrun"
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one discovery run",
		Long: "Plans a query batch, searches the provider under quota control, and\n" +
			"admits qualifying videos into the catalog. Safe to invoke from cron;\n" +
			"concurrent invocations are refused.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			store, err := catalog.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			coordinator, err := buildCoordinator(cfg, store, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			record, err := coordinator.Run(ctx)
			if err != nil {
				if errors.Is(err, runner.ErrAlreadyRunning) {
					return err
				}
				if record != nil {
					printRunSummary(cmd, record)
				}
				return err
			}
			printRunSummary(cmd, record)
			return nil
		},
	}
}

func buildCoordinator(cfg *config.Config, store *catalog.Store, logger *slog.Logger) (*runner.Coordinator, error) {
	governor := quota.NewGovernor(cfg.Provider.QuotaBudget)

	providerOpts := []provider.Option{
		provider.WithPageSize(cfg.Provider.PageSize),
		provider.WithRateLimit(cfg.Provider.RequestsPerSecond),
	}
	if cfg.Provider.TimeoutSeconds > 0 {
		providerOpts = append(providerOpts, provider.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		}))
	}
	searcher, err := provider.New(cfg.Provider.APIKey, cfg.Provider.BaseURL, providerOpts...)
	if err != nil {
		return nil, err
	}

	eval, err := evaluator.NewClient(cfg.Evaluator)
	if err != nil {
		return nil, err
	}

	filter := dedupe.NewFilter(store, cfg.Discovery.SaturationThreshold)
	executor := searchrun.New(searcher, governor, store, cfg.Provider, logger)
	pipeline := admission.New(store, filter, searcher, governor, eval, cfg.Discovery, cfg.Provider, logger)
	batchPlanner := planner.New(store, cfg.Discovery, logger)

	return runner.New(cfg, store, batchPlanner, executor, pipeline, governor, logger), nil
}

func printRunSummary(cmd *cobra.Command, record *catalog.RunRecord) {
	rows := [][]string{
		{"Run", record.RunID},
		{"Stop reason", record.StopReason},
		{"Queries executed", strconv.Itoa(record.QueriesExecuted)},
		{"Items found", strconv.Itoa(record.ItemsFound)},
		{"Items analyzed", strconv.Itoa(record.ItemsAnalyzed)},
		{"Items admitted", strconv.Itoa(record.ItemsAdmitted)},
		{"New subjects", strconv.Itoa(record.NewSubjects)},
		{"Quota used", strconv.Itoa(record.QuotaUsed)},
	}
	if len(record.Errors) > 0 {
		rows = append(rows, []string{"Errors", strings.Join(record.Errors, "; ")})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
}
