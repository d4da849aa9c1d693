// Package searchrun executes planned queries against the provider, paging
// through results under quota control and persisting per-query pagination
// state so interrupted queries resume where they left off.
package searchrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
	"rollscout/internal/logging"
	"rollscout/internal/planner"
	"rollscout/internal/provider"
	"rollscout/internal/quota"
)

// Result is the outcome of executing one planned query.
//
// Completed means the query's quota-side work finished this run: either its
// continuation drained (Exhausted) or the per-query page cap was reached.
// A query cut short by quota is not completed and must not move the
// rotation cursor.
type Result struct {
	Items         []provider.Item
	PagesConsumed int
	Completed     bool
	Exhausted     bool
	QuotaHit      bool
}

// Executor runs planned queries.
type Executor struct {
	searcher provider.Searcher
	governor *quota.Governor
	store    *catalog.Store
	cfg      config.Provider
	logger   *slog.Logger
}

// New creates an executor.
func New(searcher provider.Searcher, governor *quota.Governor, store *catalog.Store, cfg config.Provider, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		searcher: searcher,
		governor: governor,
		store:    store,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "searchrun")),
	}
}

// Run pages through one query. Quota is reserved before every page request;
// a refused reservation or a provider quota signal stops the query cleanly
// with QuotaHit set and no error. Pagination progress is persisted even when
// the query stops early.
func (e *Executor) Run(ctx context.Context, query planner.Query) (*Result, error) {
	progress := &catalog.QueryProgress{QueryHash: query.Hash, QueryText: query.Text}
	if query.Progress != nil {
		existing := *query.Progress
		progress = &existing
	}
	token := progress.ContinuationToken

	result := &Result{}
	maxPages := e.cfg.MaxPagesPerQuery
	if maxPages <= 0 {
		maxPages = 1
	}

	var runErr error
	for result.PagesConsumed < maxPages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if !e.governor.Reserve(e.cfg.SearchCost) {
			result.QuotaHit = true
			break
		}

		page, err := e.searcher.Search(ctx, query.Text, token, query.Sort)
		if err != nil {
			if errors.Is(err, provider.ErrQuotaExceeded) {
				e.governor.MarkExhausted("provider reported quota exhausted")
				result.QuotaHit = true
				break
			}
			runErr = fmt.Errorf("query %q page %d: %w", query.Text, progress.PageOffset+result.PagesConsumed+1, err)
			break
		}

		result.Items = append(result.Items, page.Items...)
		result.PagesConsumed++
		token = page.NextPageToken
		if token == "" {
			result.Exhausted = true
			break
		}
	}

	result.Completed = runErr == nil && !result.QuotaHit

	progress.PageOffset += result.PagesConsumed
	progress.ContinuationToken = token
	progress.TimesSearched++
	progress.ItemsFound += len(result.Items)
	progress.Exhausted = result.Exhausted
	if err := e.store.UpsertProgress(ctx, progress); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			e.logger.Error("persist query progress failed",
				logging.String(logging.FieldQueryHash, query.Hash),
				logging.Error(err))
		}
	}

	e.logger.Info("query executed",
		logging.String(logging.FieldQuery, query.Text),
		logging.String(logging.FieldQueryHash, query.Hash),
		logging.Int("pages", result.PagesConsumed),
		logging.Int("items", len(result.Items)),
		logging.Bool("completed", result.Completed),
		logging.Bool("exhausted", result.Exhausted),
		logging.Bool("quota_hit", result.QuotaHit))

	return result, runErr
}
