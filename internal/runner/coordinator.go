// Package runner coordinates one discovery invocation end to end: it takes
// the single-instance lock, plans the batch, executes queries, routes their
// results through admission, and finalizes the rotation cursor and run
// record no matter how the run ends.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"rollscout/internal/admission"
	"rollscout/internal/catalog"
	"rollscout/internal/config"
	"rollscout/internal/logging"
	"rollscout/internal/planner"
	"rollscout/internal/provider"
	"rollscout/internal/quota"
	"rollscout/internal/searchrun"
)

// ErrAlreadyRunning is returned when another invocation holds the lock.
var ErrAlreadyRunning = errors.New("another discovery run is already in progress")

// BatchPlanner plans one run's queries.
type BatchPlanner interface {
	NextBatch(ctx context.Context) (*planner.Plan, error)
}

// QueryExecutor pages through one planned query.
type QueryExecutor interface {
	Run(ctx context.Context, query planner.Query) (*searchrun.Result, error)
}

// Admitter processes one query's items into the catalog.
type Admitter interface {
	Process(ctx context.Context, query planner.Query, items []provider.Item) (*admission.Stats, error)
}

// Coordinator drives a full discovery run.
type Coordinator struct {
	cfg      *config.Config
	store    *catalog.Store
	planner  BatchPlanner
	executor QueryExecutor
	admitter Admitter
	governor *quota.Governor
	logger   *slog.Logger
	sleeper  func(time.Duration)
}

// New creates a coordinator.
func New(
	cfg *config.Config,
	store *catalog.Store,
	batchPlanner BatchPlanner,
	executor QueryExecutor,
	admitter Admitter,
	governor *quota.Governor,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		planner:  batchPlanner,
		executor: executor,
		admitter: admitter,
		governor: governor,
		logger:   logger.With(logging.String(logging.FieldComponent, "runner")),
		sleeper:  time.Sleep,
	}
}

// Run executes one discovery invocation. Quota exhaustion, a spent error
// budget, and cancellation are normal stop reasons recorded on the run
// record, not errors. The rotation cursor and run record are finalized on
// every path, including aborts.
func (c *Coordinator) Run(ctx context.Context) (*catalog.RunRecord, error) {
	lock := flock.New(c.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("release run lock failed", logging.Error(err))
		}
	}()

	record := &catalog.RunRecord{RunID: uuid.NewString()}
	if err := c.store.CreateRun(ctx, record); err != nil {
		return nil, err
	}
	c.logger.Info("run started", logging.String(logging.FieldRunID, record.RunID))

	plan, err := c.planner.NextBatch(ctx)
	if err != nil {
		record.StopReason = catalog.StopAborted
		record.Errors = append(record.Errors, err.Error())
		c.finalize(ctx, record, nil, 0)
		return record, fmt.Errorf("plan batch: %w", err)
	}

	consumedSlots := c.executeBatch(ctx, plan, record)

	c.finalize(ctx, record, plan, consumedSlots)
	c.logger.Info("run finished",
		logging.String(logging.FieldRunID, record.RunID),
		logging.String(logging.FieldStopReason, record.StopReason),
		logging.Int("queries", record.QueriesExecuted),
		logging.Int("admitted", record.ItemsAdmitted),
		logging.Int(logging.FieldQuotaUsed, record.QuotaUsed))
	return record, nil
}

// executeBatch runs the planned queries in order and returns the rotation
// slots consumed by fully completed non-priority queries. The cursor only
// ever advances past work that finished, so a query interrupted by quota is
// retried from its persisted continuation next run.
func (c *Coordinator) executeBatch(ctx context.Context, plan *planner.Plan, record *catalog.RunRecord) int {
	consumedSlots := 0
	errorCount := 0
	record.StopReason = catalog.StopCompleted

	for _, query := range plan.Queries {
		if ctx.Err() != nil {
			record.StopReason = catalog.StopCanceled
			return consumedSlots
		}
		if c.governor.Exhausted() {
			record.StopReason = catalog.StopQuota
			return consumedSlots
		}

		result, execErr := c.executor.Run(ctx, query)
		// A query refused before its first page did no paid work and is not
		// counted as executed.
		if result != nil && result.PagesConsumed > 0 {
			record.QueriesExecuted++
		}
		quotaHit := false
		if result != nil {
			record.ItemsFound += len(result.Items)
			quotaHit = result.QuotaHit

			// Items already paid for are processed even when the search was
			// cut short by quota.
			if len(result.Items) > 0 {
				stats, admitErr := c.admitter.Process(ctx, query, result.Items)
				if stats != nil {
					record.ItemsAnalyzed += stats.Analyzed
					record.ItemsAdmitted += stats.Admitted
					record.NewSubjects += stats.NewSubjects
					record.Errors = append(record.Errors, stats.Errors...)
					quotaHit = quotaHit || stats.QuotaHit
				}
				if admitErr != nil {
					record.StopReason = catalog.StopCanceled
					record.Errors = append(record.Errors, admitErr.Error())
					return consumedSlots
				}
			}

			// Queue-drain queries carry zero slots, so only completed
			// rotation queries move the cursor.
			if result.Completed {
				consumedSlots += query.Slots
			}
		}

		if execErr != nil {
			errorCount++
			record.Errors = append(record.Errors, execErr.Error())
			c.logger.Warn("query failed",
				logging.String(logging.FieldQuery, query.Text),
				logging.Error(execErr))
			if c.cfg.Discovery.ErrorBudget > 0 && errorCount >= c.cfg.Discovery.ErrorBudget {
				record.StopReason = catalog.StopErrorBudget
				return consumedSlots
			}
		}

		if quotaHit {
			record.StopReason = catalog.StopQuota
			return consumedSlots
		}
	}
	return consumedSlots
}

// finalize persists the rotation cursor and run record with a bounded retry.
// Both writes must land even on abnormal exits; losing them would replay
// queries and misreport quota next run.
func (c *Coordinator) finalize(ctx context.Context, record *catalog.RunRecord, plan *planner.Plan, consumedSlots int) {
	// Finalization proceeds on a fresh context when the run was canceled.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	c.persistWithRetry(ctx, "rotation cursor", func() error {
		cursor, err := c.store.EnsureRotationCursor(ctx)
		if err != nil {
			return err
		}
		if plan != nil && plan.UniverseSize > 0 {
			cursor.LastQueryIndex = (plan.CursorStart + consumedSlots) % plan.UniverseSize
		}
		cursor.LastRunAt = time.Now().UTC()
		cursor.QuotaUsedLastRun = c.governor.Used()
		return c.store.SaveRotationCursor(ctx, cursor)
	})

	record.QuotaUsed = c.governor.Used()
	if record.StopReason == "" {
		record.StopReason = catalog.StopAborted
	}
	if reason := c.governor.Reason(); reason != "" && record.StopReason == catalog.StopQuota {
		record.Errors = append(record.Errors, "quota: "+reason)
	}
	c.persistWithRetry(ctx, "run record", func() error {
		return c.store.FinalizeRun(ctx, record)
	})
}

func (c *Coordinator) persistWithRetry(ctx context.Context, what string, fn func() error) {
	const attempts = 3
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return
		}
		if ctx.Err() != nil {
			break
		}
		c.sleeper(time.Duration(attempt) * 200 * time.Millisecond)
	}
	c.logger.Error("persist "+what+" failed", logging.Error(err))
}
