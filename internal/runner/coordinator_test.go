package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"rollscout/internal/admission"
	"rollscout/internal/catalog"
	"rollscout/internal/planner"
	"rollscout/internal/provider"
	"rollscout/internal/quota"
	"rollscout/internal/searchrun"
	"rollscout/internal/testsupport"
)

type fakePlanner struct {
	plan *planner.Plan
	err  error
}

func (f *fakePlanner) NextBatch(context.Context) (*planner.Plan, error) {
	return f.plan, f.err
}

type fakeExecutor struct {
	results map[string]*searchrun.Result
	errs    map[string]error
	calls   []string
	onRun   func()
}

func (f *fakeExecutor) Run(_ context.Context, query planner.Query) (*searchrun.Result, error) {
	f.calls = append(f.calls, query.Text)
	if f.onRun != nil {
		f.onRun()
	}
	result := f.results[query.Text]
	if result == nil {
		result = &searchrun.Result{Completed: true, PagesConsumed: 1}
	}
	return result, f.errs[query.Text]
}

type fakeAdmitter struct {
	stats map[string]*admission.Stats
	calls []string
}

func (f *fakeAdmitter) Process(_ context.Context, query planner.Query, _ []provider.Item) (*admission.Stats, error) {
	f.calls = append(f.calls, query.Text)
	if s, ok := f.stats[query.Text]; ok {
		return s, nil
	}
	return &admission.Stats{}, nil
}

func rotationQuery(text string, slots int) planner.Query {
	return planner.Query{Text: text, Hash: catalog.QueryHash(text), Slots: slots}
}

func priorityQuery(text string) planner.Query {
	return planner.Query{Text: text, Hash: catalog.QueryHash(text), Priority: 100}
}

type harness struct {
	coord    *Coordinator
	store    *catalog.Store
	governor *quota.Governor
	executor *fakeExecutor
	admitter *fakeAdmitter
}

func newHarness(t *testing.T, plan *planner.Plan, planErr error) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	executor := &fakeExecutor{results: map[string]*searchrun.Result{}, errs: map[string]error{}}
	admitter := &fakeAdmitter{stats: map[string]*admission.Stats{}}
	governor := quota.NewGovernor(cfg.Provider.QuotaBudget)
	coord := New(cfg, store, &fakePlanner{plan: plan, err: planErr}, executor, admitter, governor, nil)
	coord.sleeper = func(time.Duration) {}
	return &harness{coord: coord, store: store, governor: governor, executor: executor, admitter: admitter}
}

func TestRunAdvancesCursorByCompletedSlots(t *testing.T) {
	plan := &planner.Plan{
		UniverseSize: 10,
		CursorStart:  2,
		Queries: []planner.Query{
			rotationQuery("q1", 1),
			rotationQuery("q2", 2),
			rotationQuery("q3", 1),
		},
	}
	h := newHarness(t, plan, nil)
	h.executor.errs["q3"] = errors.New("upstream hiccup")
	h.executor.results["q3"] = &searchrun.Result{PagesConsumed: 1}

	record, err := h.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if record.StopReason != catalog.StopCompleted {
		t.Fatalf("stop reason = %q", record.StopReason)
	}
	if record.QueriesExecuted != 3 {
		t.Fatalf("queries executed = %d", record.QueriesExecuted)
	}
	if len(record.Errors) != 1 {
		t.Fatalf("errors = %v", record.Errors)
	}
	if !record.Finished() {
		t.Fatal("record must be finalized")
	}

	cursor, err := h.store.EnsureRotationCursor(context.Background())
	if err != nil {
		t.Fatalf("EnsureRotationCursor: %v", err)
	}
	// q1 and q2 completed (1 + 2 slots); q3 failed and must not advance.
	if cursor.LastQueryIndex != 5 {
		t.Fatalf("cursor = %d, want 2 + 3 = 5", cursor.LastQueryIndex)
	}
	if cursor.LastRunAt.IsZero() {
		t.Fatal("cursor LastRunAt must be stamped")
	}
}

func TestRunQuotaStopsAfterProcessingPaidItems(t *testing.T) {
	plan := &planner.Plan{
		UniverseSize: 8,
		CursorStart:  0,
		Queries: []planner.Query{
			rotationQuery("q1", 1),
			rotationQuery("q2", 1),
			rotationQuery("q3", 1),
		},
	}
	h := newHarness(t, plan, nil)
	h.executor.results["q2"] = &searchrun.Result{
		Items:         []provider.Item{{ID: "paid", Title: "fetched before quota ran out"}},
		PagesConsumed: 1,
		QuotaHit:      true,
	}
	h.admitter.stats["q2"] = &admission.Stats{Analyzed: 1, Admitted: 1}

	record, err := h.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if record.StopReason != catalog.StopQuota {
		t.Fatalf("stop reason = %q", record.StopReason)
	}
	if len(h.executor.calls) != 2 {
		t.Fatalf("executor calls = %v, q3 must not run", h.executor.calls)
	}
	if len(h.admitter.calls) != 1 || h.admitter.calls[0] != "q2" {
		t.Fatalf("admitter calls = %v, paid items must still be processed", h.admitter.calls)
	}
	if record.ItemsAdmitted != 1 {
		t.Fatalf("record = %+v", record)
	}

	cursor, _ := h.store.EnsureRotationCursor(context.Background())
	// Only q1 completed; the interrupted q2 stays ahead of the cursor.
	if cursor.LastQueryIndex != 1 {
		t.Fatalf("cursor = %d, want 1", cursor.LastQueryIndex)
	}
}

func TestRunQueryRefusedBeforeFirstPageNotCountedExecuted(t *testing.T) {
	plan := &planner.Plan{
		UniverseSize: 8,
		CursorStart:  0,
		Queries: []planner.Query{
			rotationQuery("q1", 1),
			rotationQuery("q2", 1),
		},
	}
	h := newHarness(t, plan, nil)
	// q2's first page reservation is refused: zero pages, no API call.
	h.executor.results["q2"] = &searchrun.Result{QuotaHit: true}

	record, err := h.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if record.StopReason != catalog.StopQuota {
		t.Fatalf("stop reason = %q", record.StopReason)
	}
	if record.QueriesExecuted != 1 {
		t.Fatalf("queries executed = %d, want only q1 counted", record.QueriesExecuted)
	}

	cursor, err := h.store.EnsureRotationCursor(context.Background())
	if err != nil {
		t.Fatalf("EnsureRotationCursor: %v", err)
	}
	if cursor.LastQueryIndex != 1 {
		t.Fatalf("cursor = %d, want 1", cursor.LastQueryIndex)
	}
}

func TestRunStopsWhenErrorBudgetSpent(t *testing.T) {
	plan := &planner.Plan{
		UniverseSize: 5,
		Queries: []planner.Query{
			rotationQuery("q1", 1),
			rotationQuery("q2", 1),
			rotationQuery("q3", 1),
		},
	}
	h := newHarness(t, plan, nil)
	h.coord.cfg.Discovery.ErrorBudget = 2
	for _, q := range []string{"q1", "q2", "q3"} {
		h.executor.errs[q] = errors.New("boom")
		h.executor.results[q] = &searchrun.Result{}
	}

	record, err := h.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if record.StopReason != catalog.StopErrorBudget {
		t.Fatalf("stop reason = %q", record.StopReason)
	}
	if len(h.executor.calls) != 2 {
		t.Fatalf("executor calls = %v, want stop after 2 failures", h.executor.calls)
	}
}

func TestRunPriorityQueriesNeverMoveCursor(t *testing.T) {
	plan := &planner.Plan{
		UniverseSize: 5,
		CursorStart:  3,
		Queries:      []planner.Query{priorityQuery("new subject armbar")},
	}
	h := newHarness(t, plan, nil)

	if _, err := h.store.EnsureRotationCursor(context.Background()); err != nil {
		t.Fatalf("EnsureRotationCursor: %v", err)
	}
	if err := h.store.SaveRotationCursor(context.Background(), catalog.RotationCursor{LastQueryIndex: 3}); err != nil {
		t.Fatalf("SaveRotationCursor: %v", err)
	}

	record, err := h.coord.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if record.StopReason != catalog.StopCompleted {
		t.Fatalf("stop reason = %q", record.StopReason)
	}

	cursor, _ := h.store.EnsureRotationCursor(context.Background())
	if cursor.LastQueryIndex != 3 {
		t.Fatalf("cursor = %d, priority queries carry zero slots", cursor.LastQueryIndex)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	plan := &planner.Plan{Queries: nil}
	h := newHarness(t, plan, nil)

	lock := flock.New(h.coord.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("take lock: %v locked=%v", err, locked)
	}
	defer lock.Unlock()

	if _, err := h.coord.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunPlannerFailureStillFinalizes(t *testing.T) {
	h := newHarness(t, nil, errors.New("catalog unavailable"))

	record, err := h.coord.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if record == nil || record.StopReason != catalog.StopAborted {
		t.Fatalf("record = %+v", record)
	}

	persisted, err := h.store.GetRun(context.Background(), record.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if persisted == nil || !persisted.Finished() {
		t.Fatalf("persisted = %+v, aborted runs must be finalized", persisted)
	}
	if persisted.StopReason != catalog.StopAborted {
		t.Fatalf("persisted stop reason = %q", persisted.StopReason)
	}
}

func TestRunCanceledContextStopsCleanly(t *testing.T) {
	plan := &planner.Plan{
		UniverseSize: 5,
		Queries: []planner.Query{
			rotationQuery("q1", 1),
			rotationQuery("q2", 1),
		},
	}
	h := newHarness(t, plan, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.executor.onRun = cancel

	record, err := h.coord.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if record.StopReason != catalog.StopCanceled {
		t.Fatalf("stop reason = %q", record.StopReason)
	}
	if len(h.executor.calls) != 1 {
		t.Fatalf("executor calls = %v, cancellation must stop before q2", h.executor.calls)
	}

	cursor, cerr := h.store.EnsureRotationCursor(context.Background())
	if cerr != nil {
		t.Fatalf("EnsureRotationCursor: %v", cerr)
	}
	if cursor.LastRunAt.IsZero() {
		t.Fatal("cursor must be stamped even on cancellation")
	}
}
