package searchrun

import (
	"context"
	"errors"
	"testing"

	"rollscout/internal/catalog"
	"rollscout/internal/planner"
	"rollscout/internal/provider"
	"rollscout/internal/quota"
	"rollscout/internal/testsupport"
)

type scriptedCall struct {
	page *provider.Page
	err  error
}

type fakeSearcher struct {
	calls      []scriptedCall
	next       int
	seenTokens []string
}

func (f *fakeSearcher) Search(_ context.Context, _, pageToken string, _ provider.Sort) (*provider.Page, error) {
	f.seenTokens = append(f.seenTokens, pageToken)
	if f.next >= len(f.calls) {
		return nil, errors.New("unexpected extra search call")
	}
	call := f.calls[f.next]
	f.next++
	return call.page, call.err
}

func (f *fakeSearcher) Details(context.Context, string) (*provider.Details, error) {
	return nil, errors.New("not used")
}

func items(ids ...string) []provider.Item {
	out := make([]provider.Item, len(ids))
	for i, id := range ids {
		out[i] = provider.Item{ID: id, Title: "video " + id}
	}
	return out
}

func plannedQuery(text string) planner.Query {
	return planner.Query{Text: text, Hash: catalog.QueryHash(text), Sort: provider.SortRelevance, Slots: 1}
}

func TestRunDrainsContinuation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.MaxPagesPerQuery = 5
	store := testsupport.MustOpenStore(t, cfg)
	governor := quota.NewGovernor(10000)
	searcher := &fakeSearcher{calls: []scriptedCall{
		{page: &provider.Page{Items: items("a", "b"), NextPageToken: "t1"}},
		{page: &provider.Page{Items: items("c")}},
	}}

	exec := New(searcher, governor, store, cfg.Provider, nil)
	result, err := exec.Run(context.Background(), plannedQuery("armbar bjj"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed || !result.Exhausted || result.QuotaHit {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Items) != 3 || result.PagesConsumed != 2 {
		t.Fatalf("result = %+v", result)
	}
	if governor.Used() != 2*cfg.Provider.SearchCost {
		t.Fatalf("quota used = %d", governor.Used())
	}

	progress, err := store.ProgressByHash(context.Background(), catalog.QueryHash("armbar bjj"))
	if err != nil {
		t.Fatalf("ProgressByHash: %v", err)
	}
	if progress == nil || !progress.Exhausted || progress.PageOffset != 2 || progress.ItemsFound != 3 || progress.TimesSearched != 1 {
		t.Fatalf("progress = %+v", progress)
	}
	if progress.ContinuationToken != "" {
		t.Fatalf("token = %q, want cleared", progress.ContinuationToken)
	}
}

func TestRunStopsAtPageCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.MaxPagesPerQuery = 2
	store := testsupport.MustOpenStore(t, cfg)
	governor := quota.NewGovernor(10000)
	searcher := &fakeSearcher{calls: []scriptedCall{
		{page: &provider.Page{Items: items("a"), NextPageToken: "t1"}},
		{page: &provider.Page{Items: items("b"), NextPageToken: "t2"}},
	}}

	exec := New(searcher, governor, store, cfg.Provider, nil)
	result, err := exec.Run(context.Background(), plannedQuery("triangle bjj"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed || result.Exhausted || result.QuotaHit {
		t.Fatalf("result = %+v", result)
	}

	progress, _ := store.ProgressByHash(context.Background(), catalog.QueryHash("triangle bjj"))
	if progress == nil || progress.ContinuationToken != "t2" {
		t.Fatalf("progress = %+v, want continuation t2 persisted", progress)
	}
}

func TestRunResumesFromPersistedToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.MaxPagesPerQuery = 1
	store := testsupport.MustOpenStore(t, cfg)
	governor := quota.NewGovernor(10000)
	searcher := &fakeSearcher{calls: []scriptedCall{
		{page: &provider.Page{Items: items("z"), NextPageToken: "t4"}},
	}}

	query := plannedQuery("half guard sweep")
	query.Progress = &catalog.QueryProgress{
		QueryHash:         query.Hash,
		QueryText:         query.Text,
		PageOffset:        3,
		ContinuationToken: "t3",
		TimesSearched:     2,
		ItemsFound:        40,
	}

	exec := New(searcher, governor, store, cfg.Provider, nil)
	if _, err := exec.Run(context.Background(), query); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(searcher.seenTokens) != 1 || searcher.seenTokens[0] != "t3" {
		t.Fatalf("tokens = %v, want resume from t3", searcher.seenTokens)
	}

	progress, _ := store.ProgressByHash(context.Background(), query.Hash)
	if progress == nil || progress.PageOffset != 4 || progress.TimesSearched != 3 || progress.ItemsFound != 41 {
		t.Fatalf("progress = %+v", progress)
	}
	if progress.ContinuationToken != "t4" {
		t.Fatalf("token = %q", progress.ContinuationToken)
	}
}

func TestRunStopsWhenBudgetRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.MaxPagesPerQuery = 5
	store := testsupport.MustOpenStore(t, cfg)
	// Budget covers exactly one page.
	governor := quota.NewGovernor(cfg.Provider.SearchCost)
	searcher := &fakeSearcher{calls: []scriptedCall{
		{page: &provider.Page{Items: items("a"), NextPageToken: "t1"}},
	}}

	exec := New(searcher, governor, store, cfg.Provider, nil)
	result, err := exec.Run(context.Background(), plannedQuery("mount escape"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.QuotaHit || result.Completed {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Items) != 1 {
		t.Fatalf("items from the paid page must be kept: %+v", result)
	}
	if !governor.Exhausted() {
		t.Fatal("refused reservation should latch the governor")
	}

	progress, _ := store.ProgressByHash(context.Background(), catalog.QueryHash("mount escape"))
	if progress == nil || progress.ContinuationToken != "t1" {
		t.Fatalf("progress = %+v, want continuation persisted for resume", progress)
	}
}

func TestRunProviderQuotaSignalMarksGovernor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.MaxPagesPerQuery = 5
	store := testsupport.MustOpenStore(t, cfg)
	governor := quota.NewGovernor(10000)
	searcher := &fakeSearcher{calls: []scriptedCall{
		{err: provider.ErrQuotaExceeded},
	}}

	exec := New(searcher, governor, store, cfg.Provider, nil)
	result, err := exec.Run(context.Background(), plannedQuery("back take"))
	if err != nil {
		t.Fatalf("quota signal is an outcome, not an error: %v", err)
	}
	if !result.QuotaHit || result.Completed {
		t.Fatalf("result = %+v", result)
	}
	if !governor.Exhausted() {
		t.Fatal("out-of-band quota signal should latch the governor")
	}
}

func TestRunTransientErrorPersistsProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.MaxPagesPerQuery = 5
	store := testsupport.MustOpenStore(t, cfg)
	governor := quota.NewGovernor(10000)
	searcher := &fakeSearcher{calls: []scriptedCall{
		{page: &provider.Page{Items: items("a"), NextPageToken: "t1"}},
		{err: errors.New("upstream hiccup")},
	}}

	exec := New(searcher, governor, store, cfg.Provider, nil)
	result, err := exec.Run(context.Background(), plannedQuery("kimura grip"))
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Completed {
		t.Fatal("failed query must not count as completed")
	}
	if len(result.Items) != 1 {
		t.Fatalf("items = %d, want the successful page kept", len(result.Items))
	}

	progress, _ := store.ProgressByHash(context.Background(), catalog.QueryHash("kimura grip"))
	if progress == nil || progress.PageOffset != 1 || progress.ContinuationToken != "t1" {
		t.Fatalf("progress = %+v", progress)
	}
}
