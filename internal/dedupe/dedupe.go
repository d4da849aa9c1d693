// Package dedupe screens candidates before they spend quota or evaluator
// calls: exact duplicates by source id are dropped outright, and crowded
// subject/topic pairings are flagged for a score penalty.
package dedupe

import (
	"context"

	"rollscout/internal/catalog"
)

// Verdict is the outcome of screening one candidate.
type Verdict struct {
	IsDuplicate     bool
	SaturationCount int
	Penalize        bool
}

// Filter checks candidates against the admitted corpus.
type Filter struct {
	store     *catalog.Store
	threshold int
}

// NewFilter creates a filter. Candidates whose subject/topic pairing already
// holds at least threshold admitted videos are flagged for penalization.
func NewFilter(store *catalog.Store, threshold int) *Filter {
	return &Filter{store: store, threshold: threshold}
}

// Check screens one candidate. The saturation count uses fuzzy matching on
// both facets so phrasing variants of the same pairing count together.
func (f *Filter) Check(ctx context.Context, sourceID, subject, topic string) (Verdict, error) {
	exists, err := f.store.HasVideo(ctx, sourceID)
	if err != nil {
		return Verdict{}, err
	}
	if exists {
		return Verdict{IsDuplicate: true}, nil
	}

	count, err := f.store.CountBySubjectTopic(ctx, subject, topic)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{
		SaturationCount: count,
		Penalize:        f.threshold > 0 && count >= f.threshold,
	}, nil
}

// Saturation reports the count for a pairing without a duplicate check, for
// callers that already know the source is new.
func (f *Filter) Saturation(ctx context.Context, subject, topic string) (int, bool, error) {
	count, err := f.store.CountBySubjectTopic(ctx, subject, topic)
	if err != nil {
		return 0, false, err
	}
	return count, f.threshold > 0 && count >= f.threshold, nil
}
