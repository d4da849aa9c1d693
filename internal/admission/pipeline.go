// Package admission decides which search results enter the catalog. Items
// flow through duplicate screening, a details fetch, duration bounds, model
// evaluation, saturation penalization, and taxonomy classification before
// they are written. A single bad item is logged and skipped; only quota
// exhaustion aborts the remaining items.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
	"rollscout/internal/dedupe"
	"rollscout/internal/evaluator"
	"rollscout/internal/logging"
	"rollscout/internal/planner"
	"rollscout/internal/provider"
	"rollscout/internal/quota"
	"rollscout/internal/taxonomy"
)

// Stats summarizes processing one query's items.
type Stats struct {
	Analyzed    int
	Admitted    int
	Rejected    int
	Duplicates  int
	Penalized   int
	NewSubjects int
	QuotaHit    bool
	Errors      []string
}

// Pipeline admits candidates into the catalog.
type Pipeline struct {
	store     *catalog.Store
	filter    *dedupe.Filter
	searcher  provider.Searcher
	governor  *quota.Governor
	evaluator evaluator.Evaluator
	discovery config.Discovery
	provider  config.Provider
	caser     cases.Caser
	logger    *slog.Logger
}

// New creates an admission pipeline.
func New(
	store *catalog.Store,
	filter *dedupe.Filter,
	searcher provider.Searcher,
	governor *quota.Governor,
	eval evaluator.Evaluator,
	discovery config.Discovery,
	providerCfg config.Provider,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		store:     store,
		filter:    filter,
		searcher:  searcher,
		governor:  governor,
		evaluator: eval,
		discovery: discovery,
		provider:  providerCfg,
		caser:     cases.Title(language.Und),
		logger:    logger.With(logging.String(logging.FieldComponent, "admission")),
	}
}

// Process runs the pipeline over one query's items. It never returns an
// error for per-item failures; those are collected in Stats.Errors. When
// quota runs out mid-batch the remaining items are left for a future run.
func (p *Pipeline) Process(ctx context.Context, query planner.Query, items []provider.Item) (*Stats, error) {
	stats := &Stats{}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		outcome, err := p.processItem(ctx, query, item, stats)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", item.ID, err))
			p.logger.Warn("item failed",
				logging.String(logging.FieldSourceID, item.ID),
				logging.Error(err))
			continue
		}
		if outcome == outcomeQuota {
			stats.QuotaHit = true
			break
		}
	}
	if stats.Admitted > 0 {
		if err := p.store.AddProgressAdmitted(ctx, query.Hash, stats.Admitted); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		}
	}
	return stats, nil
}

type itemOutcome int

const (
	outcomeDone itemOutcome = iota
	outcomeQuota
)

func (p *Pipeline) processItem(ctx context.Context, query planner.Query, item provider.Item, stats *Stats) (itemOutcome, error) {
	screened, err := p.filter.Check(ctx, item.ID, query.Subject, query.Topic)
	if err != nil {
		return outcomeDone, err
	}
	if screened.IsDuplicate {
		stats.Duplicates++
		return outcomeDone, nil
	}

	// Details cost is reserved before the call, same as search pages.
	if !p.governor.Reserve(p.provider.DetailsCost) {
		return outcomeQuota, nil
	}
	details, err := p.searcher.Details(ctx, item.ID)
	if err != nil {
		if errors.Is(err, provider.ErrQuotaExceeded) {
			p.governor.MarkExhausted("provider reported quota exhausted")
			return outcomeQuota, nil
		}
		return outcomeDone, err
	}

	if details.DurationSeconds < p.discovery.MinDurationSeconds || details.DurationSeconds > p.discovery.MaxDurationSeconds {
		stats.Rejected++
		return outcomeDone, nil
	}

	stats.Analyzed++
	verdict, err := p.evaluator.Evaluate(ctx, evaluator.Candidate{
		Title:        item.Title,
		Description:  item.Description,
		ChannelTitle: item.ChannelTitle,
		SubjectHint:  query.Subject,
		TopicHint:    query.Topic,
	})
	if err != nil {
		return outcomeDone, err
	}
	if verdict.Outcome == evaluator.OutcomeMalformed {
		stats.Rejected++
		p.logger.Warn("evaluator verdict unusable",
			logging.String(logging.FieldSourceID, item.ID),
			logging.String("reason", verdict.Reason))
		return outcomeDone, nil
	}
	if verdict.Outcome != evaluator.OutcomeAccepted {
		stats.Rejected++
		return outcomeDone, nil
	}

	subject := p.canonicalName(firstNonEmpty(verdict.Subject, query.Subject))
	topic := strings.ToLower(strings.TrimSpace(firstNonEmpty(verdict.Topic, query.Topic)))

	score := verdict.Score
	count, penalize, err := p.filter.Saturation(ctx, subject, topic)
	if err != nil {
		return outcomeDone, err
	}
	if penalize {
		// The penalty grows with how far past the threshold the pairing
		// already is, so crowded pairings need ever stronger candidates.
		over := count - p.discovery.SaturationThreshold + 1
		score -= p.discovery.SaturationPenalty * float64(over)
		if score < 0 {
			score = 0
		}
		stats.Penalized++
	}
	if score < p.discovery.AcceptanceThreshold {
		stats.Rejected++
		return outcomeDone, nil
	}

	// The reported subject's novelty must be judged before the insert below
	// makes it part of the corpus.
	subjectIsNew := false
	if subject != "" && verdict.Credibility >= p.discovery.CredibilityThreshold {
		known, err := p.store.SubjectKnown(ctx, subject)
		if err != nil {
			return outcomeDone, err
		}
		subjectIsNew = !known
	}

	tax := taxonomy.Classify(item.Title, topic, verdict.Category)
	video := &catalog.Video{
		SourceID:         item.ID,
		Title:            item.Title,
		SubjectName:      subject,
		TopicName:        topic,
		Category:         verdict.Category,
		DurationSeconds:  details.DurationSeconds,
		PublishedAt:      item.PublishedAt,
		QualityScore:     score,
		TaxonomyType:     tax.Type,
		TaxonomyPosition: tax.Position,
		TaxonomyGi:       tax.GiOrNogi,
		Tags:             tax.Tags,
	}
	if err := p.store.InsertVideo(ctx, video); err != nil {
		if errors.Is(err, catalog.ErrDuplicateSource) {
			stats.Duplicates++
			return outcomeDone, nil
		}
		return outcomeDone, err
	}
	stats.Admitted++
	if err := p.store.IncrementTopicVideoCount(ctx, topic); err != nil {
		return outcomeDone, err
	}

	if verdict.Credibility >= p.discovery.CredibilityThreshold {
		if subjectIsNew {
			added, err := p.store.EnqueueSubject(ctx, catalog.QueuedSubject{
				Subject:        subject,
				Credibility:    verdict.Credibility,
				DiscoveredFrom: item.ID,
			})
			if err != nil {
				return outcomeDone, err
			}
			if added {
				stats.NewSubjects++
				p.logger.Info("subject discovered",
					logging.String(logging.FieldSubject, subject),
					logging.String(logging.FieldSourceID, item.ID))
			}
		}
		enqueued, err := p.enqueueDiscoveries(ctx, item.ID, verdict)
		if err != nil {
			return outcomeDone, err
		}
		stats.NewSubjects += enqueued
	}

	p.logger.Info("video admitted",
		logging.String(logging.FieldSourceID, item.ID),
		logging.String(logging.FieldSubject, subject),
		logging.String(logging.FieldTopic, topic),
		logging.Float64("score", score))
	return outcomeDone, nil
}

// enqueueDiscoveries feeds the subject expansion queue with instructors the
// evaluator spotted alongside the admitted video's own. Names already
// tracked, admitted, or queued are ignored.
func (p *Pipeline) enqueueDiscoveries(ctx context.Context, sourceID string, verdict *evaluator.Verdict) (int, error) {
	enqueued := 0
	for _, name := range verdict.Mentions {
		canonical := p.canonicalName(name)
		if canonical == "" {
			continue
		}
		known, err := p.store.SubjectKnown(ctx, canonical)
		if err != nil {
			return enqueued, err
		}
		if known {
			continue
		}
		added, err := p.store.EnqueueSubject(ctx, catalog.QueuedSubject{
			Subject:        canonical,
			Credibility:    verdict.Credibility,
			DiscoveredFrom: sourceID,
		})
		if err != nil {
			return enqueued, err
		}
		if added {
			enqueued++
			p.logger.Info("subject discovered",
				logging.String(logging.FieldSubject, canonical),
				logging.String(logging.FieldSourceID, sourceID))
		}
	}
	return enqueued, nil
}

func (p *Pipeline) canonicalName(name string) string {
	return p.caser.String(strings.ToLower(strings.TrimSpace(name)))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
