// Package planner synthesizes the per-run query batch. Priority queries
// drain the subject expansion queue first; the remainder of the batch
// round-robins through the full query universe behind the persisted
// rotation cursor.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
	"rollscout/internal/logging"
	"rollscout/internal/provider"
)

// Kind identifies how a query was synthesized.
type Kind string

const (
	KindSubjectTopic  Kind = "subject_topic"
	KindTopicOnly     Kind = "topic_only"
	KindTopicModifier Kind = "topic_modifier"
)

// Generic modifiers paired with topics to reach content that plain
// subject/topic phrasing misses.
var searchModifiers = []string{"instructional", "breakdown", "tutorial", "details", "study"}

// Priority annotation values. Queue-drain queries outrank every rotation
// entry; rotation entries earn points for topic sparsity and a boost when
// their subject ranks among the most credible tracked subjects.
const (
	drainPriority         = 100
	sparseTopicPriority   = 2
	middlingTopicPriority = 1
	prominentSubjectBoost = 3
	prominentSubjectLimit = 5
)

// Query is one planned search.
//
// Priority annotates how valuable the query looks at plan time; queue-drain
// queries carry drainPriority, rotation entries a score from topic sparsity
// and subject prominence.
//
// Slots is the number of universe positions this query accounts for: one
// for itself plus one for each exhausted entry skipped immediately before
// it. Queue-drain queries live outside the universe and carry zero slots,
// so draining them never moves the rotation cursor.
type Query struct {
	Text     string
	Hash     string
	Kind     Kind
	Subject  string
	Topic    string
	Sort     provider.Sort
	Priority int
	Slots    int
	Progress *catalog.QueryProgress
}

// Plan is the output of one NextBatch call.
type Plan struct {
	Queries      []Query
	UniverseSize int
	CursorStart  int
}

// Planner builds query batches from the catalog's current search space.
type Planner struct {
	store  *catalog.Store
	cfg    config.Discovery
	logger *slog.Logger
}

// New creates a planner.
func New(store *catalog.Store, cfg config.Discovery, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{store: store, cfg: cfg, logger: logger.With(logging.String(logging.FieldComponent, "planner"))}
}

type universeEntry struct {
	text    string
	hash    string
	kind    Kind
	subject string
	topic   string
}

// NextBatch plans one run's queries. Queue entries consumed here are marked
// processed immediately, regardless of what their queries later yield, and
// their subjects join the tracked set so the universe includes them from the
// next run onward.
func (p *Planner) NextBatch(ctx context.Context) (*Plan, error) {
	cursor, err := p.store.EnsureRotationCursor(ctx)
	if err != nil {
		return nil, err
	}
	topics, err := p.store.Topics(ctx)
	if err != nil {
		return nil, err
	}
	countByTopic := make(map[string]int, len(topics))
	for _, topic := range topics {
		countByTopic[strings.ToLower(topic.Name)] = topic.VideoCount
	}

	priority, err := p.drainQueue(ctx, topics, countByTopic)
	if err != nil {
		return nil, err
	}

	universe, err := p.buildUniverse(ctx, topics)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Queries: priority, UniverseSize: len(universe)}
	remaining := p.cfg.BatchSize - len(priority)
	if remaining <= 0 || len(universe) == 0 {
		p.logger.Debug("planned batch without rotation fill",
			logging.Int("priority_queries", len(priority)),
			logging.Int("universe_size", len(universe)))
		return plan, nil
	}

	hashes := make([]string, len(universe))
	for i, entry := range universe {
		hashes[i] = entry.hash
	}
	progressByHash, err := p.store.ProgressByHashes(ctx, hashes...)
	if err != nil {
		return nil, err
	}

	prominent, err := p.prominentSubjects(ctx)
	if err != nil {
		return nil, err
	}

	start := cursor.LastQueryIndex % len(universe)
	plan.CursorStart = start

	planned := make(map[string]struct{}, len(priority))
	for _, q := range priority {
		planned[q.Hash] = struct{}{}
	}

	// Exhausted entries, and entries already covered by a priority query this
	// run, are skipped but still counted toward the next emitted query's
	// slots, so a fully consumed batch advances the cursor past them.
	pendingSlots := 0
	emitted := 0
	for i := 0; i < len(universe) && emitted < remaining; i++ {
		entry := universe[(start+i)%len(universe)]
		pendingSlots++

		if _, ok := planned[entry.hash]; ok {
			continue
		}
		var progress *catalog.QueryProgress
		if existing, ok := progressByHash[entry.hash]; ok {
			if existing.Exhausted {
				continue
			}
			copied := existing
			progress = &copied
		}

		plan.Queries = append(plan.Queries, Query{
			Text:     entry.text,
			Hash:     entry.hash,
			Kind:     entry.kind,
			Subject:  entry.subject,
			Topic:    entry.topic,
			Sort:     p.sortFor(entry.topic, countByTopic),
			Priority: p.queryPriority(entry.subject, entry.topic, countByTopic, prominent),
			Slots:    pendingSlots,
			Progress: progress,
		})
		planned[entry.hash] = struct{}{}
		pendingSlots = 0
		emitted++
	}

	p.logger.Debug("planned batch",
		logging.Int("priority_queries", len(priority)),
		logging.Int("rotation_queries", emitted),
		logging.Int("universe_size", len(universe)),
		logging.Int("cursor_start", start))
	return plan, nil
}

// drainQueue converts unprocessed expansion queue entries into priority
// queries against the highest-priority core topics.
func (p *Planner) drainQueue(ctx context.Context, topics []catalog.Topic, countByTopic map[string]int) ([]Query, error) {
	entries, err := p.store.UnprocessedSubjects(ctx, p.cfg.PriorityDrainLimit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var coreTopics []string
	for _, topic := range topics {
		if !topic.IsCore {
			continue
		}
		coreTopics = append(coreTopics, topic.Name)
		if len(coreTopics) >= p.cfg.PriorityTopicCount {
			break
		}
	}

	var (
		queries []Query
		hashes  []string
		ids     []int64
	)
	for _, entry := range entries {
		ids = append(ids, entry.ID)
		for _, topic := range coreTopics {
			text := entry.Subject + " " + topic
			hash := catalog.QueryHash(text)
			hashes = append(hashes, hash)
			queries = append(queries, Query{
				Text:     text,
				Hash:     hash,
				Kind:     KindSubjectTopic,
				Subject:  entry.Subject,
				Topic:    topic,
				Sort:     p.sortFor(topic, countByTopic),
				Priority: drainPriority,
			})
		}
		if err := p.store.AddSubject(ctx, catalog.Subject{Name: entry.Subject, Credibility: entry.Credibility}); err != nil {
			return nil, fmt.Errorf("track drained subject %q: %w", entry.Subject, err)
		}
	}

	// A re-queued subject may carry stale exhausted progress from an earlier
	// life; reset it so priority queries always run.
	if _, err := p.store.ResetProgress(ctx, hashes...); err != nil {
		return nil, err
	}
	if _, err := p.store.MarkSubjectsProcessed(ctx, ids...); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		p.logger.Info("drained subject from expansion queue",
			logging.String(logging.FieldSubject, entry.Subject),
			logging.Int("credibility", entry.Credibility))
	}
	return queries, nil
}

// buildUniverse enumerates the full query universe in a deterministic order:
// every subject crossed with every topic, then topic-only queries, then topic
// plus modifier queries. The universe is rebuilt per invocation so it always
// reflects the current subject and topic sets.
func (p *Planner) buildUniverse(ctx context.Context, topics []catalog.Topic) ([]universeEntry, error) {
	tracked, err := p.store.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	corpus, err := p.store.CorpusSubjects(ctx, p.cfg.AcceptanceThreshold)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(tracked)+len(corpus))
	var subjects []string
	addSubject := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		subjects = append(subjects, name)
	}
	for _, subject := range tracked {
		addSubject(subject.Name)
	}
	for _, name := range corpus {
		addSubject(name)
	}
	sort.Slice(subjects, func(i, j int) bool {
		return strings.ToLower(subjects[i]) < strings.ToLower(subjects[j])
	})

	var universe []universeEntry
	add := func(text string, kind Kind, subject, topic string) {
		universe = append(universe, universeEntry{
			text:    text,
			hash:    catalog.QueryHash(text),
			kind:    kind,
			subject: subject,
			topic:   topic,
		})
	}
	for _, subject := range subjects {
		for _, topic := range topics {
			add(subject+" "+topic.Name, KindSubjectTopic, subject, topic.Name)
		}
	}
	for _, topic := range topics {
		add(topic.Name+" bjj", KindTopicOnly, "", topic.Name)
	}
	for _, topic := range topics {
		for _, modifier := range searchModifiers {
			add(topic.Name+" "+modifier, KindTopicModifier, "", topic.Name)
		}
	}
	return universe, nil
}

// prominentSubjects returns the lowercased names of the most credible
// tracked subjects. Universe entries for these subjects get a priority
// boost.
func (p *Planner) prominentSubjects(ctx context.Context) (map[string]struct{}, error) {
	top, err := p.store.TopSubjects(ctx, prominentSubjectLimit)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(top))
	for _, subject := range top {
		names[strings.ToLower(subject.Name)] = struct{}{}
	}
	return names, nil
}

// queryPriority annotates a universe entry: sparse topics rank above
// middling ones, saturated topics rank lowest, and prominent subjects add
// a fixed boost on top.
func (p *Planner) queryPriority(subject, topic string, countByTopic map[string]int, prominent map[string]struct{}) int {
	priority := middlingTopicPriority
	if count, ok := countByTopic[strings.ToLower(topic)]; ok {
		switch {
		case count < p.cfg.SparseTopicCutoff:
			priority = sparseTopicPriority
		case count >= p.cfg.SaturatedTopicCutoff:
			priority = 0
		}
	}
	if subject != "" {
		if _, ok := prominent[strings.ToLower(subject)]; ok {
			priority += prominentSubjectBoost
		}
	}
	return priority
}

// sortFor picks the provider sort from topic saturation: sparse topics
// surface the proven classics first, saturated topics look for what is new,
// everything in between trusts relevance.
func (p *Planner) sortFor(topic string, countByTopic map[string]int) provider.Sort {
	count, ok := countByTopic[strings.ToLower(topic)]
	if !ok {
		return provider.SortRelevance
	}
	switch {
	case count < p.cfg.SparseTopicCutoff:
		return provider.SortPopularity
	case count >= p.cfg.SaturatedTopicCutoff:
		return provider.SortRecency
	default:
		return provider.SortRelevance
	}
}
