package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvctranslator/nvcbot/internal/domain"
	"github.com/nvctranslator/nvcbot/internal/resolver"
	"github.com/nvctranslator/nvcbot/internal/rewriter"
	"github.com/nvctranslator/nvcbot/internal/storage"
	"github.com/nvctranslator/nvcbot/internal/twitter"
	"github.com/nvctranslator/nvcbot/pkg/logging"
)

// DefaultMaxConcurrent caps in-flight rewrite+publish work per cycle.
const DefaultMaxConcurrent = 30

// Processor drives one poll cycle: fetch since watermark, resolve,
// dispatch rewrite+reply work under bounded concurrency, and commit the
// new watermark once the batch has fully drained.
type Processor struct {
	store         storage.Storage
	fetcher       twitter.Fetcher
	resolver      resolver.Resolver
	rewriter      rewriter.Rewriter
	publisher     twitter.Publisher
	logger        logging.Logger
	maxConcurrent int

	// nowFn supplies the clock; replaced in tests.
	nowFn func() time.Time
}

// NewProcessor creates a new batch processor
func NewProcessor(
	store storage.Storage,
	fetcher twitter.Fetcher,
	res resolver.Resolver,
	rw rewriter.Rewriter,
	pub twitter.Publisher,
	logger logging.Logger,
	maxConcurrent int,
) *Processor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Processor{
		store:         store,
		fetcher:       fetcher,
		resolver:      res,
		rewriter:      rw,
		publisher:     pub,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		nowFn:         time.Now,
	}
}

// RunCycle executes a single poll cycle. Only fetch and watermark
// persistence failures escape; per-item failures are recorded in the
// report and never abort the batch.
func (p *Processor) RunCycle(ctx context.Context) (*domain.CycleReport, error) {
	cycleID := uuid.New().String()
	log := p.logger.With(logging.F("cycle_id", cycleID))

	watermark, initialized, err := p.loadWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}

	report := &domain.CycleReport{
		CycleID:      cycleID,
		Counts:       make(map[domain.OutcomeStatus]int),
		OldWatermark: watermark,
		NewWatermark: watermark,
	}

	log.Info("fetching mentions", logging.F("since", watermark.Format(time.RFC3339)))
	batch, err := p.fetcher.FetchMentions(ctx, watermark)
	if err != nil {
		// Watermark untouched; the next scheduled cycle retries the
		// same window.
		return nil, fmt.Errorf("mentions fetch failed: %w", err)
	}

	if batch.Empty() {
		log.Info("no new mentions")
		if initialized {
			// First run: persist the freshly initialized watermark so a
			// restart does not slide the window forward.
			if err := p.store.SetWatermark(ctx, watermark); err != nil {
				return nil, fmt.Errorf("failed to persist watermark: %w", err)
			}
			report.Advanced = true
		}
		return report, nil
	}

	report.Fetched = len(batch.Mentions)
	resolutions := p.resolver.Resolve(batch)
	outcomes := p.dispatch(ctx, cycleID, resolutions, log)

	for _, o := range outcomes {
		report.Counts[o.Status]++
	}

	// Never checkpoint a cycle that was cancelled mid-flight: the next
	// cycle re-fetches the same window.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.store.SaveOutcomes(ctx, outcomes); err != nil {
		log.Error("failed to persist outcomes", logging.Err(err))
	}

	newWatermark := nextWatermark(batch, watermark)
	if err := p.store.SetWatermark(ctx, newWatermark); err != nil {
		return nil, fmt.Errorf("failed to persist watermark: %w", err)
	}
	report.NewWatermark = newWatermark
	report.Advanced = true

	log.Info("cycle complete",
		logging.F("fetched", report.Fetched),
		logging.F("published", report.Count(domain.OutcomePublished)),
		logging.F("watermark", newWatermark.Format(time.RFC3339)))
	return report, nil
}

// loadWatermark reads the stored watermark, initializing to "now" on
// first use. The second return value reports whether initialization
// happened this cycle.
func (p *Processor) loadWatermark(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := p.store.GetWatermark(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		return value.UTC(), false, nil
	}
	return p.nowFn().UTC().Truncate(time.Second), true, nil
}

// nextWatermark computes the exclusive lower bound for the next fetch:
// one second past the newest item, floored to second precision. The
// result never moves backwards.
func nextWatermark(batch *domain.Batch, current time.Time) time.Time {
	next := batch.NewestCreatedAt().UTC().Add(time.Second).Truncate(time.Second)
	if next.Before(current) {
		return current
	}
	return next
}

// dispatch disposes of every resolution and returns one outcome per
// mention. Items classified for processing run concurrently under the
// configured ceiling; the call returns only after all work has drained.
func (p *Processor) dispatch(ctx context.Context, cycleID string, resolutions []*domain.Resolution, log logging.Logger) []*domain.ItemOutcome {
	outcomes := make([]*domain.ItemOutcome, len(resolutions))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.maxConcurrent)

	for i, res := range resolutions {
		switch res.Status {
		case domain.ResolutionNotReply:
			outcomes[i] = p.newOutcome(cycleID, res.Mention.ID, domain.OutcomeNotReply, "")
		case domain.ResolutionUnresolvable:
			outcomes[i] = p.newOutcome(cycleID, res.Mention.ID, domain.OutcomeUnresolvable, "")
		case domain.ResolutionSkipSelf:
			outcomes[i] = p.newOutcome(cycleID, res.Mention.ID, domain.OutcomeSkipSelf, "")
		case domain.ResolutionProcess:
			wg.Add(1)
			go func(slot int, task *domain.ResolvedTask) {
				defer wg.Done()

				semaphore <- struct{}{}
				defer func() { <-semaphore }()

				outcomes[slot] = p.processTask(ctx, cycleID, task, log)
			}(i, res.Task)
		}
	}

	wg.Wait()
	return outcomes
}

// processTask rewrites one resolved task and publishes the reply.
func (p *Processor) processTask(ctx context.Context, cycleID string, task *domain.ResolvedTask, log logging.Logger) *domain.ItemOutcome {
	result := p.rewriter.Rewrite(ctx, task.OriginalText)
	if !result.OK {
		log.Warn("no text received from rewrite service", logging.F("mention_id", task.MentionID))
		return p.newOutcome(cycleID, task.MentionID, domain.OutcomeRewriteSkipped, "")
	}

	reply := fmt.Sprintf("Here is @%s’s message in a form of non-violent communication: %s",
		task.OriginalAuthor, result.Text)

	if err := p.publisher.PublishReply(ctx, task.MentionID, reply); err != nil {
		log.Error("failed to publish reply",
			logging.F("mention_id", task.MentionID),
			logging.Err(err))
		return p.newOutcome(cycleID, task.MentionID, domain.OutcomePublishFailed, err.Error())
	}

	log.Info("replied to mention", logging.F("mention_id", task.MentionID))
	return p.newOutcome(cycleID, task.MentionID, domain.OutcomePublished, "")
}

func (p *Processor) newOutcome(cycleID, mentionID string, status domain.OutcomeStatus, detail string) *domain.ItemOutcome {
	return &domain.ItemOutcome{
		ID:        uuid.New().String(),
		CycleID:   cycleID,
		MentionID: mentionID,
		Status:    status,
		Detail:    detail,
		CreatedAt: p.nowFn().UTC(),
	}
}
