package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvctranslator/nvcbot/internal/domain"
	apperrors "github.com/nvctranslator/nvcbot/internal/errors"
	"github.com/nvctranslator/nvcbot/internal/resolver"
	"github.com/nvctranslator/nvcbot/internal/rewriter"
	"github.com/nvctranslator/nvcbot/pkg/logging"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

// fakeStore is an in-memory Storage implementation
type fakeStore struct {
	mu        sync.Mutex
	watermark time.Time
	hasValue  bool
	outcomes  []*domain.ItemOutcome

	setWatermarkErr error
	saveOutcomesErr error
	setCalls        int
}

func (s *fakeStore) GetWatermark(ctx context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark, s.hasValue, nil
}

func (s *fakeStore) SetWatermark(ctx context.Context, value time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setWatermarkErr != nil {
		return s.setWatermarkErr
	}
	s.watermark = value
	s.hasValue = true
	return nil
}

func (s *fakeStore) SaveOutcomes(ctx context.Context, outcomes []*domain.ItemOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveOutcomesErr != nil {
		return s.saveOutcomesErr
	}
	s.outcomes = append(s.outcomes, outcomes...)
	return nil
}

func (s *fakeStore) GetOutcomes(ctx context.Context, limit int) ([]*domain.ItemOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes, nil
}

func (s *fakeStore) GetOutcomeStats(ctx context.Context) (*domain.OutcomeStats, error) {
	return &domain.OutcomeStats{}, nil
}

func (s *fakeStore) Migrate(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                      { return nil }

// fakeFetcher returns a canned batch or error
type fakeFetcher struct {
	batch *domain.Batch
	err   error
	since time.Time
}

func (f *fakeFetcher) FetchMentions(ctx context.Context, since time.Time) (*domain.Batch, error) {
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	if f.batch == nil {
		return &domain.Batch{}, nil
	}
	return f.batch, nil
}

// fakeRewriter rewrites by prefixing, or skips configured mentions.
// A per-call delay map forces out-of-order completion.
type fakeRewriter struct {
	mu     sync.Mutex
	skip   map[string]bool
	delays map[string]time.Duration
	calls  []string
}

func (r *fakeRewriter) Rewrite(ctx context.Context, text string) rewriter.Result {
	r.mu.Lock()
	r.calls = append(r.calls, text)
	skip := r.skip[text]
	delay := r.delays[text]
	r.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if skip {
		return rewriter.None()
	}
	return rewriter.Result{Text: "rewritten: " + text, OK: true}
}

// fakePublisher records replies and fails configured mentions
type fakePublisher struct {
	mu      sync.Mutex
	failFor map[string]error
	replies map[string]string
}

func (p *fakePublisher) PublishReply(ctx context.Context, inReplyTo, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[inReplyTo]; ok {
		return err
	}
	if p.replies == nil {
		p.replies = make(map[string]string)
	}
	p.replies[inReplyTo] = text
	return nil
}

func newTestProcessor(store *fakeStore, fetcher *fakeFetcher, rw *fakeRewriter, pub *fakePublisher) *Processor {
	if rw == nil {
		rw = &fakeRewriter{}
	}
	if pub == nil {
		pub = &fakePublisher{}
	}
	return NewProcessor(store, fetcher, resolver.NewResolver("nvctranslator"), rw, pub, logging.Nop(), 4)
}

func replyBatch(ids ...string) *domain.Batch {
	batch := &domain.Batch{
		Posts: []*domain.ReferencedPost{},
		Users: []*domain.ReferencedUser{{ID: "author", Username: "alice"}},
	}
	base := ts("2024-01-01T00:00:00Z")
	for i, id := range ids {
		postID := "post-" + id
		batch.Mentions = append(batch.Mentions, &domain.Mention{
			ID:          id,
			AuthorID:    "caller",
			CreatedAt:   base.Add(time.Duration(i) * 5 * time.Second),
			RepliedToID: postID,
		})
		batch.Posts = append(batch.Posts, &domain.ReferencedPost{
			ID:       postID,
			AuthorID: "author",
			Text:     "text-" + id,
		})
	}
	return batch
}

func TestRunCycle_WatermarkFormula(t *testing.T) {
	// Newest item at 00:00:05 -> watermark 00:00:06, exclusive of the
	// last seen item, independent of dispatch completion order.
	store := &fakeStore{watermark: ts("2023-12-31T00:00:00Z"), hasValue: true}
	fetcher := &fakeFetcher{batch: &domain.Batch{
		Mentions: []*domain.Mention{
			{ID: "a", AuthorID: "caller", CreatedAt: ts("2024-01-01T00:00:00Z"), RepliedToID: "x"},
			{ID: "b", AuthorID: "caller", CreatedAt: ts("2024-01-01T00:00:05Z")},
		},
		Posts: []*domain.ReferencedPost{{ID: "x", AuthorID: "author", Text: "hello"}},
		Users: []*domain.ReferencedUser{{ID: "author", Username: "alice"}},
	}}
	pub := &fakePublisher{}

	report, err := newTestProcessor(store, fetcher, nil, pub).RunCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, ts("2024-01-01T00:00:06Z"), store.watermark)
	require.True(t, report.Advanced)
	require.Equal(t, 2, report.Fetched)
	require.Equal(t, 1, report.Count(domain.OutcomePublished))
	require.Equal(t, 1, report.Count(domain.OutcomeNotReply))

	reply := pub.replies["a"]
	require.Contains(t, reply, "@alice")
	require.Contains(t, reply, "rewritten: hello")
}

func TestRunCycle_WatermarkIndependentOfCompletionOrder(t *testing.T) {
	store := &fakeStore{watermark: ts("2023-12-31T00:00:00Z"), hasValue: true}
	fetcher := &fakeFetcher{batch: replyBatch("a", "b", "c")}
	rw := &fakeRewriter{delays: map[string]time.Duration{
		// The newest mention finishes first, the oldest last.
		"text-a": 30 * time.Millisecond,
		"text-b": 15 * time.Millisecond,
	}}

	_, err := newTestProcessor(store, fetcher, rw, nil).RunCycle(context.Background())
	require.NoError(t, err)

	// Newest item is "c" at 00:00:10 -> watermark 00:00:11.
	require.Equal(t, ts("2024-01-01T00:00:11Z"), store.watermark)
}

func TestRunCycle_FetchFailureLeavesWatermarkUntouched(t *testing.T) {
	before := ts("2024-01-01T00:00:00Z")
	store := &fakeStore{watermark: before, hasValue: true}
	fetcher := &fakeFetcher{err: errors.New("twitter unavailable")}

	_, err := newTestProcessor(store, fetcher, nil, nil).RunCycle(context.Background())
	require.Error(t, err)

	require.Equal(t, before, store.watermark)
	require.Zero(t, store.setCalls)
	require.Equal(t, before, fetcher.since)
}

func TestRunCycle_PerItemFailureIsolation(t *testing.T) {
	// A batch of 5 where item 3's publish fails must still checkpoint
	// and report the other items by their true outcomes.
	store := &fakeStore{watermark: ts("2023-12-31T00:00:00Z"), hasValue: true}
	fetcher := &fakeFetcher{batch: replyBatch("m1", "m2", "m3", "m4", "m5")}
	pub := &fakePublisher{failFor: map[string]error{
		"m3": apperrors.NewRateLimitedError("too many requests"),
	}}

	report, err := newTestProcessor(store, fetcher, nil, pub).RunCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, 4, report.Count(domain.OutcomePublished))
	require.Equal(t, 1, report.Count(domain.OutcomePublishFailed))
	require.True(t, report.Advanced)
	require.Len(t, pub.replies, 4)

	byMention := make(map[string]domain.OutcomeStatus)
	for _, o := range store.outcomes {
		byMention[o.MentionID] = o.Status
	}
	require.Equal(t, domain.OutcomePublishFailed, byMention["m3"])
	for _, id := range []string{"m1", "m2", "m4", "m5"} {
		require.Equal(t, domain.OutcomePublished, byMention[id])
	}
}

func TestRunCycle_RewriteSkipStillAdvances(t *testing.T) {
	store := &fakeStore{watermark: ts("2023-12-31T00:00:00Z"), hasValue: true}
	fetcher := &fakeFetcher{batch: replyBatch("a")}
	rw := &fakeRewriter{skip: map[string]bool{"text-a": true}}
	pub := &fakePublisher{}

	report, err := newTestProcessor(store, fetcher, rw, pub).RunCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.Count(domain.OutcomeRewriteSkipped))
	require.Empty(t, pub.replies)
	require.Equal(t, ts("2024-01-01T00:00:01Z"), store.watermark)
}

func TestRunCycle_SelfReplyNeverReachesRewriter(t *testing.T) {
	store := &fakeStore{watermark: ts("2023-12-31T00:00:00Z"), hasValue: true}
	fetcher := &fakeFetcher{batch: &domain.Batch{
		Mentions: []*domain.Mention{
			{ID: "a", AuthorID: "caller", CreatedAt: ts("2024-01-01T00:00:00Z"), RepliedToID: "x"},
		},
		Posts: []*domain.ReferencedPost{{ID: "x", AuthorID: "bot", Text: "old bot output"}},
		Users: []*domain.ReferencedUser{{ID: "bot", Username: "nvctranslator"}},
	}}
	rw := &fakeRewriter{}

	report, err := newTestProcessor(store, fetcher, rw, nil).RunCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.Count(domain.OutcomeSkipSelf))
	require.Empty(t, rw.calls)
	require.True(t, report.Advanced)
}

func TestRunCycle_WatermarkMonotonicAcrossCycles(t *testing.T) {
	store := &fakeStore{watermark: ts("2024-01-01T00:00:00Z"), hasValue: true}
	fetcher := &fakeFetcher{batch: replyBatch("a")}
	proc := newTestProcessor(store, fetcher, nil, nil)

	var previous time.Time
	for i := 0; i < 3; i++ {
		report, err := proc.RunCycle(context.Background())
		require.NoError(t, err)
		require.False(t, report.NewWatermark.Before(previous))
		previous = report.NewWatermark
	}
}

func TestRunCycle_StaleBatchNeverMovesWatermarkBackwards(t *testing.T) {
	store := &fakeStore{watermark: ts("2025-06-01T00:00:00Z"), hasValue: true}
	fetcher := &fakeFetcher{batch: replyBatch("a")} // items from 2024

	report, err := newTestProcessor(store, fetcher, nil, nil).RunCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, ts("2025-06-01T00:00:00Z"), report.NewWatermark)
	require.Equal(t, ts("2025-06-01T00:00:00Z"), store.watermark)
}

func TestRunCycle_FirstRunInitializesWatermark(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{}
	proc := newTestProcessor(store, fetcher, nil, nil)
	proc.nowFn = func() time.Time { return ts("2024-03-01T12:00:00Z") }

	report, err := proc.RunCycle(context.Background())
	require.NoError(t, err)

	require.True(t, store.hasValue)
	require.Equal(t, ts("2024-03-01T12:00:00Z"), store.watermark)
	require.Equal(t, ts("2024-03-01T12:00:00Z"), fetcher.since)
	require.Zero(t, report.Fetched)
}

func TestRunCycle_CancelledBeforeCheckpointDoesNotAdvance(t *testing.T) {
	before := ts("2024-01-01T00:00:00Z")
	store := &fakeStore{watermark: before, hasValue: true}
	fetcher := &fakeFetcher{batch: replyBatch("a")}

	ctx, cancel := context.WithCancel(context.Background())
	rw := &fakeRewriter{}
	pub := &fakePublisher{}
	proc := NewProcessor(store, fetcher, cancellingResolver{cancel: cancel}, rw, pub, logging.Nop(), 4)

	_, err := proc.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, before, store.watermark)
	require.Zero(t, store.setCalls)
}

// cancellingResolver cancels the cycle's context during resolution,
// simulating a shutdown arriving mid-cycle.
type cancellingResolver struct {
	cancel context.CancelFunc
}

func (r cancellingResolver) Resolve(batch *domain.Batch) []*domain.Resolution {
	r.cancel()
	out := make([]*domain.Resolution, 0, len(batch.Mentions))
	for _, m := range batch.Mentions {
		out = append(out, &domain.Resolution{Mention: m, Status: domain.ResolutionNotReply})
	}
	return out
}

func TestRunCycle_WatermarkPersistenceFailureIsFatal(t *testing.T) {
	store := &fakeStore{
		watermark:       ts("2024-01-01T00:00:00Z"),
		hasValue:        true,
		setWatermarkErr: errors.New("disk full"),
	}
	fetcher := &fakeFetcher{batch: replyBatch("a")}

	_, err := newTestProcessor(store, fetcher, nil, nil).RunCycle(context.Background())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "watermark"))
}

func TestRunCycle_OutcomePersistenceFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{
		watermark:       ts("2024-01-01T00:00:00Z"),
		hasValue:        true,
		saveOutcomesErr: errors.New("disk full"),
	}
	fetcher := &fakeFetcher{batch: replyBatch("a")}

	report, err := newTestProcessor(store, fetcher, nil, nil).RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, report.Advanced)
}
