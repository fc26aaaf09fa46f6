package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/flashdrill/internal/clock"
	"github.com/abhisek/flashdrill/internal/collab"
	"github.com/abhisek/flashdrill/internal/cooldown"
	"github.com/abhisek/flashdrill/internal/integrity"
	"github.com/abhisek/flashdrill/internal/persist"
	"github.com/abhisek/flashdrill/internal/selector"
	"github.com/abhisek/flashdrill/internal/store"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// backend is an in-memory learning backend sharing the test clock.
type backend struct {
	mu        sync.Mutex
	clock     *clock.Fake
	batchSize int // items per FetchBatch; zero means the requested size
	batches   int
	ratings   []int
	answers   []*string

	completedAt time.Time
	// forcedRemaining makes the cooldown report this much time left.
	forcedRemaining time.Duration
}

func (b *backend) mock() *collab.Mock {
	return &collab.Mock{
		FetchBatchFunc: func(ctx context.Context, size int) ([]collab.Item, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.batches++
			if b.batchSize > 0 {
				size = b.batchSize
			}
			items := make([]collab.Item, size)
			for i := range items {
				items[i] = collab.Item{
					ID:       fmt.Sprintf("b%d-%d", b.batches, i+1),
					SubTopic: "fractions",
					Prompt:   "prompt",
					Answer:   "answer",
				}
			}
			return items, nil
		},
		SubmitRatingFunc: func(ctx context.Context, itemID string, rating int) (collab.RatingResult, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.ratings = append(b.ratings, rating)
			return collab.RatingResult{Difficulty: "medium"}, nil
		},
		FetchFollowUpFunc: func(ctx context.Context, itemID, difficulty string) (*collab.FollowUpQuestion, error) {
			return &collab.FollowUpQuestion{
				ID:         "q-" + itemID,
				Options:    []collab.Option{{Key: "a", Label: "A"}, {Key: "b", Label: "B"}},
				Prompt:     "which?",
				CorrectKey: "a",
				Difficulty: difficulty,
			}, nil
		},
		SubmitAnswerFunc: func(ctx context.Context, questionID string, selected *string) (collab.AnswerOutcome, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.answers = append(b.answers, selected)
			return collab.AnswerOutcome{Correct: selected != nil && *selected == "a", CorrectKey: "a"}, nil
		},
		CooldownStatusFunc: func(ctx context.Context) (collab.CooldownStatus, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.forcedRemaining > 0 {
				return collab.CooldownStatus{Active: true, RemainingSeconds: int(b.forcedRemaining / time.Second)}, nil
			}
			if b.completedAt.IsZero() {
				return collab.CooldownStatus{}, nil
			}
			rem := cooldown.DefaultDuration - b.clock.Now().Sub(b.completedAt)
			if rem <= 0 {
				return collab.CooldownStatus{}, nil
			}
			return collab.CooldownStatus{
				Active:           true,
				RemainingSeconds: ceilSeconds(rem),
				CompletedAtMs:    b.completedAt.UnixMilli(),
			}, nil
		},
		CompleteCooldownFunc: func(ctx context.Context, completedAt time.Time) error {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.completedAt = completedAt
			return nil
		},
	}
}

func (b *backend) lastRating() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ratings) == 0 {
		return 0
	}
	return b.ratings[len(b.ratings)-1]
}

type fakeDisplay struct {
	mu       sync.Mutex
	requests int
	exits    int
}

func (d *fakeDisplay) RequestFullscreen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests++
	return nil
}
func (d *fakeDisplay) ExitFullscreen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exits++
	return nil
}
func (d *fakeDisplay) PinHistory() {}

type fakeEvents struct {
	mu       sync.Mutex
	sessions []store.SessionEventData
	answers  []store.AnswerEventData
}

func (e *fakeEvents) AppendSessionEvent(_ context.Context, data store.SessionEventData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions = append(e.sessions, data)
	return nil
}

func (e *fakeEvents) AppendAnswerEvent(_ context.Context, data store.AnswerEventData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answers = append(e.answers, data)
	return nil
}

func (e *fakeEvents) actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, s := range e.sessions {
		out = append(out, s.Action)
	}
	return out
}

type harness struct {
	o       *Orchestrator
	backend *backend
	mock    *collab.Mock
	clock   *clock.Fake
	kv      *persist.MemoryKV
	store   *persist.Store
	display *fakeDisplay
	events  *fakeEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := clock.NewFake(t0)
	b := &backend{clock: c}
	kv := persist.NewMemoryKV()
	h := &harness{
		backend: b,
		mock:    b.mock(),
		clock:   c,
		kv:      kv,
		store:   persist.New(kv, c),
		display: &fakeDisplay{},
		events:  &fakeEvents{},
	}
	h.o = h.build()
	return h
}

// build creates an orchestrator over the harness's storage, as a restarted
// process would.
func (h *harness) build() *Orchestrator {
	return New(Config{UserID: "u1", Subtopics: []string{"fractions"}}, Deps{
		Collab:  h.mock,
		Store:   h.store,
		Display: h.display,
		Events:  h.events,
		Clock:   h.clock,
	})
}

func (h *harness) snapshot(t *testing.T) (Snapshot, bool) {
	t.Helper()
	var snap Snapshot
	_, ok := h.store.Restore(context.Background(), SnapshotKey("u1"), &snap)
	return snap, ok
}

func answerItem(t *testing.T, o *Orchestrator, r Rating, key string) {
	t.Helper()
	ctx := context.Background()
	require.Equal(t, PhasePresenting, o.Phase())
	require.NoError(t, o.Rate(ctx, r))
	require.Equal(t, PhaseFollowUp, o.Phase())
	require.NoError(t, o.Answer(ctx, key))
}

func switchTab(o *Orchestrator) {
	o.VisibilityChanged(true)
	o.VisibilityChanged(false)
}

func TestStartPresentsFirstBatchItem(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.Start(context.Background()))

	v := h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	require.NotNil(t, v.Item)
	assert.Equal(t, "b1-1", v.Item.ID)
	assert.Equal(t, selector.SourceBatch, v.ItemSource)
	assert.Equal(t, FlashcardSeconds, v.TimeLeft)
	assert.True(t, v.TimerActive)
	assert.Equal(t, 1, v.BatchNumber)
	assert.NotEmpty(t, v.SessionID)

	snap, ok := h.snapshot(t)
	require.True(t, ok)
	assert.Equal(t, PhasePresenting, snap.Phase)
	assert.Equal(t, "b1-1", snap.CurrentItem.ID)
	assert.Contains(t, snap.Timers, "item")
	assert.True(t, snap.Integrity.FullscreenAttempted)
	assert.Equal(t, []string{store.ActionStart}, h.events.actions())
}

func TestQuizModeUsesLongerItemTimer(t *testing.T) {
	h := newHarness(t)
	h.o = New(Config{UserID: "u1", Mode: ModeQuiz}, Deps{Collab: h.mock, Store: h.store, Clock: h.clock})
	require.NoError(t, h.o.Start(context.Background()))
	assert.Equal(t, QuizSeconds, h.o.View().TimeLeft)
}

func TestFullBatchCompletesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	for i := 0; i < DefaultBatchSize; i++ {
		key := "a"
		if i%3 == 0 {
			key = "b"
		}
		answerItem(t, h.o, 4, key)
	}

	v := h.o.View()
	assert.Equal(t, PhaseBatchComplete, v.Phase)
	assert.Equal(t, DefaultBatchSize, v.ItemsCompleted)
	assert.Len(t, v.Results, DefaultBatchSize)
	assert.Equal(t, 4, v.CorrectCount)
	assert.Equal(t, 2, v.IncorrectCount)
	require.NotNil(t, v.Summary)
	assert.InDelta(t, 4.0/6.0, v.Summary.Accuracy, 1e-9)
	assert.Nil(t, v.Item)
	assert.Equal(t, cooldown.DefaultDuration, v.CooldownLeft)

	assert.Equal(t, 1, h.mock.CallCount("CompleteCooldown"))
	assert.Equal(t, 1, h.display.exits, "fullscreen released on completion")
	assert.Len(t, h.events.answers, DefaultBatchSize)
	assert.Equal(t, []string{store.ActionStart, store.ActionBatchEnd}, h.events.actions())

	// Nothing more can be rated.
	assert.ErrorIs(t, h.o.Rate(ctx, 3), ErrWrongPhase)
}

func TestItemTimeoutAutoRates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	h.clock.Advance(29 * time.Second)
	require.NoError(t, h.o.Tick(ctx))
	assert.Equal(t, PhasePresenting, h.o.Phase())
	assert.Equal(t, 1, h.o.View().TimeLeft)

	h.clock.Advance(time.Second)
	require.NoError(t, h.o.Tick(ctx))
	assert.Equal(t, PhaseFollowUp, h.o.Phase())
	assert.Equal(t, int(AutoRating), h.backend.lastRating())
	assert.Equal(t, AutoRating, h.o.View().Rating)
}

func TestFollowUpTimeoutRecordsNullAnswer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))
	require.NoError(t, h.o.Rate(ctx, 4))

	h.clock.Advance(FollowUpSeconds * time.Second)
	require.NoError(t, h.o.Tick(ctx))

	v := h.o.View()
	assert.Equal(t, 1, v.ItemsCompleted)
	require.Len(t, v.Results, 1)
	r := v.Results[0]
	assert.Nil(t, r.SelectedOption)
	assert.False(t, r.Correct)
	assert.True(t, r.TimedOut)
	assert.Equal(t, Rating(4), r.Rating)
	assert.Equal(t, 1, v.IncorrectCount)

	require.Len(t, h.backend.answers, 1)
	assert.Nil(t, h.backend.answers[0])
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, "b1-2", v.Item.ID)
}

func TestManualRatingBeatsExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	h.clock.Advance(29 * time.Second)
	require.NoError(t, h.o.Rate(ctx, 5))
	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.o.Tick(ctx))

	assert.Equal(t, []int{5}, h.backend.ratings)
	assert.Equal(t, PhaseFollowUp, h.o.Phase())
}

func TestExpiryBeatsManualRating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	h.clock.Advance(30 * time.Second)
	h.o.timers.Tick() // expiry claims the phase; its follow-up is still queued
	assert.ErrorIs(t, h.o.Rate(ctx, 5), ErrWrongPhase)

	require.NoError(t, h.o.drain(ctx))
	assert.Equal(t, []int{int(AutoRating)}, h.backend.ratings)
}

func TestClaimedGuardSupersedesRating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	h.o.mu.Lock()
	h.o.itemGuard.TryFire()
	h.o.mu.Unlock()
	assert.ErrorIs(t, h.o.Rate(ctx, 2), ErrSuperseded)
}

func TestRateAndAnswerValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.o.Rate(ctx, 3), ErrWrongPhase)
	require.NoError(t, h.o.Start(ctx))
	assert.ErrorIs(t, h.o.Rate(ctx, 0), ErrInvalidRating)
	assert.ErrorIs(t, h.o.Rate(ctx, 6), ErrInvalidRating)
	assert.ErrorIs(t, h.o.Answer(ctx, "a"), ErrWrongPhase)

	require.NoError(t, h.o.Rate(ctx, 3))
	assert.ErrorIs(t, h.o.Answer(ctx, "z"), ErrInvalidOption)
	assert.Equal(t, PhaseFollowUp, h.o.Phase())
}

func TestMissingFollowUpSkipsItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mock.FetchFollowUpFunc = func(ctx context.Context, itemID, difficulty string) (*collab.FollowUpQuestion, error) {
		return nil, &collab.ErrNotFound{Resource: "followup"}
	}
	require.NoError(t, h.o.Start(ctx))
	require.NoError(t, h.o.Rate(ctx, 2))

	v := h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, "b1-2", v.Item.ID)
	assert.Equal(t, 1, v.ItemsCompleted)
	require.Len(t, v.Results, 1)
	assert.True(t, v.Results[0].Skipped)
	assert.Zero(t, v.CorrectCount+v.IncorrectCount)
	assert.Equal(t, NoticeNone, v.Notice)
	assert.Empty(t, h.events.answers)
}

func TestDueReviewBypassesBatchOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	served := false
	h.mock.NextDueReviewFunc = func(ctx context.Context) (*collab.Item, error) {
		if served {
			return nil, nil
		}
		served = true
		return &collab.Item{ID: "due-1"}, nil
	}
	require.NoError(t, h.o.Start(ctx))

	v := h.o.View()
	assert.Equal(t, "due-1", v.Item.ID)
	assert.Equal(t, selector.SourceDueReview, v.ItemSource)

	answerItem(t, h.o, 3, "a")
	v = h.o.View()
	assert.Equal(t, "b1-1", v.Item.ID, "the due review did not consume a batch slot")
	assert.Equal(t, 1, v.ItemsCompleted)
}

func TestUsedUpBatchIsRematerialized(t *testing.T) {
	h := newHarness(t)
	h.backend.batchSize = 2
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}
	assert.Equal(t, PhaseBatchComplete, h.o.Phase())
	assert.Equal(t, 3, h.backend.batches)
	assert.Equal(t, 3, h.mock.CallCount("StartSession"))
}

func TestExhaustedPoolNoticeAndReinit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mock.FetchBatchFunc = nil // backend without fixed batches

	require.NoError(t, h.o.Start(ctx))
	v := h.o.View()
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, NoticeExhausted, v.Notice)
	assert.NotEmpty(t, v.SessionID, "the session is kept for re-initialization")

	h.mock.RandomItemFunc = func(ctx context.Context, subtopics []string) (collab.RandomResult, error) {
		return collab.RandomResult{Item: &collab.Item{ID: "r1"}}, nil
	}
	require.NoError(t, h.o.Start(ctx))
	v = h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, "r1", v.Item.ID)
	assert.Equal(t, selector.SourceFresh, v.ItemSource)
}

func TestNetworkFailureOffersRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fetch := h.mock.FetchBatchFunc
	calls := 0
	h.mock.FetchBatchFunc = func(ctx context.Context, size int) ([]collab.Item, error) {
		calls++
		if calls == 1 {
			return nil, &collab.ErrUnavailable{Err: errors.New("connection refused")}
		}
		return fetch(ctx, size)
	}

	err := h.o.Start(ctx)
	require.Error(t, err)
	assert.True(t, collab.IsTransient(err))
	v := h.o.View()
	assert.Equal(t, NoticeRetry, v.Notice)
	assert.Equal(t, PhaseInitializing, v.Phase)

	require.NoError(t, h.o.Retry(ctx))
	v = h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, NoticeNone, v.Notice)
	assert.ErrorIs(t, h.o.Retry(ctx), ErrWrongPhase, "nothing left to retry")
}

func TestFollowUpFetchFailureOffersRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fetch := h.mock.FetchFollowUpFunc
	fail := true
	h.mock.FetchFollowUpFunc = func(ctx context.Context, itemID, difficulty string) (*collab.FollowUpQuestion, error) {
		if fail {
			return nil, &collab.ErrUnavailable{Err: errors.New("timeout")}
		}
		return fetch(ctx, itemID, difficulty)
	}
	require.NoError(t, h.o.Start(ctx))

	require.Error(t, h.o.Rate(ctx, 4))
	assert.Equal(t, PhaseRated, h.o.Phase())
	assert.Equal(t, NoticeRetry, h.o.View().Notice)

	fail = false
	require.NoError(t, h.o.Retry(ctx))
	assert.Equal(t, PhaseFollowUp, h.o.Phase())
	assert.Equal(t, []int{4, 4}, h.backend.ratings)
}

func TestStartFailureLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	down := true
	h.mock.StartSessionFunc = func(ctx context.Context, subtopics []string, force bool) (collab.SessionInfo, error) {
		if down {
			return collab.SessionInfo{}, &collab.ErrUnavailable{Err: errors.New("offline")}
		}
		return collab.SessionInfo{SessionID: "srv", Subtopics: subtopics}, nil
	}

	require.Error(t, h.o.Start(ctx))
	v := h.o.View()
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Empty(t, v.SessionID)
	assert.Equal(t, NoticeRetry, v.Notice)

	down = false
	require.NoError(t, h.o.Retry(ctx))
	assert.Equal(t, PhasePresenting, h.o.Phase())
}

func TestAuthFailureNotice(t *testing.T) {
	h := newHarness(t)
	h.mock.StartSessionFunc = func(ctx context.Context, subtopics []string, force bool) (collab.SessionInfo, error) {
		return collab.SessionInfo{}, &collab.ErrAuthRequired{Status: 401}
	}
	require.Error(t, h.o.Start(context.Background()))
	assert.Equal(t, NoticeAuth, h.o.View().Notice)
}

func TestAnswerSubmitFailureStillRecordsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mock.SubmitAnswerFunc = func(ctx context.Context, questionID string, selected *string) (collab.AnswerOutcome, error) {
		return collab.AnswerOutcome{}, &collab.ErrUnavailable{Err: errors.New("offline")}
	}
	require.NoError(t, h.o.Start(ctx))
	answerItem(t, h.o, 3, "a")

	v := h.o.View()
	assert.Equal(t, 1, v.ItemsCompleted)
	require.Len(t, v.Results, 1)
	assert.True(t, v.Results[0].Correct)
	assert.Equal(t, "a", *v.Results[0].SelectedOption)
}

func TestCooldownThenNewBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	switchTab(h.o)
	require.True(t, h.o.AcknowledgeWarning(true))
	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}
	require.NoError(t, h.o.EnterCooldown(ctx))
	assert.Equal(t, PhaseCooldown, h.o.Phase())

	var cerr *CooldownError
	require.ErrorAs(t, h.o.StartNewBatch(ctx), &cerr)
	assert.Equal(t, cooldown.DefaultDuration, cerr.Remaining)
	assert.Equal(t, NoticeCooldown, h.o.View().Notice)
	assert.Equal(t, PhaseCooldown, h.o.Phase())

	h.clock.Advance(cooldown.DefaultDuration)
	require.NoError(t, h.o.Tick(ctx))
	assert.Equal(t, PhaseIdle, h.o.Phase())

	require.NoError(t, h.o.StartNewBatch(ctx))
	v := h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, 2, v.BatchNumber)
	assert.Zero(t, v.ItemsCompleted)
	assert.Empty(t, v.Results)
	assert.Equal(t, "b2-1", v.Item.ID)
	assert.Equal(t, 1, v.WarningsLeft, "a new batch keeps the tab-switch count")
	assert.Nil(t, h.o.cooldown.State(), "cooldown cleared once the new batch is validated")
	assert.Contains(t, h.events.actions(), store.ActionBatchStart)
}

func TestNewBatchRevalidatesWithServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))
	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}

	// The local countdown is over but the server still disagrees.
	h.clock.Advance(cooldown.DefaultDuration)
	h.backend.forcedRemaining = 2 * time.Minute
	assert.Zero(t, h.o.View().CooldownLeft)

	var cerr *CooldownError
	require.ErrorAs(t, h.o.StartNewBatch(ctx), &cerr)
	assert.Equal(t, 2*time.Minute, cerr.Remaining)
	assert.Equal(t, 2*time.Minute, h.o.View().CooldownLeft, "authoritative time is redisplayed")
	assert.Equal(t, PhaseBatchComplete, h.o.Phase())
}

func TestNewBatchRefusedByBackendKeepsCompletedBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))
	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}
	h.clock.Advance(cooldown.DefaultDuration)

	// The status check passes but opening the session is still throttled.
	h.mock.StartSessionFunc = func(ctx context.Context, subtopics []string, force bool) (collab.SessionInfo, error) {
		return collab.SessionInfo{}, &collab.ErrCooldownActive{Remaining: 90 * time.Second}
	}

	var cerr *CooldownError
	require.ErrorAs(t, h.o.StartNewBatch(ctx), &cerr)
	assert.Equal(t, 90*time.Second, cerr.Remaining)

	v := h.o.View()
	assert.Equal(t, PhaseCooldown, v.Phase)
	assert.Equal(t, NoticeCooldown, v.Notice)
	assert.Equal(t, 1, v.BatchNumber)
	assert.Equal(t, DefaultBatchSize, v.ItemsCompleted)
	assert.Len(t, v.Results, DefaultBatchSize)
	assert.NotNil(t, v.Summary)
	assert.Equal(t, 90*time.Second, v.CooldownLeft)
	assert.NotNil(t, h.o.cooldown.State(), "cooldown kept until a batch really starts")
	assert.NotContains(t, h.events.actions(), store.ActionBatchStart)

	snap, ok := h.snapshot(t)
	require.True(t, ok)
	assert.Equal(t, PhaseCooldown, snap.Phase)
	assert.Equal(t, 1, snap.Session.BatchNumber)
	assert.True(t, snap.Session.Complete())

	h.mock.StartSessionFunc = nil
	h.clock.Advance(90 * time.Second)
	require.NoError(t, h.o.Tick(ctx))
	assert.Equal(t, PhaseIdle, h.o.Phase())

	require.NoError(t, h.o.StartNewBatch(ctx))
	v = h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, 2, v.BatchNumber)
	assert.Nil(t, h.o.cooldown.State())
}

func TestNewBatchSessionFailureOffersRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))
	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}
	h.clock.Advance(cooldown.DefaultDuration)

	down := true
	h.mock.StartSessionFunc = func(ctx context.Context, subtopics []string, force bool) (collab.SessionInfo, error) {
		if down {
			return collab.SessionInfo{}, &collab.ErrUnavailable{Err: errors.New("offline")}
		}
		return collab.SessionInfo{SessionID: "srv", Subtopics: subtopics}, nil
	}

	require.Error(t, h.o.StartNewBatch(ctx))
	v := h.o.View()
	assert.Equal(t, PhaseBatchComplete, v.Phase)
	assert.Equal(t, NoticeRetry, v.Notice)
	assert.Equal(t, 1, v.BatchNumber)
	assert.Equal(t, DefaultBatchSize, v.ItemsCompleted)

	down = false
	require.NoError(t, h.o.Retry(ctx))
	v = h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, 2, v.BatchNumber)
}

func TestThrottledFollowUpKeepsRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fetch := h.mock.FetchFollowUpFunc
	throttled := true
	h.mock.FetchFollowUpFunc = func(ctx context.Context, itemID, difficulty string) (*collab.FollowUpQuestion, error) {
		if throttled {
			return nil, &collab.ErrCooldownActive{Remaining: 30 * time.Second}
		}
		return fetch(ctx, itemID, difficulty)
	}
	require.NoError(t, h.o.Start(ctx))

	require.Error(t, h.o.Rate(ctx, 4))
	v := h.o.View()
	assert.Equal(t, PhaseRated, v.Phase)
	assert.Equal(t, NoticeCooldown, v.Notice)
	assert.Equal(t, 30*time.Second, v.CooldownLeft)

	throttled = false
	require.NoError(t, h.o.Retry(ctx))
	assert.Equal(t, PhaseFollowUp, h.o.Phase())
}

func TestFullscreenRequestedForEachBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))
	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}
	assert.Equal(t, 1, h.display.requests)
	assert.Equal(t, 1, h.display.exits)

	h.clock.Advance(cooldown.DefaultDuration)
	require.NoError(t, h.o.StartNewBatch(ctx))
	assert.Equal(t, 2, h.display.requests)

	snap, ok := h.snapshot(t)
	require.True(t, ok)
	assert.True(t, snap.Integrity.FullscreenAttempted)
}

func TestStartRefusedWhileCooldownOwed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))
	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}
	h.o.End(ctx, EndLogout)

	o2 := h.build()
	var cerr *CooldownError
	require.ErrorAs(t, o2.Start(ctx), &cerr)
	assert.Equal(t, PhaseIdle, o2.Phase())
	assert.Empty(t, o2.View().SessionID)
}

func TestTabSwitchWarnsThenTerminates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	h.o.VisibilityChanged(true)
	assert.Equal(t, integrity.StatusHidden, h.o.View().Integrity)

	h.o.VisibilityChanged(false)
	v := h.o.View()
	assert.Equal(t, integrity.StatusWarned, v.Integrity)
	assert.Equal(t, 1, v.WarningsLeft)
	snap, ok := h.snapshot(t)
	require.True(t, ok)
	assert.Equal(t, 1, snap.Integrity.TabSwitchCount)

	require.True(t, h.o.AcknowledgeWarning(true))
	assert.Equal(t, integrity.StatusNormal, h.o.View().Integrity)

	switchTab(h.o)
	v = h.o.View()
	assert.Equal(t, PhaseEnded, v.Phase)
	assert.Equal(t, EndTabSwitches, v.EndReason)
	assert.False(t, h.kv.Has(SnapshotKey("u1")), "snapshot cleared on termination")
	assert.Equal(t, 1, h.display.exits)
	assert.Equal(t, store.ActionEnd, h.events.actions()[len(h.events.actions())-1])

	// Later timer ticks do nothing.
	h.clock.Advance(time.Minute)
	require.NoError(t, h.o.Tick(ctx))
	assert.Equal(t, PhaseEnded, h.o.Phase())
}

func TestDecliningNavigationEndsSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.Start(context.Background()))

	h.o.NavigationAttempted()
	assert.Equal(t, integrity.StatusNavigationPrompt, h.o.View().Integrity)
	h.o.AcknowledgeWarning(false)

	v := h.o.View()
	assert.Equal(t, PhaseEnded, v.Phase)
	assert.Equal(t, EndNavigation, v.EndReason)
}

func TestIntegrityIgnoredOutsideLivePhases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	switchTab(h.o)
	switchTab(h.o)

	require.NoError(t, h.o.Start(ctx))
	for i := 0; i < DefaultBatchSize; i++ {
		answerItem(t, h.o, 3, "a")
	}
	switchTab(h.o)
	switchTab(h.o)
	assert.Equal(t, PhaseBatchComplete, h.o.Phase())
	assert.Equal(t, 2, h.o.View().WarningsLeft)
}

func TestEndDiscardsInFlightResponse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))

	entered := make(chan struct{})
	release := make(chan struct{})
	h.mock.SubmitRatingFunc = func(ctx context.Context, itemID string, rating int) (collab.RatingResult, error) {
		close(entered)
		<-release
		return collab.RatingResult{Difficulty: "hard"}, nil
	}

	errc := make(chan error, 1)
	go func() { errc <- h.o.Rate(ctx, 3) }()
	<-entered
	h.o.End(ctx, EndManual)
	close(release)

	assert.ErrorIs(t, <-errc, ErrSuperseded)
	v := h.o.View()
	assert.Equal(t, PhaseEnded, v.Phase)
	assert.Equal(t, EndManual, v.EndReason)
	assert.Nil(t, v.FollowUp)
	assert.False(t, h.kv.Has(SnapshotKey("u1")))
}

func TestNewSessionResetsIntegrity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx))
	switchTab(h.o)
	h.o.AcknowledgeWarning(true)
	h.o.End(ctx, EndManual)

	require.NoError(t, h.o.Start(ctx))
	v := h.o.View()
	assert.Equal(t, PhasePresenting, v.Phase)
	assert.Equal(t, integrity.DefaultMaxSwitches, v.WarningsLeft)
	assert.Equal(t, integrity.StatusNormal, v.Integrity)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "presenting", PhasePresenting.String())
	assert.Equal(t, "batch-complete", PhaseBatchComplete.String())
	assert.Equal(t, "Phase(42)", Phase(42).String())
}
