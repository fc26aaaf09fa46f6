// Package session runs timed flashcard sessions. The Orchestrator composes
// the selector, timers, integrity monitor and cooldown into one state
// machine and writes a snapshot on every transition so a session survives
// a restart.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/flashdrill/internal/clock"
	"github.com/abhisek/flashdrill/internal/collab"
	"github.com/abhisek/flashdrill/internal/cooldown"
	"github.com/abhisek/flashdrill/internal/integrity"
	"github.com/abhisek/flashdrill/internal/persist"
	"github.com/abhisek/flashdrill/internal/selector"
	"github.com/abhisek/flashdrill/internal/store"
	"github.com/abhisek/flashdrill/internal/timer"
)

// SnapshotKey is the persistence key of a learner's session snapshot.
func SnapshotKey(userID string) string { return "session:" + userID }

// CooldownKey is the persistence key of a learner's local cooldown.
func CooldownKey(userID string) string { return "cooldown:" + userID }

// Config configures an Orchestrator.
type Config struct {
	UserID    string
	Subtopics []string
	Mode      Mode

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int

	// ItemSeconds overrides the mode's item budget when positive.
	ItemSeconds int

	// FollowUpSeconds defaults to FollowUpSeconds.
	FollowUpSeconds int

	MaxSwitches int
	MaxResets   int
	Cooldown    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeFlashcard
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ItemSeconds <= 0 {
		c.ItemSeconds = c.Mode.ItemSeconds()
	}
	if c.FollowUpSeconds <= 0 {
		c.FollowUpSeconds = FollowUpSeconds
	}
	return c
}

// EventLog records session history. store.EventRepo satisfies it.
type EventLog interface {
	AppendSessionEvent(ctx context.Context, data store.SessionEventData) error
	AppendAnswerEvent(ctx context.Context, data store.AnswerEventData) error
}

// Deps are the Orchestrator's collaborators.
type Deps struct {
	Collab collab.Collaborator
	Store  *persist.Store

	// Display defaults to integrity.NopDisplay.
	Display integrity.Display

	// Events may be nil.
	Events EventLog

	// Clock defaults to clock.System.
	Clock clock.Clock

	Logger *log.Logger
}

// step is a continuation that performs network I/O outside the lock.
type step func(ctx context.Context) error

// Orchestrator is the session state machine. All methods are safe for
// concurrent use. Network calls are made without holding the lock; a
// response is applied only if the phase epoch it was issued under is
// still current.
type Orchestrator struct {
	cfg         Config
	collab      collab.Collaborator
	selector    *selector.Selector
	timers      *timer.Scheduler
	store       *persist.Store
	monitor     *integrity.Monitor
	cooldown    *cooldown.Manager
	events      EventLog
	clock       clock.Clock
	log         *log.Logger
	snapshotKey string

	mu    sync.Mutex
	phase Phase
	epoch uint64
	sess  *Session

	current  *Item
	source   selector.Source
	rating   Rating
	followUp *collab.FollowUpQuestion
	selected *string
	last     *AnswerResult
	summary  *Summary

	itemGuard   *timer.Guard
	followGuard *timer.Guard

	// queued is set by a timer expiry and run by Tick.
	queued step
	// retry re-runs the step that last failed.
	retry step

	notice    Notice
	err       error
	endReason EndReason

	runCtx    context.Context
	cancelRun context.CancelFunc
}

// New creates an Orchestrator in the Idle phase.
func New(cfg Config, deps Deps) *Orchestrator {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	display := deps.Display
	if display == nil {
		display = integrity.NopDisplay{}
	}

	pool := append([]string(nil), cfg.Subtopics...)
	c := collab.WithSessionRecovery(deps.Collab, func() []string { return pool })

	o := &Orchestrator{
		cfg:         cfg,
		collab:      c,
		selector:    selector.New(c, selector.Config{MaxResets: cfg.MaxResets}, logger),
		timers:      timer.NewScheduler(clk),
		store:       deps.Store,
		events:      deps.Events,
		clock:       clk,
		log:         logger,
		snapshotKey: SnapshotKey(cfg.UserID),
	}
	o.monitor = integrity.New(display,
		integrity.WithMaxSwitches(cfg.MaxSwitches),
		integrity.WithLogger(logger),
		integrity.OnChange(o.integrityChanged),
		integrity.OnTerminate(o.integrityTerminated),
	)
	o.cooldown = cooldown.New(c, deps.Store, CooldownKey(cfg.UserID), clk,
		cooldown.WithDuration(cfg.Cooldown),
		cooldown.WithLogger(logger),
	)
	return o
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Start begins a session, resuming a fresh-enough snapshot if one exists.
// With a session already in Idle it re-initializes the unfinished batch,
// or behaves as StartNewBatch once the batch is complete.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.sess != nil && o.batchDoneLocked():
		o.mu.Unlock()
		return o.StartNewBatch(ctx)
	case o.sess != nil && o.phase == PhaseIdle:
		o.clearNoticeLocked()
		ep := o.enterLocked(PhaseInitializing)
		o.saveLocked()
		pool := o.sess.SubtopicPool
		o.mu.Unlock()

		ctx, done := o.scope(ctx)
		defer done()
		return o.materialize(ctx, ep, pool, true, false)
	case o.sess != nil || (o.phase != PhaseIdle && o.phase != PhaseEnded):
		o.mu.Unlock()
		return ErrWrongPhase
	}

	o.newRunLocked()
	o.clearNoticeLocked()
	o.endReason = ""
	o.summary, o.last = nil, nil
	ep := o.enterLocked(PhaseInitializing)
	o.mu.Unlock()

	ctx, done := o.scope(ctx)
	defer done()

	var snap Snapshot
	if _, ok := o.store.Restore(ctx, o.snapshotKey, &snap); ok && resumable(snap) {
		return o.resume(ctx, ep, snap)
	}
	return o.create(ctx, ep)
}

func resumable(snap Snapshot) bool {
	return snap.Version == SnapshotVersion && snap.Session.ID != "" && !snap.Integrity.Terminated
}

// create starts a brand-new session. It is refused while a cooldown is owed.
func (o *Orchestrator) create(ctx context.Context, ep uint64) error {
	o.cooldown.Load(ctx)
	st, err := o.cooldown.CanStart(ctx)
	if err != nil {
		return o.failStart(ep, err)
	}
	if !st.Allowed {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch != ep {
			return ErrSuperseded
		}
		o.stopRunLocked()
		o.enterLocked(PhaseIdle)
		return o.refuseLocked(st.Remaining)
	}
	info, err := o.collab.StartSession(ctx, o.cfg.Subtopics, false)
	if err != nil {
		return o.failStart(ep, err)
	}
	o.cooldown.Clear(ctx)
	pool := info.Subtopics
	if len(pool) == 0 {
		pool = append([]string(nil), o.cfg.Subtopics...)
	}

	o.mu.Lock()
	if o.epoch != ep {
		o.mu.Unlock()
		return ErrSuperseded
	}
	o.sess = &Session{
		ID:           uuid.NewString(),
		SubtopicPool: pool,
		BatchSize:    o.cfg.BatchSize,
		BatchNumber:  1,
		StartedAt:    o.clock.Now(),
	}
	o.monitor.Reset()
	o.saveLocked()
	s := o.sess.clone()
	o.mu.Unlock()

	o.log.Printf("session %s started over %v", s.ID, pool)
	o.logSession(ctx, s, store.ActionStart, "")
	o.monitor.RequestFullscreen()
	return o.loadBatch(ctx, ep, false)
}

// materialize starts a backend session over pool and loads its batch.
func (o *Orchestrator) materialize(ctx context.Context, ep uint64, pool []string, force, renewed bool) error {
	if _, err := o.collab.StartSession(ctx, pool, force); err != nil {
		return o.fail(ep, err, func(ctx context.Context) error {
			return o.materialize(ctx, ep, pool, force, renewed)
		})
	}
	return o.loadBatch(ctx, ep, renewed)
}

// loadBatch fetches the fixed batch. A backend without batches leaves the
// batch nil so items are picked fresh.
func (o *Orchestrator) loadBatch(ctx context.Context, ep uint64, renewed bool) error {
	o.mu.Lock()
	if o.epoch != ep || o.sess == nil {
		o.mu.Unlock()
		return ErrSuperseded
	}
	size := o.sess.BatchSize
	o.mu.Unlock()

	items, err := o.collab.FetchBatch(ctx, size)
	if err != nil && !collab.IsNotFound(err) {
		return o.fail(ep, err, func(ctx context.Context) error {
			return o.loadBatch(ctx, ep, renewed)
		})
	}

	o.mu.Lock()
	if o.epoch != ep || o.sess == nil {
		o.mu.Unlock()
		return ErrSuperseded
	}
	o.sess.Batch = nil
	if len(items) > 0 {
		o.sess.Batch = &selector.Batch{Items: items}
	}
	o.saveLocked()
	o.mu.Unlock()

	return o.presentNext(ctx, ep, renewed)
}

// presentNext selects and presents the next item. A used-up batch is
// re-materialized once; after that it is treated as exhausted.
func (o *Orchestrator) presentNext(ctx context.Context, ep uint64, renewed bool) error {
	o.mu.Lock()
	if o.epoch != ep || o.sess == nil {
		o.mu.Unlock()
		return ErrSuperseded
	}
	req := selector.Request{Subtopics: o.sess.SubtopicPool}
	if o.sess.Batch != nil {
		b := *o.sess.Batch
		req.Batch = &b
	}
	o.mu.Unlock()

	sel, err := o.selector.Next(ctx, req)

	o.mu.Lock()
	if o.epoch != ep || o.sess == nil {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		o.failLocked(err, func(ctx context.Context) error {
			return o.presentNext(ctx, ep, renewed)
		})
		o.mu.Unlock()
		return err
	}

	if sel.Kind == selector.KindNeedsNewSession && !renewed {
		pool := o.sess.SubtopicPool
		o.mu.Unlock()
		o.log.Printf("batch used up, starting a new backend session")
		return o.materialize(ctx, ep, pool, true, true)
	}
	if sel.Kind != selector.KindItem {
		o.log.Printf("content exhausted after %d items", o.sess.ItemsCompleted)
		o.sess.Batch = nil
		o.current, o.followUp = nil, nil
		o.enterLocked(PhaseIdle)
		o.notice = NoticeExhausted
		o.saveLocked()
		o.mu.Unlock()
		return nil
	}

	if req.Batch != nil {
		o.sess.Batch = req.Batch
	}
	o.current = sel.Item
	o.source = sel.Source
	o.rating = 0
	o.followUp, o.selected = nil, nil
	ep = o.enterLocked(PhasePresenting)
	o.itemGuard = o.timers.Arm(timer.Item, o.cfg.ItemSeconds, o.onItemExpired(ep))
	o.saveLocked()
	o.mu.Unlock()
	return nil
}

// Rate records the learner's rating of the presented item and fetches
// its follow-up.
func (o *Orchestrator) Rate(ctx context.Context, r Rating) error {
	if !r.Valid() {
		return ErrInvalidRating
	}
	o.mu.Lock()
	if o.phase != PhasePresenting {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	if o.itemGuard == nil || !o.itemGuard.TryFire() {
		o.mu.Unlock()
		return ErrSuperseded
	}
	next := o.rateLocked(r)
	o.mu.Unlock()

	ctx, done := o.scope(ctx)
	defer done()
	return next(ctx)
}

func (o *Orchestrator) onItemExpired(ep uint64) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch != ep || o.phase != PhasePresenting {
			return
		}
		o.log.Printf("item %s timed out, rating %d", o.current.ID, AutoRating)
		o.queued = o.rateLocked(AutoRating)
	}
}

func (o *Orchestrator) rateLocked(r Rating) step {
	o.timers.Cancel(timer.Item)
	o.itemGuard = nil
	o.rating = r
	item := *o.current
	ep := o.enterLocked(PhaseRated)
	o.saveLocked()
	return func(ctx context.Context) error {
		return o.fetchFollowUp(ctx, ep, item, r)
	}
}

// fetchFollowUp submits the rating and fetches the follow-up. With no
// follow-up available the item is recorded as skipped.
func (o *Orchestrator) fetchFollowUp(ctx context.Context, ep uint64, item Item, r Rating) error {
	var q *collab.FollowUpQuestion
	res, err := o.collab.SubmitRating(ctx, item.ID, int(r))
	if err == nil {
		q, err = o.collab.FetchFollowUp(ctx, item.ID, res.Difficulty)
	}

	o.mu.Lock()
	if o.epoch != ep || o.sess == nil {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil && !collab.IsNotFound(err) {
		o.failLocked(err, func(ctx context.Context) error {
			return o.fetchFollowUp(ctx, ep, item, r)
		})
		o.mu.Unlock()
		return err
	}

	if q == nil {
		o.log.Printf("no follow-up for item %s, skipping", item.ID)
		next := o.recordLocked(item, AnswerResult{
			ItemID:     item.ID,
			Difficulty: res.Difficulty,
			Rating:     r,
			Skipped:    true,
		})
		o.mu.Unlock()
		return next(ctx)
	}

	if q.Difficulty == "" {
		q.Difficulty = res.Difficulty
	}
	o.followUp = q
	ep = o.enterLocked(PhaseFollowUp)
	o.followGuard = o.timers.Arm(timer.FollowUp, o.cfg.FollowUpSeconds, o.onFollowUpExpired(ep))
	o.saveLocked()
	o.mu.Unlock()
	return nil
}

// Answer submits the learner's choice for the follow-up question.
func (o *Orchestrator) Answer(ctx context.Context, optionKey string) error {
	o.mu.Lock()
	if o.phase != PhaseFollowUp {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	if !o.followUp.HasOption(optionKey) {
		o.mu.Unlock()
		return ErrInvalidOption
	}
	if o.followGuard == nil || !o.followGuard.TryFire() {
		o.mu.Unlock()
		return ErrSuperseded
	}
	next := o.answerLocked(&optionKey)
	o.mu.Unlock()

	ctx, done := o.scope(ctx)
	defer done()
	return next(ctx)
}

func (o *Orchestrator) onFollowUpExpired(ep uint64) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch != ep || o.phase != PhaseFollowUp {
			return
		}
		o.log.Printf("follow-up %s timed out", o.followUp.ID)
		o.queued = o.answerLocked(nil)
	}
}

// answerLocked moves to Answered. selected is nil on timeout.
func (o *Orchestrator) answerLocked(selected *string) step {
	o.timers.Cancel(timer.FollowUp)
	o.followGuard = nil
	o.selected = selected
	item, q, r := *o.current, *o.followUp, o.rating
	ep := o.enterLocked(PhaseAnswered)
	o.saveLocked()
	return func(ctx context.Context) error {
		return o.submitAnswer(ctx, ep, item, q, r, selected)
	}
}

// submitAnswer reports the answer. When the backend cannot be reached the
// verdict is computed from the question's correct key, so the result is
// still recorded exactly once.
func (o *Orchestrator) submitAnswer(ctx context.Context, ep uint64, item Item, q collab.FollowUpQuestion, r Rating, selected *string) error {
	result := AnswerResult{
		ItemID:         item.ID,
		SelectedOption: selected,
		CorrectOption:  q.CorrectKey,
		Explanation:    q.Explanation,
		Difficulty:     q.Difficulty,
		Rating:         r,
		TimedOut:       selected == nil,
	}

	out, err := o.collab.SubmitAnswer(ctx, q.ID, selected)
	switch {
	case err != nil:
		o.log.Printf("warning: submit answer %s: %v", q.ID, err)
		result.Correct = selected != nil && *selected == q.CorrectKey
	default:
		result.Correct = selected != nil && out.Correct
		if out.CorrectKey != "" {
			result.CorrectOption = out.CorrectKey
		}
		if out.Explanation != "" {
			result.Explanation = out.Explanation
		}
	}

	o.mu.Lock()
	if o.epoch != ep || o.sess == nil {
		o.mu.Unlock()
		return ErrSuperseded
	}
	next := o.recordLocked(item, result)
	o.mu.Unlock()
	return next(ctx)
}

// recordLocked appends result, then either completes the batch or moves on
// to the next item.
func (o *Orchestrator) recordLocked(item Item, result AnswerResult) step {
	s := o.sess
	s.Results = append(s.Results, result)
	s.ItemsCompleted++
	if !result.Skipped {
		if result.Correct {
			s.CorrectCount++
		} else {
			s.IncorrectCount++
		}
	}
	o.last = &result
	o.current, o.followUp, o.selected = nil, nil, nil
	ev := o.answerEvent(item, result)

	if s.Complete() {
		now := o.clock.Now()
		s.BatchCompletedAtEpochMs = clock.EpochMs(now)
		o.timers.CancelAll()
		o.summary = BuildSummary(s)
		o.enterLocked(PhaseBatchComplete)
		o.saveLocked()
		done := s.clone()
		return func(ctx context.Context) error {
			o.logAnswer(ctx, ev, result.Skipped)
			o.finishBatch(ctx, done, now)
			return nil
		}
	}

	ep := o.enterLocked(PhaseAnswered)
	o.saveLocked()
	return func(ctx context.Context) error {
		o.logAnswer(ctx, ev, result.Skipped)
		return o.presentNext(ctx, ep, false)
	}
}

func (o *Orchestrator) finishBatch(ctx context.Context, s *Session, completedAt time.Time) {
	o.log.Printf("batch %d complete: %d/%d correct", s.BatchNumber, s.CorrectCount, s.CorrectCount+s.IncorrectCount)
	o.monitor.ReleaseFullscreen()
	o.cooldown.Start(ctx, completedAt)
	o.logSession(ctx, s, store.ActionBatchEnd, "")
}

// EnterCooldown moves from BatchComplete to the cooldown countdown. When
// nothing remains locally it goes straight to Idle.
func (o *Orchestrator) EnterCooldown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseBatchComplete {
		return ErrWrongPhase
	}
	o.armCooldownLocked()
	return nil
}

func (o *Orchestrator) armCooldownLocked() {
	secs := ceilSeconds(o.cooldown.Remaining())
	if secs <= 0 {
		o.timers.Cancel(timer.Cooldown)
		o.enterLocked(PhaseIdle)
		o.saveLocked()
		return
	}
	ep := o.enterLocked(PhaseCooldown)
	o.timers.Arm(timer.Cooldown, secs, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch == ep && o.phase == PhaseCooldown {
			o.enterLocked(PhaseIdle)
			o.saveLocked()
		}
	})
	o.saveLocked()
}

// StartNewBatch starts the next batch of the session. The cooldown is
// checked again at the moment of the call; a refusal returns
// *CooldownError with the authoritative remaining time.
func (o *Orchestrator) StartNewBatch(ctx context.Context) error {
	o.mu.Lock()
	if o.sess == nil {
		o.mu.Unlock()
		return ErrNoSession
	}
	if !o.batchDoneLocked() {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	ep := o.epoch
	o.mu.Unlock()

	ctx, done := o.scope(ctx)
	defer done()

	st, err := o.cooldown.CanStart(ctx)

	o.mu.Lock()
	if o.epoch != ep || o.sess == nil {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		o.failLocked(err, o.StartNewBatch)
		o.mu.Unlock()
		return err
	}
	if !st.Allowed {
		if o.phase == PhaseIdle {
			o.armCooldownLocked()
		}
		err := o.refuseLocked(st.Remaining)
		o.mu.Unlock()
		return err
	}

	prev := batchState{phase: o.phase, sess: o.sess.clone(), summary: o.summary, last: o.last}
	s := o.sess
	s.BatchNumber++
	s.ItemsCompleted, s.CorrectCount, s.IncorrectCount = 0, 0, 0
	s.Results = nil
	s.Batch = nil
	s.BatchCompletedAtEpochMs = 0
	o.summary, o.last = nil, nil
	o.clearNoticeLocked()
	o.timers.Cancel(timer.Cooldown)
	ep = o.enterLocked(PhaseInitializing)
	o.saveLocked()
	pool := s.SubtopicPool
	snap := s.clone()
	o.mu.Unlock()

	if _, err := o.collab.StartSession(ctx, pool, true); err != nil {
		return o.rollbackBatch(ctx, ep, prev, err)
	}
	o.cooldown.Clear(ctx)
	o.logSession(ctx, snap, store.ActionBatchStart, "")
	o.monitor.RequestFullscreen()
	return o.loadBatch(ctx, ep, false)
}

// batchState is what a refused StartNewBatch restores.
type batchState struct {
	phase   Phase
	sess    *Session
	summary *Summary
	last    *AnswerResult
}

// rollbackBatch restores the completed batch after the backend refused to
// open the next one. A cooldown refusal re-arms the countdown with the
// backend's remaining time; other failures leave the batch complete in
// Idle with StartNewBatch as the retry.
func (o *Orchestrator) rollbackBatch(ctx context.Context, ep uint64, prev batchState, err error) error {
	var cool *collab.ErrCooldownActive
	if errors.As(err, &cool) {
		o.cooldown.Refused(ctx, cool.Remaining)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != ep {
		return ErrSuperseded
	}
	o.sess = prev.sess
	o.summary, o.last = prev.summary, prev.last
	if cool != nil {
		o.armCooldownLocked()
		return o.refuseLocked(o.cooldown.Remaining())
	}
	if prev.phase == PhaseBatchComplete {
		o.enterLocked(PhaseBatchComplete)
	} else {
		o.enterLocked(PhaseIdle)
	}
	o.failLocked(err, o.StartNewBatch)
	return err
}

func (o *Orchestrator) batchDoneLocked() bool {
	switch o.phase {
	case PhaseBatchComplete, PhaseCooldown:
		return true
	case PhaseIdle:
		return o.sess != nil && o.sess.Complete()
	}
	return false
}

// Tick advances the timers. Expiries complete their phase exactly as a
// manual rating or answer would, including the follow-on network calls,
// so hosts should call Tick off their UI loop.
func (o *Orchestrator) Tick(ctx context.Context) error {
	o.timers.Tick()
	ctx, done := o.scope(ctx)
	defer done()
	return o.drain(ctx)
}

func (o *Orchestrator) drain(ctx context.Context) error {
	o.mu.Lock()
	next := o.queued
	o.queued = nil
	o.mu.Unlock()
	if next == nil {
		return nil
	}
	return next(ctx)
}

// Retry re-runs the network step that last failed.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	next := o.retry
	if next == nil {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	o.retry = nil
	o.clearNoticeLocked()
	o.mu.Unlock()

	ctx, done := o.scope(ctx)
	defer done()
	return next(ctx)
}

// VisibilityChanged forwards a visibility change while the session is live.
func (o *Orchestrator) VisibilityChanged(hidden bool) {
	if o.isLive() {
		o.monitor.VisibilityChanged(hidden)
	}
}

// NavigationAttempted forwards a back/forward attempt while the session is live.
func (o *Orchestrator) NavigationAttempted() {
	if o.isLive() {
		o.monitor.NavigationAttempted()
	}
}

// AcknowledgeWarning answers a pending integrity prompt. Declining ends
// the session. It reports whether a prompt was pending.
func (o *Orchestrator) AcknowledgeWarning(confirm bool) bool {
	return o.monitor.Acknowledge(confirm)
}

func (o *Orchestrator) isLive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess != nil && o.phase.Live()
}

func (o *Orchestrator) integrityChanged(integrity.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saveLocked()
}

func (o *Orchestrator) integrityTerminated(reason integrity.Reason) {
	o.end(context.Background(), EndReason(reason))
}

// End tears the session down: timers are cancelled, in-flight responses
// are discarded, fullscreen is released and the snapshot is cleared. An
// owed cooldown is kept.
func (o *Orchestrator) End(ctx context.Context, reason EndReason) {
	o.end(ctx, reason)
	o.monitor.Terminate(integrity.ReasonManual)
}

func (o *Orchestrator) end(ctx context.Context, reason EndReason) {
	o.mu.Lock()
	if o.sess == nil || o.phase == PhaseEnded {
		o.mu.Unlock()
		return
	}
	o.timers.CancelAll()
	o.stopRunLocked()
	s := o.sess.clone()
	if s.ItemsCompleted > 0 {
		o.summary = BuildSummary(s)
	}
	o.sess = nil
	o.current, o.followUp, o.selected = nil, nil, nil
	o.itemGuard, o.followGuard = nil, nil
	o.queued, o.retry = nil, nil
	o.clearNoticeLocked()
	o.endReason = reason
	o.enterLocked(PhaseEnded)
	o.mu.Unlock()

	o.store.Clear(context.WithoutCancel(ctx), o.snapshotKey)
	o.log.Printf("session %s ended: %s", s.ID, reason)
	o.logSession(ctx, s, store.ActionEnd, string(reason))
}

// View returns a read-only projection of the current state.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		Phase:      o.phase,
		ItemSource: o.source,
		Rating:     o.rating,
		Notice:     o.notice,
		Err:        o.err,
		EndReason:  o.endReason,
		Summary:    o.summary,
		BatchSize:  o.cfg.BatchSize,
	}
	if o.current != nil {
		item := *o.current
		v.Item = &item
	}
	if o.followUp != nil {
		q := *o.followUp
		v.FollowUp = &q
	}
	if o.last != nil {
		r := *o.last
		v.LastResult = &r
	}
	if s := o.sess; s != nil {
		v.SessionID = s.ID
		v.BatchNumber = s.BatchNumber
		v.BatchSize = s.BatchSize
		v.ItemsCompleted = s.ItemsCompleted
		v.CorrectCount = s.CorrectCount
		v.IncorrectCount = s.IncorrectCount
		v.Results = append([]AnswerResult(nil), s.Results...)
	}

	var name string
	switch o.phase {
	case PhasePresenting:
		name = timer.Item
	case PhaseFollowUp:
		name = timer.FollowUp
	}
	if name != "" {
		v.TimeLeft, v.TimerActive = o.timers.Remaining(name)
		if st, ok := o.timers.Get(name); ok {
			v.TimeTotal = st.DurationSeconds
		}
	}
	v.CooldownLeft = o.cooldown.Remaining()
	v.Integrity = o.monitor.Status()
	v.WarningsLeft = o.monitor.WarningsLeft()
	return v
}

// enterLocked sets the phase and starts a new epoch.
func (o *Orchestrator) enterLocked(p Phase) uint64 {
	o.phase = p
	o.epoch++
	return o.epoch
}

func (o *Orchestrator) newRunLocked() {
	o.stopRunLocked()
	o.runCtx, o.cancelRun = context.WithCancel(context.Background())
}

func (o *Orchestrator) stopRunLocked() {
	if o.cancelRun != nil {
		o.cancelRun()
	}
	o.runCtx, o.cancelRun = nil, nil
}

// scope derives a context that is also cancelled when the session is torn
// down.
func (o *Orchestrator) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	o.mu.Lock()
	run := o.runCtx
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	if run == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(run, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// fail records a failed network step under ep so Retry can re-run it.
func (o *Orchestrator) fail(ep uint64, err error, retry step) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != ep {
		return ErrSuperseded
	}
	o.failLocked(err, retry)
	return err
}

// failStart abandons a session that could not be created.
func (o *Orchestrator) failStart(ep uint64, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != ep {
		return ErrSuperseded
	}
	o.sess = nil
	o.stopRunLocked()
	o.enterLocked(PhaseIdle)
	o.failLocked(err, o.Start)
	return err
}

func (o *Orchestrator) failLocked(err error, retry step) {
	o.err = err
	o.retry = retry
	o.notice = NoticeRetry

	var auth *collab.ErrAuthRequired
	var cool *collab.ErrCooldownActive
	switch {
	case errors.As(err, &auth):
		o.notice = NoticeAuth
	case errors.As(err, &cool):
		o.notice = NoticeCooldown
		o.cooldown.Refused(context.Background(), cool.Remaining)
	}
	o.log.Printf("%s: %v", o.phase, err)
	o.saveLocked()
}

func (o *Orchestrator) refuseLocked(remaining time.Duration) error {
	err := &CooldownError{Remaining: remaining}
	o.notice = NoticeCooldown
	o.err = err
	return err
}

func (o *Orchestrator) clearNoticeLocked() {
	o.notice = NoticeNone
	o.err = nil
	o.retry = nil
}

// saveLocked writes the snapshot. Storage is local and best-effort, so it
// is not tied to any request's cancellation.
func (o *Orchestrator) saveLocked() {
	if o.sess == nil {
		return
	}
	snap := Snapshot{
		Version:     SnapshotVersion,
		Phase:       o.phase,
		Session:     *o.sess.clone(),
		CurrentItem: o.current,
		ItemSource:  o.source,
		Rating:      o.rating,
		FollowUp:    o.followUp,
		Selected:    o.selected,
		Timers:      o.timers.States(),
		Integrity:   o.monitor.State(),
	}
	o.store.Save(context.Background(), o.snapshotKey, snap)
}

func (o *Orchestrator) answerEvent(item Item, r AnswerResult) store.AnswerEventData {
	return store.AnswerEventData{
		SessionID:      o.sess.ID,
		ItemID:         item.ID,
		SubTopic:       item.SubTopic,
		Rating:         int(r.Rating),
		SelectedOption: r.SelectedOption,
		CorrectOption:  r.CorrectOption,
		Correct:        r.Correct,
		TimedOut:       r.TimedOut,
		Difficulty:     r.Difficulty,
	}
}

func (o *Orchestrator) logAnswer(ctx context.Context, ev store.AnswerEventData, skipped bool) {
	if o.events == nil || skipped {
		return
	}
	if err := o.events.AppendAnswerEvent(context.WithoutCancel(ctx), ev); err != nil {
		o.log.Printf("warning: record answer: %v", err)
	}
}

func (o *Orchestrator) logSession(ctx context.Context, s *Session, action, reason string) {
	if o.events == nil {
		return
	}
	err := o.events.AppendSessionEvent(context.WithoutCancel(ctx), store.SessionEventData{
		SessionID:      s.ID,
		UserID:         o.cfg.UserID,
		Action:         action,
		Batch:          s.BatchNumber,
		ItemsCompleted: s.ItemsCompleted,
		CorrectCount:   s.CorrectCount,
		IncorrectCount: s.IncorrectCount,
		Reason:         reason,
	})
	if err != nil {
		o.log.Printf("warning: record session event: %v", err)
	}
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
