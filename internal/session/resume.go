package session

import (
	"context"
	"time"

	"github.com/abhisek/flashdrill/internal/clock"
	"github.com/abhisek/flashdrill/internal/store"
	"github.com/abhisek/flashdrill/internal/timer"
)

// resume restores a session from snap. A completed batch resumes into
// BatchComplete (or Cooldown) and discards any in-flight item. Otherwise
// the persisted phase is re-entered with its timer anchored to the
// original start, so a deadline that passed while the program was down
// expires immediately, and fullscreen is requested again once the
// phase's timer is back in place.
func (o *Orchestrator) resume(ctx context.Context, ep uint64, snap Snapshot) error {
	o.mu.Lock()
	if o.epoch != ep {
		o.mu.Unlock()
		return ErrSuperseded
	}
	s := snap.Session
	if s.BatchSize <= 0 {
		s.BatchSize = o.cfg.BatchSize
	}
	o.sess = &s
	o.monitor.Restore(snap.Integrity)
	resumed := s.clone()
	o.mu.Unlock()

	o.log.Printf("resuming session %s (batch %d, %d/%d, %s)", s.ID, s.BatchNumber, s.ItemsCompleted, s.BatchSize, snap.Phase)
	o.logSession(ctx, resumed, store.ActionResume, "")
	o.cooldown.Load(ctx)

	if resumed.Complete() {
		return o.resumeComplete(ctx, ep, snap.Phase == PhaseCooldown)
	}

	o.mu.Lock()
	if o.epoch != ep {
		o.mu.Unlock()
		return ErrSuperseded
	}

	var run func() error
	switch {
	case snap.Phase == PhasePresenting && snap.CurrentItem != nil:
		o.current = snap.CurrentItem
		o.source = snap.ItemSource
		next := o.enterLocked(PhasePresenting)
		run = func() error {
			o.resumeTimer(next, timer.Item, snap.Timers, o.cfg.ItemSeconds, o.onItemExpired(next))
			o.monitor.RequestFullscreen()
			return o.drain(ctx)
		}

	case snap.Phase == PhaseRated && snap.CurrentItem != nil:
		item := *snap.CurrentItem
		o.current = &item
		o.source = snap.ItemSource
		o.rating = snap.Rating
		next := o.enterLocked(PhaseRated)
		o.saveLocked()
		run = func() error {
			o.monitor.RequestFullscreen()
			return o.fetchFollowUp(ctx, next, item, snap.Rating)
		}

	case snap.Phase == PhaseFollowUp && snap.CurrentItem != nil && snap.FollowUp != nil:
		o.current = snap.CurrentItem
		o.source = snap.ItemSource
		o.rating = snap.Rating
		o.followUp = snap.FollowUp
		next := o.enterLocked(PhaseFollowUp)
		run = func() error {
			o.resumeTimer(next, timer.FollowUp, snap.Timers, o.cfg.FollowUpSeconds, o.onFollowUpExpired(next))
			o.monitor.RequestFullscreen()
			return o.drain(ctx)
		}

	case snap.Phase == PhaseAnswered && snap.CurrentItem != nil && snap.FollowUp != nil:
		// The answer was chosen but not yet recorded.
		item, q := *snap.CurrentItem, *snap.FollowUp
		o.current, o.followUp = &item, &q
		o.rating = snap.Rating
		o.selected = snap.Selected
		next := o.enterLocked(PhaseAnswered)
		o.saveLocked()
		run = func() error {
			o.monitor.RequestFullscreen()
			return o.submitAnswer(ctx, next, item, q, snap.Rating, snap.Selected)
		}

	default:
		next := o.enterLocked(PhaseInitializing)
		o.saveLocked()
		fresh := o.sess.Batch == nil && o.sess.ItemsCompleted == 0
		pool := o.sess.SubtopicPool
		run = func() error {
			o.monitor.RequestFullscreen()
			if fresh {
				return o.materialize(ctx, next, pool, false, false)
			}
			return o.presentNext(ctx, next, false)
		}
	}
	o.mu.Unlock()

	return run()
}

// resumeTimer re-arms name from its persisted start. A missing timer is
// armed fresh. The guard is installed only if the phase has not already
// moved on, which happens when the deadline had passed.
func (o *Orchestrator) resumeTimer(ep uint64, name string, timers map[string]timer.State, secs int, onExpire func()) {
	var g *timer.Guard
	if st, ok := timers[name]; ok && st.StartedAtEpochMs > 0 && st.DurationSeconds > 0 {
		g = o.timers.Resume(name, st.StartedAtEpochMs, st.DurationSeconds, onExpire)
	} else {
		g = o.timers.Arm(name, secs, onExpire)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != ep {
		return
	}
	switch name {
	case timer.Item:
		o.itemGuard = g
	case timer.FollowUp:
		o.followGuard = g
	}
	o.saveLocked()
}

// resumeComplete re-enters BatchComplete for a finished batch. The
// cooldown is recorded again if its local record was lost.
func (o *Orchestrator) resumeComplete(ctx context.Context, ep uint64, cooling bool) error {
	o.mu.Lock()
	if o.epoch != ep {
		o.mu.Unlock()
		return ErrSuperseded
	}
	o.current, o.followUp, o.selected = nil, nil, nil
	o.timers.CancelAll()
	o.summary = BuildSummary(o.sess)
	completedAt := o.clock.Now()
	if ms := o.sess.BatchCompletedAtEpochMs; ms > 0 {
		completedAt = time.UnixMilli(ms)
	} else {
		o.sess.BatchCompletedAtEpochMs = clock.EpochMs(completedAt)
	}
	o.enterLocked(PhaseBatchComplete)
	o.saveLocked()
	o.mu.Unlock()

	if o.cooldown.State() == nil {
		o.cooldown.Start(ctx, completedAt)
	}
	if cooling {
		return o.EnterCooldown(ctx)
	}
	return nil
}
