package collab

import (
	"context"
	"time"
)

// SessionRecovery is a decorator that answers *ErrSessionRequired by
// starting a session over the current subtopic pool and retrying the
// original call exactly once.
type SessionRecovery struct {
	inner Collaborator
	pool  func() []string
}

// WithSessionRecovery wraps c. pool supplies the subtopics used when a
// session has to be started on the learner's behalf.
func WithSessionRecovery(c Collaborator, pool func() []string) Collaborator {
	return &SessionRecovery{inner: c, pool: pool}
}

// recoverOnce runs call, and on *ErrSessionRequired starts a session and
// runs it one more time.
func recoverOnce[T any](ctx context.Context, r *SessionRecovery, call func() (T, error)) (T, error) {
	v, err := call()
	if err == nil || !IsSessionRequired(err) {
		return v, err
	}
	var pool []string
	if r.pool != nil {
		pool = r.pool()
	}
	if _, startErr := r.inner.StartSession(ctx, pool, false); startErr != nil {
		var zero T
		return zero, startErr
	}
	return call()
}

func (r *SessionRecovery) NextDueReview(ctx context.Context) (*Item, error) {
	return recoverOnce(ctx, r, func() (*Item, error) { return r.inner.NextDueReview(ctx) })
}

func (r *SessionRecovery) RandomItem(ctx context.Context, subtopics []string) (RandomResult, error) {
	return recoverOnce(ctx, r, func() (RandomResult, error) { return r.inner.RandomItem(ctx, subtopics) })
}

func (r *SessionRecovery) StartSession(ctx context.Context, subtopics []string, force bool) (SessionInfo, error) {
	return r.inner.StartSession(ctx, subtopics, force)
}

func (r *SessionRecovery) FetchBatch(ctx context.Context, size int) ([]Item, error) {
	return recoverOnce(ctx, r, func() ([]Item, error) { return r.inner.FetchBatch(ctx, size) })
}

func (r *SessionRecovery) SubmitRating(ctx context.Context, itemID string, rating int) (RatingResult, error) {
	return recoverOnce(ctx, r, func() (RatingResult, error) { return r.inner.SubmitRating(ctx, itemID, rating) })
}

func (r *SessionRecovery) FetchFollowUp(ctx context.Context, itemID, difficulty string) (*FollowUpQuestion, error) {
	return recoverOnce(ctx, r, func() (*FollowUpQuestion, error) { return r.inner.FetchFollowUp(ctx, itemID, difficulty) })
}

func (r *SessionRecovery) SubmitAnswer(ctx context.Context, questionID string, selected *string) (AnswerOutcome, error) {
	return recoverOnce(ctx, r, func() (AnswerOutcome, error) { return r.inner.SubmitAnswer(ctx, questionID, selected) })
}

func (r *SessionRecovery) CooldownStatus(ctx context.Context) (CooldownStatus, error) {
	return recoverOnce(ctx, r, func() (CooldownStatus, error) { return r.inner.CooldownStatus(ctx) })
}

func (r *SessionRecovery) CompleteCooldown(ctx context.Context, completedAt time.Time) error {
	_, err := recoverOnce(ctx, r, func() (struct{}, error) {
		return struct{}{}, r.inner.CompleteCooldown(ctx, completedAt)
	})
	return err
}

func (r *SessionRecovery) ResetShown(ctx context.Context) error {
	_, err := recoverOnce(ctx, r, func() (struct{}, error) {
		return struct{}{}, r.inner.ResetShown(ctx)
	})
	return err
}
