package collab

import (
	"context"
	"sync"
	"time"
)

// Mock is a deterministic Collaborator for testing. Each *Func field
// overrides one operation; unset operations return a benign default
// (no due review, all completed, no follow-up, no cooldown). Every call is
// counted by operation name.
type Mock struct {
	NextDueReviewFunc    func(ctx context.Context) (*Item, error)
	RandomItemFunc       func(ctx context.Context, subtopics []string) (RandomResult, error)
	StartSessionFunc     func(ctx context.Context, subtopics []string, force bool) (SessionInfo, error)
	FetchBatchFunc       func(ctx context.Context, size int) ([]Item, error)
	SubmitRatingFunc     func(ctx context.Context, itemID string, rating int) (RatingResult, error)
	FetchFollowUpFunc    func(ctx context.Context, itemID, difficulty string) (*FollowUpQuestion, error)
	SubmitAnswerFunc     func(ctx context.Context, questionID string, selected *string) (AnswerOutcome, error)
	CooldownStatusFunc   func(ctx context.Context) (CooldownStatus, error)
	CompleteCooldownFunc func(ctx context.Context, completedAt time.Time) error
	ResetShownFunc       func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

var _ Collaborator = (*Mock)(nil)

func (m *Mock) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// CallCount returns how many times op was called.
func (m *Mock) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Mock) NextDueReview(ctx context.Context) (*Item, error) {
	m.record("NextDueReview")
	if m.NextDueReviewFunc != nil {
		return m.NextDueReviewFunc(ctx)
	}
	return nil, nil
}

func (m *Mock) RandomItem(ctx context.Context, subtopics []string) (RandomResult, error) {
	m.record("RandomItem")
	if m.RandomItemFunc != nil {
		return m.RandomItemFunc(ctx, subtopics)
	}
	return RandomResult{AllCompleted: true}, nil
}

func (m *Mock) StartSession(ctx context.Context, subtopics []string, force bool) (SessionInfo, error) {
	m.record("StartSession")
	if m.StartSessionFunc != nil {
		return m.StartSessionFunc(ctx, subtopics, force)
	}
	return SessionInfo{SessionID: "mock-session", Subtopics: subtopics}, nil
}

func (m *Mock) FetchBatch(ctx context.Context, size int) ([]Item, error) {
	m.record("FetchBatch")
	if m.FetchBatchFunc != nil {
		return m.FetchBatchFunc(ctx, size)
	}
	return nil, &ErrNotFound{Resource: "batch"}
}

func (m *Mock) SubmitRating(ctx context.Context, itemID string, rating int) (RatingResult, error) {
	m.record("SubmitRating")
	if m.SubmitRatingFunc != nil {
		return m.SubmitRatingFunc(ctx, itemID, rating)
	}
	return RatingResult{}, nil
}

func (m *Mock) FetchFollowUp(ctx context.Context, itemID, difficulty string) (*FollowUpQuestion, error) {
	m.record("FetchFollowUp")
	if m.FetchFollowUpFunc != nil {
		return m.FetchFollowUpFunc(ctx, itemID, difficulty)
	}
	return nil, &ErrNotFound{Resource: "followup"}
}

func (m *Mock) SubmitAnswer(ctx context.Context, questionID string, selected *string) (AnswerOutcome, error) {
	m.record("SubmitAnswer")
	if m.SubmitAnswerFunc != nil {
		return m.SubmitAnswerFunc(ctx, questionID, selected)
	}
	return AnswerOutcome{}, nil
}

func (m *Mock) CooldownStatus(ctx context.Context) (CooldownStatus, error) {
	m.record("CooldownStatus")
	if m.CooldownStatusFunc != nil {
		return m.CooldownStatusFunc(ctx)
	}
	return CooldownStatus{}, nil
}

func (m *Mock) CompleteCooldown(ctx context.Context, completedAt time.Time) error {
	m.record("CompleteCooldown")
	if m.CompleteCooldownFunc != nil {
		return m.CompleteCooldownFunc(ctx, completedAt)
	}
	return nil
}

func (m *Mock) ResetShown(ctx context.Context) error {
	m.record("ResetShown")
	if m.ResetShownFunc != nil {
		return m.ResetShownFunc(ctx)
	}
	return nil
}
