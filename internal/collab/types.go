// Package collab talks to the learning backend: content items, due
// reviews, follow-up questions, answers and the authoritative cooldown.
package collab

import (
	"context"
	"time"
)

// Item is an immutable content card.
type Item struct {
	ID             string `json:"itemId"`
	TopicID        string `json:"topicId"`
	SubTopic       string `json:"subTopic"`
	DifficultyHint string `json:"difficultyHint,omitempty"`
	Prompt         string `json:"prompt"`
	Answer         string `json:"answer"`
	Explanation    string `json:"explanation,omitempty"`
}

// Option is one labeled choice of a follow-up question.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// FollowUpQuestion is a practice question fetched after a rating.
type FollowUpQuestion struct {
	ID          string   `json:"questionId"`
	Options     []Option `json:"options"`
	Prompt      string   `json:"prompt"`
	CorrectKey  string   `json:"correctKey"`
	Explanation string   `json:"explanation,omitempty"`
	Difficulty  string   `json:"difficulty"`
}

// HasOption reports whether key is one of the question's options.
func (q *FollowUpQuestion) HasOption(key string) bool {
	for _, o := range q.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// RandomResult is the outcome of a random item request.
type RandomResult struct {
	Item         *Item `json:"item,omitempty"`
	AllCompleted bool  `json:"allCompleted"`
}

// SessionInfo describes a server-side learning session.
type SessionInfo struct {
	SessionID string   `json:"sessionId"`
	Subtopics []string `json:"subtopics"`
}

// RatingResult is the server's response to a self-rating.
type RatingResult struct {
	Difficulty string `json:"difficulty"`
}

// AnswerOutcome is the server's verdict on a follow-up answer.
type AnswerOutcome struct {
	Correct     bool   `json:"correct"`
	CorrectKey  string `json:"correctKey"`
	Explanation string `json:"explanation,omitempty"`
}

// CooldownStatus is the server-authoritative cooldown state.
type CooldownStatus struct {
	Active           bool  `json:"active"`
	RemainingSeconds int   `json:"remainingSeconds"`
	CompletedAtMs    int64 `json:"completedAt,omitempty"`
}

// Collaborator is the backend API consumed by the session engine.
type Collaborator interface {
	// NextDueReview returns an item whose review is due, or nil.
	NextDueReview(ctx context.Context) (*Item, error)

	// RandomItem returns an unseen item scoped to subtopics.
	RandomItem(ctx context.Context, subtopics []string) (RandomResult, error)

	// StartSession starts (or with force, restarts) a session over subtopics.
	StartSession(ctx context.Context, subtopics []string, force bool) (SessionInfo, error)

	// FetchBatch returns a fixed, ordered batch of up to size items.
	FetchBatch(ctx context.Context, size int) ([]Item, error)

	SubmitRating(ctx context.Context, itemID string, rating int) (RatingResult, error)

	// FetchFollowUp returns *ErrNotFound when no question is available.
	FetchFollowUp(ctx context.Context, itemID string, difficulty string) (*FollowUpQuestion, error)

	// SubmitAnswer records an answer; a nil selected means the question timed out.
	SubmitAnswer(ctx context.Context, questionID string, selected *string) (AnswerOutcome, error)

	CooldownStatus(ctx context.Context) (CooldownStatus, error)
	CompleteCooldown(ctx context.Context, completedAt time.Time) error

	// ResetShown clears the "already shown" bookkeeping. Best-effort.
	ResetShown(ctx context.Context) error
}
