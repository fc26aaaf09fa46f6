package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/flashdrill/internal/collab"
	"github.com/abhisek/flashdrill/internal/integrity"
	"github.com/abhisek/flashdrill/internal/selector"
	"github.com/abhisek/flashdrill/internal/timer"
)

// DefaultBatchSize is the number of items served before a cooldown.
const DefaultBatchSize = 6

// Default timer budgets, in seconds.
const (
	FlashcardSeconds = 30
	QuizSeconds      = 60
	FollowUpSeconds  = 60
)

// SnapshotVersion is bumped whenever Snapshot changes incompatibly.
const SnapshotVersion = 1

// AutoRating is applied when the item timer expires.
const AutoRating Rating = 1

var (
	// ErrWrongPhase is returned for an operation the current phase does not accept.
	ErrWrongPhase = errors.New("session: operation not allowed in current phase")

	// ErrSuperseded is returned when a completion lost the race to another one
	// or a network response arrived for a phase that has since moved on.
	ErrSuperseded = errors.New("session: superseded")

	// ErrNoSession is returned when no session is live.
	ErrNoSession = errors.New("session: no active session")

	// ErrInvalidRating is returned for a rating outside 1..5.
	ErrInvalidRating = errors.New("session: rating must be between 1 and 5")

	// ErrInvalidOption is returned for an answer key the question does not offer.
	ErrInvalidOption = errors.New("session: unknown option")
)

// CooldownError refuses a new batch while the cooldown runs.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("session: cooldown active, %s remaining", e.Remaining.Round(time.Second))
}

// Item is an immutable content card supplied by the backend.
type Item = collab.Item

// Mode selects the item time budget.
type Mode string

const (
	ModeFlashcard Mode = "flashcard"
	ModeQuiz      Mode = "quiz"
)

// ItemSeconds returns the item timer budget for the mode.
func (m Mode) ItemSeconds() int {
	if m == ModeQuiz {
		return QuizSeconds
	}
	return FlashcardSeconds
}

// Rating is the learner's 1..5 self-assessment of an item.
type Rating int

// Valid reports whether r is in 1..5.
func (r Rating) Valid() bool { return r >= 1 && r <= 5 }

// Phase represents the current phase of the orchestrator.
type Phase int

const (
	PhaseIdle          Phase = iota // No session running
	PhaseInitializing                // Resuming or starting a session or batch
	PhasePresenting                  // Item on screen, item timer running
	PhaseRated                       // Rating given, fetching the follow-up
	PhaseFollowUp                    // Follow-up on screen, follow-up timer running
	PhaseAnswered                    // Answer recorded, selecting the next item
	PhaseBatchComplete               // Batch finished, summary available
	PhaseCooldown                    // Waiting out the rest period
	PhaseEnded                       // Session ended or terminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitializing:
		return "initializing"
	case PhasePresenting:
		return "presenting"
	case PhaseRated:
		return "rated"
	case PhaseFollowUp:
		return "follow-up"
	case PhaseAnswered:
		return "answered"
	case PhaseBatchComplete:
		return "batch-complete"
	case PhaseCooldown:
		return "cooldown"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Live reports whether integrity monitoring applies in phase p.
func (p Phase) Live() bool {
	return p >= PhaseInitializing && p <= PhaseAnswered
}

// EndReason explains why a session ended.
type EndReason string

const (
	EndManual          EndReason = "manual"
	EndLogout          EndReason = "logout"
	EndTabSwitches     EndReason = EndReason(integrity.ReasonTabSwitches)
	EndWarningDeclined EndReason = EndReason(integrity.ReasonWarningDeclined)
	EndNavigation      EndReason = EndReason(integrity.ReasonNavigation)
)

// Notice is a condition the presentation layer should show the learner.
type Notice int

const (
	NoticeNone      Notice = iota
	NoticeRetry            // a network step failed; Retry re-runs it
	NoticeExhausted        // nothing left to serve; Start re-initializes
	NoticeCooldown         // a new batch was refused
	NoticeAuth             // the backend wants credentials
)

// AnswerResult records the outcome of one item.
type AnswerResult struct {
	ItemID string `json:"itemId"`

	// SelectedOption is nil when the follow-up timed out.
	SelectedOption *string `json:"selectedOption"`

	CorrectOption string `json:"correctOption"`
	Correct       bool   `json:"correct"`
	Explanation   string `json:"explanation,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	Rating        Rating `json:"rating"`

	// TimedOut is true when the follow-up timer expired.
	TimedOut bool `json:"timedOut"`

	// Skipped is true when no follow-up was available. Skipped results
	// count toward the batch but are neither correct nor incorrect.
	Skipped bool `json:"skipped,omitempty"`
}

// Session is one learner's run of batches.
type Session struct {
	ID string `json:"sessionId"`

	// SubtopicPool scopes fresh picks.
	SubtopicPool []string `json:"subtopicPool"`

	BatchSize      int `json:"batchSize"`
	BatchNumber    int `json:"batchNumber"`
	ItemsCompleted int `json:"itemsCompleted"`
	CorrectCount   int `json:"correctCount"`
	IncorrectCount int `json:"incorrectCount"`

	// Results holds one entry per completed item of the current batch.
	Results []AnswerResult `json:"results"`

	StartedAt time.Time `json:"startedAt"`

	// BatchCompletedAtEpochMs is set once the batch is complete.
	BatchCompletedAtEpochMs int64 `json:"batchCompletedAtEpochMs,omitempty"`

	// Batch is the materialized batch, or nil when items are picked fresh.
	Batch *selector.Batch `json:"batch,omitempty"`
}

// Complete reports whether the current batch is finished.
func (s *Session) Complete() bool {
	return s.ItemsCompleted >= s.BatchSize
}

// Accuracy is correct / (correct + incorrect), or zero before any answer.
func (s *Session) Accuracy() float64 {
	n := s.CorrectCount + s.IncorrectCount
	if n == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(n)
}

func (s *Session) clone() *Session {
	c := *s
	c.SubtopicPool = append([]string(nil), s.SubtopicPool...)
	c.Results = append([]AnswerResult(nil), s.Results...)
	if s.Batch != nil {
		b := *s.Batch
		c.Batch = &b
	}
	return &c
}

// Snapshot is the persisted projection of a session.
type Snapshot struct {
	Version     int                      `json:"version"`
	Phase       Phase                    `json:"phase"`
	Session     Session                  `json:"session"`
	CurrentItem *Item                    `json:"currentItem,omitempty"`
	ItemSource  selector.Source          `json:"itemSource,omitempty"`
	Rating      Rating                   `json:"rating,omitempty"`
	FollowUp    *collab.FollowUpQuestion `json:"followUp,omitempty"`
	Selected    *string                  `json:"selected,omitempty"`
	Timers      map[string]timer.State   `json:"timers,omitempty"`
	Integrity   integrity.State          `json:"integrity"`
}

// View is a read-only projection for the presentation layer.
type View struct {
	Phase      Phase
	SessionID  string
	Item       *Item
	ItemSource selector.Source
	FollowUp   *collab.FollowUpQuestion
	Rating     Rating

	// LastResult is the most recent AnswerResult of the batch.
	LastResult *AnswerResult

	BatchNumber    int
	BatchSize      int
	ItemsCompleted int
	CorrectCount   int
	IncorrectCount int
	Results        []AnswerResult

	// TimeLeft is the remaining seconds of the item or follow-up timer.
	TimeLeft    int
	TimeTotal   int
	TimerActive bool

	CooldownLeft time.Duration

	Integrity    integrity.Status
	WarningsLeft int

	Notice    Notice
	Err       error
	EndReason EndReason

	// Summary is set once the batch is complete.
	Summary *Summary
}
