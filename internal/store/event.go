package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// sequenceCounter hands out one monotonic sequence shared by every event
// table, so session and answer events can be ordered against each other.
type sequenceCounter struct {
	mu sync.Mutex
	db *sql.DB
}

func newSequenceCounter(db *sql.DB) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`)
	if err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}

	return &sequenceCounter{db: db}, nil
}

// Next atomically returns the next sequence number.
func (sc *sequenceCounter) Next(ctx context.Context) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var seq int64
	err := sc.db.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

// Session event actions.
const (
	ActionStart      = "start"
	ActionResume     = "resume"
	ActionBatchStart = "batch-start"
	ActionBatchEnd   = "batch-end"
	ActionEnd        = "end"
)

// SessionEventData captures a session lifecycle event.
type SessionEventData struct {
	SessionID      string
	UserID         string
	Action         string
	Batch          int
	ItemsCompleted int
	CorrectCount   int
	IncorrectCount int
	Reason         string
}

// AnswerEventData captures one follow-up answer.
type AnswerEventData struct {
	SessionID      string
	ItemID         string
	SubTopic       string
	Rating         int
	SelectedOption *string // nil on timeout
	CorrectOption  string
	Correct        bool
	TimedOut       bool
	Difficulty     string
}

// SessionEvent is a stored SessionEventData.
type SessionEvent struct {
	SessionEventData
	Sequence  int64
	Timestamp time.Time
}

// AnswerTotals aggregates answer events.
type AnswerTotals struct {
	Answered int
	Correct  int
	TimedOut int
}

// Accuracy returns Correct/Answered, or 0 when nothing was answered.
func (t AnswerTotals) Accuracy() float64 {
	if t.Answered == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Answered)
}

// EventRepo provides append and summary access to session history.
type EventRepo interface {
	AppendSessionEvent(ctx context.Context, data SessionEventData) error
	AppendAnswerEvent(ctx context.Context, data AnswerEventData) error

	// RecentSessionEvents returns up to limit events, newest first.
	RecentSessionEvents(ctx context.Context, userID string, limit int) ([]SessionEvent, error)

	// AnswerTotals aggregates every answer event.
	AnswerTotals(ctx context.Context) (AnswerTotals, error)
}

type eventRepo struct {
	drv *entsql.Driver
	seq *sequenceCounter
}

func (r *eventRepo) AppendSessionEvent(ctx context.Context, data SessionEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	query, args := builder().
		Insert("session_events").
		Columns("sequence", "timestamp", "session_id", "user_id", "action",
			"batch", "items_completed", "correct_count", "incorrect_count", "reason").
		Values(seqNum, time.Now().UnixMilli(), data.SessionID, data.UserID, data.Action,
			data.Batch, data.ItemsCompleted, data.CorrectCount, data.IncorrectCount, data.Reason).
		Query()

	if err := exec(ctx, r.drv, query, args); err != nil {
		return fmt.Errorf("save session event: %w", err)
	}
	return nil
}

func (r *eventRepo) AppendAnswerEvent(ctx context.Context, data AnswerEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	var selected any
	if data.SelectedOption != nil {
		selected = *data.SelectedOption
	}

	query, args := builder().
		Insert("answer_events").
		Columns("sequence", "timestamp", "session_id", "item_id", "sub_topic", "rating",
			"selected_option", "correct_option", "correct", "timed_out", "difficulty").
		Values(seqNum, time.Now().UnixMilli(), data.SessionID, data.ItemID, data.SubTopic, data.Rating,
			selected, data.CorrectOption, data.Correct, data.TimedOut, data.Difficulty).
		Query()

	if err := exec(ctx, r.drv, query, args); err != nil {
		return fmt.Errorf("save answer event: %w", err)
	}
	return nil
}

func (r *eventRepo) RecentSessionEvents(ctx context.Context, userID string, limit int) ([]SessionEvent, error) {
	sel := builder().
		Select("sequence", "timestamp", "session_id", "user_id", "action",
			"batch", "items_completed", "correct_count", "incorrect_count", "reason").
		From(entsql.Table("session_events")).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("sequence"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var (
			e  SessionEvent
			ts int64
		)
		if err := rows.Scan(&e.Sequence, &ts, &e.SessionID, &e.UserID, &e.Action,
			&e.Batch, &e.ItemsCompleted, &e.CorrectCount, &e.IncorrectCount, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *eventRepo) AnswerTotals(ctx context.Context) (AnswerTotals, error) {
	query, args := builder().
		Select(
			"COUNT(*)",
			"COALESCE(SUM(correct), 0)",
			"COALESCE(SUM(timed_out), 0)",
		).
		From(entsql.Table("answer_events")).
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return AnswerTotals{}, fmt.Errorf("query answer totals: %w", err)
	}
	defer rows.Close()

	var t AnswerTotals
	if rows.Next() {
		if err := rows.Scan(&t.Answered, &t.Correct, &t.TimedOut); err != nil {
			return AnswerTotals{}, fmt.Errorf("scan answer totals: %w", err)
		}
	}
	return t, rows.Err()
}
