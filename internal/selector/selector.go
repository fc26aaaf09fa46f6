// Package selector picks the next content item for a session using a
// fixed priority order: due reviews, then the materialized batch, then a
// fresh pick from the subtopic pool, then a bounded recovery ladder.
package selector

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/abhisek/flashdrill/internal/collab"
)

// DefaultMaxResets bounds the "reset shown, then retry" rounds.
const DefaultMaxResets = 3

// Kind classifies a Selection.
type Kind int

const (
	KindItem            Kind = iota // an item to present
	KindNeedsNewSession             // the materialized batch is used up
	KindExhausted                   // the pool has nothing left, even after recovery
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindNeedsNewSession:
		return "needs-new-session"
	case KindExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Source records which step produced an item.
type Source string

const (
	SourceDueReview Source = "due-review"
	SourceBatch     Source = "batch"
	SourceFresh     Source = "fresh"
)

// Batch is a fixed, ordered list of items drawn at batch start.
type Batch struct {
	Items []collab.Item `json:"items"`
	Next  int           `json:"next"`
}

// Remaining returns the number of unserved batch items.
func (b *Batch) Remaining() int {
	if b == nil {
		return 0
	}
	return len(b.Items) - b.Next
}

// Request is the context for one selection.
type Request struct {
	Subtopics []string

	// Batch is the materialized batch, or nil when items are picked fresh.
	// A served batch item advances Batch.Next.
	Batch *Batch
}

// Selection is the outcome of Next.
type Selection struct {
	Kind   Kind
	Item   *collab.Item
	Source Source
}

// Config configures a Selector.
type Config struct {
	// MaxResets bounds the reset-and-retry rounds. Zero means DefaultMaxResets.
	MaxResets int
}

// Selector chooses the next item.
type Selector struct {
	collab    collab.Collaborator
	maxResets int
	log       *log.Logger
}

// New creates a Selector. logger may be nil.
func New(c collab.Collaborator, cfg Config, logger *log.Logger) *Selector {
	maxResets := cfg.MaxResets
	if maxResets <= 0 {
		maxResets = DefaultMaxResets
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Selector{collab: c, maxResets: maxResets, log: logger}
}

// Next returns the next item for req. Collaborator errors are returned
// wrapped; they are retryable from the caller's point of view.
func (s *Selector) Next(ctx context.Context, req Request) (Selection, error) {
	due, err := s.collab.NextDueReview(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("due review: %w", err)
	}
	if due != nil {
		return Selection{Kind: KindItem, Item: due, Source: SourceDueReview}, nil
	}

	if req.Batch != nil {
		if req.Batch.Next < len(req.Batch.Items) {
			item := req.Batch.Items[req.Batch.Next]
			req.Batch.Next++
			return Selection{Kind: KindItem, Item: &item, Source: SourceBatch}, nil
		}
		return Selection{Kind: KindNeedsNewSession}, nil
	}

	item, err := s.fresh(ctx, req.Subtopics)
	if err != nil || item != nil {
		return freshSelection(item), err
	}

	// The pool reports everything completed. Start over once.
	if _, err := s.collab.StartSession(ctx, req.Subtopics, true); err != nil {
		return Selection{}, fmt.Errorf("restart session: %w", err)
	}
	item, err = s.fresh(ctx, req.Subtopics)
	if err != nil || item != nil {
		return freshSelection(item), err
	}

	// Shown bookkeeping can lag a restart; reset it a bounded number of times.
	for attempt := 1; attempt <= s.maxResets; attempt++ {
		if err := s.collab.ResetShown(ctx); err != nil {
			if !collab.IsNotFound(err) {
				return Selection{}, fmt.Errorf("reset shown: %w", err)
			}
			s.log.Printf("reset shown unsupported by backend (attempt %d)", attempt)
		}
		item, err = s.fresh(ctx, req.Subtopics)
		if err != nil || item != nil {
			return freshSelection(item), err
		}
	}

	return Selection{Kind: KindExhausted}, nil
}

// fresh asks for a random unseen item. It returns (nil, nil) when the pool
// reports all items completed.
func (s *Selector) fresh(ctx context.Context, subtopics []string) (*collab.Item, error) {
	res, err := s.collab.RandomItem(ctx, subtopics)
	if err != nil {
		return nil, fmt.Errorf("random item: %w", err)
	}
	if res.AllCompleted || res.Item == nil {
		return nil, nil
	}
	return res.Item, nil
}

func freshSelection(item *collab.Item) Selection {
	if item == nil {
		return Selection{}
	}
	return Selection{Kind: KindItem, Item: item, Source: SourceFresh}
}
