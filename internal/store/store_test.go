package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestSchemaCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"kv", "session_events", "answer_events", "global_sequence"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.KV().Put(ctx, "learner", []byte("u1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, ok, err := s.KV().Get(ctx, "learner")
	if err != nil || !ok || string(got) != "u1" {
		t.Fatalf("get after reopen = %q, %v, %v", got, ok, err)
	}
}

func TestSchemaIndexes(t *testing.T) {
	s := openTestStore(t)
	for _, index := range []string{"session_events_session", "session_events_user_sequence", "answer_events_session"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", index,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %s: %v", index, err)
		}
	}
}

func TestKVPutGetDelete(t *testing.T) {
	s := openTestStore(t)
	kv := s.KV()
	ctx := context.Background()

	if _, ok, err := kv.Get(ctx, "session:u1"); err != nil || ok {
		t.Fatalf("get empty: ok=%v err=%v", ok, err)
	}

	if err := kv.Put(ctx, "session:u1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := kv.Put(ctx, "session:u1", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, ok, err := kv.Get(ctx, "session:u1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"a":2}` {
		t.Errorf("value = %s, want {\"a\":2}", got)
	}

	if err := kv.Delete(ctx, "session:u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "session:u1"); ok {
		t.Error("expected key to be gone after delete")
	}
}

func TestSequenceCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		seq, err := s.seq.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if seq != int64(i) {
			t.Errorf("seq = %d, want %d", seq, i)
		}
	}
}

func TestSessionEvents(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	for _, action := range []string{ActionStart, ActionBatchEnd, ActionEnd} {
		err := repo.AppendSessionEvent(ctx, SessionEventData{
			SessionID:      "s1",
			UserID:         "u1",
			Action:         action,
			Batch:          1,
			ItemsCompleted: 6,
			CorrectCount:   4,
			IncorrectCount: 2,
		})
		if err != nil {
			t.Fatalf("append %s: %v", action, err)
		}
	}
	if err := repo.AppendSessionEvent(ctx, SessionEventData{SessionID: "s2", UserID: "other", Action: ActionStart}); err != nil {
		t.Fatalf("append other: %v", err)
	}

	events, err := repo.RecentSessionEvents(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Action != ActionEnd || events[1].Action != ActionBatchEnd {
		t.Errorf("order = %s,%s; want end,batch-end", events[0].Action, events[1].Action)
	}
	if events[0].CorrectCount != 4 || events[0].IncorrectCount != 2 {
		t.Errorf("counts = %d/%d, want 4/2", events[0].CorrectCount, events[0].IncorrectCount)
	}
}

func TestAnswerTotals(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	totals, err := repo.AnswerTotals(ctx)
	if err != nil {
		t.Fatalf("totals (empty): %v", err)
	}
	if totals.Answered != 0 || totals.Accuracy() != 0 {
		t.Fatalf("expected empty totals, got %+v", totals)
	}

	b := "b"
	answers := []AnswerEventData{
		{SessionID: "s1", ItemID: "i1", Rating: 4, SelectedOption: &b, CorrectOption: "b", Correct: true},
		{SessionID: "s1", ItemID: "i2", Rating: 2, SelectedOption: &b, CorrectOption: "a"},
		{SessionID: "s1", ItemID: "i3", Rating: 1, CorrectOption: "c", TimedOut: true},
		{SessionID: "s1", ItemID: "i4", Rating: 5, SelectedOption: &b, CorrectOption: "b", Correct: true},
	}
	for _, a := range answers {
		if err := repo.AppendAnswerEvent(ctx, a); err != nil {
			t.Fatalf("append answer: %v", err)
		}
	}

	totals, err = repo.AnswerTotals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Answered != 4 || totals.Correct != 2 || totals.TimedOut != 1 {
		t.Errorf("totals = %+v, want 4/2/1", totals)
	}
	if totals.Accuracy() != 0.5 {
		t.Errorf("accuracy = %v, want 0.5", totals.Accuracy())
	}

	var selected *string
	err = s.DB().QueryRow("SELECT selected_option FROM answer_events WHERE item_id = 'i3'").Scan(&selected)
	if err != nil {
		t.Fatalf("query timeout row: %v", err)
	}
	if selected != nil {
		t.Errorf("timeout row selected_option = %q, want NULL", *selected)
	}
}
