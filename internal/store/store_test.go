package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/record"
	"github.com/abhisek/examdrill/internal/session"
)

var t0 = time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func encodedSession(t *testing.T, id string, ended bool) []byte {
	t.Helper()
	s, err := session.Start(session.StartParams{
		SessionID:     id,
		OwnerID:       "owner-1",
		Meta:          session.ExamMeta{Name: "Mock", Sections: []string{"All"}, SectionTimeBudgets: []int{600}},
		QuestionOrder: []string{"q1", "q2"},
	}, clock.NewManual(t0))
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if ended {
		if err := s.End(); err != nil {
			t.Fatalf("end session: %v", err)
		}
	}
	blob, err := record.Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return blob
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

func TestAutoMigrationCreatesTable(t *testing.T) {
	s := openTestStore(t)

	var name string
	err := s.DB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='practice_sessions'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if name != "practice_sessions" {
		t.Errorf("table name = %q, want 'practice_sessions'", name)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()
	blob := encodedSession(t, "a", false)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Sessions(nil).Put(ctx, "a", blob); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, ok, err := s.Sessions(nil).Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != string(blob) {
		t.Error("blob changed across reopen")
	}
}

func TestSessionCache_PutGet(t *testing.T) {
	cache := openTestStore(t).Sessions(clock.NewManual(t0))
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("expected no blob for missing id")
	}

	blob := encodedSession(t, "a", false)
	if err := cache.Put(ctx, "a", blob); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := cache.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != string(blob) {
		t.Errorf("got %s, want %s", got, blob)
	}
}

func TestSessionCache_PutReplaces(t *testing.T) {
	clk := clock.NewManual(t0)
	cache := openTestStore(t).Sessions(clk)
	ctx := context.Background()

	if err := cache.Put(ctx, "a", encodedSession(t, "a", false)); err != nil {
		t.Fatalf("put: %v", err)
	}
	clk.Advance(time.Second)
	ended := encodedSession(t, "a", true)
	if err := cache.Put(ctx, "a", ended); err != nil {
		t.Fatalf("put ended: %v", err)
	}

	got, _, err := cache.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(ended) {
		t.Error("expected replaced blob")
	}
	open, err := cache.ListNotEnded(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("got %d open sessions, want 0 after ending", len(open))
	}
}

func TestSessionCache_PutRejectsMismatchedID(t *testing.T) {
	cache := openTestStore(t).Sessions(nil)
	ctx := context.Background()

	if err := cache.Put(ctx, "b", encodedSession(t, "a", false)); err == nil {
		t.Error("expected error for mismatched id")
	}
	if err := cache.Put(ctx, "a", []byte("not a record")); err == nil {
		t.Error("expected error for garbage blob")
	}
}

func TestSessionCache_ListNotEnded_NewestFirst(t *testing.T) {
	clk := clock.NewManual(t0)
	cache := openTestStore(t).Sessions(clk)
	ctx := context.Background()

	for _, id := range []string{"old", "done", "new"} {
		if err := cache.Put(ctx, id, encodedSession(t, id, id == "done")); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
		clk.Advance(time.Minute)
	}

	blobs, err := cache.ListNotEnded(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("got %d blobs, want 2", len(blobs))
	}
	var ids []string
	for _, b := range blobs {
		h, err := record.PeekHeader(b)
		if err != nil {
			t.Fatalf("peek: %v", err)
		}
		ids = append(ids, h.SessionID)
	}
	if ids[0] != "new" || ids[1] != "old" {
		t.Errorf("order = %v, want [new old]", ids)
	}
}

func TestSessionCache_DeleteIdempotent(t *testing.T) {
	cache := openTestStore(t).Sessions(nil)
	ctx := context.Background()

	if err := cache.Put(ctx, "a", encodedSession(t, "a", false)); err != nil {
		t.Fatalf("put: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := cache.Delete(ctx, "a"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if err := cache.Delete(ctx, "never-saved"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "a"); ok {
		t.Error("expected session to be gone")
	}
}

func TestSessionCache_PruneEnded(t *testing.T) {
	clk := clock.NewManual(t0)
	cache := openTestStore(t).Sessions(clk)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3", "open"} {
		if err := cache.Put(ctx, id, encodedSession(t, id, id != "open")); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
		clk.Advance(time.Minute)
	}

	n, err := cache.PruneEnded(ctx, 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	for id, want := range map[string]bool{"e1": false, "e2": false, "e3": true, "open": true} {
		if _, ok, _ := cache.Get(ctx, id); ok != want {
			t.Errorf("%s present = %v, want %v", id, ok, want)
		}
	}
}
