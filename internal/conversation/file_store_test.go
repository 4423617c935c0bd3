package conversation

import (
	"context"
	"testing"
	"time"
)

func testKey32() []byte {
	return []byte("01234567890123456789012345678901")
}

func TestFileStore_SaveGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c := &Conversation{ID: "c1", UserID: "u1", ChatID: "chat1", AgentName: "agent1",
		Messages: []Message{{ID: "m1", Role: "user", Content: "hi"}}}
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" || len(got.Messages) != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestFileStore_Encrypted_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, testKey32())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c := &Conversation{ID: "c1", UserID: "u1"}
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("got %+v", got)
	}
}

func TestFileStore_WrongKeySize_Rejected(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), []byte("short")); err == nil {
		t.Fatal("expected an error for a non-32-byte key")
	}
}

func TestFileStore_Update_AppendsMessagesAndPatchesMetadata(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()
	s.Save(ctx, &Conversation{ID: "c1", UserID: "u1"})

	err := s.Update(ctx, "c1", Patch{
		AppendMessages: []Message{{ID: "m1", Role: "assistant", Content: "hello"}},
		Metadata:       map[string]any{"key": "value"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.Get(ctx, "c1")
	if len(got.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(got.Messages))
	}
	if got.Metadata["key"] != "value" {
		t.Fatalf("got metadata %+v", got.Metadata)
	}
}

func TestFileStore_Delete(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()
	s.Save(ctx, &Conversation{ID: "c1", UserID: "u1"})
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "c1"); err == nil {
		t.Fatal("expected deleted conversation to be gone")
	}
}

func TestFileStore_List_ANDCombinesFilters(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()
	s.Save(ctx, &Conversation{ID: "c1", UserID: "u1", ChatID: "chatA"})
	s.Save(ctx, &Conversation{ID: "c2", UserID: "u1", ChatID: "chatB"})
	s.Save(ctx, &Conversation{ID: "c3", UserID: "u2", ChatID: "chatA"})

	got, err := s.List(ctx, Filter{UserID: "u1", ChatID: "chatA"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("got %+v, want only c1", got)
	}
}

func TestFileStore_List_Pagination(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"c1", "c2", "c3"} {
		c := &Conversation{ID: id, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		s.Save(ctx, c)
	}
	got, err := s.List(ctx, Filter{UserID: "u1", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("got %+v, want only c2", got)
	}
}

func TestFileStore_Cleanup_EvictsByRetentionAndExpiresAt(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()

	old := &Conversation{ID: "old", UserID: "u1", CreatedAt: time.Now().Add(-48 * time.Hour)}
	s.Save(ctx, old)
	fresh := &Conversation{ID: "fresh", UserID: "u1", CreatedAt: time.Now()}
	s.Save(ctx, fresh)
	explicit := &Conversation{ID: "explicit", UserID: "u1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(-time.Minute)}
	s.Save(ctx, explicit)

	n, err := s.Cleanup(ctx, 1)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d evicted, want 2 (old by retention, explicit by expiresAt)", n)
	}

	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh conversation should survive cleanup: %v", err)
	}
}

func TestFileStore_Stats(t *testing.T) {
	s, _ := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()
	s.Save(ctx, &Conversation{ID: "c1", UserID: "u1", Messages: []Message{{ID: "m1"}, {ID: "m2"}}})
	s.Save(ctx, &Conversation{ID: "c2", UserID: "u1", Messages: []Message{{ID: "m3"}}})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalConversations != 2 || st.TotalMessages != 3 {
		t.Fatalf("got %+v", st)
	}
}
