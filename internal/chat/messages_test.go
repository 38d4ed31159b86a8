package chat

import (
	"errors"
	"sync"
	"testing"
)

func TestAppendAndFetch(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db, fixedClock(1000))
	l := NewMessageLog(db, stepClock(2000, 2001, 2002))

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	id, _ := r.CreateConversation("alice", "bob")

	for _, body := range []string{"ct-one", "ct-two", "ct-three"} {
		sender := alice.ID
		if body == "ct-two" {
			sender = bob.ID
		}
		if _, err := l.Append(id, sender, body); err != nil {
			t.Fatalf("append %q: %v", body, err)
		}
	}

	msgs, err := l.Fetch(id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		if cur.Timestamp < prev.Timestamp || (cur.Timestamp == prev.Timestamp && cur.ID < prev.ID) {
			t.Errorf("messages out of order at %d: (%d,%d) before (%d,%d)",
				i, prev.Timestamp, prev.ID, cur.Timestamp, cur.ID)
		}
	}
	if msgs[0].Ciphertext != "ct-one" || msgs[2].Ciphertext != "ct-three" {
		t.Error("fetch returned wrong bodies")
	}
}

func TestAppendSameSecondOrderedByID(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db, fixedClock(1000))
	l := NewMessageLog(db, fixedClock(5000))

	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	id, _ := r.CreateConversation("alice", "bob")

	first, _ := l.Append(id, alice.ID, "a")
	second, _ := l.Append(id, alice.ID, "b")

	msgs, err := l.Fetch(id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Error("equal timestamps must tie-break on id ascending")
	}
}

func TestAppendUpdatesLastMessageAt(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db, fixedClock(1000))
	l := NewMessageLog(db, stepClock(2000, 2500))

	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	id, _ := r.CreateConversation("alice", "bob")

	conv, _ := r.Conversation(id)
	if conv.LastMessageAt != nil {
		t.Fatal("fresh conversation must have no last_message_at")
	}

	msg, err := l.Append(id, alice.ID, "hello-ct")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	conv, _ = r.Conversation(id)
	if conv.LastMessageAt == nil || *conv.LastMessageAt != msg.Timestamp {
		t.Errorf("last_message_at not updated: %v, want %d", conv.LastMessageAt, msg.Timestamp)
	}

	msg2, _ := l.Append(id, alice.ID, "again-ct")
	conv, _ = r.Conversation(id)
	if conv.LastMessageAt == nil || *conv.LastMessageAt != msg2.Timestamp {
		t.Errorf("last_message_at not bumped: %v, want %d", conv.LastMessageAt, msg2.Timestamp)
	}
}

func TestAppendValidation(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db, fixedClock(1000))
	l := NewMessageLog(db, fixedClock(2000))

	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	id, _ := r.CreateConversation("alice", "bob")

	if _, err := l.Append(id, alice.ID, ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty ciphertext: got %v, want ErrEmptyMessage", err)
	}
	if _, err := l.Append(9999, alice.ID, "x"); !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("unknown conversation: got %v, want ErrUnknownConversation", err)
	}
}

func TestAppendConcurrentSameConversation(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db, fixedClock(1000))
	l := NewMessageLog(db, SystemClock)

	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	id, _ := r.CreateConversation("alice", "bob")

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Append(id, alice.ID, "ct"); err != nil {
				t.Errorf("concurrent append: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs, err := l.Fetch(id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != writers {
		t.Fatalf("expected %d messages, got %d", writers, len(msgs))
	}

	// last_message_at must equal the newest stored timestamp.
	conv, _ := r.Conversation(id)
	newest := msgs[len(msgs)-1].Timestamp
	if conv.LastMessageAt == nil || *conv.LastMessageAt != newest {
		t.Errorf("last_message_at = %v, want %d", conv.LastMessageAt, newest)
	}
}

func TestLast(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db, fixedClock(1000))
	l := NewMessageLog(db, stepClock(2000, 2001))

	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	id, _ := r.CreateConversation("alice", "bob")

	if _, ok, err := l.Last(id); err != nil || ok {
		t.Fatalf("empty conversation: ok=%v err=%v", ok, err)
	}

	l.Append(id, alice.ID, "first")
	want, _ := l.Append(id, alice.ID, "second")

	got, ok, err := l.Last(id)
	if err != nil || !ok {
		t.Fatalf("last: ok=%v err=%v", ok, err)
	}
	if got.ID != want.ID {
		t.Errorf("last message id = %d, want %d", got.ID, want.ID)
	}
}
