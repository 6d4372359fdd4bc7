package store

import "testing"

func seeded() *Store {
	s := New()
	s.SetFriends([]Friend{
		{ID: "x1", UserID: "u-x", Name: "X"},
		{ID: "y1", UserID: "u-y", Name: "Y"},
		{ID: "z1", UserID: "u-z", Name: "Z"},
	})
	return s
}

func TestIngestIncomingDeduplicates(t *testing.T) {
	s := seeded()

	for i := 0; i < 2; i++ {
		s.IngestIncoming("x1", Message{ID: "m1", Text: "hello", Timestamp: 1000})
	}
	s.IngestIncoming("x1", Message{ID: "m2", Text: "again", Timestamp: 2000})

	msgs := s.Messages("x1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (dedup by server id)", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = %s, %s, want m1, m2", msgs[0].ID, msgs[1].ID)
	}
}

func TestOptimisticReconciliation(t *testing.T) {
	s := seeded()

	s.AppendPending("x1", "c1", "hello", 1000)

	msgs := s.Messages("x1")
	if len(msgs) != 1 || msgs[0].State != StatePending || !msgs[0].FromMe {
		t.Fatalf("pending not visible immediately: %+v", msgs)
	}

	if !s.ConfirmPending("x1", "c1", "srv-1", 1500) {
		t.Fatal("ConfirmPending returned false")
	}

	msgs = s.Messages("x1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after echo, want exactly 1", len(msgs))
	}
	if msgs[0].ID != "srv-1" || msgs[0].State != StateConfirmed {
		t.Errorf("message = %+v, want confirmed srv-1", msgs[0])
	}
}

func TestConfirmPendingDropsDuplicateOfFetchedCopy(t *testing.T) {
	s := seeded()

	s.AppendPending("x1", "c1", "hello", 1000)
	// The authoritative copy landed first via a history fetch.
	s.IngestIncoming("x1", Message{ID: "srv-1", Text: "hello", FromMe: true, Timestamp: 1200})

	if !s.ConfirmPending("x1", "c1", "srv-1", 1200) {
		t.Fatal("ConfirmPending returned false")
	}
	if got := len(s.Messages("x1")); got != 1 {
		t.Errorf("got %d messages, want 1 (pending absorbed)", got)
	}
}

func TestConfirmNewestPendingFallback(t *testing.T) {
	s := seeded()

	s.AppendPending("x1", "c1", "hello", 1000)
	s.AppendPending("x1", "c2", "hello", 1100)

	if !s.ConfirmNewestPending("x1", "hello", "srv-9", 1200) {
		t.Fatal("fallback confirm failed")
	}

	msgs := s.Messages("x1")
	if msgs[0].State != StatePending {
		t.Error("older pending should remain pending")
	}
	if msgs[1].ID != "srv-9" || msgs[1].State != StateConfirmed {
		t.Errorf("newest = %+v, want confirmed srv-9", msgs[1])
	}
}

func TestFailPending(t *testing.T) {
	s := seeded()
	s.AppendPending("x1", "c1", "doomed", 1000)

	if !s.FailPending("x1", "c1") {
		t.Fatal("FailPending returned false")
	}
	if msgs := s.Messages("x1"); msgs[0].State != StateFailed {
		t.Errorf("state = %s, want failed", msgs[0].State)
	}
	// A resolved pending cannot fail again.
	if s.FailPending("x1", "c1") {
		t.Error("FailPending on resolved message should return false")
	}
}

func TestLoadHistoryKeepsRacingPushMessage(t *testing.T) {
	s := seeded()

	// Push delivery arrives while the fetch is in flight.
	s.IngestIncoming("x1", Message{ID: "fresh", Text: "new one", Timestamp: 3000})

	fetched := []Message{
		{ID: "h1", Text: "old", Timestamp: 1000},
		{ID: "h2", Text: "older", Timestamp: 2000},
	}
	s.LoadHistory("x1", fetched)

	msgs := s.Messages("x1")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3 (racing push kept)", len(msgs))
	}
	if msgs[2].ID != "fresh" {
		t.Errorf("last = %s, want fresh", msgs[2].ID)
	}
}

func TestLoadHistoryAbsorbsPendingConfirmedByFetch(t *testing.T) {
	s := seeded()
	s.AppendPending("x1", "c1", "hello", 1000)

	s.LoadHistory("x1", []Message{
		{ID: "srv-1", Text: "hello", FromMe: true, Timestamp: 1100},
	})

	msgs := s.Messages("x1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (pending absorbed by fetch)", len(msgs))
	}
	if msgs[0].ID != "srv-1" {
		t.Errorf("message = %+v, want srv-1", msgs[0])
	}
}

func TestLoadHistoryKeepsUnrelatedPending(t *testing.T) {
	s := seeded()
	s.AppendPending("x1", "c1", "still in flight", 5000)

	s.LoadHistory("x1", []Message{{ID: "h1", Text: "old", Timestamp: 1000}})

	msgs := s.Messages("x1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].State != StatePending {
		t.Errorf("pending lost by history load: %+v", msgs[1])
	}
}

func TestUnreadMonotonicity(t *testing.T) {
	s := seeded()
	s.SetActive("y1")

	s.IncrementUnread("x1")
	s.IncrementUnread("x1")
	if got := s.Unread("x1"); got != 2 {
		t.Errorf("unread = %d, want 2", got)
	}

	// Opening another conversation leaves X's count unchanged.
	s.SetActive("z1")
	if got := s.Unread("x1"); got != 2 {
		t.Errorf("unread after opening z = %d, want 2", got)
	}

	// Opening X resets it.
	s.SetActive("x1")
	if got := s.Unread("x1"); got != 0 {
		t.Errorf("unread after open = %d, want 0", got)
	}
}

func TestMoveToFrontPreservesRelativeOrder(t *testing.T) {
	s := seeded()

	s.MoveToFront("z1")

	friends := s.Friends()
	got := []string{friends[0].ID, friends[1].ID, friends[2].ID}
	want := []string{"z1", "x1", "y1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	// Front entry stays put.
	s.MoveToFront("z1")
	if s.Friends()[0].ID != "z1" {
		t.Error("moving the front entry should be a no-op")
	}
}

func TestRemoveFriendClearsActiveSelection(t *testing.T) {
	s := seeded()
	s.SetActive("x1")

	if !s.RemoveFriend("x1") {
		t.Error("RemoveFriend should report the active conversation was cleared")
	}
	if s.ActiveID() != "" {
		t.Errorf("active = %q, want empty", s.ActiveID())
	}
	if len(s.Friends()) != 2 {
		t.Errorf("got %d friends, want 2", len(s.Friends()))
	}

	if s.RemoveFriend("y1") {
		t.Error("removing a non-active friend should return false")
	}
}

func TestResolveFriendByEitherID(t *testing.T) {
	s := seeded()

	if f, ok := s.ResolveFriend("x1"); !ok || f.Name != "X" {
		t.Error("resolve by record id failed")
	}
	if f, ok := s.ResolveFriend("u-y"); !ok || f.Name != "Y" {
		t.Error("resolve by user id failed")
	}
	if _, ok := s.ResolveFriend("nobody"); ok {
		t.Error("resolve of unknown ref should fail")
	}
}

func TestSeedConversationOnlyWhenEmpty(t *testing.T) {
	s := seeded()
	s.SeedConversation("x1", []Message{{ID: "a1", Text: "archived", Timestamp: 100}})
	if got := len(s.Messages("x1")); got != 1 {
		t.Fatalf("got %d messages, want 1", got)
	}

	s.SeedConversation("x1", []Message{{ID: "a2", Text: "again", Timestamp: 200}})
	if got := len(s.Messages("x1")); got != 1 {
		t.Errorf("seed over non-empty conversation should be a no-op, got %d", got)
	}
}
