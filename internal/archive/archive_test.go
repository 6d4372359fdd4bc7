package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/outbox"
	"github.com/prodevopz/prochat/internal/store"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	res, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("second migrate reported changes")
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := store.Message{ID: "srv-1", Text: "hello", FromMe: true, Timestamp: 1000}
	for i := 0; i < 2; i++ {
		if err := db.UpsertMessage("f1", m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.RecentMessages("f1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != "srv-1" || !msgs[0].FromMe || msgs[0].State != store.StateConfirmed {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestUpsertMessageSkipsUnconfirmed(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage("f1", store.Message{ClientID: "c1", Text: "pending"}); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.RecentMessages("f1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("pending message archived: %+v", msgs)
	}
}

func TestRecentMessagesChronologicalWindow(t *testing.T) {
	db := testDB(t)

	for i, id := range []string{"m1", "m2", "m3"} {
		err := db.UpsertMessage("f1", store.Message{ID: id, Timestamp: int64(1000 * (i + 1))})
		if err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.RecentMessages("f1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m2" || msgs[1].ID != "m3" {
		t.Errorf("window = %+v, want newest two in chronological order", msgs)
	}
}

func TestFriendsRoundtripInOrder(t *testing.T) {
	db := testDB(t)

	list := []store.Friend{
		{ID: "z1", UserID: "u-z", Name: "Z"},
		{ID: "a1", UserID: "u-a", Name: "A"},
	}
	for i, f := range list {
		if err := db.UpsertFriend(f, i); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.Friends()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "z1" || got[1].ID != "a1" {
		t.Errorf("friends = %+v, want archived order", got)
	}
}

func TestDeleteFriendDropsConversation(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertFriend(store.Friend{ID: "f1"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage("f1", store.Message{ID: "m1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteFriend("f1"); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.RecentMessages("f1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived friend deletion: %+v", msgs)
	}
}

func TestRestConfirmedSendArchived(t *testing.T) {
	db := testDB(t)
	st := store.New()
	st.SetFriends([]store.Friend{{ID: "f1", UserID: "u-f", Name: "F"}})
	b := bus.New()
	r := NewRecorder(db, st, b, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	st.AppendPending("f1", "c1", "hello", 1000)
	st.ConfirmPending("f1", "c1", "srv-1", 1000)
	b.Emit("message.confirmed", outbox.Resolved{FriendID: "f1", ClientMsgID: "c1", ServerID: "srv-1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := db.RecentMessages("f1", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == 1 && msgs[0].ID == "srv-1" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("rest-confirmed message never archived")
}

func TestWarmStartSeedsStore(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertFriend(store.Friend{ID: "f1", UserID: "u-f", Name: "F"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage("f1", store.Message{ID: "m1", Text: "archived", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}

	st := store.New()
	r := NewRecorder(db, st, nil, testLogger())
	if err := r.WarmStart(); err != nil {
		t.Fatal(err)
	}

	if _, ok := st.ResolveFriend("f1"); !ok {
		t.Fatal("friend not seeded")
	}
	msgs := st.Messages("f1")
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestWarmStartEmptyArchiveIsNoop(t *testing.T) {
	db := testDB(t)
	st := store.New()
	r := NewRecorder(db, st, nil, testLogger())
	if err := r.WarmStart(); err != nil {
		t.Fatal(err)
	}
	if len(st.Friends()) != 0 {
		t.Error("store populated from empty archive")
	}
}
