package presence

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/conn"
)

type fakeTypingSender struct {
	mu   sync.Mutex
	sent []conn.TypingPayload
}

func (f *fakeTypingSender) SendTyping(p conn.TypingPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeTypingSender) payloads() []conn.TypingPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]conn.TypingPayload(nil), f.sent...)
}

func newTestTracker(idle time.Duration) (*Tracker, *fakeTypingSender, *bus.Bus) {
	b := bus.New()
	push := &fakeTypingSender{}
	tr := NewTracker(push, b, zap.NewNop(), idle)
	tr.SetSelf("me1")
	return tr, push, b
}

func TestKeystrokesCollapseIntoOneIndicator(t *testing.T) {
	tr, push, _ := newTestTracker(time.Minute)
	defer tr.Stop()

	for i := 0; i < 5; i++ {
		tr.LocalKeystroke("f1")
	}

	sent := push.payloads()
	if len(sent) != 1 {
		t.Fatalf("sent %d indicators, want 1", len(sent))
	}
	if !sent[0].Typing || sent[0].RecipientID != "f1" || sent[0].SenderID != "me1" {
		t.Errorf("payload = %+v", sent[0])
	}
}

func TestIdleExpirySendsStop(t *testing.T) {
	tr, push, _ := newTestTracker(20 * time.Millisecond)
	defer tr.Stop()

	tr.LocalKeystroke("f1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sent := push.payloads()
		if len(sent) == 2 {
			if sent[1].Typing {
				t.Errorf("second payload = %+v, want stop", sent[1])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stop indicator never sent")
}

func TestStopLocalSendsStopOnce(t *testing.T) {
	tr, push, _ := newTestTracker(time.Minute)
	defer tr.Stop()

	tr.LocalKeystroke("f1")
	tr.StopLocal("f1")
	tr.StopLocal("f1")

	sent := push.payloads()
	if len(sent) != 2 {
		t.Fatalf("sent %d payloads, want start+stop", len(sent))
	}
	if sent[1].Typing {
		t.Errorf("second payload = %+v, want stop", sent[1])
	}
}

func TestRemoteTypingVisible(t *testing.T) {
	tr, _, b := newTestTracker(time.Minute)
	defer tr.Stop()

	updates, unsub := b.Subscribe("typing.", 4)
	defer unsub()

	tr.HandleRemote(conn.TypingPayload{SenderID: "f1", Typing: true})
	if !tr.Typing("f1") {
		t.Error("partner not shown as typing")
	}

	ev := <-updates
	if got := ev.Payload.(Update); !got.Typing || got.SenderID != "f1" {
		t.Errorf("update = %+v", got)
	}

	tr.HandleRemote(conn.TypingPayload{SenderID: "f1", Typing: false})
	if tr.Typing("f1") {
		t.Error("partner still shown as typing after stop")
	}
}

func TestRemoteTypingExpiresWithoutStop(t *testing.T) {
	tr, _, _ := newTestTracker(10 * time.Millisecond)
	defer tr.Stop()

	tr.HandleRemote(conn.TypingPayload{SenderID: "f1", Typing: true})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !tr.Typing("f1") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("remote indicator never expired")
}

func TestRemoteStopWithoutStartIsNoop(t *testing.T) {
	tr, _, b := newTestTracker(time.Minute)
	defer tr.Stop()

	updates, unsub := b.Subscribe("typing.", 4)
	defer unsub()

	tr.HandleRemote(conn.TypingPayload{SenderID: "f1", Typing: false})

	select {
	case ev := <-updates:
		t.Errorf("unexpected update %+v", ev.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}
