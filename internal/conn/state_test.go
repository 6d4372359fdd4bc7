package conn

import (
	"testing"

	"github.com/prodevopz/prochat/internal/bus"
)

func TestMachineStartsDisconnected(t *testing.T) {
	m := NewMachine(nil)
	if got := m.Current(); got != Disconnected {
		t.Errorf("initial state = %s, want %s", got, Disconnected)
	}
}

func TestValidTransitionPath(t *testing.T) {
	m := NewMachine(nil)
	for _, to := range []State{Connecting, Connected, Disconnected} {
		if err := m.Transition(to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Disconnected -> Connected should be rejected")
	}
	if got := m.Current(); got != Disconnected {
		t.Errorf("state after rejected transition = %s, want %s", got, Disconnected)
	}
}

func TestConnectingCanAbort(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Disconnected); err != nil {
		t.Errorf("Connecting -> Disconnected: %v", err)
	}
}

func TestTransitionPublishesStateChange(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 4)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	ev := <-ch
	if ev.Kind != "conn.state_changed" {
		t.Errorf("kind = %s", ev.Kind)
	}
	change, ok := ev.Payload.(StateChange)
	if !ok {
		t.Fatalf("payload = %T", ev.Payload)
	}
	if change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %+v", change)
	}
}
