package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/prodevopz/prochat/internal/store"
)

// Thread displays the messages of one conversation.
type Thread struct {
	*tview.TextView
	friendName string
}

// NewThread creates a new conversation thread view.
func NewThread() *Thread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &Thread{TextView: tv}
}

// SetFriend updates the title with the partner's name and typing state.
func (t *Thread) SetFriend(name string, typing bool) {
	t.friendName = name
	title := fmt.Sprintf(" %s ", name)
	if typing {
		title = fmt.Sprintf(" %s [green::d](typing...)[-:-:-] ", name)
	}
	t.SetTitle(title)
}

// Update refreshes the thread with new messages.
func (t *Thread) Update(msgs []store.Message) {
	t.Clear()

	for _, m := range msgs {
		sender := t.friendName
		if m.FromMe {
			sender = "You"
		}

		marker := ""
		switch m.State {
		case store.StatePending:
			marker = " [yellow::d]…[-:-:-]"
		case store.StateFailed:
			marker = " [red::b]!(not sent)[-:-:-]"
		}

		ts := formatTimestamp(m.Timestamp)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n", sender, ts, marker, tview.Escape(m.Text))
		_, _ = fmt.Fprint(t, line)
	}

	t.ScrollToEnd()
}
