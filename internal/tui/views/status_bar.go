package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/prodevopz/prochat/internal/conn"
)

// StatusBar displays persistent profile/connection status plus the
// current notice.
type StatusBar struct {
	*tview.TextView
	profile string
	state   conn.State
	notice  string
	urgent  bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, state: conn.Disconnected}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetConnState updates the connection indicator.
func (sb *StatusBar) SetConnState(state conn.State) {
	sb.state = state
	sb.render()
}

// SetNotice sets the transient notice shown at the end of the bar.
// urgent renders it as an error.
func (sb *StatusBar) SetNotice(text string, urgent bool) {
	sb.notice = text
	sb.urgent = urgent
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	stateIcon := "[red]●[-]"
	switch sb.state {
	case conn.Connected:
		stateIcon = "[green]●[-]"
	case conn.Connecting:
		stateIcon = "[yellow]●[-]"
	}

	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s %s | %s", sb.profile, stateIcon, sb.state, clock)
	if sb.notice != "" {
		color := "yellow"
		if sb.urgent {
			color = "red"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(sb.notice))
	}

	_, _ = fmt.Fprint(sb, line)
}
