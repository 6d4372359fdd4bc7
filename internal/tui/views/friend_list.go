package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/prodevopz/prochat/internal/store"
)

// FriendList is the main friend list view (table with unread badges).
type FriendList struct {
	*tview.Table
	friends    []store.FriendEntry
	selectedFn func() (int, int)
}

// NewFriendList creates a new friend list table.
func NewFriendList() *FriendList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Friends ")

	fl := &FriendList{Table: table}
	fl.selectedFn = table.GetSelection
	return fl
}

// Update refreshes the friend list with new data.
func (fl *FriendList) Update(friends []store.FriendEntry) {
	fl.friends = friends
	fl.Clear()

	// Header row.
	fl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	fl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	fl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, f := range friends {
		row := i + 1
		name := f.Name
		if name == "" {
			name = f.UserID
		}
		if f.Unread > 0 {
			name = fmt.Sprintf("* %s (%d)", name, f.Unread)
		}

		fl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		fl.SetCell(row, 1, tview.NewTableCell(" "+truncate(f.LastText, 60)).SetMaxWidth(40).SetExpansion(2))
		fl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(f.LastAt)).SetMaxWidth(12))
	}
}

// SelectedFriend returns the id of the currently selected friend.
func (fl *FriendList) SelectedFriend() string {
	row, _ := fl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(fl.friends) {
		return fl.friends[idx].ID
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
