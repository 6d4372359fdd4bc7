package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/prodevopz/prochat/internal/store"
)

// SearchView lets the user look up people and add them as friends.
type SearchView struct {
	*tview.Flex
	input   *tview.InputField
	results *tview.Table
	matches []store.Friend
	onQuery func(query string)
	onAdd   func(userID string)
}

// NewSearchView creates a new search view.
func NewSearchView() *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	results.SetBorder(true).SetTitle(" People ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		input:   input,
		results: results,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(input.GetText())
		}
	})

	results.SetSelectedFunc(func(row, col int) {
		idx := row - 1
		if idx >= 0 && idx < len(sv.matches) && sv.onAdd != nil {
			sv.onAdd(sv.matches[idx].UserID)
		}
	})

	return sv
}

// SetOnQuery sets the callback when a query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// SetOnAdd sets the callback when a result is picked.
func (sv *SearchView) SetOnAdd(fn func(userID string)) {
	sv.onAdd = fn
}

// Update refreshes the result table.
func (sv *SearchView) Update(matches []store.Friend) {
	sv.matches = matches
	sv.results.Clear()

	sv.results.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	sv.results.SetCell(0, 1, tview.NewTableCell(" User ID").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	if len(matches) == 0 {
		sv.results.SetCell(1, 0, tview.NewTableCell(" no matches").SetSelectable(false))
		return
	}
	for i, m := range matches {
		sv.results.SetCell(i+1, 0, tview.NewTableCell(" "+m.Name).SetExpansion(1))
		sv.results.SetCell(i+1, 1, tview.NewTableCell(" "+m.UserID))
	}
}

// Reset clears the query and results.
func (sv *SearchView) Reset() {
	sv.input.SetText("")
	sv.Update(nil)
}

// Input returns the query field for focus handling.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Results returns the result table for focus handling.
func (sv *SearchView) Results() *tview.Table { return sv.results }
