// Package tui is the terminal front end. It renders snapshots from the
// chat controller and translates key events into controller intents.
// Redraws are bus-driven: any state change published by the engine, the
// roster, or the typing tracker queues a refresh.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/api"
	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/chat"
	"github.com/prodevopz/prochat/internal/notify"
	"github.com/prodevopz/prochat/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app        *tview.Application
	pages      *tview.Pages
	controller *chat.Controller
	bus        *bus.Bus
	logger     *zap.Logger
	statusBar  *views.StatusBar
	friendList *views.FriendList
	thread     *views.Thread
	composer   *views.Composer
	searchV    *views.SearchView
	profileV   *views.ProfileView
	self       api.User
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(controller *chat.Controller, b *bus.Bus, self api.User, profileName string, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		controller: controller,
		bus:        b,
		logger:     logger.Named("tui"),
		statusBar:  views.NewStatusBar(),
		friendList: views.NewFriendList(),
		thread:     views.NewThread(),
		composer:   views.NewComposer(),
		searchV:    views.NewSearchView(),
		profileV:   views.NewProfileView(),
		self:       self,
		ctx:        ctx,
		cancel:     cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.profileV.Show(self)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.friendList.SetSelectedFunc(func(row, col int) {
		if id := a.friendList.SelectedFriend(); id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		go func() {
			if err := a.controller.SendText(a.ctx, text); err != nil {
				a.logger.Warn("send failed", zap.Error(err))
			}
			a.refresh()
		}()
	})

	a.composer.SetOnChange(func(text string) {
		a.controller.InputChanged(text)
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			results, err := a.controller.Search(a.ctx, query)
			if err != nil {
				a.logger.Warn("search failed", zap.Error(err))
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Update(results)
				a.app.SetFocus(a.searchV.Results())
			})
		}()
	})

	a.searchV.SetOnAdd(func(userID string) {
		go func() {
			if err := a.controller.AddFriend(a.ctx, userID); err != nil {
				a.logger.Warn("add friend failed", zap.Error(err))
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Reset()
				a.pages.SwitchToPage("friends")
				a.app.SetFocus(a.friendList)
			})
			a.refresh()
		}()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, true)

	a.pages.AddPage("friends", a.friendList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("search", a.searchV, true, false)
	a.pages.AddPage("profile", a.profileV, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat":
				a.closeConversation()
				return nil
			case "search", "profile":
				a.pages.SwitchToPage("friends")
				a.app.SetFocus(a.friendList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if event.Key() == tcell.KeyRune && currentPage == "friends" {
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case 's':
				a.pages.SwitchToPage("search")
				a.app.SetFocus(a.searchV.Input())
				return nil
			case 'p':
				a.pages.SwitchToPage("profile")
				return nil
			case 'd':
				if id := a.friendList.SelectedFriend(); id != "" {
					go func() {
						if err := a.controller.RemoveFriend(a.ctx, id); err != nil {
							a.logger.Warn("remove friend failed", zap.Error(err))
						}
						a.refresh()
					}()
				}
				return nil
			}
		}

		return event
	})
}

func (a *App) openConversation(friendID string) {
	a.controller.SelectConversation(a.ctx, friendID)
	snap := a.controller.Snapshot()
	a.thread.SetFriend(snap.ActiveName, snap.PartnerTyping)
	a.thread.Update(snap.Messages)
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.composer.InputField)
}

func (a *App) closeConversation() {
	a.composer.SetText("")
	a.controller.CloseConversation()
	a.pages.SwitchToPage("friends")
	a.app.SetFocus(a.friendList)
}

// refresh re-renders the current page from a fresh snapshot.
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		snap := a.controller.Snapshot()

		a.statusBar.SetConnState(snap.ConnState)
		if snap.HasNotice {
			a.statusBar.SetNotice(snap.Notice.Text, snap.Notice.Level == notify.Error)
		} else {
			a.statusBar.SetNotice("", false)
		}

		currentPage, _ := a.pages.GetFrontPage()
		switch currentPage {
		case "friends":
			a.friendList.Update(snap.Friends)
		case "chat":
			a.thread.SetFriend(snap.ActiveName, snap.PartnerTyping)
			a.thread.Update(snap.Messages)
		}
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	ch, unsub := a.bus.Subscribe("", 256)

	go func() {
		defer unsub()
		// Coalesce bursts of events into one redraw.
		var pending bool
		flush := time.NewTicker(50 * time.Millisecond)
		defer flush.Stop()
		for {
			select {
			case <-ch:
				pending = true
			case <-flush.C:
				if pending {
					pending = false
					a.refresh()
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()

	// Slow ticker for the clock and notice expiry.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()

	a.refresh()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
