// Package tui is the terminal client. It renders daemon state held by a
// model.ViewModel and turns keys and : commands into daemon calls.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/tui/client"
	"github.com/matheus3301/bazaar/internal/tui/keys"
	"github.com/matheus3301/bazaar/internal/tui/model"
	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/matheus3301/bazaar/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageRooms   = "Rooms"
	pageThread  = "Room"
	pageDetails = "Details"
	pageSearch  = "Search"
	pageLogin   = "Login"
	pageHelp    = "Help"

	callTimeout = 15 * time.Second
	headerRows  = 7
	promptRows  = 3
)

// App is the main TUI application shell.
type App struct {
	app    *tview.Application
	theme  *ui.Theme
	logger *zap.Logger

	sessionName string
	vm          *model.ViewModel
	registry    *keys.Registry

	pages       *ui.Pages
	components  map[string]ui.Page
	primitives  map[string]tview.Primitive
	main        *tview.Flex
	crumbs      *ui.Crumbs
	menu        *ui.Menu
	sessionInfo *ui.SessionInfo
	prompt      *ui.Prompt
	flashBar    *ui.FlashBar
	statusBar   *views.StatusBar

	rooms   *views.RoomList
	thread  *views.MessageThread
	details *views.RoomInfo
	search  *views.UserSearch
	login   *views.LoginView
	help    *views.HelpView

	promptOpen bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		theme:       theme,
		logger:      logger,
		sessionName: sessionName,
		vm:          model.NewViewModel(c),
		registry:    keys.NewRegistry(),
		pages:       ui.NewPages(),
		crumbs:      ui.NewCrumbs(theme),
		menu:        ui.NewMenu(theme, headerRows-1),
		sessionInfo: ui.NewSessionInfo(theme),
		prompt:      ui.NewPrompt(theme),
		flashBar:    ui.NewFlashBar(theme),
		statusBar:   views.NewStatusBar(theme),
		rooms:       views.NewRoomList(theme),
		thread:      views.NewMessageThread(theme),
		details:     views.NewRoomInfo(theme),
		search:      views.NewUserSearch(theme),
		login:       views.NewLoginView(theme),
		help:        views.NewHelpView(theme),
		ctx:         ctx,
		cancel:      cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupPages()
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupPages() {
	a.components = map[string]ui.Page{
		pageRooms:   a.rooms,
		pageThread:  a.thread,
		pageDetails: a.details,
		pageSearch:  a.search,
		pageLogin:   a.login,
		pageHelp:    a.help,
	}
	a.primitives = map[string]tview.Primitive{
		pageRooms:   a.rooms,
		pageThread:  a.thread,
		pageDetails: a.details,
		pageSearch:  a.search,
		pageLogin:   a.centered(a.login, 48, 9),
		pageHelp:    a.help,
	}
	for name, p := range a.primitives {
		a.pages.AddPage(name, p, true, false)
	}
	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.updateMenu()
	})
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true,
		Handler: func() { a.show(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Visible: true,
		Handler: a.back,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true,
		Handler: func() {
			if a.pages.Depth() > 1 {
				a.back()
				return
			}
			a.Stop()
		},
	})

	a.registry.AddView(pageRooms, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageRooms, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Description: "New chat", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptSearch) },
	})
	a.registry.AddView(pageRooms, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "Refresh", Visible: true,
		Handler: func() { a.refreshRooms(true) },
	})
	a.registry.AddView(pageRooms, &keys.Action{
		Key: tcell.KeyRune, Rune: '0', Description: "All", Numeric: true,
		Handler: a.rooms.ClearFilter,
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageRooms, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n), Numeric: true,
			Handler: func() {
				if id := a.rooms.RoomByIndex(n); id != 0 {
					a.openRoom(id)
				}
			},
		})
	}

	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Description: "Details", Visible: true,
		Handler: func() {
			a.details.Update(a.thread.Room(), len(a.vm.Messages()))
			a.show(pageDetails)
		},
	})
}

func (a *App) setupCallbacks() {
	a.rooms.SetSelectedFunc(func(row, _ int) {
		if id := a.rooms.RoomByIndex(row); id != 0 {
			a.openRoom(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			if err := a.vm.SendText(ctx, text); err != nil {
				a.vm.Flash.Err(fmt.Errorf("send failed: %w", err))
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.thread.Update(a.vm.Messages())
			})
		}()
	})

	a.search.SetOnSelect(func(u chat.User) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			room, err := a.vm.ResolveRoom(ctx, u)
			if err != nil {
				a.vm.Flash.Err(fmt.Errorf("start chat: %w", err))
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.rooms.Update(a.vm.Rooms())
				a.back()
			})
			a.openRoom(room.ID)
		}()
	})

	a.login.SetOnSubmit(func(username, password string) {
		a.vm.Flash.Info("Signing in as " + username + "...")
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			if err := a.vm.Login(ctx, username, password); err != nil {
				a.vm.Flash.Err(fmt.Errorf("sign in: %w", err))
				return
			}
			a.vm.Flash.Info("Signed in")
			a.app.QueueUpdateDraw(func() {
				a.login.Reset()
				a.renderStatus()
				a.rooms.Update(a.vm.Rooms())
				a.reset(pageRooms)
			})
		}()
	})
	a.login.SetOnCancel(func() {
		if a.loggedIn() {
			a.back()
			return
		}
		a.vm.Flash.Warn("Sign in required (Ctrl-C to quit)")
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptCommand:
			a.execCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.rooms.SetFilter(text)
		case ui.PromptSearch:
			a.runSearch(text)
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)
	a.prompt.SetCompletions([]string{
		CmdSearch, CmdRoom, CmdLogin, CmdLogout, CmdConnect,
		CmdDisconnect, CmdRefresh, CmdHelp, CmdQuit,
	})
}

func (a *App) setupLayout() {
	logo := ui.NewLogo(a.theme)
	header := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.sessionInfo, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(logo, 34, 0, false)

	a.main = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerRows, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.main, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	page := a.pages.Current()
	if a.promptOpen || page == pageLogin {
		return event
	}

	// Text inputs keep every key; Esc leaves the composer.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		if event.Key() == tcell.KeyEscape && page == pageThread {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		return event
	}

	if a.registry.HandleEvent(page, event) {
		return nil
	}
	return event
}

// centered wraps p in a fixed-size box in the middle of the page.
func (a *App) centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false), width, 0, true).
		AddItem(nil, 0, 1, false)
}

func (a *App) show(name string) {
	switch {
	case a.pages.Current() == name:
		return
	case a.pages.Contains(name):
		for _, p := range a.pages.PopTo(name) {
			a.leave(p)
		}
	default:
		a.pages.Push(name)
	}
	a.app.SetFocus(a.primitives[name])
}

func (a *App) reset(name string) {
	for _, n := range a.pages.Stack() {
		a.leave(n)
	}
	a.pages.Reset(name)
	a.app.SetFocus(a.primitives[name])
}

func (a *App) back() {
	if a.pages.Depth() <= 1 {
		return
	}
	a.leave(a.pages.Pop())
	a.app.SetFocus(a.primitives[a.pages.Current()])
}

// leave tidies up after a page that is no longer on the stack.
func (a *App) leave(page string) {
	if l, ok := a.components[page].(ui.Leaver); ok {
		l.Leave()
	}
	if page != pageThread || a.vm.ActiveRoomID() == 0 {
		return
	}
	a.crumbs.SetLabel(pageThread, "")
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := a.vm.CloseRoom(ctx); err != nil {
			a.logger.Warn("close room", zap.Error(err))
		}
	}()
}

func (a *App) openPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.promptOpen = true
	a.main.ResizeItem(a.prompt, promptRows, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.promptOpen = false
	a.main.ResizeItem(a.prompt, 0, 0)
	if p, ok := a.primitives[a.pages.Current()]; ok {
		a.app.SetFocus(p)
	}
}

func (a *App) updateMenu() {
	page := a.pages.Current()
	var hints []ui.MenuHint
	if c, ok := a.components[page]; ok {
		hints = c.Hints()
	}
	if page != pageLogin {
		hints = keys.Merge(hints, a.registry.Hints(page))
	}
	a.menu.Update(hints)
}

func (a *App) execCommand(cmd Command) {
	a.logger.Debug("command", zap.String("name", cmd.Name), zap.String("args", cmd.Args))
	switch cmd.Name {
	case CmdSearch:
		if cmd.Args == "" {
			a.openPrompt(ui.PromptSearch)
			return
		}
		a.runSearch(cmd.Args)
	case CmdRoom:
		id, ok := matchRoom(a.vm.Rooms(), cmd.Args)
		if !ok {
			a.vm.Flash.Warn("No room matches " + cmd.Args)
			return
		}
		a.openRoom(id)
	case CmdLogin:
		a.show(pageLogin)
	case CmdLogout:
		a.call("sign out", a.vm.Logout, func() {
			a.vm.Flash.Info("Signed out")
			a.renderAll()
			a.reset(pageLogin)
		})
	case CmdConnect:
		a.call("connect", a.vm.Connect, a.renderStatus)
	case CmdDisconnect:
		a.call("disconnect", a.vm.Disconnect, a.renderStatus)
	case CmdRefresh:
		a.refreshRooms(true)
	case CmdHelp:
		a.show(pageHelp)
	case CmdQuit:
		a.Stop()
	case "":
	default:
		a.vm.Flash.Warn("Unknown command: " + cmd.Name)
	}
}

// call runs fn off the UI goroutine and applies done on success.
func (a *App) call(what string, fn func(context.Context) error, done func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				a.vm.Flash.Err(fmt.Errorf("%s: %w", what, err))
			}
			return
		}
		if done != nil {
			a.app.QueueUpdateDraw(done)
		}
	}()
}

func (a *App) refreshRooms(remote bool) {
	a.call("load rooms", func(ctx context.Context) error {
		return a.vm.LoadRooms(ctx, remote)
	}, func() {
		a.rooms.Update(a.vm.Rooms())
		a.updateUnread()
	})
}

func (a *App) runSearch(query string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		users, cached, err := a.vm.SearchUsers(ctx, query)
		if err != nil {
			a.vm.Flash.Err(fmt.Errorf("search: %w", err))
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.search.Update(query, users, cached)
			a.show(pageSearch)
		})
	}()
}

func (a *App) openRoom(id int64) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := a.vm.OpenRoom(ctx, id); err != nil {
			a.vm.Flash.Err(fmt.Errorf("open room %d: %w", id, err))
			return
		}
		a.app.QueueUpdateDraw(func() {
			room, ok := a.vm.Room(id)
			if !ok {
				room = chat.Room{ID: id}
			}
			a.thread.SetRoom(room)
			a.thread.Update(a.vm.Messages())
			a.crumbs.SetLabel(pageThread, room.PeerDisplayName)
			a.rooms.Update(a.vm.Rooms())
			a.updateUnread()
			a.show(pageThread)
		})
	}()
}

func (a *App) loggedIn() bool {
	st := a.vm.Status()
	return st != nil && st.LoggedIn
}

func (a *App) renderStatus() {
	st := a.vm.Status()
	if st == nil {
		return
	}
	a.statusBar.SetConnection(st.State, st.Username)
	a.thread.SetSelf(st.UserID)
	a.sessionInfo.Update(&ui.SessionData{
		Session:    a.sessionName,
		User:       st.Username,
		State:      st.State,
		Rooms:      len(a.vm.Rooms()),
		Reconnects: st.ReconnectAttempts,
		Uptime:     time.Duration(st.UptimeMs) * time.Millisecond,
	})
}

func (a *App) updateUnread() {
	total := 0
	for _, r := range a.vm.Rooms() {
		total += r.Unread
	}
	a.statusBar.SetUnread(total)
}

func (a *App) renderAll() {
	a.renderStatus()
	a.rooms.Update(a.vm.Rooms())
	a.updateUnread()
}

// apply redraws what a model change touched. Runs on the UI goroutine.
func (a *App) apply(ch model.Change) {
	if ch.Has(model.ChangeStatus) {
		a.renderStatus()
		page := a.pages.Current()
		if !a.loggedIn() && page != pageLogin && page != pageHelp {
			a.reset(pageLogin)
		}
	}
	if ch.Has(model.ChangeRooms) {
		a.rooms.Update(a.vm.Rooms())
		a.updateUnread()
	}
	if ch.Has(model.ChangeMessages) && a.vm.ActiveRoomID() != 0 {
		a.thread.Update(a.vm.Messages())
	}
}

func (a *App) startBackground() {
	go a.vm.Watch(a.ctx, func(ch model.Change) {
		a.app.QueueUpdateDraw(func() { a.apply(ch) })
	})

	go func() {
		for {
			select {
			case msg := <-a.vm.Flash.Watch():
				a.logger.Debug("flash", zap.String("text", msg.Text))
				a.app.QueueUpdateDraw(func() { a.flashBar.Update(&msg) })
			case <-a.ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.app.QueueUpdateDraw(func() {
					a.flashBar.Update(a.vm.Flash.GetMessage())
					a.statusBar.Refresh()
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Run loads the initial state and blocks until the UI exits.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := a.vm.LoadStatus(ctx); err != nil {
			a.vm.Flash.Err(fmt.Errorf("daemon status: %w", err))
		}
		if a.loggedIn() {
			if err := a.vm.LoadRooms(ctx, false); err != nil {
				a.vm.Flash.Err(fmt.Errorf("load rooms: %w", err))
			}
		}
		a.app.QueueUpdateDraw(func() {
			a.renderAll()
			if a.loggedIn() {
				a.reset(pageRooms)
			} else {
				a.reset(pageLogin)
			}
		})
		a.startBackground()
	}()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
