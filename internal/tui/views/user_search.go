package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/rivo/tview"
)

// UserSearch lists user search results; selecting one starts a chat.
type UserSearch struct {
	*tview.Table
	theme    *ui.Theme
	query    string
	users    []chat.User
	cached   bool
	onSelect func(chat.User)
}

// NewUserSearch creates the user search results view.
func NewUserSearch(theme *ui.Theme) *UserSearch {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Users ")
	table.SetTitleColor(theme.TitleColor)

	us := &UserSearch{Table: table, theme: theme}
	table.SetSelectedFunc(func(row, _ int) {
		if u, ok := us.UserAt(row); ok && us.onSelect != nil {
			us.onSelect(u)
		}
	})
	return us
}

// Hints implements ui.Page.
func (us *UserSearch) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Chat"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnSelect sets the callback invoked when a user is chosen.
func (us *UserSearch) SetOnSelect(fn func(chat.User)) {
	us.onSelect = fn
}

// Update shows results for query. cached marks results served from the
// local peer cache because the backend was unreachable.
func (us *UserSearch) Update(query string, users []chat.User, cached bool) {
	us.query = query
	us.users = users
	us.cached = cached
	us.render()
}

// UserAt returns the user on a table row.
func (us *UserSearch) UserAt(row int) (chat.User, bool) {
	if row < 1 || row > len(us.users) {
		return chat.User{}, false
	}
	return us.users[row-1], true
}

func (us *UserSearch) render() {
	us.Clear()

	headers := []string{" NAME", " USERNAME", " EMAIL"}
	for col, h := range headers {
		us.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(us.theme.TableHeaderFg).
			SetBackgroundColor(us.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}
	for i, u := range us.users {
		row := i + 1
		us.SetCell(row, 0, tview.NewTableCell(" "+display(u.DisplayName())).SetExpansion(1).SetTextColor(us.theme.FgColor))
		us.SetCell(row, 1, tview.NewTableCell(" "+display(u.Username)).SetExpansion(1).SetTextColor(us.theme.FgColor))
		us.SetCell(row, 2, tview.NewTableCell(" "+display(u.Email)).SetExpansion(1).SetTextColor(us.theme.FgColor))
	}

	title := fmt.Sprintf(" Users matching %q (%d) ", us.query, len(us.users))
	if us.cached {
		title = fmt.Sprintf(" Users matching %q (%d, offline) ", us.query, len(us.users))
	}
	us.SetTitle(tview.Escape(title))
	if len(us.users) > 0 {
		us.Select(1, 0)
	}
}
