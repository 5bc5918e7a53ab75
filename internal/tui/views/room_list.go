package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/rivo/tview"
)

// RoomList is the main room list view.
type RoomList struct {
	*tview.Table
	theme  *ui.Theme
	rooms  []chat.Room
	filter string
}

// NewRoomList creates a new room list table.
func NewRoomList(theme *ui.Theme) *RoomList {
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
	table.SetTitle(" Rooms ")
	table.SetTitleColor(theme.TitleColor)

	return &RoomList{
		Table: table,
		theme: theme,
	}
}

// Hints implements ui.Page.
func (rl *RoomList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "n", Description: "New chat"},
		{Key: "r", Description: "Refresh"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list with new data, keeping the selected room
// selected when it is still visible.
func (rl *RoomList) Update(rooms []chat.Room) {
	selected := rl.SelectedRoom()
	rl.rooms = rooms
	rl.render()
	if selected != 0 {
		rl.Select(selected)
	}
}

// SetFilter sets the active filter text and re-renders.
func (rl *RoomList) SetFilter(filter string) {
	rl.filter = filter
	rl.render()
}

// ClearFilter clears the active filter.
func (rl *RoomList) ClearFilter() {
	rl.filter = ""
	rl.render()
}

// Select moves the cursor to the room with id.
func (rl *RoomList) Select(id int64) {
	for i, r := range rl.visible() {
		if r.ID == id {
			rl.Table.Select(i+1, 0)
			return
		}
	}
}

func (rl *RoomList) visible() []chat.Room {
	if rl.filter == "" {
		return rl.rooms
	}
	var out []chat.Room
	for _, r := range rl.rooms {
		if containsFold(r.PeerDisplayName, rl.filter) ||
			containsFold(r.PeerEmail, rl.filter) ||
			containsFold(r.LastMessagePreview, rl.filter) {
			out = append(out, r)
		}
	}
	return out
}

func (rl *RoomList) render() {
	rl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" PEER", 1},
		{" LAST MESSAGE", 2},
		{" UNREAD", 0},
		{" ROOM", 0},
	}
	for col, h := range headers {
		rl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(rl.theme.TableHeaderFg).
			SetBackgroundColor(rl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	rows := rl.visible()
	for i, r := range rows {
		row := i + 1
		name := r.PeerDisplayName
		if name == "" {
			name = fmt.Sprintf("user %d", r.PeerUserID)
		}
		fg := rl.theme.FgColor
		unread := ""
		if r.Unread > 0 {
			fg = rl.theme.UnreadColor
			unread = fmt.Sprintf("%d", r.Unread)
		}

		rl.SetCell(row, 0, tview.NewTableCell(" "+display(name)).SetExpansion(1).SetTextColor(fg))
		rl.SetCell(row, 1, tview.NewTableCell(" "+display(oneLine(r.LastMessagePreview))).SetExpansion(2).SetTextColor(rl.theme.FgColor))
		rl.SetCell(row, 2, tview.NewTableCell(unread).SetTextColor(fg).SetAlign(tview.AlignRight))
		rl.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("#%d", r.ID)).SetTextColor(rl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if rl.filter != "" {
		rl.SetTitle(fmt.Sprintf(" Rooms (%d/%d) filter: %s ", len(rows), len(rl.rooms), tview.Escape(rl.filter)))
	} else {
		rl.SetTitle(fmt.Sprintf(" Rooms (%d) ", len(rl.rooms)))
	}
}

// SelectedRoom returns the id of the room under the cursor, or 0.
func (rl *RoomList) SelectedRoom() int64 {
	row, _ := rl.GetSelection()
	return rl.RoomByIndex(row)
}

// RoomByIndex returns the id of the Nth visible room (1-based), or 0.
func (rl *RoomList) RoomByIndex(n int) int64 {
	rows := rl.visible()
	if n < 1 || n > len(rows) {
		return 0
	}
	return rows[n-1].ID
}
