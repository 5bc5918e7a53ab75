package views

import (
	"fmt"

	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/rivo/tview"
)

// RoomInfo shows the details of one room.
type RoomInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewRoomInfo creates the room details view.
func NewRoomInfo(theme *ui.Theme) *RoomInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Room ")
	tv.SetTitleColor(theme.TitleColor)
	return &RoomInfo{TextView: tv, theme: theme}
}

// Hints implements ui.Page.
func (ri *RoomInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders the room and its message count.
func (ri *RoomInfo) Update(r chat.Room, messageCount int) {
	ri.Clear()
	kc := hexColor(ri.theme.MenuKeyColor)
	row := func(label, value string) {
		_, _ = fmt.Fprintf(ri, "  [%s]%-10s[-] %s\n", kc, label, value)
	}
	_, _ = fmt.Fprint(ri, "\n")
	row("Room", fmt.Sprintf("#%d", r.ID))
	row("Peer", display(r.PeerDisplayName))
	row("Peer id", fmt.Sprintf("%d", r.PeerUserID))
	if r.PeerEmail != "" {
		row("Email", display(r.PeerEmail))
	}
	row("Unread", fmt.Sprintf("%d", r.Unread))
	row("Messages", fmt.Sprintf("%d", messageCount))
	if r.LastMessagePreview != "" {
		row("Last", display(r.LastMessagePreview))
	}
	ri.ScrollToBeginning()
}
