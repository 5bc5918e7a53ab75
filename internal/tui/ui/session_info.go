package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Session    string
	User       string
	State      string
	Rooms      int
	Reconnects int
	Uptime     time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fg := colorName(si.theme.FgColor)
	val := colorName(si.theme.CounterColor)
	state := colorName(si.theme.StateColor(data.State))

	user := data.User
	if user == "" {
		user = "signed out"
	}
	reconnects := "-"
	if data.Reconnects > 0 {
		reconnects = fmt.Sprintf("%d", data.Reconnects)
	}

	_, _ = fmt.Fprintf(si,
		"[%[1]s::b]Session:[-:-:-] [%[2]s]%[3]s[-]\n"+
			"[%[1]s::b]User:[-:-:-]    [%[2]s]%[4]s[-]\n"+
			"[%[1]s::b]Socket:[-:-:-]  [%[5]s]%[6]s[-]\n"+
			"[%[1]s::b]Rooms:[-:-:-]   [%[2]s]%[7]d[-]\n"+
			"[%[1]s::b]Retries:[-:-:-] [%[2]s]%[8]s[-]\n"+
			"[%[1]s::b]Uptime:[-:-:-]  [%[2]s]%[9]s[-]",
		fg, val, tview.Escape(data.Session),
		tview.Escape(user),
		state, data.State,
		data.Rooms,
		reconnects,
		formatDuration(data.Uptime),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
