package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar is the bottom line: session, connection state, user and clock.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	state   string
	user    string
	unread  int
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetConnection updates the connection state and signed-in user.
func (sb *StatusBar) SetConnection(state, user string) {
	sb.state = state
	sb.user = user
	sb.render()
}

// SetUnread updates the total unread count.
func (sb *StatusBar) SetUnread(n int) {
	sb.unread = n
	sb.render()
}

// Refresh redraws the clock.
func (sb *StatusBar) Refresh() {
	sb.render()
}

// Line returns the rendered status line.
func (sb *StatusBar) Line() string {
	state := sb.state
	if state == "" {
		state = "UNKNOWN"
	}
	user := sb.user
	if user == "" {
		user = "signed out"
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s",
		tview.Escape(sb.session), hexColor(sb.theme.StateColor(state)), state, tview.Escape(user))
	if sb.unread > 0 {
		line += fmt.Sprintf(" | [%s]%d unread[-]", hexColor(sb.theme.UnreadColor), sb.unread)
	}
	return line + " | " + sb.now().Format("15:04")
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.Line())
}
