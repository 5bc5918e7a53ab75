package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Hints implements ui.Page.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpSection struct {
	title string
	rows  [][2]string
}

var helpSections = []helpSection{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"/", "Filter rooms"},
		{"?", "Help"},
		{"Esc", "Cancel / go back"},
		{"q", "Quit / back"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Rooms", [][2]string{
		{"Enter", "Open room"},
		{"1-9", "Jump to Nth room"},
		{"0", "Clear filter"},
		{"n", "Find a user and start a chat"},
		{"r", "Refresh from the backend"},
	}},
	{"Room", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send (in composer)"},
		{"d", "Room details"},
		{"Esc", "Leave composer / room"},
	}},
	{"Commands", [][2]string{
		{":search <query>", "Search users"},
		{":room <id|name>", "Open a room"},
		{":login", "Sign in"},
		{":logout", "Sign out"},
		{":connect", "Open the chat socket"},
		{":disconnect", "Close the chat socket"},
		{":refresh", "Reload rooms"},
		{":help", "Show this help"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := hexColor(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
