package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

const menuColumnWidth = 22

// Menu shows keyboard hints in columns of at most rows entries.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a new menu hint area with the given height.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	if rows < 1 {
		rows = 1
	}
	return &Menu{
		TextView: tv,
		theme:    theme,
		rows:     rows,
	}
}

// Update renders hints column by column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.layout(hints))
}

func (m *Menu) layout(hints []MenuHint) string {
	keyColor := colorName(m.theme.MenuKeyColor)
	numColor := colorName(m.theme.NumericKeyColor)

	lines := make([]string, min(m.rows, len(hints)))
	for i, h := range hints {
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		plain := fmt.Sprintf("<%s> %s", h.Key, h.Description)
		pad := ""
		if n := menuColumnWidth - len([]rune(plain)); n > 0 && i+m.rows < len(hints) {
			pad = strings.Repeat(" ", n)
		}
		lines[i%m.rows] += fmt.Sprintf("[%s::b]<%s>[-:-:-] %s%s", kc, tview.Escape(h.Key), h.Description, pad)
	}
	return strings.Join(lines, "\n")
}
