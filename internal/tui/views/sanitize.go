package views

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/rivo/tview"
)

// display prepares text received from the network for a tview cell:
// terminal-hostile runes are dropped and tview color tags are escaped.
func display(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}

// sanitizeForTerminal removes codepoints that break tcell rendering or the
// terminal itself:
// - control characters other than newline and tab (escape sequences)
// - skin tone modifiers (U+1F3FB..U+1F3FF)
// - zero width joiner (U+200D)
// - variation selectors (U+FE00..U+FE0F, U+E0100..U+E01EF)
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	case unicode.IsControl(r):
		return true
	case r == utf8.RuneError:
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// oneLine collapses a message body for table cells.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// formatDate renders a message date as a clock time for today and a short
// date otherwise.
func formatDate(date string, now time.Time) string {
	t := chat.ParseDate(date)
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
