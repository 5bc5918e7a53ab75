package ui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	OwnMessageColor   tcell.Color
	PeerMessageColor  tcell.Color
	UnreadColor       tcell.Color
	StateOpenColor    tcell.Color
	StateBusyColor    tcell.Color
	StateDownColor    tcell.Color
}

// DefaultTheme returns the dark theme used by bazaartui.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorOrange,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		NumericKeyColor:   tcell.ColorFuchsia,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
		OwnMessageColor:   tcell.ColorLightSkyBlue,
		PeerMessageColor:  tcell.ColorPapayaWhip,
		UnreadColor:       tcell.ColorOrange,
		StateOpenColor:    tcell.ColorLimeGreen,
		StateBusyColor:    tcell.ColorGold,
		StateDownColor:    tcell.ColorOrangeRed,
	}
}

// StateColor picks the color for a connection state name.
func (t *Theme) StateColor(state string) tcell.Color {
	switch state {
	case "OPEN":
		return t.StateOpenColor
	case "CONNECTING", "CLOSING":
		return t.StateBusyColor
	default:
		return t.StateDownColor
	}
}
