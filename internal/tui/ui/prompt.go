package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode indicates what the prompt's text is used for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	PromptSearch
)

const promptHistorySize = 50

// Prompt is the input bar for commands, room filters and user searches.
// Each mode keeps its own history, recalled with Up and Down.
type Prompt struct {
	*tview.InputField
	theme       *Theme
	mode        PromptMode
	history     map[PromptMode][]string
	cursor      int
	completions []string
	onSubmit    func(mode PromptMode, text string)
	onCancel    func()
}

// NewPrompt creates a new prompt input bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{
		InputField: input,
		theme:      theme,
		history:    make(map[PromptMode][]string),
	}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			p.submit(p.GetText())
		case tcell.KeyEscape:
			p.SetText("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		// Up and Down belong to the completion list while it is open.
		if p.mode == PromptCommand && len(p.complete(p.GetText())) > 0 {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyUp:
			p.SetText(p.recall(-1))
			return nil
		case tcell.KeyDown:
			p.SetText(p.recall(1))
			return nil
		}
		return ev
	})
	input.SetAutocompleteFunc(func(text string) []string {
		if p.mode != PromptCommand {
			return nil
		}
		return p.complete(text)
	})

	return p
}

// SetOnSubmit sets the callback when the prompt is submitted.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback when the prompt is cancelled.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// SetCompletions sets the command names offered while typing a command.
func (p *Prompt) SetCompletions(names []string) {
	p.completions = names
}

// Activate shows the prompt in the specified mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.cursor = len(p.history[mode])
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter rooms ")
	case PromptSearch:
		p.SetLabel("@")
		p.SetTitle(" Find user ")
	}
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

// History returns the entries submitted in mode, oldest first.
func (p *Prompt) History(mode PromptMode) []string {
	return append([]string(nil), p.history[mode]...)
}

func (p *Prompt) submit(raw string) {
	text := strings.TrimSpace(raw)
	p.SetText("")
	if text == "" {
		return
	}
	h := p.history[p.mode]
	if len(h) == 0 || h[len(h)-1] != text {
		h = append(h, text)
		if len(h) > promptHistorySize {
			h = h[len(h)-promptHistorySize:]
		}
		p.history[p.mode] = h
	}
	p.cursor = len(h)
	if p.onSubmit != nil {
		p.onSubmit(p.mode, text)
	}
}

// recall moves through the history of the current mode. Moving past the
// newest entry yields an empty line.
func (p *Prompt) recall(step int) string {
	h := p.history[p.mode]
	p.cursor = max(0, min(len(h), p.cursor+step))
	if p.cursor == len(h) {
		return ""
	}
	return h[p.cursor]
}

func (p *Prompt) complete(text string) []string {
	if text == "" || strings.Contains(text, " ") {
		return nil
	}
	var out []string
	for _, name := range p.completions {
		if strings.HasPrefix(name, strings.ToLower(text)) && name != text {
			out = append(out, name)
		}
	}
	return out
}
