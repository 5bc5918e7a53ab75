package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a stack-based page manager wrapping tview.Pages. A page appears
// in the stack at most once.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates a new stack-based page manager.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
	}
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. If name is already in the stack,
// the pages above it are dropped instead.
func (p *Pages) Push(name string) {
	if p.Contains(name) {
		p.PopTo(name)
		return
	}
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	p.stack = append(p.stack, name)
	p.showTop()
	p.notify()
}

// Pop removes the top page and shows the previous one.
// Returns the name of the popped page, or empty if stack is empty.
func (p *Pages) Pop() string {
	if len(p.stack) == 0 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.showTop()
	p.notify()
	return top
}

// PopTo pops pages until name is on top and returns the popped names,
// topmost first. Nothing happens when name is not in the stack.
func (p *Pages) PopTo(name string) []string {
	i := slices.Index(p.stack, name)
	if i < 0 {
		return nil
	}
	var popped []string
	for j := len(p.stack) - 1; j > i; j-- {
		p.HidePage(p.stack[j])
		popped = append(popped, p.stack[j])
	}
	p.stack = p.stack[:i+1]
	p.showTop()
	if len(popped) > 0 {
		p.notify()
	}
	return popped
}

// Contains reports whether name is somewhere in the stack.
func (p *Pages) Contains(name string) bool {
	return slices.Contains(p.stack, name)
}

// Current returns the name of the current (top) page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the current page stack.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset clears the stack and shows only the given page.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.showTop()
	p.notify()
}

func (p *Pages) showTop() {
	if top := p.Current(); top != "" {
		p.ShowPage(top)
		p.SendToFront(top)
	}
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
