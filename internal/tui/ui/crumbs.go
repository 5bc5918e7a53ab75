package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Crumbs is the breadcrumb bar above the page area.
type Crumbs struct {
	*tview.TextView
	theme  *Theme
	labels map[string]string
	stack  []string
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
		labels:   make(map[string]string),
	}
}

// SetLabel shows label instead of the page name, e.g. the peer of the open
// room. An empty label restores the page name.
func (c *Crumbs) SetLabel(page, label string) {
	if label == "" {
		delete(c.labels, page)
	} else {
		c.labels[page] = label
	}
	c.render()
}

// Update renders the trail for the page stack.
func (c *Crumbs) Update(stack []string) {
	c.stack = append(c.stack[:0], stack...)
	c.render()
}

// Text returns the trail without color tags.
func (c *Crumbs) Text() string {
	names := make([]string, len(c.stack))
	for i, p := range c.stack {
		names[i] = c.label(p)
	}
	return strings.Join(names, " > ")
}

func (c *Crumbs) label(page string) string {
	if l, ok := c.labels[page]; ok {
		return page + ": " + l
	}
	return page
}

func (c *Crumbs) render() {
	c.Clear()
	parts := make([]string, 0, len(c.stack))
	for i, page := range c.stack {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(c.stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]",
			colorName(fg), colorName(bg), attr, tview.Escape(c.label(page))))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}

// colorName returns a tview color tag value for c.
func colorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
