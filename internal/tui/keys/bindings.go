// Package keys maps key events to actions per page.
package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/bazaar/internal/tui/ui"
)

// Global is the scope consulted after the page's own bindings.
const Global = ""

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string
	Description string
	Handler     func()
	Visible     bool
	Numeric     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	return a.matches(ev.Key(), ev.Rune())
}

func (a *Action) matches(key tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && r == a.Rune
}

func (a *Action) hint() ui.MenuHint {
	label := a.Label
	if label == "" {
		label = string(a.Rune)
	}
	return ui.MenuHint{Key: label, Description: a.Description, Numeric: a.Numeric}
}

// Registry holds keybindings organized by scope. Bindings keep their
// registration order so hints render the same way every time.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(action *Action) {
	r.AddView(Global, action)
}

// AddView registers a page-specific binding.
func (r *Registry) AddView(view string, action *Action) {
	r.scopes[view] = append(r.scopes[view], action)
}

// Hints returns visible hints for view followed by global ones. A global
// hint is skipped when the view already shows the same key.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var hints []ui.MenuHint
	seen := make(map[string]bool)
	scopes := []string{view}
	if view != Global {
		scopes = append(scopes, Global)
	}
	for _, scope := range scopes {
		for _, a := range r.scopes[scope] {
			h := a.hint()
			if !a.Visible || seen[h.Key] {
				continue
			}
			seen[h.Key] = true
			hints = append(hints, h)
		}
	}
	return hints
}

// Merge appends extra to base, dropping hints whose key base already has.
func Merge(base, extra []ui.MenuHint) []ui.MenuHint {
	out := append([]ui.MenuHint(nil), base...)
	seen := make(map[string]bool, len(base))
	for _, h := range base {
		seen[h.Key] = true
	}
	for _, h := range extra {
		if !seen[h.Key] {
			seen[h.Key] = true
			out = append(out, h)
		}
	}
	return out
}

// HandleEvent dispatches a key event to the first matching action, page
// bindings first. Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	return r.handle(view, ev.Key(), ev.Rune())
}

func (r *Registry) handle(view string, key tcell.Key, ch rune) bool {
	scopes := []string{view}
	if view != Global {
		scopes = append(scopes, Global)
	}
	for _, scope := range scopes {
		for _, a := range r.scopes[scope] {
			if a.matches(key, ch) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
