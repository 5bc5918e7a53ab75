package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/bazaar/internal/tui/ui"
)

func TestHandleEventPrefersView(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "quit" }})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "back" }})
	r.AddView("rooms", &Action{Key: tcell.KeyEnter, Handler: func() { got = "open" }})

	if !r.handle("thread", tcell.KeyRune, 'q') || got != "back" {
		t.Fatalf("thread q = %q", got)
	}
	if !r.handle("rooms", tcell.KeyRune, 'q') || got != "quit" {
		t.Fatalf("rooms q = %q", got)
	}
	if !r.handle("rooms", tcell.KeyEnter, 0) || got != "open" {
		t.Fatalf("rooms enter = %q", got)
	}
	if r.handle("rooms", tcell.KeyRune, 'x') {
		t.Fatal("unbound key handled")
	}
}

func TestHintsOrderAndDedup(t *testing.T) {
	r := NewRegistry()
	noop := func() {}
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true, Handler: noop})
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true, Handler: noop})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true, Handler: noop})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "Back", Visible: true, Handler: noop})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'x', Description: "Hidden", Handler: noop})

	for i := 0; i < 5; i++ {
		hints := r.Hints("thread")
		want := []ui.MenuHint{
			{Key: "i", Description: "Compose"},
			{Key: "q", Description: "Back"},
			{Key: "?", Description: "Help"},
		}
		if len(hints) != len(want) {
			t.Fatalf("hints = %+v", hints)
		}
		for j := range want {
			if hints[j] != want[j] {
				t.Fatalf("hint %d = %+v, want %+v", j, hints[j], want[j])
			}
		}
	}
}

func TestMerge(t *testing.T) {
	base := []ui.MenuHint{{Key: "Enter", Description: "Open"}}
	extra := []ui.MenuHint{{Key: "Enter", Description: "Other"}, {Key: "?", Description: "Help"}}
	got := Merge(base, extra)
	if len(got) != 2 || got[0].Description != "Open" || got[1].Key != "?" {
		t.Fatalf("Merge = %+v", got)
	}
}
