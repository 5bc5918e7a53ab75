package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/tui/ui"
)

func TestSanitizeForTerminal(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
		{"bell\x07 and \x1b[31mred", "bell and [31mred"},
		{"thumbs \U0001F44D\U0001F3FD", "thumbs \U0001F44D"},
		{"family \U0001F468\u200D\U0001F469", "family \U0001F468\U0001F469"},
		{"heart \u2764\uFE0F", "heart \u2764"},
	}
	for _, tc := range cases {
		if got := sanitizeForTerminal(tc.in); got != tc.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplayEscapesTags(t *testing.T) {
	got := display("[red]hi")
	if !strings.Contains(got, "[red[]") {
		t.Fatalf("display did not escape color tag: %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	now := time.Date(2026, 3, 4, 18, 0, 0, 0, time.Local)
	today := now.Add(-2 * time.Hour).Format(time.RFC3339)
	if got := formatDate(today, now); got != "16:00" {
		t.Errorf("today = %q", got)
	}
	earlier := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local).Format(time.RFC3339)
	if got := formatDate(earlier, now); got != "02/01" {
		t.Errorf("earlier = %q", got)
	}
	if got := formatDate("not a date", now); got != "" {
		t.Errorf("invalid = %q", got)
	}
}

func TestRoomListFilterAndIndex(t *testing.T) {
	rl := NewRoomList(ui.DefaultTheme())
	rl.Update([]chat.Room{
		{ID: 1, PeerDisplayName: "Alice", LastMessagePreview: "is the bike sold?"},
		{ID: 2, PeerDisplayName: "Bob", PeerEmail: "bob@example.com", Unread: 3},
		{ID: 3, PeerDisplayName: "Carol", LastMessagePreview: "bike pickup at 5"},
	})

	if got := rl.RoomByIndex(2); got != 2 {
		t.Fatalf("RoomByIndex(2) = %d", got)
	}
	if got := rl.RoomByIndex(4); got != 0 {
		t.Fatalf("RoomByIndex out of range = %d", got)
	}

	rl.SetFilter("BIKE")
	if got := rl.RoomByIndex(2); got != 3 {
		t.Fatalf("filtered RoomByIndex(2) = %d", got)
	}
	if got := rl.GetRowCount(); got != 3 {
		t.Fatalf("filtered rows = %d, want header + 2", got)
	}

	rl.SetFilter("example.com")
	if got := rl.RoomByIndex(1); got != 2 {
		t.Fatalf("email filter = %d", got)
	}

	rl.ClearFilter()
	rl.Select(3)
	if got := rl.SelectedRoom(); got != 3 {
		t.Fatalf("SelectedRoom = %d", got)
	}
}

func TestUserSearchRows(t *testing.T) {
	us := NewUserSearch(ui.DefaultTheme())
	var picked chat.User
	us.SetOnSelect(func(u chat.User) { picked = u })
	us.Update("al", []chat.User{{ID: 3, Username: "alice"}, {ID: 9, Name: "Alan"}}, true)

	u, ok := us.UserAt(2)
	if !ok || u.ID != 9 {
		t.Fatalf("UserAt(2) = %+v, %v", u, ok)
	}
	if _, ok := us.UserAt(0); ok {
		t.Fatal("header row returned a user")
	}
	if !strings.Contains(us.GetTitle(), "offline") {
		t.Fatalf("title = %q", us.GetTitle())
	}
	us.onSelect(u)
	if picked.ID != 9 {
		t.Fatalf("picked = %+v", picked)
	}
}

func TestMessageThreadMarksOwnMessages(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.SetRoom(chat.Room{ID: 5, PeerDisplayName: "Bob"})
	mt.SetSelf(3)
	mt.Update([]chat.Message{
		{ID: 1, RoomID: 5, SenderID: 8, Body: "hello"},
		{ID: 2, RoomID: 5, SenderID: 3, Body: "hi bob"},
	})
	text := mt.Messages().GetText(true)
	if !strings.Contains(text, "Bob") || !strings.Contains(text, "You") {
		t.Fatalf("thread text = %q", text)
	}
	if strings.Index(text, "hello") > strings.Index(text, "hi bob") {
		t.Fatalf("messages out of order: %q", text)
	}
}

func TestMessageThreadComposerSends(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	var sent []string
	mt.SetOnSend(func(text string) { sent = append(sent, text) })
	mt.Composer().SetText("ping")
	mt.onSend(mt.Composer().GetText())
	if len(sent) != 1 || sent[0] != "ping" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestStatusBarLine(t *testing.T) {
	sb := NewStatusBar(ui.DefaultTheme())
	sb.now = func() time.Time { return time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC) }
	sb.SetSession("work")
	sb.SetConnection("OPEN", "alice")
	sb.SetUnread(2)
	line := sb.Line()
	for _, want := range []string{"work", "OPEN", "alice", "2 unread", "09:30"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q missing %q", line, want)
		}
	}
	sb.SetConnection("", "")
	if !strings.Contains(sb.Line(), "signed out") {
		t.Errorf("signed out line = %q", sb.Line())
	}
}

func TestLoginViewSubmit(t *testing.T) {
	lv := NewLoginView(ui.DefaultTheme())
	var gotUser, gotPass string
	lv.SetOnSubmit(func(u, p string) { gotUser, gotPass = u, p })

	lv.field(0).SetText("alice")
	lv.submit()
	if gotUser != "" {
		t.Fatal("submitted without a password")
	}
	lv.field(1).SetText("secret")
	lv.submit()
	if gotUser != "alice" || gotPass != "secret" {
		t.Fatalf("submit = %q/%q", gotUser, gotPass)
	}
	if lv.field(1).GetText() != "" {
		t.Fatal("password not cleared after submit")
	}
}

func TestMessageThreadDaySeparators(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.SetRoom(chat.Room{ID: 5})
	d1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	d2 := d1.Add(26 * time.Hour)
	mt.Update([]chat.Message{
		{ID: 1, SenderID: 8, Body: "a", Date: d1.Format(time.RFC3339)},
		{ID: 2, SenderID: 8, Body: "b", Date: d1.Add(time.Minute).Format(time.RFC3339)},
		{ID: 3, SenderID: 8, Body: "c", Date: d2.Format(time.RFC3339)},
	})
	text := mt.Messages().GetText(true)
	if n := strings.Count(text, "---"); n != 4 {
		t.Fatalf("separator markers = %d in %q", n, text)
	}
	if !strings.Contains(text, "user 8") {
		t.Fatalf("unnamed peer label missing: %q", text)
	}
}
