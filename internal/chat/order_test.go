package chat

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2025-01-15T12:00:00Z", time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		{"offset", "2025-01-15T14:00:00+02:00", time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		{"local datetime", "2025-01-15T12:00:00", time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		{"fractional", "2025-01-15T12:00:00.250", time.Date(2025, 1, 15, 12, 0, 0, 250_000_000, time.UTC)},
		{"space separated", "2025-01-15 12:00:00", time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		{"garbage", "yesterday", time.Time{}},
		{"empty", "", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSortMessagesByDateThenID(t *testing.T) {
	msgs := []Message{
		{ID: 3, Date: "2025-01-15T12:00:02"},
		{ID: 2, Date: "2025-01-15T12:00:01"},
		{ID: 1, Date: "2025-01-15T12:00:01"},
		{ID: 9, Date: "2025-01-15T11:59:59Z"},
	}
	SortMessages(msgs)

	want := []int64{9, 1, 2, 3}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(msgs), want)
		}
	}
}

func TestAuthor(t *testing.T) {
	uid := int64(4)
	tests := []struct {
		name string
		msg  Message
		want int64
	}{
		{"sender id", Message{SenderID: 7, UserID: &uid}, 7},
		{"user id fallback", Message{UserID: &uid}, 4},
		{"unknown", Message{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Author(); got != tt.want {
				t.Errorf("Author() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("hello", 10); got != "hello" {
		t.Errorf("Preview short = %q", got)
	}
	if got := Preview("¡hola mundo!", 5); got != "¡hola" {
		t.Errorf("Preview long = %q, want ¡hola", got)
	}
}

func ids(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestParseDateInBackendZone(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	SetDateLocation(saoPaulo)
	t.Cleanup(func() { SetDateLocation(nil) })

	got := ParseDate("2025-01-15T09:00:00")
	if want := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ParseDate() = %v, want %v", got, want)
	}

	// A REST message written at 09:00:01 local follows an echo stamped
	// 12:00:00Z even though its wall clock reads earlier.
	msgs := []Message{
		{ID: 2, Date: "2025-01-15T09:00:01"},
		{ID: 1, Date: "2025-01-15T12:00:00Z"},
	}
	SortMessages(msgs)
	if msgs[0].ID != 1 || msgs[1].ID != 2 {
		t.Errorf("order = %v, want [1 2]", ids(msgs))
	}
}
