package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the messages of one room and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	room     chat.Room
	selfID   int64
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := composer.GetText()
		if text != "" {
			mt.onSend(text)
			composer.SetText("")
		}
	})

	return mt
}

func (mt *MessageThread) title() string {
	if mt.room.PeerDisplayName != "" {
		return mt.room.PeerDisplayName
	}
	return "Messages"
}

// Hints implements ui.Page.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetRoom binds the thread to a room.
func (mt *MessageThread) SetRoom(r chat.Room) {
	mt.room = r
	mt.messages.SetTitle(fmt.Sprintf(" %s ", display(mt.title())))
}

// Room returns the room the thread shows.
func (mt *MessageThread) Room() chat.Room {
	return mt.room
}

// SetSelf sets the logged-in user id used to tell own messages apart.
func (mt *MessageThread) SetSelf(userID int64) {
	mt.selfID = userID
}

// SetOnSend sets the callback invoked when the composer submits.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update redraws the thread. Messages arrive oldest first; a separator
// line marks each new day.
func (mt *MessageThread) Update(msgs []chat.Message) {
	mt.messages.Clear()
	now := time.Now()
	lastDay := ""

	for i := range msgs {
		m := &msgs[i]
		if t := chat.ParseDate(m.Date); !t.IsZero() {
			if day := t.Local().Format("Mon Jan 2 2006"); day != lastDay {
				lastDay = day
				_, _ = fmt.Fprintf(mt.messages, "[%s::d]--- %s ---[-:-:-]\n\n", hexColor(mt.theme.BorderColor), day)
			}
		}

		sender, color := mt.author(m)
		line := fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			hexColor(color), display(sender), formatDate(m.Date, now), display(m.Body))
		_, _ = fmt.Fprint(mt.messages, line)
	}

	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) author(m *chat.Message) (string, tcell.Color) {
	if mt.selfID != 0 && m.Author() == mt.selfID {
		return "You", mt.theme.OwnMessageColor
	}
	if mt.room.PeerDisplayName != "" {
		return mt.room.PeerDisplayName, mt.theme.PeerMessageColor
	}
	return fmt.Sprintf("user %d", m.Author()), mt.theme.PeerMessageColor
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func hexColor(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
