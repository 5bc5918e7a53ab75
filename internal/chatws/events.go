package chatws

import (
	"time"

	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/status"
)

// Event is delivered to handlers registered with RegisterEventHandler.
// FrameReceived events come from the single read goroutine, in arrival
// order. State events come from whichever goroutine caused the transition.
type Event interface {
	event()
}

// FrameReceived carries one decoded inbound frame.
type FrameReceived struct {
	Frame chat.Frame
}

// StateChanged reports a connection state transition.
type StateChanged struct {
	From status.State
	To   status.State
}

// ReconnectScheduled reports that a reconnect dial will run after Delay.
type ReconnectScheduled struct {
	Attempt int
	Delay   time.Duration
}

func (FrameReceived) event()      {}
func (StateChanged) event()       {}
func (ReconnectScheduled) event() {}
