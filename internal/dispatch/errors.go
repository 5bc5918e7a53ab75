package dispatch

import (
	"errors"
	"fmt"

	"github.com/matheus3301/bazaar/internal/chat"
)

var (
	// ErrEmptyMessage is returned by Send for blank bodies.
	ErrEmptyMessage = errors.New("message body is empty")
	// ErrNoUser is returned by Send before a user is set.
	ErrNoUser = errors.New("no signed-in user")

	errStaleSession = errors.New("user changed while the request was in flight")
)

// InvalidFrameError reports an inbound frame rejected before it reached
// the store.
type InvalidFrameError struct {
	Frame  chat.Frame
	Reason string
}

func (e *InvalidFrameError) Error() string {
	return fmt.Sprintf("invalid frame id=%d: %s", e.Frame.ID, e.Reason)
}

// HistoryFetchError reports a failed history request. The room is left
// untouched so the next open retries.
type HistoryFetchError struct {
	RoomID int64
	Err    error
}

func (e *HistoryFetchError) Error() string {
	return fmt.Sprintf("fetch history of room %d: %v", e.RoomID, e.Err)
}

func (e *HistoryFetchError) Unwrap() error { return e.Err }
