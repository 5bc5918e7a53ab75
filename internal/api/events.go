package api

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chatws"
	"github.com/matheus3301/bazaar/internal/rpc"
	"github.com/matheus3301/bazaar/internal/status"
)

// envelope wraps a bus event for streaming.
func envelope(e bus.Event) (*rpc.EventEnvelope, error) {
	payload := e.Payload
	switch p := e.Payload.(type) {
	case status.Change:
		payload = rpc.StateChange{From: string(p.From), To: string(p.To)}
	case chatws.ReconnectScheduled:
		payload = rpc.ReconnectScheduled{Attempt: p.Attempt, DelayMs: p.Delay.Milliseconds()}
	case error:
		payload = p.Error()
	}

	env := &rpc.EventEnvelope{
		EventID:          uuid.NewString(),
		Kind:             e.Kind,
		OccurredAtUnixMs: e.Timestamp.UnixMilli(),
		RoomID:           e.RoomID,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = data
	}
	return env, nil
}
