package chatws

import "time"

// Options tune the connection manager. Zero fields take the defaults.
type Options struct {
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	WriteWait            time.Duration
	PongWait             time.Duration
	MaxFrameSize         int64
}

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = 3 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteWait            = 10 * time.Second
	DefaultPongWait             = 60 * time.Second
	DefaultMaxFrameSize         = 64 * 1024
)

func (o Options) withDefaults() Options {
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	// Pings must go out before the peer's read deadline expires.
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	return o
}
