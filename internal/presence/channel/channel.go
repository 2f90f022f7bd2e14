// Package channel provides the presence channel: the single bidirectional
// real-time connection a terminal shares with all other terminals. It is the
// only I/O boundary of the terminal core.
package channel

import (
	"context"
	"errors"

	"clinic-sync/backend/internal/presence/domain"
)

var (
	// ErrNotConnected is returned by Send before Connect has been called or
	// after Close.
	ErrNotConnected = errors.New("presence channel: not connected")
	// ErrOutboxFull is returned by Send when the in-flight outbox is full;
	// the event is dropped, not queued for replay.
	ErrOutboxFull = errors.New("presence channel: outbox full, event dropped")
)

// Handler receives one incoming event. Handlers run on the channel's receive
// goroutine and must not block.
type Handler func(evt domain.Event)

// Channel is the terminal's connection to the presence fan-out.
//
// Connect is idempotent: calling it again on a connected channel is a no-op,
// so application start can expose a single guarded entry point instead of
// scattering boolean flags. Reconnects after transport drops are the
// implementation's concern and replay no missed events.
type Channel interface {
	// Connect establishes the connection and starts delivery. Subsequent
	// calls return nil without creating duplicate subscriptions.
	Connect(ctx context.Context) error
	// Send enqueues one event for transmission. It never blocks; when the
	// channel is down or the outbox is full the event is dropped and a typed
	// error returned.
	Send(evt domain.Event) error
	// On registers a handler for an event type. Registration is independent
	// of connection state and survives reconnects; registering before
	// Connect is the normal pattern.
	On(t domain.EventType, h Handler)
	// Close tears the connection down. Safe to call more than once.
	Close() error
}
