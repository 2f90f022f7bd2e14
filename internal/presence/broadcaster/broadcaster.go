// Package broadcaster publishes typed presence events whenever the local
// session changes in a way other terminals care about. Broadcasting is
// fire-and-forget: it never blocks the caller and never surfaces an error to
// clinical flow.
package broadcaster

import (
	"log"
	"time"

	"clinic-sync/backend/internal/presence/channel"
	"clinic-sync/backend/internal/presence/domain"
)

// Identity is the signed-in operator stamped on outgoing events. It comes
// from the authentication collaborator and is read-only here.
type Identity struct {
	OperatorID   string
	OperatorName string
}

// Delivery is the typed outcome of one broadcast. Sent false means the event
// was dropped at the transport boundary; there is no retry, so callers treat
// delivery as not guaranteed either way.
type Delivery struct {
	Sent bool
	Err  error
}

// Broadcaster stamps and sends presence events over the channel.
type Broadcaster struct {
	ch   channel.Channel
	id   Identity
	nowF func() time.Time
}

// New returns a Broadcaster sending as the given operator.
func New(ch channel.Channel, id Identity) *Broadcaster {
	return &Broadcaster{ch: ch, id: id, nowF: time.Now}
}

// Broadcast constructs an event stamped with the operator identity and the
// origin time and sends it once. A transport failure is logged and reported
// in the Delivery; it is never raised to the caller and the event is not
// queued for replay.
func (b *Broadcaster) Broadcast(t domain.EventType, subjectID string, payload map[string]any) Delivery {
	evt := domain.Event{
		Type:         t,
		OperatorID:   b.id.OperatorID,
		OperatorName: b.id.OperatorName,
		SubjectID:    subjectID,
		Payload:      payload,
		Timestamp:    b.nowF(),
	}
	if err := b.ch.Send(evt); err != nil {
		log.Printf("broadcaster: %s not delivered: %v", t, err)
		return Delivery{Sent: false, Err: err}
	}
	return Delivery{Sent: true}
}
