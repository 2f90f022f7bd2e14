// Package hub implements the server side of the presence channel: a registry
// of connected terminals and the event fan-out between them. The hub is not a
// durable log — events are delivered to whoever is connected right now and
// are gone afterwards.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinic-sync/backend/internal/presence/domain"
	"clinic-sync/backend/internal/telemetry"
)

// subscriberBuffer bounds undelivered events per terminal. A terminal that
// cannot keep up misses events instead of stalling the fan-out.
const subscriberBuffer = 32

type subscriber struct {
	terminalID   string
	operatorID   string
	operatorName string
	connectedAt  time.Time
	events       chan domain.Event
}

// Registry tracks connected terminals and fans events out to them.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*subscriber

	emitter telemetry.EventEmitter
	nowF    func() time.Time
}

// NewRegistry returns an empty registry. emitter may be nil; ops telemetry is
// then skipped.
func NewRegistry(emitter telemetry.EventEmitter) *Registry {
	return &Registry{
		subs:    make(map[string]*subscriber),
		emitter: emitter,
		nowF:    time.Now,
	}
}

// Subscribe registers a terminal connection for the given operator and
// announces operator-online to everyone else. It returns the terminal id
// (generated when empty, e.g. a bare diagnostic client) and the event stream
// for that terminal. Call Unsubscribe with the returned id when the
// connection ends.
func (r *Registry) Subscribe(terminalID, operatorID, operatorName string) (string, <-chan domain.Event) {
	if terminalID == "" {
		terminalID = uuid.NewString()
	}
	sub := &subscriber{
		terminalID:   terminalID,
		operatorID:   operatorID,
		operatorName: operatorName,
		connectedAt:  r.nowF(),
		events:       make(chan domain.Event, subscriberBuffer),
	}

	r.mu.Lock()
	r.subs[terminalID] = sub
	r.mu.Unlock()

	r.Publish(domain.Event{
		Type:         domain.EventOperatorOnline,
		OperatorID:   operatorID,
		OperatorName: operatorName,
		TerminalID:   terminalID,
		Timestamp:    r.nowF(),
	})
	r.emitOps(operatorID, terminalID, "terminal_connected")
	metricConnectedTerminals.Set(float64(r.ConnectedTerminals()))
	return terminalID, sub.events
}

// Unsubscribe removes the terminal and announces operator-offline to the
// remaining terminals. Safe to call for an unknown id.
func (r *Registry) Unsubscribe(terminalID string) {
	r.mu.Lock()
	sub, ok := r.subs[terminalID]
	if ok {
		delete(r.subs, terminalID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.Publish(domain.Event{
		Type:         domain.EventOperatorOffline,
		OperatorID:   sub.operatorID,
		OperatorName: sub.operatorName,
		TerminalID:   terminalID,
		Timestamp:    r.nowF(),
	})
	r.emitOps(sub.operatorID, terminalID, "terminal_disconnected")
	metricConnectedTerminals.Set(float64(r.ConnectedTerminals()))
}

// Publish fans evt out to every connected terminal except the origin. The
// send never blocks: a subscriber with a full buffer is skipped and simply
// misses the event.
func (r *Registry) Publish(evt domain.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, sub := range r.subs {
		if id == evt.TerminalID {
			continue
		}
		select {
		case sub.events <- evt:
		default:
			log.Printf("hub: dropping %s for slow terminal %s", evt.Type, id)
			metricEventsDropped.Inc()
		}
	}
	metricEventsPublished.WithLabelValues(string(evt.Type)).Inc()
}

// Snapshot returns the currently connected operators, one entry per terminal.
func (r *Registry) Snapshot() []domain.OperatorPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.OperatorPresence, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, domain.OperatorPresence{
			OperatorID:   sub.operatorID,
			OperatorName: sub.operatorName,
			ConnectedAt:  sub.connectedAt,
		})
	}
	return out
}

// ConnectedTerminals returns the number of live terminal connections.
func (r *Registry) ConnectedTerminals() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) emitOps(operatorID, terminalID, eventType string) {
	if r.emitter == nil {
		return
	}
	telemetry.EmitAsync(r.emitter, context.Background(), &telemetry.OpsEvent{
		EventType:  eventType,
		OperatorID: operatorID,
		TerminalID: terminalID,
		Source:     "hub",
		CreatedAt:  r.nowF().UTC(),
	})
}
