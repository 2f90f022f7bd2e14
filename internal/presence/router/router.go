// Package router applies incoming presence events to terminal-local
// read-models: who is online, and which patient is being seen by whom. The
// read-models are display caches rebuilt from events plus an initial REST
// snapshot; they are never the source of truth and never touch the local
// visit session.
package router

import (
	"sort"
	"sync"
	"time"

	"clinic-sync/backend/internal/presence/channel"
	"clinic-sync/backend/internal/presence/domain"
)

// RemoteVisit records which operator is working a patient, per the latest
// event received for that patient. Last event wins by arrival order, never by
// timestamp comparison, to stay immune to clock skew across terminals.
type RemoteVisit struct {
	OperatorID   string
	OperatorName string
	PatientName  string
	Stage        string
	SeenAt       time.Time
}

// Router subscribes to the presence channel once per terminal lifetime and
// maintains the remote read-models.
type Router struct {
	selfOperatorID string
	once           sync.Once

	mu     sync.RWMutex
	online map[string]domain.OperatorPresence
	visits map[string]RemoteVisit

	// handoff, when set, runs on patient-selected events from other
	// operators so the UI can offer to follow the handoff. Informational
	// only; it must not mutate the local session.
	handoff func(patientID, patientName, operatorName string)
	// chat, when set, receives chat-message/typing/stopped-typing events in
	// arrival order, without dedup. The messaging UI owns everything beyond
	// delivery.
	chat func(evt domain.Event)
}

// New returns a Router for the terminal signed in as selfOperatorID. Events
// originating from that operator are ignored: ownership of an active visit is
// per terminal, and a remote event informs but never overrides local state.
func New(selfOperatorID string) *Router {
	return &Router{
		selfOperatorID: selfOperatorID,
		online:         make(map[string]domain.OperatorPresence),
		visits:         make(map[string]RemoteVisit),
	}
}

// SetHandoffFunc installs the optional navigation hook for remote patient
// selections. Call before Subscribe.
func (r *Router) SetHandoffFunc(f func(patientID, patientName, operatorName string)) {
	r.handoff = f
}

// SetChatFunc installs the optional messaging delivery hook. Call before
// Subscribe.
func (r *Router) SetChatFunc(f func(evt domain.Event)) {
	r.chat = f
}

// Subscribe registers the router's handlers on ch. Idempotent: repeated calls
// (including across transport reconnects) register nothing twice.
func (r *Router) Subscribe(ch channel.Channel) {
	r.once.Do(func() {
		ch.On(domain.EventOperatorOnline, r.handleOperatorOnline)
		ch.On(domain.EventOperatorOffline, r.handleOperatorOffline)
		ch.On(domain.EventPatientSelected, r.handlePatientSelected)
		ch.On(domain.EventStageUpdated, r.handleStageUpdated)
		ch.On(domain.EventVisitCompleted, r.handleVisitCompleted)
		ch.On(domain.EventChatMessage, r.handleChat)
		ch.On(domain.EventTyping, r.handleChat)
		ch.On(domain.EventStoppedTyping, r.handleChat)
	})
}

// Seed loads the initial online-operator snapshot fetched over REST before
// the stream was live. Later events overwrite entries as they arrive.
func (r *Router) Seed(snapshot []domain.OperatorPresence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range snapshot {
		if p.OperatorID == r.selfOperatorID {
			continue
		}
		r.online[p.OperatorID] = p
	}
}

// OnlineOperators returns the online read-model sorted by name.
func (r *Router) OnlineOperators() []domain.OperatorPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.OperatorPresence, 0, len(r.online))
	for _, p := range r.online {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperatorName < out[j].OperatorName })
	return out
}

// OnlineCount returns how many other operators are online.
func (r *Router) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

// ActiveVisit returns who is working the given patient, if any terminal has
// announced one.
func (r *Router) ActiveVisit(patientID string) (RemoteVisit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.visits[patientID]
	return v, ok
}

// ActiveVisits returns a copy of the who-is-working-on-whom read-model keyed
// by patient id.
func (r *Router) ActiveVisits() map[string]RemoteVisit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RemoteVisit, len(r.visits))
	for k, v := range r.visits {
		out[k] = v
	}
	return out
}

func (r *Router) handleOperatorOnline(evt domain.Event) {
	if evt.OperatorID == r.selfOperatorID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[evt.OperatorID] = domain.OperatorPresence{
		OperatorID:   evt.OperatorID,
		OperatorName: evt.OperatorName,
		ConnectedAt:  evt.Timestamp,
	}
}

func (r *Router) handleOperatorOffline(evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, evt.OperatorID)
}

func (r *Router) handlePatientSelected(evt domain.Event) {
	if evt.OperatorID == r.selfOperatorID || evt.SubjectID == "" {
		return
	}
	r.recordVisit(evt, "")
	if r.handoff != nil {
		r.handoff(evt.SubjectID, payloadString(evt, "patientName"), evt.OperatorName)
	}
}

func (r *Router) handleStageUpdated(evt domain.Event) {
	if evt.OperatorID == r.selfOperatorID || evt.SubjectID == "" {
		return
	}
	r.recordVisit(evt, payloadString(evt, "stage"))
}

func (r *Router) handleVisitCompleted(evt domain.Event) {
	if evt.OperatorID == r.selfOperatorID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.visits, evt.SubjectID)
}

func (r *Router) handleChat(evt domain.Event) {
	if r.chat == nil {
		return
	}
	r.chat(evt)
}

// recordVisit applies a duplicate-safe, arrival-ordered update keyed by the
// subject patient.
func (r *Router) recordVisit(evt domain.Event, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := RemoteVisit{
		OperatorID:   evt.OperatorID,
		OperatorName: evt.OperatorName,
		PatientName:  payloadString(evt, "patientName"),
		Stage:        stage,
		SeenAt:       time.Now(),
	}
	if v.PatientName == "" {
		v.PatientName = r.visits[evt.SubjectID].PatientName
	}
	r.visits[evt.SubjectID] = v
}

func payloadString(evt domain.Event, key string) string {
	if evt.Payload == nil {
		return ""
	}
	s, _ := evt.Payload[key].(string)
	return s
}
