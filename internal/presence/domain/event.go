// Package domain defines the presence events exchanged between terminals.
// Events are ephemeral: transmitted once, never persisted, never retried.
package domain

import "time"

// EventType identifies what a presence event announces.
type EventType string

const (
	EventPatientSelected EventType = "patient-selected"
	EventStageUpdated    EventType = "stage-updated"
	EventVisitCompleted  EventType = "visit-completed"
	EventOperatorOnline  EventType = "operator-online"
	EventOperatorOffline EventType = "operator-offline"
	EventChatMessage     EventType = "chat-message"
	EventTyping          EventType = "typing"
	EventStoppedTyping   EventType = "stopped-typing"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventPatientSelected, EventStageUpdated, EventVisitCompleted,
		EventOperatorOnline, EventOperatorOffline,
		EventChatMessage, EventTyping, EventStoppedTyping:
		return true
	}
	return false
}

// Event is one presence event on the channel.
//
// Timestamp is origin-assigned and used only for display ordering; receivers
// never compare timestamps to resolve conflicts (clock skew across terminals
// makes that unsafe). TerminalID identifies the origin connection so the hub
// can exclude it from fan-out.
type Event struct {
	Type         EventType      `json:"type"`
	OperatorID   string         `json:"operatorId"`
	OperatorName string         `json:"operatorName"`
	TerminalID   string         `json:"terminalId,omitempty"`
	SubjectID    string         `json:"subjectId,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// OperatorPresence is one entry of the online-operator snapshot and
// read-model.
type OperatorPresence struct {
	OperatorID   string    `json:"operatorId"`
	OperatorName string    `json:"operatorName"`
	ConnectedAt  time.Time `json:"connectedAt"`
}
