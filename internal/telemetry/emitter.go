// Package telemetry emits best-effort operational events from the hub
// (terminal connects/disconnects). Emission never blocks or fails a request;
// callers log and ignore errors.
package telemetry

import (
	"context"
	"time"
)

// OpsEvent is one operational event. Distinct from presence events: ops
// events are a durable mirror for dashboards, presence events are ephemeral.
type OpsEvent struct {
	EventType  string    `json:"eventType"`
	OperatorID string    `json:"operatorId,omitempty"`
	TerminalID string    `json:"terminalId,omitempty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EventEmitter emits ops events (e.g. to Kafka). Best-effort; callers log and
// ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *OpsEvent) error
}
