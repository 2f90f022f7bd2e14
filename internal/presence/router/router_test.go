package router

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"clinic-sync/backend/internal/presence/broadcaster"
	"clinic-sync/backend/internal/presence/channel"
	"clinic-sync/backend/internal/presence/domain"
	visitdomain "clinic-sync/backend/internal/visit/domain"
	visitservice "clinic-sync/backend/internal/visit/service"
	"clinic-sync/backend/internal/visit/store"
)

// loopbackChannel dispatches sent events straight to its registered handlers,
// standing in for the hub fan-out between two terminals.
type loopbackChannel struct {
	handlers map[domain.EventType][]channel.Handler
	onCalls  int
}

func newLoopback() *loopbackChannel {
	return &loopbackChannel{handlers: make(map[domain.EventType][]channel.Handler)}
}

func (l *loopbackChannel) Connect(ctx context.Context) error { return nil }
func (l *loopbackChannel) Send(evt domain.Event) error {
	for _, h := range l.handlers[evt.Type] {
		h(evt)
	}
	return nil
}
func (l *loopbackChannel) On(t domain.EventType, h channel.Handler) {
	l.onCalls++
	l.handlers[t] = append(l.handlers[t], h)
}
func (l *loopbackChannel) Close() error { return nil }

func deliver(r *Router, evt domain.Event) {
	ch := newLoopback()
	r.Subscribe(ch)
	_ = ch.Send(evt)
}

func remoteEvent(t domain.EventType, operatorID, subjectID string, payload map[string]any) domain.Event {
	return domain.Event{
		Type:         t,
		OperatorID:   operatorID,
		OperatorName: "dr. Ayu",
		SubjectID:    subjectID,
		Payload:      payload,
		Timestamp:    time.Now(),
	}
}

func TestRouter_IgnoresOwnEvents(t *testing.T) {
	r := New("op-self")
	ch := newLoopback()
	r.Subscribe(ch)

	_ = ch.Send(remoteEvent(domain.EventOperatorOnline, "op-self", "", nil))
	_ = ch.Send(remoteEvent(domain.EventPatientSelected, "op-self", "p1", map[string]any{"patientName": "Siti"}))

	if r.OnlineCount() != 0 {
		t.Error("own online event should not appear in the read-model")
	}
	if _, ok := r.ActiveVisit("p1"); ok {
		t.Error("own patient selection should not appear in the read-model")
	}
}

func TestRouter_OnlineOfflineLifecycle(t *testing.T) {
	r := New("op-self")
	ch := newLoopback()
	r.Subscribe(ch)

	_ = ch.Send(remoteEvent(domain.EventOperatorOnline, "op-2", "", nil))
	_ = ch.Send(remoteEvent(domain.EventOperatorOnline, "op-2", "", nil)) // duplicate
	if r.OnlineCount() != 1 {
		t.Errorf("online = %d, want 1 (duplicates are idempotent)", r.OnlineCount())
	}

	_ = ch.Send(remoteEvent(domain.EventOperatorOffline, "op-2", "", nil))
	if r.OnlineCount() != 0 {
		t.Errorf("online = %d, want 0 after offline", r.OnlineCount())
	}

	// Offline for an unknown operator is a no-op, not an error.
	_ = ch.Send(remoteEvent(domain.EventOperatorOffline, "op-9", "", nil))
	if r.OnlineCount() != 0 {
		t.Errorf("online = %d, want 0", r.OnlineCount())
	}
}

func TestRouter_LastArrivalWins(t *testing.T) {
	r := New("op-self")
	ch := newLoopback()
	r.Subscribe(ch)

	first := remoteEvent(domain.EventStageUpdated, "op-2", "p1",
		map[string]any{"stage": "anamnesa", "patientName": "Siti"})
	second := remoteEvent(domain.EventStageUpdated, "op-3", "p1",
		map[string]any{"stage": "lab", "patientName": "Siti"})
	// The later arrival carries an older origin timestamp; arrival order still
	// wins.
	second.Timestamp = first.Timestamp.Add(-time.Minute)

	_ = ch.Send(first)
	_ = ch.Send(second)

	v, ok := r.ActiveVisit("p1")
	if !ok {
		t.Fatal("visit should be recorded")
	}
	if v.OperatorID != "op-3" || v.Stage != "lab" {
		t.Errorf("visit = %+v, want the last-arrived op-3/lab", v)
	}
}

func TestRouter_PatientSelectedKeepsKnownName(t *testing.T) {
	r := New("op-self")
	ch := newLoopback()
	r.Subscribe(ch)

	_ = ch.Send(remoteEvent(domain.EventPatientSelected, "op-2", "p1",
		map[string]any{"patientName": "Siti"}))
	_ = ch.Send(remoteEvent(domain.EventStageUpdated, "op-2", "p1",
		map[string]any{"stage": "physical"}))

	v, _ := r.ActiveVisit("p1")
	if v.PatientName != "Siti" {
		t.Errorf("patient name = %q, want Siti carried over from the earlier event", v.PatientName)
	}
	if v.Stage != "physical" {
		t.Errorf("stage = %q, want physical", v.Stage)
	}
}

func TestRouter_VisitCompletedRemovesEntry(t *testing.T) {
	r := New("op-self")
	ch := newLoopback()
	r.Subscribe(ch)

	_ = ch.Send(remoteEvent(domain.EventPatientSelected, "op-2", "p1",
		map[string]any{"patientName": "Siti"}))
	_ = ch.Send(remoteEvent(domain.EventVisitCompleted, "op-2", "p1", nil))

	if _, ok := r.ActiveVisit("p1"); ok {
		t.Error("completed visit should be gone from the read-model")
	}
}

func TestRouter_HandoffHookFires(t *testing.T) {
	r := New("op-self")
	var gotPatient, gotName, gotOperator string
	r.SetHandoffFunc(func(patientID, patientName, operatorName string) {
		gotPatient, gotName, gotOperator = patientID, patientName, operatorName
	})

	deliver(r, remoteEvent(domain.EventPatientSelected, "op-2", "p1",
		map[string]any{"patientName": "Siti"}))

	if gotPatient != "p1" || gotName != "Siti" || gotOperator != "dr. Ayu" {
		t.Errorf("handoff = (%s, %s, %s), want (p1, Siti, dr. Ayu)", gotPatient, gotName, gotOperator)
	}
}

func TestRouter_ChatDeliveredInArrivalOrder(t *testing.T) {
	r := New("op-self")
	var order []domain.EventType
	r.SetChatFunc(func(evt domain.Event) { order = append(order, evt.Type) })
	ch := newLoopback()
	r.Subscribe(ch)

	_ = ch.Send(remoteEvent(domain.EventTyping, "op-2", "", nil))
	_ = ch.Send(remoteEvent(domain.EventChatMessage, "op-2", "", map[string]any{"text": "lab done"}))
	_ = ch.Send(remoteEvent(domain.EventStoppedTyping, "op-2", "", nil))

	want := []domain.EventType{domain.EventTyping, domain.EventChatMessage, domain.EventStoppedTyping}
	if len(order) != len(want) {
		t.Fatalf("delivered = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivered[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestRouter_SubscribeIdempotent(t *testing.T) {
	r := New("op-self")
	ch := newLoopback()

	r.Subscribe(ch)
	registered := ch.onCalls
	r.Subscribe(ch)

	if ch.onCalls != registered {
		t.Errorf("On calls = %d after resubscribe, want %d (no duplicate handlers)", ch.onCalls, registered)
	}

	_ = ch.Send(remoteEvent(domain.EventOperatorOnline, "op-2", "", nil))
	if r.OnlineCount() != 1 {
		t.Errorf("online = %d, want 1", r.OnlineCount())
	}
}

func TestRouter_Seed(t *testing.T) {
	r := New("op-self")

	r.Seed([]domain.OperatorPresence{
		{OperatorID: "op-self", OperatorName: "me"},
		{OperatorID: "op-2", OperatorName: "dr. Ayu"},
		{OperatorID: "op-3", OperatorName: "bidan Rina"},
	})

	ops := r.OnlineOperators()
	if len(ops) != 2 {
		t.Fatalf("online = %d, want 2 (self excluded)", len(ops))
	}
	// Sorted by name.
	if ops[0].OperatorName != "bidan Rina" || ops[1].OperatorName != "dr. Ayu" {
		t.Errorf("order = %s, %s; want bidan Rina, dr. Ayu", ops[0].OperatorName, ops[1].OperatorName)
	}
}

// Two terminals sharing one fan-out: a save on terminal A updates terminal B's
// read-model but leaves B's own visit session untouched.
func TestRouter_RemoteEventsNeverTouchLocalSession(t *testing.T) {
	ch := newLoopback()

	// Terminal B: its own active session, plus a router for remote awareness.
	storeB := store.New(afero.NewMemMapFs(), "sessions")
	svcB := visitservice.NewStageService(storeB, broadcaster.New(ch, broadcaster.Identity{
		OperatorID: "op-b", OperatorName: "bidan Rina",
	}))
	svcB.SelectPatient(visitdomain.Patient{ID: "p-local", Name: "Dewi"})

	routerB := New("op-b")
	routerB.Subscribe(ch)

	// Terminal A announces its own work over the same fan-out.
	svcA := visitservice.NewStageService(
		store.New(afero.NewMemMapFs(), "sessions"),
		broadcaster.New(ch, broadcaster.Identity{OperatorID: "op-a", OperatorName: "dr. Ayu"}),
	)
	svcA.SelectPatient(visitdomain.Patient{ID: "p-remote", Name: "Siti"})

	v, ok := routerB.ActiveVisit("p-remote")
	if !ok || v.OperatorID != "op-a" {
		t.Fatalf("visit = %+v (%v), want op-a working p-remote", v, ok)
	}

	sessB := storeB.Load()
	if sessB == nil || sessB.Patient == nil || sessB.Patient.ID != "p-local" {
		t.Fatalf("terminal B session = %+v, remote events must not touch it", sessB)
	}
}
