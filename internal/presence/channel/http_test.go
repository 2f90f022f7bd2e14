package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sse"

	"clinic-sync/backend/internal/presence/domain"
)

// hubStub serves the stream and events endpoints the way the hub does.
type hubStub struct {
	mu       sync.Mutex
	received []domain.Event
	stream   []domain.Event
}

func (h *hubStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(eventsPath, func(w http.ResponseWriter, r *http.Request) {
		var evt domain.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		h.received = append(h.received, evt)
		h.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc(streamPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		// A heartbeat comment first; the parser must skip it.
		_, _ = w.Write([]byte(": ping\n\n"))
		flusher.Flush()
		for _, evt := range h.stream {
			_ = sse.Encode(w, sse.Event{Event: string(evt.Type), Data: evt})
			flusher.Flush()
		}
		// Hold the stream open briefly so the client reads everything.
		time.Sleep(100 * time.Millisecond)
	})
	return mux
}

func (h *hubStub) events() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event(nil), h.received...)
}

func TestSend_BeforeConnectRejected(t *testing.T) {
	c := NewHTTP("http://localhost:0", "token")
	err := c.Send(domain.Event{Type: domain.EventChatMessage})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestSend_AfterCloseRejected(t *testing.T) {
	stub := &hubStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewHTTP(srv.URL, "token")
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	if err := c.Send(domain.Event{Type: domain.EventChatMessage}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected after close", err)
	}
}

func TestConnect_Idempotent(t *testing.T) {
	stub := &hubStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewHTTP(srv.URL, "token")
	defer c.Close()
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Errorf("second Connect = %v, want nil no-op", err)
	}
}

func TestSend_StampsTerminalID(t *testing.T) {
	stub := &hubStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewHTTP(srv.URL, "token")
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.Send(domain.Event{Type: domain.EventChatMessage, OperatorID: "op-1"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if got := stub.events(); len(got) == 1 {
			if got[0].TerminalID != c.TerminalID() {
				t.Errorf("terminalId = %s, want %s", got[0].TerminalID, c.TerminalID())
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("event never reached the hub")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSend_OutboxFullDropsEvent(t *testing.T) {
	// Connected flag set by hand; no loops are draining the outbox.
	c := NewHTTP("http://localhost:0", "token")
	c.connected = true

	var full bool
	for i := 0; i < outboxSize+1; i++ {
		if err := c.Send(domain.Event{Type: domain.EventTyping}); err != nil {
			if !errors.Is(err, ErrOutboxFull) {
				t.Fatalf("err = %v, want ErrOutboxFull", err)
			}
			full = true
		}
	}
	if !full {
		t.Error("outbox never reported full")
	}
}

func TestReceive_DispatchesStreamedEvents(t *testing.T) {
	stub := &hubStub{stream: []domain.Event{
		{Type: domain.EventOperatorOnline, OperatorID: "op-2", OperatorName: "bidan Rina"},
		{Type: domain.EventStageUpdated, OperatorID: "op-2", SubjectID: "p1",
			Payload: map[string]any{"stage": "lab"}},
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := NewHTTP(srv.URL, "token")
	defer c.Close()

	var mu sync.Mutex
	var got []domain.Event
	record := func(evt domain.Event) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	}
	c.On(domain.EventOperatorOnline, record)
	c.On(domain.EventStageUpdated, record)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("dispatched %d events, want 2", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Type != domain.EventOperatorOnline || got[1].Type != domain.EventStageUpdated {
		t.Errorf("events = %+v, want online then stage-updated", got)
	}
	if got[1].Payload["stage"] != "lab" {
		t.Errorf("payload = %v, want stage lab", got[1].Payload)
	}
}
