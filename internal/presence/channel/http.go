package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"clinic-sync/backend/internal/presence/domain"
)

const (
	streamPath = "/api/v1/presence/stream"
	eventsPath = "/api/v1/presence/events"

	// outboxSize bounds in-flight sends. Events beyond it are dropped, never
	// queued for replay.
	outboxSize = 64

	sendTimeout = 5 * time.Second
)

// HTTPChannel is the Channel implementation over the hub's HTTP API: an SSE
// stream for receiving and POSTs for sending. Dropped connections reconnect
// transparently with exponential backoff; a terminal that was briefly
// disconnected simply misses the intervening events.
type HTTPChannel struct {
	baseURL    string
	token      string
	terminalID string
	client     *http.Client

	mu        sync.RWMutex
	handlers  map[domain.EventType][]Handler
	connected bool
	cancel    context.CancelFunc

	outbox chan domain.Event
}

// NewHTTP returns an HTTPChannel for the hub at baseURL, authenticating with
// the given access token. Each HTTPChannel is one terminal connection,
// identified by a fresh terminal id.
func NewHTTP(baseURL, accessToken string) *HTTPChannel {
	return &HTTPChannel{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      accessToken,
		terminalID: uuid.NewString(),
		client:     &http.Client{},
		handlers:   make(map[domain.EventType][]Handler),
		outbox:     make(chan domain.Event, outboxSize),
	}
}

// TerminalID returns the id identifying this connection to the hub.
func (c *HTTPChannel) TerminalID() string { return c.terminalID }

// Connect starts the send and receive loops. Idempotent: a second call on a
// connected channel returns nil and starts nothing.
func (c *HTTPChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.connected = true
	go c.sendLoop(runCtx)
	go c.receiveLoop(runCtx)
	return nil
}

// Send enqueues evt for transmission. The origin terminal id is stamped here
// so the hub can exclude this connection from fan-out.
func (c *HTTPChannel) Send(evt domain.Event) error {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}
	evt.TerminalID = c.terminalID
	select {
	case c.outbox <- evt:
		return nil
	default:
		return ErrOutboxFull
	}
}

// On registers h for events of type t.
func (c *HTTPChannel) On(t domain.EventType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

// Close stops both loops. Safe to call more than once.
func (c *HTTPChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.cancel()
	return nil
}

func (c *HTTPChannel) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.outbox:
			if err := c.post(ctx, evt); err != nil {
				// Fire-and-forget: no retry, no replay queue.
				log.Printf("presence channel: send failed, event dropped: %v", err)
			}
		}
	}
}

func (c *HTTPChannel) post(ctx context.Context, evt domain.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	postCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, c.baseURL+eventsPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Terminal-ID", c.terminalID)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hub returned %s", resp.Status)
	}
	return nil
}

// receiveLoop keeps one SSE stream open, reconnecting with exponential
// backoff after transport drops. Handlers stay registered across reconnects,
// so resubscription happens exactly once per connect; missed events are not
// replayed.
func (c *HTTPChannel) receiveLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 10 * time.Second
	for {
		start := time.Now()
		err := c.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("presence channel: stream dropped: %v", err)
		}
		if time.Since(start) > bo.MaxInterval {
			// The connection was healthy for a while; start backing off fresh.
			bo.Reset()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// streamOnce opens the SSE stream and dispatches events until the connection
// drops or ctx is canceled.
func (c *HTTPChannel) streamOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+streamPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Terminal-ID", c.terminalID)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub returned %s", resp.Status)
	}

	// Incremental SSE frame parsing: gin-contrib/sse only decodes a whole
	// stream at EOF, which never comes on a live connection.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.dispatch(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: fields and ":" heartbeats carry nothing we use.
		}
	}
	return scanner.Err()
}

func (c *HTTPChannel) dispatch(raw string) {
	var evt domain.Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		log.Printf("presence channel: dropping malformed event: %v", err)
		return
	}
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[evt.Type]...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
}
