// Package handler exposes the hub's HTTP API: operator login, the SSE
// presence stream, event ingest, and the presence snapshot.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"clinic-sync/backend/internal/hub"
	identityservice "clinic-sync/backend/internal/identity/service"
	"clinic-sync/backend/internal/presence/domain"
	"clinic-sync/backend/internal/server/middleware"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// Pinger is the readiness check dependency (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server holds the hub handler dependencies.
type Server struct {
	auth     *identityservice.AuthService
	registry *hub.Registry
	pinger   Pinger
}

// NewServer returns the hub HTTP handlers. pinger may be nil; readiness then
// skips the DB check.
func NewServer(auth *identityservice.AuthService, registry *hub.Registry, pinger Pinger) *Server {
	return &Server{auth: auth, registry: registry, pinger: pinger}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	OperatorID   string    `json:"operatorId"`
	OperatorName string    `json:"operatorName"`
	Role         string    `json:"role"`
}

// Login verifies operator credentials and returns a token pair.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	res, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identityservice.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Printf("hub handler: login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

// Refresh exchanges a refresh token for a fresh token pair.
func (s *Server) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
		return
	}
	res, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, identityservice.ErrInvalidRefreshToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		log.Printf("hub handler: refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

// Stream subscribes the calling terminal to the presence fan-out and streams
// events over SSE until the client disconnects. Nothing is replayed: the
// stream starts at "now".
func (s *Server) Stream(c *gin.Context) {
	operatorID, operatorName, ok := middleware.Operator(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing operator identity"})
		return
	}
	flusher, canFlush := c.Writer.(http.Flusher)
	if !canFlush {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	terminalID, events := s.registry.Subscribe(c.GetHeader("X-Terminal-ID"), operatorID, operatorName)
	defer s.registry.Unsubscribe(terminalID)

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt := <-events:
			if err := sse.Encode(c.Writer, sse.Event{Event: string(evt.Type), Data: evt}); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// PublishEvent validates and fans out one presence event. The operator
// identity is stamped from the access token, not trusted from the body, so a
// terminal cannot impersonate another operator.
func (s *Server) PublishEvent(c *gin.Context) {
	operatorID, operatorName, ok := middleware.Operator(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing operator identity"})
		return
	}
	var evt domain.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	if !evt.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}
	evt.OperatorID = operatorID
	evt.OperatorName = operatorName
	if tid := c.GetHeader("X-Terminal-ID"); tid != "" {
		evt.TerminalID = tid
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	s.registry.Publish(evt)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Operators returns the online-operator snapshot terminals seed their
// read-model from before the stream is live.
func (s *Server) Operators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operators": s.registry.Snapshot()})
}

// Healthz reports liveness and, when a DB is wired, readiness.
func (s *Server) Healthz(c *gin.Context) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toTokenResponse(res *identityservice.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		OperatorID:   res.OperatorID,
		OperatorName: res.OperatorName,
		Role:         res.Role,
	}
}
