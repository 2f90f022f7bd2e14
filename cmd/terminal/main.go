// Terminal is the headless terminal agent: it recovers any persisted visit
// session, signs in to the hub, joins the presence channel, and logs what the
// other terminals are doing. Useful as a diagnostic client and as the wiring
// reference for UI embedders.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"clinic-sync/backend/internal/config"
	"clinic-sync/backend/internal/presence/broadcaster"
	"clinic-sync/backend/internal/presence/channel"
	presencedomain "clinic-sync/backend/internal/presence/domain"
	"clinic-sync/backend/internal/presence/router"
	visitservice "clinic-sync/backend/internal/visit/service"
	"clinic-sync/backend/internal/visit/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.TerminalUsername == "" || cfg.TerminalPassword == "" {
		log.Fatal("terminal: TERMINAL_USERNAME and TERMINAL_PASSWORD are required")
	}

	sessions := store.New(afero.NewOsFs(), cfg.SessionDir)
	guard := visitservice.NewRecoveryGuard(sessions)
	if sess := guard.Recover(); sess != nil {
		log.Printf("terminal: resuming visit for patient %s (%s)", sess.Patient.Name, sess.Patient.ID)
	} else {
		log.Println("terminal: no session to resume, starting at patient selection")
	}

	auth, err := login(cfg.HubURL, cfg.TerminalUsername, cfg.TerminalPassword)
	if err != nil {
		log.Fatalf("terminal: login: %v", err)
	}
	log.Printf("terminal: signed in as %s (%s)", auth.OperatorName, auth.OperatorID)

	ch := channel.NewHTTP(cfg.HubURL, auth.AccessToken)

	r := router.New(auth.OperatorID)
	r.SetHandoffFunc(func(patientID, patientName, operatorName string) {
		log.Printf("terminal: %s selected patient %s (%s)", operatorName, patientName, patientID)
	})
	r.SetChatFunc(func(evt presencedomain.Event) {
		log.Printf("terminal: chat %s from %s", evt.Type, evt.OperatorName)
	})
	r.Subscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ch.Connect(ctx); err != nil {
		log.Fatalf("terminal: connect: %v", err)
	}
	defer ch.Close()

	if snapshot, err := fetchSnapshot(cfg.HubURL, auth.AccessToken); err != nil {
		log.Printf("terminal: snapshot unavailable, read-model starts empty: %v", err)
	} else {
		r.Seed(snapshot)
		log.Printf("terminal: %d operator(s) already online", len(snapshot))
	}

	// The stage service is what a UI embedder drives; the broadcaster behind
	// it announces local saves to the rest of the clinic.
	bc := broadcaster.New(ch, broadcaster.Identity{
		OperatorID:   auth.OperatorID,
		OperatorName: auth.OperatorName,
	})
	_ = visitservice.NewStageService(sessions, bc)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("terminal: shutting down")
}

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	OperatorID   string `json:"operatorId"`
	OperatorName string `json:"operatorName"`
}

func login(hubURL, username, password string) (*authResponse, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimSuffix(hubURL, "/")+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub returned %s", resp.Status)
	}
	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func fetchSnapshot(hubURL, accessToken string) ([]presencedomain.OperatorPresence, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimSuffix(hubURL, "/")+"/api/v1/presence/operators", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub returned %s", resp.Status)
	}
	var out struct {
		Operators []presencedomain.OperatorPresence `json:"operators"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Operators, nil
}
