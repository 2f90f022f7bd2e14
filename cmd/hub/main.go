// Hub is the presence fan-out server all clinic terminals connect to.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-sync/backend/internal/config"
	"clinic-sync/backend/internal/db"
	"clinic-sync/backend/internal/hub"
	identityrepo "clinic-sync/backend/internal/identity/repository"
	identityservice "clinic-sync/backend/internal/identity/service"
	"clinic-sync/backend/internal/security"
	"clinic-sync/backend/internal/server"
	"clinic-sync/backend/internal/server/middleware"
	"clinic-sync/backend/internal/telemetry"
	"clinic-sync/backend/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("hub: DATABASE_URL is required")
	}

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("hub: JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("hub: JWT_PUBLIC_KEY: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("hub: db: %v", err)
	}
	defer conn.Close()

	operators := identityrepo.NewPostgresRepository(conn)
	auth := identityservice.NewAuthService(operators, security.NewHasher(cfg.BcryptCost), tokens)

	var emitter telemetry.EventEmitter
	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if kafkaProducer != nil {
		emitter = kafkaProducer
		defer kafkaProducer.Close()
		log.Printf("hub: ops telemetry enabled (topic %s)", cfg.TelemetryKafkaTopic)
	}

	registry := hub.NewRegistry(emitter)

	middleware.InitMetrics()
	hub.RegisterMetrics()

	engine := server.New(server.Deps{
		Auth:             auth,
		Tokens:           tokens,
		Registry:         registry,
		Pinger:           conn,
		CORSAllowOrigins: cfg.CORSAllowOriginsList(),
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}

	go func() {
		log.Printf("hub listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down hub...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("hub stopped")
}
