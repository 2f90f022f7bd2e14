// seed creates an operator account so a terminal can sign in.
// Usage: go run ./cmd/seed -username budi -name "Budi S." -role doctor -password secret
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"

	"clinic-sync/backend/internal/config"
	"clinic-sync/backend/internal/db"
	"clinic-sync/backend/internal/identity/domain"
	identityrepo "clinic-sync/backend/internal/identity/repository"
	"clinic-sync/backend/internal/security"
)

func main() {
	username := flag.String("username", "", "login username (required)")
	name := flag.String("name", "", "display name (required)")
	role := flag.String("role", "doctorassistant", "operator role")
	password := flag.String("password", "", "password (required)")
	flag.Parse()

	if *username == "" || *name == "" || *password == "" {
		log.Fatal("seed: -username, -name and -password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("seed: DATABASE_URL is required")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("seed: db: %v", err)
	}
	defer conn.Close()

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(*password))
	if err != nil {
		log.Fatalf("seed: hash: %v", err)
	}

	op := &domain.Operator{
		ID:           uuid.NewString(),
		Username:     *username,
		Name:         *name,
		Role:         *role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := identityrepo.NewPostgresRepository(conn).Create(ctx, op); err != nil {
		log.Fatalf("seed: create operator: %v", err)
	}
	log.Printf("seed: operator %s (%s) created", op.Username, op.ID)
}
