// Command seed creates demo users and a room and prints tokens for trying the relay
// locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/storage"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
)

func main() {
	room := flag.String("room", "demo", "room id to create")
	ttl := flag.Duration("room-ttl", 0, "room lifetime, 0 means no expiry")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(domain.RoomID(*room), *ttl); err != nil {
		log.Error().Err(err).Str("module", "seed").Msg("seed failed")
		os.Exit(1)
	}
}

func run(room domain.RoomID, ttl time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = storage.Close(db) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir := storage.NewDirectory(db)
	r := &domain.Room{ID: room, Name: string(room), IsActive: true}
	if ttl > 0 {
		exp := time.Now().Add(ttl).UTC()
		r.ExpiresAt = &exp
	}
	if err := dir.CreateRoom(ctx, r); err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	issuer := auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	users := []domain.User{
		{ID: "alice", FirstName: "Alice", LastName: "Liddell", Email: "alice@example.com"},
		{ID: "bob", FirstName: "Bob", LastName: "Builder", Email: "bob@example.com"},
	}
	fmt.Printf("room: %s\n", r.ID)
	for i := range users {
		u := &users[i]
		if err := dir.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", u.ID, err)
		}
		token, err := issuer.Issue(u.ID, u.FirstName)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", u.ID, err)
		}
		fmt.Printf("%s: %s\n", u.ID, token)
	}
	return nil
}
