// One-shot maintenance tool: prints every message of a session in
// insertion order.
//
//	go run ./cmd/scripts/inspect_sessions -session <id>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/blocktales/storyteller/internal/db"
	"github.com/blocktales/storyteller/internal/store"
	"github.com/blocktales/storyteller/internal/utils"
)

func main() {
	sessionID := flag.String("session", "", "session id to inspect")
	flag.Parse()

	if *sessionID == "" {
		log.Fatal("usage: inspect_sessions -session <id>")
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		log.Fatalf("mongo: failed to connect: %v", err)
	}
	defer mongoStore.Close(context.Background())

	messages := store.NewMongoStore(mongoStore.Database)

	list, err := messages.ListBySession(ctx, *sessionID)
	if err != nil {
		log.Fatalf("list messages: %v", err)
	}

	if len(list) == 0 {
		fmt.Printf("session %s has no messages\n", *sessionID)
		return
	}

	for i, msg := range list {
		fmt.Printf("%3d  %s  [%s]  %s\n", i+1, msg.CreatedAt.Format(time.RFC3339), msg.Role, msg.Content)
	}
}
