// Command collabvmd runs the collaborative-VM server core: the websocket
// front door, the ops HTTP surface, and every guard-serialized VM/channel
// backing them. Startup wiring lives in internal/facade; this file only
// loads configuration and handles process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"collabvm-server/internal/config"
	"collabvm-server/internal/facade"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults built in when omitted)")
	flag.Parse()

	cfg := config.New()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("collabvmd: %v", err)
		}
		cfg = loaded
	}

	srv, err := facade.New(cfg)
	if err != nil {
		log.Fatalf("collabvmd: init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Println("collabvmd: shutting down")
		if err := srv.Stop(); err != nil {
			log.Printf("collabvmd: shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("collabvmd: %v", err)
		}
	}
}
