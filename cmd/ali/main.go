package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lgessler/ali/pkg/ali"
)

func main() {
	// Load .env if present; real environment variables take precedence.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ali.Main(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
