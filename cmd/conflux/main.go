package main

import (
	"os"

	"github.com/harun/conflux/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
