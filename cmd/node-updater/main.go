package main

import (
	"github.com/joho/godotenv"

	"github.com/oshokin/node-updater/cmd/node-updater/cmd"
)

func main() {
	// Secrets like the alert webhook URL may live in a .env file next to
	// the binary instead of the YAML settings.
	_ = godotenv.Load()

	cmd.Execute()
}
