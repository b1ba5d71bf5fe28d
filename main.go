package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/cyderes/check-export-service/internal/commands"
)

func main() {
	// A .env file is optional; the environment wins over it
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
