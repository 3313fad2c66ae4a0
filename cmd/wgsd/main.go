package main

import (
	"log"

	"github.com/joho/godotenv"

	"wgsd/cmd/internal/app"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
