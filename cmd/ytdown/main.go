package main

import (
	"log"

	"github.com/MrSnakeDoc/ytdown/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ ytdown failed to start: %v", err)
	}
}
