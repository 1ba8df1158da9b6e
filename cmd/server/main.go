// cmd/server/main.go
package main

import (
	"log"

	"github.com/ch2church/worship-storyboard/internal/app"
	"github.com/ch2church/worship-storyboard/internal/config"
)

func main() {
	log.Println("starting worship storyboard server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	log.Printf("configuration loaded: port %s, store %s, locale %s", cfg.Port, cfg.StoreBackend, cfg.DocLocale)

	if err := app.Initialize(cfg); err != nil {
		log.Fatalf("initialize: %v", err)
	}

	log.Printf("listening on http://localhost:%s", cfg.Port)
	if err := app.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("server stopped")
}
