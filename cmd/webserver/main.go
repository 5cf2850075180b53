//go:build linux

package main

import (
	"log"

	"github.com/xiaqy71/myWebServer/app"
	"github.com/xiaqy71/myWebServer/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Server init failed: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
