package main

import (
	"context"
	"flag"
	"log"

	"citypulse/server/internal/app"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "simulation config file (defaults to SIM_CONFIG or config.yaml)")
	flag.Parse()

	if err := app.Run(context.Background(), app.Config{
		Addr:       *addr,
		ConfigPath: *configPath,
	}); err != nil {
		log.Fatalf("%v", err)
	}
}
