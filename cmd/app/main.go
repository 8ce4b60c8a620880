package main

import (
	"flag"
	"log"
	"os"

	"SignalGate/internal/di"
	"SignalGate/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s mode=%s telemetry=%s symbols=%v",
		cfg.Environment, cfg.Trading.Mode, cfg.Telemetry.Backend, cfg.Stream.Symbols)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until a signal arrives or every loop hit max_cycles.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
