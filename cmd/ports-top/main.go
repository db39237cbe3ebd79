package main

import (
	"flag"
	"log"

	"ports/internal/app"
	"ports/internal/config"
	"ports/internal/logging"
	"ports/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// The dashboard owns the terminal; keep log lines out of it.
	if cfg.Logging.Output == "stderr" || cfg.Logging.Output == "" {
		cfg.Logging.Output = "discard"
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logging.Close()

	controller := app.New(app.Options{Config: cfg})
	if err := tui.Run(controller, tui.Options{Interval: cfg.RefreshInterval}); err != nil {
		log.Fatalf("dashboard exited with error: %v", err)
	}
}
