// main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/phuslu/log"

	"aa_exporter/internal/config"
	"aa_exporter/internal/logger"
)

var (
	version = "0.1.0"
)

func main() {
	// Load configuration from flags, environment and the optional config file
	cfg, err := config.NewConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrCleanExit) || errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Configure loggers based on configuration
	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	exporter, err := NewAAExporter(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to create exporter")
	}

	if err := exporter.Run(); err != nil {
		log.Fatal().Err(err).Msg("❌ Exporter stopped with error")
	}
}
