// Command geomcp serves the location-analysis tools over MCP on stdio.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/nyashahama/geoanalyzer/internal/config"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
	"github.com/nyashahama/geoanalyzer/internal/mcpserver"
	"github.com/nyashahama/geoanalyzer/internal/risk"
	"github.com/nyashahama/geoanalyzer/internal/tools"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Display version information")
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", mcpserver.ServerName, mcpserver.ServerVersion)
		return
	}

	// stdout carries the protocol; logs go to stderr.
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	geo, err := geodata.New(cfg.GeodataOptions(), logger)
	if err != nil {
		return fmt.Errorf("geodata: %w", err)
	}
	registry, err := tools.NewGeoRegistry(geo, risk.NewAssessor(geo, logger), logger)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	logger.Info("starting MCP server", "name", mcpserver.ServerName, "version", mcpserver.ServerVersion)
	return mcpserver.New(registry, logger).Run()
}
