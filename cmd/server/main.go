// Package main is the entry point for the recipe-list server.
//
// main stays minimal:
// 1. Read configuration (environment, optional .env)
// 2. Create the logger
// 3. Build and start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/recipe-list/internal/config"
	"github.com/sakif/recipe-list/internal/logger"
	"github.com/sakif/recipe-list/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, closeLog, err := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		ToStdout: cfg.Log.ToStdout,
		Dir:      cfg.Log.Dir,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}
}
