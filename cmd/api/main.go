// Package main provides the entry point for the Harmonia server application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/di"
	"github.com/harmoniaapp/harmonia-server/internal/library"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
)

func main() {
	injector := di.NewContainer()

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	// Initial index fill; the watcher keeps it current afterwards.
	scanner := do.MustInvoke[*library.Scanner](injector)
	go func() {
		if _, err := scanner.Scan(context.Background()); err != nil {
			log.Error("initial library scan failed", "error", err)
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutting down", "signal", sig.String())

	// Shutdown walks providers in reverse initialization order: HTTP
	// server first, then janitor/watcher, job registry, and stores.
	if report := injector.Shutdown(); report != nil && !report.Succeed {
		log.Error("Shutdown error", "report", report.Error())
		os.Exit(1)
	}

	log.Info("Goodbye")
}
