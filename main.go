package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sidereal-data/drift.report/internal/api"
	"github.com/sidereal-data/drift.report/internal/config"
	"github.com/sidereal-data/drift.report/internal/obsdb"
	"github.com/sidereal-data/drift.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "observations.db", "Path to the observations database")
	configPath = flag.String("config", "", "Path to the tuning config JSON (optional)")
	framesDir  = flag.String("frames", "", "Restrict frame access to this directory (optional)")
)

func main() {
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "migrate":
			runMigrateCommand(args[1:], *dbPath)
			return
		case "version":
			fmt.Printf("driftd %s\n", version.String())
			return
		}
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	database, err := obsdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := api.NewServer(database, cfg, *framesDir).ServeMux()
	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("driftd %s listening on %s (db %s)", version.Version, *listen, *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func runMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		log.Fatal("Usage: driftd migrate <up|down|version|force>")
	}

	database, err := obsdb.OpenRaw(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrateAction(database, args[0], args[1:]); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func runMigrateAction(database *obsdb.DB, action string, args []string) error {
	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		log.Println("migrations applied")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		log.Println("rolled back one migration")
	case "version":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			return err
		}
		log.Printf("schema version %d (dirty=%v)", version, dirty)
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("usage: driftd migrate force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return database.MigrateForce(version)
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return nil
}
