package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/attention.report/api"
	"github.com/banshee-data/attention.report/internal/config"
	"github.com/banshee-data/attention.report/internal/db"
	"github.com/banshee-data/attention.report/internal/vision"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "reports.db", "Path to sqlite database")
	tuningFile = flag.String("tuning", "", "Path to tuning config JSON (defaults when empty)")
	adminDebug = flag.Bool("admin-debug", false, "Attach /debug admin routes (tailsql, backup)")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrateCommand(os.Args[2:])
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	pipelineCfg := vision.DefaultPipelineConfig()
	if *tuningFile != "" {
		tuning, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		pipelineCfg = vision.PipelineConfigFromTuning(tuning)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	server := api.NewServer(database, pipelineCfg)
	mux := server.ServeMux()
	if *adminDebug {
		database.AttachAdminRoutes(mux)
	}

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Starting HTTP server on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Printf("server stopped")
}

// runMigrateCommand handles 'attention-report migrate <action>' dispatching.
func runMigrateCommand(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("db", "reports.db", "Path to sqlite database")
	dir := fs.String("migrations", "migrations", "Path to migrations directory")
	fs.Parse(args)

	if fs.NArg() < 1 {
		printMigrateHelp()
		os.Exit(1)
	}

	database, err := db.NewDB(*path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action := fs.Arg(0); action {
	case "up":
		if err := database.MigrateUp(*dir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("all migrations applied")

	case "down":
		if err := database.MigrateDown(*dir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("migration rolled back")

	case "status":
		version, dirty, err := database.MigrateVersion(*dir)
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)

	case "force":
		if fs.NArg() < 2 {
			log.Fatal("Usage: attention-report migrate force <version>")
		}
		version, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			log.Fatalf("Invalid version number: %s", fs.Arg(1))
		}
		if err := database.MigrateForce(*dir, version); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("migration version forced to %d", version)

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		printMigrateHelp()
		os.Exit(1)
	}
}

func printMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: attention-report migrate [flags] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up           Apply all pending migrations")
	fmt.Println("  down         Rollback one migration")
	fmt.Println("  status       Show current migration version and dirty state")
	fmt.Println("  force <N>    Force migration version to N (recovery only)")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -db <path>           Path to database file (default: reports.db)")
	fmt.Println("  -migrations <path>   Path to migrations directory (default: migrations)")
}
