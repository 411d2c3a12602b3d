/*
main.go - Loading service entry point

PURPOSE:
  Initializes and starts the SNAP QC data loading service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Optionally seed the standard reference codes
  4. Create API handler and job manager
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: snapqc.db)
           Use ":memory:" for in-memory database
  -data    Directory load requests may read files from (default: ./data)
  -seed    Seed the standard reference code set on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit
  Background load jobs run to completion or roll back; a killed process
  leaves no partial file behind either way.

EXAMPLES:
  # Run with file database, seed references
  ./server -db="./data/snapqc.db" -seed

  # Run on a different port against another extract directory
  ./server -port=3000 -data=/srv/extracts

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stperic/snapqc/api"
	"github.com/stperic/snapqc/etl"
	"github.com/stperic/snapqc/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "snapqc.db", "SQLite database path")
	dataDir := flag.String("data", "./data", "directory containing source extract files")
	seed := flag.Bool("seed", false, "seed the standard reference codes on startup")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *seed {
		if err := store.SeedDefaultReferences(context.Background()); err != nil {
			log.Fatalf("Failed to seed reference codes: %v", err)
		}
		log.Println("Reference codes seeded")
	}

	// Initialize handler
	handler := api.NewHandler(store, etl.NewManager(), *dataDir)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
