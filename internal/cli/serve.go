package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/RTnhN/boolbin/internal/config"
	"github.com/RTnhN/boolbin/internal/server"
	"github.com/RTnhN/boolbin/internal/store"
	"github.com/RTnhN/boolbin/internal/sweeper"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

// loadConfig builds the runtime config: defaults, then BOOLBIN_* env overrides.
func loadConfig() config.Config {
	cfg := config.Default()

	if bind := os.Getenv("BOOLBIN_BIND"); bind != "" {
		cfg.Server.Bind = bind
	}
	if port := os.Getenv("BOOLBIN_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if path := os.Getenv("BOOLBIN_DB"); path != "" {
		cfg.Database.Path = path
	}
	if days := os.Getenv("BOOLBIN_IDLE_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil && n > 0 {
			cfg.Expiry.IdleDays = n
		}
	}
	if mins := os.Getenv("BOOLBIN_SWEEP_MINUTES"); mins != "" {
		if n, err := strconv.Atoi(mins); err == nil && n > 0 {
			cfg.Expiry.SweepMinutes = n
		}
	}

	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Background gravity sweep, tied to process lifetime
	sw := sweeper.New(db, cfg.SweepInterval())
	sw.Start()
	defer sw.Stop()

	srv := server.New(db, cfg.IdleTTL(), VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "boolbin serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  idle ttl: %dd, gravity sweep: every %dm\n",
			cfg.Expiry.IdleDays, cfg.Expiry.SweepMinutes)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
