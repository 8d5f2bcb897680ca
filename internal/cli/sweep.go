package cli

import (
	"fmt"
	"os"

	"github.com/RTnhN/boolbin/internal/store"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run idle and gravity expiry once against the database",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

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

	now := db.Now()

	deleted, err := db.SweepIdle(now, cfg.IdleTTL())
	if err != nil {
		return fmt.Errorf("idle sweep: %w", err)
	}
	reset, err := db.SweepGravity(now)
	if err != nil {
		return fmt.Errorf("gravity sweep: %w", err)
	}
	remaining, err := db.CountCells()
	if err != nil {
		return fmt.Errorf("count cells: %w", err)
	}

	fmt.Fprintf(os.Stderr, "idle: deleted %d, gravity: reset %d, cells remaining: %d\n",
		deleted, reset, remaining)
	return nil
}
