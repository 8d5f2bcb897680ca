// Package sweeper runs the background gravity sweep: a fixed-period pass that
// resets every armed cell whose timer has lapsed, so stored state converges
// even for cells nobody reads. Lazy read-side expiry applies the identical
// reset; whichever side observes the lapse first wins and the other is a no-op.
package sweeper

import (
	"log"
	"time"

	"github.com/RTnhN/boolbin/internal/store"
)

// Sweeper periodically applies gravity expiry across all cells.
type Sweeper struct {
	db       *store.DB
	interval time.Duration
	stopCh   chan struct{}
}

// New creates a Sweeper that runs every interval.
func New(db *store.DB, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval
// until Stop is called.
func (s *Sweeper) Start() {
	s.sweep()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the background sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) sweep() {
	if reset, err := s.db.SweepGravity(s.db.Now()); err != nil {
		log.Printf("gravity sweep error: %v", err)
	} else if reset > 0 {
		log.Printf("gravity sweep: reset %d cells", reset)
	}
}
