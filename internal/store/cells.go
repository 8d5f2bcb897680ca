package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound means a supplied write or read key does not resolve to a live
// cell — either it never existed or the cell was removed by the idle sweep.
var ErrNotFound = errors.New("cell not found")

// Cell is one stored boolean with its key pair and expiry metadata.
// Timestamps are Unix milliseconds.
type Cell struct {
	ID               int64
	WriteKey         string
	ReadKey          string
	Bit              bool
	LastWrittenAt    int64
	GravityEnabled   bool
	GravityExpiresAt *int64 // set iff GravityEnabled
}

// CellSnapshot is the diagnostic view returned by ListCells. Write keys are
// deliberately excluded — the enumeration grants observe-only access.
type CellSnapshot struct {
	ReadKey          string
	Bit              bool
	GravityEnabled   bool
	GravityExpiresAt *int64
}

// createAttempts bounds the key-collision retry loop in CreateCell. With
// random UUIDv4 tokens a single retry is already astronomically unlikely.
const createAttempts = 5

// CreateCell inserts a new cell with bit=false and gravity disabled, under a
// freshly generated write/read key pair. Neither key may collide with any
// existing key of either kind; on a collision the pair is regenerated.
func (db *DB) CreateCell() (*Cell, error) {
	now := db.now().UnixMilli()

	for attempt := 0; attempt < createAttempts; attempt++ {
		writeKey := uuid.NewString()
		readKey := uuid.NewString()
		if writeKey == readKey {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return nil, fmt.Errorf("begin create cell: %w", err)
		}

		var clashes int
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM cells
			WHERE write_key IN (?, ?) OR read_key IN (?, ?)
		`, writeKey, readKey, writeKey, readKey).Scan(&clashes)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("check key collision: %w", err)
		}
		if clashes > 0 {
			tx.Rollback()
			continue
		}

		result, err := tx.Exec(`
			INSERT INTO cells (write_key, read_key, bit, last_written_at)
			VALUES (?, ?, 0, ?)
		`, writeKey, readKey, now)
		if err != nil {
			tx.Rollback()
			// A concurrent create can win the race past the collision check;
			// the UNIQUE constraints catch it and we retry with fresh keys.
			if isUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("insert cell: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit create cell: %w", err)
		}

		id, _ := result.LastInsertId()
		return &Cell{
			ID:            id,
			WriteKey:      writeKey,
			ReadKey:       readKey,
			Bit:           false,
			LastWrittenAt: now,
		}, nil
	}

	return nil, fmt.Errorf("create cell: gave up after %d key collisions", createAttempts)
}

// WriteCell sets the cell's bit and refreshes its idle timer. The gravity
// parameter is an independent axis:
//
//	nil   — gravity state untouched (an armed timer keeps its deadline)
//	d > 0 — arm (or re-arm) the timer to expire at now+d
//	d <= 0 — disarm the timer; the bit itself is unaffected
//
// The whole mutation is a single transaction, so a write racing the gravity
// sweep on the same cell resolves to one coherent final state.
func (db *DB) WriteCell(writeKey string, bit bool, gravity *time.Duration) (*Cell, error) {
	now := db.now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin write cell: %w", err)
	}
	defer tx.Rollback()

	var c Cell
	var gravityExpires sql.NullInt64
	err = tx.QueryRow(`
		SELECT id, read_key, gravity_enabled, gravity_expires_at
		FROM cells WHERE write_key = ?
	`, writeKey).Scan(&c.ID, &c.ReadKey, &c.GravityEnabled, &gravityExpires)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("write %s: %w", writeKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup write key: %w", err)
	}
	if gravityExpires.Valid {
		c.GravityExpiresAt = &gravityExpires.Int64
	}

	if gravity != nil {
		if *gravity > 0 {
			expires := now + gravity.Milliseconds()
			c.GravityEnabled = true
			c.GravityExpiresAt = &expires
		} else {
			c.GravityEnabled = false
			c.GravityExpiresAt = nil
		}
	}

	var expiresArg any
	if c.GravityExpiresAt != nil {
		expiresArg = *c.GravityExpiresAt
	}
	if _, err := tx.Exec(`
		UPDATE cells
		SET bit = ?, last_written_at = ?, gravity_enabled = ?, gravity_expires_at = ?
		WHERE id = ?
	`, boolToInt(bit), now, boolToInt(c.GravityEnabled), expiresArg, c.ID); err != nil {
		return nil, fmt.Errorf("update cell: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit write cell: %w", err)
	}

	c.WriteKey = writeKey
	c.Bit = bit
	c.LastWrittenAt = now
	return &c, nil
}

// ReadCell resolves a read key to the cell's effective bit. If an armed
// gravity timer has lapsed, the reset (bit=false, timer disarmed) is applied
// and persisted before returning — the lazy half of gravity expiration.
// Reads never touch last_written_at; the idle timer is write-driven only.
func (db *DB) ReadCell(readKey string) (bool, error) {
	now := db.now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin read cell: %w", err)
	}
	defer tx.Rollback()

	var id int64
	var bit, gravityEnabled bool
	var gravityExpires sql.NullInt64
	err = tx.QueryRow(`
		SELECT id, bit, gravity_enabled, gravity_expires_at
		FROM cells WHERE read_key = ?
	`, readKey).Scan(&id, &bit, &gravityEnabled, &gravityExpires)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("read %s: %w", readKey, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("lookup read key: %w", err)
	}

	if gravityEnabled && gravityExpires.Valid && now >= gravityExpires.Int64 {
		if _, err := tx.Exec(`
			UPDATE cells
			SET bit = 0, gravity_enabled = 0, gravity_expires_at = NULL
			WHERE id = ?
		`, id); err != nil {
			return false, fmt.Errorf("apply gravity reset: %w", err)
		}
		bit = false
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit read cell: %w", err)
	}
	return bit, nil
}

// GetCellByWriteKey resolves a write key without mutating anything. Backs the
// key-info endpoint (a write request carrying no bit).
func (db *DB) GetCellByWriteKey(writeKey string) (*Cell, error) {
	var c Cell
	var gravityExpires sql.NullInt64
	err := db.QueryRow(`
		SELECT id, write_key, read_key, bit, last_written_at, gravity_enabled, gravity_expires_at
		FROM cells WHERE write_key = ?
	`, writeKey).Scan(&c.ID, &c.WriteKey, &c.ReadKey, &c.Bit, &c.LastWrittenAt, &c.GravityEnabled, &gravityExpires)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lookup %s: %w", writeKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup write key: %w", err)
	}
	if gravityExpires.Valid {
		c.GravityExpiresAt = &gravityExpires.Int64
	}
	return &c, nil
}

// ListCells returns the stored state of every surviving cell. The view is
// deliberately stale: a lapsed-but-unswept gravity timer still shows as armed
// with the stored bit, until the next read or sweep reconciles it.
func (db *DB) ListCells() ([]CellSnapshot, error) {
	rows, err := db.Query(`
		SELECT read_key, bit, gravity_enabled, gravity_expires_at
		FROM cells ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list cells: %w", err)
	}
	defer rows.Close()

	var cells []CellSnapshot
	for rows.Next() {
		var s CellSnapshot
		var gravityExpires sql.NullInt64
		if err := rows.Scan(&s.ReadKey, &s.Bit, &s.GravityEnabled, &gravityExpires); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		if gravityExpires.Valid {
			s.GravityExpiresAt = &gravityExpires.Int64
		}
		cells = append(cells, s)
	}
	return cells, rows.Err()
}

// SweepIdle hard-deletes every cell that has not been written for longer than
// ttl, as of now. Holders of the deleted keys get ErrNotFound on next access.
func (db *DB) SweepIdle(now time.Time, ttl time.Duration) (int, error) {
	result, err := db.Exec(`
		DELETE FROM cells WHERE ? - last_written_at > ?
	`, now.UnixMilli(), ttl.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("sweep idle: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// SweepGravity applies the gravity reset to every armed cell whose timer has
// lapsed as of now: bit=false, timer disarmed. The active half of gravity
// expiration — it converges cells nobody reads. Idempotent: already-reset or
// idle-deleted cells simply don't match.
func (db *DB) SweepGravity(now time.Time) (int, error) {
	result, err := db.Exec(`
		UPDATE cells
		SET bit = 0, gravity_enabled = 0, gravity_expires_at = NULL
		WHERE gravity_enabled = 1 AND gravity_expires_at <= ?
	`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep gravity: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountCells returns the number of surviving cells.
func (db *DB) CountCells() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM cells").Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
