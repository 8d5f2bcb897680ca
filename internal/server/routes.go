package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/RTnhN/boolbin/internal/store"
	"github.com/go-chi/chi/v5"
)

// jsonError writes a JSON error body. Messages go through the encoder so
// whatever they contain stays valid JSON.
func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// createCell runs the opportunistic idle sweep and then inserts a fresh cell.
// The two store calls are composed here so each stays independently usable.
func (s *Server) createCell() (*store.Cell, error) {
	if deleted, err := s.db.SweepIdle(s.db.Now(), s.idleTTL); err != nil {
		log.Printf("idle sweep error: %v", err)
	} else if deleted > 0 {
		log.Printf("idle sweep: deleted %d cells", deleted)
	}
	return s.db.CreateCell()
}

func (s *Server) handleCreateCell(w http.ResponseWriter, r *http.Request) {
	cell, err := s.createCell()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"write_key": cell.WriteKey,
		"read_key":  cell.ReadKey,
	})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	writeKey := chi.URLParam(r, "writeKey")
	q := r.URL.Query()

	// No bit supplied: resolve the write key and show the pair, nothing else.
	if !q.Has("bit") {
		if q.Has("gravity") {
			jsonError(w, http.StatusBadRequest, "gravity requires a bit value")
			return
		}
		cell, err := s.db.GetCellByWriteKey(writeKey)
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "invalid write key")
			return
		}
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"write_key": cell.WriteKey,
			"read_key":  cell.ReadKey,
		})
		return
	}

	bit, err := strconv.ParseBool(q.Get("bit"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid bit value")
		return
	}

	// Validate gravity fully before touching the store — a rejected write
	// must leave both the bit and the timer untouched.
	var gravity *time.Duration
	if q.Has("gravity") {
		secs, err := strconv.ParseInt(q.Get("gravity"), 10, 64)
		if err != nil || secs < 0 {
			jsonError(w, http.StatusBadRequest, "invalid gravity value, want non-negative seconds")
			return
		}
		d := time.Duration(secs) * time.Second
		gravity = &d
	}

	cell, err := s.db.WriteCell(writeKey, bit, gravity)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "invalid write key")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"message":         "bit updated",
		"bit":             cell.Bit,
		"read_key":        cell.ReadKey,
		"gravity_enabled": cell.GravityEnabled,
	}
	if cell.GravityExpiresAt != nil {
		resp["gravity_expires_at"] = *cell.GravityExpiresAt
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	readKey := chi.URLParam(r, "readKey")

	bit, err := s.db.ReadCell(readKey)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "invalid read key")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"bit": bit})
}

// handleListCells enumerates stored state as JSON. The view can lag lazy
// gravity expiry until the next read or sweep; see store.ListCells.
func (s *Server) handleListCells(w http.ResponseWriter, r *http.Request) {
	cells, err := s.db.ListCells()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type cellJSON struct {
		ReadKey          string `json:"read_key"`
		Bit              bool   `json:"bit"`
		GravityEnabled   bool   `json:"gravity_enabled"`
		GravityExpiresAt *int64 `json:"gravity_expires_at,omitempty"`
	}

	out := make([]cellJSON, len(cells))
	for i, c := range cells {
		out[i] = cellJSON{
			ReadKey:          c.ReadKey,
			Bit:              c.Bit,
			GravityEnabled:   c.GravityEnabled,
			GravityExpiresAt: c.GravityExpiresAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count": len(out),
		"cells": out,
	})
}
