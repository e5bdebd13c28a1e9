package webd

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/types/sensor"
)

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type webDaemonStatus struct {
	StartedAt time.Time               `json:"started_at"`
	Uptime    string                  `json:"uptime"`
	Config    *params.WebDaemonConfig `json:"config"`
	Variants  []string                `json:"variants"`
	Drops     map[string]uint64       `json:"drops"`
	WSOpen    bool                    `json:"ws_open"`
	WSConns   int                     `json:"ws_conns"`
}

func (s *WebDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	st := webDaemonStatus{
		StartedAt: s.started,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Config:    s.Config,
		Variants:  s.engine.Variants(),
		Drops:     s.engine.Drops(),
		WSOpen:    !s.melodyInstance.IsClosed(),
		WSConns:   s.melodyInstance.Len(),
	}
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// handleStateAll returns the latest pose per variant.
func (s *WebDaemon) handleStateAll(w http.ResponseWriter, r *http.Request) {
	if err := json.NewEncoder(w).Encode(s.engine.Snapshots()); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// handleState returns one variant's latest pose, falling back to the
// last-known cache when the stream recently went quiet.
func (s *WebDaemon) handleState(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filter"]
	p := s.engine.LastKnown(name)
	if p == nil {
		http.Error(w, "No pose for filter", http.StatusNotFound)
		return
	}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *WebDaemon) handleNIS(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filter"]
	stats := s.engine.NIS(name)
	if stats == nil {
		http.Error(w, "No such filter", http.StatusNotFound)
		return
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *WebDaemon) handleRoad(w http.ResponseWriter, r *http.Request) {
	m := s.engine.LastMatch()
	if m == nil {
		http.Error(w, "No road match", http.StatusNotFound)
		return
	}
	if err := json.NewEncoder(w).Encode(m); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// handlePopulate is where sensor readings get posted. The body is
// NDJSON, one reading per line; bad lines are counted and dropped, the
// rest are fed through. Logger apps retry on flaky uploads, so the
// engine's dedupe makes this idempotent.
func (s *WebDaemon) handlePopulate(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		s.logger.Error("No request body", "method", r.Method, "url", r.URL)
		http.Error(w, "Please send a request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var accepted, rejected int
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		reading, err := sensor.Decode(line)
		if err != nil {
			rejected++
			continue
		}
		if err := s.engine.Feed(reading); err != nil {
			if errors.Is(err, sensor.ErrInvalidReading) {
				rejected++
				continue
			}
			s.logger.Error("Failed to feed reading", "error", err)
			http.Error(w, "Failed to feed reading", http.StatusInternalServerError)
			return
		}
		accepted++
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("Failed to read request body", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.logger.Debug("Populated", "accepted", accepted, "rejected", rejected)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{
		"accepted": accepted,
		"rejected": rejected,
	})
}
