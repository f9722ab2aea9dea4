// Package net exposes the asynchronous command surface: lifecycle
// commands, street closures, event scheduling, and the subscriber
// websocket. Handlers mutate shared flags; the tick loop picks the
// latest values up at the top of its next iteration.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	server "citypulse/server"
	"citypulse/server/internal/events"
	"citypulse/server/internal/net/ws"
	"citypulse/server/internal/observability"
	"citypulse/server/internal/sim"
	"citypulse/server/internal/telemetry"
	"citypulse/server/logging"
)

// Simulation is the lifecycle surface the command handlers drive.
type Simulation interface {
	Start()
	Pause()
	Resume()
	Reset() error
	State() sim.LifecycleState
	Tick() uint64
	CloseStreet(streetID string) bool
	OpenStreet(streetID string) bool
	ClosedStreetList() []string
	Streets() sim.StreetCatalog
	EdgeGeometry(streetID string) []sim.GeoPoint
}

// LoopStatus reports the tick loop's activity for diagnostics.
type LoopStatus interface {
	State() sim.DriverState
	Tick() uint64
	Running() bool
}

// EventScheduler is the operator surface of the event collaborator.
type EventScheduler interface {
	Schedule(name string, streets []string, startTick, endTick uint64) events.Event
	Events() []events.Event
}

type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Observability observability.Config
}

// HTTPHandlerDeps carries the collaborators behind the command surface.
type HTTPHandlerDeps struct {
	Hub        *server.Hub
	Simulation Simulation
	Loop       LoopStatus
	Events     EventScheduler
	// StartRun launches the tick loop goroutine; the driver itself
	// rejects overlapping runs.
	StartRun    func()
	RouterStats func() logging.RouterStats
}

type streetEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Closed bool   `json:"closed"`
}

type streetCommand struct {
	Street string `json:"street"`
}

type scheduleEventRequest struct {
	Name      string   `json:"name"`
	Streets   []string `json:"streets"`
	StartTick uint64   `json:"startTick"`
	EndTick   uint64   `json:"endTick"`
}

type statusResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

func NewHTTPHandler(deps HTTPHandlerDeps, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status        string `json:"status"`
			ServerTime    int64  `json:"serverTime"`
			Lifecycle     string `json:"lifecycle"`
			Tick          uint64 `json:"tick"`
			Loop          string `json:"loop"`
			Subscribers   int    `json:"subscribers"`
			ClosedStreets int    `json:"closedStreets"`
			EventsTotal   uint64 `json:"logEventsTotal"`
			EventsDropped uint64 `json:"logEventsDropped"`
		}{
			Status:        "ok",
			ServerTime:    time.Now().UnixMilli(),
			Lifecycle:     deps.Simulation.State().String(),
			Tick:          deps.Simulation.Tick(),
			ClosedStreets: len(deps.Simulation.ClosedStreetList()),
		}
		if deps.Loop != nil {
			payload.Loop = deps.Loop.State().String()
			payload.Tick = deps.Loop.Tick()
		}
		if deps.Hub != nil {
			payload.Subscribers = deps.Hub.SubscriberCount()
		}
		if deps.RouterStats != nil {
			stats := deps.RouterStats()
			payload.EventsTotal = stats.EventsTotal
			payload.EventsDropped = stats.DroppedTotal
		}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/simulation/start", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !requirePost(w, r) {
			return
		}
		deps.Simulation.Start()
		if deps.StartRun != nil {
			deps.StartRun()
		}
		writeJSON(w, nethttp.StatusOK, statusResponse{Status: "ok", State: deps.Simulation.State().String()})
	})

	mux.HandleFunc("/simulation/pause", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !requirePost(w, r) {
			return
		}
		deps.Simulation.Pause()
		writeJSON(w, nethttp.StatusOK, statusResponse{Status: "ok", State: deps.Simulation.State().String()})
	})

	mux.HandleFunc("/simulation/resume", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !requirePost(w, r) {
			return
		}
		deps.Simulation.Resume()
		writeJSON(w, nethttp.StatusOK, statusResponse{Status: "ok", State: deps.Simulation.State().String()})
	})

	mux.HandleFunc("/simulation/reset", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !requirePost(w, r) {
			return
		}
		if err := deps.Simulation.Reset(); err != nil {
			logger.Printf("reset failed: %v", err)
			nethttp.Error(w, "reset failed", nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, nethttp.StatusOK, statusResponse{Status: "ok", State: deps.Simulation.State().String()})
	})

	mux.HandleFunc("/streets", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		closed := make(map[string]struct{})
		for _, id := range deps.Simulation.ClosedStreetList() {
			closed[id] = struct{}{}
		}
		catalog := deps.Simulation.Streets()
		entries := make([]streetEntry, 0, len(catalog))
		for id, street := range catalog {
			_, isClosed := closed[id]
			entries = append(entries, streetEntry{ID: id, Name: street.Name, Closed: isClosed})
		}
		writeJSON(w, nethttp.StatusOK, entries)
	})

	mux.HandleFunc("/streets/geometry", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		streetID := r.URL.Query().Get("street")
		if streetID == "" {
			nethttp.Error(w, "missing street", nethttp.StatusBadRequest)
			return
		}
		coords := deps.Simulation.EdgeGeometry(streetID)
		if coords == nil {
			coords = []sim.GeoPoint{}
		}
		writeJSON(w, nethttp.StatusOK, coords)
	})

	mux.HandleFunc("/streets/close", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		handleStreetCommand(w, r, deps.Simulation.CloseStreet)
	})

	mux.HandleFunc("/streets/open", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		handleStreetCommand(w, r, deps.Simulation.OpenStreet)
	})

	mux.HandleFunc("/events", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.Method {
		case nethttp.MethodGet:
			writeJSON(w, nethttp.StatusOK, deps.Events.Events())
		case nethttp.MethodPost:
			var req scheduleEventRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				nethttp.Error(w, "malformed event", nethttp.StatusBadRequest)
				return
			}
			if len(req.Streets) == 0 {
				nethttp.Error(w, "event needs at least one street", nethttp.StatusBadRequest)
				return
			}
			event := deps.Events.Schedule(req.Name, req.Streets, req.StartTick, req.EndTick)
			writeJSON(w, nethttp.StatusCreated, event)
		default:
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		}
	})

	if deps.Hub != nil {
		wsHandler := ws.NewHandler(deps.Hub, ws.HandlerConfig{})
		mux.HandleFunc("/ws", wsHandler.Handle)
	}

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	}

	return mux
}

func handleStreetCommand(w nethttp.ResponseWriter, r *nethttp.Request, apply func(string) bool) {
	if !requirePost(w, r) {
		return
	}
	var cmd streetCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.Street == "" {
		nethttp.Error(w, "missing street", nethttp.StatusBadRequest)
		return
	}
	changed := apply(cmd.Street)
	writeJSON(w, nethttp.StatusOK, struct {
		Status  string `json:"status"`
		Street  string `json:"street"`
		Changed bool   `json:"changed"`
	}{Status: "ok", Street: cmd.Street, Changed: changed})
}

func requirePost(w nethttp.ResponseWriter, r *nethttp.Request) bool {
	if r.Method != nethttp.MethodPost {
		nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
