package ws

import (
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	server "citypulse/server"
)

type HandlerConfig struct {
	Logger *log.Logger
}

// Handler upgrades subscriber connections and parks them on the hub.
// Subscribers are read-only viewers; commands travel over HTTP.
type Handler struct {
	hub      *server.Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	id := h.hub.Subscribe(conn)

	// Drain inbound frames so pings and closes are processed; any
	// payload from a viewer is ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Unsubscribe(id)
			conn.Close()
			return
		}
	}
}
