package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/railboard/railboard_core/internal/liveevents"
	"github.com/railboard/railboard_core/internal/models"
)

// socketMessage is the framing for the websocket stream: a bootstrap
// frame with the snapshot, then one event frame per upsert.
type socketMessage struct {
	Type        string             `json:"type"`
	StationCode string             `json:"station_code"`
	Events      []models.LiveEvent `json:"events,omitempty"`
	Event       *models.LiveEvent  `json:"event,omitempty"`
}

// upgradeRequired rejects plain HTTP requests on the websocket route
func (h *Handler) upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// StreamSocket handles GET /v1/ws/:crs. Same contract as the SSE stream
// over a websocket, with pings in place of comment heartbeats. The
// subscription is released when the socket closes.
func (h *Handler) StreamSocket() fiber.Handler {
	bus := h.bus
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		crs := strings.ToUpper(strings.TrimSpace(conn.Params("crs")))
		if !validStreamCRS(crs) {
			conn.WriteJSON(fiber.Map{"error": "station code must be exactly 3 letters"})
			return
		}

		sub := bus.Subscribe(liveevents.StationFilter(crs))
		defer sub.Unsubscribe()

		bootstrap := socketMessage{
			Type:        "bootstrap",
			StationCode: crs,
			Events:      bus.Snapshot(crs, bootstrapLimit),
		}
		if err := conn.WriteJSON(bootstrap); err != nil {
			return
		}

		// reader goroutine notices the peer closing the socket
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(heartbeatInterval)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				msg := socketMessage{Type: "event", StationCode: crs, Event: &ev}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
