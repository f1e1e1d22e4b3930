package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/railboard/railboard_core/internal/liveevents"
	"github.com/railboard/railboard_core/internal/models"
)

const (
	// heartbeatInterval keeps intermediary proxies from timing idle
	// streams out
	heartbeatInterval = 15 * time.Second
	bootstrapLimit    = 50
)

// bootstrapPayload is the initial snapshot sent on every new stream
type bootstrapPayload struct {
	StationCode string             `json:"station_code"`
	Events      []models.LiveEvent `json:"events"`
}

// Stream handles GET /v1/stream/:crs as server-sent events: one
// `bootstrap` event carrying the recent-event snapshot, then one `event`
// message per upsert, with comment heartbeats every 15s. The
// subscription is released when the client disconnects.
func (h *Handler) Stream(c *fiber.Ctx) error {
	crs := strings.ToUpper(strings.TrimSpace(c.Params("crs")))
	if !validStreamCRS(crs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "station code must be exactly 3 letters",
			"code":  "INVALID_REQUEST",
		})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	bus := h.bus
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		sub := bus.Subscribe(liveevents.StationFilter(crs))
		defer sub.Unsubscribe()

		bootstrap := bootstrapPayload{
			StationCode: crs,
			Events:      bus.Snapshot(crs, bootstrapLimit),
		}
		if err := writeSSE(w, "bootstrap", bootstrap); err != nil {
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := writeSSE(w, "event", ev); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

func writeSSE(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("stream: marshal %s payload failed: %v", event, err)
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func validStreamCRS(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
