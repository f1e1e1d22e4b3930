package api

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/railboard/railboard_core/internal/aggregator"
	"github.com/railboard/railboard_core/internal/liveevents"
	"github.com/railboard/railboard_core/internal/models"
	"github.com/railboard/railboard_core/internal/source"
)

// Handler exposes the aggregation core over HTTP. It is a thin transport:
// all policy lives in the aggregator and the event bus.
type Handler struct {
	agg  *aggregator.Aggregator
	bus  *liveevents.Bus
	feed source.Feed
}

// NewHandler wires the delivery shim. feed may be nil when the live
// stream is disabled.
func NewHandler(agg *aggregator.Aggregator, bus *liveevents.Bus, feed source.Feed) *Handler {
	return &Handler{agg: agg, bus: bus, feed: feed}
}

// Register mounts all routes on the app
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/v1/departures/:crs", h.Departures)
	app.Get("/v1/diagnostics/last", h.LastDiagnostics)
	app.Get("/v1/feed/status", h.FeedStatus)
	app.Get("/v1/stream/:crs", h.Stream)
	app.Get("/v1/ws/:crs", h.upgradeRequired, h.StreamSocket())
}

// Health reports liveness
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Departures handles GET /v1/departures/:crs
func (h *Handler) Departures(c *fiber.Ctx) error {
	req := models.BoardRequest{
		StationCode:     c.Params("crs"),
		NumRows:         c.QueryInt("rows", 10),
		FilterCode:      c.Query("filter"),
		FilterDirection: models.FilterDirection(c.Query("direction")),
		IncludeEnhanced: c.QueryBool("enhanced", true),
	}

	board, err := h.agg.Departures(c.Context(), req)
	if err != nil {
		return boardError(c, err)
	}
	return c.JSON(board)
}

// LastDiagnostics handles GET /v1/diagnostics/last. Returns null until
// the first aggregation has run in this process.
func (h *Handler) LastDiagnostics(c *fiber.Ctx) error {
	diag := h.agg.LastDiagnostics()
	if diag == nil {
		return c.JSON(nil)
	}
	return c.JSON(diag)
}

// FeedStatus handles GET /v1/feed/status
func (h *Handler) FeedStatus(c *fiber.Ctx) error {
	status := source.FeedIdle
	enabled := false
	if h.feed != nil {
		status = h.feed.Status()
		enabled = true
	}
	return c.JSON(fiber.Map{
		"enabled":     enabled,
		"status":      status,
		"subscribers": h.bus.SubscriberCount(),
	})
}

// boardError maps typed aggregation errors onto HTTP statuses
func boardError(c *fiber.Ctx, err error) error {
	if e, ok := err.(*aggregator.Error); ok {
		status := fiber.StatusInternalServerError
		switch e.Code {
		case aggregator.CodeInvalidRequest:
			status = fiber.StatusBadRequest
		case aggregator.CodeSourceUnavailable:
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"error": e.Message,
			"code":  string(e.Code),
		})
	}

	log.Printf("unexpected error serving %s: %v", c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
		"code":  string(aggregator.CodeInternal),
	})
}
