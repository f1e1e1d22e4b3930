package liveevents

import (
	"context"
	"log"

	"github.com/railboard/railboard_core/internal/models"
	"github.com/railboard/railboard_core/internal/source"
)

// Bridge connects the primary provider's push feed to the event bus,
// normalizing raw frames into LiveEvents. With no feed configured the bus
// simply stays empty: snapshots serve empty results and subscriptions
// yield no events.
type Bridge struct {
	feed  source.Feed
	bus   *Bus
	unsub func()
}

// NewBridge wires a feed (may be nil when the live stream is disabled) to
// the bus.
func NewBridge(feed source.Feed, bus *Bus) *Bridge {
	return &Bridge{feed: feed, bus: bus}
}

// Start subscribes to the feed and launches its connection loop
func (b *Bridge) Start(ctx context.Context) error {
	if b.feed == nil {
		log.Println("live feed disabled; event bus will serve empty snapshots")
		return nil
	}
	b.unsub = b.feed.Subscribe(b.ingest)
	return b.feed.Start(ctx)
}

// Stop unsubscribes and stops the underlying feed
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	if b.feed != nil {
		b.feed.Stop()
	}
}

func (b *Bridge) ingest(raw source.RawEvent) {
	if raw.StationCode == "" {
		log.Printf("live feed: dropping %s frame with no station code", raw.Type)
		return
	}
	b.bus.Upsert(models.LiveEvent{
		Type:        raw.Type,
		StationCode: raw.StationCode,
		Body:        raw.Body,
		ReceivedAt:  raw.ReceivedAt,
	})
}
