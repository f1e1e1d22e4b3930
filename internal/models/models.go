package models

import (
	"encoding/json"
	"time"
)

// ServiceStatus represents the live running state of a departure
type ServiceStatus string

const (
	StatusOnTime    ServiceStatus = "on-time"
	StatusDelayed   ServiceStatus = "delayed"
	StatusCancelled ServiceStatus = "cancelled"
)

// FilterDirection restricts a board query to services to or from a station
type FilterDirection string

const (
	FilterTo   FilterDirection = "to"
	FilterFrom FilterDirection = "from"
)

// Location is a named calling point with its CRS code
type Location struct {
	Name         string `json:"name"`
	LocationCode string `json:"location_code"`
}

// Departure represents one scheduled train service instance at a station
// with its live status. ServiceID is source-qualified and stable across
// repeated polls of the same physical service.
type Departure struct {
	ServiceID     string        `json:"service_id"`
	ScheduledTime time.Time     `json:"scheduled_time"`
	EstimatedTime *time.Time    `json:"estimated_time,omitempty"`
	Platform      string        `json:"platform,omitempty"`
	OperatorName  string        `json:"operator_name"`
	OperatorCode  string        `json:"operator_code"`
	Destination   []Location    `json:"destination"`
	Origin        []Location    `json:"origin"`
	Status        ServiceStatus `json:"status"`
	DelayMinutes  int           `json:"delay_minutes"`
	IsCancelled   bool          `json:"is_cancelled"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
	DelayReason   string        `json:"delay_reason,omitempty"`
}

// DataSources records which adapters contributed to an aggregated board
type DataSources struct {
	Primary  string   `json:"primary"`
	Enhanced []string `json:"enhanced"`
	Failed   []string `json:"failed"`
}

// DataQuality is the composite quality score attached to an aggregated board
type DataQuality struct {
	Completeness     float64 `json:"completeness"`
	FreshnessSeconds float64 `json:"freshness_seconds"`
	ConflictCount    int     `json:"conflict_count"`
}

// StationBoard is the unified result of one station query. GeneratedAt is
// the time of assembly, not of any upstream payload. Cached marks a board
// served from the cache without touching any adapter.
type StationBoard struct {
	StationCode string      `json:"station_code"`
	StationName string      `json:"station_name"`
	GeneratedAt time.Time   `json:"generated_at"`
	Departures  []Departure `json:"departures"`
	DataSources DataSources `json:"data_sources"`
	DataQuality DataQuality `json:"data_quality"`
	Cached      bool        `json:"cached"`

	// SourceTime is the upstream payload timestamp used for freshness
	// scoring. Not serialized; each adapter sets it at the boundary.
	SourceTime time.Time `json:"-"`
}

// LiveEvent is a normalized real-time movement or service update tied to
// one station. Body is an opaque per-type payload.
type LiveEvent struct {
	Type        string          `json:"type"`
	StationCode string          `json:"station_code"`
	Body        json.RawMessage `json:"body"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// SourceDiagnostics records the outcome of one adapter call within an
// aggregation request
type SourceDiagnostics struct {
	Attempted bool   `json:"attempted"`
	Available bool   `json:"available"`
	Enhanced  bool   `json:"enhanced"`
	Error     string `json:"error,omitempty"`
}

// RequestDiagnostics is the snapshot of the most recent aggregation call.
// It is overwritten by the next call and does not survive restarts.
type RequestDiagnostics struct {
	StationCode string                       `json:"station_code"`
	StartedAt   time.Time                    `json:"started_at"`
	CompletedAt time.Time                    `json:"completed_at"`
	CacheHit    bool                         `json:"cache_hit"`
	Sources     map[string]SourceDiagnostics `json:"sources"`
}

// BoardRequest is the normalized request tuple for one station query.
// StationCode and FilterCode are canonical uppercase by the time the
// aggregator sees them.
type BoardRequest struct {
	StationCode     string
	NumRows         int
	FilterCode      string
	FilterDirection FilterDirection
	IncludeEnhanced bool
}
