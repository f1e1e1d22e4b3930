package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/railboard/railboard_core/internal/models"
)

// Adapter wraps one upstream departure-board provider. Implementations
// translate their native payload into the canonical models at this
// boundary; callers never see source-specific field names.
type Adapter interface {
	// Name is the stable source identifier used in DataSources and
	// diagnostics ("darwin", "rtt", "legacy").
	Name() string
	// Enabled reports whether the adapter has the configuration and
	// credentials it needs. No I/O.
	Enabled() bool
	// FetchBoard retrieves the departure board for one station. Errors
	// are *Error values carrying a machine-readable code.
	FetchBoard(ctx context.Context, req models.BoardRequest) (*models.StationBoard, error)
}

// ErrorCode is a machine-readable adapter failure class
type ErrorCode string

const (
	CodeNotEnabled      ErrorCode = "NOT_ENABLED"
	CodeHTTPError       ErrorCode = "HTTP_ERROR"
	CodeConnectionError ErrorCode = "CONNECTION_ERROR"
	CodeNoData          ErrorCode = "NO_DATA"
	CodeInvalidResponse ErrorCode = "INVALID_RESPONSE_TYPE"
)

// Error is a typed adapter failure
type Error struct {
	Source  string
	Code    ErrorCode
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", e.Source, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Code, e.Message)
}

// NewError builds a typed adapter error
func NewError(src string, code ErrorCode, message string) *Error {
	return &Error{Source: src, Code: code, Message: message}
}

// IsCode reports whether err is an adapter *Error with the given code
func IsCode(err error, code ErrorCode) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// matchesFilter reports whether a departure satisfies the request's
// calling-point filter: direction "to" matches destinations, "from"
// matches origins.
func matchesFilter(dep models.Departure, req models.BoardRequest) bool {
	if req.FilterCode == "" {
		return true
	}
	locs := dep.Destination
	if req.FilterDirection == models.FilterFrom {
		locs = dep.Origin
	}
	for _, l := range locs {
		if strings.EqualFold(l.LocationCode, req.FilterCode) {
			return true
		}
	}
	return false
}

// filterBoard drops departures that do not satisfy the request filter.
// Every adapter applies this at its boundary, so a fallback tier honors
// the filter even when its native API cannot filter server-side.
func filterBoard(board *models.StationBoard, req models.BoardRequest) *models.StationBoard {
	if req.FilterCode == "" {
		return board
	}
	kept := make([]models.Departure, 0, len(board.Departures))
	for _, dep := range board.Departures {
		if matchesFilter(dep, req) {
			kept = append(kept, dep)
		}
	}
	board.Departures = kept
	return board
}

// RawEvent is one frame from the primary push feed, before normalization
type RawEvent struct {
	Type        string          `json:"type"`
	StationCode string          `json:"crs"`
	Body        json.RawMessage `json:"body"`
	ReceivedAt  time.Time       `json:"-"`
}

// FeedStatus is the lifecycle state of the push feed connection
type FeedStatus string

const (
	FeedIdle         FeedStatus = "idle"
	FeedConnecting   FeedStatus = "connecting"
	FeedConnected    FeedStatus = "connected"
	FeedReconnecting FeedStatus = "reconnecting"
	FeedStopped      FeedStatus = "stopped"
)

// Feed is the push-based live update stream exposed by the primary
// provider. Subscribe returns an unsubscribe func that is safe to call
// more than once.
type Feed interface {
	Start(ctx context.Context) error
	Status() FeedStatus
	Subscribe(fn func(RawEvent)) (unsubscribe func())
	Stop()
}
