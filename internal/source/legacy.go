package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/railboard/railboard_core/internal/models"
)

const legacyName = "legacy"

// LegacyConfig configures the best-effort fallback adapter. The legacy
// feed serves a flat JSON schema and carries no credentials.
type LegacyConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LegacyAdapter is the lowest-priority fallback source
type LegacyAdapter struct {
	cfg    LegacyConfig
	client *http.Client
}

// NewLegacyAdapter builds the fallback adapter from explicit configuration
func NewLegacyAdapter(cfg LegacyConfig) *LegacyAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &LegacyAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *LegacyAdapter) Name() string { return legacyName }

func (a *LegacyAdapter) Enabled() bool { return a.cfg.BaseURL != "" }

type legacyBoard struct {
	Station    string            `json:"station"`
	Name       string            `json:"name"`
	Generated  time.Time         `json:"generated"`
	Departures []legacyDeparture `json:"departures"`
}

type legacyDeparture struct {
	ID           string     `json:"id"`
	Scheduled    time.Time  `json:"scheduled"`
	Expected     *time.Time `json:"expected"`
	Platform     string     `json:"platform"`
	Operator     string     `json:"operator"`
	OperatorCode string     `json:"operator_code"`
	DestName     string     `json:"dest_name"`
	DestCRS      string     `json:"dest_crs"`
	OriginName   string     `json:"origin_name"`
	OriginCRS    string     `json:"origin_crs"`
	Cancelled    bool       `json:"cancelled"`
	DelayMinutes int        `json:"delay_minutes"`
}

// FetchBoard queries the legacy feed and translates its flat schema into
// the canonical one.
func (a *LegacyAdapter) FetchBoard(ctx context.Context, req models.BoardRequest) (*models.StationBoard, error) {
	if !a.Enabled() {
		return nil, NewError(legacyName, CodeNotEnabled, "legacy feed not configured")
	}

	endpoint := fmt.Sprintf("%s/v1/station/%s?limit=%s",
		strings.TrimRight(a.cfg.BaseURL, "/"), req.StationCode, strconv.Itoa(req.NumRows))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(legacyName, CodeConnectionError, err.Error())
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, NewError(legacyName, CodeConnectionError, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewError(legacyName, CodeNoData, "station not known to legacy feed")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, NewError(legacyName, CodeHTTPError, "unexpected status "+resp.Status)
	}

	var payload legacyBoard
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewError(legacyName, CodeInvalidResponse, "decode board: "+err.Error())
	}
	if payload.Station == "" {
		return nil, NewError(legacyName, CodeNoData, "empty board payload")
	}

	// the legacy feed cannot filter server-side
	return filterBoard(translateLegacyBoard(payload), req), nil
}

func translateLegacyBoard(b legacyBoard) *models.StationBoard {
	board := &models.StationBoard{
		StationCode: strings.ToUpper(b.Station),
		StationName: b.Name,
		SourceTime:  b.Generated,
		Departures:  make([]models.Departure, 0, len(b.Departures)),
	}

	for _, d := range b.Departures {
		dep := models.Departure{
			ServiceID:     legacyName + ":" + d.ID,
			ScheduledTime: d.Scheduled,
			EstimatedTime: d.Expected,
			Platform:      d.Platform,
			OperatorName:  d.Operator,
			OperatorCode:  d.OperatorCode,
			Destination:   []models.Location{{Name: d.DestName, LocationCode: strings.ToUpper(d.DestCRS)}},
			Origin:        []models.Location{{Name: d.OriginName, LocationCode: strings.ToUpper(d.OriginCRS)}},
			DelayMinutes:  d.DelayMinutes,
		}

		switch {
		case d.Cancelled:
			dep.Status = models.StatusCancelled
			dep.IsCancelled = true
			dep.DelayMinutes = 0
		case d.DelayMinutes > 0:
			dep.Status = models.StatusDelayed
		default:
			dep.Status = models.StatusOnTime
			dep.DelayMinutes = 0
			if dep.EstimatedTime == nil {
				est := dep.ScheduledTime
				dep.EstimatedTime = &est
			}
		}

		board.Departures = append(board.Departures, dep)
	}

	return board
}
