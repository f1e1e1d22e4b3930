package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/railboard/railboard_core/internal/models"
)

const rttName = "rtt"

// RTTConfig configures the enhanced adapter, a Realtime Trains style REST
// API that augments the primary feed with confirmed platforms and
// realtime activation data.
type RTTConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// RTTAdapter is the enhanced secondary source
type RTTAdapter struct {
	cfg    RTTConfig
	client *http.Client
}

// NewRTTAdapter builds the enhanced adapter from explicit configuration
func NewRTTAdapter(cfg RTTConfig) *RTTAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RTTAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *RTTAdapter) Name() string { return rttName }

func (a *RTTAdapter) Enabled() bool {
	return a.cfg.BaseURL != "" && a.cfg.Username != "" && a.cfg.Password != ""
}

// Native search payload. Booked and realtime times are "1504" strings
// resolved against runDate.
type rttSearch struct {
	Location rttLocation  `json:"location"`
	Services []rttService `json:"services"`
}

type rttLocation struct {
	Name string `json:"name"`
	CRS  string `json:"crs"`
}

type rttService struct {
	ServiceUID     string    `json:"serviceUid"`
	RunDate        string    `json:"runDate"`
	AtocCode       string    `json:"atocCode"`
	AtocName       string    `json:"atocName"`
	LocationDetail rttDetail `json:"locationDetail"`
}

type rttDetail struct {
	RealtimeActivated   bool          `json:"realtimeActivated"`
	Origin              []rttCallSite `json:"origin"`
	Destination         []rttCallSite `json:"destination"`
	GbttBookedDeparture string        `json:"gbttBookedDeparture"`
	RealtimeDeparture   string        `json:"realtimeDeparture"`
	Platform            string        `json:"platform"`
	PlatformConfirmed   bool          `json:"platformConfirmed"`
	DisplayAs           string        `json:"displayAs"`
	CancelReasonText    string        `json:"cancelReasonShortText"`
}

type rttCallSite struct {
	Description string `json:"description"`
	CRS         string `json:"crs"`
}

// FetchBoard queries the location search endpoint and translates the
// result into the canonical schema.
func (a *RTTAdapter) FetchBoard(ctx context.Context, req models.BoardRequest) (*models.StationBoard, error) {
	if !a.Enabled() {
		return nil, NewError(rttName, CodeNotEnabled, "rtt credentials not configured")
	}

	endpoint := fmt.Sprintf("%s/json/search/%s", strings.TrimRight(a.cfg.BaseURL, "/"), req.StationCode)
	if req.FilterCode != "" {
		switch req.FilterDirection {
		case models.FilterTo:
			endpoint += "/to/" + req.FilterCode
		case models.FilterFrom:
			endpoint += "/from/" + req.FilterCode
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(rttName, CodeConnectionError, err.Error())
	}
	httpReq.SetBasicAuth(a.cfg.Username, a.cfg.Password)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, NewError(rttName, CodeConnectionError, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewError(rttName, CodeNoData, "no location for "+req.StationCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, NewError(rttName, CodeHTTPError, "unexpected status "+resp.Status)
	}

	var payload rttSearch
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewError(rttName, CodeInvalidResponse, "decode search: "+err.Error())
	}
	if payload.Location.CRS == "" {
		return nil, NewError(rttName, CodeNoData, "empty location payload")
	}

	// filter before capping rows, so a filtered request fills its quota
	board := filterBoard(translateRTTSearch(payload), req)
	if len(board.Departures) > req.NumRows {
		board.Departures = board.Departures[:req.NumRows]
	}
	return board, nil
}

func translateRTTSearch(s rttSearch) *models.StationBoard {
	board := &models.StationBoard{
		StationCode: strings.ToUpper(s.Location.CRS),
		StationName: s.Location.Name,
		SourceTime:  time.Now().UTC(),
		Departures:  make([]models.Departure, 0, len(s.Services)),
	}

	for _, svc := range s.Services {
		d := svc.LocationDetail
		dep := models.Departure{
			ServiceID:     rttName + ":" + svc.ServiceUID + ":" + svc.RunDate,
			ScheduledTime: rttClock(d.GbttBookedDeparture, svc.RunDate),
			Platform:      d.Platform,
			OperatorName:  svc.AtocName,
			OperatorCode:  svc.AtocCode,
			Origin:        rttLocations(d.Origin),
			Destination:   rttLocations(d.Destination),
		}

		switch {
		case strings.HasPrefix(d.DisplayAs, "CANCELLED"):
			dep.Status = models.StatusCancelled
			dep.IsCancelled = true
			dep.CancelReason = d.CancelReasonText
		case d.RealtimeActivated && d.RealtimeDeparture != "":
			est := rttClock(d.RealtimeDeparture, svc.RunDate)
			dep.EstimatedTime = &est
			dep.DelayMinutes = int(est.Sub(dep.ScheduledTime).Minutes())
			if dep.DelayMinutes > 0 {
				dep.Status = models.StatusDelayed
			} else {
				dep.Status = models.StatusOnTime
			}
		default:
			dep.Status = models.StatusOnTime
			est := dep.ScheduledTime
			dep.EstimatedTime = &est
		}

		board.Departures = append(board.Departures, dep)
	}

	return board
}

// rttClock resolves a "1504" time string against a "2006-01-02" run date
func rttClock(hhmm, runDate string) time.Time {
	t, err := time.Parse("2006-01-02 1504", runDate+" "+strings.TrimSpace(hhmm))
	if err != nil {
		t, err = time.Parse("2006-01-02", runDate)
		if err != nil {
			return time.Now().UTC()
		}
	}
	return t.UTC()
}

func rttLocations(sites []rttCallSite) []models.Location {
	out := make([]models.Location, 0, len(sites))
	for _, s := range sites {
		out = append(out, models.Location{
			Name:         s.Description,
			LocationCode: strings.ToUpper(s.CRS),
		})
	}
	return out
}
