package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/railboard/railboard_core/internal/models"
)

const darwinName = "darwin"

// DarwinConfig configures the primary adapter. The gateway is an internal
// JSON proxy in front of the National Rail Darwin feed; an empty BaseURL
// or Token disables the adapter.
type DarwinConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// DarwinAdapter is the authoritative real-time source for live departures
type DarwinAdapter struct {
	cfg    DarwinConfig
	client *http.Client
}

// NewDarwinAdapter builds the primary adapter from explicit configuration
func NewDarwinAdapter(cfg DarwinConfig) *DarwinAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &DarwinAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *DarwinAdapter) Name() string { return darwinName }

func (a *DarwinAdapter) Enabled() bool {
	return a.cfg.BaseURL != "" && a.cfg.Token != ""
}

// Native gateway payload. Times follow the Darwin convention: std is
// "15:04", etd is "On time", "Cancelled", "Delayed" or a "15:04" estimate.
type darwinBoard struct {
	LocationName string          `json:"locationName"`
	CRS          string          `json:"crs"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	Services     []darwinService `json:"trainServices"`
}

type darwinService struct {
	ServiceID    string           `json:"serviceID"`
	STD          string           `json:"std"`
	ETD          string           `json:"etd"`
	Platform     string           `json:"platform"`
	Operator     string           `json:"operator"`
	OperatorCode string           `json:"operatorCode"`
	Origin       []darwinLocation `json:"origin"`
	Destination  []darwinLocation `json:"destination"`
	IsCancelled  bool             `json:"isCancelled"`
	CancelReason string           `json:"cancelReason"`
	DelayReason  string           `json:"delayReason"`
}

type darwinLocation struct {
	LocationName string `json:"locationName"`
	CRS          string `json:"crs"`
}

// FetchBoard queries the gateway and translates the Darwin board into the
// canonical schema.
func (a *DarwinAdapter) FetchBoard(ctx context.Context, req models.BoardRequest) (*models.StationBoard, error) {
	if !a.Enabled() {
		return nil, NewError(darwinName, CodeNotEnabled, "darwin gateway not configured")
	}

	endpoint := fmt.Sprintf("%s/boards/%s", strings.TrimRight(a.cfg.BaseURL, "/"), req.StationCode)
	q := url.Values{}
	q.Set("numRows", strconv.Itoa(req.NumRows))
	if req.FilterCode != "" {
		q.Set("filterCrs", req.FilterCode)
		q.Set("filterType", string(req.FilterDirection))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, NewError(darwinName, CodeConnectionError, err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, NewError(darwinName, CodeConnectionError, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewError(darwinName, CodeNoData, "no board for station "+req.StationCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, NewError(darwinName, CodeHTTPError, "unexpected status "+resp.Status)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return nil, NewError(darwinName, CodeInvalidResponse, "unexpected content type "+ct)
	}

	var payload darwinBoard
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewError(darwinName, CodeInvalidResponse, "decode board: "+err.Error())
	}
	if payload.CRS == "" {
		return nil, NewError(darwinName, CodeNoData, "empty board payload")
	}

	return filterBoard(translateDarwinBoard(payload), req), nil
}

func translateDarwinBoard(b darwinBoard) *models.StationBoard {
	board := &models.StationBoard{
		StationCode: strings.ToUpper(b.CRS),
		StationName: b.LocationName,
		SourceTime:  b.GeneratedAt,
		Departures:  make([]models.Departure, 0, len(b.Services)),
	}

	for _, svc := range b.Services {
		dep := models.Departure{
			ServiceID:     darwinName + ":" + svc.ServiceID,
			ScheduledTime: darwinClock(svc.STD, b.GeneratedAt),
			Platform:      svc.Platform,
			OperatorName:  svc.Operator,
			OperatorCode:  svc.OperatorCode,
			Origin:        darwinLocations(svc.Origin),
			Destination:   darwinLocations(svc.Destination),
			CancelReason:  svc.CancelReason,
			DelayReason:   svc.DelayReason,
		}

		etd := strings.TrimSpace(svc.ETD)
		switch {
		case svc.IsCancelled || strings.EqualFold(etd, "Cancelled"):
			dep.Status = models.StatusCancelled
			dep.IsCancelled = true
		case strings.EqualFold(etd, "On time") || etd == "":
			dep.Status = models.StatusOnTime
			est := dep.ScheduledTime
			dep.EstimatedTime = &est
		case strings.EqualFold(etd, "Delayed"):
			// Delayed with no estimate available
			dep.Status = models.StatusDelayed
		default:
			est := darwinClock(etd, b.GeneratedAt)
			dep.EstimatedTime = &est
			dep.DelayMinutes = int(est.Sub(dep.ScheduledTime).Minutes())
			if dep.DelayMinutes > 0 {
				dep.Status = models.StatusDelayed
			} else {
				dep.Status = models.StatusOnTime
			}
		}

		board.Departures = append(board.Departures, dep)
	}

	return board
}

// darwinClock resolves a "15:04" board time against the board's generated
// date. Times more than 6h behind the board are assumed to roll past
// midnight.
func darwinClock(hhmm string, generated time.Time) time.Time {
	parsed, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return generated
	}
	t := time.Date(generated.Year(), generated.Month(), generated.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, generated.Location())
	if t.Before(generated.Add(-6 * time.Hour)) {
		t = t.Add(24 * time.Hour)
	}
	return t
}

func darwinLocations(locs []darwinLocation) []models.Location {
	out := make([]models.Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, models.Location{
			Name:         l.LocationName,
			LocationCode: strings.ToUpper(l.CRS),
		})
	}
	return out
}
