package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railboard/railboard_core/internal/models"
)

const darwinFixture = `{
	"locationName": "London Kings Cross",
	"crs": "KGX",
	"generatedAt": "2026-08-28T14:55:00Z",
	"trainServices": [
		{
			"serviceID": "ABC123",
			"std": "15:04",
			"etd": "On time",
			"platform": "4",
			"operator": "LNER",
			"operatorCode": "GR",
			"origin": [{"locationName": "London Kings Cross", "crs": "KGX"}],
			"destination": [{"locationName": "Edinburgh Waverley", "crs": "edb"}]
		},
		{
			"serviceID": "DEF456",
			"std": "15:10",
			"etd": "15:22",
			"operator": "LNER",
			"operatorCode": "GR",
			"origin": [{"locationName": "London Kings Cross", "crs": "KGX"}],
			"destination": [{"locationName": "Leeds", "crs": "LDS"}]
		},
		{
			"serviceID": "GHI789",
			"std": "15:15",
			"etd": "Cancelled",
			"isCancelled": true,
			"cancelReason": "a points failure",
			"operator": "Thameslink",
			"operatorCode": "TL",
			"origin": [{"locationName": "London Kings Cross", "crs": "KGX"}],
			"destination": [{"locationName": "Cambridge", "crs": "CBG"}]
		},
		{
			"serviceID": "JKL012",
			"std": "15:20",
			"etd": "Delayed",
			"delayReason": "awaiting a train crew member",
			"operator": "LNER",
			"operatorCode": "GR",
			"origin": [{"locationName": "London Kings Cross", "crs": "KGX"}],
			"destination": [{"locationName": "York", "crs": "YRK"}]
		}
	]
}`

func darwinServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestDarwinAdapterDisabled(t *testing.T) {
	adapter := NewDarwinAdapter(DarwinConfig{})
	assert.False(t, adapter.Enabled())

	_, err := adapter.FetchBoard(context.Background(), models.BoardRequest{StationCode: "KGX", NumRows: 5})
	assert.True(t, IsCode(err, CodeNotEnabled))
}

func TestDarwinAdapterTranslation(t *testing.T) {
	server := darwinServer(t, http.StatusOK, darwinFixture)
	defer server.Close()

	adapter := NewDarwinAdapter(DarwinConfig{BaseURL: server.URL, Token: "test-token"})
	board, err := adapter.FetchBoard(context.Background(), models.BoardRequest{StationCode: "KGX", NumRows: 10})
	require.NoError(t, err)

	assert.Equal(t, "KGX", board.StationCode)
	assert.Equal(t, "London Kings Cross", board.StationName)
	assert.Equal(t, time.Date(2026, 8, 28, 14, 55, 0, 0, time.UTC), board.SourceTime)
	require.Len(t, board.Departures, 4)

	t.Run("on time service", func(t *testing.T) {
		d := board.Departures[0]
		assert.Equal(t, "darwin:ABC123", d.ServiceID)
		assert.Equal(t, models.StatusOnTime, d.Status)
		assert.Equal(t, 0, d.DelayMinutes)
		assert.Equal(t, "4", d.Platform)
		assert.Equal(t, "GR", d.OperatorCode)
		assert.Equal(t, time.Date(2026, 8, 28, 15, 4, 0, 0, time.UTC), d.ScheduledTime)
		require.NotNil(t, d.EstimatedTime)
		assert.True(t, d.EstimatedTime.Equal(d.ScheduledTime))
		require.Len(t, d.Destination, 1)
		assert.Equal(t, "EDB", d.Destination[0].LocationCode)
	})

	t.Run("delayed service with estimate", func(t *testing.T) {
		d := board.Departures[1]
		assert.Equal(t, models.StatusDelayed, d.Status)
		assert.Equal(t, 12, d.DelayMinutes)
		require.NotNil(t, d.EstimatedTime)
		assert.Equal(t, time.Date(2026, 8, 28, 15, 22, 0, 0, time.UTC), *d.EstimatedTime)
	})

	t.Run("cancelled service", func(t *testing.T) {
		d := board.Departures[2]
		assert.Equal(t, models.StatusCancelled, d.Status)
		assert.True(t, d.IsCancelled)
		assert.Equal(t, 0, d.DelayMinutes)
		assert.Equal(t, "a points failure", d.CancelReason)
		assert.Nil(t, d.EstimatedTime)
	})

	t.Run("delayed without estimate", func(t *testing.T) {
		d := board.Departures[3]
		assert.Equal(t, models.StatusDelayed, d.Status)
		assert.Nil(t, d.EstimatedTime)
		assert.Equal(t, "awaiting a train crew member", d.DelayReason)
	})
}

func TestDarwinAdapterErrors(t *testing.T) {
	t.Run("not found is NO_DATA", func(t *testing.T) {
		server := darwinServer(t, http.StatusNotFound, `{}`)
		defer server.Close()

		adapter := NewDarwinAdapter(DarwinConfig{BaseURL: server.URL, Token: "test-token"})
		_, err := adapter.FetchBoard(context.Background(), models.BoardRequest{StationCode: "XXX", NumRows: 5})
		assert.True(t, IsCode(err, CodeNoData))
	})

	t.Run("server error is HTTP_ERROR", func(t *testing.T) {
		server := darwinServer(t, http.StatusBadGateway, `{}`)
		defer server.Close()

		adapter := NewDarwinAdapter(DarwinConfig{BaseURL: server.URL, Token: "test-token"})
		_, err := adapter.FetchBoard(context.Background(), models.BoardRequest{StationCode: "KGX", NumRows: 5})
		assert.True(t, IsCode(err, CodeHTTPError))
	})

	t.Run("malformed body is INVALID_RESPONSE_TYPE", func(t *testing.T) {
		server := darwinServer(t, http.StatusOK, `<html>not json</html>`)
		defer server.Close()

		adapter := NewDarwinAdapter(DarwinConfig{BaseURL: server.URL, Token: "test-token"})
		_, err := adapter.FetchBoard(context.Background(), models.BoardRequest{StationCode: "KGX", NumRows: 5})
		assert.True(t, IsCode(err, CodeInvalidResponse))
	})

	t.Run("unreachable host is CONNECTION_ERROR", func(t *testing.T) {
		adapter := NewDarwinAdapter(DarwinConfig{
			BaseURL: "http://127.0.0.1:1",
			Token:   "test-token",
			Timeout: 200 * time.Millisecond,
		})
		_, err := adapter.FetchBoard(context.Background(), models.BoardRequest{StationCode: "KGX", NumRows: 5})
		assert.True(t, IsCode(err, CodeConnectionError))
	})
}

func TestDarwinClockMidnightRollover(t *testing.T) {
	generated := time.Date(2026, 8, 28, 23, 50, 0, 0, time.UTC)
	resolved := darwinClock("00:10", generated)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 10, 0, 0, time.UTC), resolved)
}
