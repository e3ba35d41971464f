package oddsapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const liveBody = `[{
  "id": "g1",
  "sport_key": "icehockey_nhl",
  "commence_time": "2025-01-14T00:10:00Z",
  "home_team": "Boston Bruins",
  "away_team": "Toronto Maple Leafs",
  "bookmakers": [{
    "key": "betmgm",
    "last_update": "2025-01-13T16:58:00Z",
    "markets": [
      {"key": "h2h", "outcomes": [{"name": "Boston Bruins", "price": -135}, {"name": "Toronto Maple Leafs", "price": 115}]},
      {"key": "totals", "outcomes": [{"name": "Over", "price": -110, "point": 6.5}, {"name": "Under", "price": -110, "point": 6.5}]}
    ]
  }]
}]`

func testClient(url string) *Client {
	return NewClient(Options{
		BaseURL:      url,
		APIKey:       "secret",
		Timeout:      time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, zerolog.Nop())
}

func TestFetchOddsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports/icehockey_nhl/odds", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "secret", q.Get("apiKey"))
		assert.Equal(t, "us", q.Get("regions"))
		assert.Equal(t, "h2h,spreads,totals", q.Get("markets"))
		assert.Equal(t, "american", q.Get("oddsFormat"))
		assert.Equal(t, "betmgm,williamhill_us", q.Get("bookmakers"))

		w.Header().Set("x-requests-remaining", "480")
		w.Header().Set("x-requests-used", "20")
		_, _ = w.Write([]byte(liveBody))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).FetchOdds(context.Background(), "icehockey_nhl", []string{"betmgm", "williamhill_us"})
	require.NoError(t, err)
	require.Len(t, res.Games, 1)

	game := res.Games[0]
	assert.Equal(t, "g1", game.ID)
	require.Len(t, game.Bookmakers, 1)
	h2h := game.Bookmakers[0].Markets[0]
	assert.Equal(t, "-135", h2h.Outcomes[0].Price.Decimal.String())
	assert.False(t, h2h.Outcomes[0].Point.Valid)
	assert.Equal(t, "6.5", game.Bookmakers[0].Markets[1].Outcomes[0].Point.Decimal.String())

	assert.Equal(t, "480", res.Quota.Remaining)
	assert.Equal(t, "20", res.Quota.Used)
	assert.NotEmpty(t, res.ResponseReceivedAt, "Date header should be captured")
}

func TestFetchHistoricalOdds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/historical/sports/icehockey_nhl/odds", r.URL.Path)
		assert.Equal(t, "2023-10-10T17:00:00Z", r.URL.Query().Get("date"))
		assert.Empty(t, r.URL.Query().Get("bookmakers"))
		_, _ = w.Write([]byte(`{"timestamp":"2023-10-10T16:55:00Z","previous_timestamp":"2023-10-10T16:50:00Z","data":` + liveBody + `}`))
	}))
	defer srv.Close()

	at := time.Date(2023, 10, 10, 17, 0, 0, 0, time.UTC)
	res, err := testClient(srv.URL).FetchHistoricalOdds(context.Background(), "icehockey_nhl", at)
	require.NoError(t, err)
	assert.Equal(t, "2023-10-10T16:55:00Z", res.Timestamp)
	assert.Equal(t, "2023-10-10T16:50:00Z", res.PreviousTimestamp)
	assert.Len(t, res.Games, 1)
}

func TestFetchUnauthorizedIsFatalAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Usage quota has been reached","error_code":"OUT_OF_USAGE_CREDITS"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchOdds(context.Background(), "icehockey_nhl", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "OUT_OF_USAGE_CREDITS", httpErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).FetchOdds(context.Background(), "icehockey_nhl", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Games)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchOdds(context.Background(), "icehockey_nhl", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchOdds(context.Background(), "icehockey_nhl", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestFetchMissingKey(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:0"}, zerolog.Nop())
	_, err := c.FetchHistoricalOdds(context.Background(), "icehockey_nhl", time.Now())
	assert.True(t, errors.Is(err, ErrUnauthorized))
}
