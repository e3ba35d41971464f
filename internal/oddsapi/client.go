package oddsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.the-odds-api.com/v4"
	defaultUserAgent = "oddscollector/1.0"
	historicalLayout = "2006-01-02T15:04:05Z"
)

// Options parameterise the odds API client.
type Options struct {
	BaseURL      string
	APIKey       string
	Regions      []string
	Markets      []string
	OddsFormat   string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MinInterval  time.Duration
	UserAgent    string
}

// Client talks to The Odds API v4. Requests are paced and retried; it is not meant for concurrent use.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewClient constructs an odds API client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.OddsFormat == "" {
		opts.OddsFormat = "american"
	}
	if len(opts.Regions) == 0 {
		opts.Regions = []string{"us"}
	}
	if len(opts.Markets) == 0 {
		opts.Markets = []string{"h2h", "spreads", "totals"}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	var limiter *rate.Limiter
	if opts.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "oddsapi").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: limiter,
	}
}

// FetchOdds retrieves current odds for a sport, optionally restricted to bookmakers.
func (c *Client) FetchOdds(ctx context.Context, sport string, bookmakers []string) (*OddsResult, error) {
	params := c.baseParams()
	if len(bookmakers) > 0 {
		params.Set("bookmakers", strings.Join(bookmakers, ","))
	}

	path := fmt.Sprintf("/sports/%s/odds", url.PathEscape(sport))
	resp, err := c.get(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("fetch odds for %s: %w", sport, err)
	}

	var games []Game
	if err := json.Unmarshal(resp.body, &games); err != nil {
		return nil, fmt.Errorf("decode odds for %s: %w: %v", sport, ErrMalformedResponse, err)
	}

	return &OddsResult{
		Games:              games,
		ResponseReceivedAt: resp.date,
		Quota:              resp.quota,
	}, nil
}

// FetchHistoricalOdds retrieves the snapshot at or before at.
func (c *Client) FetchHistoricalOdds(ctx context.Context, sport string, at time.Time) (*HistoricalResult, error) {
	params := c.baseParams()
	params.Set("date", at.UTC().Format(historicalLayout))

	path := fmt.Sprintf("/historical/sports/%s/odds", url.PathEscape(sport))
	resp, err := c.get(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("fetch historical odds for %s at %s: %w", sport, at.UTC().Format(historicalLayout), err)
	}

	var payload historicalResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, fmt.Errorf("decode historical odds for %s: %w: %v", sport, ErrMalformedResponse, err)
	}

	return &HistoricalResult{
		Timestamp:          payload.Timestamp,
		PreviousTimestamp:  payload.PreviousTimestamp,
		NextTimestamp:      payload.NextTimestamp,
		Games:              payload.Data,
		ResponseReceivedAt: resp.date,
		Quota:              resp.quota,
	}, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("apiKey", c.opts.APIKey)
	params.Set("regions", strings.Join(c.opts.Regions, ","))
	params.Set("markets", strings.Join(c.opts.Markets, ","))
	params.Set("oddsFormat", c.opts.OddsFormat)
	params.Set("dateFormat", "iso")
	return params
}

type response struct {
	body  []byte
	date  string
	quota Quota
}

// get performs a GET with pacing and retries. 4xx other than 429 is returned immediately.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*response, error) {
	if c.opts.APIKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", ErrUnauthorized)
	}

	fullURL := c.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
			c.logger.Warn().Err(lastErr).Str("path", path).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying odds request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.do(ctx, fullURL)
		if err == nil {
			c.logger.Debug().Str("path", path).
				Str("requests_remaining", resp.quota.Remaining).
				Str("requests_used", resp.quota.Used).
				Msg("odds request completed")
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}

	if c.opts.MaxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) do(ctx context.Context, fullURL string) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", redactKey(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, body)
	}

	return &response{
		body: body,
		date: resp.Header.Get("Date"),
		quota: Quota{
			Remaining: resp.Header.Get("x-requests-remaining"),
			Used:      resp.Header.Get("x-requests-used"),
		},
	}, nil
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	// network failures and client timeouts
	return true
}

func parseHTTPError(status int, payload []byte) error {
	httpErr := &HTTPError{StatusCode: status}
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		httpErr.Message = apiErr.Message
		httpErr.Code = apiErr.ErrorCode
		return httpErr
	}
	httpErr.Message = strings.TrimSpace(string(payload))
	return httpErr
}

// redactKey strips the query string, and with it the api key, from url errors.
func redactKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			u.RawQuery = ""
			return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
		}
	}
	return err
}
