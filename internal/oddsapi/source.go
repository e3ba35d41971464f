package oddsapi

import (
	"context"
	"time"
)

// LiveSource retrieves current odds for a sport.
type LiveSource interface {
	FetchOdds(ctx context.Context, sport string, bookmakers []string) (*OddsResult, error)
}

// HistoricalSource retrieves the odds snapshot closest to, and not after, a requested time.
type HistoricalSource interface {
	FetchHistoricalOdds(ctx context.Context, sport string, at time.Time) (*HistoricalResult, error)
}

var (
	_ LiveSource       = (*Client)(nil)
	_ HistoricalSource = (*Client)(nil)
)
