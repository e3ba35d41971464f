package oddsapi

import "github.com/shopspring/decimal"

// Game is one event with its bookmaker quotes, as returned by the odds endpoints.
type Game struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime string      `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// Bookmaker holds one book's markets for a game.
type Bookmaker struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LastUpdate string   `json:"last_update"`
	Markets    []Market `json:"markets"`
}

// Market is a single market (h2h, spreads, totals) at a bookmaker.
type Market struct {
	Key        string    `json:"key"`
	LastUpdate string    `json:"last_update"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Outcome is a priced side of a market. Point is set for spreads and totals.
type Outcome struct {
	Name  string              `json:"name"`
	Price decimal.NullDecimal `json:"price"`
	Point decimal.NullDecimal `json:"point"`
}

// Quota mirrors the x-requests-* usage headers.
type Quota struct {
	Remaining string
	Used      string
}

// OddsResult is the decoded live odds response.
type OddsResult struct {
	Games []Game
	// ResponseReceivedAt is the raw HTTP Date header of the response.
	ResponseReceivedAt string
	Quota              Quota
}

// HistoricalResult is the decoded historical odds response.
type HistoricalResult struct {
	// Timestamp is the snapshot time the API resolved the request to.
	Timestamp          string
	PreviousTimestamp  string
	NextTimestamp      string
	Games              []Game
	ResponseReceivedAt string
	Quota              Quota
}

type historicalResponse struct {
	Timestamp         string `json:"timestamp"`
	PreviousTimestamp string `json:"previous_timestamp"`
	NextTimestamp     string `json:"next_timestamp"`
	Data              []Game `json:"data"`
}

type errorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}
