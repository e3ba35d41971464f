package service

import (
	"strings"

	"github.com/rs/zerolog"

	"odds-collector/internal/oddsapi"
	"odds-collector/internal/storage"
)

// Provenance carries the timestamps stamped onto every row of one response.
type Provenance struct {
	Date               string
	SnapshotTakenAt    string
	APISnapshotAt      string
	ResponseReceivedAt string
}

// BookmakerFilter selects and renames bookmakers. A zero filter keeps everything under its API key.
type BookmakerFilter struct {
	Keys    map[string]bool
	Aliases map[string]string
}

// NewBookmakerFilter builds a filter. An empty keys list disables filtering.
func NewBookmakerFilter(keys []string, aliases map[string]string) BookmakerFilter {
	f := BookmakerFilter{Aliases: aliases}
	if len(keys) > 0 {
		f.Keys = make(map[string]bool, len(keys))
		for _, k := range keys {
			f.Keys[k] = true
		}
	}
	return f
}

func (f BookmakerFilter) allow(key string) bool {
	return f.Keys == nil || f.Keys[key]
}

func (f BookmakerFilter) display(key string) string {
	if alias, ok := f.Aliases[key]; ok && alias != "" {
		return alias
	}
	return key
}

// SportDisplayName maps an API sport key to the short name stored in the sport column.
func SportDisplayName(sportKey string) string {
	switch {
	case strings.Contains(sportKey, "nhl"):
		return "NHL"
	case strings.Contains(sportKey, "nba"):
		return "NBA"
	default:
		return strings.ToUpper(sportKey)
	}
}

// FlattenGames turns the nested game/bookmaker response into one row per (game, bookmaker).
// Games without an id or teams are logged and dropped.
func FlattenGames(games []oddsapi.Game, sportKey string, prov Provenance, filter BookmakerFilter, logger zerolog.Logger) []storage.OddsSnapshotRow {
	rows := make([]storage.OddsSnapshotRow, 0, len(games)*2)
	for _, game := range games {
		if game.ID == "" || game.HomeTeam == "" || game.AwayTeam == "" {
			logger.Warn().Str("date", prov.Date).Str("sport", sportKey).Str("game_id", game.ID).
				Msg("omitting malformed game entry")
			continue
		}

		key := game.SportKey
		if key == "" {
			key = sportKey
		}

		for _, bm := range game.Bookmakers {
			if !filter.allow(bm.Key) {
				continue
			}
			rows = append(rows, flattenBookmaker(game, bm, SportDisplayName(key), prov, filter))
		}
	}
	return rows
}

func flattenBookmaker(game oddsapi.Game, bm oddsapi.Bookmaker, sport string, prov Provenance, filter BookmakerFilter) storage.OddsSnapshotRow {
	row := storage.OddsSnapshotRow{
		Date:               prov.Date,
		Sport:              sport,
		GameID:             game.ID,
		CommenceTime:       game.CommenceTime,
		HomeTeam:           game.HomeTeam,
		AwayTeam:           game.AwayTeam,
		Bookmaker:          filter.display(bm.Key),
		SnapshotTakenAt:    prov.SnapshotTakenAt,
		APISnapshotAt:      prov.APISnapshotAt,
		ResponseReceivedAt: prov.ResponseReceivedAt,
		BookmakerUpdatedAt: bm.LastUpdate,
	}

	if h2h := outcomesFor(bm.Markets, "h2h"); h2h != nil {
		if o, ok := h2h[game.HomeTeam]; ok {
			row.MLHome = storage.NewNumber(o.Price)
		}
		if o, ok := h2h[game.AwayTeam]; ok {
			row.MLAway = storage.NewNumber(o.Price)
		}
	}

	if spreads := outcomesFor(bm.Markets, "spreads"); spreads != nil {
		if o, ok := spreads[game.HomeTeam]; ok {
			row.SpreadHome = storage.NewNumber(o.Point)
			row.SpreadHomeOdds = storage.NewNumber(o.Price)
		}
		if o, ok := spreads[game.AwayTeam]; ok {
			row.SpreadAway = storage.NewNumber(o.Point)
			row.SpreadAwayOdds = storage.NewNumber(o.Price)
		}
	}

	if totals := outcomesFor(bm.Markets, "totals"); totals != nil {
		if o, ok := totals["Over"]; ok {
			row.TotalLine = storage.NewNumber(o.Point)
			row.TotalOverOdds = storage.NewNumber(o.Price)
		}
		if o, ok := totals["Under"]; ok {
			row.TotalUnderOdds = storage.NewNumber(o.Price)
		}
	}

	return row
}

// outcomesFor indexes the first market with key by outcome name.
func outcomesFor(markets []oddsapi.Market, key string) map[string]oddsapi.Outcome {
	for _, m := range markets {
		if m.Key != key {
			continue
		}
		out := make(map[string]oddsapi.Outcome, len(m.Outcomes))
		for _, o := range m.Outcomes {
			out[o.Name] = o
		}
		return out
	}
	return nil
}
