package app

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	chart "github.com/wcharczuk/go-chart/v2"

	"odds-collector/internal/repair"
	"odds-collector/internal/storage"
)

// LinePoint is one bookmaker's lines for a game as seen in one snapshot file.
type LinePoint struct {
	SnapshotAt time.Time      `csv:"-"`
	Taken      string         `csv:"snapshot_taken_at_utc"`
	Bookmaker  string         `csv:"bookmaker"`
	MLHome     storage.Number `csv:"ml_home"`
	MLAway     storage.Number `csv:"ml_away"`
	SpreadHome storage.Number `csv:"spread_home"`
	TotalLine  storage.Number `csv:"total_line"`
	Source     string         `csv:"source_file"`
}

// Export renders one game's line history from the snapshot files as CSV and/or PNG.
func (a *App) Export(opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.GameID == "" {
		return errors.New("--game-id is required")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	points, err := a.collectLinePoints(opts)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("game_id", opts.GameID).Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting line history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, opts.GameID, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) collectLinePoints(opts ExportOptions) ([]LinePoint, error) {
	files, err := a.newFileStore().ListSnapshotFiles()
	if err != nil {
		return nil, err
	}

	var points []LinePoint
	for _, path := range files {
		rows, err := storage.ReadSnapshot(path)
		if err != nil {
			a.Logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable snapshot")
			continue
		}
		inferred := repair.InferSnapshotTime(path, a.Config.Historical.HourUTC)
		for _, row := range rows {
			if row.GameID != opts.GameID {
				continue
			}
			if opts.Bookmaker != "" && row.Bookmaker != opts.Bookmaker {
				continue
			}
			taken := row.SnapshotTakenAt
			if taken == "" {
				taken = inferred
			}
			at, err := time.Parse(time.RFC3339, taken)
			if err != nil {
				continue
			}
			if opts.From != nil && at.Before(*opts.From) {
				continue
			}
			if opts.To != nil && !at.Before(*opts.To) {
				continue
			}
			points = append(points, LinePoint{
				SnapshotAt: at.UTC(),
				Taken:      at.UTC().Format(time.RFC3339),
				Bookmaker:  row.Bookmaker,
				MLHome:     row.MLHome,
				MLAway:     row.MLAway,
				SpreadHome: row.SpreadHome,
				TotalLine:  row.TotalLine,
				Source:     filepath.Base(path),
			})
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].SnapshotAt.Equal(points[j].SnapshotAt) {
			return points[i].SnapshotAt.Before(points[j].SnapshotAt)
		}
		return points[i].Bookmaker < points[j].Bookmaker
	})
	return points, nil
}

func downsamplePoints(points []LinePoint, max int) []LinePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]LinePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []LinePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return gocsv.MarshalFile(&points, file)
}

func writePointsPNG(path, gameID string, points []LinePoint) error {
	type series struct {
		x []time.Time
		y []float64
	}
	byName := make(map[string]*series)
	var names []string
	add := func(name string, at time.Time, n storage.Number) {
		v, ok := n.Float()
		if !ok {
			return
		}
		s, exists := byName[name]
		if !exists {
			s = &series{}
			byName[name] = s
			names = append(names, name)
		}
		s.x = append(s.x, at)
		s.y = append(s.y, v)
	}
	for _, p := range points {
		add(p.Bookmaker+" home", p.SnapshotAt, p.MLHome)
		add(p.Bookmaker+" away", p.SnapshotAt, p.MLAway)
	}

	var (
		plotted    []chart.Series
		minX, maxX time.Time
		minY, maxY = math.Inf(1), math.Inf(-1)
	)
	for _, name := range names {
		s := byName[name]
		if len(s.x) < 2 {
			continue
		}
		plotted = append(plotted, chart.TimeSeries{Name: name, XValues: s.x, YValues: s.y})
		for i := range s.x {
			if minX.IsZero() || s.x[i].Before(minX) {
				minX = s.x[i]
			}
			if s.x[i].After(maxX) {
				maxX = s.x[i]
			}
			minY = math.Min(minY, s.y[i])
			maxY = math.Max(maxY, s.y[i])
		}
	}
	if len(plotted) == 0 || !maxX.After(minX) {
		return fmt.Errorf("game %s needs at least two snapshots with moneylines to chart", gameID)
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Moneyline history %s", gameID),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:  "American odds",
			Range: &chart.ContinuousRange{Min: minY - 10, Max: maxY + 10},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
