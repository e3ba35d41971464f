// Package repair normalises existing snapshot CSV files: it adds missing timestamp columns,
// fills snapshot_taken_at_utc where the file name still encodes it, and rewrites the header
// in the canonical column order. No API calls are made.
package repair

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"odds-collector/internal/storage"
)

// DefaultPaths are scanned when no paths are given.
var DefaultPaths = []string{"odds-data/historical", "odds-data"}

// Options configure a repair run.
type Options struct {
	Paths             []string
	HistoricalHourUTC int
	DryRun            bool
}

// Validate checks the inference hour.
func (o Options) Validate() error {
	if o.HistoricalHourUTC < 0 || o.HistoricalHourUTC > 23 {
		return fmt.Errorf("historical hour must be between 0 and 23")
	}
	return nil
}

// Result is the outcome for one file.
type Result struct {
	Path    string
	Changed bool
	Reason  string
}

// Summary counts a whole run.
type Summary struct {
	DryRun    bool
	Scanned   int
	Updated   int
	Unchanged int
	Failed    int
}

func (s Summary) String() string {
	mode := "WRITE"
	if s.DryRun {
		mode = "DRY RUN"
	}
	return fmt.Sprintf("%s complete: %d updated, %d unchanged, %d scanned", mode, s.Updated, s.Unchanged, s.Scanned)
}

// Repairer applies the repair rules to a set of files.
type Repairer struct {
	opts   Options
	logger zerolog.Logger
}

// New builds a Repairer. Empty paths fall back to DefaultPaths.
func New(opts Options, logger zerolog.Logger) (*Repairer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Paths) == 0 {
		opts.Paths = DefaultPaths
	}
	return &Repairer{opts: opts, logger: logger.With().Str("component", "repair").Logger()}, nil
}

// Run processes every file under the configured paths and reports changed files to out.
// A file that cannot be processed is logged and counted as failed; the run continues.
func (r *Repairer) Run(out io.Writer) (Summary, error) {
	summary := Summary{DryRun: r.opts.DryRun}

	files, err := CollectFiles(r.opts.Paths)
	if err != nil {
		return summary, err
	}

	for _, path := range files {
		summary.Scanned++
		res, err := r.File(path)
		if err != nil {
			summary.Failed++
			r.logger.Error().Err(err).Str("path", path).Msg("repair failed")
			continue
		}
		if !res.Changed {
			summary.Unchanged++
			continue
		}
		summary.Updated++
		fmt.Fprintf(out, "UPDATED %s (%s)\n", res.Path, res.Reason)
	}

	fmt.Fprintln(out, summary.String())
	r.logger.Info().
		Bool("dry_run", summary.DryRun).
		Int("scanned", summary.Scanned).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Msg("timestamp repair finished")
	return summary, nil
}

// CollectFiles expands paths into a sorted, de-duplicated list of snapshot CSV files.
// Missing paths are ignored; a file path is taken as is when it ends in .csv.
func CollectFiles(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		clean := filepath.Clean(p)
		if !seen[clean] {
			seen[clean] = true
			files = append(files, clean)
		}
	}

	for _, base := range paths {
		info, err := os.Stat(base)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", base, err)
		}
		if !info.IsDir() {
			if strings.HasSuffix(base, ".csv") {
				add(base)
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match("odds_*.csv", d.Name()); ok {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", base, err)
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return files, nil
}

// InferSnapshotTime derives snapshot_taken_at_utc from a file path, or "" when the name does not encode it.
func InferSnapshotTime(path string, historicalHourUTC int) string {
	parsed, ok := storage.ParseFileName(filepath.Base(path))
	if !ok {
		return ""
	}
	switch parsed.Kind {
	case storage.NameTimestamped:
		return parsed.TakenAt.UTC().Format("2006-01-02T15:04:05Z")
	case storage.NamePlain:
		if inHistoricalDir(path) {
			return fmt.Sprintf("%sT%02d:00:00Z", parsed.Date, historicalHourUTC)
		}
		return parsed.Date + "T00:00:00Z"
	default:
		return ""
	}
}

func inHistoricalDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if part == "historical" {
			return true
		}
	}
	return false
}

// File repairs a single file, writing it back unless the run is a dry run.
func (r *Repairer) File(path string) (Result, error) {
	res := Result{Path: path}

	header, records, err := readCSV(path)
	if err != nil {
		return res, err
	}
	if header == nil {
		res.Reason = "empty/no header"
		return res, nil
	}

	columns := canonicalOrder(header)
	var reasons []string
	if added := len(columns) - len(header); added > 0 {
		reasons = append(reasons, fmt.Sprintf("added %d columns", added))
	} else if !slices.Equal(columns, header) {
		reasons = append(reasons, "reordered columns")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	inferred := InferSnapshotTime(path, r.opts.HistoricalHourUTC)
	snapshotIdx := slices.Index(columns, "snapshot_taken_at_utc")
	filled := 0
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, name := range columns {
			if j, ok := index[name]; ok && j < len(rec) {
				row[i] = rec[j]
			}
		}
		if inferred != "" && row[snapshotIdx] == "" {
			row[snapshotIdx] = inferred
			filled++
		}
		rows = append(rows, row)
	}
	if filled > 0 {
		reasons = append(reasons, fmt.Sprintf("filled snapshot_taken_at_utc in %d rows", filled))
	}

	if len(reasons) == 0 {
		res.Reason = "already up to date"
		return res, nil
	}
	res.Changed = true
	res.Reason = strings.Join(reasons, ", ")
	if len(records) == 0 {
		res.Reason = "header-only update"
	}

	if r.opts.DryRun {
		return res, nil
	}
	if err := rewrite(path, columns, rows); err != nil {
		return res, err
	}
	return res, nil
}

// canonicalOrder lists the known columns present in header (plus every timestamp column) in schema
// order, followed by any unknown columns in their original order.
func canonicalOrder(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[name] = true
	}
	for _, name := range storage.TimestampColumns {
		present[name] = true
	}

	known := make(map[string]bool, len(storage.Columns))
	out := make([]string, 0, len(header)+len(storage.TimestampColumns))
	for _, name := range storage.Columns {
		known[name] = true
		if present[name] {
			out = append(out, name)
		}
	}
	for _, name := range header {
		if !known[name] {
			out = append(out, name)
		}
	}
	return out
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header %s: %w", path, err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows %s: %w", path, err)
	}
	return header, records, nil
}

// rewrite replaces path atomically with the repaired content.
func rewrite(path string, header []string, rows [][]string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".repair-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
