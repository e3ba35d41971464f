package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"odds-collector/internal/config"
)

var (
	// ErrSnapshotExists is returned when a write targets a file that is already present.
	ErrSnapshotExists = errors.New("storage: snapshot file already exists")
)

// FileStore is the append-only, file-per-snapshot data store.
type FileStore struct {
	liveDir       string
	historicalDir string
	trackedDirs   []string
	scanDirs      []string
}

// NewFileStore lays out the snapshot tree from storage settings.
func NewFileStore(cfg config.StorageConfig) *FileStore {
	tracked := uniqueDirs(cfg.HistoricalDir, cfg.DataRoot)
	return &FileStore{
		liveDir:       cfg.LiveDir,
		historicalDir: cfg.HistoricalDir,
		trackedDirs:   tracked,
		scanDirs:      uniqueDirs(cfg.LiveDir, cfg.HistoricalDir, cfg.DataRoot),
	}
}

func uniqueDirs(dirs ...string) []string {
	seen := make(map[string]bool, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		clean := filepath.Clean(d)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}

// LivePath is where a live snapshot taken at takenAt is written.
func (s *FileStore) LivePath(label string, takenAt time.Time) string {
	return filepath.Join(s.liveDir, LiveFileName(label, takenAt))
}

// HistoricalPath is where the historical snapshot for date (and label) is written.
func (s *FileStore) HistoricalPath(date time.Time, label string) string {
	return filepath.Join(s.historicalDir, DateFileName(date, label))
}

// FindHistorical reports the existing file that already covers date.
// A labeled series only matches its exact file; the unlabeled series matches odds_<date>.csv in any tracked dir.
func (s *FileStore) FindHistorical(date time.Time, label string) (string, bool, error) {
	if label != "" {
		path := s.HistoricalPath(date, label)
		ok, err := fileExists(path)
		if err != nil || !ok {
			return "", false, err
		}
		return path, true, nil
	}

	name := DateFileName(date, "")
	for _, dir := range s.trackedDirs {
		path := filepath.Join(dir, name)
		ok, err := fileExists(path)
		if err != nil {
			return "", false, err
		}
		if ok {
			return path, true, nil
		}
	}
	return "", false, nil
}

// Exists reports whether path is an existing regular file.
func (s *FileStore) Exists(path string) (bool, error) {
	return fileExists(path)
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// WriteSnapshot writes rows to a new file at path. The file appears complete or not at all,
// and an existing file is never replaced.
func (s *FileStore) WriteSnapshot(path string, rows []OddsSnapshotRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if ok, err := fileExists(path); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrSnapshotExists, path)
	}

	tmp, err := os.CreateTemp(dir, ".odds-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := gocsv.MarshalFile(&rows, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot csv: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}

	// link fails instead of replacing when path appeared in the meantime
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrSnapshotExists, path)
		}
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot file. Columns missing from older files stay empty.
func ReadSnapshot(path string) ([]OddsSnapshotRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []OddsSnapshotRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}

// ListSnapshotFiles returns every odds_*.csv below the live, historical and data-root dirs, sorted and de-duplicated.
func (s *FileStore) ListSnapshotFiles() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, dir := range s.scanDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := ParseFileName(d.Name()); !ok {
				return nil
			}
			clean := filepath.Clean(path)
			if !seen[clean] {
				seen[clean] = true
				files = append(files, clean)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
	}
	sort.Strings(files)
	return files, nil
}
