package storage

import (
	"fmt"
	"regexp"
	"time"

	"odds-collector/internal/config"
)

// TakenAtLayout is the compact UTC stamp embedded in live snapshot file names.
const TakenAtLayout = "20060102T150405Z"

var (
	timestampedNameRE = regexp.MustCompile(`^odds_(\d{4}-\d{2}-\d{2})_(.+)_(\d{8}T\d{6}Z)\.csv$`)
	plainNameRE       = regexp.MustCompile(`^odds_(\d{4}-\d{2}-\d{2})\.csv$`)
	labeledNameRE     = regexp.MustCompile(`^odds_(\d{4}-\d{2}-\d{2})_(.+)\.csv$`)
)

// NameKind classifies snapshot file names.
type NameKind int

const (
	NameUnknown NameKind = iota
	// NamePlain is odds_<date>.csv.
	NamePlain
	// NameLabeled is odds_<date>_<label>.csv.
	NameLabeled
	// NameTimestamped is odds_<date>_<label>_<YYYYMMDDTHHMMSSZ>.csv.
	NameTimestamped
)

// ParsedName is the identity encoded in a snapshot file name.
type ParsedName struct {
	Kind    NameKind
	Date    string
	Label   string
	TakenAt time.Time
}

// LiveFileName builds odds_<date>_<label>_<stamp>.csv for a live snapshot taken at takenAt.
func LiveFileName(label string, takenAt time.Time) string {
	takenAt = takenAt.UTC()
	return fmt.Sprintf("odds_%s_%s_%s.csv", takenAt.Format(config.DateLayout), label, takenAt.Format(TakenAtLayout))
}

// DateFileName builds odds_<date>.csv, or odds_<date>_<label>.csv when label is set.
func DateFileName(date time.Time, label string) string {
	if label == "" {
		return fmt.Sprintf("odds_%s.csv", date.Format(config.DateLayout))
	}
	return fmt.Sprintf("odds_%s_%s.csv", date.Format(config.DateLayout), label)
}

// ParseFileName recognises the snapshot naming conventions.
func ParseFileName(name string) (ParsedName, bool) {
	if m := timestampedNameRE.FindStringSubmatch(name); m != nil {
		takenAt, err := time.Parse(TakenAtLayout, m[3])
		if err == nil {
			return ParsedName{Kind: NameTimestamped, Date: m[1], Label: m[2], TakenAt: takenAt}, true
		}
	}
	if m := plainNameRE.FindStringSubmatch(name); m != nil {
		return ParsedName{Kind: NamePlain, Date: m[1]}, true
	}
	if m := labeledNameRE.FindStringSubmatch(name); m != nil {
		return ParsedName{Kind: NameLabeled, Date: m[1], Label: m[2]}, true
	}
	return ParsedName{}, false
}
