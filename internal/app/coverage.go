package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"odds-collector/internal/config"
	"odds-collector/internal/service"
	"odds-collector/internal/storage"
)

// Coverage prints, per date, which historical snapshot covers it and how many live snapshots were taken.
func (a *App) Coverage(ctx context.Context, opts CoverageOptions) error {
	targets, err := service.BackfillOptions{Start: opts.Start, End: opts.End, Label: opts.Label}.Targets()
	if err != nil {
		return err
	}

	files := a.newFileStore()
	all, err := files.ListSnapshotFiles()
	if err != nil {
		return err
	}
	liveByDate := make(map[string]int)
	for _, path := range all {
		if parsed, ok := storage.ParseFileName(filepath.Base(path)); ok && parsed.Kind == storage.NameTimestamped {
			liveByDate[parsed.Date]++
		}
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	manifestByDate := make(map[string][]string)
	if store != nil {
		entries, err := store.ListBetween(ctx, opts.Start, opts.End)
		if err != nil {
			return err
		}
		for _, e := range entries {
			key := e.SnapshotDate.UTC().Format(config.DateLayout)
			label := e.Label
			if label == "" {
				label = "-"
			}
			manifestByDate[key] = append(manifestByDate[key], fmt.Sprintf("%s:%s", e.Kind, label))
		}
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tHistorical\tLive\tManifest")

	collected := 0
	for _, target := range targets {
		date := target.DateString()
		historical := "MISSING"
		path, found, err := files.FindHistorical(target.Date, target.Label)
		if err != nil {
			return err
		}
		if found {
			historical = path
			collected++
		}

		manifest := "-"
		if entries := manifestByDate[date]; len(entries) > 0 {
			manifest = strings.Join(entries, ",")
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", date, historical, liveByDate[date], manifest)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "%d of %d dates collected\n", collected, len(targets))
	return nil
}
