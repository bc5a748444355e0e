package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/history"
	"github.com/use-agent/topdf/pipeline"
)

// runHistory lists or edits the record of past conversions.
func runHistory(args []string, stdout, stderr io.Writer) error {
	flags, err := parseHistoryFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.common.config)
	if err != nil {
		return err
	}
	initLogger(cfg.Log, stderr)

	size := cfg.Output.HistorySize
	if size <= 0 {
		size = history.DefaultSize
	}
	store := history.Open(filepath.Join(cfg.Output.StateDir, pipeline.HistoryFile), size)

	switch {
	case flags.clear:
		if err := store.Clear(); err != nil {
			return err
		}
		if !flags.common.quiet {
			fmt.Fprintln(stdout, "History cleared.")
		}
		return nil
	case flags.remove != "":
		removed, err := store.Remove(flags.remove)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: no history entry for %s", errUsage, flags.remove)
		}
		return nil
	}

	entries := store.Recent(flags.limit)
	if flags.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	printHistory(stdout, entries, time.Now())
	return nil
}

func printHistory(w io.Writer, entries []history.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No conversions yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tPAGES\tNAME\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", history.RelativeTime(e.CreatedAt, now), e.PageCount, e.Name, e.Path)
	}
	_ = tw.Flush()
}
