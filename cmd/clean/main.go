// Command clean merges corpus passes, drops short tracks and prints track
// length statistics.
//
// Usage:
//
//	clean [-out merged.txt] [-min-points N] pass1.txt [pass2.txt ...]
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/banshee-data/trajectory.predict/internal/config"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

var (
	outPath    = flag.String("out", "", "Optional corpus file for the cleaned result")
	minPoints  = flag.Int("min-points", -1, "Drop tracks shorter than this; negative uses min_track_points from the config")
	configPath = flag.String("config", "", "Tuning config JSON (defaults built in)")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("at least one corpus file is required")
	}

	tuning, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	keep := *minPoints
	if keep < 0 {
		keep = tuning.GetMinTrackPoints()
	}

	merged, err := trajectory.ReadMergedFiles(flag.Args()...)
	if err != nil {
		log.Fatalf("failed to read corpus: %v", err)
	}
	cleaned := trajectory.Clean(merged, keep)
	log.Printf("%d files merged into %d trajectories, %d kept with at least %d points",
		flag.NArg(), len(merged), len(cleaned), keep)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(trajectory.Summarize(cleaned)); err != nil {
		log.Fatalf("failed to print statistics: %v", err)
	}

	if *outPath == "" {
		return
	}
	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	w := bufio.NewWriter(out)
	if err := trajectory.WriteRecords(w, cleaned); err != nil {
		log.Fatalf("failed to write corpus: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("failed to write corpus: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("failed to close output: %v", err)
	}
}
