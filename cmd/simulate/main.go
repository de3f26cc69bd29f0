// Command simulate writes a synthetic roundabout corpus file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/trajectory.predict/internal/config"
	"github.com/banshee-data/trajectory.predict/internal/render"
	"github.com/banshee-data/trajectory.predict/internal/sim"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
	"github.com/banshee-data/trajectory.predict/internal/version"
)

var (
	outPath     = flag.String("out", "", "Corpus file to write (required)")
	objects     = flag.Int("objects", sim.DefaultConfig().Objects, "Number of simulated objects")
	seed        = flag.Uint64("seed", 1, "Random seed")
	noise       = flag.Bool("noise", false, "Apply noise_amplitude jitter from the tuning config")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults built in)")
	overview    = flag.String("overview", "", "Optional PNG path for a plot of the whole corpus")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("simulate"))
		return
	}
	if *outPath == "" {
		log.Fatal("-out is required")
	}

	tuning, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg := sim.DefaultConfig()
	cfg.Objects = *objects
	cfg.InnerRadius = tuning.GetInnerRadius()
	cfg.OuterRadius = tuning.GetOuterRadius()

	trajs, err := sim.Generate(cfg, *seed)
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
	if *noise {
		trajs = trajectory.AddNoise(trajs, tuning.GetNoiseAmplitude(), tuning.GetNoiseSeed())
	}

	if err := writeCorpus(*outPath, trajs); err != nil {
		log.Fatalf("failed to write corpus: %v", err)
	}
	s := trajectory.Summarize(trajs)
	log.Printf("wrote %d trajectories (%d points, mean length %.1f) to %s", s.Count, s.TotalPoints, s.MeanLength, *outPath)

	if *overview != "" {
		corpus, err := trajectory.NewCorpus(trajs)
		if err != nil {
			log.Fatalf("failed to index corpus: %v", err)
		}
		r, err := render.NewRenderer(render.OptionsFromTuning(tuning), corpus)
		if err != nil {
			log.Fatalf("failed to create renderer: %v", err)
		}
		if err := r.SaveCorpusOverview(*overview, corpus); err != nil {
			log.Fatalf("failed to write overview: %v", err)
		}
	}
}

func writeCorpus(path string, trajs []*trajectory.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := trajectory.WriteRecords(w, trajs); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
