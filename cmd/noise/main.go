// Command noise adds uniform jitter to every point of a corpus file.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"

	"github.com/banshee-data/trajectory.predict/internal/config"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

var (
	inPath     = flag.String("in", "", "Corpus file to read (required)")
	outPath    = flag.String("out", "", "Corpus file to write (required)")
	amplitude  = flag.Float64("amplitude", -1, "Jitter amplitude; negative uses noise_amplitude from the config")
	seed       = flag.Uint64("seed", 0, "Random seed; 0 uses noise_seed from the config")
	configPath = flag.String("config", "", "Tuning config JSON (defaults built in)")
)

func main() {
	flag.Parse()
	if *inPath == "" || *outPath == "" {
		log.Fatal("-in and -out are required")
	}

	tuning, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	amp := *amplitude
	if amp < 0 {
		amp = tuning.GetNoiseAmplitude()
	}
	s := *seed
	if s == 0 {
		s = tuning.GetNoiseSeed()
	}

	in, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("failed to open corpus: %v", err)
	}
	trajs, err := trajectory.ReadRecords(in)
	in.Close()
	if err != nil {
		log.Fatalf("failed to read corpus: %v", err)
	}

	noisy := trajectory.AddNoise(trajs, amp, s)

	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	w := bufio.NewWriter(out)
	if err := trajectory.WriteRecords(w, noisy); err != nil {
		log.Fatalf("failed to write corpus: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("failed to write corpus: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("failed to close output: %v", err)
	}
	log.Printf("jittered %d trajectories by up to %.3f (seed %d) into %s", len(noisy), amp, s, *outPath)
}
