// Command predict replays a test trajectory against a corpus and logs the
// prediction made at every step.
//
// The corpus comes from a file (-corpus) or from a run database (-db with
// -corpus-name). Giving all three stores the file under that name first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/trajectory.predict/internal/config"
	"github.com/banshee-data/trajectory.predict/internal/db"
	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/predict"
	"github.com/banshee-data/trajectory.predict/internal/render"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
	"github.com/banshee-data/trajectory.predict/internal/version"
)

var (
	corpusPath  = flag.String("corpus", "", "Corpus file to load")
	dbPath      = flag.String("db", "", "Run database (SQLite)")
	corpusName  = flag.String("corpus-name", "", "Corpus name inside the run database")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults built in)")
	record      = flag.Bool("record", false, "Store the run and its frames in -db")
	framesDir   = flag.String("frames", "", "Directory to write one PNG per step")
	quiet       = flag.Bool("quiet", false, "Only log the summary")
	showVersion = flag.Bool("version", false, "Print version and exit")

	// Overrides for the tuning config. Only flags given on the command line apply.
	testID      = flag.String("test", "", "Test trajectory id (default: first record)")
	policy      = flag.String("policy", "", "Matcher policy: naive or filtered")
	onExhausted = flag.String("on-exhausted", "", "When the test trajectory runs out: freeze or stop")
	horizon     = flag.Int("horizon", 0, "Prediction horizon in steps")
	budget      = flag.Int("budget", 0, "Frame budget")
	workers     = flag.Int("workers", 0, "Scoring goroutines per step")
	minPoints   = flag.Int("min-points", 0, "Drop corpus tracks shorter than this")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("predict"))
		return
	}
	if *corpusPath == "" && (*dbPath == "" || *corpusName == "") {
		log.Fatal("either -corpus or both -db and -corpus-name are required")
	}
	if *record && *dbPath == "" {
		log.Fatal("-record requires -db")
	}

	base, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tuning := base.Overlay(flagOverrides())
	if err := tuning.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	store, err := loadStore(ctx, database, tuning)
	if err != nil {
		log.Fatalf("failed to load corpus: %v", err)
	}

	cfg := predict.ConfigFromTuning(tuning)
	eng, err := predict.NewEngine(store, cfg)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	if *quiet {
		restore := monitoring.Quiet()
		defer restore()
	}
	summary := replay(eng, *quiet)
	log.Printf("test %q: %d frames, %d matched, %d exhausted",
		store.Test.ID, summary.frames, summary.matched, summary.exhausted)

	if *record {
		params, err := json.Marshal(tuning)
		if err != nil {
			log.Fatalf("failed to encode params: %v", err)
		}
		run := &db.Run{
			CorpusName:       runCorpusName(),
			TestTrajectoryID: store.Test.ID,
			Policy:           string(cfg.Policy),
			ParamsJSON:       params,
		}
		if err := database.RecordRun(ctx, run, eng.Frames()); err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
		log.Printf("recorded run %s", run.RunID)
	}

	if *framesDir != "" {
		r, err := render.NewRenderer(render.OptionsFromTuning(tuning), store.Corpus)
		if err != nil {
			log.Fatalf("failed to create renderer: %v", err)
		}
		n, err := r.SaveFrames(*framesDir, eng.Frames())
		if err != nil {
			log.Fatalf("failed to write frames: %v", err)
		}
		log.Printf("wrote %d frames to %s", n, *framesDir)
	}
}

// flagOverrides collects the tuning fields set explicitly on the command line.
func flagOverrides() *config.TuningConfig {
	o := config.EmptyTuningConfig()
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "test":
			o.TestTrajectoryID = testID
		case "policy":
			o.MatcherPolicy = policy
		case "on-exhausted":
			o.OnExhausted = onExhausted
		case "horizon":
			o.PredictionHorizon = horizon
		case "budget":
			o.FrameBudget = budget
		case "workers":
			o.MatchWorkers = workers
		case "min-points":
			o.MinTrackPoints = minPoints
		}
	})
	return o
}

func loadStore(ctx context.Context, database *db.DB, tuning *config.TuningConfig) (*trajectory.Store, error) {
	opts := trajectory.LoadOptions{
		TestID:    tuning.GetTestTrajectoryID(),
		MinPoints: tuning.GetMinTrackPoints(),
	}
	if *corpusPath == "" {
		return database.LoadCorpus(ctx, *corpusName, opts)
	}

	merged, err := trajectory.ReadMergedFiles(*corpusPath)
	if err != nil {
		return nil, err
	}
	if database != nil && *corpusName != "" {
		if err := database.SaveTrajectories(ctx, *corpusName, merged); err != nil {
			return nil, err
		}
	}
	return trajectory.BuildStore(merged, opts)
}

func runCorpusName() string {
	if *corpusName != "" {
		return *corpusName
	}
	return *corpusPath
}

type replaySummary struct {
	frames, matched, exhausted int
}

// replay steps through every frame, logging each one unless quiet.
func replay(eng *predict.Engine, quiet bool) replaySummary {
	var s replaySummary
	for f := range eng.Frames() {
		s.frames++
		if f.Match.Matched {
			s.matched++
		}
		if f.Exhausted {
			s.exhausted++
		}
		if quiet {
			continue
		}
		if f.Match.Matched {
			log.Printf("step %d: observed %d, match %q (score %.4f), %d candidates, %d predicted",
				f.Step, len(f.Observed), f.Match.TrajectoryID, f.Match.Score, f.Candidates, len(f.Predicted))
		} else {
			log.Printf("step %d: observed %d, no match, %d candidates", f.Step, len(f.Observed), f.Candidates)
		}
	}
	return s
}
