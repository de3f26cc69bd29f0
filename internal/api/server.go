// Package api serves stored corpora and prediction runs over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/trajectory.predict/internal/config"
	"github.com/banshee-data/trajectory.predict/internal/db"
	"github.com/banshee-data/trajectory.predict/internal/httputil"
	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/predict"
	"github.com/banshee-data/trajectory.predict/internal/sim"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
	"github.com/banshee-data/trajectory.predict/internal/version"
)

// Request bounds for work done inside a single HTTP request.
const (
	maxSimulatedObjects = 20000
	maxRunFrames        = 5000
	maxRunWorkers       = 16
)

type Server struct {
	db     *db.DB
	tuning *config.TuningConfig
}

// NewServer returns a Server over database. tuning supplies the defaults for
// runs and charts; nil uses the built-in defaults.
func NewServer(database *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	return &Server{db: database, tuning: tuning}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/corpora", s.listCorpora)
	mux.HandleFunc("POST /api/corpora", s.createCorpus)
	mux.HandleFunc("GET /api/corpora/{name}/stats", s.corpusStats)
	mux.HandleFunc("DELETE /api/corpora/{name}", s.deleteCorpus)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("POST /api/runs", s.createRun)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/runs/{id}/frames", s.runFrames)
	mux.HandleFunc("GET /charts/runs/{id}", s.runChart)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbStatus := "ok"
	if err := s.db.PingContext(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = err.Error()
	}
	httputil.WriteJSON(w, status, map[string]string{
		"status":     http.StatusText(status),
		"db":         dbStatus,
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.tuning)
}

func (s *Server) listCorpora(w http.ResponseWriter, r *http.Request) {
	corpora, err := s.db.ListCorpora(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list corpora: %v", err))
		return
	}
	if corpora == nil {
		corpora = []db.CorpusInfo{}
	}
	httputil.WriteJSONOK(w, corpora)
}

// createCorpusRequest asks for a simulated corpus. Zero values fall back to
// the simulator and tuning defaults.
type createCorpusRequest struct {
	Name           string   `json:"name"`
	Objects        int      `json:"objects"`
	Seed           uint64   `json:"seed"`
	NoiseAmplitude *float64 `json:"noise_amplitude,omitempty"`
	MinPoints      *int     `json:"min_points,omitempty"`
}

func (s *Server) createCorpus(w http.ResponseWriter, r *http.Request) {
	var req createCorpusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	simCfg := sim.DefaultConfig()
	if req.Objects != 0 {
		simCfg.Objects = req.Objects
	}
	if simCfg.Objects < 1 || simCfg.Objects > maxSimulatedObjects {
		httputil.BadRequest(w, fmt.Sprintf("objects must be between 1 and %d", maxSimulatedObjects))
		return
	}

	trajs, err := sim.Generate(simCfg, req.Seed)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	amp := s.tuning.GetNoiseAmplitude()
	if req.NoiseAmplitude != nil {
		amp = *req.NoiseAmplitude
	}
	if amp < 0 {
		httputil.BadRequest(w, "noise_amplitude must be non-negative")
		return
	}
	if amp > 0 {
		trajs = trajectory.AddNoise(trajs, amp, s.tuning.GetNoiseSeed()+req.Seed)
	}

	minPoints := s.tuning.GetMinTrackPoints()
	if req.MinPoints != nil {
		minPoints = *req.MinPoints
	}
	trajs = trajectory.Clean(trajs, minPoints)

	tagRequest(w, "corpus", req.Name)
	if err := s.db.SaveTrajectories(r.Context(), req.Name, trajs); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to save corpus: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, trajectory.Summarize(trajs))
}

func (s *Server) corpusStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tagRequest(w, "corpus", name)
	trajs, err := s.db.LoadTrajectories(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, trajectory.Summarize(trajs))
}

func (s *Server) deleteCorpus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tagRequest(w, "corpus", name)
	if err := s.db.DeleteCorpus(r.Context(), name); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 100, 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// createRunRequest runs the engine over a stored corpus. Tuning overrides
// the server defaults field by field.
type createRunRequest struct {
	Corpus string               `json:"corpus"`
	Tuning *config.TuningConfig `json:"tuning,omitempty"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Corpus == "" {
		httputil.BadRequest(w, "corpus is required")
		return
	}

	tuning := s.tuning.Overlay(req.Tuning)
	if err := tuning.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if n := tuning.GetFrameBudget(); n > maxRunFrames {
		httputil.BadRequest(w, fmt.Sprintf("frame_budget %d exceeds %d", n, maxRunFrames))
		return
	}
	if n := tuning.GetMatchWorkers(); n > maxRunWorkers {
		httputil.BadRequest(w, fmt.Sprintf("match_workers %d exceeds %d", n, maxRunWorkers))
		return
	}
	tagRequest(w, "corpus", req.Corpus)

	store, err := s.db.LoadCorpus(r.Context(), req.Corpus, trajectory.LoadOptions{
		TestID:    tuning.GetTestTrajectoryID(),
		MinPoints: tuning.GetMinTrackPoints(),
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	cfg := predict.ConfigFromTuning(tuning)
	eng, err := predict.NewEngine(store, cfg)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	params, err := json.Marshal(tuning)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	run := &db.Run{
		CorpusName:       req.Corpus,
		TestTrajectoryID: store.Test.ID,
		Policy:           string(cfg.Policy),
		ParamsJSON:       params,
	}
	if err := s.db.RecordRun(r.Context(), run, eng.Frames()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to record run: %v", err))
		return
	}
	tagRequest(w, "run", run.RunID)
	monitoring.Logf("api: run %s on %q: %d frames, %d matched", run.RunID, run.CorpusName, run.FrameCount, run.MatchedFrames)
	httputil.WriteJSON(w, http.StatusCreated, run)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tagRequest(w, "run", id)
	run, err := s.db.GetRun(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tagRequest(w, "run", id)
	if err := s.db.DeleteRun(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runFrames(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tagRequest(w, "run", id)
	if _, err := s.db.GetRun(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	frames, err := s.db.RunFrames(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load frames: %v", err))
		return
	}
	if frames == nil {
		frames = []db.FrameRecord{}
	}
	httputil.WriteJSONOK(w, frames)
}

// writeStoreError maps storage errors onto HTTP status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, trajectory.ErrUnknownTrajectory):
		httputil.NotFound(w, err.Error())
	default:
		var empty *trajectory.EmptyCorpusError
		if errors.As(err, &empty) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
	}
}
