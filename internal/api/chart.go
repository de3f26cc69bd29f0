package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trajectory.predict/internal/db"
	"github.com/banshee-data/trajectory.predict/internal/httputil"
	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// runChart renders one step of a stored run as an interactive scatter plot:
// the observed prefix, the predicted continuation and the matched exemplar.
// Query params:
//   - step (optional; defaults to the last stored frame)
func (s *Server) runChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	tagRequest(w, "run", id)
	run, err := s.db.GetRun(ctx, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	frames, err := s.db.RunFrames(ctx, id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load frames: %v", err))
		return
	}
	if len(frames) == 0 {
		httputil.NotFound(w, "run has no frames")
		return
	}

	step, err := httputil.QueryInt(r, "step", frames[len(frames)-1].Step, 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if step >= len(frames) {
		httputil.BadRequest(w, fmt.Sprintf("step %d out of range, run has %d frames", step, len(frames)))
		return
	}

	frame := frames[step]
	observed := observedPrefix(frames, step)
	matched := s.matchedTrajectory(ctx, run.CorpusName, frame)

	half := float64(s.tuning.GetCanvasSizePx()) / s.tuning.GetCanvasScale() / 2
	subtitle := fmt.Sprintf("run=%s test=%s policy=%s step=%d candidates=%d",
		run.RunID, run.TestTrajectoryID, run.Policy, frame.Step, frame.Candidates)
	if frame.Matched() {
		subtitle += fmt.Sprintf(" match=%s score=%.4f", frame.MatchID, *frame.Score)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectory Prediction", Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Prediction at step " + fmt.Sprint(frame.Step), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -half, Max: half, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -half, Max: half, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)

	if matched != nil {
		scatter.AddSeries("matched "+matched.ID, scatterData(matched.Points),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#a0a0a0"}))
	}
	scatter.AddSeries("observed", scatterData(observed),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#0000ff"}))
	scatter.AddSeries("predicted", scatterData(frame.Predicted),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff0000"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// observedPrefix rebuilds the observed points up to and including step from
// the per-frame current points. Exhausted frames add nothing.
func observedPrefix(frames []db.FrameRecord, step int) []trajectory.Point {
	var out []trajectory.Point
	for _, f := range frames[:step+1] {
		if !f.Exhausted && f.Current != nil {
			out = append(out, *f.Current)
		}
	}
	return out
}

// matchedTrajectory returns the exemplar a frame matched, or nil when there
// is no match or it can no longer be loaded.
func (s *Server) matchedTrajectory(ctx context.Context, corpusName string, f db.FrameRecord) *trajectory.Trajectory {
	if !f.Matched() {
		return nil
	}
	tr, err := s.db.LoadTrajectory(ctx, corpusName, f.MatchID)
	if err != nil {
		monitoring.Logf("api: chart without match series for %q: %v", f.MatchID, err)
		return nil
	}
	return tr
}

func scatterData(pts []trajectory.Point) []opts.ScatterData {
	data := make([]opts.ScatterData, len(pts))
	for i, p := range pts {
		data[i] = opts.ScatterData{Value: []interface{}{p.X, p.Y}}
	}
	return data
}
