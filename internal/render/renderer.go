// Package render draws prediction frames and corpus overviews as PNG images.
package render

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"iter"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/trajectory.predict/internal/config"
	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/predict"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// pngDPI is the resolution gonum/plot uses when encoding PNG output.
const pngDPI = 96

// circleSegments is the number of line segments per reference circle.
const circleSegments = 120

// Options controls the canvas.
type Options struct {
	SizePx      int     // square canvas edge in pixels
	Scale       float64 // pixels per world unit
	InnerRadius float64 // roundabout island radius
	OuterRadius float64 // roundabout outer edge radius
	ShowMatch   bool    // draw the matched exemplar in grey behind the frame
}

// OptionsFromTuning builds render Options from a loaded TuningConfig.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		SizePx:      cfg.GetCanvasSizePx(),
		Scale:       cfg.GetCanvasScale(),
		InnerRadius: cfg.GetInnerRadius(),
		OuterRadius: cfg.GetOuterRadius(),
	}
}

// Renderer turns frames into images. The corpus is only needed when
// ShowMatch is set.
type Renderer struct {
	opts   Options
	corpus *trajectory.Corpus
}

// NewRenderer returns a Renderer. corpus may be nil.
func NewRenderer(opts Options, corpus *trajectory.Corpus) (*Renderer, error) {
	if opts.SizePx <= 0 {
		return nil, fmt.Errorf("canvas size must be positive, got %d", opts.SizePx)
	}
	if !(opts.Scale > 0) {
		return nil, fmt.Errorf("canvas scale must be positive, got %v", opts.Scale)
	}
	return &Renderer{opts: opts, corpus: corpus}, nil
}

// halfSpan is the world distance from the origin to the canvas edge.
func (r *Renderer) halfSpan() float64 {
	return float64(r.opts.SizePx) / r.opts.Scale / 2
}

func (r *Renderer) canvasSide() vg.Length {
	return vg.Length(r.opts.SizePx) * vg.Inch / pngDPI
}

// newCanvas returns a plot centred on the origin with the reference circles.
func (r *Renderer) newCanvas(title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	for _, radius := range []float64{r.opts.InnerRadius, r.opts.OuterRadius} {
		if radius <= 0 {
			continue
		}
		circle, err := plotter.NewLine(circleXYs(radius))
		if err != nil {
			return nil, err
		}
		circle.Color = circleColor
		circle.Width = vg.Points(1)
		p.Add(circle)
	}

	half := r.halfSpan()
	p.X.Min, p.X.Max = -half, half
	p.Y.Min, p.Y.Max = -half, half
	return p, nil
}

// Plot builds the plot for a single frame: observed points in blue and the
// predicted continuation in red.
func (r *Renderer) Plot(f predict.Frame) (*plot.Plot, error) {
	title := fmt.Sprintf("step %d", f.Step)
	if f.Match.Matched {
		title += " - " + f.Match.TrajectoryID
	}
	p, err := r.newCanvas(title)
	if err != nil {
		return nil, err
	}

	if r.opts.ShowMatch && f.Match.Matched && r.corpus != nil && f.Match.Index < r.corpus.Len() {
		if err := addScatter(p, r.corpus.At(f.Match.Index).Points, matchColor, 1); err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
	}
	if err := addScatter(p, f.Observed, observedColor, 2); err != nil {
		return nil, fmt.Errorf("observed: %w", err)
	}
	if err := addScatter(p, f.Predicted, predictedColor, 2); err != nil {
		return nil, fmt.Errorf("predicted: %w", err)
	}

	// Adding data widens the axes; pin them back to the canvas.
	half := r.halfSpan()
	p.X.Min, p.X.Max = -half, half
	p.Y.Min, p.Y.Max = -half, half
	return p, nil
}

// WriteFrame encodes one frame as PNG to w.
func (r *Renderer) WriteFrame(w io.Writer, f predict.Frame) error {
	p, err := r.Plot(f)
	if err != nil {
		return fmt.Errorf("plot frame %d: %w", f.Step, err)
	}
	side := r.canvasSide()
	wt, err := p.WriterTo(side, side, "png")
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Step, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveFrames writes every frame of the sequence to dir as frame_00000.png,
// frame_00001.png and so on, creating dir if needed. It returns the number
// of files written.
func (r *Renderer) SaveFrames(dir string, frames iter.Seq[predict.Frame]) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create frame dir: %w", err)
	}

	n := 0
	for f := range frames {
		path := filepath.Join(dir, fmt.Sprintf("frame_%05d.png", f.Step))
		if err := r.saveFrame(path, f); err != nil {
			return n, err
		}
		n++
	}
	monitoring.Logf("render: wrote %d frames to %s", n, dir)
	return n, nil
}

func (r *Renderer) saveFrame(path string, f predict.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(file)
	if err := r.WriteFrame(bw, f); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// SaveCorpusOverview draws every corpus trajectory as a line, each in its
// own colour, and saves the image to path. The format follows the file
// extension.
func (r *Renderer) SaveCorpusOverview(path string, corpus *trajectory.Corpus) error {
	p, err := r.newCanvas(fmt.Sprintf("corpus (%d trajectories)", corpus.Len()))
	if err != nil {
		return err
	}

	colors := generateColors(corpus.Len())
	for i := 0; i < corpus.Len(); i++ {
		tr := corpus.At(i)
		if tr.Len() < 2 {
			continue
		}
		line, err := plotter.NewLine(toXYs(tr.Points))
		if err != nil {
			return fmt.Errorf("trajectory %q: %w", tr.ID, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(0.5)
		p.Add(line)
	}

	half := r.halfSpan()
	p.X.Min, p.X.Max = -half, half
	p.Y.Min, p.Y.Max = -half, half

	side := r.canvasSide()
	if err := p.Save(side, side, path); err != nil {
		return fmt.Errorf("save corpus overview: %w", err)
	}
	return nil
}

func addScatter(p *plot.Plot, pts []trajectory.Point, c color.Color, radius float64) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(toXYs(pts))
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(radius)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s)
	return nil
}

func toXYs(pts []trajectory.Point) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	return xys
}

func circleXYs(radius float64) plotter.XYs {
	xys := make(plotter.XYs, circleSegments+1)
	for i := range xys {
		theta := 2 * math.Pi * float64(i) / circleSegments
		xys[i] = plotter.XY{X: radius * math.Cos(theta), Y: radius * math.Sin(theta)}
	}
	return xys
}
