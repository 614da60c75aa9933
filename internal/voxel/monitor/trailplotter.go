package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/voxel.report/internal/voxel/pipeline"
)

// Default trail plot size.
const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 8 * vg.Inch
)

// TrailPlotter accumulates identity trails from processed frames and
// renders them as a PNG, one line per identity.
type TrailPlotter struct {
	mu     sync.Mutex
	title  string
	trails [][]r2.Vec
}

var _ pipeline.FrameSink = (*TrailPlotter)(nil)

// NewTrailPlotter creates a plotter for k identities.
func NewTrailPlotter(title string, k int) *TrailPlotter {
	return &TrailPlotter{title: title, trails: make([][]r2.Vec, k)}
}

// RecordFrame implements pipeline.FrameSink. Only tracked frames extend
// the trails.
func (tp *TrailPlotter) RecordFrame(_ context.Context, res *pipeline.FrameResult) error {
	if res.Assignment == nil || res.Degenerate {
		return nil
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if len(res.Centers) != len(tp.trails) {
		return fmt.Errorf("frame %d has %d centres for %d trails", res.Index, len(res.Centers), len(tp.trails))
	}
	for id, c := range res.Centers {
		tp.trails[id] = append(tp.trails[id], c)
	}
	return nil
}

// Trails returns a copy of the accumulated trails.
func (tp *TrailPlotter) Trails() [][]r2.Vec {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	out := make([][]r2.Vec, len(tp.trails))
	for id, t := range tp.trails {
		out[id] = append([]r2.Vec(nil), t...)
	}
	return out
}

// Save writes the trail plot to path, creating its directory.
func (tp *TrailPlotter) Save(path string) error {
	p, err := PlotTrails(tp.title, tp.Trails())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("save trail plot: %w", err)
	}
	return nil
}

// WriteTo renders the trail plot as PNG to w.
func (tp *TrailPlotter) WriteTo(w io.Writer) (int64, error) {
	return writeTrailPNG(w, tp.title, tp.Trails())
}

func writeTrailPNG(w io.Writer, title string, trails [][]r2.Vec) (int64, error) {
	p, err := PlotTrails(title, trails)
	if err != nil {
		return 0, err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return 0, fmt.Errorf("render trail plot: %w", err)
	}
	return wt.WriteTo(w)
}

// PlotTrails builds a floor-plane plot with one line per identity and a
// marker at each trail's latest position. Empty trails are skipped.
func PlotTrails(title string, trails [][]r2.Vec) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(plotter.NewGrid())

	colours := identityColours(len(trails))
	for id, trail := range trails {
		if len(trail) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(trail))
		for i, c := range trail {
			pts[i].X, pts[i].Y = c.X, c.Y
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("identity %d line: %w", id, err)
		}
		line.Color = colours[id]
		line.Width = vg.Points(1.5)

		head, err := plotter.NewScatter(pts[len(pts)-1:])
		if err != nil {
			return nil, fmt.Errorf("identity %d marker: %w", id, err)
		}
		head.GlyphStyle.Color = colours[id]
		head.GlyphStyle.Radius = vg.Points(4)
		head.GlyphStyle.Shape = draw.CircleGlyph{}

		p.Add(line, head)
		p.Legend.Add(fmt.Sprintf("identity %d", id), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
