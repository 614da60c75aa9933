package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/spatial/r2"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleFloorChart renders the current voxels, coloured by identity, with
// each identity's trail overlaid as a line.
func (ws *WebServer) handleFloorChart(w http.ResponseWriter, r *http.Request) {
	voxels, trails := ws.view()

	pad := 1.0
	extend := func(pts []r2.Vec) {
		for _, p := range pts {
			pad = math.Max(pad, math.Max(math.Abs(p.X), math.Abs(p.Y)))
		}
	}
	count := 0
	for id := range voxels {
		extend(voxels[id])
		extend(trails[id])
		count += len(voxels[id])
	}
	pad *= 1.1

	colours := identityColours(len(voxels))
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Voxel Floor", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Voxel Floor", Subtitle: fmt.Sprintf("identities=%d voxels=%d", len(voxels), count)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: -pad, Max: pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: -pad, Max: pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)

	line := charts.NewLine()
	for id := range voxels {
		name := fmt.Sprintf("identity %d", id)
		style := charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColour(colours[id])})

		pts := make([]opts.ScatterData, 0, len(voxels[id]))
		for _, p := range voxels[id] {
			pts = append(pts, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		}
		scatter.AddSeries(name, pts, style, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

		path := make([]opts.LineData, 0, len(trails[id]))
		for _, p := range trails[id] {
			path = append(path, opts.LineData{Value: []interface{}{p.X, p.Y}})
		}
		line.AddSeries(name+" trail", path, style)
	}
	scatter.Overlap(line)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
