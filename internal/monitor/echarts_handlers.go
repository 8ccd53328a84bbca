package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"

	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
	"github.com/banshee-data/radiance.report/internal/geom"
	"github.com/banshee-data/radiance.report/internal/render"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsPrefix is where generated chart pages load the echarts
// runtime from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// resolveGrid loads the voxel grid a debug endpoint should draw. An
// explicit snapshot_id query param wins, then the latest snapshot under
// name, then the most recently taken snapshot of any name.
func (ws *WebServer) resolveGrid(r *http.Request) (*voxelgrid.VoxelRadianceField, *voxelgrid.Snapshot, error) {
	if ws.db == nil {
		return nil, nil, fmt.Errorf("no database configured for snapshot lookup")
	}

	var (
		snap *voxelgrid.Snapshot
		err  error
	)
	q := r.URL.Query()
	if id := q.Get("snapshot_id"); id != "" {
		snap, err = ws.db.GetGridSnapshot(id)
	} else if name := q.Get("name"); name != "" {
		snap, err = ws.db.GetLatestGridSnapshotByName(name)
	} else {
		var snaps []*voxelgrid.Snapshot
		snaps, err = ws.db.ListGridSnapshots(1)
		if err == nil {
			if len(snaps) == 0 {
				return nil, nil, voxelgrid.ErrSnapshotNotFound
			}
			// Listings omit the grid blob, so fetch the full row
			snap, err = ws.db.GetGridSnapshot(snaps[0].SnapshotID)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	grid, err := voxelgrid.FromSnapshot(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("decode snapshot %s: %w", snap.SnapshotID, err)
	}
	return grid, snap, nil
}

// writeGridError maps resolveGrid failures onto HTTP statuses.
func (ws *WebServer) writeGridError(w http.ResponseWriter, err error) {
	if errors.Is(err, voxelgrid.ErrSnapshotNotFound) {
		ws.writeJSONError(w, http.StatusNotFound, "no grid snapshot available")
		return
	}
	ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load grid snapshot: %v", err))
}

// handleGridSliceChart renders a scatter plot (HTML) of one axis-aligned
// slice through a voxel grid snapshot using go-echarts.
// Query params:
//   - snapshot_id (optional; defaults to the most recent snapshot)
//   - name (optional; latest snapshot with that name)
//   - axis (optional; x, y, or z; default z)
//   - index (optional; cell layer along the axis; default middle)
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleGridSliceChart(w http.ResponseWriter, r *http.Request) {
	grid, snap, err := ws.resolveGrid(r)
	if err != nil {
		ws.writeGridError(w, err)
		return
	}

	q := r.URL.Query()
	axis := q.Get("axis")
	index := -1
	if v := q.Get("index"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			index = parsed
		}
	}
	maxPoints := 8000
	if mp := q.Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	data, err := PrepareSliceChartData(grid, axis, index, maxPoints)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data.Points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no occupied cells in slice")
		return
	}

	points := make([]opts.ScatterData, 0, len(data.Points))
	for _, p := range data.Points {
		points = append(points, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Value}})
	}

	// Add a small padding so points at the edges are visible
	pad := data.MaxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	maxDensity := data.MaxValue
	if maxDensity == 0 {
		maxDensity = 1
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radiance Grid Slice", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Voxel Grid Slice", Subtitle: fmt.Sprintf("snapshot=%s axis=%s index=%d occupied=%d points=%d stride=%d", snap.Name, data.Axis, data.SliceIndex, data.Occupied, data.NumPoints, data.Stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: data.XName, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: data.YName, NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxDensity),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("density", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleDensityHistogramChart renders a bar chart of the density
// distribution over a grid snapshot's occupied cells.
// Query params:
//   - snapshot_id / name (optional; defaults to the most recent snapshot)
//   - bins (optional; default 32, max 256)
func (ws *WebServer) handleDensityHistogramChart(w http.ResponseWriter, r *http.Request) {
	grid, snap, err := ws.resolveGrid(r)
	if err != nil {
		ws.writeGridError(w, err)
		return
	}

	bins := 32
	if v := r.URL.Query().Get("bins"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 1 && parsed <= 256 {
			bins = parsed
		}
	}

	hist := PrepareDensityHistogram(grid, bins)
	if hist.Occupied == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no occupied cells in grid")
		return
	}

	y := make([]opts.BarData, 0, len(hist.Counts))
	for _, c := range hist.Counts {
		y = append(y, opts.BarData{Value: c})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radiance Density Histogram", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Density Histogram", Subtitle: fmt.Sprintf("snapshot=%s occupied=%d/%d max=%.4g bucket=%.4g", snap.Name, hist.Occupied, hist.Total, hist.MaxDensity, hist.BucketSize)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(hist.Labels).
		AddSeries("cells", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// floatQuery returns the query value for key, or def when absent or
// unparsable. Debug endpoints are forgiving about inputs.
func floatQuery(q url.Values, key string, def float64) float64 {
	v := q.Get(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}

// profileRayFromQuery builds the ray and renderer a profile endpoint
// should trace. Defaults match the demo scene pose: origin (0,0,3)
// looking down -z.
func profileRayFromQuery(q url.Values) (geom.Ray, *render.Renderer, error) {
	origin := geom.V(floatQuery(q, "ox", 0), floatQuery(q, "oy", 0), floatQuery(q, "oz", 3))
	dir := geom.V(floatQuery(q, "dx", 0), floatQuery(q, "dy", 0), floatQuery(q, "dz", -1))
	if dir.Length() == 0 {
		return geom.Ray{}, nil, fmt.Errorf("ray direction must be non-zero")
	}

	near := floatQuery(q, "near", 0.1)
	far := floatQuery(q, "far", 10.0)
	if near <= 0 || far <= near {
		return geom.Ray{}, nil, fmt.Errorf("invalid ray interval near=%v far=%v", near, far)
	}

	samples := 64
	if v := q.Get("samples"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 1 && parsed <= 4096 {
			samples = parsed
		}
	}

	renderer, err := render.NewRenderer(render.RenderConfig{NumSamples: samples})
	if err != nil {
		return geom.Ray{}, nil, err
	}

	ray := geom.Ray{Origin: origin, Dir: dir.Normalize(), TMin: near, TMax: far}
	return ray, renderer, nil
}

// handleRayProfilePlot traces one ray through a grid snapshot and renders
// its integration profile as a PNG, or as raw JSON with format=json.
// Query params:
//   - snapshot_id / name (optional; defaults to the most recent snapshot)
//   - ox, oy, oz (optional; ray origin, default 0,0,3)
//   - dx, dy, dz (optional; ray direction, default 0,0,-1)
//   - near, far (optional; sampling interval, default 0.1 to 10)
//   - samples (optional; default 64, max 4096)
//   - series (optional; integration or density, default integration)
//   - format (optional; png or json, default png)
func (ws *WebServer) handleRayProfilePlot(w http.ResponseWriter, r *http.Request) {
	grid, snap, err := ws.resolveGrid(r)
	if err != nil {
		ws.writeGridError(w, err)
		return
	}

	q := r.URL.Query()
	ray, renderer, err := profileRayFromQuery(q)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	prof := renderer.ProfileRay(ray, grid)

	if q.Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(prof)
		return
	}

	series := q.Get("series")
	if series == "" {
		series = SeriesIntegration
	}

	var buf bytes.Buffer
	title := fmt.Sprintf("Ray Profile (snapshot %s, %d samples)", snap.Name, len(prof.Samples))
	if err := WriteProfilePlot(&buf, prof, series, title); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// handleRayProfileDashboard renders a page combining both profile plots
// and a link to the raw JSON trace for the selected snapshot and ray.
func (ws *WebServer) handleRayProfileDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	q.Set("series", SeriesIntegration)
	integrationSrc := "/debug/plots/ray-profile.png?" + q.Encode()
	q.Set("series", SeriesDensity)
	densitySrc := "/debug/plots/ray-profile.png?" + q.Encode()
	q.Del("series")
	q.Set("format", "json")
	jsonHref := "/debug/plots/ray-profile.png?" + q.Encode()

	doc := fmt.Sprintf(rayProfileDashboardHTML,
		html.EscapeString(integrationSrc),
		html.EscapeString(densitySrc),
		html.EscapeString(jsonHref),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

const rayProfileDashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>Ray Profile</title>
<style>
body { background: #121212; color: #d4d4d4; font-family: monospace; margin: 2em; }
h1 { color: #6ece58; }
img { background: #fff; display: block; margin-bottom: 1.5em; max-width: 100%%; }
a { color: #26828e; }
</style>
</head>
<body>
<h1>Ray Profile</h1>
<p>Integration trace of one ray through the selected grid snapshot.
Adjust with ox/oy/oz, dx/dy/dz, near, far, samples, and snapshot_id or name.</p>
<img src="%s" alt="integration profile">
<img src="%s" alt="density profile">
<p><a href="%s">raw JSON trace</a></p>
</body>
</html>
`
