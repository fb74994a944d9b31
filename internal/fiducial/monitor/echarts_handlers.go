package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// stateColors keeps a marker state's colour stable across refreshes.
var stateColors = map[fiducial.MarkerState]string{
	fiducial.StateActive:         "#35b779",
	fiducial.StatePendingRemoval: "#fde725",
	fiducial.StateRemovable:      "#e8384f",
}

// handleMarkerChart renders a scatter (HTML) of live marker centroids, one
// series per lifecycle state.
func (ws *WebServer) handleMarkerChart(w http.ResponseWriter, r *http.Request) {
	markers := ws.tracker.Markers()

	byState := make(map[fiducial.MarkerState][]opts.ScatterData)
	maxX, maxY := 0.0, 0.0
	for _, m := range markers {
		byState[m.State] = append(byState[m.State], opts.ScatterData{
			Name:  fmt.Sprintf("marker %d", m.ID),
			Value: []interface{}{m.X, m.Y, m.Area, m.ID},
		})
		maxX = math.Max(maxX, m.X)
		maxY = math.Max(maxY, m.Y)
	}
	if maxX == 0 {
		maxX = 1
	}
	if maxY == 0 {
		maxY = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fiducial Markers", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Tracked Markers", Subtitle: fmt.Sprintf("markers=%d", len(markers))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: math.Ceil(maxX * 1.05), Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: math.Ceil(maxY * 1.05), Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
	)

	for _, state := range []fiducial.MarkerState{fiducial.StateActive, fiducial.StatePendingRemoval, fiducial.StateRemovable} {
		data := byState[state]
		if data == nil {
			data = []opts.ScatterData{}
		}
		scatter.AddSeries(string(state), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: stateColors[state]}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
