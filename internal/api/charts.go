package api

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sidereal-data/drift.report/internal/obsdb"
)

const fitCurveSamples = 400

// pecChart renders a run's measured periodic error with the fitted
// sinusoids overlaid, as an ECharts scatter over hour angle.
func (s *Server) pecChart(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("run")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'run' parameter")
		return
	}

	run, err := s.db.GetPECRun(id)
	if errors.Is(err, obsdb.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to fetch run: %v", err))
		return
	}

	samples, err := s.db.PECSamplesForRun(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to fetch samples: %v", err))
		return
	}
	if len(samples) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "Run has no samples")
		return
	}

	raPts := make([]opts.ScatterData, 0, len(samples))
	decPts := make([]opts.ScatterData, 0, len(samples))
	haMin, haMax := samples[0].HADeg, samples[0].HADeg
	maxAbs := 0.0
	for _, sm := range samples {
		haMin = math.Min(haMin, sm.HADeg)
		haMax = math.Max(haMax, sm.HADeg)
		if math.Abs(sm.RADeltaAS) > maxAbs {
			maxAbs = math.Abs(sm.RADeltaAS)
		}
		if math.Abs(sm.DecDeltaAS) > maxAbs {
			maxAbs = math.Abs(sm.DecDeltaAS)
		}
		raPts = append(raPts, opts.ScatterData{Value: []interface{}{sm.HADeg, sm.RADeltaAS}})
		decPts = append(decPts, opts.ScatterData{Value: []interface{}{sm.HADeg, sm.DecDeltaAS}})
	}

	eval := func(f obsdb.AxisFit, x float64) float64 {
		return f.Amplitude*math.Sin(x*f.Freq+f.Phase) + f.Offset
	}
	raFit := make([]opts.ScatterData, 0, fitCurveSamples)
	decFit := make([]opts.ScatterData, 0, fitCurveSamples)
	for i := 0; i < fitCurveSamples; i++ {
		x := haMin + (haMax-haMin)*float64(i)/float64(fitCurveSamples-1)
		yRA := eval(run.RAFit, x)
		yDec := eval(run.DecFit, x)
		if math.Abs(yRA) > maxAbs {
			maxAbs = math.Abs(yRA)
		}
		if math.Abs(yDec) > maxAbs {
			maxAbs = math.Abs(yDec)
		}
		raFit = append(raFit, opts.ScatterData{Value: []interface{}{x, yRA}})
		decFit = append(decFit, opts.ScatterData{Value: []interface{}{x, yDec}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	subtitle := fmt.Sprintf(
		"run=%s start=%s samples=%d RA p-p=%.3f\" Dec p-p=%.3f\"",
		run.ID, run.ObsStart, len(samples),
		2*math.Abs(run.RAFit.Amplitude), 2*math.Abs(run.DecFit.Amplitude),
	)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Periodic Error", Theme: "dark", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Periodic Error - %s", run.Target), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: haMin, Max: haMax, Name: "HA (deg)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Offset (arcsec)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("RA measured", raPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	scatter.AddSeries("Dec measured", decPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#40c4ff"}))
	scatter.AddSeries("RA fit", raFit, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff8a80"}))
	scatter.AddSeries("Dec fit", decFit, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#80d8ff"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
