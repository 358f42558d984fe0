package pec

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const smoothSamples = 1000

// Plot renders the fitted periodic error over hour angle: an offset panel
// (raw RA points plus the smooth RA/Dec fit curves) and a rate panel (the
// gradient of the smooth fits). Returns the written file paths.
func Plot(s *Series, res *Result, outDir string) ([]string, error) {
	if len(s.Samples) == 0 {
		return nil, fmt.Errorf("empty series")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	haMin, haMax := s.Samples[0].HA, s.Samples[0].HA
	for _, sm := range s.Samples {
		haMin = math.Min(haMin, sm.HA)
		haMax = math.Max(haMax, sm.HA)
	}

	smooth := func(p Params) plotter.XYs {
		pts := make(plotter.XYs, smoothSamples)
		for i := range pts {
			x := haMin + (haMax-haMin)*float64(i)/float64(smoothSamples-1)
			pts[i] = plotter.XY{X: x, Y: p.Eval(x)}
		}
		return pts
	}

	var written []string

	// Offset panel
	pOffset := plot.New()
	raFit := smooth(res.RA)
	pOffset.Title.Text = fmt.Sprintf("%s - Peak-to-Peak: %.3f arcsec", s.Target, peakToPeak(raFit))
	pOffset.X.Label.Text = "HA"
	pOffset.Y.Label.Text = "RA Offset [arcsec]"

	raw := make(plotter.XYs, len(s.Samples))
	for i, sm := range s.Samples {
		raw[i] = plotter.XY{X: sm.HA, Y: sm.RADeltaAS}
	}
	scatter, err := plotter.NewScatter(raw)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
	pOffset.Add(scatter)
	pOffset.Legend.Add("measured", scatter)

	if err := addLine(pOffset, raFit, color.RGBA{B: 200, A: 255}, "RA Fit"); err != nil {
		return nil, err
	}
	if err := addLine(pOffset, smooth(res.Dec), color.RGBA{G: 150, A: 255}, "Dec Fit"); err != nil {
		return nil, err
	}

	offsetPath := filepath.Join(outDir, "pec_fit_offset.png")
	if err := pOffset.Save(10*vg.Inch, 4*vg.Inch, offsetPath); err != nil {
		return nil, fmt.Errorf("save offset plot: %w", err)
	}
	written = append(written, offsetPath)

	// Rate panel: derivative of the smooth fit
	pRate := plot.New()
	raRateFit := gradientXYs(smooth(res.RARate))
	pRate.Title.Text = fmt.Sprintf("Peak-to-Peak: %.3f arcsec/s", peakToPeak(raRateFit))
	pRate.X.Label.Text = "HA"
	pRate.Y.Label.Text = "RA Offset [arcsec/s]"

	if err := addLine(pRate, raRateFit, color.RGBA{B: 200, A: 255}, "RA Fit"); err != nil {
		return nil, err
	}
	if err := addLine(pRate, gradientXYs(smooth(res.DecRate)), color.RGBA{G: 150, A: 255}, "Dec Fit"); err != nil {
		return nil, err
	}

	ratePath := filepath.Join(outDir, "pec_fit_rate.png")
	if err := pRate.Save(10*vg.Inch, 4*vg.Inch, ratePath); err != nil {
		return nil, fmt.Errorf("save rate plot: %w", err)
	}
	written = append(written, ratePath)

	return written, nil
}

func addLine(p *plot.Plot, pts plotter.XYs, c color.Color, label string) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func peakToPeak(pts plotter.XYs) float64 {
	if len(pts) == 0 {
		return 0
	}
	min, max := pts[0].Y, pts[0].Y
	for _, pt := range pts {
		min = math.Min(min, pt.Y)
		max = math.Max(max, pt.Y)
	}
	return max - min
}

// gradientXYs is a central-difference derivative with one-sided ends,
// keeping the same x grid.
func gradientXYs(pts plotter.XYs) plotter.XYs {
	n := len(pts)
	out := make(plotter.XYs, n)
	if n < 2 {
		copy(out, pts)
		return out
	}
	for i := range pts {
		switch i {
		case 0:
			out[i] = plotter.XY{X: pts[i].X, Y: pts[1].Y - pts[0].Y}
		case n - 1:
			out[i] = plotter.XY{X: pts[i].X, Y: pts[n-1].Y - pts[n-2].Y}
		default:
			out[i] = plotter.XY{X: pts[i].X, Y: (pts[i+1].Y - pts[i-1].Y) / 2}
		}
	}
	return out
}
