package pec

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Params is a fitted worm-gear sinusoid: Amplitude*sin(Freq*x + Phase) + Offset,
// with x in degrees of hour angle.
type Params struct {
	Freq      float64 `json:"freq"`
	Amplitude float64 `json:"amplitude"`
	Phase     float64 `json:"phase"`
	Offset    float64 `json:"offset"`
}

// Eval evaluates the sinusoid at x.
func (p Params) Eval(x float64) float64 {
	return p.Amplitude*math.Sin(x*p.Freq+p.Phase) + p.Offset
}

// PeakToPeak is the full excursion of the fitted curve.
func (p Params) PeakToPeak() float64 {
	return 2 * math.Abs(p.Amplitude)
}

// FitFunc returns the fitted curve as a plain function, suitable for
// feeding a correction table.
func FitFunc(p Params) func(float64) float64 {
	return p.Eval
}

// Result carries the fitted parameters for both axes, for the arcsecond
// series and the rate series. RA of the arcsecond series is the quantity
// the mount's periodic-error correction consumes.
type Result struct {
	RA      Params `json:"ra"`
	Dec     Params `json:"dec"`
	RARate  Params `json:"ra_rate"`
	DecRate Params `json:"dec_rate"`
}

// FitSine fits the gear sinusoid to (xs, ys) by nonlinear least squares.
// Initial guesses follow the usual prescription: amplitude from the sample
// standard deviation, offset from the mean.
func FitSine(xs, ys []float64) (Params, error) {
	if len(xs) != len(ys) {
		return Params{}, fmt.Errorf("x and y lengths differ: %d vs %d", len(xs), len(ys))
	}
	if len(xs) < 4 {
		return Params{}, fmt.Errorf("need at least 4 points to fit, have %d", len(xs))
	}

	guess := []float64{
		2.0, // freq
		3.0 * stat.StdDev(ys, nil) / math.Sqrt2,
		0.0, // phase
		stat.Mean(ys, nil),
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			sse := 0.0
			for i, x := range xs {
				r := p[1]*math.Sin(x*p[0]+p[2]) + p[3] - ys[i]
				sse += r * r
			}
			return sse
		},
	}

	res, err := optimize.Minimize(problem, guess, nil, &optimize.NelderMead{})
	if err != nil {
		return Params{}, fmt.Errorf("sinusoid fit: %w", err)
	}
	if err := res.Status.Err(); err != nil {
		return Params{}, fmt.Errorf("sinusoid fit: %w", err)
	}

	return Params{
		Freq:      res.X[0],
		Amplitude: res.X[1],
		Phase:     res.X[2],
		Offset:    res.X[3],
	}, nil
}

// Fit fits the gear sinusoid against hour angle for all four series
// variants.
func Fit(s *Series) (*Result, error) {
	n := len(s.Samples)
	xs := make([]float64, n)
	raAS := make([]float64, n)
	decAS := make([]float64, n)
	raRate := make([]float64, n)
	decRate := make([]float64, n)
	for i, sm := range s.Samples {
		xs[i] = sm.HA
		raAS[i] = sm.RADeltaAS
		decAS[i] = sm.DecDeltaAS
		raRate[i] = sm.RARate
		decRate[i] = sm.DecRate
	}

	out := &Result{}
	var err error
	if out.RA, err = FitSine(xs, raAS); err != nil {
		return nil, fmt.Errorf("RA offsets: %w", err)
	}
	if out.Dec, err = FitSine(xs, decAS); err != nil {
		return nil, fmt.Errorf("Dec offsets: %w", err)
	}
	if out.RARate, err = FitSine(xs, raRate); err != nil {
		return nil, fmt.Errorf("RA rates: %w", err)
	}
	if out.DecRate, err = FitSine(xs, decRate); err != nil {
		return nil, fmt.Errorf("Dec rates: %w", err)
	}
	return out, nil
}
