// Package offset turns image-to-image displacements into tracking
// corrections. Two routes produce an offset: comparing the solved centres of
// two plate-solved frames, and registering the raw pixels of two frames
// directly.
package offset

import (
	"fmt"
	"math"
	"time"

	"github.com/sidereal-data/drift.report/internal/astro"
	"github.com/sidereal-data/drift.report/internal/frame"
	"github.com/sidereal-data/drift.report/internal/solve"
)

// PointingOffset is the drift between the solved centres of two frames,
// expressed in every unit the mount model wants: degrees, pixels, rates,
// and millisecond timing corrections at sidereal rate.
type PointingOffset struct {
	PixelScale float64 `json:"pixel_scale"` // arcsec/pixel
	Rotation   float64 `json:"rotation"`    // degrees
	DeltaTime  float64 `json:"delta_t"`     // minutes

	DeltaRADeg  float64 `json:"delta_ra_deg"`
	DeltaDecDeg float64 `json:"delta_dec_deg"`
	DeltaRAPix  float64 `json:"delta_ra"`
	DeltaDecPix float64 `json:"delta_dec"`

	RARate  float64 `json:"ra_rate"`  // pixels/minute
	DecRate float64 `json:"dec_rate"` // pixels/minute

	SiderealRate   float64 `json:"sidereal_rate"`   // minutes/arcsec
	SiderealScale  float64 `json:"sidereal_scale"`  // pixels/minute of sky motion
	SiderealFactor float64 `json:"sidereal_factor"` // measured RA rate over sidereal

	RADeltaArcsec  float64 `json:"ra_delta_as"`
	DecDeltaArcsec float64 `json:"dec_delta_as"`
	RAOffsetMs     float64 `json:"ra_ms_offset"`
	DecOffsetMs    float64 `json:"dec_ms_offset"`
}

// SolveOffset computes the pointing drift between two plate-solved frames
// from their solved centre coordinates. The first frame supplies the plate
// scale and rotation.
func SolveOffset(first, second *solve.Solution) (*PointingOffset, error) {
	c1, err := first.Center()
	if err != nil {
		return nil, fmt.Errorf("first frame: %w", err)
	}
	c2, err := second.Center()
	if err != nil {
		return nil, fmt.Errorf("second frame: %w", err)
	}

	pixScale, ok := first.PixelScale()
	if !ok || pixScale == 0 {
		return nil, fmt.Errorf("first frame %s: no pixel scale", first.Path)
	}
	rotation, _ := first.Rotation()

	t1, err := first.ObsTime()
	if err != nil {
		return nil, err
	}
	t2, err := second.ObsTime()
	if err != nil {
		return nil, err
	}

	out := &PointingOffset{
		PixelScale: pixScale,
		Rotation:   rotation,
		DeltaTime:  t2.Sub(t1).Minutes(),
	}

	out.DeltaRADeg = (c2.RA - c1.RA).Deg()
	out.DeltaDecDeg = (c2.Dec - c1.Dec).Deg()

	out.DeltaRAPix = astro.Degrees(out.DeltaRADeg).Arcsec() / pixScale
	out.DeltaDecPix = astro.Degrees(out.DeltaDecDeg).Arcsec() / pixScale

	out.RARate = out.DeltaRAPix / out.DeltaTime
	out.DecRate = out.DeltaDecPix / out.DeltaTime

	// How many pixels per minute the sky moves at this plate scale, and
	// how our measured RA rate compares.
	out.SiderealRate = astro.SiderealMinutesPerArcsec
	out.SiderealScale = 1.0 / (out.SiderealRate * pixScale)
	out.SiderealFactor = out.RARate / out.SiderealScale

	out.RADeltaArcsec = pixScale * out.DeltaRAPix
	out.DecDeltaArcsec = pixScale * out.DeltaDecPix

	// Timing correction: how many milliseconds of sidereal tracking the
	// excursion corresponds to.
	out.RAOffsetMs = out.RADeltaArcsec * out.SiderealRate * 60 * 1000
	out.DecOffsetMs = out.DecDeltaArcsec * out.SiderealRate * 60 * 1000

	return out, nil
}

// MeasureOptions control pixel-level registration.
type MeasureOptions struct {
	Crop     bool
	CropSize int
	Upsample int
	// Rate is the mount tracking rate in arcsec/s used to convert an
	// arcsecond excursion into a timing correction.
	Rate float64
	// DeltaT is the interval between the two frames.
	DeltaT time.Duration
}

// DefaultMeasureOptions crops to the centre 500x500, refines to 1/100 pixel,
// and assumes the mount was guiding at 0.9 sidereal with the standing
// 125-second frame cadence.
func DefaultMeasureOptions() MeasureOptions {
	return MeasureOptions{
		Crop:     true,
		CropSize: frame.DefaultCropSize,
		Upsample: DefaultUpsample,
		Rate:     astro.DefaultGuideRateFraction * astro.SiderealRateArcsecPerSec,
		DeltaT:   125 * time.Second,
	}
}

// Measurement is a pixel-registration result converted to physical units.
type Measurement struct {
	ShiftY float64 `json:"shift_y"` // pixels
	ShiftX float64 `json:"shift_x"`

	RADeltaArcsec  float64 `json:"ra_delta_as"`
	DecDeltaArcsec float64 `json:"dec_delta_as"`

	RAOffsetMs  float64 `json:"ra_ms_offset"` // at the tracking rate, rounded
	DecOffsetMs float64 `json:"dec_ms_offset"`

	RADeltaRate  float64 `json:"ra_delta_rate"` // fraction of sidereal
	DecDeltaRate float64 `json:"dec_delta_rate"`
}

// MeasureOffset registers two frames and converts the measured pixel shift
// into arcsecond and timing offsets using the WCS transform from sol. When
// sol carries no CD matrix the transform degrades to the identity
// (degrees/pixel), matching a raw unsolved-guider setup.
func MeasureOffset(d0, d1 *frame.Frame, sol *solve.Solution, opts MeasureOptions) (*Measurement, error) {
	if d0.Width != d1.Width || d0.Height != d1.Height {
		return nil, ErrShapeMismatch
	}

	if opts.Crop && (d0.Width > opts.CropSize || d0.Height > opts.CropSize) {
		d0 = d0.CenterCrop(opts.CropSize)
		d1 = d1.CenterCrop(opts.CropSize)
	}

	upsample := opts.Upsample
	if upsample <= 0 {
		upsample = DefaultUpsample
	}
	dy, dx, err := Register(d0.Data, d1.Data, d0.Width, d0.Height, upsample)
	if err != nil {
		return nil, err
	}

	cd := [2][2]float64{{1, 0}, {0, 1}}
	if sol != nil {
		if m, ok := sol.CD(); ok {
			cd = m
		}
	}

	// shift (row vector) through the WCS transform, degrees
	raDeg := dy*cd[0][0] + dx*cd[1][0]
	decDeg := dy*cd[0][1] + dx*cd[1][1]

	rate := opts.Rate
	if rate <= 0 {
		rate = astro.DefaultGuideRateFraction * astro.SiderealRateArcsecPerSec
	}
	deltaT := opts.DeltaT
	if deltaT <= 0 {
		deltaT = 125 * time.Second
	}

	m := &Measurement{
		ShiftY:         dy,
		ShiftX:         dx,
		RADeltaArcsec:  astro.Degrees(raDeg).Arcsec(),
		DecDeltaArcsec: astro.Degrees(decDeg).Arcsec(),
	}

	m.RAOffsetMs = math.Round(m.RADeltaArcsec / rate * 1000)
	m.DecOffsetMs = math.Round(m.DecDeltaArcsec / rate * 1000)

	// Excursion rates over the frame interval, as a fraction of sidereal.
	sidereal := astro.SiderealRateArcsecPerSec
	raRate := m.RADeltaArcsec / deltaT.Seconds()
	decRate := m.DecDeltaArcsec / deltaT.Seconds()
	m.RADeltaRate = round4(1.0 - (sidereal+raRate)/sidereal)
	m.DecDeltaRate = round4(1.0 - (sidereal+decRate)/sidereal)

	return m, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
