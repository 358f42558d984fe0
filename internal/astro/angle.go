package astro

import (
	"fmt"
	"math"
)

// Angle is a celestial angle stored in degrees. Constructors convert from
// other astronomical units so callers never multiply by 3600 inline.
type Angle float64

// Degrees constructs an Angle from decimal degrees.
func Degrees(v float64) Angle { return Angle(v) }

// Arcseconds constructs an Angle from arcseconds.
func Arcseconds(v float64) Angle { return Angle(v / 3600.0) }

// Hours constructs an Angle from hours of right ascension (15 deg/hour).
func Hours(v float64) Angle { return Angle(v * 15.0) }

// Radians constructs an Angle from radians.
func Radians(v float64) Angle { return Angle(v * 180.0 / math.Pi) }

func (a Angle) Deg() float64    { return float64(a) }
func (a Angle) Arcsec() float64 { return float64(a) * 3600.0 }
func (a Angle) Hours() float64  { return float64(a) / 15.0 }
func (a Angle) Rad() float64    { return float64(a) * math.Pi / 180.0 }

// Normalized wraps the angle into [0, 360).
func (a Angle) Normalized() Angle {
	d := math.Mod(float64(a), 360.0)
	if d < 0 {
		d += 360.0
	}
	return Angle(d)
}

func (a Angle) String() string { return fmt.Sprintf("%.6fd", float64(a)) }

// Tracking-rate constants. The mount nominally follows the sky at sidereal
// rate; guiding corrections are issued at a fraction of it.
const (
	// SiderealRateArcsecPerSec is the apparent sky motion: 360 degrees per
	// 24 hours expressed in arcsec/s.
	SiderealRateArcsecPerSec = (360.0 * 3600.0) / (24.0 * 3600.0) // 15"/s

	// SiderealMinutesPerArcsec is the inverse rate in minutes of time per
	// arcsecond of motion, used to turn an arcsecond excursion into a
	// timing correction.
	SiderealMinutesPerArcsec = (24.0 * 60.0) / (360.0 * 3600.0)

	// DefaultGuideRateFraction is the fraction of sidereal the mount uses
	// while issuing guide corrections.
	DefaultGuideRateFraction = 0.9
)
