package astro

import (
	"math"
	"time"
)

// Equatorial is an ICRS right ascension / declination pair.
type Equatorial struct {
	RA  Angle
	Dec Angle
}

// Separation returns the great-circle angular distance to other using the
// Vincenty formula, which stays accurate for both tiny pointing errors and
// antipodal pairs.
func (e Equatorial) Separation(other Equatorial) Angle {
	ra1, dec1 := e.RA.Rad(), e.Dec.Rad()
	ra2, dec2 := other.RA.Rad(), other.Dec.Rad()

	dRA := ra2 - ra1
	sinDRA, cosDRA := math.Sincos(dRA)
	sinDec1, cosDec1 := math.Sincos(dec1)
	sinDec2, cosDec2 := math.Sincos(dec2)

	num1 := cosDec2 * sinDRA
	num2 := cosDec1*sinDec2 - sinDec1*cosDec2*cosDRA
	den := sinDec1*sinDec2 + cosDec1*cosDec2*cosDRA

	return Radians(math.Atan2(math.Hypot(num1, num2), den))
}

// Site is an observing location. Longitude is east-positive.
type Site struct {
	Latitude  Angle
	Longitude Angle
	Elevation float64 // metres, informational only
}

// HourAngle returns the hour angle of target as seen from the site at t,
// normalized to [0, 360) degrees.
func (s Site) HourAngle(t time.Time, target Equatorial) Angle {
	lst := LocalSiderealTime(t, s.Longitude)
	return (lst - target.RA).Normalized()
}
