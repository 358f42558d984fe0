package astro

import (
	"fmt"
	"math"
	"time"
)

// FITS DATE-OBS comes in a handful of layouts depending on the camera
// firmware and whether astrometry.net rewrote the header.
var dateObsLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05", // EXIF DateTimeOriginal
	"2006-01-02",
}

// ParseObsTime parses a FITS DATE-OBS (or EXIF timestamp) value. Times
// without a zone are taken as UTC, which is what the capture pipeline
// writes.
func ParseObsTime(s string) (time.Time, error) {
	for _, layout := range dateObsLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized observation time %q", s)
}

// JulianDate converts t to a Julian date.
func JulianDate(t time.Time) float64 {
	const unixEpochJD = 2440587.5
	return unixEpochJD + float64(t.UnixNano())/float64(24*time.Hour)
}

// MJD converts t to a modified Julian date.
func MJD(t time.Time) float64 {
	return JulianDate(t) - 2400000.5
}

// GreenwichSiderealTime returns the Greenwich mean sidereal time at t as an
// angle in [0, 360). IAU 1982 polynomial, good to well under an arcsecond
// over the instrument's lifetime.
func GreenwichSiderealTime(t time.Time) Angle {
	d := JulianDate(t) - 2451545.0
	tc := d / 36525.0
	gmst := 280.46061837 + 360.98564736629*d + 0.000387933*tc*tc - tc*tc*tc/38710000.0
	return Angle(math.Mod(gmst, 360.0)).Normalized()
}

// LocalSiderealTime returns the local mean sidereal time for an
// east-positive longitude.
func LocalSiderealTime(t time.Time, longitude Angle) Angle {
	return (GreenwichSiderealTime(t) + longitude).Normalized()
}
