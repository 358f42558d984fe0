package astro

import (
	"math"
	"testing"
	"time"
)

func TestAngleConversions(t *testing.T) {
	a := Arcseconds(3600)
	if a.Deg() != 1.0 {
		t.Errorf("Arcseconds(3600).Deg() = %f, want 1.0", a.Deg())
	}
	if Hours(1).Deg() != 15.0 {
		t.Errorf("Hours(1).Deg() = %f, want 15.0", Hours(1).Deg())
	}
	if math.Abs(Degrees(180).Rad()-math.Pi) > 1e-12 {
		t.Errorf("Degrees(180).Rad() = %f, want pi", Degrees(180).Rad())
	}
	if Degrees(2).Arcsec() != 7200.0 {
		t.Errorf("Degrees(2).Arcsec() = %f, want 7200", Degrees(2).Arcsec())
	}
}

func TestAngleNormalized(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{360, 0},
		{365, 5},
		{-10, 350},
		{720.5, 0.5},
	}
	for _, c := range cases {
		got := Degrees(c.in).Normalized().Deg()
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("Normalized(%f) = %f, want %f", c.in, got, c.want)
		}
	}
}

func TestSiderealConstants(t *testing.T) {
	if math.Abs(SiderealRateArcsecPerSec-15.0) > 1e-12 {
		t.Errorf("sidereal rate = %f, want 15 arcsec/s", SiderealRateArcsecPerSec)
	}
	// one arcsecond of sky takes 1/15 s = 1/900 min at sidereal
	if math.Abs(SiderealMinutesPerArcsec-1.0/900.0) > 1e-15 {
		t.Errorf("sidereal minutes per arcsec = %g, want 1/900", SiderealMinutesPerArcsec)
	}
}

func TestSeparation(t *testing.T) {
	cases := []struct {
		name   string
		a, b   Equatorial
		want   float64 // degrees
		within float64
	}{
		{
			name:   "identical",
			a:      Equatorial{RA: Degrees(120), Dec: Degrees(-30)},
			b:      Equatorial{RA: Degrees(120), Dec: Degrees(-30)},
			want:   0, within: 1e-9,
		},
		{
			name:   "one degree of declination",
			a:      Equatorial{RA: Degrees(10), Dec: Degrees(20)},
			b:      Equatorial{RA: Degrees(10), Dec: Degrees(21)},
			want:   1, within: 1e-9,
		},
		{
			name:   "ra separation shrinks with declination",
			a:      Equatorial{RA: Degrees(0), Dec: Degrees(60)},
			b:      Equatorial{RA: Degrees(2), Dec: Degrees(60)},
			want:   1.0, within: 0.01, // 2 deg RA * cos(60) ~ 1 deg
		},
		{
			name:   "poles",
			a:      Equatorial{RA: Degrees(0), Dec: Degrees(90)},
			b:      Equatorial{RA: Degrees(123), Dec: Degrees(-90)},
			want:   180, within: 1e-9,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.a.Separation(c.b).Deg()
			if math.Abs(got-c.want) > c.within {
				t.Errorf("Separation = %f, want %f +/- %g", got, c.want, c.within)
			}
		})
	}
}

func TestParseObsTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2016-03-12T04:30:00", time.Date(2016, 3, 12, 4, 30, 0, 0, time.UTC)},
		{"2016-03-12T04:30:00.5", time.Date(2016, 3, 12, 4, 30, 0, 5e8, time.UTC)},
		{"2016-03-12 04:30:00", time.Date(2016, 3, 12, 4, 30, 0, 0, time.UTC)},
		{"2016:03:12 04:30:00", time.Date(2016, 3, 12, 4, 30, 0, 0, time.UTC)},
		{"2016-03-12", time.Date(2016, 3, 12, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseObsTime(c.in)
		if err != nil {
			t.Errorf("ParseObsTime(%q): %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("ParseObsTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	if _, err := ParseObsTime("not a time"); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestJulianDate(t *testing.T) {
	// J2000.0 epoch: 2000-01-01 12:00 TT ~ 12:00 UTC for our purposes
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := JulianDate(j2000); math.Abs(got-2451545.0) > 1e-6 {
		t.Errorf("JulianDate(J2000) = %f, want 2451545.0", got)
	}
	if got := MJD(j2000); math.Abs(got-51544.5) > 1e-6 {
		t.Errorf("MJD(J2000) = %f, want 51544.5", got)
	}
}

func TestGreenwichSiderealTime(t *testing.T) {
	// Reference value from the USNO: GMST at 1987-04-10 00:00 UT is
	// 13h 10m 46.3668s (Meeus, example 12.a) = 197.693195 deg.
	ut := time.Date(1987, 4, 10, 0, 0, 0, 0, time.UTC)
	got := GreenwichSiderealTime(ut).Deg()
	want := 197.693195
	if math.Abs(got-want) > 0.001 {
		t.Errorf("GMST = %f, want %f", got, want)
	}
}

func TestSiteHourAngle(t *testing.T) {
	site := Site{Latitude: Degrees(19.54), Longitude: Degrees(-155.58)} // Mauna Loa
	target := Equatorial{RA: Degrees(100), Dec: Degrees(20)}
	t0 := time.Date(2016, 3, 12, 6, 0, 0, 0, time.UTC)

	ha0 := site.HourAngle(t0, target)
	if ha0.Deg() < 0 || ha0.Deg() >= 360 {
		t.Fatalf("hour angle %f out of [0, 360)", ha0.Deg())
	}

	// One sidereal hour later the hour angle advances ~15.04 degrees.
	ha1 := site.HourAngle(t0.Add(time.Hour), target)
	diff := (ha1 - ha0).Normalized().Deg()
	if math.Abs(diff-15.041) > 0.01 {
		t.Errorf("hour angle advanced %f deg in an hour, want ~15.041", diff)
	}
}
