package solve

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sidereal-data/drift.report/internal/astro"
)

// Solution is the merged metadata for one plate-solved frame: FITS header
// cards, wcsinfo output, and (for raw camera files) EXIF tags, all under
// lowercase keys.
type Solution struct {
	Path       string // frame the solver was pointed at
	SolvedPath string // FITS file carrying the solved WCS
	Meta       map[string]interface{}
}

// NewSolution returns an empty Solution for path; callers merge metadata
// into it as headers become available.
func NewSolution(path string) *Solution {
	return &Solution{Path: path, Meta: map[string]interface{}{}}
}

// Merge folds a metadata map into the solution under lowercase keys.
func (s *Solution) Merge(m map[string]interface{}) {
	for k, v := range m {
		s.Meta[strings.ToLower(k)] = v
	}
}

// Get looks up a metadata key, case-insensitively.
func (s *Solution) Get(key string) (interface{}, bool) {
	v, ok := s.Meta[strings.ToLower(key)]
	return v, ok
}

// Float returns a metadata value as float64. Header cards come back from
// the FITS reader as assorted numeric types and wcsinfo values as strings,
// so all of those convert.
func (s *Solution) Float(key string) (float64, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// floatAny returns the first of keys that resolves to a float.
func (s *Solution) floatAny(keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := s.Float(k); ok {
			return f, true
		}
	}
	return 0, false
}

// Center returns the solved image-centre coordinates. With --crpix-center
// the reference pixel is the centre, so CRVAL serves when wcsinfo keys are
// absent.
func (s *Solution) Center() (astro.Equatorial, error) {
	ra, okRA := s.floatAny("ra_center", "center_ra", "crval1")
	dec, okDec := s.floatAny("dec_center", "center_dec", "crval2")
	if !okRA || !okDec {
		return astro.Equatorial{}, fmt.Errorf("%s: no solved centre in metadata", s.Path)
	}
	return astro.Equatorial{RA: astro.Degrees(ra), Dec: astro.Degrees(dec)}, nil
}

// PixelScale returns the plate scale in arcsec/pixel.
func (s *Solution) PixelScale() (float64, bool) {
	if v, ok := s.floatAny("pixscale", "pixel_scale"); ok {
		return v, true
	}
	// derive from the CD matrix determinant when wcsinfo never ran
	cd, ok := s.CD()
	if !ok {
		return 0, false
	}
	det := cd[0][0]*cd[1][1] - cd[0][1]*cd[1][0]
	if det < 0 {
		det = -det
	}
	return 3600.0 * math.Sqrt(det), true
}

// Rotation returns the field rotation (position angle) in degrees.
func (s *Solution) Rotation() (float64, bool) {
	return s.floatAny("orientation", "rotation", "crota2")
}

// CD returns the WCS linear-transform matrix in degrees/pixel, and whether
// the cards were present.
func (s *Solution) CD() ([2][2]float64, bool) {
	cd11, ok11 := s.floatAny("cd1_1", "cd11")
	cd12, ok12 := s.floatAny("cd1_2", "cd12")
	cd21, ok21 := s.floatAny("cd2_1", "cd21")
	cd22, ok22 := s.floatAny("cd2_2", "cd22")
	if !(ok11 && ok12 && ok21 && ok22) {
		return [2][2]float64{}, false
	}
	return [2][2]float64{{cd11, cd12}, {cd21, cd22}}, true
}

// ObsTime parses the frame's DATE-OBS (or EXIF capture time).
func (s *Solution) ObsTime() (time.Time, error) {
	for _, key := range []string{"date-obs", "dateobs", "datetimeoriginal"} {
		if v, ok := s.Get(key); ok {
			if str, ok := v.(string); ok {
				return astro.ParseObsTime(str)
			}
		}
	}
	return time.Time{}, fmt.Errorf("%s: no observation time in metadata", s.Path)
}
