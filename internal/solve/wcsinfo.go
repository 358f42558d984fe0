package solve

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sidereal-data/drift.report/internal/frame"
	"github.com/sidereal-data/drift.report/internal/monitoring"
)

// wcsinfoBin can be overridden in tests.
var wcsinfoBin = "wcsinfo"

// WCSInfo returns the WCS quantities for a solved file. It prefers the
// astrometry.net wcsinfo utility, whose output is the richest; when the
// binary is unavailable it falls back to deriving the same keys from the
// FITS header cards.
func WCSInfo(ctx context.Context, path string) (map[string]interface{}, error) {
	cmd := exec.CommandContext(ctx, wcsinfoBin, path)
	out, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			monitoring.Warnf("wcsinfo not installed, deriving WCS from header of %s", path)
			return wcsFromHeader(path)
		}
		return nil, fmt.Errorf("wcsinfo %s: %w", path, err)
	}
	return parseWCSInfo(out), nil
}

// parseWCSInfo reads wcsinfo's "key value" line output. Numeric values
// become float64, everything else stays a string.
func parseWCSInfo(out []byte) map[string]interface{} {
	info := make(map[string]interface{})
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.SplitN(strings.TrimSpace(sc.Text()), " ", 2)
		if len(fields) != 2 {
			continue
		}
		key := strings.ToLower(fields[0])
		val := strings.TrimSpace(fields[1])
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			info[key] = f
		} else {
			info[key] = val
		}
	}
	return info
}

// wcsFromHeader reconstructs the wcsinfo keys the pipelines rely on from
// CRVAL/CD cards. Solves run with --crpix-center, so CRVAL is the image
// centre.
func wcsFromHeader(path string) (map[string]interface{}, error) {
	hdr, err := frame.LoadHeader(path)
	if err != nil {
		return nil, err
	}

	sol := NewSolution(path)
	sol.Merge(hdr)

	info := make(map[string]interface{})
	if ra, ok := sol.Float("crval1"); ok {
		info["ra_center"] = ra
	}
	if dec, ok := sol.Float("crval2"); ok {
		info["dec_center"] = dec
	}
	if cd, ok := sol.CD(); ok {
		det := math.Abs(cd[0][0]*cd[1][1] - cd[0][1]*cd[1][0])
		info["pixscale"] = 3600.0 * math.Sqrt(det)
		info["orientation"] = math.Atan2(cd[1][0], cd[0][0]) * 180.0 / math.Pi
	}
	if w, ok := sol.Float("naxis1"); ok {
		info["imagew"] = w
	}
	if h, ok := sol.Float("naxis2"); ok {
		info["imageh"] = h
	}
	return info, nil
}
