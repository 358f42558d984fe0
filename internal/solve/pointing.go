package solve

import (
	"context"
	"fmt"
	"os"

	"github.com/sidereal-data/drift.report/internal/astro"
	"github.com/sidereal-data/drift.report/internal/frame"
)

// PointingError compares the plate-solved centre of a FITS file against the
// RA/Dec target headers recorded at capture time. The separation is the
// difference between where the mount was told to point and where the optics
// actually looked.
func PointingError(ctx context.Context, path string) (astro.Angle, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("pointing error: %w", err)
	}

	info, err := WCSInfo(ctx, path)
	if err != nil {
		return 0, err
	}
	sol := NewSolution(path)
	sol.Merge(info)

	center, err := sol.Center()
	if err != nil {
		return 0, err
	}

	hdr, err := frame.LoadHeader(path)
	if err != nil {
		return 0, err
	}
	target := NewSolution(path)
	target.Merge(hdr)

	ra, okRA := target.Float("ra")
	dec, okDec := target.Float("dec")
	if !okRA || !okDec {
		return 0, fmt.Errorf("%s: %w", path, ErrNoTarget)
	}

	sep := center.Separation(astro.Equatorial{
		RA:  astro.Degrees(ra),
		Dec: astro.Degrees(dec),
	})
	return sep, nil
}
