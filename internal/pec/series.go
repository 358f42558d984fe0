// Package pec measures periodic error: the recurring tracking excursion the
// mount's worm gear imprints on a frame sequence. A series is built by
// plate-solving every frame of an observation, and a sinusoid fitted to the
// excursion against hour angle characterizes the gear.
package pec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sidereal-data/drift.report/internal/astro"
	"github.com/sidereal-data/drift.report/internal/frame"
	"github.com/sidereal-data/drift.report/internal/monitoring"
	"github.com/sidereal-data/drift.report/internal/solve"
)

// DefaultGearPeriod is the worm period of the stock mount, in seconds.
const DefaultGearPeriod = 480.0

// Sample is one frame's contribution to a periodic-error series.
type Sample struct {
	Time   time.Time `json:"time"`
	MJD    float64   `json:"mjd"`
	RA     float64   `json:"ra"`  // solved centre, degrees
	Dec    float64   `json:"dec"` // degrees
	HA     float64   `json:"ha"`  // hour angle, degrees

	RADeltaAS   float64 `json:"ra_as"`       // arcsec since previous frame
	DecDeltaAS  float64 `json:"dec_as"`
	RARate      float64 `json:"ra_as_rate"`  // arcsec/s
	DecRate     float64 `json:"dec_as_rate"`
	Dt          float64 `json:"dt"`          // seconds since previous frame
	TotalOffset float64 `json:"offset"`      // seconds since the reference frame
}

// Series is an assembled periodic-error time series for one observation.
type Series struct {
	Target     string   `json:"target"`
	Start      string   `json:"obs_date_start"`
	GearPeriod float64  `json:"gear_period"`
	Samples    []Sample `json:"samples"`
}

// BuildOptions control series assembly.
type BuildOptions struct {
	// RefImage names the reference guide frame within the directory. When
	// empty the newest solved guide frame is used.
	RefImage string
	// Prefix filters the frame sequence by filename prefix.
	Prefix string
	// Site is the observing location; required for hour angles.
	Site astro.Site
	// GearPeriod is the worm period in seconds, default 480.
	GearPeriod float64
	// Solve configures solver invocations for unsolved frames.
	Solve solve.Options
}

// BuildSeries scans an observation directory, plate-solves frames that do
// not yet carry a WCS (hinting the solver with the reference centre), and
// assembles the periodic-error time series. Frames that fail to solve are
// skipped with a warning rather than aborting the series.
func BuildSeries(ctx context.Context, dir string, opts BuildOptions) (*Series, error) {
	if opts.Site == (astro.Site{}) {
		return nil, fmt.Errorf("observing site required for hour angles")
	}
	if opts.GearPeriod <= 0 {
		opts.GearPeriod = DefaultGearPeriod
	}
	if opts.Solve.Solver == "" {
		opts.Solve = solve.DefaultOptions()
	}

	ref, err := findReference(ctx, dir, opts)
	if err != nil {
		return nil, err
	}

	refSol := solve.NewSolution(ref)
	if info, err := solve.WCSInfo(ctx, ref); err == nil {
		refSol.Merge(info)
	}
	if hdr, err := frame.LoadHeader(ref); err == nil {
		refSol.Merge(hdr)
	}
	refCenter, err := refSol.Center()
	if err != nil {
		return nil, fmt.Errorf("reference frame %s: %w", ref, err)
	}

	t0, err := refSol.ObsTime()
	if err != nil {
		// fall back to the observation date encoded in the directory name
		if t0, err = astro.ParseObsTime(filepath.Base(dir)); err != nil {
			return nil, fmt.Errorf("no reference time for %s", dir)
		}
	}
	monitoring.Logf("reference frame %s at %s", ref, t0.Format(time.RFC3339))

	paths, err := sequenceFrames(dir, opts.Prefix)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("found %d frames in sequence", len(paths))

	sols := make([]*solve.Solution, 0, len(paths))
	times := make([]time.Time, 0, len(paths))
	for _, p := range paths {
		sol, err := solveFrame(ctx, p, refCenter, opts.Solve)
		if err != nil {
			monitoring.Warnf("skipping %s: %v", p, err)
			continue
		}
		t, err := sol.ObsTime()
		if err != nil {
			monitoring.Warnf("skipping %s: %v", p, err)
			continue
		}
		sols = append(sols, sol)
		times = append(times, t)
	}
	if len(sols) == 0 {
		return nil, fmt.Errorf("no solvable frames in %s", dir)
	}

	s := &Series{
		Target:     filepath.Base(filepath.Dir(dir)),
		Start:      filepath.Base(dir),
		GearPeriod: opts.GearPeriod,
		Samples:    make([]Sample, len(sols)),
	}

	offset := 0.0
	for i, sol := range sols {
		center, err := sol.Center()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sol.Path, err)
		}

		var dt float64
		if i == 0 {
			dt = times[0].Sub(t0).Seconds()
		} else {
			dt = times[i].Sub(times[i-1]).Seconds()
		}
		offset += dt

		ha := opts.Site.HourAngle(times[i], center).Deg()
		if ha > 270 {
			ha -= 360
		}

		sm := Sample{
			Time:        times[i],
			MJD:         astro.MJD(times[i]),
			RA:          center.RA.Deg(),
			Dec:         center.Dec.Deg(),
			HA:          ha,
			Dt:          dt,
			TotalOffset: offset,
		}
		if i > 0 {
			prev := s.Samples[i-1]
			sm.RADeltaAS = (center.RA.Deg() - prev.RA) * 3600.0
			sm.DecDeltaAS = (center.Dec.Deg() - prev.Dec) * 3600.0
			if dt != 0 {
				sm.RARate = sm.RADeltaAS / dt
				sm.DecRate = sm.DecDeltaAS / dt
			}
		}
		s.Samples[i] = sm
	}

	return s, nil
}

// findReference locates the guide frame the series is measured against.
func findReference(ctx context.Context, dir string, opts BuildOptions) (string, error) {
	if opts.RefImage != "" {
		ref := filepath.Join(dir, opts.RefImage)
		return resolveReference(ctx, ref, opts.Solve)
	}

	solved, _ := filepath.Glob(filepath.Join(dir, "guide_*.new"))
	if len(solved) > 0 {
		sort.Strings(solved)
		return solved[len(solved)-1], nil
	}

	monitoring.Logf("no solved guide frames in %s, looking for raw frames", dir)
	raw, _ := filepath.Glob(filepath.Join(dir, "guide_*.cr2"))
	if fits, _ := filepath.Glob(filepath.Join(dir, "guide_*.fits")); len(fits) > 0 {
		raw = append(raw, fits...)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("no guide frames in %s", dir)
	}
	sort.Strings(raw)
	return resolveReference(ctx, raw[len(raw)-1], opts.Solve)
}

// resolveReference plate-solves a raw reference frame if needed and returns
// the path of the solved FITS.
func resolveReference(ctx context.Context, ref string, opts solve.Options) (string, error) {
	ext := filepath.Ext(ref)
	solved := strings.TrimSuffix(ref, ext) + ".new"
	if _, err := os.Stat(solved); err == nil {
		return solved, nil
	}
	if ext == ".new" {
		if _, err := os.Stat(ref); err != nil {
			return "", fmt.Errorf("reference frame missing: %w", err)
		}
		return ref, nil
	}

	monitoring.Logf("solving reference frame %s", ref)
	if _, err := solve.GetSolveField(ctx, ref, opts); err != nil {
		return "", fmt.Errorf("solve reference %s: %w", ref, err)
	}
	if _, err := os.Stat(solved); err != nil {
		// some solver configurations solve in place
		return ref, nil
	}
	return solved, nil
}

// sequenceFrames lists the observation's frame sequence, oldest first.
func sequenceFrames(dir, prefix string) ([]string, error) {
	var paths []string
	for _, pat := range []string{prefix + "*.cr2", prefix + "*.fits"} {
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if strings.HasPrefix(filepath.Base(m), "guide_") && prefix == "" {
				continue
			}
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// solveFrame produces a Solution for one sequence frame, solving it only
// when no WCS sidecar exists yet.
func solveFrame(ctx context.Context, path string, ref astro.Equatorial, opts solve.Options) (*solve.Solution, error) {
	ext := filepath.Ext(path)
	wcsPath := strings.TrimSuffix(path, ext) + ".wcs"

	if _, err := os.Stat(wcsPath); err != nil {
		// hint the solver: the sequence stays within a few degrees of the
		// reference centre
		ra, dec := ref.RA.Deg(), ref.Dec.Deg()
		o := opts
		o.RA, o.Dec, o.Radius = &ra, &dec, 10
		return solve.GetSolveField(ctx, path, o)
	}

	sol := solve.NewSolution(path)
	if info, err := solve.WCSInfo(ctx, wcsPath); err == nil {
		sol.Merge(info)
	} else {
		return nil, err
	}

	solved := strings.TrimSuffix(path, ext) + ".new"
	if _, err := os.Stat(solved); err != nil {
		solved = path
	}
	if hdr, err := frame.LoadHeader(solved); err == nil {
		sol.Merge(hdr)
	}
	if ext == ".cr2" {
		if exif, err := frame.ReadEXIF(ctx, path); err == nil {
			sol.Merge(exif)
		}
	}
	return sol, nil
}
