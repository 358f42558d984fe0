// Command solve-frame plate-solves a single FITS or CR2 frame and prints
// the solved field, plus the pointing error when the frame carries target
// coordinates.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sidereal-data/drift.report/internal/solve"
)

func main() {
	timeout := flag.Duration("timeout", 15*time.Second, "solver time limit")
	downsample := flag.Int("downsample", 4, "solver downsample factor")
	ra := flag.Float64("ra", 0, "RA hint in degrees (with -dec and -radius)")
	dec := flag.Float64("dec", 0, "Dec hint in degrees")
	radius := flag.Float64("radius", 0, "search radius in degrees around the hint")
	asJSON := flag.Bool("json", false, "print the full solution as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: solve-frame [options] <frame>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	opts := solve.DefaultOptions()
	opts.Timeout = *timeout
	opts.Downsample = *downsample
	if *radius > 0 {
		opts.RA = ra
		opts.Dec = dec
		opts.Radius = *radius
	}

	sol, err := solve.GetSolveField(context.Background(), path, opts)
	if errors.Is(err, solve.ErrSolverNotFound) {
		log.Fatal("solve-field not found; install astrometry.net or set PATH")
	}
	if err != nil {
		log.Fatalf("solve failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sol.Meta); err != nil {
			log.Fatalf("failed to encode solution: %v", err)
		}
		return
	}

	center, err := sol.Center()
	if err != nil {
		log.Fatalf("no solved centre in %s: %v", path, err)
	}
	fmt.Printf("center: RA %.6f Dec %.6f\n", center.RA.Deg(), center.Dec.Deg())
	if scale, ok := sol.PixelScale(); ok {
		fmt.Printf("pixel scale: %.4f arcsec/px\n", scale)
	}
	if rot, ok := sol.Rotation(); ok {
		fmt.Printf("rotation: %.3f deg\n", rot)
	}

	sep, err := solve.PointingError(context.Background(), path)
	switch {
	case errors.Is(err, solve.ErrNoTarget):
		fmt.Println("pointing error: frame has no target coordinates")
	case err != nil:
		log.Printf("pointing error unavailable: %v", err)
	default:
		fmt.Printf("pointing error: %.2f arcsec\n", sep.Arcsec())
	}
}
