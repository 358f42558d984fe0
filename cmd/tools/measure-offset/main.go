// Command measure-offset registers two FITS frames of the same field and
// reports the drift between them in pixels, arcseconds, and tracking-time
// milliseconds. With -db the measurement is also recorded.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sidereal-data/drift.report/internal/frame"
	"github.com/sidereal-data/drift.report/internal/obsdb"
	"github.com/sidereal-data/drift.report/internal/offset"
	"github.com/sidereal-data/drift.report/internal/solve"
)

func main() {
	crop := flag.Bool("crop", true, "crop both frames to the centre before registration")
	cropSize := flag.Int("cropsize", frame.DefaultCropSize, "crop side length in pixels")
	upsample := flag.Int("upsample", offset.DefaultUpsample, "subpixel refinement factor")
	deltaT := flag.Duration("dt", 125*time.Second, "interval between the frames")
	dbPath := flag.String("db", "", "record the measurement in this database")
	asJSON := flag.Bool("json", false, "print the measurement as JSON")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: measure-offset [options] <first> <second>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	firstPath, secondPath := flag.Arg(0), flag.Arg(1)

	d0, err := frame.Load(firstPath)
	if err != nil {
		log.Fatalf("failed to load %s: %v", firstPath, err)
	}
	d1, err := frame.Load(secondPath)
	if err != nil {
		log.Fatalf("failed to load %s: %v", secondPath, err)
	}

	// The first frame's WCS (if any) orients the pixel shift on the sky;
	// without one the shift is reported in raw pixel axes.
	var sol *solve.Solution
	if wcs, err := solve.WCSInfo(context.Background(), firstPath); err == nil {
		sol = solve.NewSolution(firstPath)
		sol.Merge(wcs)
	} else {
		log.Printf("no WCS for %s, reporting raw pixel axes: %v", firstPath, err)
	}

	opts := offset.DefaultMeasureOptions()
	opts.Crop = *crop
	opts.CropSize = *cropSize
	opts.Upsample = *upsample
	opts.DeltaT = *deltaT

	m, err := offset.MeasureOffset(d0, d1, sol, opts)
	if err != nil {
		log.Fatalf("registration failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			log.Fatalf("failed to encode measurement: %v", err)
		}
	} else {
		fmt.Printf("shift: (%.3f, %.3f) px\n", m.ShiftX, m.ShiftY)
		fmt.Printf("RA delta: %.3f arcsec (%.0f ms)\n", m.RADeltaArcsec, m.RAOffsetMs)
		fmt.Printf("Dec delta: %.3f arcsec (%.0f ms)\n", m.DecDeltaArcsec, m.DecOffsetMs)
		fmt.Printf("rate deltas: RA %.4f Dec %.4f of sidereal\n", m.RADeltaRate, m.DecDeltaRate)
	}

	if *dbPath != "" {
		database, err := obsdb.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		rec := &obsdb.OffsetRecord{
			FirstPath:    firstPath,
			SecondPath:   secondPath,
			ShiftX:       m.ShiftX,
			ShiftY:       m.ShiftY,
			RADeltaAS:    m.RADeltaArcsec,
			DecDeltaAS:   m.DecDeltaArcsec,
			RAOffsetMs:   m.RAOffsetMs,
			DecOffsetMs:  m.DecOffsetMs,
			RADeltaRate:  m.RADeltaRate,
			DecDeltaRate: m.DecDeltaRate,
		}
		if err := database.InsertOffset(rec); err != nil {
			log.Fatalf("failed to record measurement: %v", err)
		}
		log.Printf("recorded measurement %s", rec.ID)
	}
}
