// Command pec-fit assembles a periodic-error series from an observation
// directory, fits the worm-gear sinusoid to each axis, writes the fit
// plots, and optionally records the run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sidereal-data/drift.report/internal/astro"
	"github.com/sidereal-data/drift.report/internal/config"
	"github.com/sidereal-data/drift.report/internal/obsdb"
	"github.com/sidereal-data/drift.report/internal/pec"
	"github.com/sidereal-data/drift.report/internal/solve"
)

func main() {
	configPath := flag.String("config", "", "tuning config JSON (site, gear period, solver)")
	refImage := flag.String("ref", "", "reference guide frame within the directory")
	prefix := flag.String("prefix", "", "only use frames whose names start with this prefix")
	outDir := flag.String("out", "", "plot output directory (default: the observation directory)")
	dbPath := flag.String("db", "", "record the run in this database")
	asJSON := flag.Bool("json", false, "print the series and fit as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pec-fit [options] <observation-dir>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	dir := flag.Arg(0)

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	solveOpts := solve.DefaultOptions()
	solveOpts.Solver = cfg.GetSolverPath()
	solveOpts.Timeout = cfg.GetSolveTimeout()
	solveOpts.Downsample = cfg.GetDownsample()

	opts := pec.BuildOptions{
		RefImage: *refImage,
		Prefix:   *prefix,
		Site: astro.Site{
			Latitude:  astro.Degrees(cfg.GetSiteLatitude()),
			Longitude: astro.Degrees(cfg.GetSiteLongitude()),
			Elevation: cfg.GetSiteElevation(),
		},
		GearPeriod: cfg.GetGearPeriodSeconds(),
		Solve:      solveOpts,
	}

	series, err := pec.BuildSeries(context.Background(), dir, opts)
	if err != nil {
		log.Fatalf("failed to build series: %v", err)
	}
	log.Printf("built series for %s: %d samples", series.Target, len(series.Samples))

	fit, err := pec.Fit(series)
	if err != nil {
		log.Fatalf("fit failed: %v", err)
	}

	plotDir := *outDir
	if plotDir == "" {
		plotDir = dir
	}
	written, err := pec.Plot(series, fit, plotDir)
	if err != nil {
		log.Fatalf("failed to write plots: %v", err)
	}
	for _, path := range written {
		log.Printf("wrote %s", path)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]interface{}{
			"series": series,
			"fit":    fit,
		}); err != nil {
			log.Fatalf("failed to encode result: %v", err)
		}
	} else {
		fmt.Printf("RA:  peak-to-peak %.3f arcsec (freq %.4f phase %.4f)\n",
			fit.RA.PeakToPeak(), fit.RA.Freq, fit.RA.Phase)
		fmt.Printf("Dec: peak-to-peak %.3f arcsec (freq %.4f phase %.4f)\n",
			fit.Dec.PeakToPeak(), fit.Dec.Freq, fit.Dec.Phase)
	}

	if *dbPath != "" {
		database, err := obsdb.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		run, samples := runRecord(series, fit)
		if err := database.SavePECRun(run, samples); err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
		log.Printf("recorded run %s", run.ID)
	}
}

// runRecord flattens a series and its fit into store rows.
func runRecord(s *pec.Series, fit *pec.Result) (*obsdb.PECRun, []obsdb.PECSample) {
	run := &obsdb.PECRun{
		Target:     s.Target,
		ObsStart:   s.Start,
		GearPeriod: s.GearPeriod,
		RAFit: obsdb.AxisFit{
			Freq:      fit.RA.Freq,
			Amplitude: fit.RA.Amplitude,
			Phase:     fit.RA.Phase,
			Offset:    fit.RA.Offset,
		},
		DecFit: obsdb.AxisFit{
			Freq:      fit.Dec.Freq,
			Amplitude: fit.Dec.Amplitude,
			Phase:     fit.Dec.Phase,
			Offset:    fit.Dec.Offset,
		},
	}

	samples := make([]obsdb.PECSample, len(s.Samples))
	for i, sm := range s.Samples {
		samples[i] = obsdb.PECSample{
			ObsTime:     sm.Time,
			MJD:         sm.MJD,
			HADeg:       sm.HA,
			RADeltaAS:   sm.RADeltaAS,
			DecDeltaAS:  sm.DecDeltaAS,
			RARate:      sm.RARate,
			DecRate:     sm.DecRate,
			Dt:          sm.Dt,
			TotalOffset: sm.TotalOffset,
		}
	}
	return run, samples
}
