// Package solve wraps the external astrometry.net tools. The solver itself
// is an opaque collaborator: this package marshals arguments, spawns the
// binary, and turns the headers it writes into a Solution the offset and
// PEC pipelines can consume.
package solve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sidereal-data/drift.report/internal/frame"
	"github.com/sidereal-data/drift.report/internal/monitoring"
)

var (
	// ErrSolverNotFound means the solve-field binary is not on PATH (or at
	// the configured location).
	ErrSolverNotFound = errors.New("solve-field binary not found")

	// ErrNoTarget means a frame has no RA/Dec target headers to compare
	// the solved centre against.
	ErrNoTarget = errors.New("frame has no target coordinates")
)

// Options control how the external solver is invoked. Start from
// DefaultOptions and override fields as needed; the zero value is usable
// but solves without hints and never overwrites previous results.
type Options struct {
	Solver     string        // solver binary, default "solve-field"
	Timeout    time.Duration // also passed to the solver as --cpulimit
	Downsample int
	Overwrite  bool
	SkipSolved bool
	RA         *float64 // centre hint, degrees
	Dec        *float64
	Radius     float64 // search radius around the hint, degrees
	TempDir    string
	Args       []string // full override of the generated option list
}

// DefaultOptions mirrors the capture pipeline's standing solver invocation.
func DefaultOptions() Options {
	return Options{
		Solver:     "solve-field",
		Timeout:    15 * time.Second,
		Downsample: 4,
		Overwrite:  true,
		SkipSolved: true,
	}
}

func (o Options) args(path string) []string {
	if len(o.Args) > 0 {
		return append(append([]string{}, o.Args...), path)
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	args := []string{
		"--guess-scale",
		"--cpulimit", strconv.Itoa(int(timeout.Seconds())),
		"--no-verify",
		"--no-plots",
		"--crpix-center",
	}
	if o.Downsample > 0 {
		args = append(args, "--downsample", strconv.Itoa(o.Downsample))
	}
	if o.Overwrite {
		args = append(args, "--overwrite")
	}
	if o.SkipSolved {
		args = append(args, "--skip-solved")
	}
	if o.RA != nil {
		args = append(args, "--ra", strconv.FormatFloat(*o.RA, 'f', -1, 64))
	}
	if o.Dec != nil {
		args = append(args, "--dec", strconv.FormatFloat(*o.Dec, 'f', -1, 64))
	}
	if o.Radius > 0 {
		args = append(args, "--radius", strconv.FormatFloat(o.Radius, 'f', -1, 64))
	}
	if o.TempDir != "" {
		args = append(args, "--temp-dir", o.TempDir)
	}
	return append(args, path)
}

// SolveField starts the external plate solver on a frame and returns the
// running command along with the buffer collecting its combined output.
// Callers that just want the result should use GetSolveField.
func SolveField(ctx context.Context, path string, opts Options) (*exec.Cmd, *bytes.Buffer, error) {
	solver := opts.Solver
	if solver == "" {
		solver = "solve-field"
	}
	if _, err := exec.LookPath(solver); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrSolverNotFound, solver)
	}

	cmd := exec.CommandContext(ctx, solver, opts.args(path)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", solver, err)
	}
	return cmd, &out, nil
}

// GetSolveField runs the solver to completion and assembles a Solution from
// the headers it produced. The context deadline (or opts.Timeout, whichever
// is sooner) kills a stuck solver. Header files that cannot be read after a
// solve produce warnings, not errors: a partially-described solve is still
// useful to the caller.
func GetSolveField(ctx context.Context, path string, opts Options) (*Solution, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd, out, err := SolveField(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			monitoring.Warnf("solver timed out on %s: %s", path, lastLine(out))
			// fall through: a prior run may have left usable headers
		} else {
			return nil, fmt.Errorf("solve-field on %s: %w (%s)", path, err, lastLine(out))
		}
	}

	sol := NewSolution(path)

	solvedPath := path
	if strings.HasSuffix(path, ".cr2") {
		exif, err := frame.ReadEXIF(ctx, path)
		if err != nil {
			monitoring.Warnf("EXIF read failed for %s: %v", path, err)
		} else {
			sol.Merge(exif)
		}
		// astrometry.net writes the solved image alongside as .new
		solvedPath = strings.TrimSuffix(path, ".cr2") + ".new"
		sol.Meta["solved_fits_file"] = solvedPath
	}
	sol.SolvedPath = solvedPath

	hdr, err := frame.LoadHeader(solvedPath)
	if err != nil {
		monitoring.Warnf("cannot read FITS header for %s: %v", solvedPath, err)
		return sol, nil
	}
	sol.Merge(hdr)
	return sol, nil
}

func lastLine(b *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
