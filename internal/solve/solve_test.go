package solve

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
)

func writeTestFITS(t *testing.T, path string, cards ...fitsio.Card) {
	t.Helper()

	w, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		t.Fatalf("fitsio.Create: %v", err)
	}
	defer f.Close()

	img := fitsio.NewImage(16, []int{4, 4})
	defer img.Close()
	if err := img.Header().Append(cards...); err != nil {
		t.Fatalf("append cards: %v", err)
	}
	pix := make([]int16, 16)
	if err := img.Write(pix); err != nil {
		t.Fatalf("write pixels: %v", err)
	}
	if err := f.Write(img); err != nil {
		t.Fatalf("write HDU: %v", err)
	}
}

// fakeSolver writes a shell script standing in for solve-field.
func fakeSolver(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "solve-field")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake solver: %v", err)
	}
	return path
}

func TestOptionsArgs(t *testing.T) {
	opts := DefaultOptions()
	args := opts.args("frame.fits")

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--guess-scale", "--cpulimit 15", "--no-verify", "--no-plots",
		"--crpix-center", "--downsample 4", "--overwrite", "--skip-solved",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "frame.fits" {
		t.Errorf("frame path should be last arg, got %q", args[len(args)-1])
	}

	ra, dec := 123.5, -45.25
	opts.RA, opts.Dec, opts.Radius = &ra, &dec, 10
	joined = strings.Join(opts.args("frame.fits"), " ")
	if !strings.Contains(joined, "--ra 123.5") || !strings.Contains(joined, "--dec -45.25") {
		t.Errorf("hint args missing: %s", joined)
	}
	if !strings.Contains(joined, "--radius 10") {
		t.Errorf("radius arg missing: %s", joined)
	}

	// full override
	opts.Args = []string{"--just-this"}
	got := opts.args("frame.fits")
	if len(got) != 2 || got[0] != "--just-this" || got[1] != "frame.fits" {
		t.Errorf("Args override = %v", got)
	}
}

func TestSolveFieldMissingSolver(t *testing.T) {
	opts := DefaultOptions()
	opts.Solver = "no-such-solver-binary"
	_, _, err := SolveField(context.Background(), "frame.fits", opts)
	if !errors.Is(err, ErrSolverNotFound) {
		t.Errorf("err = %v, want ErrSolverNotFound", err)
	}
}

func TestGetSolveField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.fits")
	writeTestFITS(t, path,
		fitsio.Card{Name: "DATE-OBS", Value: "2016-03-12T04:30:00"},
		fitsio.Card{Name: "CRVAL1", Value: 180.25},
		fitsio.Card{Name: "CRVAL2", Value: -32.5},
	)

	opts := DefaultOptions()
	opts.Solver = fakeSolver(t, dir, "exit 0")

	sol, err := GetSolveField(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("GetSolveField: %v", err)
	}

	center, err := sol.Center()
	if err != nil {
		t.Fatalf("Center: %v", err)
	}
	if center.RA.Deg() != 180.25 || center.Dec.Deg() != -32.5 {
		t.Errorf("center = %v", center)
	}

	obsTime, err := sol.ObsTime()
	if err != nil {
		t.Fatalf("ObsTime: %v", err)
	}
	if obsTime != time.Date(2016, 3, 12, 4, 30, 0, 0, time.UTC) {
		t.Errorf("obs time = %v", obsTime)
	}
}

func TestGetSolveFieldRawFrame(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "frame.cr2")
	if err := os.WriteFile(raw, []byte("raw sensor data"), 0644); err != nil {
		t.Fatalf("write cr2: %v", err)
	}

	// the solver leaves the solved image alongside the raw as .new
	solved := filepath.Join(dir, "frame.new")
	writeTestFITS(t, solved,
		fitsio.Card{Name: "CRVAL1", Value: 150.75},
		fitsio.Card{Name: "CRVAL2", Value: 11.5},
	)

	script := "#!/bin/sh\necho '[{\"DateTimeOriginal\":\"2018:01:28 06:03:22\",\"Model\":\"Canon EOS 100D\"}]'\n"
	if err := os.WriteFile(filepath.Join(dir, "exiftool"), []byte(script), 0755); err != nil {
		t.Fatalf("write fake exiftool: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	opts := DefaultOptions()
	opts.Solver = fakeSolver(t, dir, "exit 0")

	sol, err := GetSolveField(context.Background(), raw, opts)
	if err != nil {
		t.Fatalf("GetSolveField: %v", err)
	}

	if sol.SolvedPath != solved {
		t.Errorf("SolvedPath = %q, want %q", sol.SolvedPath, solved)
	}
	if got := sol.Meta["solved_fits_file"]; got != solved {
		t.Errorf("solved_fits_file = %v, want %q", got, solved)
	}
	if got := sol.Meta["model"]; got != "Canon EOS 100D" {
		t.Errorf("EXIF model = %v", got)
	}

	// solved headers from the .new sibling are merged in too
	center, err := sol.Center()
	if err != nil {
		t.Fatalf("Center: %v", err)
	}
	if center.RA.Deg() != 150.75 || center.Dec.Deg() != 11.5 {
		t.Errorf("center = %v", center)
	}
}

func TestGetSolveFieldTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.fits")
	writeTestFITS(t, path, fitsio.Card{Name: "CRVAL1", Value: 1.0})

	opts := DefaultOptions()
	opts.Solver = fakeSolver(t, dir, "exec sleep 10")
	opts.Timeout = 100 * time.Millisecond

	start := time.Now()
	sol, err := GetSolveField(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("timeout should degrade to partial solution, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("solver was not killed on timeout (took %v)", elapsed)
	}
	// existing header is still readable after the kill
	if _, ok := sol.Float("crval1"); !ok {
		t.Error("expected header metadata despite timeout")
	}
}

func TestSolutionFloat(t *testing.T) {
	sol := &Solution{Meta: map[string]interface{}{
		"a": 1.5,
		"b": 7,
		"c": "2.25",
		"d": "not a number",
	}}
	cases := []struct {
		key  string
		want float64
		ok   bool
	}{
		{"a", 1.5, true},
		{"A", 1.5, true}, // case-insensitive
		{"b", 7, true},
		{"c", 2.25, true},
		{"d", 0, false},
		{"missing", 0, false},
	}
	for _, c := range cases {
		got, ok := sol.Float(c.key)
		if got != c.want || ok != c.ok {
			t.Errorf("Float(%q) = %f, %v; want %f, %v", c.key, got, ok, c.want, c.ok)
		}
	}
}

func TestSolutionPixelScaleFromCD(t *testing.T) {
	// a 10.3 arcsec/px scale, slightly rotated
	scale := 10.3 / 3600.0
	theta := 0.1
	sol := &Solution{Meta: map[string]interface{}{
		"cd1_1": scale * math.Cos(theta),
		"cd1_2": -scale * math.Sin(theta),
		"cd2_1": scale * math.Sin(theta),
		"cd2_2": scale * math.Cos(theta),
	}}
	got, ok := sol.PixelScale()
	if !ok {
		t.Fatal("PixelScale not derived from CD matrix")
	}
	if math.Abs(got-10.3) > 1e-9 {
		t.Errorf("pixel scale = %f, want 10.3", got)
	}
}

func TestParseWCSInfo(t *testing.T) {
	out := []byte(`crpix0 512.5
crpix1 384.5
ra_center 182.634
dec_center -28.119
orientation 181.204
pixscale 10.2859
imagew 1024
ra_center_hms 12:10:32.2
`)
	info := parseWCSInfo(out)
	if info["ra_center"] != 182.634 {
		t.Errorf("ra_center = %v", info["ra_center"])
	}
	if info["pixscale"] != 10.2859 {
		t.Errorf("pixscale = %v", info["pixscale"])
	}
	if info["ra_center_hms"] != "12:10:32.2" {
		t.Errorf("string value = %v", info["ra_center_hms"])
	}
}

func TestWCSInfoHeaderFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solved.fits")

	scale := 2.0 / 3600.0
	writeTestFITS(t, path,
		fitsio.Card{Name: "CRVAL1", Value: 55.5},
		fitsio.Card{Name: "CRVAL2", Value: 12.25},
		fitsio.Card{Name: "CD1_1", Value: scale},
		fitsio.Card{Name: "CD1_2", Value: 0.0},
		fitsio.Card{Name: "CD2_1", Value: 0.0},
		fitsio.Card{Name: "CD2_2", Value: scale},
	)

	orig := wcsinfoBin
	wcsinfoBin = "no-such-wcsinfo-binary"
	defer func() { wcsinfoBin = orig }()

	info, err := WCSInfo(context.Background(), path)
	if err != nil {
		t.Fatalf("WCSInfo fallback: %v", err)
	}
	if info["ra_center"] != 55.5 || info["dec_center"] != 12.25 {
		t.Errorf("centre = %v, %v", info["ra_center"], info["dec_center"])
	}
	if ps, _ := info["pixscale"].(float64); math.Abs(ps-2.0) > 1e-9 {
		t.Errorf("pixscale = %v, want 2.0", info["pixscale"])
	}
}

func TestPointingError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solved.fits")

	// solved centre one degree of declination away from the target
	writeTestFITS(t, path,
		fitsio.Card{Name: "RA", Value: 100.0},
		fitsio.Card{Name: "DEC", Value: 20.0},
		fitsio.Card{Name: "CRVAL1", Value: 100.0},
		fitsio.Card{Name: "CRVAL2", Value: 21.0},
	)

	orig := wcsinfoBin
	wcsinfoBin = "no-such-wcsinfo-binary"
	defer func() { wcsinfoBin = orig }()

	sep, err := PointingError(context.Background(), path)
	if err != nil {
		t.Fatalf("PointingError: %v", err)
	}
	if math.Abs(sep.Deg()-1.0) > 1e-9 {
		t.Errorf("separation = %f deg, want 1.0", sep.Deg())
	}
}

func TestPointingErrorNoTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solved.fits")
	writeTestFITS(t, path,
		fitsio.Card{Name: "CRVAL1", Value: 100.0},
		fitsio.Card{Name: "CRVAL2", Value: 21.0},
	)

	orig := wcsinfoBin
	wcsinfoBin = "no-such-wcsinfo-binary"
	defer func() { wcsinfoBin = orig }()

	_, err := PointingError(context.Background(), path)
	if !errors.Is(err, ErrNoTarget) {
		t.Errorf("err = %v, want ErrNoTarget", err)
	}
}

func TestPointingErrorMissingFile(t *testing.T) {
	_, err := PointingError(context.Background(), filepath.Join(t.TempDir(), "nope.fits"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
