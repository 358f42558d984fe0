package obsdb

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateVersion(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("expected clean migration state")
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}

func TestMigrateDownUp(t *testing.T) {
	db := openTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("version after down = %d, want 1", version)
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	version, _, _ = db.MigrateVersion()
	if version != 2 {
		t.Errorf("version after up = %d, want 2", version)
	}
}

func TestSolveRecordRoundTrip(t *testing.T) {
	db := openTestDB(t)

	obsTime := time.Date(2016, 3, 12, 4, 30, 0, 0, time.UTC)
	rec := &SolveRecord{
		Path:        "/images/m42/img_001.fits",
		SolvedPath:  "/images/m42/img_001.new",
		Target:      "M42",
		RACenter:    83.82,
		DecCenter:   -5.39,
		PixelScale:  10.3,
		Orientation: 89.7,
		FieldWidth:  3476,
		FieldHeight: 2320,
		PointingErr: 42.5,
		ObsTime:     obsTime,
	}
	if err := db.InsertSolve(rec); err != nil {
		t.Fatalf("InsertSolve failed: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected InsertSolve to assign an ID")
	}

	got, err := db.LatestSolve("M42")
	if err != nil {
		t.Fatalf("LatestSolve failed: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("ID = %q, want %q", got.ID, rec.ID)
	}
	if got.RACenter != 83.82 || got.DecCenter != -5.39 {
		t.Errorf("center = (%f, %f)", got.RACenter, got.DecCenter)
	}
	if got.FieldWidth != 3476 {
		t.Errorf("FieldWidth = %f, want 3476", got.FieldWidth)
	}
	if !got.ObsTime.Equal(obsTime) {
		t.Errorf("ObsTime = %v, want %v", got.ObsTime, obsTime)
	}
	if got.CreatedAt == "" {
		t.Error("expected CreatedAt to be set")
	}
}

func TestLatestSolvePicksNewest(t *testing.T) {
	db := openTestDB(t)

	for i, ra := range []float64{83.1, 83.2, 83.3} {
		rec := &SolveRecord{
			Path:     "/images/run",
			Target:   "M42",
			RACenter: ra,
		}
		if err := db.InsertSolve(rec); err != nil {
			t.Fatalf("InsertSolve %d failed: %v", i, err)
		}
	}

	got, err := db.LatestSolve("M42")
	if err != nil {
		t.Fatalf("LatestSolve failed: %v", err)
	}
	if got.RACenter != 83.3 {
		t.Errorf("RACenter = %f, want 83.3 (newest)", got.RACenter)
	}

	if _, err := db.LatestSolve("M31"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestSolve for unknown target = %v, want ErrNotFound", err)
	}
}

func TestListSolves(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		if err := db.InsertSolve(&SolveRecord{Path: "/images/x", Target: "M42"}); err != nil {
			t.Fatalf("InsertSolve failed: %v", err)
		}
	}

	recs, err := db.ListSolves(3)
	if err != nil {
		t.Fatalf("ListSolves failed: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("len = %d, want 3", len(recs))
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	rec := &OffsetRecord{
		FirstPath:    "/images/a.fits",
		SecondPath:   "/images/b.fits",
		ShiftX:       3.6,
		ShiftY:       -1.2,
		RADeltaAS:    36.0,
		DecDeltaAS:   -12.0,
		RAOffsetMs:   2400,
		DecOffsetMs:  -800,
		RADeltaRate:  0.02,
		DecDeltaRate: -0.007,
	}
	if err := db.InsertOffset(rec); err != nil {
		t.Fatalf("InsertOffset failed: %v", err)
	}

	recs, err := db.ListOffsets(10)
	if err != nil {
		t.Fatalf("ListOffsets failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len = %d, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != rec.ID {
		t.Errorf("ID = %q, want %q", got.ID, rec.ID)
	}
	if got.RAOffsetMs != 2400 || got.RADeltaRate != 0.02 {
		t.Errorf("got %+v", got)
	}
}

func TestPECRunRoundTrip(t *testing.T) {
	db := openTestDB(t)

	run := &PECRun{
		Target:     "M42",
		ObsStart:   "2016-03-12T04:30:00",
		GearPeriod: 480,
		RAFit:      AxisFit{Freq: 2, Amplitude: 3.2, Phase: 0.4, Offset: 0.1},
		DecFit:     AxisFit{Freq: 2, Amplitude: 0.5, Phase: 1.1, Offset: -0.2},
	}
	t0 := time.Date(2016, 3, 12, 4, 30, 0, 0, time.UTC)
	samples := make([]PECSample, 12)
	for i := range samples {
		samples[i] = PECSample{
			ObsTime:     t0.Add(time.Duration(i) * 125 * time.Second),
			MJD:         57459.1875 + float64(i)*125.0/86400.0,
			HADeg:       -20 + float64(i),
			RADeltaAS:   float64(i) * 0.3,
			Dt:          125,
			TotalOffset: float64(i) * 125 / 60,
		}
	}
	if err := db.SavePECRun(run, samples); err != nil {
		t.Fatalf("SavePECRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected SavePECRun to assign an ID")
	}
	if run.SampleCount != 12 {
		t.Errorf("SampleCount = %d, want 12", run.SampleCount)
	}

	got, err := db.GetPECRun(run.ID)
	if err != nil {
		t.Fatalf("GetPECRun failed: %v", err)
	}
	if diff := cmp.Diff(run, got, cmpopts.IgnoreFields(PECRun{}, "CreatedAt")); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	gotSamples, err := db.PECSamplesForRun(run.ID)
	if err != nil {
		t.Fatalf("PECSamplesForRun failed: %v", err)
	}
	if len(gotSamples) != 12 {
		t.Fatalf("len = %d, want 12", len(gotSamples))
	}
	for i, s := range gotSamples {
		if s.Seq != i {
			t.Errorf("sample %d: Seq = %d", i, s.Seq)
		}
	}
	if !gotSamples[3].ObsTime.Equal(t0.Add(3 * 125 * time.Second)) {
		t.Errorf("sample 3 ObsTime = %v", gotSamples[3].ObsTime)
	}
	if gotSamples[11].RADeltaAS != 11*0.3 {
		t.Errorf("sample 11 RADeltaAS = %f", gotSamples[11].RADeltaAS)
	}
}

func TestGetPECRunNotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetPECRun("no-such-run"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	runs, err := db.ListPECRuns(10)
	if err != nil {
		t.Fatalf("ListPECRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("len = %d, want 0", len(runs))
	}
}
