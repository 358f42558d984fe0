package obsdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SolveRecord is one plate-solve result for a single frame.
type SolveRecord struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	SolvedPath  string    `json:"solved_path,omitempty"`
	Target      string    `json:"target,omitempty"`
	RACenter    float64   `json:"ra_center"`
	DecCenter   float64   `json:"dec_center"`
	PixelScale  float64   `json:"pixel_scale"`
	Orientation float64   `json:"orientation"`
	FieldWidth  float64   `json:"field_width,omitempty"`
	FieldHeight float64   `json:"field_height,omitempty"`
	// PointingErr is the separation from the intended target in arcsec;
	// zero when no target was recorded for the frame.
	PointingErr float64   `json:"pointing_err_as"`
	ObsTime     time.Time `json:"obs_time,omitempty"`
	CreatedAt   string    `json:"created_at,omitempty"`
}

// OffsetRecord is one frame-pair drift measurement.
type OffsetRecord struct {
	ID           string  `json:"id"`
	FirstPath    string  `json:"first_path"`
	SecondPath   string  `json:"second_path"`
	ShiftX       float64 `json:"shift_x"`
	ShiftY       float64 `json:"shift_y"`
	RADeltaAS    float64 `json:"ra_delta_as"`
	DecDeltaAS   float64 `json:"dec_delta_as"`
	RAOffsetMs   float64 `json:"ra_ms_offset"`
	DecOffsetMs  float64 `json:"dec_ms_offset"`
	RADeltaRate  float64 `json:"ra_delta_rate"`
	DecDeltaRate float64 `json:"dec_delta_rate"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

// AxisFit holds the fitted sinusoid parameters for one axis.
type AxisFit struct {
	Freq      float64 `json:"freq"`
	Amplitude float64 `json:"amplitude"`
	Phase     float64 `json:"phase"`
	Offset    float64 `json:"offset"`
}

// PECRun is a completed periodic-error observing run with its fits.
type PECRun struct {
	ID          string  `json:"id"`
	Target      string  `json:"target"`
	ObsStart    string  `json:"obs_start"`
	GearPeriod  float64 `json:"gear_period"`
	SampleCount int     `json:"sample_count"`
	RAFit       AxisFit `json:"ra_fit"`
	DecFit      AxisFit `json:"dec_fit"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// PECSample is one solved frame within a periodic-error run.
type PECSample struct {
	RunID       string    `json:"run_id"`
	Seq         int       `json:"seq"`
	ObsTime     time.Time `json:"obs_time"`
	MJD         float64   `json:"mjd"`
	HADeg       float64   `json:"ha_deg"`
	RADeltaAS   float64   `json:"ra_delta_as"`
	DecDeltaAS  float64   `json:"dec_delta_as"`
	RARate      float64   `json:"ra_as_rate"`
	DecRate     float64   `json:"dec_as_rate"`
	Dt          float64   `json:"dt"`
	TotalOffset float64   `json:"total_offset"`
}

const obsTimeLayout = time.RFC3339Nano

// InsertSolve stores a plate-solve result, assigning an ID if the record
// has none. The assigned ID is written back into rec.
func (db *DB) InsertSolve(rec *SolveRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var obsTime string
	if !rec.ObsTime.IsZero() {
		obsTime = rec.ObsTime.UTC().Format(obsTimeLayout)
	}

	_, err := db.Exec(`
		INSERT INTO solves (
			id, path, solved_path, target, ra_center, dec_center,
			pixel_scale, orientation, field_width, field_height,
			pointing_err_as, obs_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.SolvedPath, rec.Target,
		rec.RACenter, rec.DecCenter, rec.PixelScale, rec.Orientation,
		rec.FieldWidth, rec.FieldHeight, rec.PointingErr, obsTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert solve record: %w", err)
	}
	return nil
}

// LatestSolve returns the most recent solve for a target, or ErrNotFound.
func (db *DB) LatestSolve(target string) (*SolveRecord, error) {
	row := db.QueryRow(`
		SELECT id, path, solved_path, target, ra_center, dec_center,
		       pixel_scale, orientation, field_width, field_height,
		       pointing_err_as, obs_time, created_at
		FROM solves
		WHERE target = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, target)
	return scanSolve(row)
}

// ListSolves returns up to limit solve records, newest first.
func (db *DB) ListSolves(limit int) ([]SolveRecord, error) {
	rows, err := db.Query(`
		SELECT id, path, solved_path, target, ra_center, dec_center,
		       pixel_scale, orientation, field_width, field_height,
		       pointing_err_as, obs_time, created_at
		FROM solves
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query solves: %w", err)
	}
	defer rows.Close()

	var recs []SolveRecord
	for rows.Next() {
		rec, err := scanSolve(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSolve(row rowScanner) (*SolveRecord, error) {
	var rec SolveRecord
	var solvedPath, target, obsTime sql.NullString
	var fieldW, fieldH sql.NullFloat64
	err := row.Scan(
		&rec.ID, &rec.Path, &solvedPath, &target,
		&rec.RACenter, &rec.DecCenter, &rec.PixelScale, &rec.Orientation,
		&fieldW, &fieldH, &rec.PointingErr, &obsTime, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan solve record: %w", err)
	}
	rec.SolvedPath = solvedPath.String
	rec.Target = target.String
	rec.FieldWidth = fieldW.Float64
	rec.FieldHeight = fieldH.Float64
	if obsTime.String != "" {
		if t, err := time.Parse(obsTimeLayout, obsTime.String); err == nil {
			rec.ObsTime = t
		}
	}
	return &rec, nil
}

// InsertOffset stores a drift measurement, assigning an ID if needed.
func (db *DB) InsertOffset(rec *OffsetRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := db.Exec(`
		INSERT INTO offset_measurements (
			id, first_path, second_path, shift_x, shift_y,
			ra_delta_as, dec_delta_as, ra_offset_ms, dec_offset_ms,
			ra_delta_rate, dec_delta_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FirstPath, rec.SecondPath, rec.ShiftX, rec.ShiftY,
		rec.RADeltaAS, rec.DecDeltaAS, rec.RAOffsetMs, rec.DecOffsetMs,
		rec.RADeltaRate, rec.DecDeltaRate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert offset measurement: %w", err)
	}
	return nil
}

// ListOffsets returns up to limit drift measurements, newest first.
func (db *DB) ListOffsets(limit int) ([]OffsetRecord, error) {
	rows, err := db.Query(`
		SELECT id, first_path, second_path, shift_x, shift_y,
		       ra_delta_as, dec_delta_as, ra_offset_ms, dec_offset_ms,
		       ra_delta_rate, dec_delta_rate, created_at
		FROM offset_measurements
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query offset measurements: %w", err)
	}
	defer rows.Close()

	var recs []OffsetRecord
	for rows.Next() {
		var rec OffsetRecord
		if err := rows.Scan(
			&rec.ID, &rec.FirstPath, &rec.SecondPath, &rec.ShiftX, &rec.ShiftY,
			&rec.RADeltaAS, &rec.DecDeltaAS, &rec.RAOffsetMs, &rec.DecOffsetMs,
			&rec.RADeltaRate, &rec.DecDeltaRate, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan offset measurement: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SavePECRun stores a run and its samples in a single transaction,
// assigning the run an ID if it has none. Sample RunID and Seq fields
// are filled in from the run.
func (db *DB) SavePECRun(run *PECRun, samples []PECSample) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.SampleCount = len(samples)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO pec_runs (
			id, target, obs_start, gear_period, sample_count,
			ra_freq, ra_amplitude, ra_phase, ra_offset,
			dec_freq, dec_amplitude, dec_phase, dec_offset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.ObsStart, run.GearPeriod, run.SampleCount,
		run.RAFit.Freq, run.RAFit.Amplitude, run.RAFit.Phase, run.RAFit.Offset,
		run.DecFit.Freq, run.DecFit.Amplitude, run.DecFit.Phase, run.DecFit.Offset,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO pec_samples (
			run_id, seq, obs_time, mjd, ha_deg,
			ra_delta_as, dec_delta_as, ra_rate, dec_rate, dt, total_offset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i := range samples {
		s := &samples[i]
		s.RunID = run.ID
		s.Seq = i
		if _, err := stmt.Exec(
			s.RunID, s.Seq, s.ObsTime.UTC().Format(obsTimeLayout), s.MJD, s.HADeg,
			s.RADeltaAS, s.DecDeltaAS, s.RARate, s.DecRate, s.Dt, s.TotalOffset,
		); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetPECRun returns one run by ID, or ErrNotFound.
func (db *DB) GetPECRun(id string) (*PECRun, error) {
	row := db.QueryRow(`
		SELECT id, target, obs_start, gear_period, sample_count,
		       ra_freq, ra_amplitude, ra_phase, ra_offset,
		       dec_freq, dec_amplitude, dec_phase, dec_offset, created_at
		FROM pec_runs WHERE id = ?`, id)

	var run PECRun
	err := row.Scan(
		&run.ID, &run.Target, &run.ObsStart, &run.GearPeriod, &run.SampleCount,
		&run.RAFit.Freq, &run.RAFit.Amplitude, &run.RAFit.Phase, &run.RAFit.Offset,
		&run.DecFit.Freq, &run.DecFit.Amplitude, &run.DecFit.Phase, &run.DecFit.Offset,
		&run.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return &run, nil
}

// ListPECRuns returns up to limit runs, newest first.
func (db *DB) ListPECRuns(limit int) ([]PECRun, error) {
	rows, err := db.Query(`
		SELECT id, target, obs_start, gear_period, sample_count,
		       ra_freq, ra_amplitude, ra_phase, ra_offset,
		       dec_freq, dec_amplitude, dec_phase, dec_offset, created_at
		FROM pec_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []PECRun
	for rows.Next() {
		var run PECRun
		if err := rows.Scan(
			&run.ID, &run.Target, &run.ObsStart, &run.GearPeriod, &run.SampleCount,
			&run.RAFit.Freq, &run.RAFit.Amplitude, &run.RAFit.Phase, &run.RAFit.Offset,
			&run.DecFit.Freq, &run.DecFit.Amplitude, &run.DecFit.Phase, &run.DecFit.Offset,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PECSamplesForRun returns a run's samples in sequence order.
func (db *DB) PECSamplesForRun(runID string) ([]PECSample, error) {
	rows, err := db.Query(`
		SELECT run_id, seq, obs_time, mjd, ha_deg,
		       ra_delta_as, dec_delta_as, ra_rate, dec_rate, dt, total_offset
		FROM pec_samples
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []PECSample
	for rows.Next() {
		var s PECSample
		var obsTime string
		if err := rows.Scan(
			&s.RunID, &s.Seq, &obsTime, &s.MJD, &s.HADeg,
			&s.RADeltaAS, &s.DecDeltaAS, &s.RARate, &s.DecRate, &s.Dt, &s.TotalOffset,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if t, err := time.Parse(obsTimeLayout, obsTime); err == nil {
			s.ObsTime = t
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
