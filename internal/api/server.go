// Package api exposes the observation store and pointing metrics over a
// small operator-facing HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sidereal-data/drift.report/internal/astro"
	"github.com/sidereal-data/drift.report/internal/config"
	"github.com/sidereal-data/drift.report/internal/monitoring"
	"github.com/sidereal-data/drift.report/internal/obsdb"
	"github.com/sidereal-data/drift.report/internal/security"
	"github.com/sidereal-data/drift.report/internal/solve"
	"github.com/sidereal-data/drift.report/internal/version"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db  *obsdb.DB
	cfg *config.TuningConfig
	// framesDir, when set, confines /api/pointing to frames below it.
	framesDir string
}

func NewServer(db *obsdb.DB, cfg *config.TuningConfig, framesDir string) *Server {
	if cfg == nil {
		cfg = config.DefaultTuningConfig()
	}
	return &Server{
		db:        db,
		cfg:       cfg,
		framesDir: framesDir,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.showRun)
	mux.HandleFunc("/api/solves", s.listSolves)
	mux.HandleFunc("/api/solves/latest", s.latestSolve)
	mux.HandleFunc("/api/offsets", s.listOffsets)
	mux.HandleFunc("/api/pointing", s.pointingError)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/charts/pec", s.pecChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func parseLimit(r *http.Request, def int) (int, error) {
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 1000 {
			return 0, fmt.Errorf("invalid 'limit' parameter")
		}
		return parsed, nil
	}
	return def, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r, 50)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.db.ListPECRuns(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []obsdb.PECRun{}
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write runs")
		return
	}
}

// runDetail is a run joined with its sample series.
type runDetail struct {
	Run     *obsdb.PECRun     `json:"run"`
	Samples []obsdb.PECSample `json:"samples"`
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	run, err := s.db.GetPECRun(id)
	if errors.Is(err, obsdb.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch run: %v", err))
		return
	}

	samples, err := s.db.PECSamplesForRun(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch samples: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(runDetail{Run: run, Samples: samples}); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write run")
		return
	}
}

func (s *Server) listSolves(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r, 50)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	solves, err := s.db.ListSolves(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list solves: %v", err))
		return
	}
	if solves == nil {
		solves = []obsdb.SolveRecord{}
	}

	if err := json.NewEncoder(w).Encode(solves); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write solves")
		return
	}
}

func (s *Server) latestSolve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target := r.URL.Query().Get("target")
	if target == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'target' parameter")
		return
	}

	rec, err := s.db.LatestSolve(target)
	if errors.Is(err, obsdb.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "No solve for target")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch solve: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(rec); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write solve")
		return
	}
}

func (s *Server) listOffsets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r, 50)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	offsets, err := s.db.ListOffsets(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list offsets: %v", err))
		return
	}
	if offsets == nil {
		offsets = []obsdb.OffsetRecord{}
	}

	if err := json.NewEncoder(w).Encode(offsets); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write offsets")
		return
	}
}

// pointingResult is the response body for /api/pointing.
type pointingResult struct {
	Path          string  `json:"path"`
	PointingErrAS float64 `json:"pointing_err_as"`
	RecordID      string  `json:"record_id,omitempty"`
}

// pointingError computes the pointing error for an already-solved frame on
// disk and records it against the frame's target.
func (s *Server) pointingError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := r.FormValue("path")
	if path == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'path' parameter")
		return
	}
	if s.framesDir != "" {
		if err := security.ValidatePathWithinDirectory(path, s.framesDir); err != nil {
			s.writeJSONError(w, http.StatusForbidden, "Frame path outside the configured frames directory")
			return
		}
	}

	sep, err := solve.PointingError(r.Context(), path)
	switch {
	case errors.Is(err, solve.ErrNoTarget):
		s.writeJSONError(w, http.StatusUnprocessableEntity, "Frame has no target coordinates")
		return
	case errors.Is(err, os.ErrNotExist):
		s.writeJSONError(w, http.StatusNotFound, "Frame not found")
		return
	case err != nil:
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to compute pointing error: %v", err))
		return
	}

	result := pointingResult{Path: path, PointingErrAS: sep.Arcsec()}
	if rec, err := s.solveRecord(r, path, sep); err == nil {
		result.RecordID = rec.ID
	} else {
		monitoring.Warnf("failed to record pointing solve for %s: %v", path, err)
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write pointing error")
		return
	}
}

// solveRecord stores the frame's solved centre alongside the pointing error.
func (s *Server) solveRecord(r *http.Request, path string, sep astro.Angle) (*obsdb.SolveRecord, error) {
	wcs, err := solve.WCSInfo(r.Context(), path)
	if err != nil {
		return nil, err
	}
	sol := solve.NewSolution(path)
	sol.Merge(wcs)

	rec := &obsdb.SolveRecord{
		Path:        path,
		PointingErr: sep.Arcsec(),
	}
	if center, err := sol.Center(); err == nil {
		rec.RACenter = center.RA.Deg()
		rec.DecCenter = center.Dec.Deg()
	}
	if scale, ok := sol.PixelScale(); ok {
		rec.PixelScale = scale
	}
	if rot, ok := sol.Rotation(); ok {
		rec.Orientation = rot
	}
	if w, ok := sol.Float("imagew"); ok {
		rec.FieldWidth = w
	}
	if h, ok := sol.Float("imageh"); ok {
		rec.FieldHeight = h
	}
	if t, err := sol.ObsTime(); err == nil {
		rec.ObsTime = t
	}
	if err := s.db.InsertSolve(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	payload := map[string]interface{}{
		"version": version.Version,
		"tuning":  s.cfg,
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
