package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig holds the calibration parameters for the metrics pipelines.
// Fields are pointers so a partial JSON file only overrides what it names;
// the Get* methods supply defaults for everything else.
type TuningConfig struct {
	// Solver params
	SolverPath   *string `json:"solver_path,omitempty"`
	SolveTimeout *string `json:"solve_timeout,omitempty"` // duration string like "15s"
	Downsample   *int    `json:"downsample,omitempty"`

	// Registration params
	CropSize       *int `json:"crop_size,omitempty"`
	UpsampleFactor *int `json:"upsample_factor,omitempty"`

	// Tracking params
	GuideRateFraction *float64 `json:"guide_rate_fraction,omitempty"` // of sidereal
	FrameInterval     *string  `json:"frame_interval,omitempty"`      // duration string
	GearPeriodSeconds *float64 `json:"gear_period_seconds,omitempty"`

	// Observing site
	SiteLatitude  *float64 `json:"site_latitude,omitempty"`  // degrees
	SiteLongitude *float64 `json:"site_longitude,omitempty"` // degrees, east-positive
	SiteElevation *float64 `json:"site_elevation,omitempty"` // metres
}

func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// DefaultTuningConfig returns the standing calibration for the production
// unit on Mauna Loa.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		SolverPath:        ptrString("solve-field"),
		SolveTimeout:      ptrString("15s"),
		Downsample:        ptrInt(4),
		CropSize:          ptrInt(500),
		UpsampleFactor:    ptrInt(100),
		GuideRateFraction: ptrFloat64(0.9),
		FrameInterval:     ptrString("125s"),
		GearPeriodSeconds: ptrFloat64(480),
		SiteLatitude:      ptrFloat64(19.54),
		SiteLongitude:     ptrFloat64(-155.58),
		SiteElevation:     ptrFloat64(3400),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values outside their physical ranges.
func (c *TuningConfig) Validate() error {
	if c.SolveTimeout != nil {
		if _, err := time.ParseDuration(*c.SolveTimeout); err != nil {
			return fmt.Errorf("solve_timeout: %w", err)
		}
	}
	if c.FrameInterval != nil {
		if _, err := time.ParseDuration(*c.FrameInterval); err != nil {
			return fmt.Errorf("frame_interval: %w", err)
		}
	}
	if c.Downsample != nil && *c.Downsample < 0 {
		return fmt.Errorf("downsample must be non-negative, got %d", *c.Downsample)
	}
	if c.UpsampleFactor != nil && *c.UpsampleFactor < 1 {
		return fmt.Errorf("upsample_factor must be at least 1, got %d", *c.UpsampleFactor)
	}
	if c.GuideRateFraction != nil && (*c.GuideRateFraction <= 0 || *c.GuideRateFraction > 2) {
		return fmt.Errorf("guide_rate_fraction out of range: %f", *c.GuideRateFraction)
	}
	if c.GearPeriodSeconds != nil && *c.GearPeriodSeconds <= 0 {
		return fmt.Errorf("gear_period_seconds must be positive, got %f", *c.GearPeriodSeconds)
	}
	if c.SiteLatitude != nil && (*c.SiteLatitude < -90 || *c.SiteLatitude > 90) {
		return fmt.Errorf("site_latitude out of range: %f", *c.SiteLatitude)
	}
	if c.SiteLongitude != nil && (*c.SiteLongitude < -180 || *c.SiteLongitude > 180) {
		return fmt.Errorf("site_longitude out of range: %f", *c.SiteLongitude)
	}
	return nil
}

func (c *TuningConfig) GetSolverPath() string {
	if c.SolverPath != nil {
		return *c.SolverPath
	}
	return "solve-field"
}

func (c *TuningConfig) GetSolveTimeout() time.Duration {
	if c.SolveTimeout != nil {
		if d, err := time.ParseDuration(*c.SolveTimeout); err == nil {
			return d
		}
	}
	return 15 * time.Second
}

func (c *TuningConfig) GetDownsample() int {
	if c.Downsample != nil {
		return *c.Downsample
	}
	return 4
}

func (c *TuningConfig) GetCropSize() int {
	if c.CropSize != nil {
		return *c.CropSize
	}
	return 500
}

func (c *TuningConfig) GetUpsampleFactor() int {
	if c.UpsampleFactor != nil {
		return *c.UpsampleFactor
	}
	return 100
}

func (c *TuningConfig) GetGuideRateFraction() float64 {
	if c.GuideRateFraction != nil {
		return *c.GuideRateFraction
	}
	return 0.9
}

func (c *TuningConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval != nil {
		if d, err := time.ParseDuration(*c.FrameInterval); err == nil {
			return d
		}
	}
	return 125 * time.Second
}

func (c *TuningConfig) GetGearPeriodSeconds() float64 {
	if c.GearPeriodSeconds != nil {
		return *c.GearPeriodSeconds
	}
	return 480
}

func (c *TuningConfig) GetSiteLatitude() float64 {
	if c.SiteLatitude != nil {
		return *c.SiteLatitude
	}
	return 19.54
}

func (c *TuningConfig) GetSiteLongitude() float64 {
	if c.SiteLongitude != nil {
		return *c.SiteLongitude
	}
	return -155.58
}

func (c *TuningConfig) GetSiteElevation() float64 {
	if c.SiteElevation != nil {
		return *c.SiteElevation
	}
	return 3400
}
