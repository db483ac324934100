package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults for CoverageConfig. Cell size matches the positioning precision of
// an RTK fix; the dimension cap bounds the buffer to 16384²·4 bytes (1 GiB)
// in the worst case, well before that the coarsening loop kicks in.
const (
	DefaultCellSizeMeters     = 0.1
	DefaultMaxGridDimension   = 16384
	DefaultMaxCellSizeMeters  = 5.0
	DefaultLODRatio           = 8
	DefaultLODZoomThreshold   = 2.0 // pixels per metre; below this the LOD path renders
	DefaultUpdateInterval     = 100 * time.Millisecond
	DefaultSnapshotInterval   = 5 * time.Minute
	DefaultSnapshotChangeMin  = 100
)

// CoverageConfig provides a configuration builder for the coverage cache.
// It allows setting parameters with defaults and validation before creating
// a CoverageManager.
type CoverageConfig struct {
	CellSizeMeters    float64 // finest cell edge length (default: 0.1)
	MaxGridDimension  int     // per-axis cap on cols/rows (default: 16384)
	MaxCellSizeMeters float64 // coarsest cell size before allocation is refused (default: 5.0)

	LODRatio         int     // linear downsample ratio of the LOD buffer (default: 8)
	LODZoomThreshold float64 // pixels per metre at which detail takes over (default: 2.0)

	UpdateInterval time.Duration // background update tick (default: 100ms)

	// Snapshot persistence
	SnapshotInterval        time.Duration // interval between periodic snapshots (default: 5m)
	SnapshotChangeThreshold int           // min changed cells before a periodic snapshot (default: 100)

	// BackgroundFill is the color written by Clear when no background raster
	// is configured. Zero value is the empty sentinel (transparent).
	BackgroundFill CellColor
}

// DefaultCoverageConfig returns a CoverageConfig with operational defaults.
func DefaultCoverageConfig() *CoverageConfig {
	return &CoverageConfig{
		CellSizeMeters:          DefaultCellSizeMeters,
		MaxGridDimension:        DefaultMaxGridDimension,
		MaxCellSizeMeters:       DefaultMaxCellSizeMeters,
		LODRatio:                DefaultLODRatio,
		LODZoomThreshold:        DefaultLODZoomThreshold,
		UpdateInterval:          DefaultUpdateInterval,
		SnapshotInterval:        DefaultSnapshotInterval,
		SnapshotChangeThreshold: DefaultSnapshotChangeMin,
	}
}

// Validate checks if the configuration is valid.
// Returns an error if any parameter is out of acceptable range.
func (c *CoverageConfig) Validate() error {
	if c.CellSizeMeters <= 0 {
		return fmt.Errorf("CellSizeMeters must be positive, got %f", c.CellSizeMeters)
	}
	if c.MaxGridDimension < 1 {
		return fmt.Errorf("MaxGridDimension must be at least 1, got %d", c.MaxGridDimension)
	}
	if c.MaxCellSizeMeters < c.CellSizeMeters {
		return fmt.Errorf("MaxCellSizeMeters %f must be >= CellSizeMeters %f", c.MaxCellSizeMeters, c.CellSizeMeters)
	}
	if c.LODRatio < 1 {
		return fmt.Errorf("LODRatio must be at least 1, got %d", c.LODRatio)
	}
	if c.LODZoomThreshold <= 0 {
		return fmt.Errorf("LODZoomThreshold must be positive, got %f", c.LODZoomThreshold)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("UpdateInterval must be positive, got %v", c.UpdateInterval)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("SnapshotInterval must be non-negative, got %v", c.SnapshotInterval)
	}
	if c.SnapshotChangeThreshold < 0 {
		return fmt.Errorf("SnapshotChangeThreshold must be non-negative, got %d", c.SnapshotChangeThreshold)
	}
	return nil
}

// WithCellSize sets the finest cell edge length in metres.
func (c *CoverageConfig) WithCellSize(m float64) *CoverageConfig {
	c.CellSizeMeters = m
	return c
}

// WithMaxGridDimension sets the per-axis cap on grid columns and rows.
func (c *CoverageConfig) WithMaxGridDimension(n int) *CoverageConfig {
	c.MaxGridDimension = n
	return c
}

// WithMaxCellSize sets the coarsest cell size allowed before allocation is refused.
func (c *CoverageConfig) WithMaxCellSize(m float64) *CoverageConfig {
	c.MaxCellSizeMeters = m
	return c
}

// WithLODRatio sets the linear downsample ratio of the LOD buffer.
func (c *CoverageConfig) WithLODRatio(n int) *CoverageConfig {
	c.LODRatio = n
	return c
}

// WithLODZoomThreshold sets the pixels-per-metre zoom at which the detail buffer renders.
func (c *CoverageConfig) WithLODZoomThreshold(ppm float64) *CoverageConfig {
	c.LODZoomThreshold = ppm
	return c
}

// WithUpdateInterval sets the background update tick.
func (c *CoverageConfig) WithUpdateInterval(d time.Duration) *CoverageConfig {
	c.UpdateInterval = d
	return c
}

// WithSnapshotInterval sets the periodic snapshot interval.
func (c *CoverageConfig) WithSnapshotInterval(d time.Duration) *CoverageConfig {
	c.SnapshotInterval = d
	return c
}

// WithBackgroundFill sets the fill color used when clearing without a raster.
func (c *CoverageConfig) WithBackgroundFill(fill CellColor) *CoverageConfig {
	c.BackgroundFill = fill
	return c
}

// tuningFile is the on-disk overlay for CoverageConfig. Fields omitted from
// the JSON keep their defaults, so partial configs are safe.
type tuningFile struct {
	CellSizeMeters          *float64 `json:"cell_size_meters,omitempty"`
	MaxGridDimension        *int     `json:"max_grid_dimension,omitempty"`
	MaxCellSizeMeters       *float64 `json:"max_cell_size_meters,omitempty"`
	LODRatio                *int     `json:"lod_ratio,omitempty"`
	LODZoomThreshold        *float64 `json:"lod_zoom_threshold,omitempty"`
	UpdateInterval          *string  `json:"update_interval,omitempty"`   // duration string like "100ms"
	SnapshotInterval        *string  `json:"snapshot_interval,omitempty"` // duration string like "5m"
	SnapshotChangeThreshold *int     `json:"snapshot_change_threshold,omitempty"`
}

// LoadCoverageConfig loads a CoverageConfig from a JSON tuning file, applying
// the file's values over the defaults.
func LoadCoverageConfig(path string) (*CoverageConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var tf tuningFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultCoverageConfig()
	if tf.CellSizeMeters != nil {
		cfg.CellSizeMeters = *tf.CellSizeMeters
	}
	if tf.MaxGridDimension != nil {
		cfg.MaxGridDimension = *tf.MaxGridDimension
	}
	if tf.MaxCellSizeMeters != nil {
		cfg.MaxCellSizeMeters = *tf.MaxCellSizeMeters
	}
	if tf.LODRatio != nil {
		cfg.LODRatio = *tf.LODRatio
	}
	if tf.LODZoomThreshold != nil {
		cfg.LODZoomThreshold = *tf.LODZoomThreshold
	}
	if tf.UpdateInterval != nil {
		d, err := time.ParseDuration(*tf.UpdateInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid update_interval: %w", err)
		}
		cfg.UpdateInterval = d
	}
	if tf.SnapshotInterval != nil {
		d, err := time.ParseDuration(*tf.SnapshotInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot_interval: %w", err)
		}
		cfg.SnapshotInterval = d
	}
	if tf.SnapshotChangeThreshold != nil {
		cfg.SnapshotChangeThreshold = *tf.SnapshotChangeThreshold
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
