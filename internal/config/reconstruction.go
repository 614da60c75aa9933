package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/voxel.report/internal/voxel/l2space"
	"github.com/banshee-data/voxel.report/internal/voxel/l3hull"
	"github.com/banshee-data/voxel.report/internal/voxel/l4cluster"
	"github.com/banshee-data/voxel.report/internal/voxel/l5identity"
	"github.com/banshee-data/voxel.report/internal/voxel/pipeline"
)

// DefaultConfigPath is the path to the canonical reconstruction defaults
// file. It is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/voxel.defaults.json"

// MaxClusters bounds the configurable number of tracked subjects.
const MaxClusters = 16

// ReconstructionConfig holds every tunable of the reconstruction
// pipeline. Fields are pointers so partial files only override what
// they mention; the Get* methods supply defaults for the rest.
type ReconstructionConfig struct {
	// Voxel space
	HalfHeight *int `json:"half_height,omitempty"`
	Step       *int `json:"step,omitempty"`
	Workers    *int `json:"workers,omitempty"` // 0 = GOMAXPROCS
	ChunkSize  *int `json:"chunk_size,omitempty"`

	// Clustering
	Clusters            *int     `json:"clusters,omitempty"`
	KMeansAttempts      *int     `json:"kmeans_attempts,omitempty"`
	KMeansMaxIterations *int     `json:"kmeans_max_iterations,omitempty"`
	KMeansEpsilon       *float64 `json:"kmeans_epsilon,omitempty"`
	RetentionRadiusSq   *float64 `json:"retention_radius_sq,omitempty"`
	Seed                *uint64  `json:"seed,omitempty"`
	RefineInitial       *bool    `json:"refine_initial,omitempty"`
	MaxCarriedFrames    *int     `json:"max_carried_frames,omitempty"` // 0 = carry centres indefinitely

	// Colour histogram bins, all on a 0..255 scale
	BinBlack         *int  `json:"bin_black,omitempty"`
	BinGrey          *int  `json:"bin_grey,omitempty"`
	BinSaturation    *int  `json:"bin_saturation,omitempty"`
	GreyHueBorders   []int `json:"grey_hue_borders,omitempty"`   // RG, GB, BR
	ColourHueBorders []int `json:"colour_hue_borders,omitempty"` // RY, YG, GC, CB, BM, MR

	// Playback
	FrameInterval *string `json:"frame_interval,omitempty"` // duration string like "40ms"; "0s" runs flat out
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyReconstructionConfig returns a config with every field unset.
func EmptyReconstructionConfig() *ReconstructionConfig {
	return &ReconstructionConfig{}
}

// DefaultReconstructionConfig returns a config with every field set to
// its built-in default.
func DefaultReconstructionConfig() *ReconstructionConfig {
	th := l5identity.DefaultBinThresholds()
	grey := []int{int(th.GreyRedGreen), int(th.GreyGreenBlue), int(th.GreyBlueRed)}
	colour := []int{int(th.RedYellow), int(th.YellowGreen), int(th.GreenCyan),
		int(th.CyanBlue), int(th.BlueMagenta), int(th.MagentaRed)}
	return &ReconstructionConfig{
		HalfHeight:          ptrInt(l2space.DefaultHalfHeight),
		Step:                ptrInt(l2space.DefaultStep),
		Workers:             ptrInt(0),
		ChunkSize:           ptrInt(l3hull.DefaultChunkSize),
		Clusters:            ptrInt(l4cluster.DefaultK),
		KMeansAttempts:      ptrInt(l4cluster.DefaultAttempts),
		KMeansMaxIterations: ptrInt(l4cluster.DefaultMaxIterations),
		KMeansEpsilon:       ptrFloat64(l4cluster.DefaultEpsilon),
		RetentionRadiusSq:   ptrFloat64(l4cluster.DefaultRetentionRadiusSq),
		Seed:                ptrUint64(l4cluster.DefaultSeed),
		RefineInitial:       ptrBool(true),
		MaxCarriedFrames:    ptrInt(pipeline.DefaultMaxCarriedFrames),
		BinBlack:            ptrInt(int(th.Black)),
		BinGrey:             ptrInt(int(th.Grey)),
		BinSaturation:       ptrInt(int(th.Saturation)),
		GreyHueBorders:      grey,
		ColourHueBorders:    colour,
		FrameInterval:       ptrString("0s"),
	}
}

// LoadReconstructionConfig loads a ReconstructionConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to their defaults, so partial configs are safe.
func LoadReconstructionConfig(path string) (*ReconstructionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyReconstructionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ReconstructionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/voxel/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/voxel/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadReconstructionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ReconstructionConfig) Validate() error {
	h, step := c.GetHalfHeight(), c.GetStep()
	if h <= 0 {
		return fmt.Errorf("half_height must be positive, got %d", h)
	}
	if step <= 0 || step > h {
		return fmt.Errorf("step must be in (0, half_height], got %d", step)
	}
	if w := c.GetWorkers(); w < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", w)
	}
	if n := c.GetChunkSize(); n <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", n)
	}
	if k := c.GetClusters(); k < 1 || k > MaxClusters {
		return fmt.Errorf("clusters must be between 1 and %d, got %d", MaxClusters, k)
	}
	if err := c.ClusterParams().Validate(); err != nil {
		return err
	}
	if n := c.GetMaxCarriedFrames(); n < 0 {
		return fmt.Errorf("max_carried_frames must be non-negative, got %d", n)
	}

	for name, v := range map[string]*int{"bin_black": c.BinBlack, "bin_grey": c.BinGrey, "bin_saturation": c.BinSaturation} {
		if v != nil && (*v < 0 || *v > 255) {
			return fmt.Errorf("%s must be between 0 and 255, got %d", name, *v)
		}
	}
	if c.GreyHueBorders != nil && len(c.GreyHueBorders) != 3 {
		return fmt.Errorf("grey_hue_borders needs 3 values, got %d", len(c.GreyHueBorders))
	}
	if c.ColourHueBorders != nil && len(c.ColourHueBorders) != 6 {
		return fmt.Errorf("colour_hue_borders needs 6 values, got %d", len(c.ColourHueBorders))
	}
	for _, b := range append(append([]int(nil), c.GreyHueBorders...), c.ColourHueBorders...) {
		if b < 0 || b > 255 {
			return fmt.Errorf("hue borders must be between 0 and 255, got %d", b)
		}
	}
	if err := c.BinThresholds().Validate(); err != nil {
		return err
	}

	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("frame_interval must be non-negative, got %v", d)
		}
	}
	return nil
}

// GetHalfHeight returns the half_height value or the default.
func (c *ReconstructionConfig) GetHalfHeight() int {
	if c.HalfHeight == nil {
		return l2space.DefaultHalfHeight
	}
	return *c.HalfHeight
}

// GetStep returns the step value or the default.
func (c *ReconstructionConfig) GetStep() int {
	if c.Step == nil {
		return l2space.DefaultStep
	}
	return *c.Step
}

// GetWorkers returns the workers value or the default.
func (c *ReconstructionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetChunkSize returns the chunk_size value or the default.
func (c *ReconstructionConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return l3hull.DefaultChunkSize
	}
	return *c.ChunkSize
}

// GetClusters returns the clusters value or the default.
func (c *ReconstructionConfig) GetClusters() int {
	if c.Clusters == nil {
		return l4cluster.DefaultK
	}
	return *c.Clusters
}

// GetKMeansAttempts returns the kmeans_attempts value or the default.
func (c *ReconstructionConfig) GetKMeansAttempts() int {
	if c.KMeansAttempts == nil {
		return l4cluster.DefaultAttempts
	}
	return *c.KMeansAttempts
}

// GetKMeansMaxIterations returns the kmeans_max_iterations value or the default.
func (c *ReconstructionConfig) GetKMeansMaxIterations() int {
	if c.KMeansMaxIterations == nil {
		return l4cluster.DefaultMaxIterations
	}
	return *c.KMeansMaxIterations
}

// GetKMeansEpsilon returns the kmeans_epsilon value or the default.
func (c *ReconstructionConfig) GetKMeansEpsilon() float64 {
	if c.KMeansEpsilon == nil {
		return l4cluster.DefaultEpsilon
	}
	return *c.KMeansEpsilon
}

// GetRetentionRadiusSq returns the retention_radius_sq value or the default.
func (c *ReconstructionConfig) GetRetentionRadiusSq() float64 {
	if c.RetentionRadiusSq == nil {
		return l4cluster.DefaultRetentionRadiusSq
	}
	return *c.RetentionRadiusSq
}

// GetSeed returns the seed value or the default.
func (c *ReconstructionConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return l4cluster.DefaultSeed
	}
	return *c.Seed
}

// GetRefineInitial returns the refine_initial value or the default.
func (c *ReconstructionConfig) GetRefineInitial() bool {
	if c.RefineInitial == nil {
		return true
	}
	return *c.RefineInitial
}

// GetMaxCarriedFrames returns the max_carried_frames value or the default.
func (c *ReconstructionConfig) GetMaxCarriedFrames() int {
	if c.MaxCarriedFrames == nil {
		return pipeline.DefaultMaxCarriedFrames
	}
	return *c.MaxCarriedFrames
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *ReconstructionConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return 0 // default on parse error
	}
	return d
}

// SpaceParams maps the voxel space fields onto l2space.Params.
func (c *ReconstructionConfig) SpaceParams() l2space.Params {
	return l2space.Params{HalfHeight: c.GetHalfHeight(), Step: c.GetStep(), Workers: c.GetWorkers()}
}

// EngineConfig maps the parallelism fields onto l3hull.Config.
func (c *ReconstructionConfig) EngineConfig() l3hull.Config {
	return l3hull.Config{Workers: c.GetWorkers(), ChunkSize: c.GetChunkSize()}
}

// ClusterParams maps the clustering fields onto l4cluster.Params.
func (c *ReconstructionConfig) ClusterParams() l4cluster.Params {
	return l4cluster.Params{
		K:                 c.GetClusters(),
		MaxIterations:     c.GetKMeansMaxIterations(),
		Epsilon:           c.GetKMeansEpsilon(),
		Attempts:          c.GetKMeansAttempts(),
		RetentionRadiusSq: c.GetRetentionRadiusSq(),
		Seed:              c.GetSeed(),
	}
}

// PipelineConfig gathers every stage's settings into a pipeline.Config.
func (c *ReconstructionConfig) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Engine:           c.EngineConfig(),
		Cluster:          c.ClusterParams(),
		Thresholds:       c.BinThresholds(),
		RefineInitial:    c.GetRefineInitial(),
		MaxCarriedFrames: c.GetMaxCarriedFrames(),
	}
}

// BinThresholds maps the histogram fields onto l5identity.BinThresholds,
// keeping defaults for anything unset.
func (c *ReconstructionConfig) BinThresholds() l5identity.BinThresholds {
	th := l5identity.DefaultBinThresholds()
	if c.BinBlack != nil {
		th.Black = uint8(*c.BinBlack)
	}
	if c.BinGrey != nil {
		th.Grey = uint8(*c.BinGrey)
	}
	if c.BinSaturation != nil {
		th.Saturation = uint8(*c.BinSaturation)
	}
	if len(c.GreyHueBorders) == 3 {
		b := c.GreyHueBorders
		th.GreyRedGreen, th.GreyGreenBlue, th.GreyBlueRed = uint8(b[0]), uint8(b[1]), uint8(b[2])
	}
	if len(c.ColourHueBorders) == 6 {
		b := c.ColourHueBorders
		th.RedYellow, th.YellowGreen, th.GreenCyan = uint8(b[0]), uint8(b[1]), uint8(b[2])
		th.CyanBlue, th.BlueMagenta, th.MagentaRed = uint8(b[3]), uint8(b[4]), uint8(b[5])
	}
	return th
}
