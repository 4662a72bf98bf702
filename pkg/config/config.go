package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"lumen/internal/util"
)

// MaxCascades mirrors the fixed cascade array size of the cone-trace pass.
const MaxCascades = 4

// Config represents the main configuration
type Config struct {
	Graphics     GraphicsConfig     `yaml:"graphics"`
	Logging      LoggingConfig      `yaml:"logging"`
	Camera       CameraConfig       `yaml:"camera"`
	Illumination IlluminationConfig `yaml:"illumination"`
	Probes       ProbesConfig       `yaml:"probes"`
	Shadows      ShadowConfig       `yaml:"shadows"`
	Terrain      TerrainConfig      `yaml:"terrain"`
	Scene        SceneConfig        `yaml:"scene"`
}

// GraphicsConfig contains window and device configuration
type GraphicsConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Fullscreen bool   `yaml:"fullscreen"`
	VSync      bool   `yaml:"vsync"`
	FrameRate  int    `yaml:"framerate"`
	Device     string `yaml:"device"` // opengl, soft
}

// LoggingConfig selects log level and optional log file
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// CameraConfig contains the fly camera settings
type CameraConfig struct {
	FOV              float32 `yaml:"fov"` // degrees
	Near             float32 `yaml:"near"`
	Far              float32 `yaml:"far"`
	MoveSpeed        float32 `yaml:"move_speed"`
	MouseSensitivity float32 `yaml:"mouse_sensitivity"`
	CollisionRadius  float32 `yaml:"collision_radius"` // 0 lets the camera pass through objects
}

// CascadeConfig describes one voxel cascade
type CascadeConfig struct {
	SizeTexels int     `yaml:"size_texels"`
	WorldScale float32 `yaml:"world_scale"` // voxels per world unit
}

// IlluminationConfig contains the voxel cone tracing settings
type IlluminationConfig struct {
	Enabled          bool            `yaml:"enabled"`
	Cascades         []CascadeConfig `yaml:"cascades"`
	TraceScale       float32         `yaml:"trace_scale"` // cone trace resolution relative to the frame
	ConeAperture     float32         `yaml:"cone_aperture"`
	ConeMaxDistance  float32         `yaml:"cone_max_distance"`
	Strength         float32         `yaml:"strength"`
	BlurRadius       int             `yaml:"blur_radius"`
	IndirectStrength float32         `yaml:"indirect_strength"`
	Exposure         float32         `yaml:"exposure"`
}

// ProbesConfig contains light probe baking and packing settings
type ProbesConfig struct {
	CacheDir           string  `yaml:"cache_dir"`
	DumpDir            string  `yaml:"dump_dir"`
	FaceSize           int     `yaml:"face_size"`
	DiffuseSize        int     `yaml:"diffuse_size"`
	Near               float32 `yaml:"near"`
	Far                float32 `yaml:"far"`
	MaxCubemapsPerAxis int     `yaml:"max_cubemaps_per_axis"`
	SpecularVolumeSize float32 `yaml:"specular_volume_size"` // half size of the camera box
	Workers            int     `yaml:"workers"`              // 0 means one per CPU
}

// ShadowConfig contains the cascaded shadow map settings
type ShadowConfig struct {
	Enabled    bool      `yaml:"enabled"`
	Resolution int       `yaml:"resolution"`
	Splits     []float32 `yaml:"splits"` // far distance of each cascade
	Bias       float32   `yaml:"bias"`
}

// TerrainConfig contains procedural terrain generation configuration
type TerrainConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Resolution  int     `yaml:"resolution"`
	WorldSize   float32 `yaml:"world_size"`
	HeightScale float32 `yaml:"height_scale"`
	Octaves     int     `yaml:"octaves"`
	Seed        int64   `yaml:"seed"` // 0 means random
	TreeDensity float64 `yaml:"tree_density"`
	RockDensity float64 `yaml:"rock_density"`
	TileSize    int     `yaml:"tile_size"` // heightmap texels per terrain box
}

// SunConfig describes the directional light
type SunConfig struct {
	Direction [3]float32 `yaml:"direction"`
	Color     [3]float32 `yaml:"color"`
	Intensity float32    `yaml:"intensity"`
}

// ObjectConfig is one box in the level
type ObjectConfig struct {
	Name      string     `yaml:"name"`
	Min       [3]float32 `yaml:"min"`
	Max       [3]float32 `yaml:"max"`
	Albedo    [3]float32 `yaml:"albedo"`
	Emission  float32    `yaml:"emission"`
	Roughness float32    `yaml:"roughness"`
	Alpha     float32    `yaml:"alpha"`
	Voxelize  bool       `yaml:"voxelize"`
}

// SceneConfig holds the level fields read once at load
type SceneConfig struct {
	BoundsMin            [3]float32     `yaml:"bounds_min"`
	BoundsMax            [3]float32     `yaml:"bounds_max"`
	DiffuseProbeSpacing  float32        `yaml:"diffuse_probe_spacing"`  // -1 disables the grid
	SpecularProbeSpacing float32        `yaml:"specular_probe_spacing"` // -1 disables the grid
	PlaceOnTerrain       bool           `yaml:"place_on_terrain"`
	ProbeHeightDelta     float32        `yaml:"probe_height_delta"`
	GlobalProbePosition  [3]float32     `yaml:"global_probe_position"`
	CameraPosition       [3]float32     `yaml:"camera_position"`
	CameraYaw            float32        `yaml:"camera_yaw"` // degrees
	CameraPitch          float32        `yaml:"camera_pitch"`
	Sun                  SunConfig      `yaml:"sun"`
	SkyColor             [3]float32     `yaml:"sky_color"`
	GroundColor          [3]float32     `yaml:"ground_color"`
	Objects              []ObjectConfig `yaml:"objects"`
}

// DefaultConfig creates a default configuration
func DefaultConfig() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:     960,
			Height:    540,
			VSync:     true,
			FrameRate: 60,
			Device:    "opengl",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Camera: CameraConfig{
			FOV:              60,
			Near:             0.1,
			Far:              500,
			MoveSpeed:        12,
			MouseSensitivity: 0.003,
			CollisionRadius:  0.5,
		},
		Illumination: IlluminationConfig{
			Enabled: true,
			Cascades: []CascadeConfig{
				{SizeTexels: 64, WorldScale: 1},
				{SizeTexels: 64, WorldScale: 0.25},
			},
			TraceScale:       0.5,
			ConeAperture:     0.577,
			Strength:         1,
			BlurRadius:       1,
			IndirectStrength: 1,
			Exposure:         1,
		},
		Probes: ProbesConfig{
			CacheDir:           "cache/probes",
			FaceSize:           32,
			DiffuseSize:        8,
			Near:               0.1,
			Far:                500,
			MaxCubemapsPerAxis: 4,
			SpecularVolumeSize: 60,
		},
		Shadows: ShadowConfig{
			Enabled:    true,
			Resolution: 512,
			Splits:     []float32{30, 120},
			Bias:       0.002,
		},
		Terrain: TerrainConfig{
			Enabled:     true,
			Resolution:  128,
			WorldSize:   256,
			HeightScale: 12,
			Octaves:     5,
			TreeDensity: 5.0,
			RockDensity: 3.0,
			TileSize:    8,
		},
		Scene: SceneConfig{
			BoundsMin:            [3]float32{-100, 0, -100},
			BoundsMax:            [3]float32{100, 0, 100},
			DiffuseProbeSpacing:  50,
			SpecularProbeSpacing: 50,
			PlaceOnTerrain:       true,
			ProbeHeightDelta:     2,
			GlobalProbePosition:  [3]float32{0, 30, 0},
			CameraPosition:       [3]float32{0, 15, -60},
			Sun: SunConfig{
				Direction: [3]float32{-0.4, -1, 0.3},
				Color:     [3]float32{1, 0.95, 0.85},
				Intensity: 3,
			},
			SkyColor:    [3]float32{0.45, 0.6, 0.85},
			GroundColor: [3]float32{0.15, 0.13, 0.1},
		},
	}
}

// Validate rejects settings the illumination subsystem cannot run with
func (c *Config) Validate() error {
	var errs []error
	n := len(c.Illumination.Cascades)
	if n < 1 || n > MaxCascades {
		errs = append(errs, fmt.Errorf("illumination.cascades: need 1..%d cascades, got %d", MaxCascades, n))
	}
	for i, cc := range c.Illumination.Cascades {
		if cc.SizeTexels <= 0 || !util.IsPowerOfTwo(cc.SizeTexels) {
			errs = append(errs, fmt.Errorf("illumination.cascades[%d].size_texels: %d is not a positive power of two", i, cc.SizeTexels))
		}
		if cc.WorldScale <= 0 {
			errs = append(errs, fmt.Errorf("illumination.cascades[%d].world_scale: must be positive", i))
		}
		if i > 0 && cc.WorldScale > c.Illumination.Cascades[i-1].WorldScale {
			errs = append(errs, fmt.Errorf("illumination.cascades[%d]: cascades must get coarser", i))
		}
	}
	if c.Illumination.TraceScale <= 0 || c.Illumination.TraceScale > 1 {
		errs = append(errs, fmt.Errorf("illumination.trace_scale: %g outside (0, 1]", c.Illumination.TraceScale))
	}
	if !util.IsPowerOfTwo(c.Probes.FaceSize) {
		errs = append(errs, fmt.Errorf("probes.face_size: %d is not a power of two", c.Probes.FaceSize))
	}
	if !util.IsPowerOfTwo(c.Probes.DiffuseSize) || c.Probes.DiffuseSize > c.Probes.FaceSize {
		errs = append(errs, fmt.Errorf("probes.diffuse_size: %d must be a power of two no larger than face_size", c.Probes.DiffuseSize))
	}
	if c.Probes.MaxCubemapsPerAxis < 1 {
		errs = append(errs, fmt.Errorf("probes.max_cubemaps_per_axis: must be at least 1"))
	}
	if c.Probes.Near <= 0 || c.Probes.Far <= c.Probes.Near {
		errs = append(errs, fmt.Errorf("probes: near/far %g/%g invalid", c.Probes.Near, c.Probes.Far))
	}
	for _, s := range []struct {
		name string
		v    float32
	}{
		{"scene.diffuse_probe_spacing", c.Scene.DiffuseProbeSpacing},
		{"scene.specular_probe_spacing", c.Scene.SpecularProbeSpacing},
	} {
		if s.v != -1 && s.v <= 0 {
			errs = append(errs, fmt.Errorf("%s: %g must be positive or -1", s.name, s.v))
		}
	}
	for a := 0; a < 3; a++ {
		if c.Scene.BoundsMax[a] < c.Scene.BoundsMin[a] {
			errs = append(errs, fmt.Errorf("scene.bounds: max below min on axis %d", a))
		}
	}
	if c.Shadows.Enabled && (len(c.Shadows.Splits) < 1 || len(c.Shadows.Splits) > MaxCascades) {
		errs = append(errs, fmt.Errorf("shadows.splits: need 1..%d splits", MaxCascades))
	}
	if c.Terrain.Enabled && (c.Terrain.Resolution < 2 || c.Terrain.WorldSize <= 0 || c.Terrain.TileSize < 1) {
		errs = append(errs, fmt.Errorf("terrain: resolution, world_size and tile_size must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig loads the configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return config, fmt.Errorf("config file not found, using defaults: %w", err)
	}

	// Lists replace the defaults rather than merging into them
	config.Illumination.Cascades = nil
	config.Shadows.Splits = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), fmt.Errorf("error parsing config: %w", err)
	}
	defaults := DefaultConfig()
	if config.Illumination.Cascades == nil {
		config.Illumination.Cascades = defaults.Illumination.Cascades
	}
	if config.Shadows.Splits == nil {
		config.Shadows.Splits = defaults.Shadows.Splits
	}

	return config, nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error serializing config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
