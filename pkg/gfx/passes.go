package gfx

import (
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/geom"
)

// MaxCascades is the fixed size of the cascade array uploaded to cone tracing.
const MaxCascades = 4

// MaxShadowCascades is the fixed size of the shadow cascade array.
const MaxShadowCascades = 4

// Pass identifies one kind of GPU work. Backends dispatch on it through a
// fixed table; there is no name-based lookup.
type Pass int

// Passes.
const (
	// PassGBuffer: Targets [albedo(w=emission), normal(w=roughness), position(w=coverage)].
	PassGBuffer Pass = iota
	// PassShadowDepth: Targets [R32F depth].
	PassShadowDepth
	// PassVoxelize: Targets [3D volume]; Objects are the cascade members.
	PassVoxelize
	// PassVoxelDebug: Targets [debug color]; Inputs [3D volume].
	PassVoxelDebug
	// PassConeTrace: Targets [gi]; Inputs [albedo, normal, position, volumes...].
	PassConeTrace
	// PassUpsampleBlur: Targets [gi full]; Inputs [gi low].
	PassUpsampleBlur
	// PassProbeFace: Targets [color cube, depth cube]; Layer selects the face.
	PassProbeFace
	// PassConvolve: Targets [dst cube]; Inputs [src cube]; Layer and Mip select the output.
	PassConvolve
	// PassDeferredLighting: Targets [local]; Inputs [albedo, normal, position,
	// specular array, global specular, shadows...]; Buffers are the probe tables.
	PassDeferredLighting
	// PassForwardLighting: as PassDeferredLighting, blending Objects over the target.
	PassForwardLighting
	// PassComposite: Targets [final]; Inputs [local, gi, albedo, debug].
	PassComposite
	// PassPlaceOnTerrain: Inputs [height, splat]; Buffers [in]; RWBuffers [out].
	PassPlaceOnTerrain

	PassCount
)

var passNames = [PassCount]string{
	PassGBuffer:          "gbuffer",
	PassShadowDepth:      "shadow-depth",
	PassVoxelize:         "voxelize",
	PassVoxelDebug:       "voxel-debug",
	PassConeTrace:        "cone-trace",
	PassUpsampleBlur:     "upsample-blur",
	PassProbeFace:        "probe-face",
	PassConvolve:         "convolve",
	PassDeferredLighting: "deferred-lighting",
	PassForwardLighting:  "forward-lighting",
	PassComposite:        "composite",
	PassPlaceOnTerrain:   "place-on-terrain",
}

func (p Pass) String() string {
	if p >= 0 && p < PassCount {
		return passNames[p]
	}
	return "unknown"
}

// Box is the draw item handed to geometry passes.
type Box struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Albedo    mgl32.Vec3
	Emission  float32
	Roughness float32
	Alpha     float32
}

// Bounds returns the box as an AABB.
func (b Box) Bounds() geom.AABB {
	return geom.AABB{Min: b.Min, Max: b.Max}
}

// Environment is the distant lighting shared by every pass that shades.
type Environment struct {
	SunDirection mgl32.Vec3 // direction the light travels
	SunColor     mgl32.Vec3
	SunIntensity float32
	SkyColor     mgl32.Vec3
	GroundColor  mgl32.Vec3
}

// PassDesc is one unit of GPU work.
type PassDesc struct {
	Pass      Pass
	Targets   []Texture
	Layer     int
	Mip       int
	Inputs    []Texture
	Buffers   []Buffer
	RWBuffers []Buffer
	Objects   []Box
	Constants any
}

// GBufferConstants parameterise PassGBuffer.
type GBufferConstants struct {
	Camera geom.Camera
}

// ShadowDepthConstants parameterise PassShadowDepth.
type ShadowDepthConstants struct {
	ViewProjection mgl32.Mat4
}

// CascadeParams locates one voxel cascade in world space.
type CascadeParams struct {
	Anchor     mgl32.Vec3
	WorldScale float32 // voxels per world unit
	Size       int     // texels per axis
}

// VoxelSize returns the world size of one voxel.
func (c CascadeParams) VoxelSize() float32 {
	return 1 / c.WorldScale
}

// Bounds returns the world box covered by the cascade.
func (c CascadeParams) Bounds() geom.AABB {
	return geom.CenteredAABB(c.Anchor, float32(c.Size)/c.WorldScale/2)
}

// VoxelizeConstants parameterise PassVoxelize.
type VoxelizeConstants struct {
	Cascade CascadeParams
	Env     Environment
}

// VoxelDebugConstants parameterise PassVoxelDebug.
type VoxelDebugConstants struct {
	ViewProjection mgl32.Mat4
	Cascade        CascadeParams
}

// ConeTraceConstants parameterise PassConeTrace.
type ConeTraceConstants struct {
	Cascades     [MaxCascades]CascadeParams
	CascadeCount int
	Strength     float32
	MaxDistance  float32
	Aperture     float32 // tan of the cone half angle
}

// UpsampleBlurConstants parameterise PassUpsampleBlur.
type UpsampleBlurConstants struct {
	Radius int
}

// ProbeFaceConstants parameterise PassProbeFace.
type ProbeFaceConstants struct {
	Position mgl32.Vec3
	Near     float32
	Far      float32
	Env      Environment
}

// ConvolveMode selects the probe convolution.
type ConvolveMode int

// Convolution modes.
const (
	ConvolveDiffuse ConvolveMode = iota
	ConvolveSpecular
)

// ConvolveConstants parameterise PassConvolve.
type ConvolveConstants struct {
	Mode      ConvolveMode
	Roughness float32
	SourceMip int
}

// ProbeGridParams describe one probe grid to the lighting passes.
type ProbeGridParams struct {
	Enabled      bool
	Min          mgl32.Vec3
	Spacing      float32
	CellCounts   [3]int32
	Is2D         bool
	CellCapacity int32
	ProbeCount   int32
}

// LightingConstants parameterise PassDeferredLighting and PassForwardLighting.
//
// Probe tables bound in Buffers, in order:
//
//	0 diffuse cells   int32[cells*capacity], -1 padded
//	1 diffuse probes  vec4[probes] positions
//	2 diffuse SH      vec4[(probes+1)*9], global probe last
//	3 specular cells  int32[cells*capacity]
//	4 specular probes vec4[probes]
//	5 specular slots  int32[probes], -1 = not packed
type LightingConstants struct {
	Camera         geom.Camera
	Env            Environment
	ShadowViewProj [MaxShadowCascades]mgl32.Mat4
	ShadowSplits   [MaxShadowCascades]float32
	ShadowCount    int
	ShadowBias     float32
	Diffuse        ProbeGridParams
	Specular       ProbeGridParams
	SpecularMips   int
}

// CompositeMode selects what the final composite shows.
type CompositeMode int

// Composite modes.
const (
	CompositeFull CompositeMode = iota
	CompositeDirectOnly
	CompositeIndirectOnly
	CompositeVoxelDebug
)

// CompositeConstants parameterise PassComposite.
type CompositeConstants struct {
	Mode             CompositeMode
	IndirectStrength float32
	Exposure         float32
}

// PlaceOnTerrainConstants parameterise PassPlaceOnTerrain.
type PlaceOnTerrainConstants struct {
	Count        int
	SplatChannel int // -1 accepts every texel
	HeightDelta  float32
	Origin       mgl32.Vec2 // world XZ of texel (0,0)
	WorldSize    float32
	HeightScale  float32
}
