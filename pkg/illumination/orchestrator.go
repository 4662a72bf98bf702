// Package illumination sequences one frame of global illumination: voxel
// cascades, cone tracing, probe-lit deferred and forward lighting and the
// final composite.
package illumination

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
	"lumen/pkg/probes"
	"lumen/pkg/scene"
	"lumen/pkg/voxel"
)

// ShadowProvider is the read-only view of the shadow mapper the lighting
// passes need.
type ShadowProvider interface {
	CascadeCount() int
	CascadeViewProjection(i int) mgl32.Mat4
	CascadeTexture(i int) gfx.Texture
	Splits() []float32
	Bias() float32
}

// ProbeProvider packs the specular probes around the camera and exposes
// the probe tables the lighting passes bind.
type ProbeProvider interface {
	RepackSpecularProbes(cameraPos mgl32.Vec3) error
	Bindings() probes.Bindings
}

// Frame is everything Render needs for one frame.
type Frame struct {
	Camera geom.Camera
	Scene  *scene.Scene
	Debug  DebugContext
}

// Orchestrator owns the screen-space targets and the voxel cascades and
// drives the pipeline stages in order. It runs on the render goroutine.
type Orchestrator struct {
	log      *logger.Logger
	dev      gfx.Device
	cfg      config.IlluminationConfig
	cascades *voxel.CascadeSet
	probes   ProbeProvider
	shadows  ShadowProvider

	width, height int
	albedo        gfx.Texture
	normal        gfx.Texture
	position      gfx.Texture
	local         gfx.Texture
	giLow         gfx.Texture
	gi            gfx.Texture
	debug         gfx.Texture
	final         gfx.Texture

	stage  Stage
	stages []Stage
	boxes  []gfx.Box
	giOn   bool
	// env is the lighting the cascades were last voxelized under.
	env gfx.Environment
}

// New creates the cascades around origin and the frame targets. probes
// and shadows may be nil; lighting then falls back to the environment.
func New(dev gfx.Device, cfg config.IlluminationConfig, origin mgl32.Vec3, pp ProbeProvider, sp ShadowProvider, width, height int, log *logger.Logger) (*Orchestrator, error) {
	cascades, err := voxel.NewCascadeSet(dev, cfg.Cascades, origin, log)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		log:      log.With("illumination"),
		dev:      dev,
		cfg:      cfg,
		cascades: cascades,
		probes:   pp,
		shadows:  sp,
		giOn:     cfg.Enabled,
	}
	if err := o.Resize(width, height); err != nil {
		o.Release()
		return nil, err
	}
	return o, nil
}

// Resize recreates the frame targets for a new output size.
func (o *Orchestrator) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("illumination targets: bad size %dx%d", width, height)
	}
	o.releaseTargets()
	o.width, o.height = width, height
	tw := max(1, int(float32(width)*o.cfg.TraceScale))
	th := max(1, int(float32(height)*o.cfg.TraceScale))

	targets := []struct {
		dst    *gfx.Texture
		name   string
		format gfx.Format
		w, h   int
	}{
		{&o.albedo, "gbuffer-albedo", gfx.FormatRGBA16F, width, height},
		{&o.normal, "gbuffer-normal", gfx.FormatRGBA16F, width, height},
		{&o.position, "gbuffer-position", gfx.FormatRGBA32F, width, height},
		{&o.local, "local-illumination", gfx.FormatRGBA16F, width, height},
		{&o.giLow, "gi-trace", gfx.FormatRGBA16F, tw, th},
		{&o.gi, "gi", gfx.FormatRGBA16F, width, height},
		{&o.debug, "voxel-debug", gfx.FormatRGBA8, width, height},
		{&o.final, "final", gfx.FormatRGBA8, width, height},
	}
	for _, t := range targets {
		tex, err := o.dev.CreateTexture(gfx.TextureDesc{
			Name:   t.name,
			Kind:   gfx.Texture2D,
			Format: t.format,
			Width:  t.w,
			Height: t.h,
			Usage:  gfx.UsageRenderTarget | gfx.UsageShaderResource | gfx.UsageCopy,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", t.name, err)
		}
		o.dev.Transition(tex, gfx.StateShaderResource)
		*t.dst = tex
	}
	o.log.Debugf("targets %dx%d, cone trace at %dx%d", width, height, tw, th)
	return nil
}

// Render runs one frame. The composited image is left in Output, readable
// as a shader resource.
func (o *Orchestrator) Render(f Frame) error {
	o.stages = o.stages[:0]
	defer o.enter(StageIdle)

	if f.Debug.GIEnabled != o.giOn {
		o.log.Infof("global illumination %s", onOff(f.Debug.GIEnabled))
		o.giOn = f.Debug.GIEnabled
	}

	o.enter(StageGBuffer)
	if err := o.gbuffer(f); err != nil {
		return o.fail(err)
	}

	if f.Debug.GIEnabled {
		o.enter(StageCullVoxels)
		o.cascades.RecenterIfNeeded(f.Camera.Position)
		o.cascades.CullObjectsAgainstCascades(f.Scene.Objects)
		if f.Scene.Env != o.env {
			o.log.Debugf("environment changed, revoxelizing every cascade")
			o.cascades.Invalidate()
			o.env = f.Scene.Env
		}

		o.enter(StageVoxelize)
		for i := 0; i < o.cascades.Count(); i++ {
			if !o.cascades.Cascade(i).Dirty() {
				continue
			}
			if err := o.cascades.Voxelize(i, f.Scene.Env); err != nil {
				return o.fail(err)
			}
		}

		if f.Debug.voxelView() {
			o.enter(StageVoxelDebugView)
			if err := o.voxelDebugView(f); err != nil {
				return o.fail(err)
			}
			o.enter(StageClearIndirect)
			if err := o.clearIndirect(); err != nil {
				return o.fail(err)
			}
		} else {
			o.enter(StageConeTrace)
			if err := o.coneTrace(); err != nil {
				return o.fail(err)
			}
			o.enter(StageUpsampleBlur)
			if err := o.upsampleBlur(); err != nil {
				return o.fail(err)
			}
		}
	} else {
		o.enter(StageClearIndirect)
		if err := o.clearIndirect(); err != nil {
			return o.fail(err)
		}
	}

	o.enter(StageDeferredLighting)
	lc, inputs, buffers, err := o.lightingBindings(f)
	if err != nil {
		return o.fail(err)
	}
	o.dev.Transition(o.local, gfx.StateRenderTarget)
	err = o.dev.Execute(gfx.PassDesc{
		Pass:      gfx.PassDeferredLighting,
		Targets:   []gfx.Texture{o.local},
		Inputs:    inputs,
		Buffers:   buffers,
		Constants: lc,
	})
	if err != nil {
		return o.fail(err)
	}

	o.enter(StageForwardLighting)
	o.boxes = f.Scene.Translucent(o.boxes)
	err = o.dev.Execute(gfx.PassDesc{
		Pass:      gfx.PassForwardLighting,
		Targets:   []gfx.Texture{o.local},
		Inputs:    inputs,
		Buffers:   buffers,
		Objects:   o.boxes,
		Constants: lc,
	})
	o.dev.Transition(o.local, gfx.StateShaderResource)
	if err != nil {
		return o.fail(err)
	}

	o.enter(StageComposite)
	o.dev.Transition(o.final, gfx.StateRenderTarget)
	err = o.dev.Execute(gfx.PassDesc{
		Pass:    gfx.PassComposite,
		Targets: []gfx.Texture{o.final},
		Inputs:  []gfx.Texture{o.local, o.gi, o.albedo, o.debug},
		Constants: gfx.CompositeConstants{
			Mode:             f.Debug.compositeMode(),
			IndirectStrength: o.cfg.IndirectStrength,
			Exposure:         o.cfg.Exposure,
		},
	})
	o.dev.Transition(o.final, gfx.StateShaderResource)
	if err != nil {
		return o.fail(err)
	}
	return nil
}

func (o *Orchestrator) enter(s Stage) {
	o.stage = s
	if s != StageIdle {
		o.stages = append(o.stages, s)
	}
}

func (o *Orchestrator) fail(err error) error {
	return fmt.Errorf("illumination %s: %w", o.stage, err)
}

func (o *Orchestrator) gbuffer(f Frame) error {
	gb := []gfx.Texture{o.albedo, o.normal, o.position}
	for _, t := range gb {
		o.dev.Transition(t, gfx.StateRenderTarget)
	}
	o.boxes = f.Scene.Opaque(o.boxes)
	err := o.dev.Execute(gfx.PassDesc{
		Pass:      gfx.PassGBuffer,
		Targets:   gb,
		Objects:   o.boxes,
		Constants: gfx.GBufferConstants{Camera: f.Camera},
	})
	for _, t := range gb {
		o.dev.Transition(t, gfx.StateShaderResource)
	}
	return err
}

// voxelDebugView draws cascade 0 as points into the debug target. It
// shares that target with nothing else in the frame.
func (o *Orchestrator) voxelDebugView(f Frame) error {
	c := o.cascades.Cascade(0)
	o.dev.Transition(o.debug, gfx.StateRenderTarget)
	err := o.dev.Execute(gfx.PassDesc{
		Pass:    gfx.PassVoxelDebug,
		Targets: []gfx.Texture{o.debug},
		Inputs:  []gfx.Texture{c.Volume},
		Constants: gfx.VoxelDebugConstants{
			ViewProjection: f.Camera.ViewProjection(),
			Cascade:        c.Params(),
		},
	})
	o.dev.Transition(o.debug, gfx.StateShaderResource)
	return err
}

func (o *Orchestrator) coneTrace() error {
	params, n := o.cascades.Params()
	inputs := append([]gfx.Texture{o.albedo, o.normal, o.position}, o.cascades.Volumes()...)
	o.dev.Transition(o.giLow, gfx.StateRenderTarget)
	err := o.dev.Execute(gfx.PassDesc{
		Pass:    gfx.PassConeTrace,
		Targets: []gfx.Texture{o.giLow},
		Inputs:  inputs,
		Constants: gfx.ConeTraceConstants{
			Cascades:     params,
			CascadeCount: n,
			Strength:     o.cfg.Strength,
			MaxDistance:  o.cfg.ConeMaxDistance,
			Aperture:     o.cfg.ConeAperture,
		},
	})
	o.dev.Transition(o.giLow, gfx.StateShaderResource)
	return err
}

func (o *Orchestrator) upsampleBlur() error {
	o.dev.Transition(o.gi, gfx.StateRenderTarget)
	err := o.dev.Execute(gfx.PassDesc{
		Pass:      gfx.PassUpsampleBlur,
		Targets:   []gfx.Texture{o.gi},
		Inputs:    []gfx.Texture{o.giLow},
		Constants: gfx.UpsampleBlurConstants{Radius: o.cfg.BlurRadius},
	})
	o.dev.Transition(o.gi, gfx.StateShaderResource)
	return err
}

// clearIndirect zeroes the GI targets so the composite never reads a
// previous frame's indirect light.
func (o *Orchestrator) clearIndirect() error {
	for _, t := range []gfx.Texture{o.giLow, o.gi} {
		o.dev.Transition(t, gfx.StateRenderTarget)
		err := o.dev.ClearTexture(t, [4]float32{})
		o.dev.Transition(t, gfx.StateShaderResource)
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) lightingBindings(f Frame) (gfx.LightingConstants, []gfx.Texture, []gfx.Buffer, error) {
	lc := gfx.LightingConstants{Camera: f.Camera, Env: f.Scene.Env}
	inputs := []gfx.Texture{o.albedo, o.normal, o.position, nil, nil}
	var buffers []gfx.Buffer

	if o.probes != nil {
		if err := o.probes.RepackSpecularProbes(f.Camera.Position); err != nil {
			return lc, nil, nil, err
		}
		b := o.probes.Bindings()
		inputs[3], inputs[4] = b.SpecularArray, b.GlobalSpecular
		buffers = b.Buffers
		lc.Diffuse, lc.Specular, lc.SpecularMips = b.Diffuse, b.Specular, b.SpecularMips
	}
	if o.shadows != nil {
		n := min(o.shadows.CascadeCount(), gfx.MaxShadowCascades)
		splits := o.shadows.Splits()
		for i := 0; i < n; i++ {
			lc.ShadowViewProj[i] = o.shadows.CascadeViewProjection(i)
			lc.ShadowSplits[i] = splits[i]
			inputs = append(inputs, o.shadows.CascadeTexture(i))
		}
		lc.ShadowCount = n
		lc.ShadowBias = o.shadows.Bias()
	}
	return lc, inputs, buffers, nil
}

// Output returns the composited frame.
func (o *Orchestrator) Output() gfx.Texture { return o.final }

// Size returns the output size.
func (o *Orchestrator) Size() (int, int) { return o.width, o.height }

// ReadOutput blocks until the composited frame is on the host and
// returns it as RGBA floats.
func (o *Orchestrator) ReadOutput() ([]float32, error) {
	o.dev.Transition(o.final, gfx.StateCopySource)
	defer o.dev.Transition(o.final, gfx.StateShaderResource)
	return o.dev.ReadTexture(o.final, 0, 0)
}

// Cascades returns the voxel cascades.
func (o *Orchestrator) Cascades() *voxel.CascadeSet { return o.cascades }

// Stage returns the stage in progress, StageIdle between frames.
func (o *Orchestrator) Stage() Stage { return o.stage }

// Stages returns the stages the last frame went through.
func (o *Orchestrator) Stages() []Stage { return o.stages }

func (o *Orchestrator) releaseTargets() {
	for _, t := range []*gfx.Texture{&o.albedo, &o.normal, &o.position, &o.local, &o.giLow, &o.gi, &o.debug, &o.final} {
		if *t != nil {
			o.dev.Release(*t)
			*t = nil
		}
	}
}

// Release frees the targets and the cascades.
func (o *Orchestrator) Release() {
	o.releaseTargets()
	o.cascades.Release()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
