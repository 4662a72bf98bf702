// Package world loads one level: scene objects, terrain, shadows, light
// probes and the illumination pipeline, wired to a single device.
package world

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/logger"
	"lumen/internal/util"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
	"lumen/pkg/illumination"
	"lumen/pkg/probes"
	"lumen/pkg/scene"
	"lumen/pkg/shadow"
	"lumen/pkg/terrain"
)

// World is a loaded level.
type World struct {
	log *logger.Logger
	dev gfx.Device
	cfg *config.Config

	Scene   *scene.Scene
	Terrain *terrain.Terrain
	Shadows *shadow.Mapper
	Probes  *probes.VolumeManager
	Illum   *illumination.Orchestrator

	casters []gfx.Box
}

// New builds the level described by cfg and loads or bakes its probes.
// Configuration and persistence errors abort the load.
func New(dev gfx.Device, cfg *config.Config, log *logger.Logger) (*World, error) {
	start := time.Now()
	w := &World{
		log:   log.With("world"),
		dev:   dev,
		cfg:   cfg,
		Scene: scene.New(cfg.Scene),
	}
	if err := w.load(); err != nil {
		w.Release()
		return nil, err
	}
	w.log.Infof("level ready on %s device: %d objects in %s", dev.Name(), len(w.Scene.Objects), util.Since(start))
	return w, nil
}

func (w *World) load() error {
	var placer probes.TerrainPlacer
	if w.cfg.Terrain.Enabled {
		t, err := terrain.New(w.dev, w.cfg.Terrain, w.log)
		if err != nil {
			return fmt.Errorf("failed to generate terrain: %w", err)
		}
		w.Terrain = t
		placer = t
		w.Scene.Add(t.Tiles()...)
		props, err := t.ScatterProps()
		if err != nil {
			return err
		}
		w.Scene.Add(props...)
	}

	var shadows illumination.ShadowProvider
	if w.cfg.Shadows.Enabled {
		m, err := shadow.New(w.dev, w.cfg.Shadows, w.log)
		if err != nil {
			return err
		}
		w.Shadows = m
		shadows = m
	}

	vm, err := probes.NewVolumeManager(w.dev, w.cfg.Probes, w.cfg.Scene, placer, w.log)
	if err != nil {
		return fmt.Errorf("failed to place probes: %w", err)
	}
	w.Probes = vm
	if util.DirExists(w.cfg.Probes.CacheDir) {
		w.log.Debugf("probe cache %s is matched by probe position; clear it after changing probe spacing or bounds", w.cfg.Probes.CacheDir)
	}
	if err := vm.ComputeOrLoadProbes(w.Scene.All(nil), w.Scene.Env); err != nil {
		return fmt.Errorf("failed to load probes: %w", err)
	}

	illum, err := illumination.New(w.dev, w.cfg.Illumination, mgl32.Vec3(w.cfg.Scene.CameraPosition), vm, shadows, w.cfg.Graphics.Width, w.cfg.Graphics.Height, w.log)
	if err != nil {
		return fmt.Errorf("failed to set up illumination: %w", err)
	}
	w.Illum = illum
	return nil
}

// Camera returns the level's start camera.
func (w *World) Camera() geom.Camera {
	c := w.cfg.Camera
	return geom.CameraFromAngles(
		mgl32.Vec3(w.cfg.Scene.CameraPosition),
		mgl32.DegToRad(w.cfg.Scene.CameraYaw),
		mgl32.DegToRad(w.cfg.Scene.CameraPitch),
		mgl32.DegToRad(c.FOV),
		float32(w.cfg.Graphics.Width)/float32(w.cfg.Graphics.Height),
		c.Near, c.Far,
	)
}

// DefaultDebug returns the debug toggles a session starts with.
func (w *World) DefaultDebug() illumination.DebugContext {
	return illumination.DebugContext{GIEnabled: w.cfg.Illumination.Enabled}
}

// Frame renders shadows and then the illumination pipeline.
func (w *World) Frame(cam geom.Camera, debug illumination.DebugContext) error {
	if w.Shadows != nil {
		w.casters = w.Scene.Opaque(w.casters)
		if err := w.Shadows.Render(cam, w.Scene.Env.SunDirection, w.casters); err != nil {
			return err
		}
	}
	return w.Illum.Render(illumination.Frame{Camera: cam, Scene: w.Scene, Debug: debug})
}

// Output returns the last composited frame.
func (w *World) Output() gfx.Texture { return w.Illum.Output() }

// Release frees every device resource of the level.
func (w *World) Release() {
	if w.Illum != nil {
		w.Illum.Release()
	}
	if w.Probes != nil {
		w.Probes.Release()
	}
	if w.Shadows != nil {
		w.Shadows.Release()
	}
	if w.Terrain != nil {
		w.Terrain.Release()
	}
}
