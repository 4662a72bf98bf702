// Package scene holds the renderable objects of a level and the distant
// lighting that surrounds them.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// Object is one renderable box.
type Object struct {
	Name      string
	Bounds    geom.AABB
	Albedo    mgl32.Vec3
	Emission  float32
	Roughness float32
	Alpha     float32
	// Voxelize opts the object into cascade voxelization.
	Voxelize bool
}

// Forward reports whether the object is translucent and drawn by the
// forward pass instead of the G-buffer.
func (o *Object) Forward() bool {
	return o.Alpha < 1
}

// Box converts the object into a draw item.
func (o *Object) Box() gfx.Box {
	return gfx.Box{
		Min:       o.Bounds.Min,
		Max:       o.Bounds.Max,
		Albedo:    o.Albedo,
		Emission:  o.Emission,
		Roughness: o.Roughness,
		Alpha:     o.Alpha,
	}
}

// Scene is the object list and environment of a level.
type Scene struct {
	Objects []*Object
	Env     gfx.Environment
}

// New builds a scene from the level configuration.
func New(cfg config.SceneConfig) *Scene {
	s := &Scene{
		Env: gfx.Environment{
			SunDirection: vec3(cfg.Sun.Direction).Normalize(),
			SunColor:     vec3(cfg.Sun.Color),
			SunIntensity: cfg.Sun.Intensity,
			SkyColor:     vec3(cfg.SkyColor),
			GroundColor:  vec3(cfg.GroundColor),
		},
	}
	for _, oc := range cfg.Objects {
		alpha := oc.Alpha
		if alpha == 0 {
			alpha = 1
		}
		s.Add(&Object{
			Name:      oc.Name,
			Bounds:    geom.NewAABB(vec3(oc.Min), vec3(oc.Max)),
			Albedo:    vec3(oc.Albedo),
			Emission:  oc.Emission,
			Roughness: oc.Roughness,
			Alpha:     alpha,
			Voxelize:  oc.Voxelize,
		})
	}
	return s
}

// Add appends objects to the scene.
func (s *Scene) Add(objs ...*Object) {
	s.Objects = append(s.Objects, objs...)
}

// Opaque returns draw items for the G-buffer pass into dst.
func (s *Scene) Opaque(dst []gfx.Box) []gfx.Box {
	dst = dst[:0]
	for _, o := range s.Objects {
		if !o.Forward() {
			dst = append(dst, o.Box())
		}
	}
	return dst
}

// Translucent returns draw items for the forward pass into dst.
func (s *Scene) Translucent(dst []gfx.Box) []gfx.Box {
	dst = dst[:0]
	for _, o := range s.Objects {
		if o.Forward() {
			dst = append(dst, o.Box())
		}
	}
	return dst
}

// All returns every object as a draw item, as probe faces see them.
func (s *Scene) All(dst []gfx.Box) []gfx.Box {
	dst = dst[:0]
	for _, o := range s.Objects {
		dst = append(dst, o.Box())
	}
	return dst
}

// Bounds returns the box enclosing every object.
func (s *Scene) Bounds() geom.AABB {
	if len(s.Objects) == 0 {
		return geom.AABB{}
	}
	b := s.Objects[0].Bounds
	for _, o := range s.Objects[1:] {
		b = geom.NewAABB(
			mgl32.Vec3{min(b.Min[0], o.Bounds.Min[0]), min(b.Min[1], o.Bounds.Min[1]), min(b.Min[2], o.Bounds.Min[2])},
			mgl32.Vec3{max(b.Max[0], o.Bounds.Max[0]), max(b.Max[1], o.Bounds.Max[1]), max(b.Max[2], o.Bounds.Max[2])},
		)
	}
	return b
}

func vec3(v [3]float32) mgl32.Vec3 {
	return mgl32.Vec3(v)
}
