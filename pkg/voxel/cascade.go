// Package voxel keeps the nested voxel volumes cone tracing reads from,
// their placement around the camera and which objects each one holds.
package voxel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/logger"
	"lumen/internal/util"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
	"lumen/pkg/scene"
)

// Cascade is one camera-anchored voxel volume. Members are kept in the
// order objects were culled so voxelization is deterministic.
type Cascade struct {
	Index      int
	Anchor     mgl32.Vec3
	SizeTexels int
	WorldScale float32
	Volume     gfx.Texture

	members []*scene.Object
	member  map[*scene.Object]bool
	dirty   bool
}

// HalfExtent returns half the world size covered by the cascade.
func (c *Cascade) HalfExtent() float32 {
	return float32(c.SizeTexels) / c.WorldScale / 2
}

// Bounds returns the world box of the cascade around its anchor.
func (c *Cascade) Bounds() geom.AABB {
	return geom.CenteredAABB(c.Anchor, c.HalfExtent())
}

// Params describes the cascade to the passes.
func (c *Cascade) Params() gfx.CascadeParams {
	return gfx.CascadeParams{Anchor: c.Anchor, WorldScale: c.WorldScale, Size: c.SizeTexels}
}

// Members returns the objects currently assigned to the cascade.
func (c *Cascade) Members() []*scene.Object { return c.members }

// Contains reports whether o is a member.
func (c *Cascade) Contains(o *scene.Object) bool { return c.member[o] }

// Dirty reports whether the cascade needs a full voxelization.
func (c *Cascade) Dirty() bool { return c.dirty }

// CascadeSet owns every cascade. It is driven from the render goroutine.
type CascadeSet struct {
	log       *logger.Logger
	dev       gfx.Device
	cascades  []*Cascade
	boxes     []gfx.Box
	recenters int
}

// NewCascadeSet creates one 3D volume per configured cascade, all
// anchored at origin. Cascades start dirty.
func NewCascadeSet(dev gfx.Device, cfgs []config.CascadeConfig, origin mgl32.Vec3, log *logger.Logger) (*CascadeSet, error) {
	if len(cfgs) == 0 || len(cfgs) > gfx.MaxCascades {
		return nil, fmt.Errorf("voxel cascades: need 1..%d, got %d", gfx.MaxCascades, len(cfgs))
	}
	s := &CascadeSet{log: log.With("voxel"), dev: dev}
	for i, cc := range cfgs {
		if cc.SizeTexels <= 0 || cc.WorldScale <= 0 {
			s.Release()
			return nil, fmt.Errorf("voxel cascade %d: size %d and scale %g must be positive", i, cc.SizeTexels, cc.WorldScale)
		}
		vol, err := dev.CreateTexture(gfx.TextureDesc{
			Name:   fmt.Sprintf("voxel-cascade-%d", i),
			Kind:   gfx.Texture3D,
			Format: gfx.FormatRGBA16F,
			Width:  cc.SizeTexels,
			Height: cc.SizeTexels,
			Depth:  cc.SizeTexels,
			Mips:   util.MipCount(cc.SizeTexels),
			Usage:  gfx.UsageShaderResource | gfx.UsageUnorderedAccess,
		})
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("failed to create voxel cascade %d: %w", i, err)
		}
		dev.Transition(vol, gfx.StateShaderResource)
		s.cascades = append(s.cascades, &Cascade{
			Index:      i,
			Anchor:     origin,
			SizeTexels: cc.SizeTexels,
			WorldScale: cc.WorldScale,
			Volume:     vol,
			member:     make(map[*scene.Object]bool),
			dirty:      true,
		})
		s.log.Debugf("cascade %d: %d texels, %.2f voxels per unit, half extent %.1f", i, cc.SizeTexels, cc.WorldScale, s.cascades[i].HalfExtent())
	}
	return s, nil
}

// Count returns the number of cascades.
func (s *CascadeSet) Count() int { return len(s.cascades) }

// Cascade returns cascade i.
func (s *CascadeSet) Cascade(i int) *Cascade { return s.cascades[i] }

// Recenters returns how many recenter events happened so far.
func (s *CascadeSet) Recenters() int { return s.recenters }

// RecenterIfNeeded snaps every cascade the camera has left back onto the
// camera and marks it dirty. It returns the number of cascades moved.
func (s *CascadeSet) RecenterIfNeeded(cameraPos mgl32.Vec3) int {
	moved := 0
	for _, c := range s.cascades {
		if c.Bounds().Contains(cameraPos) {
			continue
		}
		s.log.Debugf("cascade %d recentred from %v to %v", c.Index, c.Anchor, cameraPos)
		c.Anchor = cameraPos
		c.dirty = true
		moved++
	}
	s.recenters += moved
	return moved
}

// CullObjectsAgainstCascades assigns every object to the finest cascade
// its bounds overlap. An object held by a lower cascade is removed from
// every coarser one. Cascades whose membership changes become dirty.
func (s *CascadeSet) CullObjectsAgainstCascades(objects []*scene.Object) {
	for _, c := range s.cascades {
		bounds := c.Bounds()
		members := make([]*scene.Object, 0, len(c.members))
		next := make(map[*scene.Object]bool, len(c.member))
		for _, o := range objects {
			if s.heldBelow(c.Index, o) {
				continue
			}
			if bounds.Overlaps(o.Bounds) {
				members = append(members, o)
				next[o] = true
			}
		}
		if !sameMembers(c.member, next) {
			c.dirty = true
		}
		c.members = members
		c.member = next
	}
}

func (s *CascadeSet) heldBelow(index int, o *scene.Object) bool {
	for _, c := range s.cascades[:index] {
		if c.member[o] {
			return true
		}
	}
	return false
}

func sameMembers(a, b map[*scene.Object]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for o := range a {
		if !b[o] {
			return false
		}
	}
	return true
}

// Voxelize clears cascade i, splats its members into mip 0 and rebuilds
// the mip chain. Members that have not opted into voxelization are
// skipped. The volume is left readable by cone tracing.
func (s *CascadeSet) Voxelize(i int, env gfx.Environment) error {
	c := s.cascades[i]
	s.boxes = s.boxes[:0]
	for _, o := range c.members {
		if o.Voxelize {
			s.boxes = append(s.boxes, o.Box())
		}
	}

	s.dev.Transition(c.Volume, gfx.StateUnorderedAccess)
	if err := s.dev.ClearTexture(c.Volume, [4]float32{}); err != nil {
		return fmt.Errorf("clear cascade %d: %w", i, err)
	}
	err := s.dev.Execute(gfx.PassDesc{
		Pass:      gfx.PassVoxelize,
		Targets:   []gfx.Texture{c.Volume},
		Objects:   s.boxes,
		Constants: gfx.VoxelizeConstants{Cascade: c.Params(), Env: env},
	})
	if err != nil {
		return fmt.Errorf("voxelize cascade %d: %w", i, err)
	}
	if err := s.dev.GenerateMips(c.Volume); err != nil {
		return fmt.Errorf("mips for cascade %d: %w", i, err)
	}
	s.dev.Transition(c.Volume, gfx.StateShaderResource)
	c.dirty = false
	return nil
}

// Invalidate marks every cascade dirty. Voxels hold lit radiance, so a
// change of sun or sky invalidates all of them.
func (s *CascadeSet) Invalidate() {
	for _, c := range s.cascades {
		c.dirty = true
	}
}

// Params fills the fixed-size cascade array cone tracing uploads.
func (s *CascadeSet) Params() ([gfx.MaxCascades]gfx.CascadeParams, int) {
	var out [gfx.MaxCascades]gfx.CascadeParams
	for i, c := range s.cascades {
		out[i] = c.Params()
	}
	return out, len(s.cascades)
}

// Volumes returns the cascade textures in cascade order.
func (s *CascadeSet) Volumes() []gfx.Texture {
	out := make([]gfx.Texture, len(s.cascades))
	for i, c := range s.cascades {
		out[i] = c.Volume
	}
	return out
}

// Release frees the cascade volumes.
func (s *CascadeSet) Release() {
	for _, c := range s.cascades {
		if c.Volume != nil {
			s.dev.Release(c.Volume)
			c.Volume = nil
		}
	}
}
