package terrain

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/geom"
	"lumen/pkg/gfx"
	"lumen/pkg/scene"
)

type propKind struct {
	name    string
	density float64
	channel int
	size    func(t *Terrain) mgl32.Vec3
	albedo  mgl32.Vec3
}

// ScatterProps drops trees on grassland and rocks anywhere on the
// terrain, snapping them to the surface with a device placement batch.
func (t *Terrain) ScatterProps() ([]*scene.Object, error) {
	kinds := []propKind{
		{
			name: "tree", density: t.cfg.TreeDensity, channel: SplatGrass,
			size:   func(t *Terrain) mgl32.Vec3 { return mgl32.Vec3{1.2, float32(t.noise.RandomRange(4, 8)), 1.2} },
			albedo: mgl32.Vec3{0.18, 0.35, 0.12},
		},
		{
			name: "rock", density: t.cfg.RockDensity, channel: -1,
			size: func(t *Terrain) mgl32.Vec3 {
				s := float32(t.noise.RandomRange(0.8, 2.5))
				return mgl32.Vec3{s, s * 0.7, s}
			},
			albedo: mgl32.Vec3{0.4, 0.38, 0.36},
		},
	}

	var props []*scene.Object
	for _, k := range kinds {
		count := int(k.density * float64(t.res*t.res) / 10000)
		if count <= 0 {
			continue
		}
		objs, err := t.scatter(k, count)
		if err != nil {
			return nil, fmt.Errorf("failed to scatter %ss: %w", k.name, err)
		}
		props = append(props, objs...)
	}
	t.log.Infof("scattered %d props", len(props))
	return props, nil
}

func (t *Terrain) scatter(k propKind, count int) ([]*scene.Object, error) {
	half := float64(t.cfg.WorldSize) / 2
	positions := make([]mgl32.Vec4, count)
	for i := range positions {
		positions[i] = mgl32.Vec4{
			float32(t.noise.RandomRange(-half, half)), 0,
			float32(t.noise.RandomRange(-half, half)), 1,
		}
	}

	size := 16 * count
	in, err := t.dev.CreateBuffer(gfx.BufferDesc{Name: k.name + "-in", Size: size, Usage: gfx.UsageShaderResource})
	if err != nil {
		return nil, err
	}
	defer t.dev.Release(in)
	out, err := t.dev.CreateBuffer(gfx.BufferDesc{Name: k.name + "-out", Size: size, Usage: gfx.UsageUnorderedAccess})
	if err != nil {
		return nil, err
	}
	defer t.dev.Release(out)

	if err := t.PlaceOnTerrain(out, in, positions, k.channel, 0); err != nil {
		return nil, err
	}

	var objs []*scene.Object
	for i, p := range positions {
		if p[3] == 0 {
			continue
		}
		s := k.size(t)
		base := mgl32.Vec3{p[0] - s[0]/2, p[1], p[2] - s[2]/2}
		objs = append(objs, &scene.Object{
			Name:      fmt.Sprintf("%s_%d", k.name, i),
			Bounds:    geom.NewAABB(base, base.Add(s)),
			Albedo:    k.albedo,
			Roughness: 0.8,
			Alpha:     1,
			Voxelize:  true,
		})
	}
	return objs, nil
}
