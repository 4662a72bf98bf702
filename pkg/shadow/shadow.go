// Package shadow renders cascaded directional shadow maps for the sun.
package shadow

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// Mapper owns one depth map per cascade and refits the cascades to the
// camera frustum every frame.
type Mapper struct {
	log      *logger.Logger
	dev      gfx.Device
	cfg      config.ShadowConfig
	maps     []gfx.Texture
	viewProj []mgl32.Mat4
}

// New allocates the cascade depth maps.
func New(dev gfx.Device, cfg config.ShadowConfig, log *logger.Logger) (*Mapper, error) {
	if len(cfg.Splits) == 0 || len(cfg.Splits) > gfx.MaxShadowCascades {
		return nil, fmt.Errorf("shadow splits: need 1..%d, got %d", gfx.MaxShadowCascades, len(cfg.Splits))
	}
	m := &Mapper{
		log:      log.With("shadow"),
		dev:      dev,
		cfg:      cfg,
		viewProj: make([]mgl32.Mat4, len(cfg.Splits)),
	}
	for i := range cfg.Splits {
		t, err := dev.CreateTexture(gfx.TextureDesc{
			Name:   fmt.Sprintf("shadow-%d", i),
			Kind:   gfx.Texture2D,
			Format: gfx.FormatR32F,
			Width:  cfg.Resolution,
			Height: cfg.Resolution,
			Usage:  gfx.UsageDepthStencil | gfx.UsageShaderResource,
		})
		if err != nil {
			m.Release()
			return nil, fmt.Errorf("failed to create shadow cascade %d: %w", i, err)
		}
		m.maps = append(m.maps, t)
		dev.Transition(t, gfx.StateShaderResource)
	}
	m.log.Debugf("%d cascades at %d texels", len(m.maps), cfg.Resolution)
	return m, nil
}

// Release frees the cascade textures.
func (m *Mapper) Release() {
	for _, t := range m.maps {
		m.dev.Release(t)
	}
	m.maps = nil
}

// CascadeCount returns the number of cascades.
func (m *Mapper) CascadeCount() int { return len(m.maps) }

// CascadeViewProjection returns the light matrix of cascade i.
func (m *Mapper) CascadeViewProjection(i int) mgl32.Mat4 { return m.viewProj[i] }

// CascadeTexture returns the depth map of cascade i.
func (m *Mapper) CascadeTexture(i int) gfx.Texture { return m.maps[i] }

// Splits returns the far view distance of each cascade.
func (m *Mapper) Splits() []float32 { return m.cfg.Splits }

// Bias returns the depth comparison bias.
func (m *Mapper) Bias() float32 { return m.cfg.Bias }

// Render fits each cascade around its slice of the camera frustum and
// draws the casters into it. Maps are left readable by the lighting pass.
func (m *Mapper) Render(cam geom.Camera, sunDirection mgl32.Vec3, casters []gfx.Box) error {
	near := cam.Near
	for i, far := range m.cfg.Splits {
		m.viewProj[i] = fitCascade(cam, sunDirection, near, far, m.cfg.Resolution)
		m.dev.Transition(m.maps[i], gfx.StateDepthWrite)
		err := m.dev.Execute(gfx.PassDesc{
			Pass:      gfx.PassShadowDepth,
			Targets:   []gfx.Texture{m.maps[i]},
			Objects:   casters,
			Constants: gfx.ShadowDepthConstants{ViewProjection: m.viewProj[i]},
		})
		m.dev.Transition(m.maps[i], gfx.StateShaderResource)
		if err != nil {
			return fmt.Errorf("shadow cascade %d: %w", i, err)
		}
		near = far
	}
	return nil
}

// fitCascade returns an orthographic light matrix enclosing the bounding
// sphere of the frustum slice [near, far]. The centre is snapped to whole
// texels so the map does not shimmer as the camera moves.
func fitCascade(cam geom.Camera, sunDirection mgl32.Vec3, near, far float32, resolution int) mgl32.Mat4 {
	tanY := math32.Tan(cam.FovY / 2)
	tanX := tanY * cam.Aspect
	var corners [8]mgl32.Vec3
	var center mgl32.Vec3
	for i, d := range [2]float32{near, far} {
		c := cam.Position.Add(cam.Forward.Mul(d))
		right := cam.Right.Mul(d * tanX)
		up := cam.Up.Mul(d * tanY)
		corners[4*i+0] = c.Add(right).Add(up)
		corners[4*i+1] = c.Sub(right).Add(up)
		corners[4*i+2] = c.Add(right).Sub(up)
		corners[4*i+3] = c.Sub(right).Sub(up)
	}
	for _, c := range corners {
		center = center.Add(c)
	}
	center = center.Mul(1.0 / 8)
	var radius float32
	for _, c := range corners {
		radius = max(radius, c.Sub(center).Len())
	}
	radius = math32.Ceil(radius)

	dir := sunDirection.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if math32.Abs(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(mgl32.Vec3{}, dir, up)
	texel := 2 * radius / float32(resolution)
	ls := mgl32.TransformCoordinate(center, view)
	ls[0] = math32.Floor(ls[0]/texel) * texel
	ls[1] = math32.Floor(ls[1]/texel) * texel
	center = mgl32.TransformCoordinate(ls, view.Inv())

	eye := center.Sub(dir.Mul(2 * radius))
	view = mgl32.LookAtV(eye, center, up)
	proj := mgl32.Ortho(-radius, radius, -radius, radius, 0, 4*radius)
	return proj.Mul4(view)
}
