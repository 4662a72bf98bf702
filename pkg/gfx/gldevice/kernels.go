package gldevice

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// Local sizes declared by the kernels in shaders.go.
const (
	tile2D = 8
	tile3D = 4
	tile1D = 64
)

// SSBO binding points.
const (
	bindBoxes = 0
	// probe tables occupy bindTables..bindTables+5 in LightingConstants order
	bindTables = 1
	bindIn     = 1
	bindOut    = 2
)

// binder validates a pass, binds its resources and uniforms and returns
// the work group counts.
type binder func(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error)

var binders = [gfx.PassCount]binder{
	gfx.PassGBuffer:          bindGBuffer,
	gfx.PassShadowDepth:      bindShadowDepth,
	gfx.PassVoxelize:         bindVoxelize,
	gfx.PassVoxelDebug:       bindVoxelDebug,
	gfx.PassConeTrace:        bindConeTrace,
	gfx.PassUpsampleBlur:     bindUpsampleBlur,
	gfx.PassProbeFace:        bindProbeFace,
	gfx.PassConvolve:         bindConvolve,
	gfx.PassDeferredLighting: bindLighting,
	gfx.PassForwardLighting:  bindLighting,
	gfx.PassComposite:        bindComposite,
	gfx.PassPlaceOnTerrain:   bindPlaceOnTerrain,
}

func groups(n, tile int) uint32 {
	return uint32((n + tile - 1) / tile)
}

func constants[T any](p gfx.PassDesc) (T, error) {
	c, ok := p.Constants.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("constants %T, want %T: %w", p.Constants, zero, gfx.ErrInvalidResource)
	}
	return c, nil
}

func need(what string, have, want int) error {
	if have < want {
		return fmt.Errorf("needs %d %s, got %d: %w", want, what, have, gfx.ErrInvalidResource)
	}
	return nil
}

// bindImage binds one mip of t as a storage image. A negative layer binds
// every layer.
func (d *Device) bindImage(unit int, t gfx.Texture, mip, layer int, access uint32) (*texture, error) {
	tx, err := d.tex(t)
	if err != nil {
		return nil, err
	}
	layered := layer < 0
	gl.BindImageTexture(uint32(unit), tx.id, int32(mip), layered, int32(max(0, layer)), access, tx.format.internal)
	return tx, nil
}

// bindSampled binds t to a texture unit with the linear sampler. A nil
// texture unbinds the unit and reports false.
func (d *Device) bindSampled(unit int, t gfx.Texture) (bool, error) {
	tx, err := d.optTex(t)
	if err != nil {
		return false, err
	}
	if tx == nil {
		gl.BindTextureUnit(uint32(unit), 0)
		return false, nil
	}
	gl.BindTextureUnit(uint32(unit), tx.id)
	gl.BindSampler(uint32(unit), d.linear)
	return true, nil
}

// uploadBoxes writes the draw items as three vec4 each: min and emission,
// max and alpha, albedo and roughness.
func (d *Device) uploadBoxes(prog *program, boxes []gfx.Box) {
	data := make([]mgl32.Vec4, 0, 3*max(1, len(boxes)))
	for _, b := range boxes {
		data = append(data, b.Min.Vec4(b.Emission), b.Max.Vec4(b.Alpha), b.Albedo.Vec4(b.Roughness))
	}
	if len(data) == 0 {
		data = append(data, mgl32.Vec4{})
	}
	raw := gfx.PackVec4s(data)
	if len(raw) > d.boxCap {
		gl.NamedBufferData(d.boxes, len(raw), gl.Ptr(raw), gl.DYNAMIC_DRAW)
		d.boxCap = len(raw)
	} else {
		gl.NamedBufferSubData(d.boxes, 0, len(raw), gl.Ptr(raw))
	}
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindBoxes, d.boxes)
	prog.setInt("boxCount", len(boxes))
}

func setEnv(prog *program, env gfx.Environment) {
	prog.setVec3("env.toLight", toLight(env))
	prog.setVec3("env.sunColor", env.SunColor.Mul(env.SunIntensity))
	prog.setVec3("env.sky", env.SkyColor)
	prog.setVec3("env.ground", env.GroundColor)
}

func toLight(env gfx.Environment) mgl32.Vec3 {
	if env.SunDirection.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return env.SunDirection.Mul(-1).Normalize()
}

func setCamera(prog *program, c geom.Camera) {
	prog.setVec3("cam.position", c.Position)
	prog.setVec3("cam.forward", c.Forward)
	prog.setVec3("cam.right", c.Right)
	prog.setVec3("cam.up", c.Up)
	tanY := math32.Tan(c.FovY / 2)
	prog.setVec2("cam.tanHalf", mgl32.Vec2{tanY * c.Aspect, tanY})
	prog.setFloat("cam.far", c.Far)
}

func setCascade(prog *program, prefix string, c gfx.CascadeParams) {
	prog.setVec3(prefix+".origin", c.Bounds().Min)
	prog.setFloat(prefix+".scale", c.WorldScale)
	prog.setInt(prefix+".size", c.Size)
}

func bindGBuffer(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.GBufferConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 3); err != nil {
		return [3]uint32{}, err
	}
	for i := 0; i < 3; i++ {
		if _, err := d.bindImage(i, p.Targets[i], 0, 0, gl.WRITE_ONLY); err != nil {
			return [3]uint32{}, err
		}
	}
	setCamera(prog, c.Camera)
	d.uploadBoxes(prog, p.Objects)
	w, h, _ := p.Targets[0].Desc().MipSize(0)
	return [3]uint32{groups(w, tile2D), groups(h, tile2D), 1}, nil
}

func bindShadowDepth(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.ShadowDepthConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	if _, err := d.bindImage(0, p.Targets[0], 0, 0, gl.WRITE_ONLY); err != nil {
		return [3]uint32{}, err
	}
	prog.setMat4("viewProj", c.ViewProjection)
	prog.setMat4("invViewProj", c.ViewProjection.Inv())
	d.uploadBoxes(prog, p.Objects)
	w, h, _ := p.Targets[0].Desc().MipSize(0)
	return [3]uint32{groups(w, tile2D), groups(h, tile2D), 1}, nil
}

func bindVoxelize(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.VoxelizeConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	vol, err := d.bindImage(0, p.Targets[0], 0, -1, gl.WRITE_ONLY)
	if err != nil {
		return [3]uint32{}, err
	}
	if vol.desc.Width != c.Cascade.Size {
		return [3]uint32{}, gfx.ErrInvalidResource
	}
	setCascade(prog, "cascade", c.Cascade)
	setEnv(prog, c.Env)
	d.uploadBoxes(prog, p.Objects)
	n := groups(c.Cascade.Size, tile3D)
	return [3]uint32{n, n, n}, nil
}

func bindVoxelDebug(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.VoxelDebugConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	if err := need("inputs", len(p.Inputs), 1); err != nil {
		return [3]uint32{}, err
	}
	if _, err := d.bindImage(0, p.Targets[0], 0, 0, gl.WRITE_ONLY); err != nil {
		return [3]uint32{}, err
	}
	if ok, err := d.bindSampled(0, p.Inputs[0]); err != nil || !ok {
		return [3]uint32{}, fmt.Errorf("voxel volume: %w", gfx.ErrInvalidResource)
	}
	prog.setMat4("invViewProj", c.ViewProjection.Inv())
	setCascade(prog, "cascade", c.Cascade)
	w, h, _ := p.Targets[0].Desc().MipSize(0)
	return [3]uint32{groups(w, tile2D), groups(h, tile2D), 1}, nil
}

func bindConeTrace(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.ConeTraceConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if c.CascadeCount < 1 || c.CascadeCount > gfx.MaxCascades {
		return [3]uint32{}, gfx.ErrInvalidResource
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	if err := need("inputs", len(p.Inputs), 3+c.CascadeCount); err != nil {
		return [3]uint32{}, err
	}
	if _, err := d.bindImage(0, p.Targets[0], 0, 0, gl.WRITE_ONLY); err != nil {
		return [3]uint32{}, err
	}
	for i := 0; i < 3+c.CascadeCount; i++ {
		if ok, err := d.bindSampled(i, p.Inputs[i]); err != nil || !ok {
			return [3]uint32{}, fmt.Errorf("input %d: %w", i, gfx.ErrInvalidResource)
		}
	}
	for i := 0; i < c.CascadeCount; i++ {
		setCascade(prog, fmt.Sprintf("cascades[%d]", i), c.Cascades[i])
	}
	aperture := c.Aperture
	if aperture <= 0 {
		aperture = 0.577
	}
	maxDist := c.MaxDistance
	if maxDist <= 0 {
		maxDist = c.Cascades[c.CascadeCount-1].Bounds().Size()[0] / 2
	}
	prog.setInt("cascadeCount", c.CascadeCount)
	prog.setFloat("strength", c.Strength)
	prog.setFloat("maxDist", maxDist)
	prog.setFloat("aperture", aperture)
	w, h, _ := p.Targets[0].Desc().MipSize(0)
	return [3]uint32{groups(w, tile2D), groups(h, tile2D), 1}, nil
}

func bindUpsampleBlur(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.UpsampleBlurConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	if err := need("inputs", len(p.Inputs), 1); err != nil {
		return [3]uint32{}, err
	}
	if _, err := d.bindImage(0, p.Targets[0], 0, 0, gl.WRITE_ONLY); err != nil {
		return [3]uint32{}, err
	}
	if ok, err := d.bindSampled(0, p.Inputs[0]); err != nil || !ok {
		return [3]uint32{}, fmt.Errorf("low resolution input: %w", gfx.ErrInvalidResource)
	}
	prog.setInt("radius", max(0, c.Radius))
	w, h, _ := p.Targets[0].Desc().MipSize(0)
	return [3]uint32{groups(w, tile2D), groups(h, tile2D), 1}, nil
}

func bindProbeFace(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.ProbeFaceConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	color, err := d.bindImage(0, p.Targets[0], 0, p.Layer, gl.WRITE_ONLY)
	if err != nil {
		return [3]uint32{}, err
	}
	hasDepth := len(p.Targets) > 1 && p.Targets[1] != nil
	if hasDepth {
		if _, err := d.bindImage(1, p.Targets[1], 0, p.Layer, gl.WRITE_ONLY); err != nil {
			return [3]uint32{}, err
		}
	}
	prog.setBool("hasDepth", hasDepth)
	prog.setInt("face", p.Layer%geom.CubeFaceCount)
	prog.setVec3("probePos", c.Position)
	prog.setFloat("nearDist", c.Near)
	prog.setFloat("farDist", c.Far)
	setEnv(prog, c.Env)
	d.uploadBoxes(prog, p.Objects)
	size, _, _ := color.desc.MipSize(0)
	return [3]uint32{groups(size, tile2D), groups(size, tile2D), 1}, nil
}

func bindConvolve(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.ConvolveConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	if err := need("inputs", len(p.Inputs), 1); err != nil {
		return [3]uint32{}, err
	}
	dst, err := d.tex(p.Targets[0])
	if err != nil {
		return [3]uint32{}, err
	}
	src, err := d.tex(p.Inputs[0])
	if err != nil {
		return [3]uint32{}, err
	}
	if p.Mip >= dst.desc.Mips || c.SourceMip >= src.desc.Mips {
		return [3]uint32{}, gfx.ErrInvalidResource
	}
	if _, err := d.bindImage(0, dst, p.Mip, p.Layer, gl.WRITE_ONLY); err != nil {
		return [3]uint32{}, err
	}
	if _, err := d.bindSampled(0, src); err != nil {
		return [3]uint32{}, err
	}
	srcSize, _, _ := src.desc.MipSize(c.SourceMip)
	a := c.Roughness * c.Roughness
	prog.setInt("face", p.Layer%geom.CubeFaceCount)
	prog.setInt("mode", int(c.Mode))
	prog.setFloat("roughness", c.Roughness)
	prog.setFloat("exponent", max(1, 2/(a*a)-2))
	prog.setInt("sourceMip", c.SourceMip)
	prog.setInt("sourceSize", srcSize)
	size, _, _ := dst.desc.MipSize(p.Mip)
	return [3]uint32{groups(size, tile2D), groups(size, tile2D), 1}, nil
}

func setGrid(prog *program, prefix string, g gfx.ProbeGridParams) {
	prog.setBool(prefix+".enabled", g.Enabled && g.CellCapacity > 0 && g.Spacing > 0)
	prog.setVec3(prefix+".origin", g.Min)
	prog.setFloat(prefix+".spacing", g.Spacing)
	prog.setIVec3(prefix+".cells", g.CellCounts)
	prog.setBool(prefix+".is2D", g.Is2D)
	prog.setInt(prefix+".capacity", int(g.CellCapacity))
	prog.setInt(prefix+".probeCount", int(g.ProbeCount))
}

func bindLighting(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.LightingConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	if err := need("inputs", len(p.Inputs), 5); err != nil {
		return [3]uint32{}, err
	}
	access := uint32(gl.WRITE_ONLY)
	if p.Pass == gfx.PassForwardLighting {
		access = gl.READ_WRITE
	}
	out, err := d.bindImage(0, p.Targets[0], 0, 0, access)
	if err != nil {
		return [3]uint32{}, err
	}
	if p.Pass == gfx.PassForwardLighting && out.desc.Format != gfx.FormatRGBA16F {
		return [3]uint32{}, fmt.Errorf("forward target must be %s: %w", gfx.FormatRGBA16F, gfx.ErrInvalidResource)
	}
	for i := 0; i < 3; i++ {
		if ok, err := d.bindSampled(i, p.Inputs[i]); err != nil || !ok {
			return [3]uint32{}, fmt.Errorf("gbuffer %d: %w", i, gfx.ErrInvalidResource)
		}
	}
	hasSpecular, err := d.bindSampled(3, p.Inputs[3])
	if err != nil {
		return [3]uint32{}, err
	}
	hasGlobal, err := d.bindSampled(4, p.Inputs[4])
	if err != nil {
		return [3]uint32{}, err
	}
	shadows := 0
	for i := 0; i < min(c.ShadowCount, gfx.MaxShadowCascades) && 5+i < len(p.Inputs); i++ {
		ok, err := d.bindSampled(5+i, p.Inputs[5+i])
		if err != nil {
			return [3]uint32{}, err
		}
		if !ok {
			break
		}
		prog.setMat4(fmt.Sprintf("shadowViewProj[%d]", i), c.ShadowViewProj[i])
		shadows++
	}
	for i := 0; i < 6; i++ {
		id := d.empty
		if i < len(p.Buffers) && p.Buffers[i] != nil {
			b, err := d.buf(p.Buffers[i])
			if err != nil {
				return [3]uint32{}, err
			}
			id = b.id
		}
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, uint32(bindTables+i), id)
	}

	setCamera(prog, c.Camera)
	setEnv(prog, c.Env)
	prog.setInt("shadowCount", shadows)
	prog.setFloat("shadowBias", c.ShadowBias)
	setGrid(prog, "diffuse", c.Diffuse)
	setGrid(prog, "specular", c.Specular)
	prog.setBool("hasSpecular", hasSpecular)
	prog.setBool("hasGlobal", hasGlobal)
	prog.setInt("specularMips", c.SpecularMips)
	prog.setBool("forward", p.Pass == gfx.PassForwardLighting)
	d.uploadBoxes(prog, p.Objects)
	w, h, _ := out.desc.MipSize(0)
	return [3]uint32{groups(w, tile2D), groups(h, tile2D), 1}, nil
}

func bindComposite(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.CompositeConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("targets", len(p.Targets), 1); err != nil {
		return [3]uint32{}, err
	}
	if err := need("inputs", len(p.Inputs), 3); err != nil {
		return [3]uint32{}, err
	}
	if _, err := d.bindImage(0, p.Targets[0], 0, 0, gl.WRITE_ONLY); err != nil {
		return [3]uint32{}, err
	}
	for i := 0; i < 3; i++ {
		if ok, err := d.bindSampled(i, p.Inputs[i]); err != nil || !ok {
			return [3]uint32{}, fmt.Errorf("input %d: %w", i, gfx.ErrInvalidResource)
		}
	}
	var debug gfx.Texture
	if len(p.Inputs) > 3 {
		debug = p.Inputs[3]
	}
	hasDebug, err := d.bindSampled(3, debug)
	if err != nil {
		return [3]uint32{}, err
	}
	if c.Mode == gfx.CompositeVoxelDebug && !hasDebug {
		return [3]uint32{}, gfx.ErrInvalidResource
	}
	prog.setInt("mode", int(c.Mode))
	prog.setFloat("indirectStrength", c.IndirectStrength)
	prog.setFloat("exposure", c.Exposure)
	w, h, _ := p.Targets[0].Desc().MipSize(0)
	return [3]uint32{groups(w, tile2D), groups(h, tile2D), 1}, nil
}

func bindPlaceOnTerrain(d *Device, prog *program, p gfx.PassDesc) ([3]uint32, error) {
	c, err := constants[gfx.PlaceOnTerrainConstants](p)
	if err != nil {
		return [3]uint32{}, err
	}
	if err := need("inputs", len(p.Inputs), 1); err != nil {
		return [3]uint32{}, err
	}
	if len(p.Buffers) < 1 || len(p.RWBuffers) < 1 || c.WorldSize <= 0 {
		return [3]uint32{}, gfx.ErrInvalidResource
	}
	if ok, err := d.bindSampled(0, p.Inputs[0]); err != nil || !ok {
		return [3]uint32{}, fmt.Errorf("height map: %w", gfx.ErrInvalidResource)
	}
	var splat gfx.Texture
	if len(p.Inputs) > 1 {
		splat = p.Inputs[1]
	}
	hasSplat, err := d.bindSampled(1, splat)
	if err != nil {
		return [3]uint32{}, err
	}
	in, err := d.buf(p.Buffers[0])
	if err != nil {
		return [3]uint32{}, err
	}
	out, err := d.buf(p.RWBuffers[0])
	if err != nil {
		return [3]uint32{}, err
	}
	if c.Count*16 > in.size || c.Count*16 > out.size {
		return [3]uint32{}, gfx.ErrInvalidResource
	}
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindIn, in.id)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindOut, out.id)
	prog.setInt("count", c.Count)
	prog.setInt("splatChannel", c.SplatChannel)
	prog.setBool("hasSplat", hasSplat)
	prog.setFloat("heightDelta", c.HeightDelta)
	prog.setVec2("origin", c.Origin)
	prog.setFloat("worldSize", c.WorldSize)
	prog.setFloat("heightScale", c.HeightScale)
	return [3]uint32{groups(c.Count, tile1D), 1, 1}, nil
}
