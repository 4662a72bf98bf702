package probes

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// TerrainPlacer snaps a batch of positions onto terrain. positions is
// updated in place; w is 0 for rejected points.
type TerrainPlacer interface {
	PlaceOnTerrain(out, in gfx.Buffer, positions []mgl32.Vec4, splatChannel int, heightDelta float32) error
}

// Lighting buffer slots, in the order the lighting passes bind them.
const (
	bufDiffuseCells = iota
	bufDiffusePositions
	bufDiffuseSH
	bufSpecularCells
	bufSpecularPositions
	bufSpecularSlots
	bufCount
)

// Bindings is what the lighting passes need from the probe volumes.
type Bindings struct {
	Buffers        []gfx.Buffer
	SpecularArray  gfx.Texture
	GlobalSpecular gfx.Texture
	Diffuse        gfx.ProbeGridParams
	Specular       gfx.ProbeGridParams
	SpecularMips   int
}

// VolumeManager owns the diffuse and specular probes, their grids, the
// lighting buffers and the fixed-capacity array active specular probes
// are packed into.
type VolumeManager struct {
	log   *logger.Logger
	dev   gfx.Device
	cfg   config.ProbesConfig
	baker *Baker

	diffuse        []*LightProbe
	specular       []*LightProbe
	globalDiffuse  *LightProbe
	globalSpecular *LightProbe
	diffuseGrid    *Grid
	specularGrid   *Grid

	buffers  [bufCount]gfx.Buffer
	packed   gfx.Texture
	capacity int
	slots    []int32 // probe index to array slot, -1 when not packed
	owners   []int   // array slot to probe index, -1 when free
	active   []int
	overflow int
}

// NewVolumeManager lays out the probe grids described by the scene,
// snaps them onto terrain when requested and allocates the device
// resources. Probes are not baked until ComputeOrLoadProbes.
func NewVolumeManager(dev gfx.Device, cfg config.ProbesConfig, sc config.SceneConfig, placer TerrainPlacer, log *logger.Logger) (*VolumeManager, error) {
	if sc.PlaceOnTerrain && placer == nil {
		return nil, ErrTerrainMissing
	}
	m := &VolumeManager{
		log:      log.With("probes"),
		dev:      dev,
		cfg:      cfg,
		capacity: cfg.MaxCubemapsPerAxis * cfg.MaxCubemapsPerAxis * cfg.MaxCubemapsPerAxis,
	}
	global := mgl32.Vec3(sc.GlobalProbePosition)
	m.globalDiffuse = NewLightProbe(Diffuse, GlobalIndex, global)
	m.globalSpecular = NewLightProbe(Specular, GlobalIndex, global)

	var err error
	bmin, bmax := mgl32.Vec3(sc.BoundsMin), mgl32.Vec3(sc.BoundsMax)
	if m.diffuseGrid, m.diffuse, err = m.buildVolume(Diffuse, bmin, bmax, sc.DiffuseProbeSpacing, sc, placer); err != nil {
		return nil, err
	}
	if m.specularGrid, m.specular, err = m.buildVolume(Specular, bmin, bmax, sc.SpecularProbeSpacing, sc, placer); err != nil {
		return nil, err
	}

	if m.baker, err = NewBaker(dev, cfg, log); err != nil {
		return nil, err
	}
	if err := m.allocate(); err != nil {
		m.Release()
		return nil, err
	}
	m.log.Infof("%d diffuse and %d specular probes, %d specular slots", len(m.diffuse), len(m.specular), m.capacity)
	return m, nil
}

// buildVolume creates one grid and its probes. Spacing -1 disables the
// grid and leaves only the global probe.
func (m *VolumeManager) buildVolume(t ProbeType, bmin, bmax mgl32.Vec3, spacing float32, sc config.SceneConfig, placer TerrainPlacer) (*Grid, []*LightProbe, error) {
	if spacing == -1 {
		return nil, nil, nil
	}
	g, err := BuildGrid(bmin, bmax, spacing, sc.PlaceOnTerrain)
	if err != nil {
		return nil, nil, fmt.Errorf("%s grid: %w", t, err)
	}
	positions := g.ProbePositions()
	if sc.PlaceOnTerrain {
		if err := m.placeOnTerrain(placer, positions, sc.ProbeHeightDelta); err != nil {
			return nil, nil, fmt.Errorf("%s probe placement: %w", t, err)
		}
	}
	if err := g.AssignProbesToCells(positions); err != nil {
		return nil, nil, fmt.Errorf("%s grid: %w", t, err)
	}
	probes := make([]*LightProbe, len(positions))
	for i, p := range positions {
		probes[i] = NewLightProbe(t, i, p)
	}
	return g, probes, nil
}

func (m *VolumeManager) placeOnTerrain(placer TerrainPlacer, positions []mgl32.Vec3, heightDelta float32) error {
	batch := make([]mgl32.Vec4, len(positions))
	for i, p := range positions {
		batch[i] = p.Vec4(1)
	}
	size := 16 * len(batch)
	in, err := m.dev.CreateBuffer(gfx.BufferDesc{Name: "probe-placement-in", Size: size, Usage: gfx.UsageShaderResource})
	if err != nil {
		return err
	}
	defer m.dev.Release(in)
	out, err := m.dev.CreateBuffer(gfx.BufferDesc{Name: "probe-placement-out", Size: size, Usage: gfx.UsageUnorderedAccess})
	if err != nil {
		return err
	}
	defer m.dev.Release(out)
	if err := placer.PlaceOnTerrain(out, in, batch, -1, heightDelta); err != nil {
		return err
	}
	for i, b := range batch {
		if b[3] != 0 {
			positions[i][1] = b[1]
		}
	}
	return nil
}

func (m *VolumeManager) allocate() error {
	var err error
	m.packed, err = m.dev.CreateTexture(gfx.TextureDesc{
		Name:   "specular-probe-array",
		Kind:   gfx.TextureCubeArray,
		Format: gfx.FormatRGBA16F,
		Width:  m.cfg.FaceSize,
		Height: m.cfg.FaceSize,
		Layers: m.capacity * geom.CubeFaceCount,
		Mips:   m.baker.Scratch().SpecularMips(),
		Usage:  gfx.UsageShaderResource | gfx.UsageCopy,
	})
	if err != nil {
		return fmt.Errorf("failed to create specular probe array: %w", err)
	}
	m.dev.Transition(m.packed, gfx.StateShaderResource)

	m.slots = make([]int32, len(m.specular))
	for i := range m.slots {
		m.slots[i] = -1
	}
	m.owners = make([]int, m.capacity)
	for i := range m.owners {
		m.owners[i] = -1
	}

	var diffCells, specCells []int32
	if m.diffuseGrid != nil {
		diffCells = m.diffuseGrid.CellTable()
	}
	if m.specularGrid != nil {
		specCells = m.specularGrid.CellTable()
	}
	contents := [bufCount][]byte{
		bufDiffuseCells:      gfx.PackInts(diffCells),
		bufDiffusePositions:  gfx.PackVec4s(positionsOf(m.diffuse)),
		bufDiffuseSH:         make([]byte, 16*(len(m.diffuse)+1)*geom.SHCoefficientCount),
		bufSpecularCells:     gfx.PackInts(specCells),
		bufSpecularPositions: gfx.PackVec4s(positionsOf(m.specular)),
		bufSpecularSlots:     gfx.PackInts(m.slots),
	}
	names := [bufCount]string{"diffuse-cells", "diffuse-positions", "diffuse-sh", "specular-cells", "specular-positions", "specular-slots"}
	for i, data := range contents {
		// Devices reject empty buffers; a disabled grid binds one padding word.
		size := max(4, len(data))
		if m.buffers[i], err = m.dev.CreateBuffer(gfx.BufferDesc{Name: names[i], Size: size, Usage: gfx.UsageShaderResource}); err != nil {
			return fmt.Errorf("failed to create %s buffer: %w", names[i], err)
		}
		if err := m.upload(m.buffers[i], data); err != nil {
			return err
		}
	}
	return nil
}

func (m *VolumeManager) upload(b gfx.Buffer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	m.dev.Transition(b, gfx.StateCopyDest)
	if err := m.dev.WriteBuffer(b, 0, data); err != nil {
		return fmt.Errorf("failed to upload %s: %w", b.Name(), err)
	}
	m.dev.Transition(b, gfx.StateShaderResource)
	return nil
}

func positionsOf(probes []*LightProbe) []mgl32.Vec4 {
	out := make([]mgl32.Vec4, len(probes))
	for i, p := range probes {
		out[i] = p.Position.Vec4(1)
	}
	return out
}

// ComputeOrLoadProbes loads or bakes every probe, global ones included,
// then uploads the diffuse SH table.
func (m *VolumeManager) ComputeOrLoadProbes(objects []gfx.Box, env gfx.Environment) error {
	all := make([]*LightProbe, 0, len(m.diffuse)+len(m.specular)+2)
	all = append(all, m.diffuse...)
	all = append(all, m.globalDiffuse)
	all = append(all, m.specular...)
	all = append(all, m.globalSpecular)
	if err := m.baker.ComputeOrLoad(all, objects, env); err != nil {
		return err
	}

	sh := make([]mgl32.Vec4, 0, (len(m.diffuse)+1)*geom.SHCoefficientCount)
	for _, p := range append(m.diffuse, m.globalDiffuse) {
		for _, c := range p.SH {
			sh = append(sh, c.Vec4(0))
		}
	}
	return m.upload(m.buffers[bufDiffuseSH], gfx.PackVec4s(sh))
}

// RepackSpecularProbes culls specular probes against the camera-centred
// specular volume, evicts packed probes that left it, then admits newly
// visible probes in insertion order while slots remain. Probes that do
// not fit simply contribute no specular this frame.
func (m *VolumeManager) RepackSpecularProbes(cameraPos mgl32.Vec3) error {
	volume := geom.CenteredAABB(cameraPos, m.cfg.SpecularVolumeSize)
	changed := false
	for i, p := range m.specular {
		p.Culled = !volume.Contains(p.Position)
		if p.Culled && m.slots[i] >= 0 {
			m.owners[m.slots[i]] = -1
			m.slots[i] = -1
			changed = true
		}
	}

	m.active = m.active[:0]
	for i, p := range m.specular {
		if !p.Culled && m.packable(p) {
			m.active = append(m.active, i)
		}
	}

	free := 0
	overflow := 0
	for _, i := range m.active {
		if m.slots[i] >= 0 {
			continue
		}
		for free < m.capacity && m.owners[free] >= 0 {
			free++
		}
		if free == m.capacity {
			overflow++
			continue
		}
		if err := m.pack(i, free); err != nil {
			return err
		}
		changed = true
	}
	if overflow != m.overflow {
		if overflow > 0 {
			m.log.Debugf("%d specular probes near the camera did not fit in %d slots", overflow, m.capacity)
		}
		m.overflow = overflow
	}
	if changed {
		return m.upload(m.buffers[bufSpecularSlots], gfx.PackInts(m.slots))
	}
	return nil
}

// packable reports whether a probe's cube matches the array layout. A
// cube cached with other face settings never gets a slot.
func (m *VolumeManager) packable(p *LightProbe) bool {
	if p.Cubemap == nil {
		return false
	}
	d, a := p.Cubemap.Desc(), m.packed.Desc()
	return d.Width == a.Width && d.Mips == a.Mips && d.Format == a.Format
}

func (m *VolumeManager) pack(probe, slot int) error {
	src := m.specular[probe].Cubemap
	m.dev.Transition(src, gfx.StateCopySource)
	m.dev.Transition(m.packed, gfx.StateCopyDest)
	err := m.dev.CopySubresource(m.packed, slot*geom.CubeFaceCount, src, 0, geom.CubeFaceCount)
	m.dev.Transition(m.packed, gfx.StateShaderResource)
	m.dev.Transition(src, gfx.StateShaderResource)
	if err != nil {
		return fmt.Errorf("pack %s into slot %d: %w", m.specular[probe].CacheName(), slot, err)
	}
	m.slots[probe] = int32(slot)
	m.owners[slot] = probe
	return nil
}

// PackedCount returns how many specular probes currently hold a slot.
func (m *VolumeManager) PackedCount() int {
	n := 0
	for _, o := range m.owners {
		if o >= 0 {
			n++
		}
	}
	return n
}

// Capacity returns the number of slots in the specular array.
func (m *VolumeManager) Capacity() int { return m.capacity }

// Slot returns the array slot of specular probe i, or -1.
func (m *VolumeManager) Slot(i int) int { return int(m.slots[i]) }

// DiffuseProbes returns the diffuse grid probes.
func (m *VolumeManager) DiffuseProbes() []*LightProbe { return m.diffuse }

// SpecularProbes returns the specular grid probes.
func (m *VolumeManager) SpecularProbes() []*LightProbe { return m.specular }

// DiffuseGrid returns the diffuse grid, nil when disabled.
func (m *VolumeManager) DiffuseGrid() *Grid { return m.diffuseGrid }

// SpecularGrid returns the specular grid, nil when disabled.
func (m *VolumeManager) SpecularGrid() *Grid { return m.specularGrid }

// GlobalDiffuse returns the diffuse fallback probe.
func (m *VolumeManager) GlobalDiffuse() *LightProbe { return m.globalDiffuse }

// GlobalSpecular returns the specular fallback probe.
func (m *VolumeManager) GlobalSpecular() *LightProbe { return m.globalSpecular }

// Bindings returns the resources the lighting passes read. The manager
// keeps ownership.
func (m *VolumeManager) Bindings() Bindings {
	b := Bindings{
		Buffers:        m.buffers[:],
		SpecularArray:  m.packed,
		GlobalSpecular: m.globalSpecular.Cubemap,
		SpecularMips:   m.baker.Scratch().SpecularMips(),
		Diffuse:        gfx.ProbeGridParams{ProbeCount: int32(len(m.diffuse))},
		Specular:       gfx.ProbeGridParams{ProbeCount: int32(len(m.specular))},
	}
	if m.diffuseGrid != nil {
		b.Diffuse = m.diffuseGrid.Params(len(m.diffuse))
	}
	if m.specularGrid != nil {
		b.Specular = m.specularGrid.Params(len(m.specular))
	}
	return b
}

// Release frees every device resource the manager owns.
func (m *VolumeManager) Release() {
	for _, p := range m.specular {
		p.Release(m.dev)
	}
	m.globalSpecular.Release(m.dev)
	for i, b := range m.buffers {
		if b != nil {
			m.dev.Release(b)
			m.buffers[i] = nil
		}
	}
	if m.packed != nil {
		m.dev.Release(m.packed)
		m.packed = nil
	}
	if m.baker != nil {
		m.baker.Release()
	}
}
