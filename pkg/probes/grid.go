package probes

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/util"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// Cell capacities. A 3D cell is bounded by its 8 corner probes; a 2D cell
// by 4.
const (
	MaxProbesPerCell3D = 8
	MaxProbesPerCell2D = 4
)

// cellEpsilon widens cell boxes so probes on a shared face land in every
// neighbour despite float rounding.
const cellEpsilon = 1e-3

// Cell is one partition of the grid. Cells live between probes.
type Cell struct {
	Index    int
	Position mgl32.Vec3 // centre
	Probes   []int
}

// Grid is a uniform probe lattice partitioned into cells.
type Grid struct {
	Min         mgl32.Vec3
	Spacing     float32
	Is2D        bool
	ProbeCounts [3]int
	CellCounts  [3]int
	Cells       []Cell
	capacity    int
}

// BuildGrid lays a lattice over [min, max] with probes every spacing
// units. When is2D the Y axis collapses to one layer of probes and cells,
// and cell lookup ignores Y.
func BuildGrid(min, max mgl32.Vec3, spacing float32, is2D bool) (*Grid, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("probe spacing %g must be positive", spacing)
	}
	g := &Grid{Min: min, Spacing: spacing, Is2D: is2D, capacity: MaxProbesPerCell3D}
	if is2D {
		g.capacity = MaxProbesPerCell2D
	}
	for a := 0; a < 3; a++ {
		extent := max[a] - min[a]
		if extent < 0 {
			return nil, fmt.Errorf("probe bounds: max below min on axis %d", a)
		}
		g.ProbeCounts[a] = int(math32.Ceil(extent/spacing-1e-4)) + 1
		g.CellCounts[a] = util.Clamp(g.ProbeCounts[a]-1, 1, g.ProbeCounts[a])
	}
	if is2D {
		g.ProbeCounts[1] = 1
		g.CellCounts[1] = 1
	}
	g.Cells = make([]Cell, g.CellCounts[0]*g.CellCounts[1]*g.CellCounts[2])
	for i := range g.Cells {
		g.Cells[i] = Cell{
			Index:    i,
			Position: g.CellBounds(i).Center(),
			Probes:   make([]int, 0, g.capacity),
		}
	}
	return g, nil
}

// Capacity returns the per-cell probe budget.
func (g *Grid) Capacity() int { return g.capacity }

// ProbeCount returns the number of lattice probes.
func (g *Grid) ProbeCount() int {
	return g.ProbeCounts[0] * g.ProbeCounts[1] * g.ProbeCounts[2]
}

// ProbePositions returns the lattice positions, X fastest then Z then Y.
func (g *Grid) ProbePositions() []mgl32.Vec3 {
	out := make([]mgl32.Vec3, 0, g.ProbeCount())
	for y := 0; y < g.ProbeCounts[1]; y++ {
		for z := 0; z < g.ProbeCounts[2]; z++ {
			for x := 0; x < g.ProbeCounts[0]; x++ {
				out = append(out, g.Min.Add(mgl32.Vec3{float32(x), float32(y), float32(z)}.Mul(g.Spacing)))
			}
		}
	}
	return out
}

func (g *Grid) cellCoords(i int) (x, y, z int) {
	x = i % g.CellCounts[0]
	z = (i / g.CellCounts[0]) % g.CellCounts[2]
	y = i / (g.CellCounts[0] * g.CellCounts[2])
	return
}

// CellBounds returns the world box of cell i. 2D cells span all heights.
func (g *Grid) CellBounds(i int) geom.AABB {
	x, y, z := g.cellCoords(i)
	lo := g.Min.Add(mgl32.Vec3{float32(x), float32(y), float32(z)}.Mul(g.Spacing))
	b := geom.AABB{Min: lo, Max: lo.Add(mgl32.Vec3{g.Spacing, g.Spacing, g.Spacing})}
	if g.Is2D {
		b.Min[1], b.Max[1] = math32.Inf(-1), math32.Inf(1)
	}
	return b
}

// AddProbeToCells adds probe index to every cell whose box contains pos.
// A full cell is a configuration error.
func (g *Grid) AddProbeToCells(index int, pos mgl32.Vec3) error {
	for i := range g.Cells {
		if !g.CellBounds(i).Expand(cellEpsilon).Contains(pos) {
			continue
		}
		c := &g.Cells[i]
		if len(c.Probes) >= g.capacity {
			return fmt.Errorf("cell %d already holds %d probes, probe %d at %v: %w", i, len(c.Probes), index, pos, ErrCellCapacity)
		}
		c.Probes = append(c.Probes, index)
	}
	return nil
}

// AssignProbesToCells resets the cells and adds every probe, index by
// position in the slice.
func (g *Grid) AssignProbesToCells(positions []mgl32.Vec3) error {
	for i := range g.Cells {
		g.Cells[i].Probes = g.Cells[i].Probes[:0]
	}
	for i, p := range positions {
		if err := g.AddProbeToCells(i, p); err != nil {
			return err
		}
	}
	return nil
}

// GetCellIndex returns the cell holding pos, or -1 outside the grid.
// Positions on the far face resolve to the last cell.
func (g *Grid) GetCellIndex(pos mgl32.Vec3) int {
	var idx [3]int
	for a := 0; a < 3; a++ {
		if g.Is2D && a == 1 {
			continue
		}
		f := (pos[a] - g.Min[a]) / g.Spacing
		if f < -1e-4 || f > float32(g.CellCounts[a])+1e-4 {
			return -1
		}
		idx[a] = util.Clamp(int(math32.Floor(f)), 0, g.CellCounts[a]-1)
	}
	return (idx[1]*g.CellCounts[2]+idx[2])*g.CellCounts[0] + idx[0]
}

// CellTable flattens the cells into capacity-wide rows padded with -1.
func (g *Grid) CellTable() []int32 {
	out := make([]int32, len(g.Cells)*g.capacity)
	for i, c := range g.Cells {
		row := out[i*g.capacity : (i+1)*g.capacity]
		for k := range row {
			row[k] = -1
		}
		for k, p := range c.Probes {
			row[k] = int32(p)
		}
	}
	return out
}

// Params describes the grid to the lighting passes.
func (g *Grid) Params(probeCount int) gfx.ProbeGridParams {
	return gfx.ProbeGridParams{
		Enabled:      true,
		Min:          g.Min,
		Spacing:      g.Spacing,
		CellCounts:   [3]int32{int32(g.CellCounts[0]), int32(g.CellCounts[1]), int32(g.CellCounts[2])},
		Is2D:         g.Is2D,
		CellCapacity: int32(g.capacity),
		ProbeCount:   int32(probeCount),
	}
}
