package illumination

import "lumen/pkg/gfx"

// DebugContext carries the view toggles for one frame. The engine keeps
// its own copy, flips fields on key presses and hands it to Render.
type DebugContext struct {
	GIEnabled bool
	// VoxelView replaces cone tracing with a point view of cascade 0.
	VoxelView    bool
	IndirectOnly bool
	DirectOnly   bool
}

// voxelView reports whether the frame takes the voxel inspection path.
// Without GI the volumes are stale, so the view is ignored.
func (d DebugContext) voxelView() bool {
	return d.GIEnabled && d.VoxelView
}

func (d DebugContext) compositeMode() gfx.CompositeMode {
	switch {
	case d.voxelView():
		return gfx.CompositeVoxelDebug
	case d.IndirectOnly:
		return gfx.CompositeIndirectOnly
	case d.DirectOnly:
		return gfx.CompositeDirectOnly
	}
	return gfx.CompositeFull
}
