package engine

import "lumen/pkg/illumination"

// Toggles are the debug keys pressed in one frame.
type Toggles struct {
	GI           bool
	VoxelView    bool
	IndirectOnly bool
	DirectOnly   bool
}

// Any reports whether any toggle fired.
func (t Toggles) Any() bool {
	return t.GI || t.VoxelView || t.IndirectOnly || t.DirectOnly
}

// Apply flips the matching fields of d. Indirect-only and direct-only
// exclude each other.
func (t Toggles) Apply(d illumination.DebugContext) illumination.DebugContext {
	if t.GI {
		d.GIEnabled = !d.GIEnabled
	}
	if t.VoxelView {
		d.VoxelView = !d.VoxelView
	}
	if t.IndirectOnly {
		d.IndirectOnly = !d.IndirectOnly
		if d.IndirectOnly {
			d.DirectOnly = false
		}
	}
	if t.DirectOnly {
		d.DirectOnly = !d.DirectOnly
		if d.DirectOnly {
			d.IndirectOnly = false
		}
	}
	return d
}
