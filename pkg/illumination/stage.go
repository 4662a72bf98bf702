package illumination

// Stage is one step of the per-frame illumination pipeline.
type Stage int

// Stages in the order a frame visits them.
const (
	StageIdle Stage = iota
	StageGBuffer
	StageCullVoxels
	StageVoxelize
	StageVoxelDebugView
	StageConeTrace
	StageUpsampleBlur
	StageClearIndirect
	StageDeferredLighting
	StageForwardLighting
	StageComposite
)

var stageNames = [...]string{
	StageIdle:             "idle",
	StageGBuffer:          "gbuffer",
	StageCullVoxels:       "cull-voxels",
	StageVoxelize:         "voxelize",
	StageVoxelDebugView:   "voxel-debug-view",
	StageConeTrace:        "cone-trace",
	StageUpsampleBlur:     "upsample-blur",
	StageClearIndirect:    "clear-indirect",
	StageDeferredLighting: "deferred-lighting",
	StageForwardLighting:  "forward-lighting",
	StageComposite:        "composite",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
