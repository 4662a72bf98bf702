package probes

import "errors"

var (
	// ErrCellCapacity is returned when more probes fall into a cell than
	// the grid allows. Probe spacing is too dense for the cell budget.
	ErrCellCapacity = errors.New("probe cell capacity exceeded")
	// ErrTerrainMissing is returned when terrain placement is requested
	// without a terrain to place on.
	ErrTerrainMissing = errors.New("terrain placement requested without terrain")
	// ErrPersist is returned when a baked probe cannot be written to the cache.
	ErrPersist = errors.New("failed to persist baked probe")
)
