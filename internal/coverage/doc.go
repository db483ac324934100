// Package coverage implements the coverage raster cache: a dense, world-
// anchored RGBA grid recording which ground an implement has already worked.
//
// Responsibilities: grid allocation and resolution coarsening, incremental and
// full cell updates from the guidance producer, background raster compositing,
// level-of-detail caching, single-blit rendering, and snapshot persistence.
// Key types: CoverageGrid, CoverageManager, Renderer, CoverageSnapshot.
//
// Dependency rule: this package never touches SQL; snapshot storage is behind
// the SnapshotStore interface (implemented by internal/coveragedb).
package coverage
