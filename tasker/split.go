package tasker

import (
	"fmt"
	"iter"
	"math"

	"github.com/go-spatial/geom"
	"github.com/twpayne/go-geos"

	"github.com/pdok/tasker/geomhelp"
	"github.com/pdok/tasker/overlap"
	"github.com/pdok/tasker/tilemath"
	"github.com/pdok/tasker/zoomrange"
)

// SplitLayer is the single new source of a split ingestion.
type SplitLayer struct {
	DiscreteID        string
	Version           string
	OriginDirectory   string
	LayerRelativePath string
	Footprint         geom.Geometry
}

// SplitPlanner cuts a footprint into coarse tiles, one task per tile per zoom range.
type SplitPlanner struct {
	grid     *tilemath.Grid
	zoomDiff int
}

// NewSplitPlanner creates a planner whose tasks each cover about bboxSizeTiles tiles at the deepest zoom level of their range.
func NewSplitPlanner(grid *tilemath.Grid, bboxSizeTiles int) (*SplitPlanner, error) {
	if grid == nil {
		return nil, fmt.Errorf("%w: no grid", ErrInvalidParameter)
	}
	if bboxSizeTiles < 1 {
		return nil, fmt.Errorf("%w: bboxSizeTiles must be positive, got %d", ErrInvalidParameter, bboxSizeTiles)
	}
	return &SplitPlanner{grid: grid, zoomDiff: ZoomDiff(bboxSizeTiles)}, nil
}

// ZoomDiff is the number of zoom levels the enumeration zoom lies above a range's MaxZoom.
func ZoomDiff(bboxSizeTiles int) int {
	diff := math.Floor(math.Log2(float64(bboxSizeTiles)/2) / 2)
	if diff < 0 || math.IsNaN(diff) {
		return 0
	}
	return int(diff)
}

// EnumerationZoom is the zoom level whose tiles become the bboxes of the tasks for the range.
func (p *SplitPlanner) EnumerationZoom(r zoomrange.ZoomRange) int {
	return max(0, r.MaxZoom-p.zoomDiff)
}

// Plan returns the split tasks of the layer, range by range in the given order and row by row within a range.
// The footprint is checked before anything is returned, the tiles are enumerated while iterating.
func (p *SplitPlanner) Plan(l SplitLayer, ranges []zoomrange.ZoomRange) (iter.Seq[SplitTaskParams], error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	footprint, err := splitFootprint(l.Footprint)
	if err != nil {
		return nil, fmt.Errorf("footprint of %v: %w", l.LayerRelativePath, err)
	}

	return func(yield func(SplitTaskParams) bool) {
		for _, r := range ranges {
			for tile := range p.grid.TilesForPolygon(footprint, p.EnumerationZoom(r)) {
				bbox, _ := p.grid.TileExtent(tile)
				task := SplitTaskParams{
					DiscreteID:        l.DiscreteID,
					Version:           l.Version,
					OriginDirectory:   l.OriginDirectory,
					MinZoom:           r.MinZoom,
					MaxZoom:           r.MaxZoom,
					LayerRelativePath: l.LayerRelativePath,
					BBox:              bbox,
				}
				if !yield(task) {
					return
				}
			}
		}
	}, nil
}

func splitFootprint(g geom.Geometry) (*geos.Geom, error) {
	footprint, err := geomhelp.ToGEOS(g)
	if err != nil {
		return nil, err
	}
	if !footprint.IsValid() {
		return nil, &overlap.GeometryError{
			Members:    []int{0},
			Footprints: []string{geomhelp.WktMustEncode(footprint, geomhelp.DefaultWktMaxLen)},
			Err:        fmt.Errorf("invalid footprint: %s", footprint.IsValidReason()),
		}
	}
	return footprint, nil
}
