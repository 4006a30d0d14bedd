package tasker

import (
	"errors"
	"fmt"
	"iter"

	"github.com/go-spatial/geom"
	"github.com/twpayne/go-geos"

	"github.com/pdok/tasker/geomhelp"
	"github.com/pdok/tasker/layer"
	"github.com/pdok/tasker/overlap"
	"github.com/pdok/tasker/tilemath"
)

// MergeLayer is a source to merge together with its tiling scheme.
type MergeLayer struct {
	layer.Source
	Grid layer.Grid
}

// MergeTarget is where the merged tiles go.
type MergeTarget struct {
	Path   string
	Format string
	IsNew  bool
	Extent geom.Extent
}

// ZoomStats summarizes the partition of one zoom level.
type ZoomStats struct {
	Zoom   int
	Groups int
	// Members is the number of sources of each group, in emission order.
	Members []int
}

// MergePlanner partitions the sources per zoom level and batches the tiles of every partition cell.
type MergePlanner struct {
	grid          *tilemath.Grid
	tileBatchSize int
	storageType   string

	// OnZoom, when set, is called for every zoom level once its partition is known.
	OnZoom func(ZoomStats)
}

// NewMergePlanner creates a planner that puts tileBatchSize tiles in every task and
// describes the target with the storage type.
func NewMergePlanner(grid *tilemath.Grid, tileBatchSize int, storageType string) (*MergePlanner, error) {
	if grid == nil {
		return nil, fmt.Errorf("%w: no grid", ErrInvalidParameter)
	}
	if tileBatchSize < 1 {
		return nil, fmt.Errorf("%w: tileBatchSize must be positive, got %d", ErrInvalidParameter, tileBatchSize)
	}
	if storageType == "" {
		return nil, fmt.Errorf("%w: no storage type", ErrInvalidParameter)
	}
	return &MergePlanner{grid: grid, tileBatchSize: tileBatchSize, storageType: storageType}, nil
}

type zoomPartition struct {
	zoom   int
	groups []overlap.LabelledGroup[MergeLayer]
}

// Plan returns the merge tasks from maxZoom down to zoom 0. Within a zoom level the tasks follow the partition
// (sources shared by most layers first), within a partition cell the tiles are in row order.
// All partitions are computed before returning so geometry errors surface before the first task.
// Zoom levels deeper than the grid supports are skipped.
func (p *MergePlanner) Plan(target MergeTarget, layers []MergeLayer, maxZoom int) (iter.Seq[MergeTaskParams], error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers to merge", ErrInvalidParameter)
	}
	if maxZoom < 0 {
		return nil, fmt.Errorf("%w: negative max zoom %d", ErrInvalidParameter, maxZoom)
	}
	extents := make([]geom.Extent, len(layers))
	for i, l := range layers {
		e, err := geomhelp.GeometryExtent(l.Footprint)
		if err != nil {
			return nil, fmt.Errorf("footprint of %v: %w", l, err)
		}
		extents[i] = e
	}

	start := min(maxZoom, p.grid.MaxZoom())
	partitions := make([]zoomPartition, 0, start+1)
	for zoom := start; zoom >= 0; zoom-- {
		snapped := make([]*geos.Geom, len(layers))
		for i, e := range extents {
			snapped[i] = geomhelp.ExtentToGEOS(p.grid.SnapExtent(e, zoom))
		}
		groups, err := overlap.PartitionOf(layers, snapped)
		if err != nil {
			return nil, fmt.Errorf("partitioning at zoom %d: %w", zoom, describeLayers(err, layers))
		}
		partitions = append(partitions, zoomPartition{zoom: zoom, groups: groups})
		if p.OnZoom != nil {
			p.OnZoom(statsOf(zoom, groups))
		}
	}

	return func(yield func(MergeTaskParams) bool) {
		for _, zp := range partitions {
			for _, group := range zp.groups {
				tiles := p.grid.TileRangesForPolygon(group.Geometry, zp.zoom)
				for batch := range tilemath.BatchTileRanges(p.tileBatchSize, tiles) {
					task := MergeTaskParams{
						TargetFormat: target.Format,
						IsNewTarget:  target.IsNew,
						Sources:      p.sourcesOf(target, group.Items),
						Batches:      batch,
					}
					if !yield(task) {
						return
					}
				}
			}
		}
	}, nil
}

// sourcesOf describes the target followed by the group's layers. Every call returns new descriptors
// with their own copy of the target extent.
func (p *MergePlanner) sourcesOf(target MergeTarget, items []MergeLayer) []MergeSourceDescriptor {
	sources := make([]MergeSourceDescriptor, 0, len(items)+1)
	sources = append(sources, MergeSourceDescriptor{Type: p.storageType, Path: target.Path})
	for _, l := range items {
		extent := target.Extent
		sources = append(sources, MergeSourceDescriptor{
			Type:   l.Format(),
			Path:   l.Path(),
			Grid:   l.Grid,
			Extent: &extent,
		})
	}
	return sources
}

func statsOf(zoom int, groups []overlap.LabelledGroup[MergeLayer]) ZoomStats {
	members := make([]int, len(groups))
	for i, g := range groups {
		members[i] = len(g.Members)
	}
	return ZoomStats{Zoom: zoom, Groups: len(groups), Members: members}
}

// describeLayers names the sources involved in a geometry error.
func describeLayers(err error, layers []MergeLayer) error {
	var geometryErr *overlap.GeometryError
	if !errors.As(err, &geometryErr) {
		return err
	}
	names := make([]string, len(geometryErr.Members))
	for i, m := range geometryErr.Members {
		names[i] = layers[m].Path()
	}
	return fmt.Errorf("sources %v: %w", names, err)
}
