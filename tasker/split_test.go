package tasker

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/tasker/overlap"
	"github.com/pdok/tasker/tilemath"
	"github.com/pdok/tasker/zoomrange"
)

func square(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func testSplitLayer(footprint geom.Geometry) SplitLayer {
	return SplitLayer{
		DiscreteID:        "orthophoto",
		Version:           "1.0",
		OriginDirectory:   "origin",
		LayerRelativePath: "orthophoto/layer",
		Footprint:         footprint,
	}
}

func TestZoomDiff(t *testing.T) {
	tests := []struct {
		bboxSizeTiles int
		want          int
	}{
		{1, 0},
		{2, 0},
		{4, 0},
		{8, 1},
		{31, 1},
		{32, 2},
		{10000, 6},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, ZoomDiff(tt.bboxSizeTiles), "bboxSizeTiles %d", tt.bboxSizeTiles)
	}
}

func TestNewSplitPlanner_invalid(t *testing.T) {
	_, err := NewSplitPlanner(tilemath.MustLoadGrid(tilemath.DefaultTileMatrixSet), 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewSplitPlanner(nil, 10)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSplitPlanner_Plan(t *testing.T) {
	planner, err := NewSplitPlanner(tilemath.MustLoadGrid(tilemath.DefaultTileMatrixSet), 4)
	require.NoError(t, err)
	ranges := []zoomrange.ZoomRange{{MinZoom: 0, MaxZoom: 2}, {MinZoom: 3, MaxZoom: 5}}

	tasks, err := planner.Plan(testSplitLayer(square(0, 0, 10, 10)), ranges)
	require.NoError(t, err)
	got := slices.Collect(tasks)

	span := 180.0 / 32
	wantBBoxes := []geom.Extent{
		{0, 0, 45, 45},
		{0, 90 - 15*span, span, 90 - 14*span},
		{span, 90 - 15*span, 2 * span, 90 - 14*span},
		{0, 90 - 16*span, span, 90 - 15*span},
		{span, 90 - 16*span, 2 * span, 90 - 15*span},
	}
	require.Len(t, got, len(wantBBoxes))
	for i, task := range got {
		assert.InDeltaSlice(t, wantBBoxes[i][:], task.BBox[:], 1e-9, "task %d", i)
		assert.Equal(t, "orthophoto", task.DiscreteID)
		assert.Equal(t, "orthophoto/layer", task.LayerRelativePath)
	}
	assert.Equal(t, 0, got[0].MinZoom)
	assert.Equal(t, 2, got[0].MaxZoom)
	for _, task := range got[1:] {
		assert.Equal(t, 3, task.MinZoom)
		assert.Equal(t, 5, task.MaxZoom)
	}
}

func TestSplitPlanner_Plan_deterministic(t *testing.T) {
	planner, err := NewSplitPlanner(tilemath.MustLoadGrid(tilemath.DefaultTileMatrixSet), 4)
	require.NoError(t, err)
	ranges := []zoomrange.ZoomRange{{MinZoom: 0, MaxZoom: 2}, {MinZoom: 3, MaxZoom: 5}}
	footprint := geom.Polygon{{{3, 4}, {40, 1}, {22, 30}, {3, 4}}}

	first, err := planner.Plan(testSplitLayer(footprint), ranges)
	require.NoError(t, err)
	second, err := planner.Plan(testSplitLayer(footprint), ranges)
	require.NoError(t, err)

	firstTasks := slices.Collect(first)
	assert.NotEmpty(t, firstTasks)
	assert.Equal(t, firstTasks, slices.Collect(second))
	assert.Equal(t, firstTasks, slices.Collect(first), "iterating again yields the same tasks")
}

func TestSplitPlanner_Plan_coarsensEnumeration(t *testing.T) {
	planner, err := NewSplitPlanner(tilemath.MustLoadGrid(tilemath.DefaultTileMatrixSet), 10000)
	require.NoError(t, err)
	tasks, err := planner.Plan(testSplitLayer(square(0, 0, 10, 10)), []zoomrange.ZoomRange{{MinZoom: 0, MaxZoom: 5}})
	require.NoError(t, err)
	got := slices.Collect(tasks)
	require.Len(t, got, 1)
	assert.Equal(t, geom.Extent{0, -90, 180, 90}, got[0].BBox)
	assert.Equal(t, 5, got[0].MaxZoom)
}

func TestSplitPlanner_Plan_invalidInput(t *testing.T) {
	planner, err := NewSplitPlanner(tilemath.MustLoadGrid(tilemath.DefaultTileMatrixSet), 4)
	require.NoError(t, err)

	bowtie := geom.Polygon{{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}}}
	_, err = planner.Plan(testSplitLayer(bowtie), []zoomrange.ZoomRange{{MinZoom: 0, MaxZoom: 2}})
	var geometryErr *overlap.GeometryError
	require.True(t, errors.As(err, &geometryErr))
	assert.Contains(t, err.Error(), "orthophoto/layer")

	_, err = planner.Plan(testSplitLayer(square(0, 0, 1, 1)), []zoomrange.ZoomRange{{MinZoom: 3, MaxZoom: 2}})
	assert.ErrorIs(t, err, zoomrange.ErrInvalidBand)
}
