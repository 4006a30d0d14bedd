package tilemath

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"

	"github.com/pdok/tasker/geomhelp"
	"github.com/pdok/tasker/tms20"
)

func worldGrid(t *testing.T) *Grid {
	t.Helper()
	return MustLoadGrid(DefaultTileMatrixSet)
}

// bottomLeftGrid is 512 by 512 units from [0, 0] with rows counting upwards, tiles at zoom 2 are 128 units.
func bottomLeftGrid(t *testing.T) *Grid {
	t.Helper()
	tms, err := tms20.LoadJSONTileMatrixSet(filepath.Join("..", "tms20", "testdata", "SquareBottomLeftQuad.json"))
	require.NoError(t, err)
	g, err := NewGrid(tms)
	require.NoError(t, err)
	return g
}

// cellByCell returns the tiles of the zoom level whose interior meets the polygon's interior,
// testing every tile of the matrix.
func cellByCell(t *testing.T, g *Grid, polygon *geos.Geom, zoom int) []slippy.Tile {
	t.Helper()
	tm := g.TileMatrixSet().TileMatrices[zoom]
	var tiles []slippy.Tile
	for y := uint(0); y < tm.MatrixHeight; y++ {
		for x := uint(0); x < tm.MatrixWidth; x++ {
			tile := slippy.Tile{Z: uint(zoom), X: x, Y: y}
			e, ok := g.TileExtent(tile)
			require.True(t, ok)
			cell := geomhelp.ExtentToGEOS(e)
			if polygon.Intersects(cell) && !polygon.Touches(cell) {
				tiles = append(tiles, tile)
			}
		}
	}
	return tiles
}

func TestGrid_ResolutionToZoom(t *testing.T) {
	g := worldGrid(t)
	tests := []struct {
		resolution float64
		want       int
	}{
		{resolution: 0.703125, want: 0},
		{resolution: 10, want: 0},
		{resolution: 0.3515625, want: 1},
		{resolution: 0.5, want: 1},
		{resolution: 0.17578125, want: 2},
		{resolution: 0.000171661376953125, want: 12},
		{resolution: 0.00017, want: 13},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.resolution), func(t *testing.T) {
			assert.Equal(t, tt.want, g.ResolutionToZoom(tt.resolution))
		})
	}
}

func TestGrid_ZoomResolutionRoundTrip(t *testing.T) {
	g := worldGrid(t)
	for zoom := 0; zoom <= 30; zoom++ {
		assert.Equalf(t, zoom, g.ResolutionToZoom(g.ZoomToResolution(zoom)), "zoom %d", zoom)
	}
}

func TestGrid_ResolutionToZoomIsNonIncreasing(t *testing.T) {
	g := worldGrid(t)
	previous := g.ResolutionToZoom(1e-9)
	for resolution := 1e-9; resolution < 2; resolution *= 1.07 {
		zoom := g.ResolutionToZoom(resolution)
		require.LessOrEqualf(t, zoom, previous, "resolution %v", resolution)
		previous = zoom
	}
}

func TestGrid_SnapExtent(t *testing.T) {
	g := worldGrid(t)
	tests := []struct {
		name   string
		extent geom.Extent
		zoom   int
		want   geom.Extent
	}{
		{name: "inside one tile", extent: geom.Extent{10, 10, 20, 20}, zoom: 1, want: geom.Extent{0, 0, 90, 90}},
		{name: "zoom 0", extent: geom.Extent{10, 10, 20, 20}, zoom: 0, want: geom.Extent{0, -90, 180, 90}},
		{name: "across tiles", extent: geom.Extent{-100, -10, 10, 10}, zoom: 1, want: geom.Extent{-180, -90, 90, 90}},
		{name: "already aligned", extent: geom.Extent{0, 0, 45, 45}, zoom: 2, want: geom.Extent{0, 0, 45, 45}},
		{name: "clipped to the world", extent: geom.Extent{-200, -100, 200, 100}, zoom: 0, want: geom.Extent{-180, -90, 180, 90}},
		{name: "no such zoom", extent: geom.Extent{1, 2, 3, 4}, zoom: 99, want: geom.Extent{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.SnapExtent(tt.extent, tt.zoom))
		})
	}
}

func TestGrid_SnapExtent_bottomLeft(t *testing.T) {
	g := bottomLeftGrid(t)
	tests := []struct {
		name   string
		extent geom.Extent
		zoom   int
		want   geom.Extent
	}{
		{name: "zoom 0", extent: geom.Extent{10, 10, 20, 20}, zoom: 0, want: geom.Extent{0, 0, 512, 512}},
		{name: "bottom rows", extent: geom.Extent{10, 10, 200, 150}, zoom: 2, want: geom.Extent{0, 0, 256, 256}},
		{name: "top rows", extent: geom.Extent{130, 300, 140, 310}, zoom: 2, want: geom.Extent{128, 256, 256, 384}},
		{name: "already aligned", extent: geom.Extent{64, 128, 192, 192}, zoom: 3, want: geom.Extent{64, 128, 192, 192}},
		{name: "clipped to the matrix", extent: geom.Extent{-50, 400, 600, 700}, zoom: 1, want: geom.Extent{0, 256, 512, 512}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.SnapExtent(tt.extent, tt.zoom))
		})
	}
}

func TestGrid_TilesForPolygon_bottomLeft(t *testing.T) {
	g := bottomLeftGrid(t)
	tests := []struct {
		name    string
		polygon *geos.Geom
		zoom    int
		want    []slippy.Tile
	}{
		{
			name:    "rectangle starts at the bottom row",
			polygon: geomhelp.ExtentToGEOS(geom.Extent{10, 10, 200, 150}),
			zoom:    2,
			want:    []slippy.Tile{{Z: 2, X: 0, Y: 0}, {Z: 2, X: 1, Y: 0}, {Z: 2, X: 0, Y: 1}, {Z: 2, X: 1, Y: 1}},
		},
		{
			name:    "triangle skips the tile touching its hypotenuse in a corner",
			polygon: geos.NewPolygon([][][]float64{{{0, 0}, {256, 0}, {0, 256}, {0, 0}}}),
			zoom:    2,
			want:    []slippy.Tile{{Z: 2, X: 0, Y: 0}, {Z: 2, X: 1, Y: 0}, {Z: 2, X: 0, Y: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(g.TilesForPolygon(tt.polygon, tt.zoom))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, cellByCell(t, g, tt.polygon, tt.zoom), got)
		})
	}
}

func TestGrid_TilesForPolygon(t *testing.T) {
	g := worldGrid(t)
	triangle := geos.NewPolygon([][][]float64{{{0, 0}, {90, 0}, {0, 90}, {0, 0}}})
	tests := []struct {
		name    string
		polygon *geos.Geom
		zoom    int
		want    []slippy.Tile
	}{
		{
			name:    "aligned square is one tile",
			polygon: geomhelp.ExtentToGEOS(geom.Extent{0, 0, 90, 90}),
			zoom:    1,
			want:    []slippy.Tile{{Z: 1, X: 2, Y: 0}},
		},
		{
			name:    "tiles only touching the boundary are skipped",
			polygon: geomhelp.ExtentToGEOS(geom.Extent{0, 0, 45, 45}),
			zoom:    2,
			want:    []slippy.Tile{{Z: 2, X: 4, Y: 1}},
		},
		{
			name:    "triangle skips the tile touching its hypotenuse in a corner",
			polygon: triangle,
			zoom:    2,
			want:    []slippy.Tile{{Z: 2, X: 4, Y: 0}, {Z: 2, X: 4, Y: 1}, {Z: 2, X: 5, Y: 1}},
		},
		{
			name:    "row major order",
			polygon: geomhelp.ExtentToGEOS(geom.Extent{-10, -10, 10, 10}),
			zoom:    1,
			want:    []slippy.Tile{{Z: 1, X: 1, Y: 0}, {Z: 1, X: 2, Y: 0}, {Z: 1, X: 1, Y: 1}, {Z: 1, X: 2, Y: 1}},
		},
		{
			name:    "out of range zoom is empty",
			polygon: triangle,
			zoom:    99,
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(g.TilesForPolygon(tt.polygon, tt.zoom))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGrid_TilesForPolygonIsRestartable(t *testing.T) {
	g := worldGrid(t)
	polygon := geos.NewPolygon([][][]float64{{{-30, -20}, {50, -5}, {10, 60}, {-30, -20}}})
	tiles := g.TilesForPolygon(polygon, 4)
	first := slices.Collect(tiles)
	second := slices.Collect(tiles)
	require.NotEmpty(t, first)
	require.Equal(t, first, second)
	require.Equal(t, first, slices.Collect(g.TilesForPolygon(polygon, 4)))
}

func TestGrid_TilesForPolygon_matchesCellByCell(t *testing.T) {
	g := worldGrid(t)
	lShape := geomhelp.ExtentToGEOS(geom.Extent{0, 0, 10, 10}).Difference(geomhelp.ExtentToGEOS(geom.Extent{5, 5, 15, 15}))
	uShape := geos.NewPolygon([][][]float64{{
		{-40, -30}, {40, -30}, {40, 30}, {20, 30}, {20, -10}, {-20, -10}, {-20, 30}, {-40, 30}, {-40, -30},
	}})
	withHole := geos.NewPolygon([][][]float64{
		{{-60, -40}, {60, -40}, {60, 40}, {-60, 40}, {-60, -40}},
		{{-10, -10}, {-10, 10}, {10, 10}, {10, -10}, {-10, -10}},
	})
	apart := geomhelp.ExtentToGEOS(geom.Extent{-100, 10, -70, 20}).Union(geomhelp.ExtentToGEOS(geom.Extent{70, 12, 100, 25}))
	triangle := geos.NewPolygon([][][]float64{{{-30, -20}, {50, -5}, {10, 60}, {-30, -20}}})
	for name, polygon := range map[string]*geos.Geom{
		"L shape":   lShape,
		"U shape":   uShape,
		"with hole": withHole,
		"apart":     apart,
		"triangle":  triangle,
	} {
		for zoom := 2; zoom <= 6; zoom++ {
			t.Run(fmt.Sprintf("%s/%d", name, zoom), func(t *testing.T) {
				assert.Equal(t, cellByCell(t, g, polygon, zoom), slices.Collect(g.TilesForPolygon(polygon, zoom)))
			})
		}
	}
}

func TestGrid_TileRangesForPolygon(t *testing.T) {
	g := worldGrid(t)
	uShape := geos.NewPolygon([][][]float64{{
		{0, 0}, {90, 0}, {90, 90}, {67.5, 90}, {67.5, 22.5}, {22.5, 22.5}, {22.5, 90}, {0, 90}, {0, 0},
	}})
	assert.Equal(t, []TileRange{
		{Zoom: 3, MinX: 8, MinY: 0, MaxX: 9, MaxY: 1},
		{Zoom: 3, MinX: 11, MinY: 0, MaxX: 12, MaxY: 1},
		{Zoom: 3, MinX: 8, MinY: 1, MaxX: 9, MaxY: 2},
		{Zoom: 3, MinX: 11, MinY: 1, MaxX: 12, MaxY: 2},
		{Zoom: 3, MinX: 8, MinY: 2, MaxX: 9, MaxY: 3},
		{Zoom: 3, MinX: 11, MinY: 2, MaxX: 12, MaxY: 3},
		{Zoom: 3, MinX: 8, MinY: 3, MaxX: 12, MaxY: 4},
	}, slices.Collect(g.TileRangesForPolygon(uShape, 3)))
}

func TestGrid_TileRangesForPolygon_deepZoom(t *testing.T) {
	g := worldGrid(t)
	// one tile at zoom 5 is 8192 by 8192 tiles at zoom 18
	const z5 = 180.0 / 32
	const side = 8192
	lShape := geomhelp.ExtentToGEOS(geom.Extent{0, 0, 2 * z5, 2 * z5}).
		Difference(geomhelp.ExtentToGEOS(geom.Extent{z5, z5, 3 * z5, 3 * z5}))

	ranges := slices.Collect(g.TileRangesForPolygon(lShape, 18))
	require.Len(t, ranges, 2*side)
	assert.Equal(t, TileRange{Zoom: 18, MinX: 262144, MinY: 114688, MaxX: 262144 + side, MaxY: 114689}, ranges[0])
	assert.Equal(t, TileRange{Zoom: 18, MinX: 262144, MinY: 131071, MaxX: 262144 + 2*side, MaxY: 131072}, ranges[len(ranges)-1])
	assert.Equal(t, uint(3*side*side), CountTiles(ranges))
}

func TestGrid_TileExtent(t *testing.T) {
	g := worldGrid(t)
	e, ok := g.TileExtent(slippy.Tile{Z: 1, X: 0, Y: 1})
	require.True(t, ok)
	assert.Equal(t, geom.Extent{-180, -90, -90, 0}, e)
}

func TestNewGrid_rejectsNonQuadTree(t *testing.T) {
	tms := worldGrid(t).TileMatrixSet()
	broken := tms
	broken.TileMatrices = maps.Clone(tms.TileMatrices)
	tm := broken.TileMatrices[3]
	tm.CellSize *= 3
	broken.TileMatrices[3] = tm
	_, err := NewGrid(broken)
	require.Error(t, err)
}
