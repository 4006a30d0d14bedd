// Package tilemath converts between resolutions and zoom levels and enumerates the tiles
// of a quad tree tile matrix set that cover a polygon.
package tilemath

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"github.com/twpayne/go-geos"

	"github.com/pdok/tasker/geomhelp"
	"github.com/pdok/tasker/mapslicehelp"
	"github.com/pdok/tasker/mathhelp"
	"github.com/pdok/tasker/tms20"
)

// DefaultTileMatrixSet is the geographic grid with two tiles at zoom level 0.
const DefaultTileMatrixSet = "WorldCRS84Quad"

// zoomEpsilon absorbs floating point noise when a resolution is (almost) exactly a zoom level's.
const zoomEpsilon = 1e-9

// Grid is a quad tree tile matrix set: every zoom level halves the cell size of the previous one.
type Grid struct {
	tms           tms20.TileMatrixSet
	zeroCellSize  float64
	zeroTileWidth uint
}

// NewGrid checks that the tile matrix set is a quad tree starting at zoom 0.
func NewGrid(tms tms20.TileMatrixSet) (*Grid, error) {
	root, ok := tms.TileMatrices[0]
	if !ok {
		return nil, fmt.Errorf("tile matrix set %v has no tile matrix 0", tms.ID)
	}
	for _, id := range tms.IDs() {
		tm := tms.TileMatrices[id]
		if id < 0 {
			return nil, fmt.Errorf("tile matrix set %v has negative tile matrix id %v", tms.ID, id)
		}
		want := root.CellSize / float64(mathhelp.Pow2(id))
		if math.Abs(tm.CellSize-want) > want*zoomEpsilon {
			return nil, fmt.Errorf("tile matrix set %v is not a quad tree: cell size of %v is %v, want %v",
				tms.ID, id, tm.CellSize, want)
		}
		if tm.TileWidth != root.TileWidth || tm.TileHeight != root.TileHeight {
			return nil, fmt.Errorf("tile matrix set %v has varying tile sizes", tms.ID)
		}
	}
	return &Grid{tms: tms, zeroCellSize: root.CellSize, zeroTileWidth: root.TileWidth}, nil
}

// MustLoadGrid loads an embedded tile matrix set as a Grid, it panics on failure.
func MustLoadGrid(id string) *Grid {
	tms, err := tms20.LoadEmbeddedTileMatrixSet(id)
	if err != nil {
		panic(err)
	}
	g, err := NewGrid(tms)
	if err != nil {
		panic(err)
	}
	return g
}

// TileMatrixSet returns the underlying tile matrix set.
func (g *Grid) TileMatrixSet() tms20.TileMatrixSet {
	return g.tms
}

// MaxZoom is the deepest zoom level for which tiles can be enumerated.
func (g *Grid) MaxZoom() int {
	ids := g.tms.IDs()
	return ids[len(ids)-1]
}

// ResolutionToZoom returns the coarsest zoom level whose resolution is at least as fine as the given one,
// (degrees per pixel for the geographic grid). Resolutions coarser than zoom 0 map to 0.
// The result is not capped at MaxZoom.
func (g *Grid) ResolutionToZoom(resolution float64) int {
	z := math.Ceil(math.Log2(g.zeroCellSize/resolution) - zoomEpsilon)
	if z < 0 || math.IsNaN(z) {
		return 0
	}
	if z > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(z)
}

// ZoomToResolution is the inverse of ResolutionToZoom.
func (g *Grid) ZoomToResolution(zoom int) float64 {
	return g.zeroCellSize / math.Pow(2, float64(zoom))
}

// SnapExtent grows the extent outward to the nearest tile boundaries at the zoom level,
// clipped to the extent of the matrix. Zoom levels without a matrix return the extent unchanged.
func (g *Grid) SnapExtent(e geom.Extent, zoom int) geom.Extent {
	tm, ok := g.tms.TileMatrices[zoom]
	if !ok {
		return e
	}
	minCol, minRow, maxCol, maxRow := tileRange(tm, e)
	topLeft, _ := g.tms.ToNative(slippy.NewTile(uint(zoom), minCol, minRow))
	bottomRight, _ := g.tms.ToNative(slippy.NewTile(uint(zoom), maxCol, maxRow))
	snapped := geom.Extent{topLeft.X(), bottomRight.Y(), bottomRight.X(), topLeft.Y()}
	if tm.CornerOfOrigin == tms20.BottomLeft {
		// rows count upwards, so the corners swap vertically and ToNative returns tops of tiles
		_, spanY := tm.TileSpan()
		snapped[1], snapped[3] = topLeft.Y()-spanY, bottomRight.Y()-spanY
	}
	return snapped
}

// TileExtent returns the extent of the tile.
func (g *Grid) TileExtent(t slippy.Tile) (geom.Extent, bool) {
	return g.tms.TileExtent(t)
}

// TilesForPolygon enumerates the tiles at the zoom level that share area with the polygon,
// row by row from the origin. Tiles that only touch the polygon's boundary are skipped.
// The sequence is computed lazily and can be iterated more than once.
func (g *Grid) TilesForPolygon(polygon *geos.Geom, zoom int) iter.Seq[slippy.Tile] {
	return func(yield func(slippy.Tile) bool) {
		for r := range g.TileRangesForPolygon(polygon, zoom) {
			for tile := range r.Tiles() {
				if !yield(tile) {
					return
				}
			}
		}
	}
}

// TileRangesForPolygon enumerates the same tiles as TilesForPolygon as runs of consecutive tiles,
// one row per TileRange. The polygon is cut into row strips, so the work done grows with the number
// of rows and not with the number of tiles.
func (g *Grid) TileRangesForPolygon(polygon *geos.Geom, zoom int) iter.Seq[TileRange] {
	return func(yield func(TileRange) bool) {
		tm, ok := g.tms.TileMatrices[zoom]
		if !ok || !geomhelp.HasArea(polygon) {
			return
		}
		bounds := geomhelp.Extent(polygon)
		minCol, minRow, maxCol, maxRow := tileRange(tm, bounds)
		// a polygon that fills its bounding box covers every tile in the range
		boundsArea := (bounds[2] - bounds[0]) * (bounds[3] - bounds[1])
		isRectangle := math.Abs(polygon.Area()-boundsArea) <= boundsArea*zoomEpsilon
		for row := minRow; row < maxRow; row++ {
			var runs [][2]uint
			if isRectangle {
				runs = [][2]uint{{minCol, maxCol}}
			} else {
				rowExtent, _ := g.tms.TileExtent(slippy.Tile{Z: uint(zoom), X: minCol, Y: row})
				strip := geomhelp.ExtentToGEOS(geom.Extent{bounds[0], rowExtent[1], bounds[2], rowExtent[3]})
				runs = columnRuns(tm, geomhelp.Polygonal(polygon.Intersection(strip)))
			}
			for _, run := range runs {
				if !yield(TileRange{Zoom: uint(zoom), MinX: run[0], MinY: row, MaxX: run[1], MaxY: row + 1}) {
					return
				}
			}
		}
	}
}

// columnRuns returns the sorted, disjoint column ranges of the cells whose interior meets the
// interior of the part of a polygon within one row strip.
// The interior of every polygon in the strip is connected and lies inside the strip, so the columns
// it reaches are exactly the columns its bounding box overlaps.
func columnRuns(tm tms20.TileMatrix, inStrip *geos.Geom) [][2]uint {
	if inStrip == nil {
		return nil
	}
	parts := []*geos.Geom{inStrip}
	if inStrip.TypeID() == geos.TypeIDMultiPolygon {
		parts = make([]*geos.Geom, inStrip.NumGeometries())
		for i := range parts {
			parts[i] = inStrip.Geometry(i)
		}
	}
	runs := make([][2]uint, 0, len(parts))
	for _, part := range parts {
		if !geomhelp.HasArea(part) {
			continue
		}
		minCol, _, maxCol, _ := tileRange(tm, geomhelp.Extent(part))
		if maxCol > minCol {
			runs = append(runs, [2]uint{minCol, maxCol})
		}
	}
	slices.SortFunc(runs, func(a, b [2]uint) int { return cmp.Compare(a[0], b[0]) })
	merged := runs[:0]
	for _, run := range runs {
		if last := mapslicehelp.LastElement(merged); last != nil && run[0] <= last[1] {
			last[1] = max(last[1], run[1])
			continue
		}
		merged = append(merged, run)
	}
	return merged
}

// tileRange returns the half open range of columns and rows of tiles that overlap the extent.
func tileRange(tm tms20.TileMatrix, e geom.Extent) (minCol, minRow, maxCol, maxRow uint) {
	spanX, spanY := tm.TileSpan()
	originX, originY := tm.PointOfOrigin.XY()[0], tm.PointOfOrigin.XY()[1]

	colFrom := math.Floor((e[0] - originX) / spanX)
	colTo := math.Ceil((e[2] - originX) / spanX)
	var rowFrom, rowTo float64
	if tm.CornerOfOrigin == tms20.BottomLeft {
		rowFrom = math.Floor((e[1] - originY) / spanY)
		rowTo = math.Ceil((e[3] - originY) / spanY)
	} else {
		rowFrom = math.Floor((originY - e[3]) / spanY)
		rowTo = math.Ceil((originY - e[1]) / spanY)
	}

	width, height := float64(tm.MatrixWidth), float64(tm.MatrixHeight)
	return uint(mathhelp.Clamp(colFrom, 0, width)), uint(mathhelp.Clamp(rowFrom, 0, height)),
		uint(mathhelp.Clamp(colTo, 0, width)), uint(mathhelp.Clamp(rowTo, 0, height))
}
