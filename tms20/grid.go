package tms20

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
)

func (tms *TileMatrixSet) SRID() uint {
	code, err := strconv.ParseUint(tms.CRS.AuthorityCode(), 10, 64)
	if err != nil {
		panic(fmt.Errorf(`could not parse uri authority code "%w"`, err))
	}
	return uint(code)
}

// Size returns a tile whose X and Y are the matrix width and height at the zoom level.
func (tms *TileMatrixSet) Size(zoom uint) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok {
		return nil, false
	}
	return slippy.NewTile(zoom, tm.MatrixWidth, tm.MatrixHeight), true
}

// TileSpan returns the width and height of a single tile in CRS units.
func (tm *TileMatrix) TileSpan() (float64, float64) {
	return float64(tm.TileWidth) * tm.CellSize, float64(tm.TileHeight) * tm.CellSize
}

// Extent returns the extent covered by the full matrix.
func (tm *TileMatrix) Extent() geom.Extent {
	spanX, spanY := tm.TileSpan()
	minX := tm.PointOfOrigin.XY()[0]
	maxX := minX + float64(tm.MatrixWidth)*spanX
	var minY, maxY float64
	switch tm.CornerOfOrigin {
	case BottomLeft:
		minY = tm.PointOfOrigin.XY()[1]
		maxY = minY + float64(tm.MatrixHeight)*spanY
	default:
		maxY = tm.PointOfOrigin.XY()[1]
		minY = maxY - float64(tm.MatrixHeight)*spanY
	}
	return geom.Extent{minX, minY, maxX, maxY}
}

// MatrixBoundingBox returns the bottom left and top right corners of the matrix at a zoom level.
func (tms *TileMatrixSet) MatrixBoundingBox(zoom TMID) (geom.Point, geom.Point, error) {
	tm, ok := tms.TileMatrices[zoom]
	if !ok {
		return geom.Point{}, geom.Point{}, fmt.Errorf("no tile matrix with id %v in %v", zoom, tms.ID)
	}
	e := tm.Extent()
	return geom.Point{e.MinX(), e.MinY()}, geom.Point{e.MaxX(), e.MaxY()}, nil
}

func (tms *TileMatrixSet) FromNative(zoom uint, pt geom.Point) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok {
		return nil, false
	}

	// TODO use big decimals to prevent floating point rounding errors
	tileSizeX, tileSizeY := tm.TileSpan()
	minX := tm.PointOfOrigin.XY()[0]
	x := math.Floor((pt.X() - minX) / tileSizeX)
	if x < 0 || x >= float64(tm.MatrixWidth) {
		return nil, false
	}

	var y float64
	switch tm.CornerOfOrigin {
	case BottomLeft:
		minY := tm.PointOfOrigin.XY()[1]
		y = math.Floor((pt.Y() - minY) / tileSizeY)
	default:
		maxY := tm.PointOfOrigin.XY()[1]
		y = math.Floor((maxY - pt.Y()) / tileSizeY)
	}
	if y < 0 || y >= float64(tm.MatrixHeight) {
		return nil, false
	}

	return slippy.NewTile(zoom, uint(x), uint(y)), true
}

// ToNative returns the top left corner of the tile.
func (tms *TileMatrixSet) ToNative(tile *slippy.Tile) (geom.Point, bool) {
	topLeftPt := geom.Point{}
	tm, ok := tms.TileMatrices[int(tile.Z)]
	if !ok {
		return topLeftPt, false
	}
	if tile.X > tm.MatrixWidth || tile.Y > tm.MatrixHeight {
		// >, not >= because "should be able to take tiles with x and y values 1 higher than the max"
		return topLeftPt, false
	}

	tileSizeX, tileSizeY := tm.TileSpan()
	topLeftPt[0] = tm.PointOfOrigin.XY()[0] + float64(tile.X)*tileSizeX
	switch tm.CornerOfOrigin {
	case BottomLeft:
		topLeftPt[1] = tm.PointOfOrigin.XY()[1] + float64(tile.Y+1)*tileSizeY
	default:
		topLeftPt[1] = tm.PointOfOrigin.XY()[1] - float64(tile.Y)*tileSizeY
	}

	return topLeftPt, true
}

// TileExtent returns the extent of a single tile.
func (tms *TileMatrixSet) TileExtent(tile slippy.Tile) (geom.Extent, bool) {
	tm, ok := tms.TileMatrices[int(tile.Z)]
	if !ok || tile.X >= tm.MatrixWidth || tile.Y >= tm.MatrixHeight {
		return geom.Extent{}, false
	}
	topLeft, _ := tms.ToNative(&tile)
	spanX, spanY := tm.TileSpan()
	return geom.Extent{topLeft.X(), topLeft.Y() - spanY, topLeft.X() + spanX, topLeft.Y()}, true
}
