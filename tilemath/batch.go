package tilemath

import (
	"fmt"
	"iter"

	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/tasker/mapslicehelp"
)

// TileRange is a rectangular block of tiles at one zoom level. MaxX and MaxY are exclusive.
type TileRange struct {
	Zoom uint `json:"zoom"`
	MinX uint `json:"minX"`
	MinY uint `json:"minY"`
	MaxX uint `json:"maxX"`
	MaxY uint `json:"maxY"`
}

// Count returns the number of tiles in the range.
func (r TileRange) Count() uint {
	if r.MaxX <= r.MinX || r.MaxY <= r.MinY {
		return 0
	}
	return (r.MaxX - r.MinX) * (r.MaxY - r.MinY)
}

// Tiles enumerates the tiles in the range row by row.
func (r TileRange) Tiles() iter.Seq[slippy.Tile] {
	return func(yield func(slippy.Tile) bool) {
		for y := r.MinY; y < r.MaxY; y++ {
			for x := r.MinX; x < r.MaxX; x++ {
				if !yield(slippy.Tile{Z: r.Zoom, X: x, Y: y}) {
					return
				}
			}
		}
	}
}

func (r TileRange) String() string {
	return fmt.Sprintf("z%d[%d..%d)x[%d..%d)", r.Zoom, r.MinX, r.MaxX, r.MinY, r.MaxY)
}

// BatchTiles groups the tiles into batches of batchSize tiles, keeping their order.
// Within a batch consecutive tiles of the same row are run-length encoded as one TileRange.
// The last batch may hold fewer tiles. batchSize must be positive.
func BatchTiles(batchSize int, tiles iter.Seq[slippy.Tile]) iter.Seq[[]TileRange] {
	return BatchTileRanges(batchSize, func(yield func(TileRange) bool) {
		for tile := range tiles {
			if !yield(TileRange{Zoom: tile.Z, MinX: tile.X, MinY: tile.Y, MaxX: tile.X + 1, MaxY: tile.Y + 1}) {
				return
			}
		}
	})
}

// BatchTileRanges is BatchTiles for tiles that come as ranges, taken row by row.
// Ranges are split where a batch fills up and joined with the previous range when they continue its row.
// batchSize must be positive.
func BatchTileRanges(batchSize int, ranges iter.Seq[TileRange]) iter.Seq[[]TileRange] {
	if batchSize < 1 {
		panic(fmt.Sprintf("tile batch size must be positive, got %d", batchSize))
	}
	return func(yield func([]TileRange) bool) {
		var batch []TileRange
		count := 0
		for r := range ranges {
			for y := r.MinY; y < r.MaxY; y++ {
				for x := r.MinX; x < r.MaxX; {
					n := min(r.MaxX-x, uint(batchSize-count))
					last := mapslicehelp.LastElement(batch)
					if last != nil && last.Zoom == r.Zoom && last.MinY == y && last.MaxX == x {
						last.MaxX += n
					} else {
						batch = append(batch, TileRange{Zoom: r.Zoom, MinX: x, MinY: y, MaxX: x + n, MaxY: y + 1})
					}
					x += n
					count += int(n)
					if count == batchSize {
						if !yield(batch) {
							return
						}
						batch, count = nil, 0
					}
				}
			}
		}
		if count > 0 {
			yield(batch)
		}
	}
}

// CountTiles returns the total number of tiles in the ranges.
func CountTiles(ranges []TileRange) uint {
	var n uint
	for _, r := range ranges {
		n += r.Count()
	}
	return n
}
