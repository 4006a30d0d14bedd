// Package geomhelp bridges github.com/go-spatial/geom values and GEOS geometries.
// GEOS does the boolean algebra (intersection, union, difference), go-spatial/geom is
// used for everything that is passed around.
package geomhelp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
	"github.com/twpayne/go-geos"
)

// DefaultWktMaxLen is the length at which WKT in error messages is cut off.
const DefaultWktMaxLen = 256

var ErrUnsupportedGeometry = errors.New("unsupported geometry type")

// ToGEOS converts a polygon, multipolygon or extent into a GEOS geometry.
// Rings that are not explicitly closed are closed.
func ToGEOS(g geom.Geometry) (*geos.Geom, error) {
	var normalized geom.Geometry
	switch gg := g.(type) {
	case geom.Polygon:
		normalized = closePolygon(gg)
	case *geom.Polygon:
		if gg == nil {
			return nil, fmt.Errorf("%w: nil polygon", ErrUnsupportedGeometry)
		}
		normalized = closePolygon(*gg)
	case geom.MultiPolygon:
		mp := make(geom.MultiPolygon, len(gg))
		for i := range gg {
			mp[i] = closePolygon(gg[i])
		}
		normalized = mp
	case *geom.MultiPolygon:
		if gg == nil {
			return nil, fmt.Errorf("%w: nil multipolygon", ErrUnsupportedGeometry)
		}
		return ToGEOS(*gg)
	case geom.Extent:
		return ExtentToGEOS(gg), nil
	case *geom.Extent:
		if gg == nil {
			return nil, fmt.Errorf("%w: nil extent", ErrUnsupportedGeometry)
		}
		return ExtentToGEOS(*gg), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}

	var sb strings.Builder
	if err := wkt.Encode(&sb, normalized); err != nil {
		return nil, fmt.Errorf("could not encode geometry as wkt: %w", err)
	}
	return geos.NewGeomFromWKT(sb.String())
}

// ExtentToGEOS returns the extent as a counterclockwise rectangular polygon.
func ExtentToGEOS(e geom.Extent) *geos.Geom {
	return geos.NewPolygon([][][]float64{{
		{e[0], e[1]},
		{e[2], e[1]},
		{e[2], e[3]},
		{e[0], e[3]},
		{e[0], e[1]},
	}})
}

// Extent returns the bounding box of a GEOS geometry.
func Extent(g *geos.Geom) geom.Extent {
	b := g.Bounds()
	return geom.Extent{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// GeometryExtent returns the bounding box of a go-spatial geometry.
func GeometryExtent(g geom.Geometry) (geom.Extent, error) {
	e, err := geom.NewExtentFromGeometry(g)
	if err != nil {
		return geom.Extent{}, err
	}
	return *e, nil
}

// HasArea reports whether g is non nil and covers a positive area.
func HasArea(g *geos.Geom) bool {
	return g != nil && !g.IsEmpty() && g.Area() > 0
}

// Polygonal drops the points and lines a boolean operation can leave behind
// (e.g. two touching squares intersect in a line). Returns nil when nothing with area remains.
func Polygonal(g *geos.Geom) *geos.Geom {
	if !HasArea(g) {
		return nil
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		return g
	}
	var result *geos.Geom
	for i := 0; i < g.NumGeometries(); i++ {
		part := Polygonal(g.Geometry(i))
		if part == nil {
			continue
		}
		if result == nil {
			result = part
		} else {
			result = result.Union(part)
		}
	}
	return result
}

// WktMustEncode returns the WKT of a GEOS geometry, truncated to maxLen characters (0 means no limit).
func WktMustEncode(g *geos.Geom, maxLen uint) string {
	if g == nil {
		return "<nil>"
	}
	return truncated(g.ToWKT(), maxLen)
}

func truncated(s string, width uint) string {
	if width == 0 {
		return s
	}
	return truncate.StringWithTail(s, width, "...")
}

func closePolygon(p geom.Polygon) geom.Polygon {
	closed := make(geom.Polygon, 0, len(p))
	for _, ring := range p {
		if len(ring) == 0 {
			continue
		}
		r := make([][2]float64, len(ring), len(ring)+1)
		copy(r, ring)
		if r[0] != r[len(r)-1] {
			r = append(r, r[0])
		}
		closed = append(closed, r)
	}
	return closed
}
