// Package layer holds the input side of a planning request: the source files and their footprints.
package layer

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// Grid is the tiling scheme of a source.
type Grid string

const (
	OneToOne Grid = "1x1"
	TwoToOne Grid = "2x1"
)

func (g *Grid) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToUpper(s) {
	case "1X1", "ONE_TO_ONE":
		*g = OneToOne
	case "2X1", "TWO_TO_ONE":
		*g = TwoToOne
	default:
		return fmt.Errorf("unknown grid %q", s)
	}
	return nil
}

// Source is one input file contributing to an ingestion.
type Source struct {
	FileName  string
	TilesPath string
	Footprint geom.Geometry
}

// Path is the location of the source file.
func (s Source) Path() string {
	return path.Join(s.TilesPath, s.FileName)
}

// Format is the upper cased file extension, e.g. GPKG.
func (s Source) Format() string {
	return strings.ToUpper(strings.TrimPrefix(path.Ext(s.FileName), "."))
}

func (s Source) String() string {
	return s.Path()
}

type sourceJSON struct {
	FileName  string           `json:"fileName"`
	TilesPath string           `json:"tilesPath"`
	Footprint geojson.Geometry `json:"footprint"`
}

func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(sourceJSON{
		FileName:  s.FileName,
		TilesPath: s.TilesPath,
		Footprint: geojson.Geometry{Geometry: s.Footprint},
	})
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var raw sourceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.FileName == "" {
		return fmt.Errorf("source without fileName")
	}
	switch raw.Footprint.Geometry.(type) {
	case geom.Polygon, geom.MultiPolygon:
	default:
		return fmt.Errorf("footprint of %v should be a Polygon or MultiPolygon, got %T", raw.FileName, raw.Footprint.Geometry)
	}
	*s = Source{FileName: raw.FileName, TilesPath: raw.TilesPath, Footprint: raw.Footprint.Geometry}
	return nil
}
