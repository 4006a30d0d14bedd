// Package tasker turns an ingestion request into task parameters: split tasks for a single new source
// and merge tasks for sources that are combined into one target.
package tasker

import (
	"errors"

	"github.com/go-spatial/geom"

	"github.com/pdok/tasker/layer"
	"github.com/pdok/tasker/tilemath"
)

var ErrInvalidParameter = errors.New("invalid planner parameter")

// SplitTaskParams is one unit of split work: render the source at zoom levels MinZoom to MaxZoom within BBox.
type SplitTaskParams struct {
	DiscreteID        string      `json:"discreteId"`
	Version           string      `json:"version"`
	OriginDirectory   string      `json:"originDirectory"`
	MinZoom           int         `json:"minZoom"`
	MaxZoom           int         `json:"maxZoom"`
	LayerRelativePath string      `json:"layerRelativePath"`
	BBox              geom.Extent `json:"bbox"`
}

// MergeSourceDescriptor is either the merge target (no grid, no extent) or a contributing source.
type MergeSourceDescriptor struct {
	Type   string       `json:"type"`
	Path   string       `json:"path"`
	Grid   layer.Grid   `json:"grid,omitempty"`
	Extent *geom.Extent `json:"extent,omitempty"`
}

// MergeTaskParams is one unit of merge work. Sources[0] is the target, the other sources are merged
// onto it in order for every tile in Batches.
// Every task has its own Sources and Batches, tasks share no memory.
type MergeTaskParams struct {
	TargetFormat string                  `json:"targetFormat"`
	IsNewTarget  bool                    `json:"isNewTarget"`
	Sources      []MergeSourceDescriptor `json:"sources"`
	Batches      []tilemath.TileRange    `json:"batches"`
}
