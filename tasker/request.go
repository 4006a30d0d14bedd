package tasker

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/tasker/geomhelp"
	"github.com/pdok/tasker/layer"
	"github.com/pdok/tasker/mapslicehelp"
)

// LayerMetadata identifies the layer an ingestion is for.
type LayerMetadata struct {
	DiscreteID        string  `json:"discreteId" validate:"required"`
	Version           string  `json:"version" validate:"required"`
	Resolution        float64 `json:"resolution" validate:"gt=0"`
	LayerRelativePath string  `json:"layerRelativePath" validate:"required"`
}

// SplitRequest asks for a new layer from a single source.
type SplitRequest struct {
	LayerMetadata
	OriginDirectory string       `json:"originDirectory" validate:"required"`
	Source          layer.Source `json:"source"`
}

// Layer is the request as input for a SplitPlanner.
func (r SplitRequest) Layer() SplitLayer {
	return SplitLayer{
		DiscreteID:        r.DiscreteID,
		Version:           r.Version,
		OriginDirectory:   r.OriginDirectory,
		LayerRelativePath: r.LayerRelativePath,
		Footprint:         r.Source.Footprint,
	}
}

// MergeRequest asks to merge sources onto an existing or new layer.
// Grids holds the tiling scheme of every source, in the same order.
type MergeRequest struct {
	LayerMetadata
	TargetFormat string         `json:"targetFormat" validate:"required"`
	IsNewTarget  bool           `json:"isNewTarget"`
	Extent       *geom.Extent   `json:"extent,omitempty"`
	Sources      []layer.Source `json:"sources" validate:"min=1"`
	Grids        []layer.Grid   `json:"grids"`
}

// Layers pairs the sources with their grids.
func (r MergeRequest) Layers() []MergeLayer {
	layers := make([]MergeLayer, len(r.Sources))
	for i, s := range r.Sources {
		layers[i] = MergeLayer{Source: s, Grid: r.Grids[i]}
	}
	return layers
}

// Target describes the merge target, its extent is the request's extent or else the extent of all sources.
func (r MergeRequest) Target() (MergeTarget, error) {
	target := MergeTarget{Path: r.LayerRelativePath, Format: r.TargetFormat, IsNew: r.IsNewTarget}
	if r.Extent != nil {
		target.Extent = *r.Extent
		return target, nil
	}
	for i, s := range r.Sources {
		e, err := geomhelp.GeometryExtent(s.Footprint)
		if err != nil {
			return MergeTarget{}, fmt.Errorf("footprint of %v: %w", s, err)
		}
		if i == 0 {
			target.Extent = e
			continue
		}
		target.Extent = geom.Extent{
			min(target.Extent[0], e[0]), min(target.Extent[1], e[1]),
			max(target.Extent[2], e[2]), max(target.Extent[3], e[3]),
		}
	}
	return target, nil
}

var validate = validator.New()

// DecodeSplitRequest reads and validates a SplitRequest.
func DecodeSplitRequest(r io.Reader) (SplitRequest, error) {
	var req SplitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return SplitRequest{}, fmt.Errorf("could not decode split request: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return SplitRequest{}, fmt.Errorf("invalid split request: %w", err)
	}
	return req, nil
}

// DecodeMergeRequest reads and validates a MergeRequest. Sources must be unique by path.
// Without grids every source is taken to be TwoToOne.
func DecodeMergeRequest(r io.Reader) (MergeRequest, error) {
	var req MergeRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return MergeRequest{}, fmt.Errorf("could not decode merge request: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return MergeRequest{}, fmt.Errorf("invalid merge request: %w", err)
	}
	if len(req.Grids) == 0 {
		req.Grids = make([]layer.Grid, len(req.Sources))
		for i := range req.Grids {
			req.Grids[i] = layer.TwoToOne
		}
	}
	if len(req.Grids) != len(req.Sources) {
		return MergeRequest{}, fmt.Errorf("invalid merge request: %d sources but %d grids", len(req.Sources), len(req.Grids))
	}

	unique := orderedmap.New[string, layer.Source]()
	for _, s := range req.Sources {
		if _, present := unique.Set(s.Path(), s); present {
			return MergeRequest{}, fmt.Errorf("invalid merge request: duplicate source %v", s)
		}
	}
	req.Sources = mapslicehelp.OrderedMapValues(unique)
	return req, nil
}
