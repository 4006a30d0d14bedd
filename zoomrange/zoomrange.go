// Package zoomrange maps configured zoom bands onto the zoom levels a layer's resolution supports.
package zoomrange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidBand = errors.New("invalid zoom band")

// ZoomRange is an inclusive range of zoom levels.
type ZoomRange struct {
	MinZoom int `json:"minZoom" yaml:"minZoom"`
	MaxZoom int `json:"maxZoom" yaml:"maxZoom"`
}

func (r ZoomRange) String() string {
	return fmt.Sprintf("%d-%d", r.MinZoom, r.MaxZoom)
}

// Validate checks 0 <= MinZoom <= MaxZoom.
func (r ZoomRange) Validate() error {
	if r.MinZoom < 0 || r.MaxZoom < 0 || r.MinZoom > r.MaxZoom {
		return fmt.Errorf("%w: %v", ErrInvalidBand, r)
	}
	return nil
}

// UnmarshalYAML accepts both "min-max" and a minZoom/maxZoom mapping.
func (r *ZoomRange) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseBand(value.Value)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}
	type plain ZoomRange
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = ZoomRange(p)
	return r.Validate()
}

// ParseBand parses "min-max", e.g. "0-10".
func ParseBand(s string) (ZoomRange, error) {
	minPart, maxPart, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return ZoomRange{}, fmt.Errorf("%w: %q is not of the form min-max", ErrInvalidBand, s)
	}
	minZoom, err := strconv.Atoi(strings.TrimSpace(minPart))
	if err != nil {
		return ZoomRange{}, fmt.Errorf("%w: %q: %w", ErrInvalidBand, s, err)
	}
	maxZoom, err := strconv.Atoi(strings.TrimSpace(maxPart))
	if err != nil {
		return ZoomRange{}, fmt.Errorf("%w: %q: %w", ErrInvalidBand, s, err)
	}
	r := ZoomRange{MinZoom: minZoom, MaxZoom: maxZoom}
	return r, r.Validate()
}

// ZoomResolver converts a resolution to the deepest zoom level it supports.
type ZoomResolver interface {
	ResolutionToZoom(resolution float64) int
}

// Planner clips configured zoom bands to a layer's resolution.
type Planner struct {
	bands    []ZoomRange
	resolver ZoomResolver
}

// NewPlanner validates the bands up front, so planning itself can not fail.
func NewPlanner(bands []ZoomRange, resolver ZoomResolver) (*Planner, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: no zoom bands configured", ErrInvalidBand)
	}
	for _, b := range bands {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}
	return &Planner{bands: append([]ZoomRange(nil), bands...), resolver: resolver}, nil
}

// Plan returns the bands that start at or below the resolution's zoom level, in configured order,
// with their MaxZoom clipped to that zoom level. Bands that start deeper are dropped.
func (p *Planner) Plan(resolution float64) []ZoomRange {
	return Clip(p.bands, p.resolver.ResolutionToZoom(resolution))
}

// Clip is Plan for an already known maximum zoom level.
func Clip(bands []ZoomRange, maxZoom int) []ZoomRange {
	ranges := make([]ZoomRange, 0, len(bands))
	for _, b := range bands {
		if b.MinZoom > maxZoom {
			continue
		}
		ranges = append(ranges, ZoomRange{MinZoom: b.MinZoom, MaxZoom: min(b.MaxZoom, maxZoom)})
	}
	return ranges
}
