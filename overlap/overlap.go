// Package overlap partitions the union of a set of footprints into disjoint regions,
// each labelled with exactly the footprints that cover it.
package overlap

import (
	"fmt"
	"strings"

	"github.com/twpayne/go-geos"

	"github.com/pdok/tasker/geomhelp"
	"github.com/pdok/tasker/mapslicehelp"
)

// Group is one cell of the partition: the region covered by exactly the Members
// (indexes into the partitioned footprints, ascending) and by no other footprint.
type Group struct {
	Geometry *geos.Geom
	Members  []int
}

// GeometryError reports a footprint that is invalid or a boolean operation that failed,
// together with the footprints involved.
type GeometryError struct {
	Members    []int
	Footprints []string
	Err        error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry error for footprints %v: %v [%s]", e.Members, e.Err, strings.Join(e.Footprints, ", "))
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

func newGeometryError(members []int, footprints []*geos.Geom, err error) *GeometryError {
	wkts := make([]string, len(members))
	for i, m := range members {
		wkts[i] = geomhelp.WktMustEncode(footprints[m], geomhelp.DefaultWktMaxLen)
	}
	return &GeometryError{Members: members, Footprints: wkts, Err: err}
}

// Partition returns the planar partition of the footprints' union. Larger member sets come first,
// within one size the member sets are in lexicographic order. Every point covered by a footprint
// lies in exactly one group, the group whose Members are all the footprints covering that point.
func Partition(footprints []*geos.Geom) ([]Group, error) {
	for i, f := range footprints {
		if f == nil {
			return nil, &GeometryError{Members: []int{i}, Err: fmt.Errorf("missing footprint")}
		}
		if !f.IsValid() {
			return nil, newGeometryError([]int{i}, footprints, fmt.Errorf("invalid footprint: %s", f.IsValidReason()))
		}
	}

	overlapping, err := pairwiseOverlaps(footprints)
	if err != nil {
		return nil, err
	}

	var groups []Group
	var claimed *geos.Geom
	for members := range Subsets(len(footprints)) {
		if !allOverlap(overlapping, members) {
			continue
		}
		raw, err := intersectAll(footprints, members)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		novel := raw
		if claimed != nil {
			novel, err = safely(members, footprints, func() *geos.Geom {
				return geomhelp.Polygonal(raw.Difference(claimed))
			})
			if err != nil {
				return nil, err
			}
			if novel == nil {
				continue
			}
		}

		if claimed == nil {
			claimed = novel
		} else {
			claimed, err = safely(members, footprints, func() *geos.Geom { return claimed.Union(novel) })
			if err != nil {
				return nil, err
			}
		}
		groups = append(groups, Group{Geometry: novel, Members: members})
	}
	return groups, nil
}

// PartitionOf is Partition labelling the groups with the items themselves instead of indexes.
func PartitionOf[T any](items []T, footprints []*geos.Geom) ([]LabelledGroup[T], error) {
	if len(items) != len(footprints) {
		return nil, fmt.Errorf("got %d items but %d footprints", len(items), len(footprints))
	}
	groups, err := Partition(footprints)
	if err != nil {
		return nil, err
	}
	labelled := make([]LabelledGroup[T], len(groups))
	for i, g := range groups {
		labelled[i] = LabelledGroup[T]{Group: g, Items: mapslicehelp.PickByIndex(items, g.Members)}
	}
	return labelled, nil
}

// LabelledGroup is a Group with its members resolved, in the order of the input.
type LabelledGroup[T any] struct {
	Group
	Items []T
}

// pairwiseOverlaps tells for every pair of footprints whether they share area.
func pairwiseOverlaps(footprints []*geos.Geom) ([][]bool, error) {
	n := len(footprints)
	overlapping := make([][]bool, n)
	for i := range overlapping {
		overlapping[i] = make([]bool, n)
		overlapping[i][i] = true
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			bi, bj := footprints[i].Bounds(), footprints[j].Bounds()
			if bi.MaxX <= bj.MinX || bj.MaxX <= bi.MinX || bi.MaxY <= bj.MinY || bj.MaxY <= bi.MinY {
				continue
			}
			shared, err := safely([]int{i, j}, footprints, func() *geos.Geom {
				return geomhelp.Polygonal(footprints[i].Intersection(footprints[j]))
			})
			if err != nil {
				return nil, err
			}
			overlapping[i][j] = shared != nil
			overlapping[j][i] = shared != nil
		}
	}
	return overlapping, nil
}

func allOverlap(overlapping [][]bool, members []int) bool {
	for a := 0; a < len(members); a++ {
		for b := a + 1; b < len(members); b++ {
			if !overlapping[members[a]][members[b]] {
				return false
			}
		}
	}
	return true
}

// intersectAll returns the area shared by all members, nil if there is none.
func intersectAll(footprints []*geos.Geom, members []int) (*geos.Geom, error) {
	return safely(members, footprints, func() *geos.Geom {
		result := footprints[members[0]]
		for _, m := range members[1:] {
			result = geomhelp.Polygonal(result.Intersection(footprints[m]))
			if result == nil {
				return nil
			}
		}
		return geomhelp.Polygonal(result)
	})
}

// safely runs a GEOS operation, which panics on failure, and turns a panic into a GeometryError.
func safely(members []int, footprints []*geos.Geom, op func() *geos.Geom) (result *geos.Geom, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			if rErr, ok := r.(error); ok {
				err = newGeometryError(members, footprints, rErr)
			} else {
				err = newGeometryError(members, footprints, fmt.Errorf("%v", r))
			}
		}
	}()
	return op(), nil
}
