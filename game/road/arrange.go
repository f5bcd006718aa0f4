package road

import (
	"sort"

	"cogentcore.org/core/math32"
)

// Arrange lays the segments out edge to edge along the axis, separated by
// spacing, and returns them sorted by their axis coordinate. The run plus
// one trailing spacing is centered on the pivot, so with non-zero spacing
// the run itself sits spacing/2 toward the start. Placement follows the
// input order; the two other coordinates are taken from the pivot. The
// input slice is not reordered.
func Arrange(segments []Segment, pivot math32.Vector3, spacing float32, axis Axis) []Segment {
	depths := make([]float32, len(segments))
	var totalDepth float32
	for i, seg := range segments {
		depths[i] = Depth(seg, axis)
		totalDepth += depths[i]
	}
	totalDepth += spacing * float32(len(segments))

	current := axis.Of(pivot) - totalDepth/2
	for i, seg := range segments {
		seg.SetPosition(axis.With(pivot, current+depths[i]/2))
		current += depths[i] + spacing
	}

	arranged := make([]Segment, len(segments))
	copy(arranged, segments)
	sort.SliceStable(arranged, func(i, j int) bool {
		return axis.Of(arranged[i].Position()) < axis.Of(arranged[j].Position())
	})
	return arranged
}
