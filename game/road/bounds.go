package road

import "cogentcore.org/core/math32"

// ComputeBounds returns the union of the segment's part boxes.
// A segment without parts has a zero-size box at its position.
func ComputeBounds(seg Segment) math32.Box3 {
	parts := seg.PartBounds()
	if len(parts) == 0 {
		p := seg.Position()
		return math32.Box3{Min: p, Max: p}
	}
	bounds := parts[0]
	for _, b := range parts[1:] {
		bounds = bounds.Union(b)
	}
	return bounds
}

// Depth returns the size of the segment's bounds along the axis.
func Depth(seg Segment, axis Axis) float32 {
	return axis.Of(ComputeBounds(seg).Size())
}

// halfDepth is half of Depth.
func halfDepth(seg Segment, axis Axis) float32 {
	return Depth(seg, axis) * 0.5
}
