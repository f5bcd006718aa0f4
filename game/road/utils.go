package road

import (
	"sort"

	"cogentcore.org/core/math32"
)

// GapReport summarizes the edge-to-edge gaps between segments that are
// adjacent along the travel axis. A negative gap is an overlap.
type GapReport struct {
	Gaps       []float32 `json:"gaps"`
	MaxGap     float32   `json:"max_gap"`
	MaxOverlap float32   `json:"max_overlap"`
	Span       float32   `json:"span"`
}

// AnalyzeGaps measures the gaps between positionally adjacent segments.
func AnalyzeGaps(segments []Segment, axis Axis) *GapReport {
	report := &GapReport{Gaps: []float32{}}
	if len(segments) == 0 {
		return report
	}

	sorted := append([]Segment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return axis.Of(sorted[i].Position()) < axis.Of(sorted[j].Position())
	})

	for i := 1; i < len(sorted); i++ {
		gap := SegmentGap(sorted[i-1], sorted[i], axis)
		report.Gaps = append(report.Gaps, gap)
		if gap > report.MaxGap {
			report.MaxGap = gap
		}
		if -gap > report.MaxOverlap {
			report.MaxOverlap = -gap
		}
	}

	first, last := sorted[0], sorted[len(sorted)-1]
	report.Span = axis.Of(last.Position()) + halfDepth(last, axis) -
		(axis.Of(first.Position()) - halfDepth(first, axis))
	return report
}

// SegmentGap returns the distance between the trailing edge of a and the
// leading edge of b along the axis.
func SegmentGap(a, b Segment, axis Axis) float32 {
	centers := axis.Of(b.Position()) - axis.Of(a.Position())
	return centers - halfDepth(a, axis) - halfDepth(b, axis)
}

// MaxDeviation returns the largest absolute difference between a gap in the
// report and the expected gap.
func (r *GapReport) MaxDeviation(expected float32) float32 {
	var worst float32
	for _, g := range r.Gaps {
		if d := math32.Abs(g - expected); d > worst {
			worst = d
		}
	}
	return worst
}

// MaxSeamDeviation is MaxDeviation for roads with spacing. Recycling places
// segments flush against their neighbor, so a gap may be either 0 or the
// arrangement spacing; the distance to the nearer of the two is measured.
func (r *GapReport) MaxSeamDeviation(spacing float32) float32 {
	var worst float32
	for _, g := range r.Gaps {
		d := math32.Min(math32.Abs(g), math32.Abs(g-spacing))
		if d > worst {
			worst = d
		}
	}
	return worst
}

// CountRecycles counts the events that crossed the given boundary
func CountRecycles(events []RecycleEvent, boundary Boundary) int {
	count := 0
	for _, ev := range events {
		if ev.Boundary == boundary {
			count++
		}
	}
	return count
}
