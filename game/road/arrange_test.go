package road

import (
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-4

func depthTile(id string, depth float32) *Tile {
	return NewTile(id, Part{Name: "base", Size: math32.Vec3(2, 0.1, depth)})
}

func depthTiles(depths ...float32) []Segment {
	segments := make([]Segment, len(depths))
	for i, d := range depths {
		segments[i] = depthTile(string(rune('a'+i)), d)
	}
	return segments
}

func TestArrange_Example(t *testing.T) {
	// total = 1 + 2 + 3 + 0.5*3 = 7.5, first leading edge at -3.75.
	// centers: -3.75+0.5 = -3.25; -3.75+1.5+1 = -1.25; -3.75+1.5+2.5+1.5 = 1.75
	arranged := Arrange(depthTiles(1, 2, 3), math32.Vector3{}, 0.5, AxisZ)
	require.Len(t, arranged, 3)

	want := []float32{-3.25, -1.25, 1.75}
	for i, seg := range arranged {
		assert.InDelta(t, want[i], seg.Position().Z, epsilon, "segment %d", i)
	}
}

func TestArrange_Coverage(t *testing.T) {
	tests := []struct {
		name    string
		depths  []float32
		spacing float32
	}{
		{"uniform", []float32{10, 10, 10, 10}, 0},
		{"mixed", []float32{1, 4, 2.5, 0.5, 3}, 0},
		{"spaced", []float32{1, 2, 3}, 0.75},
		{"overlap", []float32{4, 4, 4}, -1},
		{"zero depth", []float32{2, 0, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arranged := Arrange(depthTiles(tt.depths...), math32.Vec3(1, 2, 3), tt.spacing, AxisZ)
			for i := 1; i < len(arranged); i++ {
				a, b := arranged[i-1], arranged[i]
				want := Depth(a, AxisZ)/2 + Depth(b, AxisZ)/2 + tt.spacing
				assert.InDelta(t, want, b.Position().Z-a.Position().Z, epsilon)
				assert.LessOrEqual(t, a.Position().Z, b.Position().Z)
			}
		})
	}
}

func TestArrange_Centering(t *testing.T) {
	depths := []float32{1, 2, 3, 4}
	spacing := float32(0.5)
	pivot := math32.Vec3(5, -1, 7)

	arranged := Arrange(depthTiles(depths...), pivot, spacing, AxisZ)
	first, last := arranged[0], arranged[len(arranged)-1]

	leading := first.Position().Z - Depth(first, AxisZ)/2
	trailing := last.Position().Z + Depth(last, AxisZ)/2

	var sum float32
	for _, d := range depths {
		sum += d
	}
	assert.InDelta(t, sum+spacing*float32(len(depths)-1), trailing-leading, epsilon)
	// The run with one trailing spacing is centered on the pivot.
	assert.InDelta(t, pivot.Z-leading, trailing+spacing-pivot.Z, epsilon)
}

func TestArrange_CenteredWithoutSpacing(t *testing.T) {
	arranged := Arrange(depthTiles(3, 1, 2), math32.Vec3(0, 0, 4), 0, AxisZ)
	first, last := arranged[0], arranged[len(arranged)-1]

	leading := first.Position().Z - Depth(first, AxisZ)/2
	trailing := last.Position().Z + Depth(last, AxisZ)/2
	assert.InDelta(t, 1, leading, epsilon)
	assert.InDelta(t, 7, trailing, epsilon)
}

func TestArrange_PivotFixesOtherAxes(t *testing.T) {
	segments := depthTiles(1, 1, 1)
	segments[0].SetPosition(math32.Vec3(100, 100, 100))

	for _, seg := range Arrange(segments, math32.Vec3(4, 5, 6), 0, AxisZ) {
		assert.Equal(t, float32(4), seg.Position().X)
		assert.Equal(t, float32(5), seg.Position().Y)
	}
}

func TestArrange_OtherAxis(t *testing.T) {
	segments := []Segment{
		NewTile("a", Part{Size: math32.Vec3(2, 1, 1)}),
		NewTile("b", Part{Size: math32.Vec3(4, 1, 1)}),
	}
	arranged := Arrange(segments, math32.Vector3{}, 0, AxisX)

	assert.InDelta(t, -2, arranged[0].Position().X, epsilon)
	assert.InDelta(t, 1, arranged[1].Position().X, epsilon)
	assert.Equal(t, float32(0), arranged[1].Position().Z)
}

func TestArrange_SortsAndKeepsInput(t *testing.T) {
	// Negative spacing large enough to fold the run back on itself.
	segments := depthTiles(1, 1, 1)
	arranged := Arrange(segments, math32.Vector3{}, -3, AxisZ)

	assert.Equal(t, "a", segments[0].(*Tile).ID, "input order must not change")
	for i := 1; i < len(arranged); i++ {
		assert.LessOrEqual(t, arranged[i-1].Position().Z, arranged[i].Position().Z)
	}
}

func TestArrange_Empty(t *testing.T) {
	assert.Empty(t, Arrange(nil, math32.Vector3{}, 0, AxisZ))
}
