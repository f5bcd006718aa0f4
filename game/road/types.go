package road

import (
	"errors"
	"fmt"
	"strings"

	"cogentcore.org/core/math32"
)

const (
	// Validation constants
	MinSegments       = 2
	MaxSegments       = 256
	MaxSpeed          = 1000
	MaxTickDelta      = 1.0
	MaxBulkTicks      = 10000
	MaxRecycleHistory = 1000
	DefaultSpeed      = -3.0
	WebSocketBuffer   = 256

	// recyclePrecision is the number of steps per run length used when
	// rounding the normalized boundary distance.
	recyclePrecision = 1000
)

// ErrInsufficientGeometry is returned when a run cannot span a distance:
// fewer than two segments, or first and last segments at the same place.
var ErrInsufficientGeometry = errors.New("insufficient geometry")

// Axis selects the travel axis of a run.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// ParseAxis parses "x", "y" or "z". An empty string selects z.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z", "":
		return AxisZ, nil
	}
	return AxisZ, fmt.Errorf("unknown axis %q", s)
}

// String returns the lowercase axis name.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return "z"
	}
}

// Of returns the component of v along the axis.
func (a Axis) Of(v math32.Vector3) float32 {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// With returns v with its component along the axis replaced.
func (a Axis) With(v math32.Vector3, value float32) math32.Vector3 {
	switch a {
	case AxisX:
		v.X = value
	case AxisY:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

// Unit returns the positive unit vector of the axis.
func (a Axis) Unit() math32.Vector3 {
	return a.With(math32.Vector3{}, 1)
}

// Segment is a positionable object with a bounding extent.
// PartBounds returns the world-space boxes of the segment's renderable parts.
type Segment interface {
	Position() math32.Vector3
	SetPosition(p math32.Vector3)
	PartBounds() []math32.Box3
}

// RunGeometry describes the arranged run. Direction points from End to Start.
type RunGeometry struct {
	Start         math32.Vector3 `json:"start"`
	End           math32.Vector3 `json:"end"`
	Direction     math32.Vector3 `json:"direction"`
	TotalDistance float32        `json:"total_distance"`
}

// Boundary names the end of the run a segment crossed.
type Boundary string

const (
	BoundaryStart Boundary = "start"
	BoundaryEnd   Boundary = "end"
)

// RecycleEvent records a segment being re-anchored next to a neighbor.
type RecycleEvent struct {
	ID         string         `json:"id"`
	Frame      int            `json:"frame"`
	SegmentID  string         `json:"segment_id,omitempty"`
	Index      int            `json:"index"`
	NeighborID string         `json:"neighbor_id,omitempty"`
	Neighbor   int            `json:"neighbor"`
	Boundary   Boundary       `json:"boundary"`
	From       math32.Vector3 `json:"from"`
	To         math32.Vector3 `json:"to"`
	Timestamp  int64          `json:"timestamp"`
}

// SegmentState is a snapshot of one segment.
type SegmentState struct {
	ID       string         `json:"id"`
	Index    int            `json:"index"`
	Position math32.Vector3 `json:"position"`
	Depth    float32        `json:"depth"`
}

// RoadState represents the complete simulation state of a run
type RoadState struct {
	ConfigName string         `json:"config_name"`
	Axis       string         `json:"axis"`
	Speed      float32        `json:"speed"`
	Spacing    float32        `json:"spacing"`
	Geometry   RunGeometry    `json:"geometry"`
	Segments   []SegmentState `json:"segments"`
	Frame      int            `json:"frame"`
	Elapsed    float32        `json:"elapsed"`
	Message    string         `json:"message"`

	RecycleHistory []RecycleEvent `json:"recycle_history"`
	TotalRecycles  int            `json:"total_recycles"`

	// CurrentRecycles holds only the events since the last reset, while
	// RecycleHistory is cumulative.
	CurrentRecycles      []RecycleEvent `json:"current_recycles"`
	CurrentRecyclesCount int            `json:"current_recycles_count"`

	// Computed view, not used by the simulation
	Gaps *GapReport `json:"gaps,omitempty"`
}
