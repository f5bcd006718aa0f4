package road

import (
	"fmt"

	"cogentcore.org/core/math32"
	"go.uber.org/zap"
)

// Options configures a Scroller.
type Options struct {
	Axis    Axis
	Pivot   math32.Vector3
	Spacing float32
	Speed   float32

	Logger *zap.Logger

	// OnRecycle is called for every segment re-anchored during a tick.
	OnRecycle func(RecycleEvent)
	// OnReset is called after the run has been re-arranged.
	OnReset func(RunGeometry)
}

// Scroller moves a fixed ring of segments along the travel axis and
// re-anchors segments that pass a boundary of the run.
type Scroller struct {
	segments []Segment
	geometry RunGeometry

	axis    Axis
	pivot   math32.Vector3
	spacing float32
	speed   float32

	logger    *zap.Logger
	onRecycle func(RecycleEvent)
	onReset   func(RunGeometry)
}

// NewScroller arranges the segments around the pivot and initializes the run.
func NewScroller(segments []Segment, opts Options) (*Scroller, error) {
	s := &Scroller{
		segments:  append([]Segment(nil), segments...),
		axis:      opts.Axis,
		pivot:     opts.Pivot,
		spacing:   opts.Spacing,
		speed:     opts.Speed,
		logger:    opts.Logger,
		onRecycle: opts.OnRecycle,
		onReset:   opts.OnReset,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if err := s.arrange(); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize computes the geometry of an arranged run.
func Initialize(arranged []Segment) (RunGeometry, error) {
	if len(arranged) < MinSegments {
		return RunGeometry{}, fmt.Errorf("%w: need at least %d segments, got %d",
			ErrInsufficientGeometry, MinSegments, len(arranged))
	}

	start := arranged[0].Position()
	end := arranged[len(arranged)-1].Position()
	total := start.DistanceTo(end)
	if total == 0 || math32.IsNaN(total) {
		return RunGeometry{}, fmt.Errorf("%w: first and last segments share position %v",
			ErrInsufficientGeometry, start)
	}

	return RunGeometry{
		Start:         start,
		End:           end,
		Direction:     start.Sub(end).Normal(),
		TotalDistance: total,
	}, nil
}

// Tick advances every segment by Direction*Speed*dt, then re-anchors the
// segments that reached the boundary the run is moving toward.
func (s *Scroller) Tick(dt float32) {
	movement := s.geometry.Direction.MulScalar(s.speed * dt)
	for _, seg := range s.segments {
		seg.SetPosition(seg.Position().Add(movement))
	}

	// Correct in a second pass so an anchored segment is never moved again
	// in the same tick.
	n := len(s.segments)
	for i, seg := range s.segments {
		t := s.normalizedDistance(seg.Position())

		if s.speed >= 0 {
			if t <= 0 {
				prev := (i - 1 + n) % n
				s.anchor(i, prev, BoundaryStart)
			}
		} else if t >= 1 {
			next := (i + 1) % n
			s.anchor(i, next, BoundaryEnd)
		}
	}
}

// Reset re-arranges the current sequence with the current spacing and
// recomputes the run geometry.
func (s *Scroller) Reset() error {
	if err := s.arrange(); err != nil {
		return err
	}
	s.logger.Info("road reset",
		zap.Int("segments", len(s.segments)),
		zap.Float32("total_distance", s.geometry.TotalDistance),
		zap.Float32("spacing", s.spacing),
		zap.Float32("speed", s.speed),
	)
	if s.onReset != nil {
		s.onReset(s.geometry)
	}
	return nil
}

// Geometry returns the run geometry computed at the last initialization.
func (s *Scroller) Geometry() RunGeometry {
	return s.geometry
}

// Segments returns the segment sequence in run order.
func (s *Scroller) Segments() []Segment {
	return s.segments
}

// Axis returns the travel axis.
func (s *Scroller) Axis() Axis {
	return s.axis
}

// Speed returns the signed scroll speed.
func (s *Scroller) Speed() float32 {
	return s.speed
}

// SetSpeed changes the scroll speed, effective on the next tick.
func (s *Scroller) SetSpeed(speed float32) {
	s.speed = speed
}

// Spacing returns the arrangement spacing.
func (s *Scroller) Spacing() float32 {
	return s.spacing
}

// SetSpacing changes the arrangement spacing, effective on the next reset.
func (s *Scroller) SetSpacing(spacing float32) {
	s.spacing = spacing
}

// normalizedDistance returns the signed distance of p from the start of the
// run along Direction, as a fraction of the run length rounded to 1/1000.
func (s *Scroller) normalizedDistance(p math32.Vector3) float32 {
	toStart := s.geometry.Start.Sub(p)
	direction := s.geometry.Direction
	signed := toStart.Dot(direction)
	return math32.Round(signed/s.geometry.TotalDistance*recyclePrecision) / recyclePrecision
}

// anchor places segment i flush against segment j on the side given by the
// boundary that was crossed.
func (s *Scroller) anchor(i, j int, boundary Boundary) {
	seg, neighbor := s.segments[i], s.segments[j]
	offset := s.axis.Unit().MulScalar(halfDepth(seg, s.axis) + halfDepth(neighbor, s.axis))

	from := seg.Position()
	var to math32.Vector3
	if boundary == BoundaryStart {
		to = neighbor.Position().Add(offset)
	} else {
		to = neighbor.Position().Sub(offset)
	}
	seg.SetPosition(to)

	if s.onRecycle != nil {
		s.onRecycle(RecycleEvent{
			SegmentID:  segmentID(seg),
			Index:      i,
			NeighborID: segmentID(neighbor),
			Neighbor:   j,
			Boundary:   boundary,
			From:       from,
			To:         to,
		})
	}
}

// arrange lays the run out with the current spacing. On failure every
// segment is put back where it was and the old geometry stays.
func (s *Scroller) arrange() error {
	arranged, geometry, err := s.layout(s.spacing)
	if err != nil {
		return err
	}
	s.segments = arranged
	s.geometry = geometry
	return nil
}

// CheckSpacing reports whether a reset with spacing would give a valid run.
// Segment positions are left untouched.
func (s *Scroller) CheckSpacing(spacing float32) error {
	saved := s.positions()
	defer s.restore(saved)
	_, _, err := s.layout(spacing)
	return err
}

func (s *Scroller) layout(spacing float32) ([]Segment, RunGeometry, error) {
	saved := s.positions()
	arranged := Arrange(s.segments, s.pivot, spacing, s.axis)
	geometry, err := Initialize(arranged)
	if err != nil {
		s.restore(saved)
		return nil, RunGeometry{}, err
	}
	return arranged, geometry, nil
}

func (s *Scroller) positions() []math32.Vector3 {
	saved := make([]math32.Vector3, len(s.segments))
	for i, seg := range s.segments {
		saved[i] = seg.Position()
	}
	return saved
}

// restore puts back positions taken by positions. s.segments must not have
// been reordered in between.
func (s *Scroller) restore(saved []math32.Vector3) {
	for i, seg := range s.segments {
		seg.SetPosition(saved[i])
	}
}

// segmentID returns the ID of segments that carry one.
func segmentID(seg Segment) string {
	if ided, ok := seg.(interface{ SegmentID() string }); ok {
		return ided.SegmentID()
	}
	return ""
}
