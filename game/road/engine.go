package road

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine provides the main interface for road operations
type Engine interface {
	// State management
	GetState() *RoadState
	SetState(state *RoadState) error
	Reset() (*RoadState, error)
	GetFrame() int
	GetGeometry() RunGeometry

	// Simulation
	Tick(dt float32) []RecycleEvent
	BulkTick(dt float32, steps int) []RecycleEvent

	// Configuration
	GetConfig() *RoadConfig
	SetConfig(config *RoadConfig) error
	SetSpeed(speed float32) error
	SetSpacing(spacing float32) error

	// History
	GetRecycleHistory() []RecycleEvent
	GetLastRecycle() *RecycleEvent
}

// RoadEngine implements the Engine interface on top of a Scroller
type RoadEngine struct {
	config   *RoadConfig
	tiles    []*Tile
	scroller *Scroller
	state    *RoadState
	logger   *zap.Logger

	// recycled collects the scroller's events during one tick
	recycled []RecycleEvent
}

var _ Engine = (*RoadEngine)(nil)

// EngineOption configures a RoadEngine.
type EngineOption func(*RoadEngine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *RoadEngine) {
		e.logger = logger
	}
}

// NewEngine creates a new road engine with the provided configuration
func NewEngine(config *RoadConfig, opts ...EngineOption) (*RoadEngine, error) {
	if err := ValidateRoadConfig(config); err != nil {
		return nil, err
	}

	e := &RoadEngine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.build(config); err != nil {
		return nil, err
	}
	e.state = &RoadState{
		ConfigName:      config.Name,
		Message:         config.Messages.Welcome,
		RecycleHistory:  []RecycleEvent{},
		CurrentRecycles: []RecycleEvent{},
	}
	return e, nil
}

// NewEngineWithDefaults creates a new road engine with the built-in configuration
func NewEngineWithDefaults(opts ...EngineOption) *RoadEngine {
	e, err := NewEngine(DefaultRoadConfig(), opts...)
	if err != nil {
		panic(fmt.Sprintf("default road config is invalid: %v", err))
	}
	return e
}

// build creates tiles and the scroller for a config.
func (e *RoadEngine) build(config *RoadConfig) error {
	tiles := BuildTiles(config)
	scroller, err := NewScroller(tileSegments(tiles), Options{
		Axis:      config.EffectiveAxis(),
		Pivot:     config.Pivot.Vector(),
		Spacing:   config.Spacing,
		Speed:     config.EffectiveSpeed(),
		Logger:    e.logger.With(zap.String("road", config.Name)),
		OnRecycle: e.recordRecycle,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize road %q: %w", config.Name, err)
	}

	e.config = config
	e.tiles = tiles
	e.scroller = scroller
	return nil
}

// GetState returns a snapshot of the current road state
func (e *RoadEngine) GetState() *RoadState {
	axis := e.scroller.Axis()
	segments := e.scroller.Segments()

	snapshot := *e.state
	snapshot.Axis = axis.String()
	snapshot.Speed = e.scroller.Speed()
	snapshot.Spacing = e.scroller.Spacing()
	snapshot.Geometry = e.scroller.Geometry()
	snapshot.Segments = make([]SegmentState, len(segments))
	for i, seg := range segments {
		snapshot.Segments[i] = SegmentState{
			ID:       segmentID(seg),
			Index:    i,
			Position: seg.Position(),
			Depth:    Depth(seg, axis),
		}
	}
	snapshot.RecycleHistory = append([]RecycleEvent(nil), e.state.RecycleHistory...)
	snapshot.CurrentRecycles = append([]RecycleEvent(nil), e.state.CurrentRecycles...)
	snapshot.Gaps = AnalyzeGaps(segments, axis)
	return &snapshot
}

// SetState restores a snapshot (used for persistence loading). Segments are
// matched by ID; the snapshot's sequence order and geometry replace the
// engine's.
func (e *RoadEngine) SetState(state *RoadState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if len(state.Segments) != len(e.tiles) {
		return fmt.Errorf("state has %d segments, road has %d", len(state.Segments), len(e.tiles))
	}

	byID := make(map[string]*Tile, len(e.tiles))
	for _, t := range e.tiles {
		byID[t.ID] = t
	}

	ordered := make([]Segment, len(state.Segments))
	placed := make(map[string]bool, len(state.Segments))
	for _, ss := range state.Segments {
		tile, ok := byID[ss.ID]
		if !ok {
			return fmt.Errorf("state references unknown segment %q", ss.ID)
		}
		if placed[ss.ID] {
			return fmt.Errorf("state lists segment %q twice", ss.ID)
		}
		placed[ss.ID] = true
		if ss.Index < 0 || ss.Index >= len(ordered) || ordered[ss.Index] != nil {
			return fmt.Errorf("state has invalid index %d for segment %q", ss.Index, ss.ID)
		}
		if !finiteVector(ss.Position) {
			return fmt.Errorf("state has non-finite position for segment %q", ss.ID)
		}
		ordered[ss.Index] = tile
	}

	g := state.Geometry
	if !finite(g.TotalDistance) || g.TotalDistance <= 0 {
		return fmt.Errorf("%w: state geometry has no length", ErrInsufficientGeometry)
	}
	if !finiteVector(g.Start) || !finiteVector(g.End) || !finiteVector(g.Direction) {
		return fmt.Errorf("%w: state geometry is not finite", ErrInsufficientGeometry)
	}
	if err := checkSpeed(state.Speed); err != nil {
		return fmt.Errorf("state %v", err)
	}
	if !finite(state.Spacing) {
		return fmt.Errorf("state spacing must be finite")
	}

	for _, ss := range state.Segments {
		byID[ss.ID].SetPosition(ss.Position)
	}
	e.scroller.segments = ordered
	e.scroller.geometry = state.Geometry
	e.scroller.SetSpeed(state.Speed)
	e.scroller.SetSpacing(state.Spacing)

	restored := *state
	restored.Segments = nil
	restored.Gaps = nil
	if restored.RecycleHistory == nil {
		restored.RecycleHistory = []RecycleEvent{}
	}
	if restored.CurrentRecycles == nil {
		restored.CurrentRecycles = []RecycleEvent{}
	}
	e.state = &restored
	return nil
}

// Reset re-arranges the road and clears the since-reset history
func (e *RoadEngine) Reset() (*RoadState, error) {
	if err := e.scroller.Reset(); err != nil {
		return nil, err
	}

	// Preserve cumulative history and totals across resets
	e.state.CurrentRecycles = []RecycleEvent{}
	e.state.CurrentRecyclesCount = 0
	e.state.Message = e.config.Messages.Reset

	return e.GetState(), nil
}

// GetFrame returns the number of ticks simulated
func (e *RoadEngine) GetFrame() int {
	return e.state.Frame
}

// GetGeometry returns the run geometry
func (e *RoadEngine) GetGeometry() RunGeometry {
	return e.scroller.Geometry()
}

// Tick advances the road by dt seconds and returns the recycles it caused
func (e *RoadEngine) Tick(dt float32) []RecycleEvent {
	e.recycled = e.recycled[:0]
	e.state.Frame++
	e.state.Elapsed += dt
	e.scroller.Tick(dt)

	events := make([]RecycleEvent, len(e.recycled))
	copy(events, e.recycled)
	for _, ev := range events {
		e.addRecycleToHistory(ev)
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		e.state.Message = e.recycleMessage(last)
	}
	return events
}

// BulkTick runs steps ticks of dt seconds each
func (e *RoadEngine) BulkTick(dt float32, steps int) []RecycleEvent {
	var events []RecycleEvent
	for i := 0; i < steps; i++ {
		events = append(events, e.Tick(dt)...)
	}
	return events
}

// GetConfig returns the current road configuration
func (e *RoadEngine) GetConfig() *RoadConfig {
	return e.config
}

// SetConfig sets a new road configuration and rebuilds the road
func (e *RoadEngine) SetConfig(config *RoadConfig) error {
	if err := ValidateRoadConfig(config); err != nil {
		return err
	}
	if err := e.build(config); err != nil {
		return err
	}
	e.state.ConfigName = config.Name
	e.state.Message = config.Messages.Welcome
	return nil
}

// SetSpeed changes the scroll speed, effective on the next tick
func (e *RoadEngine) SetSpeed(speed float32) error {
	if err := checkSpeed(speed); err != nil {
		return err
	}
	e.scroller.SetSpeed(speed)
	return nil
}

func checkSpeed(speed float32) error {
	if !finite(speed) || speed > MaxSpeed || speed < -MaxSpeed {
		return fmt.Errorf("speed must be between %d and %d, got %v", -MaxSpeed, MaxSpeed, speed)
	}
	return nil
}

// SetSpacing changes the arrangement spacing, effective on the next reset.
// A spacing that would collapse the run is rejected.
func (e *RoadEngine) SetSpacing(spacing float32) error {
	if !finite(spacing) {
		return fmt.Errorf("spacing must be finite")
	}
	if err := e.scroller.CheckSpacing(spacing); err != nil {
		return fmt.Errorf("spacing %v: %w", spacing, err)
	}
	e.scroller.SetSpacing(spacing)
	return nil
}

// GetRecycleHistory returns the complete recycle history
func (e *RoadEngine) GetRecycleHistory() []RecycleEvent {
	return e.state.RecycleHistory
}

// GetLastRecycle returns the last recycle, or nil if none happened
func (e *RoadEngine) GetLastRecycle() *RecycleEvent {
	if len(e.state.RecycleHistory) == 0 {
		return nil
	}
	return &e.state.RecycleHistory[len(e.state.RecycleHistory)-1]
}

// recordRecycle is the scroller's recycle observer.
func (e *RoadEngine) recordRecycle(ev RecycleEvent) {
	ev.ID = uuid.NewString()
	ev.Frame = e.state.Frame
	ev.Timestamp = time.Now().Unix()
	e.recycled = append(e.recycled, ev)

	e.logger.Debug("segment recycled",
		zap.Int("frame", ev.Frame),
		zap.String("segment", ev.SegmentID),
		zap.String("neighbor", ev.NeighborID),
		zap.String("boundary", string(ev.Boundary)),
	)
}

// addRecycleToHistory appends to both histories, dropping the oldest
// entries past MaxRecycleHistory.
func (e *RoadEngine) addRecycleToHistory(ev RecycleEvent) {
	e.state.RecycleHistory = appendCapped(e.state.RecycleHistory, ev)
	e.state.TotalRecycles++

	e.state.CurrentRecycles = appendCapped(e.state.CurrentRecycles, ev)
	e.state.CurrentRecyclesCount++
}

func (e *RoadEngine) recycleMessage(ev RecycleEvent) string {
	format := e.config.Messages.Recycled
	if format == "" {
		return e.state.Message
	}
	// A segment crossing one boundary lands at the other end.
	side := BoundaryStart
	if ev.Boundary == BoundaryStart {
		side = BoundaryEnd
	}
	return fmt.Sprintf(format, ev.SegmentID, side)
}

func appendCapped(events []RecycleEvent, ev RecycleEvent) []RecycleEvent {
	events = append(events, ev)
	if len(events) > MaxRecycleHistory {
		events = append([]RecycleEvent(nil), events[len(events)-MaxRecycleHistory:]...)
	}
	return events
}
