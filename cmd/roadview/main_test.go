package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/wricardo/endless-road/api"
	"github.com/wricardo/endless-road/game/config"
	"github.com/wricardo/endless-road/game/road"
	"github.com/wricardo/endless-road/game/service"
	"github.com/wricardo/endless-road/game/session"
	"github.com/wricardo/endless-road/transport/websocket"
)

type cell struct {
	r     rune
	style tcell.Style
}

// fakeCanvas records what the renderer draws.
type fakeCanvas struct {
	width, height int
	cells         map[[2]int]cell
}

func newFakeCanvas(width, height int) *fakeCanvas {
	return &fakeCanvas{width: width, height: height, cells: map[[2]int]cell{}}
}

func (c *fakeCanvas) SetContent(x, y int, primary rune, combining []rune, style tcell.Style) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		panic("draw outside the canvas")
	}
	c.cells[[2]int{x, y}] = cell{r: primary, style: style}
}

func (c *fakeCanvas) Size() (int, int) { return c.width, c.height }

func (c *fakeCanvas) row(y int) string {
	var b strings.Builder
	for x := 0; x < c.width; x++ {
		b.WriteRune(c.cells[[2]int{x, y}].r)
	}
	return b.String()
}

func TestRender_NoState(t *testing.T) {
	c := newFakeCanvas(40, 10)
	render(c, nil, "connecting")

	if !strings.HasPrefix(c.row(0), "waiting for road state") {
		t.Errorf("Unexpected first row: %q", c.row(0))
	}
	if !strings.HasPrefix(c.row(1), "connecting") {
		t.Errorf("Expected status on second row, got %q", c.row(1))
	}
}

func TestRender_Road(t *testing.T) {
	engine := road.NewEngineWithDefaults()
	engine.BulkTick(0.1, 5)
	state := engine.GetState()

	c := newFakeCanvas(61, 16)
	render(c, state, "status line")

	if !strings.Contains(c.row(0), "default  frame 5") {
		t.Errorf("Unexpected header: %q", c.row(0))
	}
	if !strings.Contains(c.row(1), "axis z  speed -3") {
		t.Errorf("Unexpected settings line: %q", c.row(1))
	}
	if !strings.HasPrefix(c.row(15), "status line") {
		t.Errorf("Expected status on last row, got %q", c.row(15))
	}

	// Every segment is labelled with its ID suffix at its center column.
	axis, _ := road.ParseAxis(state.Axis)
	proj := newProjection(state, 61)
	labels := c.row(roadTop + roadHeight/2)
	for _, seg := range state.Segments {
		x := proj.column(axis.Of(seg.Position))
		if x < 0 || x >= 61 {
			continue
		}
		if got := rune(labels[x]); got != segmentLabel(seg) {
			t.Errorf("Expected %q at column %d for %s, got %q", segmentLabel(seg), x, seg.ID, got)
		}
	}

	markers := c.row(roadTop - 1)
	if x := proj.column(axis.Of(state.Geometry.Start)); markers[x] != 'S' {
		t.Errorf("Expected start marker at column %d, got %q", x, markers)
	}
	if x := proj.column(axis.Of(state.Geometry.End)); markers[x] != 'E' {
		t.Errorf("Expected end marker at column %d, got %q", x, markers)
	}

	if !strings.HasPrefix(c.row(roadTop+roadHeight+1), "gaps: max") {
		t.Errorf("Expected gap line, got %q", c.row(roadTop+roadHeight+1))
	}
	if !strings.Contains(c.row(roadTop+roadHeight+2), "last recycle: frame 1") {
		t.Errorf("Expected last recycle line, got %q", c.row(roadTop+roadHeight+2))
	}
}

func TestRender_TinyCanvas(t *testing.T) {
	engine := road.NewEngineWithDefaults()
	state := engine.GetState()

	// The fake canvas panics on any write outside its bounds.
	for _, size := range [][2]int{{1, 1}, {5, 3}, {0, 0}} {
		render(newFakeCanvas(size[0], size[1]), state, "status")
	}
}

func TestSegmentLabel(t *testing.T) {
	tests := []struct {
		seg  road.SegmentState
		want rune
	}{
		{road.SegmentState{ID: "tile_a"}, 'a'},
		{road.SegmentState{ID: "lane-3"}, '3'},
		{road.SegmentState{ID: "plank"}, 'p'},
		{road.SegmentState{ID: "trailing_"}, 't'},
		{road.SegmentState{Index: 12}, '2'},
	}

	for _, tt := range tests {
		if got := segmentLabel(tt.seg); got != tt.want {
			t.Errorf("segmentLabel(%+v) = %q, want %q", tt.seg, got, tt.want)
		}
	}
}

func TestLocalSource(t *testing.T) {
	src, err := newLocalSource(road.DefaultRoadConfig())
	if err != nil {
		t.Fatalf("newLocalSource failed: %v", err)
	}

	state, err := src.Advance(0.1)
	if err != nil || state.Frame != 1 {
		t.Fatalf("Expected frame 1, got %+v (%v)", state, err)
	}

	// Large deltas are clamped to a single second.
	before := state.Elapsed
	state, _ = src.Advance(5)
	if state.Elapsed-before > road.MaxTickDelta+1e-6 {
		t.Errorf("Expected clamped delta, elapsed went from %v to %v", before, state.Elapsed)
	}

	src.SetPlaying(false)
	paused, _ := src.Advance(0.1)
	if paused.Frame != state.Frame {
		t.Errorf("Paused source should not advance, frame %d -> %d", state.Frame, paused.Frame)
	}

	if err := src.SetSpeed(-7); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	if err := src.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	state, _ = src.Advance(0.1)
	if state.Message != "Road re-arranged." || state.Speed != -7 {
		t.Errorf("Expected reset road keeping speed -7, got %q speed %v", state.Message, state.Speed)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

type fakeSource struct {
	playing bool
	speed   float32
	resets  int
}

func (f *fakeSource) Advance(float32) (*road.RoadState, error) { return nil, nil }
func (f *fakeSource) SetPlaying(playing bool) error             { f.playing = playing; return nil }
func (f *fakeSource) Reset() error                              { f.resets++; return nil }
func (f *fakeSource) SetSpeed(speed float32) error              { f.speed = speed; return nil }
func (f *fakeSource) Close() error                              { return nil }

func TestViewer_HandleKey(t *testing.T) {
	src := &fakeSource{playing: true}
	v := &viewer{src: src, playing: true, state: &road.RoadState{Speed: -3}}

	key := func(r rune) bool {
		return v.handleKey(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}

	if key(' ') || src.playing || v.status != "paused" {
		t.Errorf("Space should pause, playing=%v status=%q", src.playing, v.status)
	}
	if key('+') || src.speed != -4 {
		t.Errorf("Expected speed -4, got %v", src.speed)
	}
	if key('-') || src.speed != -2 {
		t.Errorf("Expected speed -2, got %v", src.speed)
	}
	if key('r') || src.resets != 1 {
		t.Errorf("Expected one reset, got %d", src.resets)
	}
	if !key('q') {
		t.Error("q should quit")
	}
	if !v.handleKey(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)) {
		t.Error("Escape should quit")
	}
	if v.handleKey(tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone)) {
		t.Error("Arrow keys should be ignored")
	}
}

func TestViewer_Run(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(60, 16)

	src, err := newLocalSource(road.DefaultRoadConfig())
	if err != nil {
		t.Fatal(err)
	}
	v := &viewer{screen: screen, src: src, fps: 60, playing: true}

	done := make(chan error, 1)
	go func() { done <- v.run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Viewer did not quit")
	}
	if v.state == nil || v.state.Frame == 0 {
		t.Error("Expected the road to advance while running")
	}
}

func newRoadServer(t *testing.T) (*httptest.Server, service.RoadService) {
	t.Helper()
	configs, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to create config manager: %v", err)
	}
	svc := service.NewRoadService(session.NewManager(), configs, nil)

	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := httptest.NewServer(api.NewServer(svc, hub))
	t.Cleanup(server.Close)
	return server, svc
}

func waitForState(t *testing.T, src *remoteSource, ok func(*road.RoadState) bool) *road.RoadState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, err := src.Advance(0)
		if err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		if state != nil && ok(state) {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for road state")
	return nil
}

func TestRemoteSource(t *testing.T) {
	server, svc := newRoadServer(t)
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "default")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	src, err := dialRemote(ctx, server.URL+"/", info.ID, 30, zap.NewNop())
	if err != nil {
		t.Fatalf("dialRemote failed: %v", err)
	}

	state := waitForState(t, src, func(s *road.RoadState) bool { return true })
	// configs/default.json
	if state.ConfigName != "Classic Highway" {
		t.Errorf("Expected Classic Highway, got %s", state.ConfigName)
	}

	if err := src.SetSpeed(-9); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	waitForState(t, src, func(s *road.RoadState) bool { return s.Speed == -9 })

	if _, err := svc.Tick(ctx, info.ID, 0.1, 3, false); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if err := src.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	waitForState(t, src, func(s *road.RoadState) bool {
		return s.Message == "Highway re-arranged around the pivot." && s.Speed == -9
	})

	// The server runs without a frame loop.
	if err := src.SetPlaying(true); err == nil || !strings.Contains(err.Error(), "Frame loop is not enabled") {
		t.Errorf("Expected frame loop error, got %v", err)
	}

	if err := src.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := src.Advance(0); err == nil {
		t.Error("Expected error after the connection closed")
	}
}

func TestDialRemote_UnknownSession(t *testing.T) {
	server, _ := newRoadServer(t)

	if _, err := dialRemote(context.Background(), server.URL, "missing", 30, zap.NewNop()); err == nil {
		t.Error("Expected dial to fail for an unknown session")
	}
}

func TestCommand_InvalidFlags(t *testing.T) {
	tests := [][]string{
		{"roadview", "--fps", "0"},
		{"roadview", "--url", "http://localhost:1"},
		{"roadview", "--config", "missing.yaml"},
	}

	for _, args := range tests {
		if err := newCommand().Run(context.Background(), args); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}
