// Package road implements the endless scrolling road.
//
// A fixed set of segments is laid out edge to edge along a travel axis and
// moved every frame. A segment that passes the boundary the run is moving
// toward is re-anchored flush against its neighbor at the opposite end, so
// the run behaves like a ring and never opens a gap.
//
// Core Types:
//
// Segment is anything with a position and renderable part bounds; Tile is
// the implementation used by sessions. Arrange lays segments out around a
// pivot, Scroller owns the ordered sequence and its RunGeometry, and
// RoadEngine wraps a Scroller with a frame counter, recycle history and
// serializable RoadState snapshots. RoadConfig describes a road in JSON or
// YAML.
//
// Usage:
//
//	config, err := road.LoadRoadConfig("configs/highway.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	engine, err := road.NewEngine(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Advance one 60 Hz frame
//	recycled := engine.Tick(1.0 / 60)
//	state := engine.GetState()
//
// Recycling:
//
// With a negative speed the run moves toward its end; a segment whose
// rounded distance from the start reaches the run length is placed ahead of
// its successor. With a non-negative speed the run moves toward its start
// and a segment at or past the start is placed behind its predecessor.
// Spacing only applies when arranging; recycled segments are always flush.
package road
