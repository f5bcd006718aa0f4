// Package loop plays endless road sessions in real time.
//
// A Loop runs one goroutine per playing session, supervised by an errgroup.
// Each goroutine ticks its session at a fixed frame rate, passing the
// measured time since the previous frame (clamped to road.MaxTickDelta) as
// the tick delta, and publishes every result. The server publishes to the
// WebSocket hub so connected viewers see the road move.
package loop
