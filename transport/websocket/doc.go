// Package websocket streams endless road state to viewers.
//
// A Hub keeps the connected clients of every session. Clients connect to
// /ws?session=<id> and receive JSON messages:
//
//	{"session_id": "ab12", "client_id": "<uuid>", "event": "connected"}
//	{"session_id": "ab12", "event": "state_update", "road_state": {...}}
//	{"session_id": "ab12", "event": "recycle", "data": [...]}
//
// Broadcasts never block the caller. Messages for a session with no
// clients are dropped, and a client whose buffer is full is disconnected.
// Messages sent by clients are read only to keep the connection alive.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.WithLogger(logger))
//	go hub.Run(ctx)
//
//	hub.BroadcastToSession(sessionID, state)
package websocket
