// Package mcp exposes the endless road REST API as Model Context Protocol tools.
//
// Client is a thin proxy: every tool call becomes one or two REST requests
// against a running server, and the JSON response is rendered as text for
// the agent. Tool failures are returned as MCP tool errors, never as
// protocol errors.
//
// Tools:
//   - create_session, list_sessions, get_session
//   - road_state: segments, geometry and gap report
//   - tick: advance by delta_time, optionally several steps or after a reset
//   - reset_road, update_settings
//   - recycle_history: paginated recycle events
//   - list_configs, road_instructions
//   - describe_segment: one segment's extent, neighbors and last recycle
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//
//	// Stdio mode
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP mode
//	router.PathPrefix("/mcp").Handler(server.NewStreamableHTTPServer(client.GetMCPServer()))
package mcp
