// Package service provides the business logic layer for endless road sessions.
//
// The service package implements:
//   - Multi-session road management
//   - Tick validation, bulk ticking and truncation
//   - Runtime speed and spacing changes
//   - Paginated recycle history
//
// Core Interfaces:
//
// RoadService is the main service interface used by the REST API, the MCP
// server and the frame loop. SessionManager handles session creation,
// retrieval and persistence. ConfigManager loads road configurations.
//
// Architecture:
//
// The service layer sits between the transports (HTTP, WebSocket, MCP) and
// the road engine. Every operation on a session runs under the service
// mutex, so the single-threaded road engine is never ticked concurrently.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	roadService := service.NewRoadService(sessionMgr, configMgr, logger)
//
//	info, err := roadService.CreateSession(ctx, "highway")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Advance ten 60 Hz frames
//	result, err := roadService.Tick(ctx, info.ID, 1.0/60, 10, false)
package service
