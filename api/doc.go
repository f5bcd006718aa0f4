// Package api provides the HTTP REST API for endless road sessions.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions                 {config_id}
//   - GET    /api/sessions                 ?sort=created|accessed&order=asc|desc&limit=n
//   - GET    /api/sessions/{id}
//   - DELETE /api/sessions/{id}
//
// Road operations:
//   - GET   /api/sessions/{id}/state
//   - POST  /api/sessions/{id}/tick      {delta_time, steps, reset}
//   - POST  /api/sessions/{id}/reset
//   - GET   /api/sessions/{id}/history   ?page&limit&order&current
//   - PATCH /api/sessions/{id}/settings  {speed, spacing, reset}
//   - POST  /api/sessions/{id}/play      {fps}
//   - POST  /api/sessions/{id}/pause
//
// Configuration:
//   - GET  /api/configs
//   - POST /api/configs                  road config plus optional config_id
//   - GET  /api/configs/{name}
//
// Other:
//   - GET /api/health
//   - GET /ws?session=<id>               WebSocket state stream
//
// A tick request without delta_time advances one 60 Hz frame. Every call
// that changes a road broadcasts the new state to the session's WebSocket
// clients.
//
// Error Handling:
//
// Errors are returned as {"error": "message"}. Unknown sessions and configs
// map to 404, invalid input to 400, conflicting play or pause requests to
// 409 and anything else to 500.
package api
