package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cogentcore.org/core/math32"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/endless-road/game/road"
	"github.com/wricardo/endless-road/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Endless Road",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Endless Road - MCP Interface

This is a thin client that proxies all requests to the REST API server.

An endless road is a row of segments laid end to end along one axis. Every
tick moves the segments by speed*delta_time. A segment that passes the end
of the run is re-anchored just behind its neighbor, so the road never runs out.

AVAILABLE TOOLS:
- create_session: Create a new road session
- list_sessions: List all active sessions
- get_session: Get session details
- road_state: Get segment positions, geometry and gaps
- tick: Advance the road by delta_time, optionally several steps
- reset_road: Re-arrange the road to its initial layout
- recycle_history: View past recycle events
- update_settings: Change speed or spacing
- list_configs: List available road configurations
- road_instructions: Get a detailed explanation of the simulation
- describe_segment: Get detailed info about one segment and its neighbors`),
	)

	// Register all tools
	c.registerTools()
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new road session with optional config selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the config to use (optional, see list_configs)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active road sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	// Road operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "road_state",
		Description: "Get the current road state: segments, geometry and gaps",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleRoadState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tick",
		Description: "Advance the road by delta_time seconds, steps times",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"delta_time": map[string]interface{}{
					"type":        "number",
					"description": fmt.Sprintf("Seconds per step, 0 to %g (default 1/60)", road.MaxTickDelta),
				},
				"steps": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Number of steps, 1 to %d (default 1)", road.MaxBulkTicks),
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset the road before ticking",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleTick)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_road",
		Description: "Reset the road to its initial layout",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "recycle_history",
		Description: "Get the recycle history of a road with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number (default 1)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Events per page (default 20, max 100)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"description": "asc or desc (default desc)",
					"enum":        []string{"asc", "desc"},
				},
				"current": map[string]interface{}{
					"type":        "boolean",
					"description": "Only events since the last reset",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleRecycleHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "update_settings",
		Description: "Change the speed or spacing of a road. Spacing applies on the next reset.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"speed": map[string]interface{}{
					"type":        "number",
					"description": "Units per second along the axis, negative moves toward the end",
				},
				"spacing": map[string]interface{}{
					"type":        "number",
					"description": "Gap between adjacent segments, 0 or more",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset the road after applying the settings",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleUpdateSettings)

	// Configuration
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available road configurations",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "road_instructions",
		Description: "Get a detailed explanation of how the endless road works",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleRoadInstructions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_segment",
		Description: "Describe one segment: position, extent and distance to its neighbors",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"segment_id": map[string]interface{}{
					"type":        "string",
					"description": "Segment ID, e.g. tile_a",
				},
				"index": map[string]interface{}{
					"type":        "integer",
					"description": "Segment index, used when segment_id is not given",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleDescribeSegment)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP call to the REST API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// sessionArg returns the escaped session_id argument.
func sessionArg(args map[string]interface{}) (string, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return url.PathEscape(sessionID), nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	body := map[string]string{}
	if configID, ok := args["config_id"].(string); ok && configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp struct {
		Sessions []*service.SessionInfo `json:"sessions"`
		Total    int                    `json:"total"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(resp.Sessions) == 0 {
		return mcp.NewToolResultText("No active sessions"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n", resp.Total)
	for _, s := range resp.Sessions {
		frame := 0
		if s.RoadState != nil {
			frame = s.RoadState.Frame
		}
		fmt.Fprintf(&b, "- %s (config: %s, frame: %d, last accessed: %s)\n",
			s.ID, s.ConfigName, frame, s.LastAccessedAt.Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := sessionArg(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+sessionID, nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleRoadState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := sessionArg(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state road.RoadState
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+sessionID+"/state", nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoadState(&state)), nil
}

func (c *Client) handleTick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, err := sessionArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{}
	if dt, ok := args["delta_time"].(float64); ok {
		body["delta_time"] = dt
	}
	if steps, ok := args["steps"].(float64); ok {
		body["steps"] = int(steps)
	}
	if reset, ok := args["reset"].(bool); ok && reset {
		body["reset"] = true
	}

	var result service.TickResult
	if err := c.apiCall(ctx, "POST", "/api/sessions/"+sessionID+"/tick", body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTickResult(&result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := sessionArg(arguments(request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var resp struct {
		Message string          `json:"message"`
		State   *road.RoadState `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", "/api/sessions/"+sessionID+"/reset", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := resp.Message
	if resp.State != nil {
		text += "\n\n" + formatRoadState(resp.State)
	}
	return mcp.NewToolResultText(text), nil
}

func (c *Client) handleRecycleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, err := sessionArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{}
	if page, ok := args["page"].(float64); ok {
		query.Set("page", strconv.Itoa(int(page)))
	}
	if limit, ok := args["limit"].(float64); ok {
		query.Set("limit", strconv.Itoa(int(limit)))
	}
	if order, ok := args["order"].(string); ok && order != "" {
		query.Set("order", order)
	}
	if current, ok := args["current"].(bool); ok && current {
		query.Set("current", "true")
	}

	path := "/api/sessions/" + sessionID + "/history"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleUpdateSettings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, err := sessionArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{}
	if speed, ok := args["speed"].(float64); ok {
		body["speed"] = speed
	}
	if spacing, ok := args["spacing"].(float64); ok {
		body["spacing"] = spacing
	}
	if reset, ok := args["reset"].(bool); ok && reset {
		body["reset"] = true
	}
	if len(body) == 0 {
		return mcp.NewToolResultError("nothing to update: pass speed, spacing or reset"), nil
	}

	var state road.RoadState
	if err := c.apiCall(ctx, "PATCH", "/api/sessions/"+sessionID+"/settings", body, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("✓ Settings updated\n\n" + formatRoadState(&state)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []*service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(configs) == 0 {
		return mcp.NewToolResultText("No configurations available"), nil
	}

	var b strings.Builder
	b.WriteString("Available Configurations:\n")
	for _, cfg := range configs {
		fmt.Fprintf(&b, "- %s: %s (%d segments, axis %s, speed %g)\n",
			cfg.ConfigID, cfg.Name, cfg.Segments, cfg.Axis, cfg.Speed)
		if cfg.Description != "" {
			fmt.Fprintf(&b, "  %s\n", cfg.Description)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleRoadInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := fmt.Sprintf(`Endless Road - Complete Instructions

OVERVIEW:
A road is a fixed set of segments (tiles) laid end to end along one axis
(x, y or z). The road scrolls: each tick every segment moves by
speed * delta_time along the axis. Segments never get created or destroyed.
When a segment leaves the run it is recycled to the other end.

GEOMETRY:
- On reset the segments are centered on the pivot, separated by spacing.
- Start is the position of the first segment, End the position of the last.
- Direction points from End to Start, Total Distance is the length of the run.
- A road needs at least %d segments whose first and last positions differ.

RECYCLING:
- Negative speed moves segments toward the end of the run. A segment that
  moves past End is re-anchored just before its neighbor at the start side.
- Positive speed mirrors this: a segment past Start is re-anchored after its
  neighbor at the end side.
- A recycled segment is placed flush against its neighbor. Spacing only
  applies when the road is arranged, so seams made by recycling have no gap.
- The first tick of a fresh road recycles the last segment, which sits
  exactly at End.

TICKING:
- delta_time is clamped to [0, %g] seconds.
- steps runs several ticks in one call, up to %d.
- reset before ticking returns the road to its initial layout first.

SETTINGS:
- speed applies on the next tick, up to %d in magnitude.
- spacing applies on the next reset.

READING THE STATE:
- Segments are listed in their original order with their position along the axis.
- Gaps are measured between positionally adjacent segments. On a healthy
  road every gap is either 0 (a recycled seam) or the arrangement spacing.
- recycle_history lists every recycle with the segment, its neighbor,
  the boundary crossed and the from/to positions.

TOOLS WORKFLOW:
1. list_configs to see available roads
2. create_session with a config_id
3. tick with steps to scroll the road
4. road_state or describe_segment to inspect the layout
5. recycle_history to audit recycles

Enjoy the ride!`, road.MinSegments, road.MaxTickDelta, road.MaxBulkTicks, road.MaxSpeed)

	return mcp.NewToolResultText(instructions), nil
}

func (c *Client) handleDescribeSegment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, err := sessionArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state road.RoadState
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+sessionID+"/state", nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	segmentID, _ := args["segment_id"].(string)
	index := -1
	if idx, ok := args["index"].(float64); ok {
		index = int(idx)
	}
	if segmentID == "" && index < 0 {
		return mcp.NewToolResultError("segment_id or index is required"), nil
	}

	target := -1
	for i, seg := range state.Segments {
		if (segmentID != "" && seg.ID == segmentID) || (segmentID == "" && seg.Index == index) {
			target = i
			break
		}
	}
	if target < 0 {
		if segmentID != "" {
			return mcp.NewToolResultError(fmt.Sprintf("segment %q not found", segmentID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("segment index %d out of range (0-%d)", index, len(state.Segments)-1)), nil
	}

	return mcp.NewToolResultText(describeSegment(&state, target)), nil
}

// Format helpers

func formatSessionInfo(session *service.SessionInfo) string {
	result := fmt.Sprintf("Session ID: %s\nConfig: %s\nCreated: %s\n",
		session.ID, session.ConfigName, session.CreatedAt.Format(time.RFC3339))
	if session.RoadState != nil {
		result += "\n" + formatRoadState(session.RoadState)
	}
	return result
}

func formatVector(v math32.Vector3) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

func formatRoadState(state *road.RoadState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Road: %s\n", state.ConfigName)
	fmt.Fprintf(&b, "Frame: %d  Elapsed: %.3fs\n", state.Frame, state.Elapsed)
	fmt.Fprintf(&b, "Axis: %s  Speed: %g  Spacing: %g\n", state.Axis, state.Speed, state.Spacing)
	fmt.Fprintf(&b, "Start: %s  End: %s  Total Distance: %.3f\n",
		formatVector(state.Geometry.Start), formatVector(state.Geometry.End), state.Geometry.TotalDistance)
	fmt.Fprintf(&b, "Recycles: %d total, %d since reset\n", state.TotalRecycles, state.CurrentRecyclesCount)

	axis, _ := road.ParseAxis(state.Axis)
	b.WriteString("\nSegments:\n")
	for _, seg := range state.Segments {
		fmt.Fprintf(&b, "  [%d] %-10s %s=%9.3f  depth %g\n",
			seg.Index, seg.ID, axis, axis.Of(seg.Position), seg.Depth)
	}

	if state.Gaps != nil {
		fmt.Fprintf(&b, "\nGaps: max %.4f, max overlap %.4f, span %.3f\n",
			state.Gaps.MaxGap, state.Gaps.MaxOverlap, state.Gaps.Span)
		if dev := state.Gaps.MaxSeamDeviation(state.Spacing); dev > 1e-3 {
			fmt.Fprintf(&b, "⚠ Gaps deviate from spacing by up to %.4f\n", dev)
		}
	}

	if state.Message != "" {
		fmt.Fprintf(&b, "\nMessage: %s\n", state.Message)
	}
	return b.String()
}

func formatRecycle(ev road.RecycleEvent, axis road.Axis) string {
	return fmt.Sprintf("frame %d: %s recycled at %s next to %s (%s %.3f -> %.3f)",
		ev.Frame, ev.SegmentID, ev.Boundary, ev.NeighborID, axis, axis.Of(ev.From), axis.Of(ev.To))
}

func formatTickResult(result *service.TickResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "✓ Ticked %d/%d steps of %gs (frame %d -> %d)\n",
		result.StepsExecuted, result.RequestedSteps, result.DeltaTime, result.StartFrame, result.EndFrame)
	if result.Truncated {
		fmt.Fprintf(&b, "⚠ Truncated to %d steps\n", result.Limit)
	}

	axis := road.AxisZ
	if result.RoadState != nil {
		axis, _ = road.ParseAxis(result.RoadState.Axis)
	}

	if len(result.Recycles) > 0 {
		fmt.Fprintf(&b, "\nRecycles (%d):\n", len(result.Recycles))
		shown := result.Recycles
		if len(shown) > 10 {
			shown = shown[len(shown)-10:]
			fmt.Fprintf(&b, "  ... %d earlier\n", len(result.Recycles)-10)
		}
		for _, ev := range shown {
			fmt.Fprintf(&b, "  %s\n", formatRecycle(ev, axis))
		}
	}

	if result.RoadState != nil {
		b.WriteString("\n" + formatRoadState(result.RoadState))
	}
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	result := fmt.Sprintf("Recycle History (Page %d/%d) - Total: %d\n\n",
		history.Page, history.TotalPages, history.TotalRecycles)

	for i, ev := range history.Recycles {
		num := (history.Page-1)*history.PageSize + i + 1
		result += fmt.Sprintf("%d. frame %d: %s -> %s boundary, neighbor %s\n",
			num, ev.Frame, ev.SegmentID, ev.Boundary, ev.NeighborID)
	}

	if history.HasNext {
		result += fmt.Sprintf("\nMore events on page %d\n", history.Page+1)
	}
	return result
}

// describeSegment reports a segment's extent and its gaps to the segments
// positionally before and after it.
func describeSegment(state *road.RoadState, target int) string {
	axis, _ := road.ParseAxis(state.Axis)
	seg := state.Segments[target]
	center := axis.Of(seg.Position)
	half := seg.Depth / 2

	var b strings.Builder
	fmt.Fprintf(&b, "Segment %s (index %d)\n", seg.ID, seg.Index)
	fmt.Fprintf(&b, "Position: %s\n", formatVector(seg.Position))
	fmt.Fprintf(&b, "Extent along %s: %.3f to %.3f (depth %g)\n", axis, center-half, center+half, seg.Depth)

	order := make([]int, len(state.Segments))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return axis.Of(state.Segments[order[i]].Position) < axis.Of(state.Segments[order[j]].Position)
	})

	rank := 0
	for i, idx := range order {
		if idx == target {
			rank = i
		}
	}
	fmt.Fprintf(&b, "Order along %s: %d of %d\n", axis, rank+1, len(order))

	gap := func(a, c road.SegmentState) float32 {
		return axis.Of(c.Position) - axis.Of(a.Position) - a.Depth/2 - c.Depth/2
	}
	if rank > 0 {
		prev := state.Segments[order[rank-1]]
		fmt.Fprintf(&b, "Before: %s, gap %.4f\n", prev.ID, gap(prev, seg))
	} else {
		b.WriteString("Before: none (first along the axis)\n")
	}
	if rank < len(order)-1 {
		next := state.Segments[order[rank+1]]
		fmt.Fprintf(&b, "After: %s, gap %.4f\n", next.ID, gap(seg, next))
	} else {
		b.WriteString("After: none (last along the axis)\n")
	}

	toEnd := axis.Of(state.Geometry.End) - center
	toStart := axis.Of(state.Geometry.Start) - center
	fmt.Fprintf(&b, "Distance to start: %.3f, to end: %.3f\n", toStart, toEnd)

	var last *road.RecycleEvent
	for i := range state.RecycleHistory {
		if state.RecycleHistory[i].SegmentID == seg.ID {
			last = &state.RecycleHistory[i]
		}
	}
	if last != nil {
		fmt.Fprintf(&b, "Last recycle: %s\n", formatRecycle(*last, axis))
	} else {
		b.WriteString("Never recycled\n")
	}
	return b.String()
}
