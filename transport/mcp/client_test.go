package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cogentcore.org/core/math32"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/endless-road/api"
	"github.com/wricardo/endless-road/game/config"
	"github.com/wricardo/endless-road/game/road"
	"github.com/wricardo/endless-road/game/service"
	"github.com/wricardo/endless-road/game/session"
)

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func testState() *road.RoadState {
	engine := road.NewEngineWithDefaults()
	engine.BulkTick(0.1, 5)
	return engine.GetState()
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	client := NewClient(baseURL + "/")

	if client == nil {
		t.Fatal("Expected client to be created")
	}

	if client.baseURL != baseURL {
		t.Errorf("Expected baseURL %s, got %s", baseURL, client.baseURL)
	}

	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}

	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"echo": body["value"]})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var response map[string]interface{}
	err := client.apiCall(context.Background(), "POST", "/api", map[string]string{"value": "road"}, &response)
	if err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}

	if response["echo"] != "road" {
		t.Errorf("Expected echo 'road', got %v", response["echo"])
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500 response")
	}

	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestClient_apiCall_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api/sessions/zzzz", nil, nil)
	if err == nil || err.Error() != "session not found" {
		t.Errorf("Expected 'session not found', got: %v", err)
	}
}

func TestClient_createSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions" {
			t.Errorf("Expected POST /api/sessions, got %s %s", r.Method, r.URL.Path)
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["config_id"] != "highway" {
			t.Errorf("Expected config_id highway, got %q", body["config_id"])
		}

		resp := service.SessionInfo{
			ID:         "ab12",
			ConfigName: "Highway",
			RoadState:  testState(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	result, err := client.handleCreateSession(context.Background(), callRequest("create_session", map[string]interface{}{
		"config_id": "highway",
	}))
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"Session ID: ab12", "Config: Highway", "Frame: 5", "tile_a"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
}

func TestClient_tick(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions/ab12/tick" {
			t.Errorf("Expected POST /api/sessions/ab12/tick, got %s %s", r.Method, r.URL.Path)
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["delta_time"] != 0.5 || body["steps"] != float64(3) || body["reset"] != true {
			t.Errorf("Unexpected tick body: %v", body)
		}

		engine := road.NewEngineWithDefaults()
		recycles := engine.BulkTick(0.5, 3)
		json.NewEncoder(w).Encode(service.TickResult{
			StepsExecuted:  3,
			RequestedSteps: 3,
			DeltaTime:      0.5,
			EndFrame:       3,
			Recycles:       recycles,
			RoadState:      engine.GetState(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	result, err := client.handleTick(context.Background(), callRequest("tick", map[string]interface{}{
		"session_id": "ab12",
		"delta_time": 0.5,
		"steps":      float64(3),
		"reset":      true,
	}))
	if err != nil {
		t.Fatalf("handleTick failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"Ticked 3/3 steps", "frame 0 -> 3", "Recycles", "tile_d recycled at end"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
}

func TestClient_MissingSessionID(t *testing.T) {
	client := NewClient("http://localhost:8080")
	ctx := context.Background()

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"get_session":      client.handleGetSession,
		"road_state":       client.handleRoadState,
		"tick":             client.handleTick,
		"reset_road":       client.handleReset,
		"recycle_history":  client.handleRecycleHistory,
		"update_settings":  client.handleUpdateSettings,
		"describe_segment": client.handleDescribeSegment,
	}

	for name, handler := range handlers {
		result, err := handler(ctx, callRequest(name, nil))
		if err != nil {
			t.Errorf("%s returned an error: %v", name, err)
			continue
		}
		if !result.IsError {
			t.Errorf("%s: expected a tool error without session_id", name)
		}
	}
}

func TestClient_recycleHistoryQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("page") != "2" || query.Get("limit") != "5" || query.Get("order") != "asc" || query.Get("current") != "true" {
			t.Errorf("Unexpected history query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(service.HistoryResponse{
			Recycles: []road.RecycleEvent{
				{Frame: 7, SegmentID: "tile_c", NeighborID: "tile_d", Boundary: road.BoundaryEnd},
			},
			TotalRecycles: 6,
			Page:          2,
			PageSize:      5,
			TotalPages:    2,
			HasPrevious:   true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	result, err := client.handleRecycleHistory(context.Background(), callRequest("recycle_history", map[string]interface{}{
		"session_id": "ab12",
		"page":       float64(2),
		"limit":      float64(5),
		"order":      "asc",
		"current":    true,
	}))
	if err != nil {
		t.Fatalf("handleRecycleHistory failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "Page 2/2") || !strings.Contains(text, "6. frame 7: tile_c -> end boundary, neighbor tile_d") {
		t.Errorf("Unexpected history output: %s", text)
	}
}

func TestClient_updateSettingsRequiresField(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleUpdateSettings(context.Background(), callRequest("update_settings", map[string]interface{}{
		"session_id": "ab12",
	}))
	if err != nil {
		t.Fatalf("handleUpdateSettings failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected a tool error when no setting is given")
	}
}

func TestFormatRoadState(t *testing.T) {
	state := testState()

	result := formatRoadState(state)

	expectedFields := []string{
		"Road: default",
		"Frame: 5",
		"Axis: z  Speed: -3  Spacing: 0",
		"Total Distance: 30.000",
		"[0] tile_a",
		"[3] tile_d",
		"Gaps: max",
	}

	for _, field := range expectedFields {
		if !strings.Contains(result, field) {
			t.Errorf("Expected field '%s' in formatted output, got: %s", field, result)
		}
	}

	if strings.Contains(result, "deviate") {
		t.Errorf("Healthy road should not report deviation: %s", result)
	}
}

func TestFormatRoadState_Deviation(t *testing.T) {
	state := testState()
	state.Gaps = &road.GapReport{Gaps: []float32{0, 2, 0}, MaxGap: 2}

	result := formatRoadState(state)

	if !strings.Contains(result, "⚠ Gaps deviate from spacing by up to 2.0000") {
		t.Errorf("Expected deviation warning, got: %s", result)
	}
}

func TestDescribeSegment(t *testing.T) {
	state := &road.RoadState{
		ConfigName: "test",
		Axis:       "z",
		Geometry: road.RunGeometry{
			Start: math32.Vec3(0, 0, -15),
			End:   math32.Vec3(0, 0, 15),
		},
		Segments: []road.SegmentState{
			{ID: "tile_a", Index: 0, Position: math32.Vec3(0, 0, -15), Depth: 10},
			{ID: "tile_b", Index: 1, Position: math32.Vec3(0, 0, -5), Depth: 10},
			{ID: "tile_c", Index: 2, Position: math32.Vec3(0, 0, 6), Depth: 10},
		},
		RecycleHistory: []road.RecycleEvent{
			{Frame: 1, SegmentID: "tile_b", NeighborID: "tile_a", Boundary: road.BoundaryEnd},
		},
	}

	result := describeSegment(state, 1)

	expected := []string{
		"Segment tile_b (index 1)",
		"Extent along z: -10.000 to 0.000",
		"Order along z: 2 of 3",
		"Before: tile_a, gap 0.0000",
		"After: tile_c, gap 1.0000",
		"Distance to start: -10.000, to end: 20.000",
		"Last recycle: frame 1: tile_b recycled at end next to tile_a",
	}
	for _, want := range expected {
		if !strings.Contains(result, want) {
			t.Errorf("Expected %q in description, got: %s", want, result)
		}
	}

	first := describeSegment(state, 0)
	if !strings.Contains(first, "Before: none") || !strings.Contains(first, "Never recycled") {
		t.Errorf("Unexpected description for first segment: %s", first)
	}
}

func TestClient_handleRoadInstructions(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleRoadInstructions(context.Background(), callRequest("road_instructions", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleRoadInstructions failed: %v", err)
	}

	text := resultText(t, result)
	expectedContent := []string{
		"Endless Road - Complete Instructions",
		"GEOMETRY:",
		"RECYCLING:",
		"TICKING:",
		"SETTINGS:",
		"TOOLS WORKFLOW:",
		"up to 10000",
	}

	for _, content := range expectedContent {
		if !strings.Contains(text, content) {
			t.Errorf("Expected '%s' in instructions, got: %s", content, text)
		}
	}
}

func newRESTServer(t *testing.T) *httptest.Server {
	t.Helper()
	configs, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to create config manager: %v", err)
	}
	svc := service.NewRoadService(session.NewManager(), configs, nil)
	server := httptest.NewServer(api.NewServer(svc, nil))
	t.Cleanup(server.Close)
	return server
}

func TestClient_Integration(t *testing.T) {
	server := newRESTServer(t)
	client := NewClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.handleListConfigs(ctx, callRequest("list_configs", nil))
	if err != nil {
		t.Fatalf("list_configs failed: %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, "- default:") {
		t.Errorf("Expected default config in list, got: %s", text)
	}

	result, err = client.handleCreateSession(ctx, callRequest("create_session", map[string]interface{}{
		"config_id": "default",
	}))
	if err != nil || result.IsError {
		t.Fatalf("create_session failed: %v %s", err, resultText(t, result))
	}

	var resp struct {
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := client.apiCall(ctx, "GET", "/api/sessions", nil, &resp); err != nil || len(resp.Sessions) != 1 {
		t.Fatalf("Expected one session, got %d (%v)", len(resp.Sessions), err)
	}
	sessionID := resp.Sessions[0].ID

	result, err = client.handleTick(ctx, callRequest("tick", map[string]interface{}{
		"session_id": sessionID,
		"delta_time": 0.1,
		"steps":      float64(10),
	}))
	if err != nil || result.IsError {
		t.Fatalf("tick failed: %v %s", err, resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "Ticked 10/10 steps") {
		t.Errorf("Unexpected tick output: %s", text)
	}

	result, err = client.handleDescribeSegment(ctx, callRequest("describe_segment", map[string]interface{}{
		"session_id": sessionID,
		"segment_id": "tile_d",
	}))
	if err != nil || result.IsError {
		t.Fatalf("describe_segment failed: %v %s", err, resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "Last recycle: frame 1: tile_d recycled at end") {
		t.Errorf("Expected tile_d recycle on the first frame, got: %s", text)
	}

	result, err = client.handleDescribeSegment(ctx, callRequest("describe_segment", map[string]interface{}{
		"session_id": sessionID,
		"index":      float64(42),
	}))
	if err != nil || !result.IsError {
		t.Errorf("Expected tool error for unknown index, got err=%v", err)
	}

	result, err = client.handleUpdateSettings(ctx, callRequest("update_settings", map[string]interface{}{
		"session_id": sessionID,
		"speed":      float64(5),
	}))
	if err != nil || result.IsError {
		t.Fatalf("update_settings failed: %v %s", err, resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "Speed: 5") {
		t.Errorf("Expected new speed in output, got: %s", text)
	}

	result, err = client.handleReset(ctx, callRequest("reset_road", map[string]interface{}{
		"session_id": sessionID,
	}))
	if err != nil || result.IsError {
		t.Fatalf("reset_road failed: %v %s", err, resultText(t, result))
	}
	// Reset re-arranges the road but keeps the frame counter and the
	// cumulative history; only the since-reset count starts over.
	text := resultText(t, result)
	for _, want := range []string{
		"Highway re-arranged around the pivot.",
		"Frame: 10 ",
		"0 since reset",
		"z=  -15.000",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q after reset, got: %s", want, text)
		}
	}

	result, err = client.handleGetSession(ctx, callRequest("get_session", map[string]interface{}{
		"session_id": "zzzz",
	}))
	if err != nil || !result.IsError {
		t.Errorf("Expected tool error for unknown session, got err=%v", err)
	}
}
