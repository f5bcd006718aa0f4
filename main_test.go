package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/wricardo/endless-road/api"
	"github.com/wricardo/endless-road/transport/mcp"
)

func testOptions(t *testing.T) options {
	t.Helper()
	return options{
		host:        "localhost",
		port:        8080,
		configDir:   "configs",
		sessionsDir: t.TempDir(),
		fps:         30,
	}
}

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName == "" {
		t.Error("AppName should not be empty")
	}

	expectedAppName := "Endless Road Server"
	if AppName != expectedAppName {
		t.Errorf("Expected app name %s, got %s", expectedAppName, AppName)
	}
}

func TestInitializeServices(t *testing.T) {
	if _, err := os.Stat("configs"); os.IsNotExist(err) {
		t.Skip("Skipping test - configs directory not found")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := initializeServices(ctx, testOptions(t), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}

	if svc.road == nil || svc.sessions == nil || svc.persistence == nil {
		t.Fatal("Expected all services to be initialized")
	}
}

func TestInitializeServices_InvalidConfigDir(t *testing.T) {
	opts := testOptions(t)
	opts.configDir = "/non/existent/path"

	_, err := initializeServices(context.Background(), opts, zap.NewNop())
	if err == nil {
		t.Error("Expected error for non-existent config directory")
	}
}

func TestCommandDefaults(t *testing.T) {
	cmd := newCommand(nil)

	defaults := map[string]bool{}
	for _, flag := range cmd.Flags {
		for _, name := range flag.Names() {
			defaults[name] = true
		}
	}
	for _, name := range []string{"host", "port", "config-dir", "sessions-dir", "debug", "fps", "ngrok", "ngrok-auth", "ngrok-domain"} {
		if !defaults[name] {
			t.Errorf("Missing flag %s", name)
		}
	}

	modes := map[string]bool{}
	for _, sub := range cmd.Commands {
		modes[sub.Name] = true
		for _, alias := range sub.Aliases {
			modes[alias] = true
		}
	}
	for _, mode := range []string{"server", "http", "stdio-mcp", "mcp-stdio", "mcp"} {
		if !modes[mode] {
			t.Errorf("Missing mode %s", mode)
		}
	}
}

func TestCommandRejectsInvalidFPS(t *testing.T) {
	err := newCommand(nil).Run(context.Background(), []string{"endless-road", "--fps", "0"})
	if err == nil {
		t.Error("Expected error for --fps 0")
	}
}

func TestLocalURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost", "http://localhost:8080"},
		{"0.0.0.0", "http://localhost:8080"},
		{"", "http://localhost:8080"},
		{"127.0.0.1", "http://127.0.0.1:8080"},
	}

	for _, tt := range tests {
		opts := options{host: tt.host, port: 8080}
		if got := opts.localURL(); got != tt.want {
			t.Errorf("localURL(%q) = %s, want %s", tt.host, got, tt.want)
		}
	}
}

func TestPruneDeletedSessions(t *testing.T) {
	if _, err := os.Stat("configs"); os.IsNotExist(err) {
		t.Skip("Skipping test - configs directory not found")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions(t)
	svc, err := initializeServices(ctx, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}

	keep, err := svc.road.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	gone, err := svc.road.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := os.Remove(filepath.Join(opts.sessionsDir, gone.ID+".json")); err != nil {
		t.Fatalf("Failed to remove session file: %v", err)
	}

	if pruned := pruneDeletedSessions(svc.sessions, svc.persistence, zap.NewNop()); pruned != 1 {
		t.Errorf("Expected 1 pruned session, got %d", pruned)
	}
	if _, err := svc.sessions.Get(keep.ID); err != nil {
		t.Errorf("Session %s should remain: %v", keep.ID, err)
	}
	if _, err := svc.sessions.Get(gone.ID); err == nil {
		t.Errorf("Session %s should have been pruned", gone.ID)
	}
}

func TestMCPEndpoint(t *testing.T) {
	if _, err := os.Stat("configs"); os.IsNotExist(err) {
		t.Skip("Skipping test - configs directory not found")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := initializeServices(ctx, testOptions(t), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}

	handler := newHandler(api.NewServer(svc.road, nil), mcp.NewClient("http://localhost:0"))
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/mcp")
	if err != nil {
		t.Fatalf("GET /mcp failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /mcp, got %d", resp.StatusCode)
	}

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp, err = http.Post(server.URL+"/mcp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /mcp failed: %v", err)
	}
	defer resp.Body.Close()

	var rpc struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		t.Fatalf("Failed to decode MCP response: %v", err)
	}
	if len(rpc.Result.Tools) != 11 {
		t.Errorf("Expected 11 tools, got %d", len(rpc.Result.Tools))
	}

	resp, err = http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from health, got %d", resp.StatusCode)
	}
}
