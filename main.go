// Command endless-road starts the Endless Road server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control host/port, config and sessions directories, debug logging,
// the default frame rate of played sessions, and optional ngrok tunneling
// for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/endless-road/api"
	"github.com/wricardo/endless-road/game/config"
	"github.com/wricardo/endless-road/game/loop"
	"github.com/wricardo/endless-road/game/service"
	"github.com/wricardo/endless-road/game/session"
	"github.com/wricardo/endless-road/logging"
	"github.com/wricardo/endless-road/transport/mcp"
	"github.com/wricardo/endless-road/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Endless Road Server"
)

const (
	sessionMaxAge        = 24 * time.Hour
	sessionCleanupPeriod = time.Hour
	filesystemSyncPeriod = 5 * time.Second

	// A playing session is written at most this often.
	sessionSaveInterval = time.Second
)

// options holds the parsed command line configuration.
type options struct {
	host        string
	port        int
	configDir   string
	sessionsDir string
	debug       bool
	fps         int
	ngrok       bool
	ngrokAuth   string
	ngrokDomain string
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.host, o.port)
}

// localURL is the base URL the in-process MCP client uses to reach the API.
func (o options) localURL() string {
	host := o.host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(o.port)))
}

func optionsFrom(cmd *cli.Command) options {
	return options{
		host:        cmd.String("host"),
		port:        cmd.Int("port"),
		configDir:   cmd.String("config-dir"),
		sessionsDir: cmd.String("sessions-dir"),
		debug:       cmd.Bool("debug"),
		fps:         cmd.Int("fps"),
		ngrok:       cmd.Bool("ngrok"),
		ngrokAuth:   cmd.String("ngrok-auth"),
		ngrokDomain: cmd.String("ngrok-domain"),
	}
}

// newCommand builds the command tree. envErr is the result of loading .env,
// reported once the logger exists.
func newCommand(envErr error) *cli.Command {
	serve := func(mode string) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			opts := optionsFrom(cmd)
			if opts.fps < 1 || opts.fps > loop.MaxFPS {
				return fmt.Errorf("--fps must be between 1 and %d", loop.MaxFPS)
			}

			logger, err := logging.New(opts.debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			switch {
			case envErr == nil:
				logger.Info("loaded environment variables from .env file")
			case !os.IsNotExist(envErr):
				logger.Warn("error loading .env file", zap.Error(envErr))
			}

			logger.Info("starting", zap.String("app", AppName), zap.String("version", Version), zap.String("mode", mode))

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := initializeServices(ctx, opts, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize services: %w", err)
			}

			if mode == "stdio-mcp" {
				return runStdioMCPWithInternalServer(ctx, opts, svc, logger)
			}
			return runHTTPServer(ctx, opts, svc, logger)
		}
	}

	return &cli.Command{
		Name:    "endless-road",
		Usage:   "Endless scrolling road simulation with REST, WebSocket and MCP interfaces",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: "localhost",
				Usage: "HTTP server host",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: 8080,
				Usage: "HTTP server port",
			},
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "Directory containing road configurations",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
			&cli.StringFlag{
				Name:    "sessions-dir",
				Value:   "sessions",
				Usage:   "Directory where sessions are persisted",
				Sources: cli.EnvVars("SESSIONS_DIR"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.IntFlag{
				Name:  "fps",
				Value: loop.DefaultFPS,
				Usage: "Default frame rate of played sessions",
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  serve("server"),
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  serve("stdio-mcp"),
			},
		},
		Action: serve("server"),
	}
}

// main loads .env, then runs the selected mode.
func main() {
	// Missing .env is fine; other errors are logged once the logger exists
	envErr := godotenv.Load()

	if err := newCommand(envErr).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// services holds the wired application components.
type services struct {
	road        service.RoadService
	sessions    *session.Manager
	persistence *session.FilePersistence
}

// initializeServices wires session/config managers and the road service.
// It also starts background routines, bound to ctx, that prune stale and
// deleted sessions.
func initializeServices(ctx context.Context, opts options, logger *zap.Logger) (*services, error) {
	// Restored sessions look their config up here
	configManager, err := config.NewManager(opts.configDir, config.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	persistence, err := session.NewFilePersistence(opts.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessionManager := session.NewManagerWithPersistence(persistence,
		session.WithLogger(logger),
		session.WithConfigs(configManager),
		session.WithSaveInterval(sessionSaveInterval),
	)

	// Load persisted sessions on startup
	if err := sessionManager.LoadPersistedSessions(); err != nil {
		logger.Warn("failed to load persisted sessions", zap.Error(err))
	}

	roadService := service.NewRoadService(sessionManager, configManager, logger)

	go sessionCleanupRoutine(ctx, sessionManager, logger)
	go filesystemSyncRoutine(ctx, sessionManager, persistence, logger)

	return &services{
		road:        roadService,
		sessions:    sessionManager,
		persistence: persistence,
	}, nil
}

// sessionCleanupRoutine periodically removes sessions that have not been accessed
// within the retention window.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, logger *zap.Logger) {
	ticker := time.NewTicker(sessionCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(sessionMaxAge); removed > 0 {
				logger.Info("cleaned up expired sessions", zap.Int("removed", removed))
			}
		}
	}
}

// filesystemSyncRoutine periodically writes coalesced session saves and drops
// sessions whose files were deleted.
func filesystemSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, logger *zap.Logger) {
	ticker := time.NewTicker(filesystemSyncPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := manager.Flush(); err != nil {
				logger.Warn("failed to flush sessions", zap.Error(err))
			}
			if pruned := pruneDeletedSessions(manager, persistence, logger); pruned > 0 {
				logger.Info("filesystem sync pruned orphaned sessions", zap.Int("pruned", pruned))
			}
		}
	}
}

// pruneDeletedSessions drops sessions whose file no longer exists.
func pruneDeletedSessions(manager *session.Manager, persistence session.SessionPersistence, logger *zap.Logger) int {
	if persistence == nil {
		return 0
	}

	pruned := 0
	for _, sess := range manager.List() {
		if persistence.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			logger.Info("pruned session from memory (file deleted)", zap.String("session", sess.ID))
		}
	}
	return pruned
}

// mcpHandler serves single JSON-RPC messages for the MCP server.
func mcpHandler(mcpServer *server.MCPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// newHandler combines the API server and the /mcp endpoint.
func newHandler(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.Handle("/mcp", mcpHandler(mcpClient.GetMCPServer()))
	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, frame loop
// and an /mcp proxy endpoint. If ngrok is enabled it also provisions a public
// tunnel. It returns once ctx is done and everything has shut down.
func runHTTPServer(ctx context.Context, opts options, svc *services, logger *zap.Logger) error {
	hub := websocket.NewHub(websocket.WithLogger(logger))
	go hub.Run(ctx)

	frames := loop.New(svc.road, api.Publisher(hub), loop.WithLogger(logger))

	apiServer := api.NewServer(svc.road, hub,
		api.WithLoop(frames),
		api.WithLogger(logger),
		api.WithDefaultFPS(opts.fps),
	)

	mcpClient := mcp.NewClient(opts.localURL())
	handler := newHandler(apiServer, mcpClient)

	addr := opts.addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening",
			zap.String("addr", addr),
			zap.String("api", fmt.Sprintf("http://%s/api", addr)),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if opts.ngrok {
		g.Go(func() error {
			runNgrokTunnel(gctx, opts, handler, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
		if err := frames.Shutdown(); err != nil {
			logger.Warn("frame loop stopped with error", zap.Error(err))
		}
		if err := svc.sessions.SaveAllSessions(); err != nil {
			logger.Warn("failed to save sessions", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	logger.Info("server stopped")
	return err
}

// runNgrokTunnel serves handler through an ngrok tunnel until ctx is done.
func runNgrokTunnel(ctx context.Context, opts options, handler http.Handler, logger *zap.Logger) {
	if opts.ngrokAuth == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	logger.Info("starting ngrok tunnel")

	// Configure ngrok endpoint
	var tunnel ngrokConfig.Tunnel
	if opts.ngrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.ngrokDomain))
		logger.Info("using custom ngrok domain", zap.String("domain", opts.ngrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.ngrokAuth))
	if err != nil {
		logger.Warn("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	ngrokURL := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", ngrokURL),
		zap.String("api", ngrokURL+"/api"),
		zap.String("websocket", ngrokURL+"/ws?session=<session_id>"),
		zap.String("mcp", ngrokURL+"/mcp"),
	)

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// externalAPIAvailable reports whether an API server answers at baseURL.
func externalAPIAvailable(baseURL string) bool {
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It tries to reuse an external API on the configured port; if unavailable, it
// starts a minimal internal HTTP API bound to a random loopback port and targets that.
func runStdioMCPWithInternalServer(ctx context.Context, opts options, svc *services, logger *zap.Logger) error {
	baseURL := opts.localURL()
	logger.Info("checking for external API server", zap.String("url", baseURL))

	if externalAPIAvailable(baseURL) {
		logger.Info("external API server found, using it for MCP", zap.String("url", baseURL))
	} else {
		logger.Info("no external API server found, starting internal HTTP server")

		// Start internal HTTP server on a random available port
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())

		hub := websocket.NewHub(websocket.WithLogger(logger))
		go hub.Run(ctx)

		frames := loop.New(svc.road, api.Publisher(hub), loop.WithLogger(logger))
		defer frames.Shutdown()

		httpServer := &http.Server{
			Handler: api.NewServer(svc.road, hub,
				api.WithLoop(frames),
				api.WithLogger(logger),
				api.WithDefaultFPS(opts.fps),
			),
		}
		defer httpServer.Close()

		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("internal HTTP server error", zap.Error(err))
			}
		}()

		logger.Info("internal HTTP server started for MCP stdio", zap.String("url", baseURL))
	}

	mcpClient := mcp.NewClient(baseURL)

	logger.Info("MCP stdio server ready", zap.String("api", baseURL))
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
