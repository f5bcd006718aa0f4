package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/endless-road/game/road"
	roadws "github.com/wricardo/endless-road/transport/websocket"
)

// source feeds the viewer with road states.
type source interface {
	// Advance moves the road by dt when it is playing and returns the
	// latest state.
	Advance(dt float32) (*road.RoadState, error)
	SetPlaying(playing bool) error
	Reset() error
	SetSpeed(speed float32) error
	Close() error
}

// localSource scrolls an in-process engine.
type localSource struct {
	engine  *road.RoadEngine
	playing bool
}

func newLocalSource(config *road.RoadConfig) (*localSource, error) {
	engine, err := road.NewEngine(config)
	if err != nil {
		return nil, err
	}
	return &localSource{engine: engine, playing: true}, nil
}

func (s *localSource) Advance(dt float32) (*road.RoadState, error) {
	if s.playing {
		s.engine.Tick(min(dt, road.MaxTickDelta))
	}
	return s.engine.GetState(), nil
}

func (s *localSource) SetPlaying(playing bool) error {
	s.playing = playing
	return nil
}

func (s *localSource) Reset() error {
	_, err := s.engine.Reset()
	return err
}

func (s *localSource) SetSpeed(speed float32) error {
	return s.engine.SetSpeed(speed)
}

func (s *localSource) Close() error { return nil }

// remoteSource follows a server session over its websocket and drives it
// through the REST API.
type remoteSource struct {
	baseURL    string
	sessionID  string
	fps        int
	httpClient *http.Client
	conn       *websocket.Conn
	logger     *zap.Logger

	mu     sync.Mutex
	latest *road.RoadState
	err    error
	done   chan struct{}
}

func dialRemote(ctx context.Context, baseURL, sessionID string, fps int, logger *zap.Logger) (*remoteSource, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	wsURL := *base
	switch base.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(base.Path, "/") + "/ws"
	wsURL.RawQuery = url.Values{"session": {sessionID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL.Redacted(), err)
	}

	s := &remoteSource{
		baseURL:    base.String(),
		sessionID:  sessionID,
		fps:        fps,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		conn:       conn,
		logger:     logger,
		done:       make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *remoteSource) readLoop() {
	defer close(s.done)
	for {
		var msg roadws.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		if msg.RoadState == nil {
			s.logger.Debug("Ignoring websocket event", zap.String("event", msg.Event))
			continue
		}
		s.mu.Lock()
		s.latest = msg.RoadState
		s.mu.Unlock()
	}
}

// Advance ignores dt: the server's frame loop moves the road.
func (s *remoteSource) Advance(float32) (*road.RoadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.latest, fmt.Errorf("connection lost: %w", s.err)
	}
	return s.latest, nil
}

func (s *remoteSource) SetPlaying(playing bool) error {
	if playing {
		return s.call(http.MethodPost, "play", map[string]int{"fps": s.fps})
	}
	return s.call(http.MethodPost, "pause", nil)
}

func (s *remoteSource) Reset() error {
	return s.call(http.MethodPost, "reset", nil)
}

func (s *remoteSource) SetSpeed(speed float32) error {
	return s.call(http.MethodPatch, "settings", map[string]float32{"speed": speed})
}

func (s *remoteSource) Close() error {
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	<-s.done
	return err
}

func (s *remoteSource) call(method, action string, body interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	endpoint := fmt.Sprintf("%s/api/sessions/%s/%s", s.baseURL, url.PathEscape(s.sessionID), action)
	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s failed: %s", action, apiErr.Error)
		}
		return fmt.Errorf("%s failed: status %d", action, resp.StatusCode)
	}
	return nil
}
