package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wricardo/endless-road/game/road"
)

var (
	ErrInvalidDelta    = errors.New("invalid delta time")
	ErrInvalidSteps    = errors.New("invalid step count")
	ErrInvalidSettings = errors.New("invalid settings")
)

// RoadService defines all road-related operations
type RoadService interface {
	// Session Management
	CreateSession(ctx context.Context, configID string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Simulation
	Tick(ctx context.Context, sessionID string, dt float32, steps int, reset bool) (*TickResult, error)
	Reset(ctx context.Context, sessionID string) (*road.RoadState, error)
	UpdateSettings(ctx context.Context, sessionID string, update SettingsUpdate) (*road.RoadState, error)

	// Road State
	GetRoadState(ctx context.Context, sessionID string) (*road.RoadState, error)
	GetRecycleHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configID string) (*road.RoadConfig, error)
	SaveConfig(ctx context.Context, configID string, config *road.RoadConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, config *road.RoadConfig) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id string, config *road.RoadConfig) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles road configuration loading
type ConfigManager interface {
	LoadConfig(name string) (*road.RoadConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *road.RoadConfig
	SaveConfig(name string, config *road.RoadConfig) error
}

// Session represents an active road session
type Session struct {
	ID        string
	ConfigID  string
	Engine    *road.RoadEngine
	Config    *road.RoadConfig
	CreatedAt time.Time

	// LastAccessedAt may be set directly until the session is shared.
	// After that use Touch and LastAccessed.
	LastAccessedAt time.Time
	accessMu       sync.Mutex
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.accessMu.Lock()
	s.LastAccessedAt = time.Now()
	s.accessMu.Unlock()
}

// LastAccessed returns when the session was last used.
func (s *Session) LastAccessed() time.Time {
	s.accessMu.Lock()
	defer s.accessMu.Unlock()
	return s.LastAccessedAt
}
