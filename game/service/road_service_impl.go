package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/endless-road/game/road"
)

// roadServiceImpl implements the RoadService interface
type roadServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewRoadService creates a new road service instance
func NewRoadService(sessions SessionManager, configs ConfigManager, logger *zap.Logger) RoadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &roadServiceImpl{
		sessions: sessions,
		configs:  configs,
		logger:   logger,
	}
}

// getConfigID returns the config_id for a session, used for consistent API responses
func (s *roadServiceImpl) getConfigID(sess *Session) string {
	if sess.ConfigID != "" {
		return sess.ConfigID
	}
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == sess.Config.Name {
				return cfg.ConfigID
			}
		}
	}
	// Fallback: return as-is or "default"
	if sess.Config.Name == "" {
		return "default"
	}
	return sess.Config.Name
}

func (s *roadServiceImpl) sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     s.getConfigID(sess),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessed(),
		RoadState:      sess.Engine.GetState(),
		RoadConfig:     sess.Config,
	}
}

// CreateSession creates a new road session
func (s *roadServiceImpl) CreateSession(ctx context.Context, configID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Load configuration
	var config *road.RoadConfig
	var err error
	if configID != "" {
		config, err = s.configs.LoadConfig(configID)
		if err != nil {
			// Provide helpful error message with available options
			if strings.Contains(err.Error(), "configuration not found") {
				availableConfigs, listErr := s.configs.ListConfigs()
				if listErr == nil && len(availableConfigs) > 0 {
					var configIDs []string
					for _, cfg := range availableConfigs {
						configIDs = append(configIDs, cfg.ConfigID)
					}
					return nil, fmt.Errorf("config '%s' not found. Available configs: %v: %w", configID, configIDs, err)
				}
				return nil, fmt.Errorf("config '%s' not found. Use /api/configs to list available configurations: %w", configID, err)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configID, err)
		}
	} else {
		config = s.configs.GetDefault()
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	sess.ConfigID = configID
	if sess.ConfigID == "" {
		sess.ConfigID = s.getConfigID(sess)
	}
	s.save(sess.ID, "create")

	s.logger.Info("session created",
		zap.String("session", sess.ID),
		zap.String("config", sess.ConfigID),
		zap.Int("segments", len(config.Segments)),
	)

	return s.sessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *roadServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)

	return s.sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *roadServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess))
	}

	return result, nil
}

// DeleteSession removes a session
func (s *roadServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	s.logger.Info("session deleted", zap.String("session", sessionID))
	return nil
}

// Tick advances a session's road by steps frames of dt seconds each
func (s *roadServiceImpl) Tick(ctx context.Context, sessionID string, dt float32, steps int, reset bool) (*TickResult, error) {
	if dt < 0 || dt > road.MaxTickDelta || math.IsNaN(float64(dt)) {
		return nil, fmt.Errorf("%w: delta_time must be between 0 and %v, got %v", ErrInvalidDelta, road.MaxTickDelta, dt)
	}
	if steps < 0 {
		return nil, fmt.Errorf("%w: steps must not be negative, got %d", ErrInvalidSteps, steps)
	}
	if steps == 0 {
		steps = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	// Update last accessed time
	s.sessions.UpdateLastAccessed(sessionID)

	result := &TickResult{
		RequestedSteps: steps,
		DeltaTime:      dt,
		Recycles:       []road.RecycleEvent{},
		Events:         []RoadEvent{},
	}

	// Handle reset if requested
	if reset {
		if _, err := sess.Engine.Reset(); err != nil {
			return nil, fmt.Errorf("failed to reset road: %w", err)
		}
		result.Events = append(result.Events, RoadEvent{
			Type:      "reset",
			Message:   "Road re-arranged around the pivot",
			Timestamp: time.Now(),
		})
	}

	if steps > road.MaxBulkTicks {
		result.Truncated = true
		result.Limit = road.MaxBulkTicks
		steps = road.MaxBulkTicks
	}

	result.StartFrame = sess.Engine.GetFrame()
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, ev := range sess.Engine.Tick(dt) {
			result.Recycles = append(result.Recycles, ev)
			result.Events = append(result.Events, RoadEvent{
				Type:      "recycle",
				Message:   fmt.Sprintf("Segment %s re-anchored next to %s", ev.SegmentID, ev.NeighborID),
				Timestamp: time.Unix(ev.Timestamp, 0),
				SegmentID: ev.SegmentID,
				Boundary:  ev.Boundary,
			})
		}
		result.StepsExecuted++
	}
	result.EndFrame = sess.Engine.GetFrame()

	result.RoadState = sess.Engine.GetState()
	result.Message = result.RoadState.Message

	s.logger.Debug("road ticked",
		zap.String("session", sessionID),
		zap.Int("frame", result.EndFrame),
		zap.Int("steps", result.StepsExecuted),
		zap.Int("recycles", len(result.Recycles)),
	)

	// Auto-save session after ticking
	s.save(sessionID, "tick")

	return result, nil
}

// Reset re-arranges a session's road
func (s *roadServiceImpl) Reset(ctx context.Context, sessionID string) (*road.RoadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	state, err := sess.Engine.Reset()
	if err != nil {
		return nil, fmt.Errorf("failed to reset road: %w", err)
	}

	// Auto-save session after reset
	s.save(sessionID, "reset")

	return state, nil
}

// UpdateSettings changes the speed and spacing of a session's road
func (s *roadServiceImpl) UpdateSettings(ctx context.Context, sessionID string, update SettingsUpdate) (*road.RoadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)

	// Spacing is checked against the road first so a rejected update
	// changes nothing.
	before := sess.Engine.GetState()
	if update.Spacing != nil {
		if err := sess.Engine.SetSpacing(*update.Spacing); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}
	if update.Speed != nil {
		if err := sess.Engine.SetSpeed(*update.Speed); err != nil {
			sess.Engine.SetSpacing(before.Spacing)
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}

	state := sess.Engine.GetState()
	if update.Reset {
		if state, err = sess.Engine.Reset(); err != nil {
			return nil, fmt.Errorf("failed to reset road: %w", err)
		}
	}

	s.logger.Info("settings updated",
		zap.String("session", sessionID),
		zap.Float32("speed", state.Speed),
		zap.Float32("spacing", state.Spacing),
	)

	s.save(sessionID, "settings")

	return state, nil
}

// GetRoadState retrieves the current road state
func (s *roadServiceImpl) GetRoadState(ctx context.Context, sessionID string) (*road.RoadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	return sess.Engine.GetState(), nil
}

// GetRecycleHistory returns paginated recycle history
func (s *roadServiceImpl) GetRecycleHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	state := sess.Engine.GetState()
	history := state.RecycleHistory
	if opts.Current {
		history = state.CurrentRecycles
	}
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	// Calculate pagination
	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	recycles := []road.RecycleEvent{}
	if start < total {
		if opts.Order == "desc" {
			// Most recent first
			for i := total - 1 - start; i >= total-end; i-- {
				recycles = append(recycles, history[i])
			}
		} else {
			recycles = append(recycles, history[start:end]...)
		}
	}

	return &HistoryResponse{
		Recycles:      recycles,
		TotalRecycles: total,
		Page:          opts.Page,
		PageSize:      opts.Limit,
		TotalPages:    totalPages,
		HasNext:       opts.Page < totalPages,
		HasPrevious:   opts.Page > 1,
	}, nil
}

// ListConfigs returns available road configurations
func (s *roadServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific road configuration
func (s *roadServiceImpl) LoadConfig(ctx context.Context, configID string) (*road.RoadConfig, error) {
	return s.configs.LoadConfig(configID)
}

// SaveConfig saves a road configuration to disk
func (s *roadServiceImpl) SaveConfig(ctx context.Context, configID string, config *road.RoadConfig) error {
	if err := s.configs.SaveConfig(configID, config); err != nil {
		return err
	}
	s.logger.Info("config saved", zap.String("config", configID))
	return nil
}

// save persists a session, logging instead of failing the operation.
func (s *roadServiceImpl) save(sessionID, op string) {
	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn("failed to persist session",
			zap.String("session", sessionID),
			zap.String("op", op),
			zap.Error(err),
		)
	}
}
