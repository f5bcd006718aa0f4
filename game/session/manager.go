package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/endless-road/game/road"
	"github.com/wricardo/endless-road/game/service"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// normalizeID checks that id is safe to use as a file name and returns its
// lower-case form. Session IDs are case-insensitive.
func normalizeID(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return strings.ToLower(id), nil
}

// entry is a session plus its persistence bookkeeping.
type entry struct {
	session *service.Session
	// pending is the latest snapshot not yet written.
	pending *Record
	written time.Time
}

// Manager keeps road sessions in memory and mirrors them to a
// SessionPersistence. With a save interval, saves of the same session
// closer together than the interval are coalesced and written by Flush.
type Manager struct {
	sessions     map[string]*entry
	persistence  SessionPersistence
	configs      service.ConfigManager
	saveInterval time.Duration
	logger       *zap.Logger
	mu           sync.Mutex
}

var _ service.SessionManager = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger. Session engines log through a child
// logger tagged with the session ID.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithConfigs sets where restored sessions look up their road config.
// Without it only sessions of the built-in default road can be restored.
func WithConfigs(configs service.ConfigManager) Option {
	return func(m *Manager) {
		m.configs = configs
	}
}

// WithSaveInterval coalesces saves of a session made within d of its last
// write. Zero writes on every save.
func WithSaveInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.saveInterval = d
	}
}

// NewManager creates a session manager without persistence.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*entry),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerWithPersistence creates a session manager that stores sessions.
func NewManagerWithPersistence(persistence SessionPersistence, opts ...Option) *Manager {
	m := NewManager(opts...)
	m.persistence = persistence
	return m
}

// Create builds a road session. An empty id gets a random 4-character one.
func (m *Manager) Create(id string, config *road.RoadConfig) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		// 65536 possible IDs; retry on collision
		id = generateSessionID()
		for m.sessions[id] != nil {
			id = generateSessionID()
		}
	} else {
		key, err := normalizeID(id)
		if err != nil {
			return nil, err
		}
		if m.sessions[key] != nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyExists, key)
		}
		id = key
	}

	eng, err := m.newEngine(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	now := time.Now()
	e := &entry{session: &service.Session{
		ID:             id,
		Engine:         eng,
		Config:         config,
		CreatedAt:      now,
		LastAccessedAt: now,
	}}
	m.sessions[id] = e

	if m.persistence != nil {
		if err := m.write(e); err != nil {
			// The session still works in memory.
			m.logger.Warn("failed to persist session", zap.String("session", id), zap.Error(err))
		}
	}

	return e.session, nil
}

// Get returns a session, restoring it from persistence when it is not in
// memory.
func (m *Manager) Get(id string) (*service.Session, error) {
	key, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[key]; ok {
		return e.session, nil
	}
	if m.persistence == nil || !m.persistence.Exists(key) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}

	e, err := m.load(key)
	if err != nil {
		return nil, err
	}
	m.sessions[key] = e
	return e.session, nil
}

// GetOrCreate gets an existing session or creates a new one.
func (m *Manager) GetOrCreate(id string, config *road.RoadConfig) (*service.Session, error) {
	session, err := m.Get(id)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, config)
	}
	return nil, err
}

// List returns the sessions in memory.
func (m *Manager) List() []*service.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		result = append(result, e.session)
	}
	return result
}

// Delete removes a session from memory and from persistence.
func (m *Manager) Delete(id string) error {
	key, err := normalizeID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, inMemory := m.sessions[key]
	delete(m.sessions, key)

	if m.persistence != nil && m.persistence.Exists(key) {
		if err := m.persistence.Delete(key); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}
	if !inMemory {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return nil
}

// DeleteFromMemory drops a session from memory and keeps its record. A
// pending snapshot is discarded.
func (m *Manager) DeleteFromMemory(id string) error {
	key, err := normalizeID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	delete(m.sessions, key)
	return nil
}

// UpdateLastAccessed marks a session as used now.
func (m *Manager) UpdateLastAccessed(id string) error {
	key, err := normalizeID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	e.session.Touch()
	return nil
}

// Save snapshots a session and writes it, or leaves the snapshot for Flush
// when the session was written less than the save interval ago. The caller
// must not tick the session's engine concurrently.
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}
	key, err := normalizeID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	if m.saveInterval > 0 && !e.written.IsZero() && time.Since(e.written) < m.saveInterval {
		e.pending = m.record(e.session)
		return nil
	}
	return m.write(e)
}

// Flush writes every pending snapshot and returns how many were written.
// It never reads an engine, so it may run while sessions tick.
func (m *Manager) Flush() (int, error) {
	if m.persistence == nil {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	var errs []error
	for id, e := range m.sessions {
		if e.pending == nil {
			continue
		}
		if err := m.persistence.Save(e.pending); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		e.pending = nil
		e.written = time.Now()
		written++
	}
	return written, errors.Join(errs...)
}

// CleanupExpiredSessions drops sessions not accessed within maxAge from
// memory, flushing their pending snapshots first. Their records stay in
// persistence.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, e := range m.sessions {
		if !e.session.LastAccessed().Before(cutoff) {
			continue
		}
		if e.pending != nil && m.persistence != nil {
			if err := m.persistence.Save(e.pending); err != nil {
				m.logger.Warn("failed to flush expired session", zap.String("session", id), zap.Error(err))
			}
		}
		delete(m.sessions, id)
		removed++
		m.logger.Debug("session expired", zap.String("session", id), zap.Int("frame", e.session.Engine.GetFrame()))
	}
	return removed
}

// Count returns the number of sessions in memory.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// LoadPersistedSessions restores every stored session that is not already
// in memory. Records that cannot be restored are logged and skipped.
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		if _, ok := m.sessions[id]; ok {
			continue
		}
		e, err := m.load(id)
		if err != nil {
			m.logger.Warn("failed to load persisted session", zap.String("session", id), zap.Error(err))
			continue
		}
		m.sessions[id] = e
		loaded++
	}

	if loaded > 0 {
		m.logger.Info("loaded persisted sessions", zap.Int("count", loaded))
	}
	return nil
}

// SaveAllSessions writes a fresh snapshot of every session. It reads the
// engines, so it belongs to shutdown, after ticking has stopped.
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	failed := 0
	for id, e := range m.sessions {
		if err := m.write(e); err != nil {
			m.logger.Warn("failed to save session", zap.String("session", id), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to save %d sessions", failed)
	}
	return nil
}

// write stores a fresh snapshot of e. m.mu must be held.
func (m *Manager) write(e *entry) error {
	if err := m.persistence.Save(m.record(e.session)); err != nil {
		return err
	}
	e.pending = nil
	e.written = time.Now()
	return nil
}

// record snapshots a session.
func (m *Manager) record(s *service.Session) *Record {
	return &Record{
		Version:        RecordVersion,
		ID:             s.ID,
		ConfigID:       m.configID(s),
		ConfigName:     s.Config.Name,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessed(),
		SavedAt:        time.Now(),
		RoadState:      trimState(s.Engine.GetState()),
	}
}

// configID returns the ID of the config file a session was built from,
// falling back to the config's display name.
func (m *Manager) configID(s *service.Session) string {
	if s.ConfigID != "" {
		return s.ConfigID
	}
	if m.configs != nil {
		if infos, err := m.configs.ListConfigs(); err == nil {
			for _, info := range infos {
				if info.Name == s.Config.Name {
					return info.ConfigID
				}
			}
		}
	}
	return s.Config.Name
}

// load restores a stored session. m.mu must be held.
func (m *Manager) load(id string) (*entry, error) {
	rec, err := m.persistence.Load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}

	config, err := m.resolveConfig(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %q of session %s: %w", rec.ConfigID, id, err)
	}

	eng, err := m.newEngine(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := eng.SetState(rec.RoadState); err != nil {
		return nil, fmt.Errorf("failed to restore road of session %s: %w", id, err)
	}

	m.logger.Debug("session restored",
		zap.String("session", id),
		zap.String("config", rec.ConfigID),
		zap.Int("frame", rec.RoadState.Frame),
	)

	return &entry{
		session: &service.Session{
			ID:             id,
			ConfigID:       rec.ConfigID,
			Engine:         eng,
			Config:         config,
			CreatedAt:      rec.CreatedAt,
			LastAccessedAt: rec.LastAccessedAt,
		},
		written: rec.SavedAt,
	}, nil
}

// resolveConfig finds the config of a record. A config that has since
// disappeared is replaced by the default road when the names match.
func (m *Manager) resolveConfig(rec *Record) (*road.RoadConfig, error) {
	if m.configs == nil {
		if def := road.DefaultRoadConfig(); def.Name == rec.ConfigName {
			return def, nil
		}
		return nil, fmt.Errorf("no config source to load %q", rec.ConfigID)
	}

	config, err := m.configs.LoadConfig(rec.ConfigID)
	if err == nil {
		return config, nil
	}
	if def := m.configs.GetDefault(); def != nil && def.Name == rec.ConfigName {
		return def, nil
	}
	return nil, err
}

func (m *Manager) newEngine(id string, config *road.RoadConfig) (*road.RoadEngine, error) {
	return road.NewEngine(config, road.WithLogger(m.logger.With(zap.String("session", id))))
}

// generateSessionID returns 4 random hex characters.
func generateSessionID() string {
	b := make([]byte, 2)
	rand.Read(b)
	return hex.EncodeToString(b)
}
