package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/endless-road/game/road"
	"github.com/wricardo/endless-road/game/service"
)

const (
	DefaultFPS = 30
	MaxFPS     = 120
)

var (
	ErrAlreadyRunning = errors.New("session loop already running")
	ErrNotRunning     = errors.New("session loop not running")
	ErrInvalidFPS     = errors.New("invalid fps")
	ErrClosed         = errors.New("loop is shut down")
)

// Ticker advances a session by one or more frames.
type Ticker interface {
	Tick(ctx context.Context, sessionID string, dt float32, steps int, reset bool) (*service.TickResult, error)
}

// PublishFunc receives the result of every frame a loop runs.
type PublishFunc func(sessionID string, result *service.TickResult)

type runner struct {
	fps    int
	cancel context.CancelFunc
	done   chan struct{}
}

// Loop drives sessions in real time, one goroutine per playing session.
type Loop struct {
	ticker  Ticker
	publish PublishFunc
	logger  *zap.Logger

	mu      sync.Mutex
	runners map[string]*runner
	group   errgroup.Group
	closed  bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a loop that ticks sessions through ticker and hands every
// result to publish. publish may be nil.
func New(ticker Ticker, publish PublishFunc, opts ...Option) *Loop {
	l := &Loop{
		ticker:  ticker,
		publish: publish,
		logger:  zap.NewNop(),
		runners: make(map[string]*runner),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins ticking a session fps times per second.
func (l *Loop) Start(sessionID string, fps int) error {
	if fps <= 0 || fps > MaxFPS {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidFPS, MaxFPS, fps)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if _, exists := l.runners[sessionID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, sessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{fps: fps, cancel: cancel, done: make(chan struct{})}
	l.runners[sessionID] = r

	l.group.Go(func() error {
		defer close(r.done)
		defer l.remove(sessionID, r)
		return l.run(ctx, sessionID, fps)
	})

	l.logger.Info("session loop started", zap.String("session", sessionID), zap.Int("fps", fps))
	return nil
}

// Stop halts a session's loop and waits for its last frame to finish.
func (l *Loop) Stop(sessionID string) error {
	l.mu.Lock()
	r, exists := l.runners[sessionID]
	if exists {
		delete(l.runners, sessionID)
	}
	l.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotRunning, sessionID)
	}

	r.cancel()
	<-r.done
	l.logger.Info("session loop stopped", zap.String("session", sessionID))
	return nil
}

// Running returns the IDs of the sessions currently playing.
func (l *Loop) Running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.runners))
	for id := range l.runners {
		ids = append(ids, id)
	}
	return ids
}

// FPS returns the frame rate of a running session, or 0.
func (l *Loop) FPS(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.runners[sessionID]; ok {
		return r.fps
	}
	return 0
}

// Shutdown stops every session loop and returns the first error that ended
// one of them.
func (l *Loop) Shutdown() error {
	l.mu.Lock()
	l.closed = true
	runners := l.runners
	l.runners = make(map[string]*runner)
	l.mu.Unlock()

	for _, r := range runners {
		r.cancel()
	}
	return l.group.Wait()
}

func (l *Loop) run(ctx context.Context, sessionID string, fps int) error {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			if dt > road.MaxTickDelta {
				dt = road.MaxTickDelta
			}
			if dt < 0 {
				dt = 0
			}

			result, err := l.ticker.Tick(ctx, sessionID, dt, 1, false)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.logger.Warn("session loop ended", zap.String("session", sessionID), zap.Error(err))
				return fmt.Errorf("session %s: %w", sessionID, err)
			}
			if l.publish != nil {
				l.publish(sessionID, result)
			}
		}
	}
}

// remove drops a runner that ended on its own.
func (l *Loop) remove(sessionID string, r *runner) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runners[sessionID] == r {
		delete(l.runners, sessionID)
	}
}
