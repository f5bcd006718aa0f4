// Command roadview draws an endless road in the terminal. It either scrolls
// a config in process or follows a session of a running server over its
// websocket.
//
//	roadview --config configs/highway.yaml
//	roadview --url http://localhost:8080 --session <id>
//
// Keys: space pauses, + and - change the speed, r resets, q quits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/endless-road/game/loop"
	"github.com/wricardo/endless-road/game/road"
	"github.com/wricardo/endless-road/logging"
)

const speedStep = 1

// viewer owns the screen and the source it draws.
type viewer struct {
	screen  tcell.Screen
	src     source
	fps     int
	playing bool
	status  string
	state   *road.RoadState
}

// handleKey applies a key press and reports whether the viewer should quit.
func (v *viewer) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
	default:
		return false
	}

	var err error
	switch ev.Rune() {
	case 'q':
		return true
	case ' ':
		v.playing = !v.playing
		err = v.src.SetPlaying(v.playing)
		v.status = map[bool]string{true: "playing", false: "paused"}[v.playing]
	case 'r':
		err = v.src.Reset()
		v.status = "reset"
	case '+', '=':
		err = v.changeSpeed(-speedStep)
	case '-', '_':
		err = v.changeSpeed(speedStep)
	}
	if err != nil {
		v.status = err.Error()
	}
	return false
}

// changeSpeed makes the road faster for negative deltas, since the road
// travels toward the start.
func (v *viewer) changeSpeed(delta float32) error {
	if v.state == nil {
		return nil
	}
	speed := max(-road.MaxSpeed, min(road.MaxSpeed, v.state.Speed+delta))
	if err := v.src.SetSpeed(speed); err != nil {
		return err
	}
	v.status = fmt.Sprintf("speed %g", speed)
	return nil
}

func (v *viewer) draw() {
	help := "space pause  +/- speed  r reset  q quit"
	if v.status != "" {
		help = v.status + "  |  " + help
	}
	render(v.screen, v.state, help)
	v.screen.Show()
}

// run polls screen events and advances the source every frame until the
// context ends or the user quits.
func (v *viewer) run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()
	defer close(quit)

	interval := time.Second / time.Duration(v.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if v.handleKey(ev) {
					return nil
				}
			case *tcell.EventResize:
				v.screen.Sync()
			}
			v.draw()
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			state, err := v.src.Advance(dt)
			if state != nil {
				v.state = state
			}
			if err != nil {
				v.status = err.Error()
			}
			v.draw()
		}
	}
}

func newLogger(path string, debug bool) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	config := logging.Config(debug)
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	return config.Build()
}

func openSource(ctx context.Context, cmd *cli.Command, logger *zap.Logger) (source, error) {
	if baseURL := cmd.String("url"); baseURL != "" {
		sessionID := cmd.String("session")
		if sessionID == "" {
			return nil, errors.New("--session is required with --url")
		}
		src, err := dialRemote(ctx, baseURL, sessionID, cmd.Int("fps"), logger)
		if err != nil {
			return nil, err
		}
		if err := src.SetPlaying(true); err != nil {
			logger.Warn("Could not start the server frame loop", zap.Error(err))
		}
		return src, nil
	}

	config := road.DefaultRoadConfig()
	if path := cmd.String("config"); path != "" {
		loaded, err := road.LoadRoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	return newLocalSource(config)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "roadview",
		Usage: "Watch an endless road scroll in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Road config file to scroll locally (default road when empty)",
			},
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Server to follow instead of scrolling locally",
				Sources: cli.EnvVars("ROAD_SERVER_URL"),
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session ID to follow on the server",
			},
			&cli.IntFlag{
				Name:  "fps",
				Value: loop.DefaultFPS,
				Usage: "Frames drawn per second",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this file",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fps := cmd.Int("fps")
			if fps < 1 || fps > loop.MaxFPS {
				return fmt.Errorf("--fps must be between 1 and %d", loop.MaxFPS)
			}

			logger, err := newLogger(cmd.String("log-file"), cmd.Bool("debug"))
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			src, err := openSource(ctx, cmd, logger)
			if err != nil {
				return err
			}
			defer src.Close()

			screen, err := tcell.NewScreen()
			if err != nil {
				return fmt.Errorf("failed to create screen: %w", err)
			}
			if err := screen.Init(); err != nil {
				return fmt.Errorf("failed to initialize screen: %w", err)
			}
			defer screen.Fini()
			screen.HideCursor()

			v := &viewer{screen: screen, src: src, fps: fps, playing: true}
			return v.run(ctx)
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "roadview: %v\n", err)
		os.Exit(1)
	}
}
