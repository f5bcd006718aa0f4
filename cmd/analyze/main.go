// Command analyze simulates road configurations with random frame deltas and
// prints quick, human-readable heuristics about each one: run length,
// recycles per boundary, and the worst adjacent-gap deviation seen while
// scrolling. A deviation above tolerance means the road opened a hole.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/endless-road/game/road"
)

// gapTolerance is the accepted deviation of a seam from flush or spacing.
const gapTolerance = 1e-3

// AnalysisOptions controls a simulation run.
type AnalysisOptions struct {
	Ticks int
	Seed  int64
	MaxDT float32
}

// Analysis is the outcome of simulating one configuration.
type Analysis struct {
	File      string
	Name      string
	Segments  int
	Axis      string
	Speed     float32
	Spacing   float32
	RunLength float32

	Ticks          int
	Elapsed        float32
	StartRecycles  int
	EndRecycles    int
	WorstDeviation float32
	WorstFrame     int
	MaxOverlap     float32

	Err error
}

// Healthy reports whether the road loaded and never opened a gap.
func (a Analysis) Healthy() bool {
	return a.Err == nil && a.WorstDeviation <= gapTolerance
}

// analyzeConfig loads a config and simulates it for opts.Ticks frames with
// deltas drawn uniformly from [0, opts.MaxDT].
func analyzeConfig(path string, opts AnalysisOptions) Analysis {
	analysis := Analysis{File: filepath.Base(path)}

	config, err := road.LoadRoadConfig(path)
	if err != nil {
		analysis.Err = err
		return analysis
	}

	engine, err := road.NewEngine(config)
	if err != nil {
		analysis.Err = err
		return analysis
	}

	analysis.Name = config.Name
	analysis.Segments = len(config.Segments)
	analysis.Axis = config.EffectiveAxis().String()
	analysis.Speed = config.EffectiveSpeed()
	analysis.Spacing = config.Spacing
	analysis.RunLength = engine.GetGeometry().TotalDistance

	rng := rand.New(rand.NewSource(opts.Seed))
	for i := 0; i < opts.Ticks; i++ {
		events := engine.Tick(rng.Float32() * opts.MaxDT)
		analysis.StartRecycles += road.CountRecycles(events, road.BoundaryStart)
		analysis.EndRecycles += road.CountRecycles(events, road.BoundaryEnd)

		state := engine.GetState()
		if dev := state.Gaps.MaxSeamDeviation(config.Spacing); dev > analysis.WorstDeviation {
			analysis.WorstDeviation = dev
			analysis.WorstFrame = state.Frame
		}
		if state.Gaps.MaxOverlap > analysis.MaxOverlap {
			analysis.MaxOverlap = state.Gaps.MaxOverlap
		}
		analysis.Elapsed = state.Elapsed
	}
	analysis.Ticks = opts.Ticks

	return analysis
}

// printAnalysis writes the report of one configuration.
func printAnalysis(w io.Writer, a Analysis) {
	fmt.Fprintf(w, "\n=== Analyzing %s ===\n", a.File)
	if a.Err != nil {
		fmt.Fprintf(w, "Error loading config: %v\n", a.Err)
		return
	}

	fmt.Fprintf(w, "Name: %s\n", a.Name)
	fmt.Fprintf(w, "Segments: %d along %s\n", a.Segments, a.Axis)
	fmt.Fprintf(w, "Speed: %g  Spacing: %g\n", a.Speed, a.Spacing)
	fmt.Fprintf(w, "Run Length: %.3f\n", a.RunLength)
	fmt.Fprintf(w, "Simulated: %d ticks, %.2fs\n", a.Ticks, a.Elapsed)
	fmt.Fprintf(w, "Recycles: %d at end, %d at start\n", a.EndRecycles, a.StartRecycles)

	if a.Speed != 0 && a.EndRecycles+a.StartRecycles == 0 {
		fmt.Fprintf(w, "ℹ️  No segment reached a boundary, simulate longer to exercise recycling\n")
	}

	if a.WorstDeviation > gapTolerance {
		fmt.Fprintf(w, "⚠️  CRITICAL: gap deviation %.4f at frame %d (tolerance %g)\n", a.WorstDeviation, a.WorstFrame, gapTolerance)
	} else {
		fmt.Fprintf(w, "✅ Worst gap deviation %.6f, road stayed continuous\n", a.WorstDeviation)
	}
	if a.MaxOverlap > gapTolerance && a.Spacing >= 0 {
		fmt.Fprintf(w, "⚠️  Segments overlap by up to %.4f\n", a.MaxOverlap)
	}
}

// configPaths returns the explicit paths, or every config in dir.
func configPaths(dir string, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var paths []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Simulate road configurations and report recycles and gap continuity",
		ArgsUsage: "[configs...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "ticks",
				Value: 1000,
				Usage: "Frames to simulate per config",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Value: 1,
				Usage: "Seed of the random frame deltas",
			},
			&cli.FloatFlag{
				Name:  "max-dt",
				Value: 1.0 / 30,
				Usage: "Largest frame delta in seconds",
			},
			&cli.StringFlag{
				Name:  "config-dir",
				Value: "configs",
				Usage: "Directory scanned when no config is given",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := AnalysisOptions{
				Ticks: cmd.Int("ticks"),
				Seed:  cmd.Int64("seed"),
				MaxDT: float32(cmd.Float("max-dt")),
			}
			if opts.Ticks < 1 || opts.Ticks > road.MaxBulkTicks*10 {
				return fmt.Errorf("--ticks must be between 1 and %d", road.MaxBulkTicks*10)
			}
			if opts.MaxDT <= 0 || opts.MaxDT > road.MaxTickDelta {
				return fmt.Errorf("--max-dt must be in (0, %g]", road.MaxTickDelta)
			}

			paths, err := configPaths(cmd.String("config-dir"), cmd.Args().Slice())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no configs found")
			}

			failed := 0
			for _, path := range paths {
				analysis := analyzeConfig(path, opts)
				printAnalysis(out, analysis)
				if !analysis.Healthy() {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d configs failed analysis", failed, len(paths))
			}
			return nil
		},
	}
}

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}
