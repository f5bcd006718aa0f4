// Command validate provides a small CLI that validates road configuration
// files (JSON or YAML) in a directory, ../configs by default. It checks:
//   - JSON/YAML structure and required fields
//   - Axis, speed, spacing and pivot limits
//   - Segment count, unique IDs and non-negative finite sizes
//   - That the arranged run spans a distance
//   - Continuity: after simulating a few seconds every adjacent gap is
//     either flush or the configured spacing
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/endless-road/game/road"
)

const (
	// continuitySteps frames of continuityDelta are simulated, ten seconds.
	continuitySteps = 600
	continuityDelta = float32(1.0 / 60)

	// gapTolerance is the accepted deviation of a seam from flush or spacing.
	gapTolerance = 1e-3
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateConfig loads and validates a single configuration file.
// It performs structural checks, message presence, and a continuity
// simulation of the arranged road.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	config, err := road.DecodeRoadConfig(filePath, data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid syntax: %v", err))
		return result
	}

	if err := road.ValidateRoadConfig(config); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, strings.TrimPrefix(err.Error(), "config validation: "))
		return result
	}

	// Continuity validation - gaps must survive scrolling in both directions
	continuity := validateContinuity(config)
	if !continuity.Valid {
		result.Valid = false
		result.Errors = append(result.Errors, continuity.Errors...)
		return result
	}
	result.Errors = append(result.Errors, continuity.Errors...)

	// Add informational data
	var runLength float32
	if engine, err := road.NewEngine(config); err == nil {
		runLength = engine.GetGeometry().TotalDistance
	}

	zeroDepth := 0
	axis := config.EffectiveAxis()
	for _, tile := range road.BuildTiles(config) {
		if road.Depth(tile, axis) == 0 {
			zeroDepth++
		}
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", config.Name))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Segments: %d along %s", len(config.Segments), axis))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Speed: %g, spacing: %g", config.EffectiveSpeed(), config.Spacing))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Run length: %.3f", runLength))
	if zeroDepth > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Note: %d segments have zero depth along %s", zeroDepth, axis))
	}
	for _, missing := range missingMessages(config) {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Note: no %s message, a generic one is used", missing))
	}

	return result
}

// missingMessages lists the optional message keys a config leaves empty.
func missingMessages(config *road.RoadConfig) []string {
	var missing []string
	if config.Messages.Welcome == "" {
		missing = append(missing, "welcome")
	}
	if config.Messages.Reset == "" {
		missing = append(missing, "reset")
	}
	if config.Messages.Recycled == "" {
		missing = append(missing, "recycled")
	}
	return missing
}

// validateContinuity scrolls the road in its configured direction and then
// in the opposite one, and checks that every adjacent gap is flush or equal
// to the spacing. It reports the worst deviation and the recycles seen.
func validateContinuity(config *road.RoadConfig) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	engine, err := road.NewEngine(config)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot build road: %v", err))
		return result
	}

	speed := config.EffectiveSpeed()
	if speed == 0 {
		result.Errors = append(result.Errors, "✓ Continuity: speed is 0, the road does not scroll")
		return result
	}

	var worst float32
	recycles := 0
	for _, s := range []float32{speed, -speed} {
		if err := engine.SetSpeed(s); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Cannot set speed %g: %v", s, err))
			return result
		}
		recycles += len(engine.BulkTick(continuityDelta, continuitySteps))

		state := engine.GetState()
		if dev := state.Gaps.MaxSeamDeviation(config.Spacing); dev > worst {
			worst = dev
		}
	}

	if worst > gapTolerance {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Continuity failure: seams deviate from flush/spacing %g by up to %.4f", config.Spacing, worst))
		return result
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ Continuity: %d recycles, worst gap deviation %.6f", recycles, worst))
	return result
}

// configFiles returns the JSON and YAML files of dir in name order.
func configFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// main scans a directory (../configs by default) for config files and
// validates each one, printing a concise report and exiting with non-zero
// status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := configFiles(configDir)
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No config files found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All configurations are valid!")
	} else {
		fmt.Println("❌ Some configurations have errors")
		os.Exit(1)
	}
}
