package road

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cogentcore.org/core/math32"
	"gopkg.in/yaml.v3"
)

// Vec3 is a vector in config files, written as [x, y, z].
type Vec3 [3]float32

// Vector converts to a math32 vector.
func (v Vec3) Vector() math32.Vector3 {
	return math32.Vec3(v[0], v[1], v[2])
}

// PartConfig describes an extra renderable part of a segment.
type PartConfig struct {
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Offset Vec3   `json:"offset" yaml:"offset"`
	Size   Vec3   `json:"size" yaml:"size"`
}

// SegmentConfig describes one road segment. Size is the base part
// (width, height, depth); a zero size means the segment has no base part.
type SegmentConfig struct {
	ID    string       `json:"id,omitempty" yaml:"id,omitempty"`
	Size  Vec3         `json:"size" yaml:"size"`
	Parts []PartConfig `json:"parts,omitempty" yaml:"parts,omitempty"`
}

// RoadConfig represents a road configuration file
type RoadConfig struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Axis        string          `json:"axis,omitempty" yaml:"axis,omitempty"`
	Spacing     float32         `json:"spacing" yaml:"spacing"`
	Speed       *float32        `json:"speed,omitempty" yaml:"speed,omitempty"`
	Pivot       Vec3            `json:"pivot" yaml:"pivot"`
	Segments    []SegmentConfig `json:"segments" yaml:"segments"`
	Messages    struct {
		Welcome  string `json:"welcome,omitempty" yaml:"welcome,omitempty"`
		Reset    string `json:"reset,omitempty" yaml:"reset,omitempty"`
		Recycled string `json:"recycled,omitempty" yaml:"recycled,omitempty"`
	} `json:"messages" yaml:"messages"`
}

// EffectiveSpeed returns the configured speed or DefaultSpeed.
func (c *RoadConfig) EffectiveSpeed() float32 {
	if c.Speed == nil {
		return DefaultSpeed
	}
	return *c.Speed
}

// EffectiveAxis returns the parsed travel axis, z when unset or invalid.
func (c *RoadConfig) EffectiveAxis() Axis {
	axis, _ := ParseAxis(c.Axis)
	return axis
}

// ValidateRoadConfig validates a road configuration
func ValidateRoadConfig(config *RoadConfig) error {
	if config == nil {
		return fmt.Errorf("config validation: config is nil")
	}
	if config.Name == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if config.Description == "" {
		return fmt.Errorf("config validation: description is required")
	}
	if _, err := ParseAxis(config.Axis); err != nil {
		return fmt.Errorf("config validation: %v", err)
	}
	if !finite(config.Spacing) {
		return fmt.Errorf("config validation: spacing must be finite")
	}
	speed := config.EffectiveSpeed()
	if !finite(speed) || speed > MaxSpeed || speed < -MaxSpeed {
		return fmt.Errorf("config validation: speed must be between %d and %d, got %v", -MaxSpeed, MaxSpeed, speed)
	}
	if !finiteVec(config.Pivot) {
		return fmt.Errorf("config validation: pivot must be finite")
	}

	if len(config.Segments) < MinSegments || len(config.Segments) > MaxSegments {
		return fmt.Errorf("config validation: segments must have between %d and %d entries, got %d",
			MinSegments, MaxSegments, len(config.Segments))
	}

	for i, seg := range config.Segments {
		if !finiteVec(seg.Size) || seg.Size[0] < 0 || seg.Size[1] < 0 || seg.Size[2] < 0 {
			return fmt.Errorf("config validation: segment %d size must be finite and non-negative", i+1)
		}
		for j, part := range seg.Parts {
			if !finiteVec(part.Offset) || !finiteVec(part.Size) {
				return fmt.Errorf("config validation: segment %d part %d must be finite", i+1, j+1)
			}
			if part.Size[0] < 0 || part.Size[1] < 0 || part.Size[2] < 0 {
				return fmt.Errorf("config validation: segment %d part %d size must be non-negative", i+1, j+1)
			}
		}
	}

	// Generated IDs count too: restoring a road matches segments by ID.
	tiles := BuildTiles(config)
	ids := make(map[string]bool, len(tiles))
	for _, tile := range tiles {
		if ids[tile.ID] {
			return fmt.Errorf("config validation: duplicate segment id %q", tile.ID)
		}
		ids[tile.ID] = true
	}

	if err := validateRecycledMessage(config.Messages.Recycled); err != nil {
		return fmt.Errorf("config validation: %v", err)
	}

	// The run must span a distance, otherwise the boundary test divides by zero.
	arranged := Arrange(tileSegments(tiles), config.Pivot.Vector(), config.Spacing, config.EffectiveAxis())
	if _, err := Initialize(arranged); err != nil {
		return fmt.Errorf("config validation: %v", err)
	}

	return nil
}

// validateRecycledMessage checks that a recycle message renders with a
// segment ID and a boundary name, in that order.
func validateRecycledMessage(format string) error {
	if format == "" {
		return nil
	}
	if out := fmt.Sprintf(format, "segment", BoundaryEnd); strings.Contains(out, "%!") {
		return fmt.Errorf("messages.recycled %q must take exactly two %%s values (segment, boundary)", format)
	}
	return nil
}

// BuildTile creates the tile for the i-th segment config.
func BuildTile(i int, seg SegmentConfig) *Tile {
	id := seg.ID
	if id == "" {
		id = fmt.Sprintf("segment_%d", i)
	}
	var parts []Part
	if seg.Size != (Vec3{}) {
		parts = append(parts, Part{Name: "base", Size: seg.Size.Vector()})
	}
	for _, p := range seg.Parts {
		parts = append(parts, Part{Name: p.Name, Offset: p.Offset.Vector(), Size: p.Size.Vector()})
	}
	return NewTile(id, parts...)
}

// BuildTiles creates the tiles of a road in config order.
func BuildTiles(config *RoadConfig) []*Tile {
	tiles := make([]*Tile, len(config.Segments))
	for i, seg := range config.Segments {
		tiles[i] = BuildTile(i, seg)
	}
	return tiles
}

// DecodeRoadConfig parses a JSON or YAML config. The format is chosen from
// the file extension; anything other than .yaml/.yml is read as JSON.
func DecodeRoadConfig(filename string, data []byte) (*RoadConfig, error) {
	var config RoadConfig
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	}
	return &config, nil
}

// LoadRoadConfig loads and validates a road configuration file
func LoadRoadConfig(filename string) (*RoadConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config, err := DecodeRoadConfig(filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %v", filename, err)
	}

	if err := ValidateRoadConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultRoadConfig returns the built-in four tile highway.
func DefaultRoadConfig() *RoadConfig {
	speed := float32(DefaultSpeed)
	config := &RoadConfig{
		Name:        "default",
		Description: "Four straight highway tiles",
		Axis:        "z",
		Speed:       &speed,
		Segments: []SegmentConfig{
			{ID: "tile_a", Size: Vec3{6, 0.2, 10}},
			{ID: "tile_b", Size: Vec3{6, 0.2, 10}},
			{ID: "tile_c", Size: Vec3{6, 0.2, 10}},
			{ID: "tile_d", Size: Vec3{6, 0.2, 10}},
		},
	}
	config.Messages.Welcome = "Road is rolling."
	config.Messages.Reset = "Road re-arranged."
	config.Messages.Recycled = "Segment %s wrapped to the %s of the run"
	return config
}

// tileSegments converts tiles to the Segment interface.
func tileSegments(tiles []*Tile) []Segment {
	segments := make([]Segment, len(tiles))
	for i, t := range tiles {
		segments[i] = t
	}
	return segments
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

func finiteVec(v Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

func finiteVector(v math32.Vector3) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}
