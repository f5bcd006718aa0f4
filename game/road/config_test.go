package road

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RoadConfig)
		wantErr string
	}{
		{"valid default", func(c *RoadConfig) {}, ""},
		{"missing name", func(c *RoadConfig) { c.Name = "" }, "name is required"},
		{"missing description", func(c *RoadConfig) { c.Description = "" }, "description is required"},
		{"bad axis", func(c *RoadConfig) { c.Axis = "w" }, "unknown axis"},
		{"nan spacing", func(c *RoadConfig) { c.Spacing = float32(math.NaN()) }, "spacing must be finite"},
		{"speed too fast", func(c *RoadConfig) {
			s := float32(MaxSpeed + 1)
			c.Speed = &s
		}, "speed must be between"},
		{"one segment", func(c *RoadConfig) { c.Segments = c.Segments[:1] }, "segments must have between"},
		{"duplicate id", func(c *RoadConfig) { c.Segments[1].ID = c.Segments[0].ID }, "duplicate segment id"},
		{"explicit id matches generated id", func(c *RoadConfig) {
			c.Segments[0].ID = "segment_1"
			c.Segments[1].ID = ""
		}, `duplicate segment id "segment_1"`},
		{"generated ids", func(c *RoadConfig) {
			for i := range c.Segments {
				c.Segments[i].ID = ""
			}
		}, ""},
		{"recycled message one verb", func(c *RoadConfig) { c.Messages.Recycled = "Tile %s moved" }, "messages.recycled"},
		{"recycled message three verbs", func(c *RoadConfig) { c.Messages.Recycled = "%s %s %s" }, "messages.recycled"},
		{"recycled message wrong verb", func(c *RoadConfig) { c.Messages.Recycled = "%d to %s" }, "messages.recycled"},
		{"recycled message escaped percent", func(c *RoadConfig) { c.Messages.Recycled = "100%% of %s to the %s" }, ""},
		{"negative size", func(c *RoadConfig) { c.Segments[2].Size = Vec3{1, 1, -1} }, "non-negative"},
		{"negative part", func(c *RoadConfig) {
			c.Segments[0].Parts = []PartConfig{{Size: Vec3{-1, 0, 0}}}
		}, "part 1 size"},
		{"no extent", func(c *RoadConfig) {
			for i := range c.Segments {
				c.Segments[i].Size = Vec3{}
			}
		}, "insufficient geometry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultRoadConfig()
			tt.mutate(config)

			err := ValidateRoadConfig(config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, strings.HasPrefix(err.Error(), "config validation:"))
		})
	}

	assert.Error(t, ValidateRoadConfig(nil))
}

func TestDecodeRoadConfig_YAML(t *testing.T) {
	data := []byte(`
name: curvy
description: Two tiles and a sign
axis: x
spacing: 0.5
pivot: [0, 0, 1]
segments:
  - id: left
    size: [4, 0.2, 2]
  - size: [6, 0.2, 2]
    parts:
      - name: sign
        offset: [0, 1, 1]
        size: [0.5, 2, 0.1]
messages:
  welcome: hi
`)

	config, err := DecodeRoadConfig("curvy.yml", data)
	require.NoError(t, err)
	require.NoError(t, ValidateRoadConfig(config))

	assert.Equal(t, "curvy", config.Name)
	assert.Equal(t, AxisX, config.EffectiveAxis())
	assert.Nil(t, config.Speed)
	assert.Equal(t, float32(DefaultSpeed), config.EffectiveSpeed())
	assert.Equal(t, Vec3{0, 0, 1}, config.Pivot)
	require.Len(t, config.Segments, 2)
	require.Len(t, config.Segments[1].Parts, 1)
	assert.Equal(t, "sign", config.Segments[1].Parts[0].Name)
	assert.Equal(t, "hi", config.Messages.Welcome)

	tiles := BuildTiles(config)
	assert.Equal(t, "left", tiles[0].ID)
	assert.Equal(t, "segment_1", tiles[1].ID)
	assert.Len(t, tiles[1].Parts(), 2)
}

func TestDecodeRoadConfig_JSON(t *testing.T) {
	data := []byte(`{
		"name": "still",
		"description": "Stopped road",
		"speed": 0,
		"segments": [{"size": [1, 1, 3]}, {"size": [1, 1, 3]}]
	}`)

	config, err := DecodeRoadConfig("still.json", data)
	require.NoError(t, err)
	require.NotNil(t, config.Speed)
	assert.Equal(t, float32(0), config.EffectiveSpeed())
	assert.Equal(t, AxisZ, config.EffectiveAxis())

	_, err = DecodeRoadConfig("broken.json", []byte("{"))
	assert.Error(t, err)
}

func TestLoadRoadConfig(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
name: good
description: ok
segments:
  - size: [1, 1, 1]
  - size: [1, 1, 1]
`), 0644))
	config, err := LoadRoadConfig(good)
	require.NoError(t, err)
	assert.Equal(t, "good", config.Name)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"name": "x", "description": "y", "segments": []}`), 0644))
	_, err = LoadRoadConfig(invalid)
	assert.ErrorContains(t, err, "config validation")

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`not json`), 0644))
	_, err = LoadRoadConfig(broken)
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadRoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestBuildTile_NoBasePart(t *testing.T) {
	tile := BuildTile(3, SegmentConfig{Parts: []PartConfig{{Name: "pole", Size: Vec3{0.1, 3, 0.1}}}})

	assert.Equal(t, "segment_3", tile.ID)
	require.Len(t, tile.Parts(), 1)
	assert.Equal(t, "pole", tile.Parts()[0].Name)
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in   string
		want Axis
		ok   bool
	}{
		{"x", AxisX, true},
		{"Y", AxisY, true},
		{" z ", AxisZ, true},
		{"", AxisZ, true},
		{"depth", AxisZ, false},
	}

	for _, tt := range tests {
		got, err := ParseAxis(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		if name := strings.ToLower(strings.TrimSpace(tt.in)); name != "" {
			assert.Equal(t, name, got.String())
		}
	}
}
