package road

import "cogentcore.org/core/math32"

// Part is a renderable piece of a tile, positioned relative to the tile.
type Part struct {
	Name   string         `json:"name,omitempty"`
	Offset math32.Vector3 `json:"offset"`
	Size   math32.Vector3 `json:"size"`
}

// Tile is the Segment implementation used by road sessions.
type Tile struct {
	ID    string
	pos   math32.Vector3
	parts []Part
}

var _ Segment = (*Tile)(nil)

// NewTile creates a tile at the origin with the given parts.
func NewTile(id string, parts ...Part) *Tile {
	return &Tile{
		ID:    id,
		parts: parts,
	}
}

// Position returns the tile's world position
func (t *Tile) Position() math32.Vector3 {
	return t.pos
}

// SetPosition moves the tile and its parts
func (t *Tile) SetPosition(p math32.Vector3) {
	t.pos = p
}

// PartBounds returns the world-space box of every part
func (t *Tile) PartBounds() []math32.Box3 {
	boxes := make([]math32.Box3, 0, len(t.parts))
	for _, part := range t.parts {
		var box math32.Box3
		box.SetFromCenterAndSize(t.pos.Add(part.Offset), part.Size)
		boxes = append(boxes, box)
	}
	return boxes
}

// Parts returns the tile's parts
func (t *Tile) Parts() []Part {
	return t.parts
}

// SegmentID returns the tile ID
func (t *Tile) SegmentID() string {
	return t.ID
}
