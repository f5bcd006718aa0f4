package service

import (
	"time"

	"github.com/wricardo/endless-road/game/road"
)

// SessionInfo provides information about a road session
type SessionInfo struct {
	ID             string           `json:"id"`
	ConfigName     string           `json:"config_name"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	RoadState      *road.RoadState  `json:"road_state"`
	RoadConfig     *road.RoadConfig `json:"road_config"`
}

// TickResult contains the result of advancing a road one or more frames
type TickResult struct {
	// Summary
	StepsExecuted  int     `json:"steps_executed"`
	RequestedSteps int     `json:"requested_steps"`
	DeltaTime      float32 `json:"delta_time"`
	Truncated      bool    `json:"truncated,omitempty"`
	Limit          int     `json:"limit,omitempty"`

	// Start/end snapshot
	StartFrame int `json:"start_frame"`
	EndFrame   int `json:"end_frame"`

	Recycles  []road.RecycleEvent `json:"recycles"`
	Events    []RoadEvent         `json:"events"`
	RoadState *road.RoadState     `json:"road_state"`
	Message   string              `json:"message,omitempty"`
}

// RoadEvent represents something that happened to a road
type RoadEvent struct {
	Type      string        `json:"type"` // "reset", "recycle", "settings"
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	SegmentID string        `json:"segment_id,omitempty"`
	Boundary  road.Boundary `json:"boundary,omitempty"`
}

// SettingsUpdate changes the runtime settings of a road. Nil fields are left
// unchanged. Speed applies on the next tick, spacing on the next reset.
type SettingsUpdate struct {
	Speed   *float32 `json:"speed,omitempty"`
	Spacing *float32 `json:"spacing,omitempty"`
	Reset   bool     `json:"reset,omitempty"`
}

// HistoryOptions configures recycle history retrieval
type HistoryOptions struct {
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
	Order   string `json:"order"`   // "asc" or "desc"
	Current bool   `json:"current"` // only events since the last reset
}

// HistoryResponse contains paginated recycle history
type HistoryResponse struct {
	Recycles      []road.RecycleEvent `json:"recycles"`
	TotalRecycles int                 `json:"total_recycles"`
	Page          int                 `json:"page"`
	PageSize      int                 `json:"page_size"`
	TotalPages    int                 `json:"total_pages"`
	HasNext       bool                `json:"has_next"`
	HasPrevious   bool                `json:"has_previous"`
}

// ConfigInfo provides information about a road configuration
type ConfigInfo struct {
	Filename    string  `json:"filename"`
	ConfigID    string  `json:"config_id"` // The identifier to use for session creation
	Name        string  `json:"name"`      // Display name
	Description string  `json:"description"`
	Segments    int     `json:"segments"`
	Axis        string  `json:"axis"`
	Speed       float32 `json:"speed"`
}
