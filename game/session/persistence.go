package session

import (
	"errors"
	"time"

	"github.com/wricardo/endless-road/game/road"
)

// RecordVersion is the layout written to storage. Records with a higher
// version are refused.
const RecordVersion = 2

// persistedHistory is how many recent recycles a record keeps.
const persistedHistory = 100

var ErrUnsupportedRecord = errors.New("unsupported session record")

// SessionPersistence stores session records.
type SessionPersistence interface {
	// Save writes a record, replacing any previous one with the same ID.
	Save(rec *Record) error

	// Load reads the record of a session.
	Load(id string) (*Record, error)

	// Delete removes a session's record.
	Delete(id string) error

	// ListAll returns the IDs of every stored record.
	ListAll() ([]string, error)

	// Exists reports whether a record is stored for id.
	Exists(id string) bool
}

// Record is the stored form of a session: the config it was built from and
// a road snapshot that puts every segment back in place.
type Record struct {
	Version        int             `json:"version"`
	ID             string          `json:"id"`
	ConfigID       string          `json:"config_id"`
	ConfigName     string          `json:"config_name"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	SavedAt        time.Time       `json:"saved_at"`
	RoadState      *road.RoadState `json:"road_state"`
}

// trimState drops the derived gap report and keeps only the most recent
// recycles of a snapshot.
func trimState(state *road.RoadState) *road.RoadState {
	state.Gaps = nil
	state.RecycleHistory = lastRecycles(state.RecycleHistory, persistedHistory)
	state.CurrentRecycles = lastRecycles(state.CurrentRecycles, persistedHistory)
	return state
}

func lastRecycles(events []road.RecycleEvent, n int) []road.RecycleEvent {
	if len(events) <= n {
		return events
	}
	return append([]road.RecycleEvent(nil), events[len(events)-n:]...)
}
