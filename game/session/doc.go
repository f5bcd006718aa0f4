// Package session stores endless road sessions.
//
// Manager keeps every live session in memory, each with its own
// road.RoadEngine, and optionally mirrors them to disk through a
// SessionPersistence. FilePersistence writes one versioned JSON Record per
// session holding the config ID and a road.RoadState snapshot, so a restarted
// server resumes every road from the frame it stopped at. Records are
// written through a temporary file and a rename.
//
// A playing road is saved every frame. WithSaveInterval coalesces those
// saves: a session written less than the interval ago keeps its snapshot
// pending until Flush.
//
// Generated session IDs are 4 hex characters from crypto/rand. Caller
// supplied IDs may use letters, digits, '_' and '-' and are lower-cased.
//
// Usage:
//
//	persistence, _ := session.NewFilePersistence("sessions")
//	manager := session.NewManagerWithPersistence(persistence,
//		session.WithLogger(logger),
//		session.WithConfigs(configMgr),
//		session.WithSaveInterval(time.Second),
//	)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		logger.Warn("failed to load sessions", zap.Error(err))
//	}
//
//	sess, err := manager.Create("", configMgr.GetDefault())
package session
