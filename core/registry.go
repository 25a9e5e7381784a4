/*
Package core provides the session registry of the chat gateway.

The registry maps a WebSocket connection ID to the engine session that
connection owns. A connection owns at most one session. Each router
connection only touches its own key; shutdown drains the whole map.
*/
package core

import (
	"sync"
	"time"

	"agentchat/engine"

	"github.com/sirupsen/logrus"
)

// registryEntry is a live session and when it was registered.
type registryEntry struct {
	session engine.Session
	created time.Time
}

// Registry holds the live session of every connection. It is safe for
// concurrent use.
type Registry struct {
	entries map[string]registryEntry // connection ID -> session
	mutex   sync.RWMutex
	logger  *logrus.Logger
}

// RegistryStats summarizes the registry for the status endpoint.
type RegistryStats struct {
	TotalSessions int        `json:"totalSessions"`
	OldestSession *time.Time `json:"oldestSession,omitempty"`
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		entries: make(map[string]registryEntry),
		logger:  logger,
	}
}

// Get returns the session owned by connID.
func (r *Registry) Get(connID string) (engine.Session, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, ok := r.entries[connID]
	return entry.session, ok
}

// Put records session as the one owned by connID. Callers remove and
// destroy any previous session first.
func (r *Registry) Put(connID string, session engine.Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if prev, ok := r.entries[connID]; ok && prev.session != session {
		r.logger.WithFields(logrus.Fields{
			"connId":    connID,
			"sessionId": prev.session.ID(),
		}).Warn("Registry entry replaced without removal")
	}
	r.entries[connID] = registryEntry{session: session, created: time.Now()}
}

// Remove deletes and returns the session owned by connID.
func (r *Registry) Remove(connID string) (engine.Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, ok := r.entries[connID]
	delete(r.entries, connID)
	return entry.session, ok
}

// Drain empties the registry and returns what it held.
func (r *Registry) Drain() map[string]engine.Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	drained := make(map[string]engine.Session, len(r.entries))
	for connID, entry := range r.entries {
		drained[connID] = entry.session
	}
	r.entries = make(map[string]registryEntry)
	return drained
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

// Stats returns registry statistics.
func (r *Registry) Stats() RegistryStats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := RegistryStats{TotalSessions: len(r.entries)}
	for _, entry := range r.entries {
		if stats.OldestSession == nil || entry.created.Before(*stats.OldestSession) {
			created := entry.created
			stats.OldestSession = &created
		}
	}
	return stats
}
