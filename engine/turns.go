/*
Package engine provides in-flight turn tracking for the chat engine.

This file implements the TurnTracker, which records the cancellation function
of every turn that is currently generating, keyed by session ID. Sessions use
it to abort their own turn; the server's status endpoint uses it to report
which sessions are busy.
*/
package engine

import (
	"context"
	"sort"
	"sync"
)

// TurnTracker tracks generating turns and their cancellation functions.
// It is safe for concurrent use by every session of an engine.
type TurnTracker struct {
	turns map[string]context.CancelFunc // session ID -> cancel of its turn
	mutex sync.RWMutex
}

// NewTurnTracker creates an empty tracker.
func NewTurnTracker() *TurnTracker {
	return &TurnTracker{
		turns: make(map[string]context.CancelFunc),
	}
}

// Add registers the turn running for sessionID. A session has at most one
// turn in flight, so a second Add for the same ID replaces the first.
//
// Parameters:
//   - sessionID: Session owning the turn
//   - cancel: Cancellation function that stops the turn
func (t *TurnTracker) Add(sessionID string, cancel context.CancelFunc) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.turns[sessionID] = cancel
}

// Remove stops tracking the turn for sessionID. Call it when the turn
// finishes, whether it completed, failed or was cancelled.
func (t *TurnTracker) Remove(sessionID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.turns, sessionID)
}

// Cancel cancels the turn running for sessionID.
//
// Returns:
//   - bool: true if a turn was running and has been cancelled
func (t *TurnTracker) Cancel(sessionID string) bool {
	t.mutex.Lock()
	cancel, exists := t.turns[sessionID]
	delete(t.turns, sessionID)
	t.mutex.Unlock()

	if exists {
		cancel()
	}
	return exists
}

// CancelAll cancels every tracked turn and returns how many there were.
func (t *TurnTracker) CancelAll() int {
	t.mutex.Lock()
	turns := t.turns
	t.turns = make(map[string]context.CancelFunc)
	t.mutex.Unlock()

	for _, cancel := range turns {
		cancel()
	}
	return len(turns)
}

// Active returns the IDs of sessions with a turn in flight, sorted.
func (t *TurnTracker) Active() []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	ids := make([]string, 0, len(t.turns))
	for id := range t.turns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
