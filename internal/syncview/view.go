// Package syncview maintains an always-current local copy of a Score Steal
// session for server-side consumers such as admin dashboards and projector
// views. Three update channels feed the same view: row-level change feed
// callbacks, relay WebSocket frames and a fallback poll. Updates merge by
// arrival order: whichever channel delivers a row most recently replaces the
// local copy, so the channels can overlap and race freely.
package syncview

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tmcgame/platform/internal/models"
)

// View is the merged local state of one session. All methods are safe for
// concurrent use; the three channels call in from different goroutines.
type View struct {
	mu         sync.RWMutex
	sessionID  uuid.UUID
	session    *models.ScoreStealSession
	attempts   []models.ScoreStealAttempt
	attemptIDs map[uuid.UUID]int
	updatedAt  time.Time
}

func NewView(sessionID uuid.UUID) *View {
	return &View{
		sessionID:  sessionID,
		attemptIDs: make(map[uuid.UUID]int),
	}
}

func (v *View) SessionID() uuid.UUID {
	return v.sessionID
}

// ApplySession replaces the session state. Last write wins: updates carry
// full rows, so whichever channel delivers most recently is authoritative.
// Rows for a different session are discarded.
func (v *View) ApplySession(session *models.ScoreStealSession) bool {
	if session == nil || session.ID != v.sessionID {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	questionChanged := v.session == nil ||
		!uuidPtrEqual(v.session.CurrentQuestionID, session.CurrentQuestionID)
	v.session = session
	v.updatedAt = time.Now()

	// A new question starts a new race; attempts from the previous one are
	// no longer part of the live view.
	if questionChanged {
		v.attempts = nil
		v.attemptIDs = make(map[uuid.UUID]int)
	}
	return true
}

// ApplyAttempt merges one attempt: an unseen ID appends, a known ID replaces
// the stored row unconditionally. The winning attempt's is_winner flag is set
// by an update after the insert, so a re-delivered row must overwrite the
// copy the insert event produced. Attempts for another session, or for a
// question that is no longer live, are discarded as stale.
func (v *View) ApplyAttempt(attempt models.ScoreStealAttempt) bool {
	if attempt.SessionID != v.sessionID {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session != nil && v.session.CurrentQuestionID != nil &&
		*v.session.CurrentQuestionID != attempt.QuestionID {
		return false
	}
	if idx, ok := v.attemptIDs[attempt.ID]; ok {
		v.attempts[idx] = attempt
	} else {
		v.attemptIDs[attempt.ID] = len(v.attempts)
		v.attempts = append(v.attempts, attempt)
	}
	v.updatedAt = time.Now()
	return true
}

// ApplyAttempts merges a full attempt list, e.g. from a poll or a relay
// attempts-update frame. Every in-scope row is applied; stale rows are
// skipped.
func (v *View) ApplyAttempts(attempts []models.ScoreStealAttempt) int {
	applied := 0
	for _, a := range attempts {
		if v.ApplyAttempt(a) {
			applied++
		}
	}
	return applied
}

// Session returns a copy of the current session state, or nil before the
// first update arrives.
func (v *View) Session() *models.ScoreStealSession {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.session == nil {
		return nil
	}
	copied := *v.session
	return &copied
}

// Attempts returns a copy of the live question's attempts in arrival order.
func (v *View) Attempts() []models.ScoreStealAttempt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.ScoreStealAttempt, len(v.attempts))
	copy(out, v.attempts)
	return out
}

// UpdatedAt reports when any channel last changed the view.
func (v *View) UpdatedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updatedAt
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
