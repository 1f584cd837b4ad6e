package service

import (
	"sync"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// SessionCell is the versioned state shared by reference between the session
// manager (sole writer) and its readers. Every publish bumps Version; every
// sign-out bumps the epoch so that continuations started earlier cannot publish.
type SessionCell struct {
	mu       sync.RWMutex
	session  *domain.Session
	state    domain.SessionState
	version  uint64
	epoch    uint64
	inflight int
}

// NewSessionCell returns a cell in the initializing state.
func NewSessionCell() *SessionCell {
	return &SessionCell{state: domain.StateInitializing}
}

// Snapshot returns a consistent copy of the cell.
func (c *SessionCell) Snapshot() domain.SessionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.SessionSnapshot{
		Session: c.session,
		State:   c.state,
		Loading: c.inflight > 0,
		Version: c.version,
		Epoch:   c.epoch,
	}
}

// Epoch returns the current sign-out epoch.
func (c *SessionCell) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

func (c *SessionCell) beginLoading() {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()
}

func (c *SessionCell) endLoading() {
	c.mu.Lock()
	if c.inflight > 0 {
		c.inflight--
	}
	c.mu.Unlock()
}

// publishIf stores session and state only if no sign-out happened since epoch
// was read. It reports whether the write was applied.
func (c *SessionCell) publishIf(epoch uint64, state domain.SessionState, session *domain.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.session = session
	c.state = state
	c.version++
	return true
}

// beginSignOut invalidates every pending continuation and enters signing_out.
func (c *SessionCell) beginSignOut() {
	c.mu.Lock()
	c.epoch++
	c.state = domain.StateSigningOut
	c.version++
	c.mu.Unlock()
}

// finishSignOut clears the session unconditionally and returns the new version.
func (c *SessionCell) finishSignOut() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.state = domain.StateUnauthenticated
	c.version++
	return c.version
}

// settleInitial leaves the initializing state without a session. It is a no-op
// once any other transition has happened.
func (c *SessionCell) settleInitial(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.state != domain.StateInitializing {
		return
	}
	c.state = domain.StateUnauthenticated
	c.version++
}
